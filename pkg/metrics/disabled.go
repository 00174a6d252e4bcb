package metrics

// disabledProvider satisfies the Provider contract with no-ops. It is the
// default when no metrics backend is configured.
type disabledProvider struct{}

func (*disabledProvider) Name() string { return "disabled" }

func (*disabledProvider) Start() error { return nil }

func (*disabledProvider) Stop() error { return nil }
