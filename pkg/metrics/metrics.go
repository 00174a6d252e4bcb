// Package metrics selects and runs the metrics backend. Providers are chosen
// by name from configuration; an unrecognized name fails at bootstrap, not at
// config validation, so the failure takes the generic startup exit path.
package metrics

import (
	"fmt"

	"github.com/windlass-io/windlass/pkg/server"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

// Provider is a metrics backend with a start/stop lifecycle. Start must not
// return until the backend is ready to collect.
type Provider interface {
	// Name identifies the provider in logs and configuration
	Name() string

	// Start brings the backend up
	Start() error

	// Stop tears it down; callers log and swallow the error so a metrics
	// failure never masks the primary shutdown reason
	Stop() error
}

// EngineCollector is implemented by providers able to export engine state.
// The engine does not exist yet when the provider starts, so the stats source
// is attached afterwards.
type EngineCollector interface {
	ObserveEngine(stats func() server.Stats)
}

// LogCollector is implemented by providers able to export transaction log
// counters. Like EngineCollector, the stats source is attached once the log
// has been opened.
type LogCollector interface {
	ObserveLog(stats func() txnlog.Stats)
}

// New selects a provider by name. The empty name selects the disabled
// provider.
func New(name, addr string) (Provider, error) {
	switch name {
	case "", "disabled":
		return &disabledProvider{}, nil
	case "prometheus":
		return newPrometheusProvider(addr), nil
	default:
		return nil, fmt.Errorf("cannot boot metrics provider %q: unknown provider", name)
	}
}
