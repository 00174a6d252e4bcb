package config

import "fmt"

// Usage is the short invocation synopsis for the start command. It is printed
// alongside argument errors.
const Usage = "Usage: windlass start {configfile | port datadir [ticktime] [maxcnxns]}"

// UsageError reports malformed command-line arguments: wrong argument count,
// a non-numeric port or tick time, or an out-of-range value. It maps to the
// invalid-invocation exit code.
type UsageError struct {
	// Reason describes what was wrong with the invocation
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid arguments: %s\n%s", e.Reason, Usage)
}

// ParseError reports an unreadable, undecodable, or invalid configuration
// file. It maps to the invalid-invocation exit code: the operator asked for a
// configuration the server cannot honor.
type ParseError struct {
	// Path is the configuration file involved, if known
	Path string

	// Err is the underlying read, decode, or validation error
	Err error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *ParseError) Unwrap() error {
	return e.Err
}
