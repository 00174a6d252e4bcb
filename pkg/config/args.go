package config

import (
	"fmt"
	"strconv"
	"time"
)

// ParseArgs builds a configuration from the short positional invocation:
//
//	port datadir [ticktime] [maxcnxns]
//
// where port is the plain client listener port, datadir holds both snapshots
// and the transaction log, ticktime is in milliseconds, and maxcnxns caps
// concurrent connections per client IP.
//
// Malformed arguments return a *UsageError. The returned configuration has
// defaults applied and has been validated.
func ParseArgs(args []string) (*Config, error) {
	if len(args) < 2 || len(args) > 4 {
		return nil, &UsageError{Reason: fmt.Sprintf("expected 2 to 4 arguments, got %d", len(args))}
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, &UsageError{Reason: fmt.Sprintf("port %q is not a number", args[0])}
	}
	if port < 1 || port > 65535 {
		return nil, &UsageError{Reason: fmt.Sprintf("port %d out of range 1-65535", port)}
	}

	cfg := &Config{
		ClientAddr: fmt.Sprintf(":%d", port),
		DataDir:    args[1],
	}

	if len(args) >= 3 {
		ms, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, &UsageError{Reason: fmt.Sprintf("ticktime %q is not a number", args[2])}
		}
		if ms <= 0 {
			return nil, &UsageError{Reason: fmt.Sprintf("ticktime must be positive, got %d", ms)}
		}
		cfg.TickTime = time.Duration(ms) * time.Millisecond
	}

	maxConns := -1
	if len(args) == 4 {
		n, err := strconv.Atoi(args[3])
		if err != nil {
			return nil, &UsageError{Reason: fmt.Sprintf("maxcnxns %q is not a number", args[3])}
		}
		if n < 0 {
			return nil, &UsageError{Reason: fmt.Sprintf("maxcnxns must not be negative, got %d", n)}
		}
		maxConns = n
	}

	ApplyDefaults(cfg)

	// Re-apply after defaults: an explicit 0 means unlimited and must not
	// be replaced by the default cap.
	if maxConns >= 0 {
		cfg.MaxClientConns = maxConns
	}

	if err := Validate(cfg); err != nil {
		return nil, &UsageError{Reason: err.Error()}
	}

	return cfg, nil
}
