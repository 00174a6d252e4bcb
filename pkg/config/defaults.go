package config

import (
	"strings"
	"time"

	"github.com/windlass-io/windlass/internal/bytesize"
)

// Built-in defaults. The 75xx port block keeps the three listeners adjacent:
// client 7501, admin 7502, metrics 7503.
const (
	DefaultClientAddr  = ":7501"
	DefaultAdminAddr   = ":7502"
	DefaultMetricsAddr = ":7503"

	// DefaultTickTime is the base time unit
	DefaultTickTime = 3000 * time.Millisecond

	// DefaultMaxClientConns caps concurrent connections per client IP
	DefaultMaxClientConns = 60

	// DefaultSnapCount is the number of transactions between snapshots
	DefaultSnapCount = 100000

	// Reclaimer defaults: sweep every minute, at most 10000 deletions per
	// minute, no idle-based reclaim.
	DefaultReclaimCheckInterval = 60 * time.Second
	DefaultReclaimMaxPerMinute  = 10000
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyListenerDefaults(cfg)
	applyStorageDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminDefaults(&cfg.Admin)
	applyReclaimDefaults(&cfg.Reclaim)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyListenerDefaults sets listener and tick defaults.
func applyListenerDefaults(cfg *Config) {
	// Only default the plain listener when no listener is configured at
	// all; a secure-only deployment must not grow a plaintext port.
	if cfg.ClientAddr == "" && cfg.SecureClientAddr == "" {
		cfg.ClientAddr = DefaultClientAddr
	}
	if cfg.TickTime == 0 {
		cfg.TickTime = DefaultTickTime
	}
	if cfg.MaxClientConns == 0 {
		cfg.MaxClientConns = DefaultMaxClientConns
	}
}

// applyStorageDefaults sets storage defaults.
// DataDir has no default - it's required and must be configured by user.
func applyStorageDefaults(cfg *Config) {
	if cfg.LogDir == "" {
		cfg.LogDir = cfg.DataDir
	}
	if cfg.Storage.SnapCount == 0 {
		cfg.Storage.SnapCount = DefaultSnapCount
	}
	if cfg.Storage.MemTableSize == 0 {
		cfg.Storage.MemTableSize = 64 * bytesize.MiB
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Metrics are opt-in: the disabled provider costs nothing
	if cfg.Provider == "" {
		cfg.Provider = "disabled"
	}
	if cfg.Provider == "prometheus" && cfg.Addr == "" {
		cfg.Addr = DefaultMetricsAddr
	}
}

// applyAdminDefaults sets admin server defaults.
// The admin server is on by default (status command and health probes use it).
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAdminAddr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyReclaimDefaults sets container reclaimer defaults.
func applyReclaimDefaults(cfg *ReclaimConfig) {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultReclaimCheckInterval
	}
	if cfg.MaxPerMinute == 0 {
		cfg.MaxPerMinute = DefaultReclaimMaxPerMinute
	}
	// MinIdle defaults to 0: containers that never held children are
	// kept until idle reclaim is explicitly enabled.
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		DataDir: "/var/lib/windlass",
	}

	ApplyDefaults(cfg)
	return cfg
}
