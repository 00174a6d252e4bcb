package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/windlass-io/windlass/internal/bytesize"
)

// Config represents the windlass server configuration.
//
// This structure captures everything a single-node deployment needs:
//   - Logging configuration
//   - Client listener addresses (plain and TLS)
//   - Data and transaction log directories
//   - Storage tuning (snapshot cadence, memtable size)
//   - Metrics provider selection
//   - Admin HTTP server settings
//   - Container reclaim tunables
//
// Configuration sources (in order of precedence):
//  1. Environment variables (WINDLASS_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// The start command also accepts the short positional form
// `port datadir [ticktime] [maxcnxns]`, handled by ParseArgs.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ClientAddr is the bind address for the plain client listener.
	// Empty disables the plain listener; at least one of ClientAddr and
	// SecureClientAddr must be set.
	ClientAddr string `mapstructure:"client_addr" yaml:"client_addr"`

	// SecureClientAddr is the bind address for the TLS client listener.
	// Empty disables the TLS listener.
	SecureClientAddr string `mapstructure:"secure_client_addr" yaml:"secure_client_addr,omitempty"`

	// TLS holds the certificate material for the secure listener
	TLS TLSConfig `mapstructure:"tls" yaml:"tls,omitempty"`

	// DataDir is the directory for tree snapshots (required)
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// LogDir is the directory for the transaction log.
	// Defaults to DataDir when unset; a separate device avoids snapshot
	// writes competing with log appends.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir,omitempty"`

	// TickTime is the base time unit for the server.
	// Session-less deployments still use it to pace internal housekeeping.
	TickTime time.Duration `mapstructure:"tick_time" validate:"required,gt=0" yaml:"tick_time"`

	// MaxClientConns is the maximum number of concurrent connections a
	// single client IP may hold. Zero means unlimited.
	MaxClientConns int `mapstructure:"max_client_conns" validate:"gte=0" yaml:"max_client_conns"`

	// Storage tunes the persistent transaction log
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Metrics selects and configures the metrics provider
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin configures the admin HTTP server
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Audit controls the security audit trail
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Reclaim tunes the container node reclaimer
	Reclaim ReclaimConfig `mapstructure:"reclaim" yaml:"reclaim"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TLSConfig holds certificate material for the secure client listener.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded server certificate
	CertFile string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`

	// KeyFile is the path to the PEM-encoded private key
	KeyFile string `mapstructure:"key_file" yaml:"key_file,omitempty"`
}

// StorageConfig tunes the persistent transaction log and snapshot cadence.
type StorageConfig struct {
	// SnapCount is the number of transactions between tree snapshots.
	// Default: 100000
	SnapCount int `mapstructure:"snap_count" validate:"omitempty,gt=0" yaml:"snap_count"`

	// MemTableSize is the in-memory table size of the log store.
	// Supports human-readable formats: "64Mi", "128MB", or plain bytes.
	// Default: 64Mi
	MemTableSize bytesize.ByteSize `mapstructure:"memtable_size" yaml:"memtable_size,omitempty"`

	// SyncWrites forces every log append to be fsynced before it is
	// acknowledged. Slower, but survives power loss.
	// Default: false
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// MetricsConfig selects and configures the metrics provider.
//
// Provider names:
//   - "disabled" (or empty): no metrics are collected
//   - "prometheus": serve a Prometheus registry over HTTP at Addr
//
// An unknown provider name is a startup failure, not a config error:
// the lifecycle reports it when bootstrapping the provider.
type MetricsConfig struct {
	// Provider is the metrics provider name
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Addr is the metrics HTTP bind address (prometheus provider only)
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	// Disabled turns the admin server off. It is on by default: the
	// status command and health probes depend on it.
	Disabled bool `mapstructure:"disabled" yaml:"disabled"`

	// Addr is the admin HTTP bind address
	Addr string `mapstructure:"addr" yaml:"addr"`

	// ReadTimeout bounds request header+body reads
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds response writes
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connection idleness
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// AuditConfig controls the security audit trail.
type AuditConfig struct {
	// Disabled drops audit entries. Audit is on by default so every
	// server start and stop leaves a record.
	Disabled bool `mapstructure:"disabled" yaml:"disabled"`
}

// ReclaimConfig tunes the container node reclaimer.
//
// Container nodes that have had children and are empty again are deleted in
// the background. The reclaimer paces itself so a large backlog of empty
// containers cannot swamp the server.
type ReclaimConfig struct {
	// CheckInterval is how often candidates are collected.
	// Default: 60s
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"omitempty,gt=0" yaml:"check_interval"`

	// MaxPerMinute caps reclaim deletions per minute.
	// Default: 10000
	MaxPerMinute int `mapstructure:"max_per_minute" validate:"omitempty,gt=0" yaml:"max_per_minute"`

	// MinIdle additionally reclaims containers that never had children
	// once they have been idle this long. Zero disables idle reclaim.
	// Default: 0
	MinIdle time.Duration `mapstructure:"min_idle" validate:"gte=0" yaml:"min_idle"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (WINDLASS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: *ParseError on read, decode, or validation failure
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, &ParseError{Path: configPath, Err: err}
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, &ParseError{Path: v.ConfigFileUsed(), Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, &ParseError{Path: v.ConfigFileUsed(), Err: fmt.Errorf("configuration validation failed: %w", err)}
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, &ParseError{
				Path: GetDefaultConfigPath(),
				Err: fmt.Errorf("no configuration file found at default location: %s\n\n"+
					"Please initialize a configuration file first:\n"+
					"  windlass init\n\n"+
					"Or specify a custom config file:\n"+
					"  windlass <command> --config /path/to/config.yaml",
					GetDefaultConfigPath()),
			}
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, &ParseError{
				Path: configPath,
				Err: fmt.Errorf("configuration file not found: %s\n\n"+
					"Please create the configuration file:\n"+
					"  windlass init --config %s",
					configPath, configPath),
			}
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry TLS key paths and future credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the WINDLASS_ prefix and underscores
	// Example: WINDLASS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("WINDLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/windlass/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "64Mi", "128MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "windlass")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "windlass")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
