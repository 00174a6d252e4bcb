package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented starter configuration written by the init
// command. It mirrors the built-in defaults so a freshly generated file
// starts a working server without edits.
const sampleConfig = `# Windlass Configuration File
#
# Every value here can be overridden with a WINDLASS_* environment variable,
# e.g. WINDLASS_LOGGING_LEVEL=DEBUG windlass start

logging:
  level: INFO          # DEBUG, INFO, WARN, ERROR
  format: text         # text or json
  output: stdout       # stdout, stderr, or a file path

# Plain client listener. At least one of client_addr and secure_client_addr
# must be set.
client_addr: ":7501"

# TLS client listener. Uncomment to serve encrypted clients; leave
# client_addr empty for a TLS-only deployment.
# secure_client_addr: ":7511"
# tls:
#   cert_file: /etc/windlass/server.crt
#   key_file: /etc/windlass/server.key

# Snapshots, the directory lock, and (by default) the transaction log live
# here. Point log_dir at a separate device to keep snapshot writes from
# competing with log appends.
data_dir: /var/lib/windlass
# log_dir: /mnt/fast/windlass

# Base time unit for internal housekeeping.
tick_time: 3s

# Maximum concurrent connections per client IP. 0 means unlimited.
max_client_conns: 60

storage:
  snap_count: 100000   # transactions between tree snapshots
  memtable_size: 64Mi  # log store memory table size
  sync_writes: false   # fsync every append before acknowledging it

metrics:
  provider: disabled   # disabled or prometheus
  # addr: ":7503"

admin:
  disabled: false
  addr: ":7502"

audit:
  disabled: false

reclaim:
  check_interval: 60s  # how often empty containers are collected
  max_per_minute: 10000
  # min_idle: 1h       # also reclaim never-used containers idle this long
`

// InitConfig writes the sample configuration to the default location and
// returns the path it wrote. Without force an existing file is an error.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration to the given path,
// creating parent directories as needed. Without force an existing file is
// an error.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600 to match SaveConfig: the file may grow TLS key paths
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
