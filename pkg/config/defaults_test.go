package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.ClientAddr != DefaultClientAddr {
		t.Errorf("Expected client addr %q, got %q", DefaultClientAddr, cfg.ClientAddr)
	}
	if cfg.TickTime != DefaultTickTime {
		t.Errorf("Expected tick time %v, got %v", DefaultTickTime, cfg.TickTime)
	}
	if cfg.Storage.SnapCount != DefaultSnapCount {
		t.Errorf("Expected snap count %d, got %d", DefaultSnapCount, cfg.Storage.SnapCount)
	}
	if cfg.Storage.MemTableSize == 0 {
		t.Error("Expected memtable size default")
	}
	if cfg.Metrics.Provider != "disabled" {
		t.Errorf("Expected metrics provider 'disabled', got %q", cfg.Metrics.Provider)
	}
}

func TestApplyDefaults_SecureOnlyKeepsPlainDisabled(t *testing.T) {
	cfg := &Config{SecureClientAddr: ":7511"}
	ApplyDefaults(cfg)

	if cfg.ClientAddr != "" {
		t.Errorf("Expected plain listener to stay disabled, got %q", cfg.ClientAddr)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		ClientAddr:     "127.0.0.1:9000",
		TickTime:       500 * time.Millisecond,
		MaxClientConns: 10,
		LogDir:         "/ssd/txnlog",
		DataDir:        "/var/lib/windlass",
	}
	ApplyDefaults(cfg)

	if cfg.ClientAddr != "127.0.0.1:9000" {
		t.Errorf("Client addr overwritten: %q", cfg.ClientAddr)
	}
	if cfg.TickTime != 500*time.Millisecond {
		t.Errorf("Tick time overwritten: %v", cfg.TickTime)
	}
	if cfg.MaxClientConns != 10 {
		t.Errorf("Max conns overwritten: %d", cfg.MaxClientConns)
	}
	if cfg.LogDir != "/ssd/txnlog" {
		t.Errorf("Log dir overwritten: %q", cfg.LogDir)
	}
}

func TestApplyDefaults_PrometheusAddr(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Provider: "prometheus"}}
	ApplyDefaults(cfg)

	if cfg.Metrics.Addr != DefaultMetricsAddr {
		t.Errorf("Expected metrics addr %q, got %q", DefaultMetricsAddr, cfg.Metrics.Addr)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
	if cfg.DataDir == "" {
		t.Error("Default config should carry a data dir for sample generation")
	}
}
