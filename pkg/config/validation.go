package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Two layers run in order: struct tag rules (required fields, ranges,
// enumerations) via go-playground/validator, then semantic checks that span
// multiple fields and cannot be expressed as tags.
//
// Validate does not normalize values; ApplyDefaults does that before
// validation runs.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		return err
	}

	return validateSemantic(cfg)
}

// validateSemantic applies cross-field rules.
func validateSemantic(cfg *Config) error {
	// A server with no listener can never serve a client.
	if cfg.ClientAddr == "" && cfg.SecureClientAddr == "" {
		return fmt.Errorf("no listener configured: set client_addr or secure_client_addr")
	}

	// The secure listener needs certificate material.
	if cfg.SecureClientAddr != "" {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("secure_client_addr requires tls.cert_file and tls.key_file")
		}
	}

	// The prometheus provider serves HTTP and needs a bind address.
	// Unknown provider names pass here on purpose: selecting the provider
	// is a startup concern and failures there are startup failures.
	if cfg.Metrics.Provider == "prometheus" && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics provider %q requires metrics.addr", cfg.Metrics.Provider)
	}

	return nil
}
