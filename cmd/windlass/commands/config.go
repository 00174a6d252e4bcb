package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"github.com/windlass-io/windlass/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the Windlass configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  windlass config validate

  # Validate specific config file
  windlass config validate --config /etc/windlass/config.yaml`,
	RunE: runConfigValidate,
}

var schemaOutput string

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for configuration",
	Long: `Generate a JSON schema for the Windlass configuration file.

The schema can be used for:
  - IDE autocompletion (VS Code, IntelliJ, etc.)
  - Configuration file validation
  - Documentation generation

Examples:
  # Print schema to stdout
  windlass config schema

  # Save schema to file
  windlass config schema --output config.schema.json`,
	RunE: runConfigSchema,
}

func init() {
	configSchemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configSchemaCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if cfg.Admin.Disabled {
		warnings = append(warnings, "Admin server disabled - 'windlass status' and 'windlass admin' will not work")
	}

	if cfg.Metrics.Provider == "" || cfg.Metrics.Provider == "disabled" {
		warnings = append(warnings, "Metrics disabled - no scrape endpoint will be served")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	clientAddr := cfg.ClientAddr
	if clientAddr == "" {
		clientAddr = "disabled"
	}
	adminAddr := cfg.Admin.Addr
	if cfg.Admin.Disabled {
		adminAddr = "disabled"
	}

	fmt.Fprintf(out, "\nConfiguration summary:\n")
	fmt.Fprintf(out, "  Data directory:  %s\n", cfg.DataDir)
	fmt.Fprintf(out, "  Client address:  %s\n", clientAddr)
	if cfg.SecureClientAddr != "" {
		fmt.Fprintf(out, "  Secure address:  %s\n", cfg.SecureClientAddr)
	}
	fmt.Fprintf(out, "  Admin address:   %s\n", adminAddr)
	fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "Windlass Configuration"
	schema.Description = "Configuration schema for the Windlass server"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if schemaOutput != "" {
		if err := os.WriteFile(schemaOutput, schemaJSON, 0644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
		return nil
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
	return nil
}
