// Package commands implements the CLI commands for windlass server management.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/pkg/exitcode"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "windlass",
	Short: "Windlass - Single-node coordination server",
	Long: `Windlass is a single-node coordination server. It keeps a tree of small
data nodes in memory, persists every change through a local transaction log,
and serves a line-oriented client protocol with optional TLS alongside an
HTTP admin surface for diagnostics.

Use "windlass [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps the outcome to a process exit
// code. This is called by main.main(). Invalid invocations carry the
// usage synopsis in their error text.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitcode.Success.Int()
	}

	PrintErr("Error: %v", err)
	return exitcode.FromError(err).Int()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/windlass/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
