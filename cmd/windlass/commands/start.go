package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/audit"
	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/admin"
	"github.com/windlass-io/windlass/pkg/config"
	"github.com/windlass-io/windlass/pkg/exitcode"
	"github.com/windlass-io/windlass/pkg/lifecycle"
)

var (
	daemon  bool
	pidFile string
	logFile string
)

var startCmd = &cobra.Command{
	Use:   "start [configfile | port datadir [ticktime] [maxcnxns]]",
	Short: "Start the windlass server",
	Long: `Start the windlass server with the specified configuration.

The server runs in the foreground until it receives SIGINT or SIGTERM.
Use --daemon to detach and run in the background instead.

Configuration comes from the positional arguments when given, otherwise
from --config, otherwise from the default location at
$XDG_CONFIG_HOME/windlass/config.yaml.

Examples:
  # Start with the default config location
  windlass start

  # Start with a custom config file
  windlass start /etc/windlass/config.yaml

  # Shorthand invocation: client port and data directory
  windlass start 7501 /var/lib/windlass

  # Start detached
  windlass start --daemon

  # Override config through the environment
  WINDLASS_LOGGING_LEVEL=DEBUG windlass start`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 4 {
			return &config.UsageError{Reason: fmt.Sprintf("expected at most 4 arguments, got %d", len(args))}
		}
		return nil
	},
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Run detached in the background")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/windlass/windlass.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/windlass/windlass.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if daemon {
		return startDaemon(args)
	}

	cfg, err := loadStartConfig(args)
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	audit.SetEnabled(!cfg.Audit.Disabled)
	admin.Version = Version

	logger.Info("configuration loaded",
		logger.KeyComponent, "main",
		logger.KeyVersion, Version,
		logger.KeyPath, configSource(args))

	// The daemon re-exec always passes a PID file so stop and status can
	// find the detached process.
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	coord := lifecycle.New(cfg)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- coord.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received",
			logger.KeyComponent, "main",
			logger.KeyReason, sig.String())
		coord.Signal()
		runErr = <-serverDone

	case runErr = <-serverDone:
		signal.Stop(sigChan)
	}

	if runErr != nil {
		audit.ServerStartFailure(runErr.Error())
		logger.Error("server failed",
			logger.KeyComponent, "main",
			logger.KeyError, runErr,
			logger.KeyExitCode, exitcode.FromError(runErr).Int())
		return runErr
	}

	audit.ServerStop()
	logger.Info("exiting normally",
		logger.KeyComponent, "main",
		logger.KeyExitCode, exitcode.Success.Int())
	return nil
}

// loadStartConfig resolves the server configuration for the start command.
// No arguments means the --config flag or the default location, a single
// argument names a config file, and two to four arguments use the shorthand
// port/datadir form.
func loadStartConfig(args []string) (*config.Config, error) {
	switch len(args) {
	case 0:
		return config.MustLoad(GetConfigFile())
	case 1:
		return config.MustLoad(args[0])
	default:
		return config.ParseArgs(args)
	}
}

// configSource returns a description of where the config was loaded from.
func configSource(args []string) string {
	switch {
	case len(args) >= 2:
		return "arguments"
	case len(args) == 1:
		return args[0]
	case GetConfigFile() != "":
		return GetConfigFile()
	case config.DefaultConfigExists():
		return config.GetDefaultConfigPath()
	default:
		return "defaults"
	}
}

// startDaemon starts the server as a background daemon process.
func startDaemon(args []string) error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("windlass is already running (PID %d)\nUse 'windlass stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Re-exec ourselves without --daemon; positional arguments pass through
	daemonArgs := []string{"start", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}
	daemonArgs = append(daemonArgs, args...)

	daemonCmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemonCmd.Stdout = logFileHandle
	daemonCmd.Stderr = logFileHandle

	// Detach from parent process
	daemonCmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemonCmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("windlass started in background (PID %d)\n", daemonCmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'windlass stop' to stop the server")
	fmt.Println("Use 'windlass status' to check server status")

	return nil
}
