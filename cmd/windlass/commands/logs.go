package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/windlass-io/windlass/pkg/config"
)

var (
	logsFollow  bool
	logsLines   int
	logsSince   string
	logsLogFile string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail server logs",
	Long: `Display and optionally follow the Windlass server logs.

This command reads the log file the server writes to. When the server runs
in daemon mode its output is captured in the state directory; in foreground
mode logs go to a file only if 'logging.output' is set to a file path.

Examples:
  # Show last 100 lines (default)
  windlass logs

  # Show last 50 lines
  windlass logs -n 50

  # Follow logs in real-time
  windlass logs -f

  # Show logs since a specific time
  windlass logs --since "2026-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
	logsCmd.Flags().StringVar(&logsLogFile, "log-file", "", "Log file to read (default: from config or state directory)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	logFile, err := resolveLogFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s\nThe server may not have started yet or is logging elsewhere", logFile)
	}

	var sinceTime time.Time
	if logsSince != "" {
		sinceTime, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	if logsFollow {
		return followLogs(cmd.OutOrStdout(), logFile, logsLines, sinceTime)
	}

	return showLogs(cmd.OutOrStdout(), logFile, logsLines, sinceTime)
}

// resolveLogFile picks the log file to read: the --log-file flag, then a
// file-backed 'logging.output' from the configuration, then the daemon log
// in the state directory.
func resolveLogFile() (string, error) {
	if logsLogFile != "" {
		return logsLogFile, nil
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	output := cfg.Logging.Output
	if output != "" && output != "stdout" && output != "stderr" {
		return output, nil
	}

	return GetDefaultLogFile(), nil
}

// showLogs displays the last N lines from the log file.
func showLogs(out io.Writer, logFile string, lines int, since time.Time) error {
	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var allLines []string
	scanner := bufio.NewScanner(file)
	// Increase buffer size for long log lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if lineTime := extractTimestamp(line); !lineTime.IsZero() {
				if lineTime.Before(since) {
					continue
				}
			}
		}
		allLines = append(allLines, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	start := 0
	if len(allLines) > lines {
		start = len(allLines) - lines
	}

	for _, line := range allLines[start:] {
		fmt.Fprintln(out, line)
	}

	return nil
}

// followLogs tails the log file and follows new entries.
func followLogs(out io.Writer, logFile string, initialLines int, since time.Time) error {
	if err := showLogs(out, logFile, initialLines, since); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logFile); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}

	reader := bufio.NewReader(file)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", logFile)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					fmt.Fprint(out, line)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// extractTimestamp attempts to extract a timestamp from a log line.
// Handles the JSON handler's "time" field and the text handler's
// time= prefix.
func extractTimestamp(line string) time.Time {
	const jsonKey = `"time":"`
	if idx := strings.Index(line, jsonKey); idx >= 0 {
		start := idx + len(jsonKey)
		for i := start; i < len(line) && i < start+40; i++ {
			if line[i] == '"' {
				if t, err := time.Parse(time.RFC3339Nano, line[start:i]); err == nil {
					return t
				}
				break
			}
		}
		return time.Time{}
	}

	const textKey = "time="
	if strings.HasPrefix(line, textKey) {
		rest := line[len(textKey):]
		end := strings.IndexByte(rest, ' ')
		if end < 0 {
			end = len(rest)
		}
		if t, err := time.Parse(time.RFC3339Nano, rest[:end]); err == nil {
			return t
		}
	}

	return time.Time{}
}
