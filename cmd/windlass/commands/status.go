package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/cli/output"
	"github.com/windlass-io/windlass/internal/cli/timeutil"
	"github.com/windlass-io/windlass/pkg/adminclient"
)

var (
	statusOutput    string
	statusPidFile   string
	statusAdminAddr string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the windlass server.

This command probes the PID file and the admin server's health endpoint
and displays state, uptime, and node count information.

Examples:
  # Check status (uses default settings)
  windlass status

  # Check status with custom admin address
  windlass status --admin-addr localhost:9502

  # Output as JSON
  windlass status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/windlass/windlass.pid)")
	statusCmd.Flags().StringVar(&statusAdminAddr, "admin-addr", "localhost:7502", "Admin server address")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running    bool   `json:"running" yaml:"running"`
	PID        int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy    bool   `json:"healthy" yaml:"healthy"`
	State      string `json:"state,omitempty" yaml:"state,omitempty"`
	NodeCount  int    `json:"node_count,omitempty" yaml:"node_count,omitempty"`
	LastTxid   uint64 `json:"last_txid,omitempty" yaml:"last_txid,omitempty"`
	StartedAt  string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	UptimeSecs int64  `json:"uptime_secs,omitempty" yaml:"uptime_secs,omitempty"`
	Message    string `json:"message" yaml:"message"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{Message: "Server is not running"}

	// Check PID file first
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				// On Unix, FindProcess always succeeds; signal 0 probes liveness
				if process.Signal(syscall.Signal(0)) == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	// The admin server answers for both daemon and foreground mode
	client := adminclient.New(statusAdminAddr)
	if health, err := client.Health(); err == nil {
		status.Running = true
		status.Healthy = health.Healthy
		status.State = health.State
		if health.Healthy {
			status.Message = "Server is running and healthy"
		} else {
			status.Message = fmt.Sprintf("Server is running but not serving (state %s)", health.State)
		}

		if stat, err := client.Stat(); err == nil {
			status.NodeCount = stat.NodeCount
			status.LastTxid = stat.LastTxid
			status.UptimeSecs = stat.UptimeSecs
			if !stat.StartedAt.IsZero() {
				status.StartedAt = stat.StartedAt.Format(time.RFC3339)
			}
		}
	} else if status.Running {
		// PID file says running but the admin endpoint did not answer
		status.Message = "Server process exists but admin endpoint is unreachable"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("Windlass Server Status")
	fmt.Println("======================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		} else if status.State != "" {
			fmt.Printf("  Status:     \033[33m● Running (state %s)\033[0m\n", status.State)
		} else {
			fmt.Printf("  Status:     \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:        %d\n", status.PID)
		}
		if status.StartedAt != "" {
			fmt.Printf("  Started:    %s\n", timeutil.FormatTime(status.StartedAt))
		}
		if status.UptimeSecs > 0 {
			fmt.Printf("  Uptime:     %s\n", timeutil.FormatSeconds(status.UptimeSecs))
		}
		if status.Healthy {
			fmt.Printf("  Nodes:      %d\n", status.NodeCount)
			fmt.Printf("  Last txid:  %d\n", status.LastTxid)
		}
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
