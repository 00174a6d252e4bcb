package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/cli/output"
	"github.com/windlass-io/windlass/internal/cli/timeutil"
	"github.com/windlass-io/windlass/pkg/adminclient"
)

var (
	adminAddr   string
	adminOutput string
)

var adminCmd = &cobra.Command{
	Use:   "admin [command]",
	Short: "Run a diagnostic command against a running server",
	Long: `Run one of the server's diagnostic commands over the admin endpoint.

Available commands:
  ruok   Liveness probe; prints imok while the server is serving
  stat   Engine state, node count, and uptime
  conf   Effective tick time, connection cap, and directories
  envi   Process environment: version, runtime, host
  mntr   Monitoring counters in machine-readable form
  dirs   Data and transaction log directories
  list   List the commands the server exposes

Examples:
  # Liveness probe
  windlass admin ruok

  # Monitoring counters as YAML
  windlass admin mntr --output yaml

  # Against a non-default admin address
  windlass admin stat --admin-addr localhost:9502`,
	ValidArgs: []string{"ruok", "stat", "conf", "envi", "mntr", "dirs", "list"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:      runAdmin,
}

func init() {
	adminCmd.Flags().StringVar(&adminAddr, "admin-addr", "localhost:7502", "Admin server address")
	adminCmd.Flags().StringVarP(&adminOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runAdmin(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(adminOutput)
	if err != nil {
		return err
	}

	client := adminclient.New(adminAddr)

	switch args[0] {
	case "ruok":
		if err := client.Ruok(); err != nil {
			return err
		}
		fmt.Println("imok")
		return nil

	case "stat":
		info, err := client.Stat()
		if err != nil {
			return err
		}
		started := "-"
		if !info.StartedAt.IsZero() {
			started = info.StartedAt.Format(time.RFC3339)
		}
		return printAdmin(format, info, [][2]string{
			{"State", info.State},
			{"Nodes", fmt.Sprintf("%d", info.NodeCount)},
			{"Last txid", fmt.Sprintf("%d", info.LastTxid)},
			{"Started", started},
			{"Uptime", timeutil.FormatSeconds(info.UptimeSecs)},
			{"Tick time", fmt.Sprintf("%dms", info.TickTimeMs)},
		})

	case "conf":
		info, err := client.Conf()
		if err != nil {
			return err
		}
		return printAdmin(format, info, [][2]string{
			{"Run ID", info.RunID},
			{"Tick time", fmt.Sprintf("%dms", info.TickTimeMs)},
			{"Max client conns", fmt.Sprintf("%d", info.MaxClientConns)},
			{"Data dir", info.DataDir},
			{"Log dir", info.LogDir},
		})

	case "envi":
		info, err := client.Envi()
		if err != nil {
			return err
		}
		return printAdmin(format, info, [][2]string{
			{"Server version", info.ServerVersion},
			{"Go version", info.GoVersion},
			{"OS", fmt.Sprintf("%s/%s", info.OS, info.Arch)},
			{"CPUs", fmt.Sprintf("%d", info.NumCPU)},
			{"Hostname", info.Hostname},
			{"User", info.User},
			{"PID", fmt.Sprintf("%d", info.PID)},
		})

	case "mntr":
		info, err := client.Mntr()
		if err != nil {
			return err
		}
		return printAdmin(format, info, [][2]string{
			{"State", info.State},
			{"Nodes", fmt.Sprintf("%d", info.NodeCount)},
			{"Last txid", fmt.Sprintf("%d", info.LastTxid)},
			{"Uptime secs", fmt.Sprintf("%d", info.UptimeSecs)},
			{"Appends since snapshot", fmt.Sprintf("%d", info.AppendsSinceSnapshot)},
		})

	case "dirs":
		info, err := client.Dirs()
		if err != nil {
			return err
		}
		return printAdmin(format, info, [][2]string{
			{"Data dir", info.DataDir},
			{"Log dir", info.LogDir},
		})

	case "list":
		names, err := client.Commands()
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return printAdmin(format, map[string][]string{"commands": names}, nil)
		}
		table := output.NewTableData("COMMAND")
		for _, name := range names {
			table.AddRow(name)
		}
		return output.PrintTable(os.Stdout, table)
	}

	return nil
}

// printAdmin renders one command's payload: the typed payload for JSON and
// YAML, the key-value pairs for the table view.
func printAdmin(format output.Format, data any, pairs [][2]string) error {
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, data)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, data)
	default:
		return output.SimpleTable(os.Stdout, pairs)
	}
}
