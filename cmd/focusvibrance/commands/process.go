package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/FocusVibrance/internal/api"
	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:     "process",
	Aliases: []string{"proc"},
	Short:   "Manage tracked processes",
	Long: `Manage the processes whose target vibrance is applied when they are focused
full-screen. The table lives in the running daemon and is not saved.`,
}

var processToggleCmd = &cobra.Command{
	Use:   "toggle PID",
	Short: "Track a process, or stop tracking it",
	Long: `Track PID with a target vibrance percentage. If PID is already tracked it is
removed instead.`,
	Example: `  # Track pid 1234 at the default target
  focusvibrance process toggle 1234

  # Track pid 1234 at 80%
  focusvibrance process toggle 1234 --target 80

  # Stop tracking it
  focusvibrance process toggle 1234`,
	Args: cobra.ExactArgs(1),
	RunE: runProcessToggle,
}

var processListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked processes",
	Args:  cobra.NoArgs,
	RunE:  runProcessList,
}

var processGetCmd = &cobra.Command{
	Use:   "get PID",
	Short: "Show the target of a tracked process",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcessGet,
}

var (
	targetFlag    int
	processFormat string
)

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.AddCommand(processToggleCmd)
	processCmd.AddCommand(processListCmd)
	processCmd.AddCommand(processGetCmd)

	processToggleCmd.Flags().IntVarP(&targetFlag, "target", "t", apps.DefaultTarget, "target vibrance percentage (0-100)")
	processListCmd.Flags().StringVarP(&processFormat, "format", "f", "table", "output format (table or json)")
}

func newClient() (*api.Client, error) {
	_, cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.ServerPort), nil
}

func runProcessToggle(cmd *cobra.Command, args []string) error {
	pid := apps.NormalizePID(args[0])
	if !apps.ValidPID(pid) {
		return fmt.Errorf("invalid process id %q: digits only", args[0])
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var target *int
	if cmd.Flags().Changed("target") {
		target = &targetFlag
	}

	resp, err := client.ToggleProcess(cmd.Context(), pid, target)
	if err != nil {
		return err
	}

	switch {
	case resp.Result == apps.Added.String() && resp.Entry != nil:
		fmt.Printf("Tracking process %s at %d%%\n", resp.PID, resp.Entry.Target)
	case resp.Result == apps.Removed.String():
		fmt.Printf("Stopped tracking process %s\n", resp.PID)
	default:
		fmt.Printf("Process %s: %s\n", resp.PID, resp.Result)
	}
	return nil
}

func runProcessList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	entries, err := client.Processes(cmd.Context())
	if err != nil {
		return err
	}

	switch processFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "table":
		if len(entries) == 0 {
			fmt.Println("No processes tracked")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "PID\tTARGET")
		fmt.Fprintln(w, "---\t------")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d%%\n", e.PID, e.Target)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", processFormat)
	}
}

func runProcessGet(cmd *cobra.Command, args []string) error {
	pid := apps.NormalizePID(args[0])
	if !apps.ValidPID(pid) {
		return fmt.Errorf("invalid process id %q: digits only", args[0])
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	e, err := client.Process(cmd.Context(), pid)
	if errors.Is(err, api.ErrNotFound) {
		fmt.Printf("Process %s is not tracked\n", pid)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Process %s: target %d%%\n", e.PID, e.Target)
	return nil
}
