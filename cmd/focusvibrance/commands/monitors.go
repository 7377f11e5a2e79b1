package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/vibrance"
	"github.com/spf13/cobra"
)

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List NVIDIA monitors",
	Long: `List every display enabled on the NVIDIA X screen with its vibrance range,
current level and resolution.

The index shown is the one accepted by --monitor and by the API.`,
	Example: `  # List monitors in table format (default)
  focusvibrance monitors

  # List monitors in JSON format
  focusvibrance monitors --format json`,
	RunE: runMonitors,
}

var monitorsFormat string

func init() {
	rootCmd.AddCommand(monitorsCmd)

	monitorsCmd.Flags().StringVarP(&monitorsFormat, "format", "f", "table", "output format (table or json)")
}

type monitorRow struct {
	display.Monitor
	Percent  int  `json:"percent"`
	Selected bool `json:"selected"`
}

func runMonitors(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadSettings()
	if err != nil {
		return err
	}

	_, registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	monitors := registry.Monitors()
	rows := make([]monitorRow, 0, len(monitors))
	for _, mon := range monitors {
		rows = append(rows, monitorRow{
			Monitor:  mon,
			Percent:  vibrance.ValueToPercentage(mon.Level, &mon),
			Selected: mon.Index == cfg.DefaultMonitor,
		})
	}

	switch monitorsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		fmt.Printf("NVIDIA X screen %d\n\n", registry.Screen())
		return printMonitorsTable(rows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", monitorsFormat)
	}
}

func printMonitorsTable(rows []monitorRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INDEX\tID\tNAME\tRANGE\tLEVEL\tPERCENT\tRESOLUTION")
	fmt.Fprintln(w, "-----\t--\t----\t-----\t-----\t-------\t----------")

	for _, r := range rows {
		index := fmt.Sprintf("%d", r.Index)
		if r.Selected {
			index += "*"
		}

		name := r.Name
		if name == "" {
			name = "-"
		}

		rng := "read-only"
		if r.RangeValid {
			rng = fmt.Sprintf("%d..%d", r.Min, r.Max)
		}

		resolution := "unknown"
		if r.HasGeometry() {
			resolution = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}

		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d%%\t%s\n",
			index, r.ID, name, rng, r.Level, r.Percent, resolution)
	}

	return nil
}
