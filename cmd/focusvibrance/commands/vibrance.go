package commands

import (
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/FocusVibrance/internal/vibrance"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the vibrance of a monitor",
	Long:  `Read the current digital vibrance of a monitor as a percentage of its range.`,
	Example: `  # Selected monitor, as a percentage
  focusvibrance get

  # Monitor 1, raw device value
  focusvibrance get --monitor 1 --raw`,
	Args: cobra.NoArgs,
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set VALUE",
	Short: "Set the vibrance of a monitor",
	Long: `Set the digital vibrance of a monitor, or of every monitor with --all.

VALUE is a percentage (0-100) of the monitor's range unless --raw is given.
A value outside the monitor's range is ignored.`,
	Example: `  # 80% on the selected monitor
  focusvibrance set 80

  # Raw value on every monitor
  focusvibrance set 512 --raw --all

  # Back to the driver default
  focusvibrance set 0 --raw --all`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

var (
	monitorFlag int
	allFlag     bool
	rawFlag     bool
)

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)

	getCmd.Flags().IntVarP(&monitorFlag, "monitor", "m", -1, "monitor index (default is the selected monitor)")
	getCmd.Flags().BoolVar(&rawFlag, "raw", false, "print the raw device value")

	setCmd.Flags().IntVarP(&monitorFlag, "monitor", "m", -1, "monitor index (default is the selected monitor)")
	setCmd.Flags().BoolVarP(&allFlag, "all", "a", false, "write every monitor (default from affect_all)")
	setCmd.Flags().BoolVar(&rawFlag, "raw", false, "VALUE is a raw device value")
}

func selectedMonitor(cmd *cobra.Command, def int) int {
	if cmd.Flags().Changed("monitor") {
		return monitorFlag
	}
	return def
}

func runGet(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadSettings()
	if err != nil {
		return err
	}

	_, registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	monitor := selectedMonitor(cmd, cfg.DefaultMonitor)
	controller := vibrance.NewController(registry, vibrance.Options{})

	value, err := controller.Get(monitor)
	if err != nil {
		return err
	}

	if rawFlag {
		fmt.Println(value)
		return nil
	}

	mon, _ := registry.Monitor(monitor)
	fmt.Printf("%d%%\n", vibrance.ValueToPercentage(value, &mon))
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid value: %s", args[0])
	}

	_, cfg, err := loadSettings()
	if err != nil {
		return err
	}

	_, registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	monitor := selectedMonitor(cmd, cfg.DefaultMonitor)
	mon, ok := registry.Monitor(monitor)
	if !ok {
		return fmt.Errorf("no monitor %d (see 'focusvibrance monitors')", monitor)
	}

	affectAll := cfg.AffectAll
	if cmd.Flags().Changed("all") {
		affectAll = allFlag
	}

	value := n
	if !rawFlag {
		value = vibrance.PercentageToValue(n, &mon)
	}

	controller := vibrance.NewController(registry, vibrance.Options{
		SkipZeroOnInactive: cfg.SkipZeroOnInactive,
	})
	if !controller.Set(monitor, value, affectAll) {
		fmt.Printf("Vibrance %d ignored (range %d..%d)\n", value, mon.Min, mon.Max)
		return nil
	}

	target := fmt.Sprintf("monitor %d", monitor)
	if affectAll {
		target = "all monitors"
	}
	fmt.Printf("Vibrance set to %d on %s\n", value, target)
	return nil
}
