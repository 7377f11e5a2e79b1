package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/FocusVibrance/internal/config"
	"github.com/bryanchriswhite/FocusVibrance/internal/display"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "focusvibrance",
		Short: "FocusVibrance - NVIDIA digital vibrance per monitor and per application",
		Long: `FocusVibrance sets the NVIDIA digital vibrance of your monitors and boosts
it automatically while a chosen application is focused full-screen.

Features:
  • Discover NVIDIA displays with their vibrance range and resolution
  • Get and set vibrance per monitor or on all monitors at once
  • Track process ids with a target vibrance percentage
  • Apply the target when a tracked process goes full-screen
  • REST API and WebSocket stream for integration`,
		SilenceUsage: true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focusvibrance/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8087)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("display", "", "X display to connect to (default is $DISPLAY)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("display", rootCmd.PersistentFlags().Lookup("display"))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadSettings loads the settings file, applies flag overrides in memory
// and initializes logging.
func loadSettings() (*config.Manager, config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}

	if viper.IsSet("display") {
		if name := viper.GetString("display"); name != "" {
			cfg.Display = name
		}
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}

// openRegistry connects to the X server and discovers its NVIDIA displays
func openRegistry(cfg config.Config) (*display.XServer, *display.Registry, error) {
	server, err := display.OpenX(cfg.Display)
	if err != nil {
		return nil, nil, err
	}

	registry := display.NewRegistry(server)
	if err := registry.Discover(); err != nil {
		registry.Close()
		return nil, nil, fmt.Errorf("display discovery failed: %w", err)
	}
	return server, registry, nil
}
