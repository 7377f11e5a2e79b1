package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FocusVibrance/internal/api"
	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
	"github.com/bryanchriswhite/FocusVibrance/internal/config"
	"github.com/bryanchriswhite/FocusVibrance/internal/logger"
	"github.com/bryanchriswhite/FocusVibrance/internal/vibrance"
	"github.com/bryanchriswhite/FocusVibrance/internal/window"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FocusVibrance daemon",
	Long: `Start the FocusVibrance daemon: discover NVIDIA displays, watch the active
window and serve the REST API.

Whenever the active window changes, vibrance is reset to 0 on every monitor.
If the new window belongs to a tracked process and exactly covers the
selected monitor, the process's target vibrance is applied to all monitors.`,
	Example: `  # Start the daemon on the default port (8087)
  focusvibrance serve

  # Start on a custom port with debug logging
  focusvibrance serve --port 9090 --log-level debug

  # Use another X display
  focusvibrance serve --display :1`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadSettings()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	server, registry, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	configMgr.SetMonitorCount(registry.Count())

	table := apps.NewTable(cfg.DefaultTargetPercent)
	controller := vibrance.NewController(registry, vibrance.Options{
		SkipZeroOnInactive: cfg.SkipZeroOnInactive,
	})

	var observer *window.Observer
	if cfg.ObserverEnabled {
		desktop, err := window.NewX11Desktop(server.Conn())
		if err != nil {
			registry.Close()
			return fmt.Errorf("failed to initialize focus tracking: %w", err)
		}
		observer = window.NewObserver(desktop, controller, table, configMgr)
	} else {
		log.Info().Msg("Focus tracking disabled")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		registry.Close()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	apiServer := api.NewServer(controller, table, configMgr, observer)

	configMgr.OnConfigChange(func(c config.Config) {
		if level, err := logger.ParseLevel(c.LogLevel); err == nil {
			logger.SetLevel(level)
		}
		log.Info().
			Int("default_monitor", c.DefaultMonitor).
			Bool("affect_all", c.AffectAll).
			Msg("Settings reloaded")
	})
	configMgr.Watch()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if observer != nil {
		g.Go(func() error {
			if err := observer.Run(); err != nil {
				// Manual control keeps working without focus tracking.
				log.Error().Err(err).Msg("Focus observer stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		return apiServer.Serve(ln)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown")
		}

		// Close waits for the observer and API users to leave the display
		// handle; the table goes last.
		registry.Close()
		table.Clear()
		return nil
	})

	log.Info().
		Int("monitors", registry.Count()).
		Str("api", "http://"+addr+"/api").
		Msg("FocusVibrance is running, press Ctrl+C to stop")

	return g.Wait()
}
