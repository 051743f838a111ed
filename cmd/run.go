package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/config"
	"github.com/bnema/meeting-alertd/internal/logger"
	"github.com/bnema/meeting-alertd/internal/notify"
	"github.com/bnema/meeting-alertd/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the alert daemon",
	Long: `Start the recurring fetch and alert-check tasks and keep them running
until interrupted.

SIGHUP tears the recurring tasks down and recreates them; useful after a
system sleep/wake, when a fixed-rate timer may be in an undefined catch-up
state.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mgr, err := newTokenManager(true)
	if err != nil {
		return err
	}

	source := calendar.NewGoogleSource(mgr)
	dispatcher, tray := buildDispatcher(cfg)

	// The UI-owning loop this daemon stands in for: drain tray updates on
	// their own goroutine, never from the fan-out.
	go func() {
		for update := range tray.Updates() {
			logger.Info("tray update",
				"title", update.Title,
				"events", update.EventCount,
				"at", update.At)
		}
	}()

	sched := scheduler.New(mgr, source, dispatcher, func() (*config.Config, error) {
		return config.Load(cfgFile)
	})

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigs {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("SIGHUP received, restarting recurring tasks")
			if err := sched.Restart(ctx); err != nil {
				logger.Error("scheduler restart failed", "error", err)
				return err
			}
		default:
			logger.Info("shutting down", "signal", sig.String())
			return nil
		}
	}
	return nil
}

// buildDispatcher assembles the enabled channels and the banner-then-flash
// ordering hint.
func buildDispatcher(cfg *config.Config) (*notify.Dispatcher, *notify.Tray) {
	tray := notify.NewTray()

	var channels []notify.Channel
	var banner *notify.Banner
	var flash *notify.Flash

	if cfg.Channels.Banner {
		banner = notify.NewBanner()
		channels = append(channels, banner)
	}
	if cfg.Channels.Sound {
		channels = append(channels, notify.NewSound(cfg.Channels.SoundFile))
	}
	if cfg.Channels.Tray {
		channels = append(channels, tray)
	}
	if cfg.Channels.Flash {
		flash = notify.NewFlash(nil)
		channels = append(channels, flash)
	}

	d := notify.NewDispatcher(channels...)
	if banner != nil && flash != nil {
		d.Sequence(banner, flash)
	}
	return d, tray
}
