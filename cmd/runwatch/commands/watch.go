package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ferrisk/runwatch/bot"
	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/daemon"
	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/logger"
	"github.com/ferrisk/runwatch/platform"
	"github.com/ferrisk/runwatch/schedule"
)

// WatchCmd starts the watcher daemon.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the watcher daemon",
	Long: `Start the watcher daemon in foreground mode.

The daemon will:
- Run one detect-and-report cycle immediately
- Run further cycles at the configured times of day
- Long-poll Telegram for commands (/check, /hello) and repair buttons
- Run until interrupted (Ctrl+C)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Logger

		// Configuration errors are fatal here, before anything starts.
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "refusing to start")
		}

		client, err := platform.NewDatabricks(cfg, log)
		if err != nil {
			return errors.Wrap(err, "refusing to start")
		}

		tg, err := bot.New(cfg, log)
		if err != nil {
			return errors.Wrap(err, "refusing to start")
		}

		times, err := schedule.ParseTimes(cfg.ScheduleTimes)
		if err != nil {
			return errors.Wrap(err, "refusing to start")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			log.Infow("Shutting down", "signal", sig.String())
			cancel()
		}()

		d := daemon.New(cfg, client, tg, log)

		ticker := schedule.NewTicker(ctx, times, d.Events(), schedule.DefaultTickerConfig(), log)
		ticker.Start()
		defer ticker.Stop()

		go tg.Listen(ctx, d.Events())

		log.Infow("runwatch started",
			"owner", cfg.Owner,
			"mode", cfg.RepairMode,
			"schedule", cfg.ScheduleTimes)
		return d.Run(ctx)
	},
}
