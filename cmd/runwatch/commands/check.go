package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/logger"
	"github.com/ferrisk/runwatch/platform"
	"github.com/ferrisk/runwatch/watch"
)

// CheckCmd runs one classification and prints the report without sending
// anything to Telegram. Useful for verifying credentials and the owner filter.
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one failure check and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Logger

		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "refusing to run")
		}

		client, err := platform.NewDatabricks(cfg, log)
		if err != nil {
			return err
		}

		classifier := watch.NewClassifier(client, cfg.Owner, log)
		records, err := classifier.Classify(cmd.Context(), time.Now())
		if err != nil {
			return errors.Wrap(err, "classification failed")
		}

		report := watch.NewFormatter(cfg.RepairMode).Format(&watch.Cycle{ID: "check", Records: records})
		fmt.Println(report.Summary)
		return nil
	},
}
