// Package config holds the process-wide runwatch configuration.
//
// The configuration is loaded exactly once before the worker loop starts and is
// never mutated afterwards. Anything invalid is fatal at start-up; the daemon
// must not begin half-configured.
package config

import (
	"time"

	"github.com/ferrisk/runwatch/errors"
)

// Repair flow modes. Exactly one is active per deployment; the formatter never
// decides this at runtime.
const (
	// ModeBulk offers a single confirm/cancel pair covering every failed run.
	ModeBulk = "bulk"
	// ModePerRun offers one repair button per failed run.
	ModePerRun = "perrun"
)

// TelegramConfig carries chat transport credentials and the fixed destination.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// DatabricksConfig carries job platform endpoint and credential.
type DatabricksConfig struct {
	Host  string `mapstructure:"host"`
	Token string `mapstructure:"token"`
}

// PlatformConfig bounds platform I/O. Calls exceeding Timeout surface as
// transient failures, never indefinite blocking.
type PlatformConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // calls per second
	Burst     int           `mapstructure:"burst"`
}

// Config is the immutable runwatch configuration.
type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Databricks DatabricksConfig `mapstructure:"databricks"`

	// Owner is matched against the job creator, case-sensitive and exact.
	// No fuzzy matching: a loose match could mass-repair someone else's jobs.
	Owner string `mapstructure:"owner"`

	RepairMode string `mapstructure:"repair_mode"`

	// ScheduleTimes are wall-clock "HH:MM" times, local to the deployment,
	// at which the detect-and-report cycle runs unconditionally.
	ScheduleTimes []string `mapstructure:"schedule_times"`

	Platform PlatformConfig `mapstructure:"platform"`
}

// Validate checks that every field required to run the loop is present and
// well-formed.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.NewConfigError("telegram.token is required (RUNWATCH_TELEGRAM_TOKEN)")
	}
	if c.Telegram.ChatID == 0 {
		return errors.NewConfigError("telegram.chat_id is required (RUNWATCH_TELEGRAM_CHAT_ID)")
	}
	if c.Databricks.Host == "" {
		return errors.NewConfigError("databricks.host is required (RUNWATCH_DATABRICKS_HOST)")
	}
	if c.Databricks.Token == "" {
		return errors.NewConfigError("databricks.token is required (RUNWATCH_DATABRICKS_TOKEN)")
	}
	if c.Owner == "" {
		return errors.NewConfigError("owner is required (RUNWATCH_OWNER)")
	}
	if c.RepairMode != ModeBulk && c.RepairMode != ModePerRun {
		return errors.NewConfigError("repair_mode must be %q or %q, got %q", ModeBulk, ModePerRun, c.RepairMode)
	}
	if len(c.ScheduleTimes) == 0 {
		return errors.NewConfigError("schedule_times must not be empty")
	}
	for _, ts := range c.ScheduleTimes {
		if _, err := time.Parse("15:04", ts); err != nil {
			return errors.NewConfigError("schedule_times entry %q is not HH:MM", ts)
		}
	}
	if c.Platform.Timeout <= 0 {
		return errors.NewConfigError("platform.timeout must be positive")
	}
	if c.Platform.RateLimit <= 0 || c.Platform.Burst <= 0 {
		return errors.NewConfigError("platform.rate_limit and platform.burst must be positive")
	}
	return nil
}
