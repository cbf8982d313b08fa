package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ferrisk/runwatch/errors"
)

// Load reads the runwatch configuration using Viper.
//
// Precedence (lowest to highest): defaults < ~/.runwatch/runwatch.toml <
// ./runwatch.toml < environment variables (RUNWATCH_ prefix, dots become
// underscores, e.g. RUNWATCH_TELEGRAM_TOKEN).
func Load() (*Config, error) {
	return LoadWithViper(initViper())
}

// LoadWithViper loads configuration from a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	return LoadWithViper(v)
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("RUNWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)

	// Merge config files in precedence order: user < project. Merged at the
	// config level, so environment variables still override file values.
	home, _ := os.UserHomeDir()
	for _, path := range []string{
		filepath.Join(home, ".runwatch", "runwatch.toml"),
		"runwatch.toml",
	} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		fv := viper.New()
		fv.SetConfigFile(path)
		fv.SetConfigType("toml")
		if err := fv.ReadInConfig(); err != nil {
			continue
		}
		if err := v.MergeConfigMap(fv.AllSettings()); err != nil {
			continue
		}
	}

	return v
}

// SetDefaults installs default values on a Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("repair_mode", ModePerRun)
	v.SetDefault("schedule_times", []string{"09:00", "12:00", "15:00", "18:42"})
	v.SetDefault("platform.timeout", 30*time.Second)
	v.SetDefault("platform.rate_limit", 5.0)
	v.SetDefault("platform.burst", 10)
}

// BindSensitiveEnvVars binds credential keys explicitly so they resolve from
// the environment even when no config file mentions them.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("telegram.token", "RUNWATCH_TELEGRAM_TOKEN")
	v.BindEnv("telegram.chat_id", "RUNWATCH_TELEGRAM_CHAT_ID")
	v.BindEnv("databricks.host", "RUNWATCH_DATABRICKS_HOST")
	v.BindEnv("databricks.token", "RUNWATCH_DATABRICKS_TOKEN")
	v.BindEnv("owner", "RUNWATCH_OWNER")
}
