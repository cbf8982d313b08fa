package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrisk/runwatch/errors"
)

func validConfig() *Config {
	return &Config{
		Telegram:      TelegramConfig{Token: "123:abc", ChatID: -100123},
		Databricks:    DatabricksConfig{Host: "https://dbc-1234.cloud.databricks.com", Token: "dapi-secret"},
		Owner:         "data-eng@example.com",
		RepairMode:    ModePerRun,
		ScheduleTimes: []string{"09:00", "12:00", "15:00", "18:42"},
		Platform:      PlatformConfig{Timeout: 30 * time.Second, RateLimit: 5, Burst: 10},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsEachMissingField(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing telegram token", func(c *Config) { c.Telegram.Token = "" }},
		{"missing chat id", func(c *Config) { c.Telegram.ChatID = 0 }},
		{"missing databricks host", func(c *Config) { c.Databricks.Host = "" }},
		{"missing databricks token", func(c *Config) { c.Databricks.Token = "" }},
		{"missing owner", func(c *Config) { c.Owner = "" }},
		{"unknown repair mode", func(c *Config) { c.RepairMode = "both" }},
		{"empty schedule", func(c *Config) { c.ScheduleTimes = nil }},
		{"bad schedule time", func(c *Config) { c.ScheduleTimes = []string{"25:61"} }},
		{"zero timeout", func(c *Config) { c.Platform.Timeout = 0 }},
		{"zero rate limit", func(c *Config) { c.Platform.RateLimit = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfig), "expected ErrConfig, got %v", err)
		})
	}
}

func TestLoadWithViperAppliesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("telegram.token", "123:abc")
	v.Set("telegram.chat_id", int64(42))
	v.Set("databricks.host", "https://dbc.example.com")
	v.Set("databricks.token", "dapi-secret")
	v.Set("owner", "someone@example.com")

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, ModePerRun, cfg.RepairMode)
	assert.Equal(t, []string{"09:00", "12:00", "15:00", "18:42"}, cfg.ScheduleTimes)
	assert.Equal(t, 30*time.Second, cfg.Platform.Timeout)
	assert.Equal(t, 5.0, cfg.Platform.RateLimit)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	toml := "owner = \"file-owner@example.com\"\nrepair_mode = \"bulk\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runwatch.toml"), []byte(toml), 0o644))
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("RUNWATCH_OWNER", "env-owner@example.com")

	v := initViper()
	assert.Equal(t, "env-owner@example.com", v.GetString("owner"),
		"environment must beat the config file")
	assert.Equal(t, ModeBulk, v.GetString("repair_mode"),
		"config file must still beat defaults")
}

func TestLoadWithViperRejectsHalfConfigured(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("telegram.token", "123:abc")
	// No chat id, no databricks credentials.

	_, err := LoadWithViper(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}
