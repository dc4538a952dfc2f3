// Package config holds the runtime configuration of jsh, read from the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration.
type Config struct {
	Shell   ShellConfig
	Store   StoreConfig
	Logging LogConfig
}

// ShellConfig holds interpreter and job control settings.
type ShellConfig struct {
	HistoryMax int `envconfig:"JSH_HISTORY_MAX" default:"500"`
	// Number of items a pipe holds before its writer blocks.
	PipeBuffer int `envconfig:"JSH_PIPE_BUFFER" default:"10000"`
	// Lower bound on the interval of poll.
	PollMin time.Duration `envconfig:"JSH_POLL_MIN" default:"500ms"`
	Home    string        `envconfig:"JSH_HOME" default:"/home"`
	// Whether background jobs started before the profile finishes begin
	// suspended.
	SpawnBgPaused bool `envconfig:"JSH_SPAWN_BG_PAUSED" default:"false"`
	// File whose content becomes the PROFILE variable of new sessions.
	ProfileFile string `envconfig:"JSH_PROFILE" default:""`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path of the bbolt database. Empty means an in-memory store.
	DBPath string `envconfig:"JSH_DB" default:""`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `envconfig:"JSH_LOG_LEVEL" default:"info"`
	File  string `envconfig:"JSH_LOG_FILE" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			HistoryMax: 500,
			PipeBuffer: 10000,
			PollMin:    500 * time.Millisecond,
			Home:       "/home",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
