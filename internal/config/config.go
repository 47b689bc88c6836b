// Package config handles configuration loading for the orchestrator.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all orchestrator configuration.
type Config struct {
	Loop      LoopConfig      `mapstructure:"loop"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	Router    RouterConfig    `mapstructure:"router"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	DB        DBConfig        `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
}

// LoopConfig holds orchestration loop settings.
type LoopConfig struct {
	// PollInterval is the tick period.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MaxIterations stops the loop after this many ticks; 0 = unbounded.
	MaxIterations int `mapstructure:"max_iterations"`
	// AutoAssign enables pulling ready tasks each tick.
	AutoAssign bool `mapstructure:"auto_assign"`
	// DeadlockThreshold is how long to tolerate zero progress while work
	// is outstanding before warning.
	DeadlockThreshold time.Duration `mapstructure:"deadlock_threshold"`
}

// SchedulerConfig holds task store scheduling settings.
type SchedulerConfig struct {
	// MaxConcurrent caps how many tasks may run at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// RecoveryConfig holds failure recovery settings.
type RecoveryConfig struct {
	// MaxRetries is the retry budget per task.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBase is the first retry's backoff window.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// RouterConfig holds assignment router settings.
type RouterConfig struct {
	// Capacity is the number of agent slots.
	Capacity int `mapstructure:"capacity"`
	// AckTimeout is how long an assignment may go unacknowledged.
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
}

// NotifyConfig holds escalation notification settings.
type NotifyConfig struct {
	// WebhookURL receives escalation events; empty disables delivery.
	WebhookURL string `mapstructure:"webhook_url"`
}

// DBConfig holds ticket database settings.
type DBConfig struct {
	// Path is the SQLite database file for tickets.
	Path string `mapstructure:"path"`
}

// LogConfig holds debug log settings.
type LogConfig struct {
	// Path is the debug log file; empty disables file logging.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ORCHESTRATOR_*)
// 2. Project config (.orchestrator.yaml in current directory or parent)
// 3. User config (~/.config/orchestrator/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("notify.webhook_url", "ORCHESTRATOR_WEBHOOK_URL")
	v.BindEnv("db.path", "ORCHESTRATOR_DB_PATH")
	v.BindEnv("log.path", "ORCHESTRATOR_LOG_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Notify.WebhookURL = os.ExpandEnv(cfg.Notify.WebhookURL)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Notify.WebhookURL = os.ExpandEnv(cfg.Notify.WebhookURL)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("loop.poll_interval", cfg.Loop.PollInterval.String())
	v.Set("loop.max_iterations", cfg.Loop.MaxIterations)
	v.Set("loop.auto_assign", cfg.Loop.AutoAssign)
	v.Set("loop.deadlock_threshold", cfg.Loop.DeadlockThreshold.String())
	v.Set("scheduler.max_concurrent", cfg.Scheduler.MaxConcurrent)
	v.Set("recovery.max_retries", cfg.Recovery.MaxRetries)
	v.Set("recovery.backoff_base", cfg.Recovery.BackoffBase.String())
	v.Set("router.capacity", cfg.Router.Capacity)
	v.Set("router.ack_timeout", cfg.Router.AckTimeout.String())
	v.Set("notify.webhook_url", cfg.Notify.WebhookURL)
	v.Set("db.path", cfg.DB.Path)
	v.Set("log.path", cfg.Log.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("loop.poll_interval", "1s")
	v.SetDefault("loop.max_iterations", 0)
	v.SetDefault("loop.auto_assign", true)
	v.SetDefault("loop.deadlock_threshold", "2m")

	v.SetDefault("scheduler.max_concurrent", 4)

	v.SetDefault("recovery.max_retries", 3)
	v.SetDefault("recovery.backoff_base", "5s")

	v.SetDefault("router.capacity", 4)
	v.SetDefault("router.ack_timeout", "30s")

	v.SetDefault("notify.webhook_url", "")

	v.SetDefault("db.path", ".orchestrator/tickets.db")
	v.SetDefault("log.path", "")
}

// getUserConfigDir returns the XDG config directory for the orchestrator.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "orchestrator")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "orchestrator")
	}
	return filepath.Join(home, ".config", "orchestrator")
}

// findProjectConfig searches for .orchestrator.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".orchestrator.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Loop: LoopConfig{
			PollInterval:      time.Second,
			MaxIterations:     0,
			AutoAssign:        true,
			DeadlockThreshold: 2 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 4,
		},
		Recovery: RecoveryConfig{
			MaxRetries:  3,
			BackoffBase: 5 * time.Second,
		},
		Router: RouterConfig{
			Capacity:   4,
			AckTimeout: 30 * time.Second,
		},
		DB: DBConfig{
			Path: ".orchestrator/tickets.db",
		},
	}
}
