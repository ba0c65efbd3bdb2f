// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Scheduler modes selecting which Scheduler implementation a deployment runs.
const (
	SchedulerModeQueue = "queue"
	SchedulerModeTimer = "timer"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Lottery   LotteryConfig   `mapstructure:"lottery"`
	Streak    StreakConfig    `mapstructure:"streak"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// LedgerConfig controls how the deterministic base balance is derived from
// membership age. Displayed balance = floor + per-day rate * whole days of
// membership + stored offset.
type LedgerConfig struct {
	BaseFloor  int64 `mapstructure:"base_floor"`
	BasePerDay int64 `mapstructure:"base_per_day"`
}

// LotteryConfig holds timed wager game configuration.
type LotteryConfig struct {
	JoinWindow    time.Duration `mapstructure:"join_window"`
	SchedulerMode string        `mapstructure:"scheduler_mode"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// StreakConfig holds escalating-risk game configuration.
type StreakConfig struct {
	MinRejoinPlayers int `mapstructure:"min_rejoin_players"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, LOTTERY_JOIN_WINDOW
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Lottery.SchedulerMode != SchedulerModeQueue && cfg.Lottery.SchedulerMode != SchedulerModeTimer {
		return nil, fmt.Errorf("unknown scheduler mode %q", cfg.Lottery.SchedulerMode)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lotterybot")
	v.SetDefault("database.name", "lotterybot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Ledger defaults
	v.SetDefault("ledger.base_floor", 100)
	v.SetDefault("ledger.base_per_day", 10)

	// Lottery defaults
	v.SetDefault("lottery.join_window", "120s")
	v.SetDefault("lottery.scheduler_mode", SchedulerModeQueue)
	v.SetDefault("lottery.poll_interval", "5s")

	// Streak defaults
	v.SetDefault("streak.min_rejoin_players", 2)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
