// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/openlotto/drawd/internal/lottery"
)

// Config is the root service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Lottery   LotteryConfig   `yaml:"lottery"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds token validation and rate limiting settings.
type AuthConfig struct {
	Secret            string `yaml:"secret"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	Burst             int    `yaml:"burst"`
}

// StorageConfig selects the draw ledger backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // "memory" or "postgres"
	PostgresDSN string `yaml:"postgres_dsn"`
	Migrate     bool   `yaml:"migrate"`
}

// RedisConfig holds the optional status cache settings.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// LotteryConfig holds the draw parameters and trusted identities.
type LotteryConfig struct {
	TicketPrice        int64         `yaml:"ticket_price"`
	HouseFeePercent    int64         `yaml:"house_fee_percent"`
	WindowDuration     time.Duration `yaml:"window_duration"`
	MainCount          int           `yaml:"main_count"`
	MainMax            int           `yaml:"main_max"`
	BonusCount         int           `yaml:"bonus_count"`
	BonusMax           int           `yaml:"bonus_max"`
	OperatorID         string        `yaml:"operator_id"`
	RandomnessSourceID string        `yaml:"randomness_source_id"`
	PotAccount         string        `yaml:"pot_account"`
}

// SchedulerConfig holds the automatic draw close settings.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Storage: StorageConfig{
			Driver:  "memory",
			Migrate: true,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			StatusTTL: 2 * time.Second,
		},
		Lottery: LotteryConfig{
			TicketPrice:     lottery.DefaultTicketPrice,
			HouseFeePercent: lottery.DefaultHouseFeePercent,
			WindowDuration:  lottery.DefaultWindowDuration,
			MainCount:       lottery.DefaultMainCount,
			MainMax:         lottery.DefaultMainMax,
			BonusCount:      lottery.DefaultBonusCount,
			BonusMax:        lottery.DefaultBonusMax,
			PotAccount:      lottery.DefaultPotAccount,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file at path (optional), then applies
// environment overrides. A .env file in the working directory is loaded first
// if present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("DRAWD_SERVER_ADDR", &cfg.Server.Addr)
	envString("DRAWD_AUTH_SECRET", &cfg.Auth.Secret)
	envString("DRAWD_STORAGE_DRIVER", &cfg.Storage.Driver)
	envString("DRAWD_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	envBool("DRAWD_MIGRATE", &cfg.Storage.Migrate)
	envBool("DRAWD_REDIS_ENABLED", &cfg.Redis.Enabled)
	envString("DRAWD_REDIS_ADDR", &cfg.Redis.Addr)
	envString("DRAWD_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt64("DRAWD_TICKET_PRICE", &cfg.Lottery.TicketPrice)
	envInt64("DRAWD_HOUSE_FEE_PERCENT", &cfg.Lottery.HouseFeePercent)
	envDuration("DRAWD_WINDOW_DURATION", &cfg.Lottery.WindowDuration)
	envString("DRAWD_OPERATOR_ID", &cfg.Lottery.OperatorID)
	envString("DRAWD_RANDOMNESS_SOURCE_ID", &cfg.Lottery.RandomnessSourceID)
	envString("DRAWD_POT_ACCOUNT", &cfg.Lottery.PotAccount)
	envBool("DRAWD_SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	envString("DRAWD_SCHEDULER_SCHEDULE", &cfg.Scheduler.Schedule)
	envString("DRAWD_LOG_LEVEL", &cfg.Log.Level)
	envString("DRAWD_LOG_FORMAT", &cfg.Log.Format)
}

// Validate checks the configuration for completeness.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres driver requires a DSN")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if c.Lottery.OperatorID == "" {
		return fmt.Errorf("operator identity is required")
	}
	if c.Lottery.RandomnessSourceID == "" {
		return fmt.Errorf("randomness source identity is required")
	}
	return nil
}

// Params converts the lottery section into engine parameters.
func (c Config) Params() lottery.Params {
	return lottery.Params{
		TicketPrice:        c.Lottery.TicketPrice,
		HouseFeePercent:    c.Lottery.HouseFeePercent,
		WindowDuration:     c.Lottery.WindowDuration,
		MainCount:          c.Lottery.MainCount,
		MainMax:            c.Lottery.MainMax,
		BonusCount:         c.Lottery.BonusCount,
		BonusMax:           c.Lottery.BonusMax,
		OperatorID:         c.Lottery.OperatorID,
		RandomnessSourceID: c.Lottery.RandomnessSourceID,
		PotAccount:         c.Lottery.PotAccount,
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
