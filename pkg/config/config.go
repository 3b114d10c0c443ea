package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Storage     StorageConfig     `yaml:"storage"`
	Broker      BrokerConfig      `yaml:"broker"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Log         LogConfig         `yaml:"log"`
}

type GatewayConfig struct {
	Host      string          `yaml:"host" env:"PICOCRUD_GATEWAY_HOST"`
	Port      int             `yaml:"port" env:"PICOCRUD_GATEWAY_PORT"`
	APIKey    string          `yaml:"api_key" env:"PICOCRUD_API_KEY"`
	JWTSecret string          `yaml:"jwt_secret" env:"PICOCRUD_JWT_SECRET"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Addr returns host:port for net.Listen.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"PICOCRUD_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"PICOCRUD_RATE_LIMIT_BURST"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled" env:"PICOCRUD_GRPC_ENABLED"`
	Addr    string `yaml:"addr" env:"PICOCRUD_GRPC_ADDR"`
}

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver string `yaml:"driver" env:"PICOCRUD_STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"PICOCRUD_STORAGE_DSN"`
	Dir    string `yaml:"dir" env:"PICOCRUD_STORAGE_DIR"`
}

type BrokerConfig struct {
	Enabled   bool   `yaml:"enabled" env:"PICOCRUD_BROKER_ENABLED"`
	RedisAddr string `yaml:"redis_addr" env:"PICOCRUD_REDIS_ADDR"`
	Channel   string `yaml:"channel" env:"PICOCRUD_BROKER_CHANNEL"`
}

type MaintenanceConfig struct {
	// Schedule is a cron expression; empty disables the job.
	Schedule string `yaml:"schedule" env:"PICOCRUD_MAINTENANCE_SCHEDULE"`
}

type LogConfig struct {
	Mode  string `yaml:"mode" env:"PICOCRUD_LOG_MODE"`
	Level string `yaml:"level" env:"PICOCRUD_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:      "127.0.0.1",
			Port:      18800,
			RateLimit: RateLimitConfig{RPS: 50, Burst: 100},
		},
		GRPC: GRPCConfig{Addr: "127.0.0.1:18801"},
		Storage: StorageConfig{
			Driver: DriverFile,
			Dir:    "data",
		},
		Broker: BrokerConfig{
			RedisAddr: "127.0.0.1:6379",
			Channel:   "picocrud.commands",
		},
		Log: LogConfig{Mode: "dev", Level: "info"},
	}
}

// Load reads path (if non-empty), then a .env file next to the working
// directory, then PICOCRUD_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port))
	}
	switch strings.ToLower(c.Storage.Driver) {
	case DriverFile:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the file driver"))
		}
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Broker.Enabled && (c.Broker.RedisAddr == "" || c.Broker.Channel == "") {
		errs = append(errs, errors.New("broker.redis_addr and broker.channel are required when the broker is enabled"))
	}
	if c.Maintenance.Schedule != "" {
		gron := gronx.New()
		if !gron.IsValid(c.Maintenance.Schedule) {
			errs = append(errs, fmt.Errorf("invalid maintenance.schedule %q", c.Maintenance.Schedule))
		}
	}
	if c.Gateway.RateLimit.RPS < 0 || c.Gateway.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("gateway.rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}
