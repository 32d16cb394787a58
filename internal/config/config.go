// Package config provides configuration for the desk processes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

const (
	defaultServerPort         = 8080
	defaultDatabasePath       = "desk.db"
	defaultOrderPollInterval  = 2 * time.Second
	defaultJobPollInterval    = 2 * time.Second
	defaultStatusPollInterval = time.Second
	defaultSubmitTimeout      = 60 * time.Second
)

// Config is the complete application configuration shared by the server and
// worker processes.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Broker      BrokerConfig      `yaml:"broker"`
	Workers     WorkersConfig     `yaml:"workers"`
	Trading     TradingConfig     `yaml:"trading"`
}

// EnvironmentConfig defines the runtime environment.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig defines the HTTP server settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig points at the shared sqlite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BrokerConfig defines the gateway connection. Provider selects a registered
// gateway implementation; "mock" ships in-tree, vendor adapters register
// themselves at init.
type BrokerConfig struct {
	Provider string `yaml:"provider"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	// ClientID must differ per process against the same gateway session.
	ClientID        int `yaml:"client_id"`
	ConnectAttempts int `yaml:"connect_attempts"`
}

// WorkersConfig tunes the two worker loops.
type WorkersConfig struct {
	OrderPollInterval  time.Duration `yaml:"order_poll_interval"`
	JobPollInterval    time.Duration `yaml:"job_poll_interval"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`
	SubmitTimeout      time.Duration `yaml:"submit_timeout"`
}

// TradingConfig carries desk policy.
type TradingConfig struct {
	// MinDaysToExpiry maps symbols to the minimum remaining days a resolved
	// contract must have before submission.
	MinDaysToExpiry map[string]int `yaml:"min_days_to_expiry"`
}

// Load builds the configuration: .env.<mode> dotenv file first (best effort),
// then the YAML file with environment variables expanded, then direct
// environment overrides. Missing broker connection parameters fail the load.
func Load(configPath string) (*Config, error) {
	mode := strings.TrimSpace(os.Getenv("DESK_ENV"))
	if mode == "" {
		mode = "paper"
	}
	// Dotenv files are optional; deployed environments set real variables.
	_ = godotenv.Load(".env." + mode)
	_ = godotenv.Load()

	config := defaults()
	config.Environment.Mode = mode

	if configPath == "" {
		configPath = "config.yaml"
	}
	data, err := os.ReadFile(configPath)
	if err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaults() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Server:      ServerConfig{Port: defaultServerPort},
		Database:    DatabaseConfig{Path: defaultDatabasePath},
		Broker:      BrokerConfig{Provider: "mock", ConnectAttempts: 6},
		Workers: WorkersConfig{
			OrderPollInterval:  defaultOrderPollInterval,
			JobPollInterval:    defaultJobPollInterval,
			StatusPollInterval: defaultStatusPollInterval,
			SubmitTimeout:      defaultSubmitTimeout,
		},
		Trading: TradingConfig{MinDaysToExpiry: map[string]int{}},
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DESK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("DESK_JWT_SECRET"); v != "" {
		config.Server.JWTSecret = v
	}
	if v := os.Getenv("DESK_DATABASE_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("DESK_BROKER_PROVIDER"); v != "" {
		config.Broker.Provider = v
	}
	if v := os.Getenv("DESK_BROKER_HOST"); v != "" {
		config.Broker.Host = v
	}
	if v := os.Getenv("DESK_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Broker.Port = port
		}
	}
	if v := os.Getenv("DESK_BROKER_CLIENT_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			config.Broker.ClientID = id
		}
	}
	if v := os.Getenv("DESK_LOG_LEVEL"); v != "" {
		config.Environment.LogLevel = v
	}
}

// Validate checks the invariants the processes rely on at start.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be paper or live, got %q", c.Environment.Mode)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Broker.Provider == "" {
		return fmt.Errorf("broker.provider is required")
	}
	if c.Broker.Provider != "mock" {
		if c.Broker.Host == "" {
			return fmt.Errorf("broker.host is required (set broker.host or DESK_BROKER_HOST)")
		}
		if c.Broker.Port < 1 || c.Broker.Port > 65535 {
			return fmt.Errorf("broker.port %d out of range (set broker.port or DESK_BROKER_PORT)", c.Broker.Port)
		}
	}
	for symbol, days := range c.Trading.MinDaysToExpiry {
		if days < 0 {
			return fmt.Errorf("trading.min_days_to_expiry[%s] must be >= 0, got %d", symbol, days)
		}
	}
	return nil
}
