package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Session SessionConfig `mapstructure:"session"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
	MCPPath   string `mapstructure:"mcp_path"`
}

// EngineConfig holds execution engine configuration
type EngineConfig struct {
	TimeoutSec     int     `mapstructure:"timeout_sec"`
	MaxSteps       uint64  `mapstructure:"max_steps"`
	FigureWidthIn  float64 `mapstructure:"figure_width_in"`
	FigureHeightIn float64 `mapstructure:"figure_height_in"`
}

// SessionConfig holds namespace lifecycle configuration
type SessionConfig struct {
	Strategy      string        `mapstructure:"strategy"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StoreConfig holds notebook store configuration
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Badger   BadgerConfig   `mapstructure:"badger"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// BadgerConfig holds the embedded store configuration
type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// PostgresConfig holds the PostgreSQL store configuration
type PostgresConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Supported enumerations
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"

	StrategyMemory  = "memory"
	StrategyDurable = "durable"

	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// New loads and validates the application configuration
func New() (*Config, error) {
	// A missing .env file is not an error; the process environment still applies.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CELLBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", TransportHTTP)
	v.SetDefault("server.http_port", 5000)
	v.SetDefault("server.mcp_path", "/mcp")

	v.SetDefault("engine.timeout_sec", 10)
	v.SetDefault("engine.max_steps", 0)
	v.SetDefault("engine.figure_width_in", 6.4)
	v.SetDefault("engine.figure_height_in", 4.8)

	v.SetDefault("session.strategy", StrategyDurable)
	v.SetDefault("session.timeout", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)

	v.SetDefault("store.backend", BackendBadger)
	v.SetDefault("store.badger.path", "./data/notebooks")
	v.SetDefault("store.badger.in_memory", false)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.migrate_on_start", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != TransportHTTP && c.Server.Transport != TransportStdio {
		return fmt.Errorf("invalid server.transport: %s, must be 'http' or 'stdio'", c.Server.Transport)
	}

	if c.Server.Transport == TransportHTTP && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	if c.Engine.TimeoutSec <= 0 {
		return fmt.Errorf("engine.timeout_sec must be positive, got: %d", c.Engine.TimeoutSec)
	}

	if c.Engine.FigureWidthIn <= 0 || c.Engine.FigureHeightIn <= 0 {
		return fmt.Errorf("engine figure size must be positive, got: %gx%g", c.Engine.FigureWidthIn, c.Engine.FigureHeightIn)
	}

	switch c.Session.Strategy {
	case StrategyMemory:
		if c.Session.Timeout <= 0 {
			return fmt.Errorf("session.timeout must be positive, got: %s", c.Session.Timeout)
		}
		if c.Session.SweepInterval <= 0 {
			return fmt.Errorf("session.sweep_interval must be positive, got: %s", c.Session.SweepInterval)
		}
	case StrategyDurable:
	default:
		return fmt.Errorf("invalid session.strategy: %s, must be 'memory' or 'durable'", c.Session.Strategy)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendBadger:
		if !c.Store.Badger.InMemory && c.Store.Badger.Path == "" {
			return fmt.Errorf("store.badger.path is required unless store.badger.in_memory is set")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported store.backend: %s", c.Store.Backend)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSec) * time.Second
}
