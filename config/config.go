package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when neither --config nor CONFIG_PATH is set.
	DefaultConfigPath = "./config/config.yaml"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	errDSNRequired   = errors.New("database.dsn must be provided")
	errUnknownDriver = errors.New("database.driver must be postgres or sqlite")
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Accrual  AccrualConfig  `yaml:"accrual"`
	Push     PushConfig     `yaml:"push"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AccrualConfig controls the daily usage accrual run.
type AccrualConfig struct {
	Enabled            bool           `yaml:"enabled"`
	DailyAt            string         `yaml:"daily_at"`
	Timezone           string         `yaml:"timezone"`
	RunOnStart         bool           `yaml:"run_on_start"`
	Workers            int            `yaml:"workers"`
	MaxConflictRetries int            `yaml:"max_conflict_retries"`
	Location           *time.Location `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// MQTTConfig configures publishing of alarm triggers to an MQTT broker.
type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	QoS            byte   `yaml:"qos"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the publish/connect timeout.
func (m MQTTConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration from the given path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates the configuration in place.
func (c *Config) Normalize() error {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 30
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		return fmt.Errorf("%w, got %q", errUnknownDriver, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errDSNRequired
	}

	if c.Accrual.DailyAt == "" {
		c.Accrual.DailyAt = "00:05"
	}
	if _, err := time.Parse("15:04", c.Accrual.DailyAt); err != nil {
		return fmt.Errorf("accrual.daily_at %q must be HH:MM: %w", c.Accrual.DailyAt, err)
	}
	if c.Accrual.Timezone == "" {
		c.Accrual.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(c.Accrual.Timezone)
	if err != nil {
		return fmt.Errorf("accrual.timezone %q: %w", c.Accrual.Timezone, err)
	}
	c.Accrual.Location = loc
	if c.Accrual.Workers <= 0 {
		c.Accrual.Workers = 4
	}
	if c.Accrual.MaxConflictRetries <= 0 {
		c.Accrual.MaxConflictRetries = 3
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "hourmeter/alarms"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "hourmeterd"
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.TimeoutSeconds <= 0 {
		c.MQTT.TimeoutSeconds = 5
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker must be provided when mqtt is enabled")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}
