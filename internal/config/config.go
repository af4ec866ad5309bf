package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant     string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	LockTimeout       time.Duration `mapstructure:"LOCK_TIMEOUT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	EventStream       string        `mapstructure:"EVENT_STREAM"`
	EventStreamMaxLen int64         `mapstructure:"EVENT_STREAM_MAXLEN"`
	WebhookURL        string        `mapstructure:"WEBHOOK_URL"`
	WebhookSecret     string        `mapstructure:"WEBHOOK_SECRET"`
	MetricsEnabled    bool          `mapstructure:"METRICS_ENABLED"`
	WebSocketEnabled  bool          `mapstructure:"WEBSOCKET_ENABLED"`

	// Outbound HL7 v2 ADT feed over MLLP. Disabled when HL7MLLPAddr is empty.
	HL7MLLPAddr          string        `mapstructure:"HL7_MLLP_ADDR"`
	HL7Timeout           time.Duration `mapstructure:"HL7_TIMEOUT"`
	HL7SendingApp        string        `mapstructure:"HL7_SENDING_APP"`
	HL7SendingFacility   string        `mapstructure:"HL7_SENDING_FACILITY"`
	HL7ReceivingApp      string        `mapstructure:"HL7_RECEIVING_APP"`
	HL7ReceivingFacility string        `mapstructure:"HL7_RECEIVING_FACILITY"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS", "LOCK_TIMEOUT", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"REDIS_URL", "EVENT_STREAM", "EVENT_STREAM_MAXLEN", "WEBHOOK_URL", "WEBHOOK_SECRET",
	"METRICS_ENABLED", "WEBSOCKET_ENABLED", "HL7_MLLP_ADDR", "HL7_TIMEOUT", "HL7_SENDING_APP",
	"HL7_SENDING_FACILITY", "HL7_RECEIVING_APP", "HL7_RECEIVING_FACILITY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOCK_TIMEOUT", "5s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("EVENT_STREAM", "adt:events")
	v.SetDefault("EVENT_STREAM_MAXLEN", 100000)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("WEBSOCKET_ENABLED", true)
	v.SetDefault("HL7_TIMEOUT", "10s")
	v.SetDefault("HL7_SENDING_APP", "ADT")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks settings that Load cannot default safely.
func (c *Config) Validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.LockTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed LOCK_TIMEOUT (%s)", c.RequestTimeout, c.LockTimeout)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	if c.RedisURL != "" && c.EventStream == "" {
		return fmt.Errorf("EVENT_STREAM must be set when REDIS_URL is set")
	}
	if c.HL7MLLPAddr != "" {
		if _, _, err := net.SplitHostPort(c.HL7MLLPAddr); err != nil {
			return fmt.Errorf("HL7_MLLP_ADDR must be host:port: %w", err)
		}
		if c.HL7Timeout <= 0 {
			return fmt.Errorf("HL7_TIMEOUT must be positive, got %s", c.HL7Timeout)
		}
	}
	return nil
}
