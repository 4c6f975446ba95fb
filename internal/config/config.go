package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Values come from the optional
// YAML file first, then FOCUS_* environment variables override field by
// field, so containers can tune a shared base file without editing it.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Timers   TimersConfig   `yaml:"timers"`
	Chat     ChatConfig     `yaml:"chat"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GatewayConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts durations in time.ParseDuration notation ("24h").
func (a *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.JWTSecret != "" {
		a.JWTSecret = raw.JWTSecret
	}
	return setDuration(&a.TokenTTL, raw.TokenTTL)
}

type TimersConfig struct {
	SweepInterval     time.Duration `yaml:"-"`
	TimerSyncInterval time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts intervals in time.ParseDuration notation ("5s").
func (t *TimersConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		SweepInterval     string `yaml:"sweep_interval"`
		TimerSyncInterval string `yaml:"timer_sync_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := setDuration(&t.SweepInterval, raw.SweepInterval); err != nil {
		return err
	}
	return setDuration(&t.TimerSyncInterval, raw.TimerSyncInterval)
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*dst = d
	return nil
}

type ChatConfig struct {
	MaxMessageLen int `yaml:"max_message_len"`
}

// Default returns the configuration used when no file or env overrides
// are present.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Gateway: GatewayConfig{Addr: ":8081"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "focus",
			SSLMode:  "disable",
		},
		NATS: NATSConfig{URL: "nats://localhost:4222"},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Timers: TimersConfig{
			SweepInterval:     time.Second,
			TimerSyncInterval: 10 * time.Second,
		},
		Chat: ChatConfig{MaxMessageLen: 500},
	}
}

// Load builds the configuration from the file at path (skipped when path is
// empty or missing) plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if cfg.Auth.JWTSecret == "" {
		return cfg, fmt.Errorf("auth.jwt_secret is required (FOCUS_JWT_SECRET)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("FOCUS_HTTP_ADDR", c.HTTP.Addr)
	c.Gateway.Addr = getEnv("FOCUS_GATEWAY_ADDR", c.Gateway.Addr)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Auth.JWTSecret = getEnv("FOCUS_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvAsDuration("FOCUS_TOKEN_TTL", c.Auth.TokenTTL)

	c.Timers.SweepInterval = getEnvAsDuration("FOCUS_SWEEP_INTERVAL", c.Timers.SweepInterval)
	c.Timers.TimerSyncInterval = getEnvAsDuration("FOCUS_TIMER_SYNC_INTERVAL", c.Timers.TimerSyncInterval)

	c.Chat.MaxMessageLen = getEnvAsInt("FOCUS_CHAT_MAX_LEN", c.Chat.MaxMessageLen)
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
