// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"paybridge/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// WebhookMaxBody bounds webhook payload size in bytes.
	WebhookMaxBody int64 `yaml:"webhook_max_body"`
	// WebhookRateLimit caps deliveries per provider and tenant per minute.
	// Zero disables the limit.
	WebhookRateLimit int           `yaml:"webhook_rate_limit"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

type AdminConfig struct {
	// APIKey authenticates merchant API calls (Authorization: Bearer).
	APIKey string `yaml:"api_key"`
	// JWTSecret signs admin session tokens for the ops endpoints.
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymentsConfig struct {
	// Environment selects test or live provider endpoints.
	Environment string `yaml:"environment"`
	// FallbackOrder lists providers tried when the preferred one is down or
	// unconfigured. Empty entries and unknown names are rejected at load.
	FallbackOrder []string `yaml:"fallback_order"`
	// TokenRefreshWindow is how long before expiry a cached gateway token is
	// refreshed opportunistically.
	TokenRefreshWindow time.Duration `yaml:"token_refresh_window"`
	// IdempotencyTTL is the retention window for idempotency records.
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	// GatewayTimeout bounds a single outbound provider call.
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchLimit int           `yaml:"batch_limit"`
}

type Config struct {
	App        string           `yaml:"app"` // env var prefix, e.g. PAYBRIDGE
	Server     ServerConfig     `yaml:"server"`
	Admin      AdminConfig      `yaml:"admin"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.App == "" {
		cfg.App = "PAYBRIDGE"
	}
	cfg.App = strings.ToUpper(cfg.App)
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.WebhookMaxBody <= 0 {
		cfg.Server.WebhookMaxBody = 1 << 20 // 1 MiB
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Payments.Environment == "" {
		cfg.Payments.Environment = string(model.EnvTest)
	}
	if cfg.Payments.TokenRefreshWindow <= 0 {
		cfg.Payments.TokenRefreshWindow = 4 * time.Minute
	}
	if cfg.Payments.IdempotencyTTL <= 0 {
		cfg.Payments.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Payments.GatewayTimeout <= 0 {
		cfg.Payments.GatewayTimeout = 30 * time.Second
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.BatchLimit <= 0 {
		cfg.Reconciler.BatchLimit = 200
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if _, ok := model.ParseEnvironment(cfg.Payments.Environment); !ok {
		return nil, fmt.Errorf("payments.environment %q is not test|live", cfg.Payments.Environment)
	}
	for _, name := range cfg.Payments.FallbackOrder {
		if _, ok := model.ParseProvider(name); !ok {
			return nil, fmt.Errorf("payments.fallback_order: unknown provider %q", name)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Env returns the parsed payments environment; LoadConfig already validated it.
func (c *Config) Env() model.Environment {
	env, _ := model.ParseEnvironment(c.Payments.Environment)
	return env
}

// Fallbacks returns the configured fallback order as typed providers.
func (c *Config) Fallbacks() []model.Provider {
	out := make([]model.Provider, 0, len(c.Payments.FallbackOrder))
	for _, name := range c.Payments.FallbackOrder {
		if p, ok := model.ParseProvider(name); ok {
			out = append(out, p)
		}
	}
	return out
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
