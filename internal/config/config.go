// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type LedgerConfig struct {
	WalletURL       string        `yaml:"wallet_url"`
	SubscriptionURL string        `yaml:"subscription_url"`
	Timeout         time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ReconcilerConfig carries the protocol knobs the source hardcoded. Their
// correct values depend on gateway latency, so they are inputs here.
type ReconcilerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // fixed status-poll interval
	GraceWindow  time.Duration `yaml:"grace_window"`  // tolerance past expiry before a restored record is unrecoverable
}

type WebConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"` // exchanged for a session token
	JWTSecret    string        `yaml:"jwt_secret"`
	SecureCookie bool          `yaml:"secure_cookie"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Web        WebConfig        `yaml:"web"`
	Runtime    RuntimeConfig    `yaml:"-"`
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
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Ledger.Timeout <= 0 {
		cfg.Ledger.Timeout = 15 * time.Second
	}
	if cfg.Reconciler.PollInterval <= 0 {
		cfg.Reconciler.PollInterval = 3 * time.Second
	}
	if cfg.Reconciler.GraceWindow <= 0 {
		cfg.Reconciler.GraceWindow = 10 * time.Minute
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.SessionTTL <= 0 {
		cfg.Web.SessionTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Gateway.BaseURL == "" {
		return nil, errors.New("gateway.base_url is required")
	}
	if cfg.Ledger.WalletURL == "" || cfg.Ledger.SubscriptionURL == "" {
		return nil, errors.New("ledger.wallet_url and ledger.subscription_url are required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
