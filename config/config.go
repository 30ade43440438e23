package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Property       PropertyConfig       `yaml:"property"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Push           PushConfig           `yaml:"push"`
	WorkerPool     WorkerPoolConfig     `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the housekeeping notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys used to notify housekeeping devices.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
	EnableRangeIndex       bool   `yaml:"enable_range_index"`
}

// PropertyConfig carries the property-level inputs the core consumes:
// the local timezone and the flat rates used when posting charges.
type PropertyConfig struct {
	Timezone                 string          `yaml:"timezone"`
	RoomTaxRate              decimal.Decimal `yaml:"-"`
	DefaultTaxRate           decimal.Decimal `yaml:"-"`
	DefaultServiceChargeRate decimal.Decimal `yaml:"-"`

	RawRoomTaxRate              string `yaml:"room_tax_rate"`
	RawDefaultTaxRate           string `yaml:"default_tax_rate"`
	RawDefaultServiceChargeRate string `yaml:"default_service_charge_rate"`

	Location *time.Location `yaml:"-"`
}

// ReconciliationConfig controls the folio repair sweep.
type ReconciliationConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Property.Timezone == "" {
		cfg.Property.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Property.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Property.Timezone, err)
	}
	cfg.Property.Location = loc

	rates := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"property.room_tax_rate", cfg.Property.RawRoomTaxRate, &cfg.Property.RoomTaxRate},
		{"property.default_tax_rate", cfg.Property.RawDefaultTaxRate, &cfg.Property.DefaultTaxRate},
		{"property.default_service_charge_rate", cfg.Property.RawDefaultServiceChargeRate, &cfg.Property.DefaultServiceChargeRate},
	}
	for _, r := range rates {
		if r.raw == "" {
			*r.dst = decimal.Zero
			continue
		}
		v, err := decimal.NewFromString(r.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", r.name, r.raw, err)
		}
		if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be between 0 and 1, got %s", r.name, r.raw)
		}
		*r.dst = v
	}

	if cfg.Reconciliation.Schedule == "" {
		cfg.Reconciliation.Schedule = "@every 5m"
	}
	if cfg.Reconciliation.BatchSize <= 0 {
		cfg.Reconciliation.BatchSize = 100
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
