// Package config loads service configuration from a YAML file and
// DEXCACHE_* environment variables, in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/illmade-knight/go-dexcache/pkg/backend"
	"github.com/illmade-knight/go-dexcache/pkg/pokeapi"
	"github.com/illmade-knight/go-dexcache/pkg/tracing"
	"github.com/illmade-knight/go-dexcache/pkg/warmup"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEXCACHE_"

// Config holds all runtime configuration.
type Config struct {
	LogLevel  string            `yaml:"log_level" env:"LOG_LEVEL"`
	HTTPPort  string            `yaml:"http_port" env:"HTTP_PORT"`
	NamesPath string            `yaml:"names_path" env:"NAMES_PATH"`
	Remote    pokeapi.Config    `yaml:"remote" envPrefix:"REMOTE_"`
	Store     backend.Config    `yaml:"store" envPrefix:"STORE_"`
	TTL       backend.TTLConfig `yaml:"ttl" envPrefix:"TTL_"`
	Warmup    warmup.Config     `yaml:"warmup" envPrefix:"WARMUP_"`
	Tracing   tracing.Config    `yaml:"tracing" envPrefix:"TRACING_"`
}

// Load reads the -config flag from args and delegates to LoadFile.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dexcache", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFile(*configPath)
}

// LoadFile applies defaults, then the file at path (skipped when path is
// empty), then environment overrides, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if !strings.Contains(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel:  "info",
		HTTPPort:  ":8080",
		NamesPath: "pokemon.json",
		Remote: pokeapi.Config{
			BaseURL: pokeapi.DefaultBaseURL,
			Timeout: 10 * time.Second,
		},
		Store: backend.Config{
			Driver:     backend.DriverSQLite,
			SQLitePath: "pokemon_cache.db",
			KeyPrefix:  "dexcache",
			Redis:      backend.RedisConfig{Addr: "localhost:6379"},
		},
		TTL: backend.DefaultTTLs(),
		Warmup: warmup.Config{
			Workers: 4,
		},
		Tracing: tracing.Config{
			Exporter:    tracing.ExporterNone,
			SampleRatio: 1,
		},
	}
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q is not a valid level", c.LogLevel)
	}
	if c.NamesPath == "" {
		return fmt.Errorf("names_path is required")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be greater than 0, got %s", c.Remote.Timeout)
	}
	if c.Remote.RetryMax < 0 {
		return fmt.Errorf("remote.retry_max cannot be negative, got %d", c.Remote.RetryMax)
	}

	switch c.Store.Driver {
	case backend.DriverMemory:
	case backend.DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case backend.DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis driver")
		}
	case backend.DriverFirestore:
		if c.Store.Firestore.ProjectID == "" {
			return fmt.Errorf("store.firestore.project_id is required for the firestore driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, sqlite, redis, firestore, got %q", c.Store.Driver)
	}

	for name, ttl := range map[string]time.Duration{
		"pokemon":   c.TTL.Pokemon,
		"species":   c.TTL.Species,
		"chain":     c.TTL.Chain,
		"movesets":  c.TTL.Movesets,
		"processed": c.TTL.Processed,
	} {
		if ttl <= 0 {
			return fmt.Errorf("ttl.%s must be greater than 0, got %s", name, ttl)
		}
	}

	if c.Warmup.Enabled {
		if c.Warmup.ProjectID == "" {
			return fmt.Errorf("warmup.project_id is required when warmup is enabled")
		}
		if c.Warmup.SubscriptionID == "" {
			return fmt.Errorf("warmup.subscription_id is required when warmup is enabled")
		}
	}

	switch c.Tracing.Exporter {
	case tracing.ExporterNone:
	case tracing.ExporterOTLP:
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("tracing.exporter must be one of none, otlp, got %q", c.Tracing.Exporter)
	}
	return nil
}
