// Package backend opens the five cache tables for a configured storage driver
// and closes them together.
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Supported storage drivers.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
)

// RedisConfig is the connection block for the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// FirestoreConfig is the connection block for the firestore driver.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id" env:"PROJECT_ID"`
	CredentialsFile string `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
}

// Config selects and configures a storage driver.
type Config struct {
	Driver     string          `yaml:"driver" env:"DRIVER"`
	SQLitePath string          `yaml:"sqlite_path" env:"SQLITE_PATH"`
	KeyPrefix  string          `yaml:"key_prefix" env:"KEY_PREFIX"`
	Redis      RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Firestore  FirestoreConfig `yaml:"firestore" envPrefix:"FIRESTORE_"`
}

// TTLConfig holds the freshness window of each table.
type TTLConfig struct {
	Pokemon   time.Duration `yaml:"pokemon" env:"POKEMON"`
	Species   time.Duration `yaml:"species" env:"SPECIES"`
	Chain     time.Duration `yaml:"chain" env:"CHAIN"`
	Movesets  time.Duration `yaml:"movesets" env:"MOVESETS"`
	Processed time.Duration `yaml:"processed" env:"PROCESSED"`
}

// DefaultTTLs returns the standard freshness windows.
func DefaultTTLs() TTLConfig {
	const day = 24 * time.Hour
	return TTLConfig{
		Pokemon:   7 * day,
		Species:   30 * day,
		Chain:     30 * day,
		Movesets:  30 * day,
		Processed: day,
	}
}

// Set holds one store per table plus the client that backs them.
type Set struct {
	Pokemon   cache.Store[string, json.RawMessage]
	Species   cache.Store[string, json.RawMessage]
	Chains    cache.Store[int, json.RawMessage]
	Movesets  cache.Store[string, []dex.Moveset]
	Processed cache.Store[string, dex.Response]

	// clients are closed after the stores.
	clients []io.Closer
	logger  zerolog.Logger
}

// Open connects to the configured driver and creates the five stores.
func Open(ctx context.Context, cfg Config, ttls TTLConfig, logger zerolog.Logger) (*Set, error) {
	logger = logger.With().Str("component", "Backend").Str("driver", cfg.Driver).Logger()

	var (
		set *Set
		err error
	)
	switch cfg.Driver {
	case DriverMemory, "":
		set = NewInMemory(logger)
	case DriverSQLite:
		set, err = openSQLite(cfg, logger)
	case DriverRedis:
		set, err = openRedis(ctx, cfg, ttls, logger)
	case DriverFirestore:
		set, err = openFirestore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("Successfully opened cache tables.")
	return set, nil
}

// NewInMemory returns a Set backed by process memory.
func NewInMemory(logger zerolog.Logger) *Set {
	return &Set{
		Pokemon:   cache.NewInMemoryStore[string, json.RawMessage](),
		Species:   cache.NewInMemoryStore[string, json.RawMessage](),
		Chains:    cache.NewInMemoryStore[int, json.RawMessage](),
		Movesets:  cache.NewInMemoryStore[string, []dex.Moveset](),
		Processed: cache.NewInMemoryStore[string, dex.Response](),
		logger:    logger,
	}
}

func openSQLite(cfg Config, logger zerolog.Logger) (*Set, error) {
	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("sqlite_path cannot be empty")
	}
	db, err := cache.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}

	set := &Set{clients: []io.Closer{db}, logger: logger}
	if err := buildSQLite(set, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return set, nil
}

func buildSQLite(set *Set, db *sql.DB, logger zerolog.Logger) error {
	var err error
	if set.Pokemon, err = cache.NewSQLiteStore[string, json.RawMessage](db, cache.TablePokemon, logger); err != nil {
		return err
	}
	if set.Species, err = cache.NewSQLiteStore[string, json.RawMessage](db, cache.TableSpecies, logger); err != nil {
		return err
	}
	if set.Chains, err = cache.NewSQLiteStore[int, json.RawMessage](db, cache.TableChains, logger); err != nil {
		return err
	}
	if set.Movesets, err = cache.NewSQLiteStore[string, []dex.Moveset](db, cache.TableMovesets, logger); err != nil {
		return err
	}
	if set.Processed, err = cache.NewSQLiteStore[string, dex.Response](db, cache.TableProcessed, logger); err != nil {
		return err
	}
	return nil
}

func openRedis(ctx context.Context, cfg Config, ttls TTLConfig, logger zerolog.Logger) (*Set, error) {
	client, err := cache.NewRedisClient(ctx, &cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, err
	}

	set := &Set{clients: []io.Closer{client}, logger: logger}
	if err := buildRedis(set, client, cfg.KeyPrefix, ttls, logger); err != nil {
		_ = client.Close()
		return nil, err
	}
	return set, nil
}

func buildRedis(set *Set, client *redis.Client, prefix string, ttls TTLConfig, logger zerolog.Logger) error {
	storeCfg := func(table string, ttl time.Duration) cache.RedisStoreConfig {
		return cache.RedisStoreConfig{KeyPrefix: prefix, Table: table, Expiration: ttl}
	}

	var err error
	if set.Pokemon, err = cache.NewRedisStore[string, json.RawMessage](storeCfg(cache.TablePokemon, ttls.Pokemon), client, logger); err != nil {
		return err
	}
	if set.Species, err = cache.NewRedisStore[string, json.RawMessage](storeCfg(cache.TableSpecies, ttls.Species), client, logger); err != nil {
		return err
	}
	if set.Chains, err = cache.NewRedisStore[int, json.RawMessage](storeCfg(cache.TableChains, ttls.Chain), client, logger); err != nil {
		return err
	}
	if set.Movesets, err = cache.NewRedisStore[string, []dex.Moveset](storeCfg(cache.TableMovesets, ttls.Movesets), client, logger); err != nil {
		return err
	}
	if set.Processed, err = cache.NewRedisStore[string, dex.Response](storeCfg(cache.TableProcessed, ttls.Processed), client, logger); err != nil {
		return err
	}
	return nil
}

func openFirestore(ctx context.Context, cfg Config, logger zerolog.Logger) (*Set, error) {
	if cfg.Firestore.ProjectID == "" {
		return nil, fmt.Errorf("firestore project_id cannot be empty")
	}
	client, err := cache.NewFirestoreClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}

	set := &Set{clients: []io.Closer{client}, logger: logger}
	if err := buildFirestore(set, client, cfg, logger); err != nil {
		_ = client.Close()
		return nil, err
	}
	return set, nil
}

func buildFirestore(set *Set, client *firestore.Client, cfg Config, logger zerolog.Logger) error {
	storeCfg := func(table string) *cache.FirestoreConfig {
		collection := table
		if cfg.KeyPrefix != "" {
			collection = cfg.KeyPrefix + "_" + table
		}
		return &cache.FirestoreConfig{ProjectID: cfg.Firestore.ProjectID, CollectionName: collection}
	}

	var err error
	if set.Pokemon, err = cache.NewFirestoreStore[string, json.RawMessage](storeCfg(cache.TablePokemon), client, logger); err != nil {
		return err
	}
	if set.Species, err = cache.NewFirestoreStore[string, json.RawMessage](storeCfg(cache.TableSpecies), client, logger); err != nil {
		return err
	}
	if set.Chains, err = cache.NewFirestoreStore[int, json.RawMessage](storeCfg(cache.TableChains), client, logger); err != nil {
		return err
	}
	if set.Movesets, err = cache.NewFirestoreStore[string, []dex.Moveset](storeCfg(cache.TableMovesets), client, logger); err != nil {
		return err
	}
	if set.Processed, err = cache.NewFirestoreStore[string, dex.Response](storeCfg(cache.TableProcessed), client, logger); err != nil {
		return err
	}
	return nil
}

// Close closes every store, then the shared clients, and reports all failures.
func (s *Set) Close() error {
	var result error
	for _, c := range []io.Closer{s.Pokemon, s.Species, s.Chains, s.Movesets, s.Processed} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		s.logger.Error().Err(result).Msg("Error closing cache tables.")
		return result
	}
	s.logger.Info().Msg("Cache tables closed.")
	return nil
}

// Tiers wraps each store with its freshness window.
type Tiers struct {
	Pokemon   *cache.Tier[string, json.RawMessage]
	Species   *cache.Tier[string, json.RawMessage]
	Chains    *cache.Tier[int, json.RawMessage]
	Movesets  *cache.Tier[string, []dex.Moveset]
	Processed *cache.Tier[string, dex.Response]
}

// Tiers builds the freshness-checked view of the set. A nil clock uses wall
// time; nil metrics disables counting.
func (s *Set) Tiers(ttls TTLConfig, clk clock.Clock, metrics *cache.Metrics, logger zerolog.Logger) (*Tiers, error) {
	var (
		t   Tiers
		err error
	)
	if t.Pokemon, err = cache.NewTier(cache.TierConfig{Table: cache.TablePokemon, TTL: ttls.Pokemon}, s.Pokemon, clk, metrics, logger); err != nil {
		return nil, fmt.Errorf("pokemon tier: %w", err)
	}
	if t.Species, err = cache.NewTier(cache.TierConfig{Table: cache.TableSpecies, TTL: ttls.Species}, s.Species, clk, metrics, logger); err != nil {
		return nil, fmt.Errorf("species tier: %w", err)
	}
	if t.Chains, err = cache.NewTier(cache.TierConfig{Table: cache.TableChains, TTL: ttls.Chain}, s.Chains, clk, metrics, logger); err != nil {
		return nil, fmt.Errorf("chain tier: %w", err)
	}
	if t.Movesets, err = cache.NewTier(cache.TierConfig{Table: cache.TableMovesets, TTL: ttls.Movesets}, s.Movesets, clk, metrics, logger); err != nil {
		return nil, fmt.Errorf("movesets tier: %w", err)
	}
	if t.Processed, err = cache.NewTier(cache.TierConfig{Table: cache.TableProcessed, TTL: ttls.Processed}, s.Processed, clk, metrics, logger); err != nil {
		return nil, fmt.Errorf("processed tier: %w", err)
	}
	return &t, nil
}
