// Command dexcache serves merged PokeAPI lookups from a tiered cache.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-dexcache/pkg/aggregator"
	"github.com/illmade-knight/go-dexcache/pkg/api"
	"github.com/illmade-knight/go-dexcache/pkg/backend"
	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/illmade-knight/go-dexcache/pkg/config"
	"github.com/illmade-knight/go-dexcache/pkg/microservice"
	"github.com/illmade-knight/go-dexcache/pkg/pokeapi"
	"github.com/illmade-knight/go-dexcache/pkg/resolver"
	"github.com/illmade-knight/go-dexcache/pkg/tracing"
	"github.com/illmade-knight/go-dexcache/pkg/warmup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "dexcache").Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("dexcache exited with error")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger = logger.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "dexcache", logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to flush traces.")
		}
	}()

	stores, err := backend.Open(ctx, cfg.Store, cfg.TTL, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close cache stores.")
		}
	}()

	registry := prometheus.NewRegistry()
	metrics, err := cache.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	tiers, err := stores.Tiers(cfg.TTL, nil, metrics, logger)
	if err != nil {
		return fmt.Errorf("tiers: %w", err)
	}

	names, err := resolver.New(resolver.FileLoader(cfg.NamesPath), logger)
	if err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	if err := names.Load(); err != nil {
		// Requests retry the load until the list is available.
		logger.Warn().Err(err).Str("path", cfg.NamesPath).Msg("Starting without known names.")
	}

	remote, err := pokeapi.NewClient(cfg.Remote, logger)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	agg, err := aggregator.New(names, remote, tiers, logger)
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, api.NewRouter(agg, registry, logger))
	if err := server.Start(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	var (
		warm       *warmup.Service
		warmClient io.Closer
	)
	if cfg.Warmup.Enabled {
		warm, warmClient, err = startWarmup(ctx, cfg.Warmup, agg, logger)
		if err != nil {
			shutdownServer(server, logger)
			return fmt.Errorf("warmup: %w", err)
		}
	}

	logger.Info().Str("port", server.GetHTTPPort()).Msg("dexcache is running")
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	if warm != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		if err := warm.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Warm-up service did not stop cleanly.")
		}
		cancel()
		if err := warmClient.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Pub/Sub client.")
		}
	}
	shutdownServer(server, logger)
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func startWarmup(ctx context.Context, cfg warmup.Config, lookup warmup.Lookuper, logger zerolog.Logger) (*warmup.Service, io.Closer, error) {
	client, err := warmup.NewGooglePubsubClient(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
	if err != nil {
		return nil, nil, err
	}
	consumer, err := warmup.NewGooglePubsubConsumer(ctx, warmup.GooglePubsubConsumerConfig{
		ProjectID:       cfg.ProjectID,
		SubscriptionID:  cfg.SubscriptionID,
		CredentialsFile: cfg.CredentialsFile,
	}, client, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	service, err := warmup.NewService(cfg.Workers, consumer, lookup, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	// Receive is cancelled by Stop, not by the signal context, so in-flight
	// lookups can finish.
	if err := service.Start(context.WithoutCancel(ctx)); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return service, client, nil
}

func shutdownServer(server microservice.Service, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error.")
	}
}
