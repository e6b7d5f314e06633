// Command dexwarm publishes every known name to the warm-up topic so running
// dexcache instances pre-populate their caches.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-dexcache/pkg/config"
	"github.com/illmade-knight/go-dexcache/pkg/resolver"
	"github.com/illmade-knight/go-dexcache/pkg/warmup"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "dexwarm").Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("dexwarm exited with error")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Warmup.ProjectID == "" || cfg.Warmup.TopicID == "" {
		return fmt.Errorf("warmup.project_id and warmup.topic_id are required")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger = logger.Level(level)

	names, err := resolver.FileLoader(cfg.NamesPath)()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := warmup.NewGooglePubsubClient(ctx, cfg.Warmup.ProjectID, cfg.Warmup.CredentialsFile, logger)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	publisher, err := warmup.NewPublisher(ctx, client, cfg.Warmup.TopicID, logger)
	if err != nil {
		return err
	}
	sent, err := publisher.PublishNames(ctx, names)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := publisher.Stop(stopCtx); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("Publisher did not flush before the deadline.")
	}
	if err != nil {
		return fmt.Errorf("published %d of %d names: %w", sent, len(names), err)
	}
	logger.Info().Int("names", sent).Msg("Successfully queued warm-up requests.")
	return nil
}
