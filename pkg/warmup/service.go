package warmup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Config configures cache warm-up.
type Config struct {
	Enabled         bool   `yaml:"enabled" env:"ENABLED"`
	ProjectID       string `yaml:"project_id" env:"PROJECT_ID"`
	SubscriptionID  string `yaml:"subscription_id" env:"SUBSCRIPTION_ID"`
	TopicID         string `yaml:"topic_id" env:"TOPIC_ID"`
	CredentialsFile string `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
	Workers         int    `yaml:"workers" env:"WORKERS"`
}

// Lookuper runs a full lookup, populating every cache tier on the way.
type Lookuper interface {
	Lookup(ctx context.Context, query string) (*dex.Response, error)
}

// Service drains a Consumer with a pool of workers, looking up each name.
// Messages are acked once looked up or found not to exist, and nacked on any
// other failure so the broker redelivers them.
type Service struct {
	numWorkers int
	consumer   Consumer
	lookup     Lookuper
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// NewService creates a warm-up service. Workers defaults to 4.
func NewService(workers int, consumer Consumer, lookup Lookuper, logger zerolog.Logger) (*Service, error) {
	if workers <= 0 {
		workers = 4
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if lookup == nil {
		return nil, fmt.Errorf("lookuper cannot be nil")
	}
	return &Service{
		numWorkers: workers,
		consumer:   consumer,
		lookup:     lookup,
		logger:     logger.With().Str("service", "WarmupService").Logger(),
	}, nil
}

// Start starts the consumer and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.logger.Info().Int("worker_count", s.numWorkers).Msg("Starting warm-up workers...")
	s.wg.Add(s.numWorkers)
	for i := 0; i < s.numWorkers; i++ {
		go s.worker(ctx, i)
	}
	return nil
}

// Stop stops the consumer, then waits for in-flight lookups to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping warm-up service...")

	var result error
	if err := s.consumer.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stopping consumer: %w", err))
	}

	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		s.logger.Info().Msg("All warm-up workers completed gracefully.")
	case <-ctx.Done():
		result = multierror.Append(result, fmt.Errorf("waiting for workers: %w", ctx.Err()))
	}
	return result
}

func (s *Service) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Debug().Int("worker_id", workerID).Msg("Consumer channel closed, worker exiting.")
				return
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Service) handle(ctx context.Context, msg Message) {
	logger := s.logger.With().Str("msg_id", msg.ID).Logger()

	name := NameFromPayload(msg.Payload)
	if name == "" {
		logger.Warn().Msg("Message carries no name, Acking.")
		msg.Ack()
		return
	}

	_, err := s.lookup.Lookup(ctx, name)
	switch {
	case err == nil:
		logger.Debug().Str("name", name).Msg("Warmed cache, Acking.")
		msg.Ack()
	case errors.Is(err, dex.ErrNotFound):
		logger.Info().Str("name", name).Msg("Unknown name, Acking.")
		msg.Ack()
	default:
		logger.Error().Err(err).Str("name", name).Msg("Warm-up lookup failed, Nacking.")
		msg.Nack()
	}
}

// NameFromPayload accepts either a bare name or a JSON object with a "name"
// field.
func NameFromPayload(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		return strings.TrimSpace(gjson.Get(trimmed, "name").String())
	}
	return trimmed
}
