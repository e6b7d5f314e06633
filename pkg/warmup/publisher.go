package warmup

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Request is the payload published for each name to warm.
type Request struct {
	Name string `json:"name"`
}

// Publisher queues warm-up requests on a Pub/Sub topic.
type Publisher struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewPublisher verifies that topicID exists before returning.
func NewPublisher(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}
	return &Publisher{
		topic:  topic,
		logger: logger.With().Str("component", "WarmupPublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// PublishNames publishes one request per non-empty name and waits for every
// publish result. It returns the number of names accepted by the broker.
func (p *Publisher) PublishNames(ctx context.Context, names []string) (int, error) {
	results := make(map[string]*pubsub.PublishResult, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, seen := results[name]; seen {
			continue
		}
		payload, err := json.Marshal(Request{Name: name})
		if err != nil {
			return 0, fmt.Errorf("marshalling request for %s: %w", name, err)
		}
		results[name] = p.topic.Publish(ctx, &pubsub.Message{
			Data:       payload,
			Attributes: map[string]string{"source": "dexwarm"},
		})
	}

	var (
		errs *multierror.Error
		sent int
	)
	for name, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("publishing %s: %w", name, err))
			continue
		}
		sent++
	}
	p.logger.Info().Int("published", sent).Int("requested", len(results)).Msg("Published warm-up requests.")
	return sent, errs.ErrorOrNil()
}

// Stop flushes pending messages, giving up when ctx is done.
func (p *Publisher) Stop(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
