package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for one Firestore-backed table.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// firestoreRecord is the document layout. The payload is kept as a JSON string
// so that raw remote documents survive without Firestore's type mapping.
type firestoreRecord struct {
	Payload   string    `firestore:"payload"`
	FetchedAt time.Time `firestore:"fetched_at"`
}

// FirestoreStore is a generic Store keeping one document per key in a
// Firestore collection. Suited to low volume deployments; use Redis otherwise.
type FirestoreStore[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new generic FirestoreStore.
func NewFirestoreStore[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Str("collection", cfg.CollectionName).Logger(),
	}, nil
}

// Get retrieves a single document by its key.
func (s *FirestoreStore[K, V]) Get(ctx context.Context, key K) (Record[V], error) {
	stringKey := fmt.Sprintf("%v", key)
	docSnap, err := s.client.Collection(s.collectionName).Doc(stringKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record[V]{}, fmt.Errorf("document %s: %w", stringKey, ErrNotFound)
		}
		return Record[V]{}, fmt.Errorf("firestore get for %s: %w", stringKey, err)
	}

	var doc firestoreRecord
	if err := docSnap.DataTo(&doc); err != nil {
		return Record[V]{}, fmt.Errorf("firestore DataTo for %s: %w", stringKey, err)
	}
	var value V
	if err := json.Unmarshal([]byte(doc.Payload), &value); err != nil {
		return Record[V]{}, fmt.Errorf("decoding payload for %s: %w", stringKey, err)
	}
	return Record[V]{Payload: value, FetchedAt: doc.FetchedAt}, nil
}

// Put creates or overwrites the document for key.
func (s *FirestoreStore[K, V]) Put(ctx context.Context, key K, value V, fetchedAt time.Time) error {
	stringKey := fmt.Sprintf("%v", key)
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", stringKey, err)
	}
	doc := firestoreRecord{Payload: string(payload), FetchedAt: fetchedAt.UTC()}
	if _, err := s.client.Collection(s.collectionName).Doc(stringKey).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore set for %s: %w", stringKey, err)
	}
	s.logger.Debug().Str("key", stringKey).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore[K, V]) Close() error {
	return nil
}

// NewFirestoreClient creates a Firestore client. With no credentials file the
// client uses Application Default Credentials, or the emulator when
// FIRESTORE_EMULATOR_HOST is set.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string, logger zerolog.Logger) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for Firestore client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for Firestore client.")
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("Failed to create Firestore client.")
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("Firestore client created successfully.")
	return client, nil
}
