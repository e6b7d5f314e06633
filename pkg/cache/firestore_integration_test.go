//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firestoreTestValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFirestoreStore_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	const projectID = "test-project"

	client, err := firestore.NewClient(ctx, projectID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := cache.NewFirestoreStore[string, firestoreTestValue](&cache.FirestoreConfig{
		ProjectID:      projectID,
		CollectionName: "it_" + cache.TableProcessed,
	}, client, zerolog.Nop())
	require.NoError(t, err)

	t.Run("Put and Get", func(t *testing.T) {
		fetchedAt := time.Now().UTC().Truncate(time.Microsecond)
		value := firestoreTestValue{Name: "snorlax", Count: 143}
		require.NoError(t, store.Put(ctx, "snorlax", value, fetchedAt))

		rec, err := store.Get(ctx, "snorlax")
		require.NoError(t, err)
		assert.Equal(t, value, rec.Payload)
		assert.True(t, fetchedAt.Equal(rec.FetchedAt))
	})

	t.Run("Get Miss", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-doc")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})
}
