// Package cache provides the keyed, timestamped stores behind every cache tier
// and the Tier wrapper that applies a per-table freshness window.
package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Store.Get when a key has no record.
var ErrNotFound = errors.New("record not found")

// Record is one cached payload together with the time it was fetched.
type Record[V any] struct {
	Payload   V         `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store is a generic keyed table holding one Record per key.
type Store[K comparable, V any] interface {
	// Get returns the record for key, or an error wrapping ErrNotFound.
	Get(ctx context.Context, key K) (Record[V], error)
	// Put replaces the record for key unconditionally.
	Put(ctx context.Context, key K, value V, fetchedAt time.Time) error
	io.Closer
}

// IsFresh reports whether a record fetched at fetchedAt is still inside its
// ttl window at now.
func IsFresh(fetchedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(fetchedAt) < ttl
}
