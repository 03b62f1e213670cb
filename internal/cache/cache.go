// Package cache implements the cache-aside layer over the rate-limited
// fetch client: cached responses within their TTL are served without
// touching the network or rate state; misses fetch fresh and populate the
// cache best-effort.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/painradar/aggregation-service/internal/kv"
	"github.com/painradar/aggregation-service/internal/models"
)

const keyPrefix = "cache:fetch:"

// Fetcher is the underlying fetch path used on a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, query models.SourceQuery) ([]models.RawItem, error)
}

// Store serves normalized fetch responses through the cache-aside pattern.
// Concurrent misses for the same key are collapsed into a single underlying
// fetch via singleflight.
type Store struct {
	kv      kv.Store
	fetcher Fetcher
	group   singleflight.Group
}

// NewStore creates a cache-aside store over the given kv backend and fetcher.
func NewStore(store kv.Store, fetcher Fetcher) *Store {
	return &Store{kv: store, fetcher: fetcher}
}

// Key returns the deterministic cache key for a source query.
func Key(query models.SourceQuery) string {
	sum := sha256.Sum256([]byte(query.Key()))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

// GetOrFetch returns the cached payload for the query if present and
// unexpired, otherwise fetches fresh and writes the result with the given
// TTL. A cache write failure never fails the call; the fetched data is still
// returned.
func (s *Store) GetOrFetch(ctx context.Context, query models.SourceQuery, ttl time.Duration) ([]models.RawItem, error) {
	key := Key(query)

	payload, found, err := s.kv.Get(ctx, key)
	if err != nil {
		log.Printf("cache unavailable for %s, fetching fresh: %v", query.Key(), err)
	} else if found {
		var items []models.RawItem
		if err := json.Unmarshal([]byte(payload), &items); err == nil {
			return items, nil
		}
		log.Printf("discarding unreadable cache entry for %s", query.Key())
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		items, err := s.fetcher.Fetch(ctx, query)
		if err != nil {
			return nil, err
		}
		if data, marshalErr := json.Marshal(items); marshalErr == nil {
			if setErr := s.kv.Set(ctx, key, string(data), ttl); setErr != nil {
				log.Printf("failed to cache response for %s: %v", query.Key(), setErr)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.RawItem), nil
}
