// Package kv abstracts the key-value store backing the response cache and
// the rate-limit counters, so callers can run against an in-memory store in
// tests and a shared Redis in production.
package kv

import (
	"context"
	"time"
)

// Store is the minimal key-value contract the pipeline needs. Get reports
// absence via the bool rather than an error; errors mean the backing store
// itself is unavailable.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}
