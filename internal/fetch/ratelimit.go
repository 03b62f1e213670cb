package fetch

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/kv"
	"github.com/painradar/aggregation-service/internal/models"
)

const (
	lastRequestKeyPrefix = "ratelimit:last:"
	dailyCountKeyPrefix  = "ratelimit:daily:"
	quotaWarnFraction    = 0.8
)

// Limiter enforces a minimum inter-request delay and a daily quota per
// source. Rate state lives in the shared kv store so every process hitting
// the same source observes the same timestamps and counters. Callers of the
// same source serialize through a per-source mutex; different sources never
// block each other.
type Limiter struct {
	store kv.Store
	cfg   config.SourcesConfig

	mu      sync.Mutex
	perSrc  map[models.SourceType]*sync.Mutex
	nowFunc func() time.Time
}

// NewLimiter creates a limiter over the given rate-state store.
func NewLimiter(store kv.Store, cfg config.SourcesConfig) *Limiter {
	return &Limiter{
		store:   store,
		cfg:     cfg,
		perSrc:  make(map[models.SourceType]*sync.Mutex),
		nowFunc: time.Now,
	}
}

func (l *Limiter) sourceMutex(src models.SourceType) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.perSrc[src]
	if !ok {
		m = &sync.Mutex{}
		l.perSrc[src] = m
	}
	return m
}

// Wait blocks until a request against the source is allowed, then records
// the request in rate state. It returns ErrRateLimitExceeded once the daily
// quota is hit. If the rate-state store is unavailable it degrades to the
// source's full configured delay rather than skipping the wait.
func (l *Limiter) Wait(ctx context.Context, src models.SourceType) error {
	srcCfg := l.cfg.ForSource(src)

	m := l.sourceMutex(src)
	m.Lock()
	defer m.Unlock()

	lastKey := lastRequestKeyPrefix + string(src)
	val, found, err := l.store.Get(ctx, lastKey)
	if err != nil {
		// Degraded mode: worst-case fixed delay, no quota tracking possible.
		log.Printf("rate state unavailable for %s, applying fixed delay: %v", src, err)
		if sleepErr := sleepCtx(ctx, srcCfg.MinDelay); sleepErr != nil {
			return sleepErr
		}
		return nil
	}

	if found {
		lastMillis, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr == nil {
			elapsed := l.nowFunc().UnixMilli() - lastMillis
			if remaining := srcCfg.MinDelay - time.Duration(elapsed)*time.Millisecond; remaining > 0 {
				if sleepErr := sleepCtx(ctx, remaining); sleepErr != nil {
					return sleepErr
				}
			}
		}
	}

	now := l.nowFunc()
	if err := l.store.Set(ctx, lastKey, strconv.FormatInt(now.UnixMilli(), 10), 24*time.Hour); err != nil {
		log.Printf("failed to record request timestamp for %s: %v", src, err)
	}

	dailyKey := dailyCountKeyPrefix + string(src) + ":" + now.UTC().Format("2006-01-02")
	count, err := l.store.Incr(ctx, dailyKey)
	if err != nil {
		log.Printf("failed to track daily usage for %s: %v", src, err)
		return nil
	}
	if count == 1 {
		if err := l.store.Expire(ctx, dailyKey, 24*time.Hour); err != nil {
			log.Printf("failed to expire daily counter for %s: %v", src, err)
		}
	}
	if count > srcCfg.DailyQuota {
		return fmt.Errorf("%s: %w", src, ErrRateLimitExceeded)
	}
	if float64(count) >= float64(srcCfg.DailyQuota)*quotaWarnFraction {
		log.Printf("warning: %s daily usage at %d of %d requests", src, count, srcCfg.DailyQuota)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
