package aggregate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/painradar/aggregation-service/internal/models"
	"github.com/painradar/aggregation-service/internal/storage"
)

// Runner periodically re-runs aggregation over the configured queries so
// the sink keeps filling with fresh accepted items between user requests.
type Runner struct {
	service  *Service
	sink     storage.Sink
	queries  []models.SourceQuery
	opts     Options
	interval time.Duration
	deadline time.Duration
}

// NewRunner creates a background runner.
func NewRunner(service *Service, sink storage.Sink, queries []models.SourceQuery, opts Options, interval, deadline time.Duration) *Runner {
	return &Runner{
		service:  service,
		sink:     sink,
		queries:  queries,
		opts:     opts,
		interval: interval,
		deadline: deadline,
	}
}

// Start runs one aggregation immediately, then on every interval tick until
// the context is cancelled. A failed run is recorded and logged but does not
// stop the loop.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.runOnce(ctx); err != nil {
		return fmt.Errorf("initial aggregation run failed: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				// Log error but don't stop the runner
				log.Printf("aggregation run error: %v", err)
			}
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	now := time.Now().UTC()
	status := models.RunStatus{
		LastAttempt: now,
		Status:      "running",
	}
	if r.sink != nil {
		if prev, err := r.sink.GetRunStatus(ctx); err == nil {
			status.LastSuccessfulRun = prev.LastSuccessfulRun
		}
		r.updateStatus(ctx, status)
	}

	result, err := r.service.Aggregate(runCtx, r.queries, r.opts)
	if err != nil {
		status.Status = "failure"
		status.ErrorMessage = err.Error()
		r.updateStatus(ctx, status)
		return err
	}

	status.Status = "success"
	status.LastSuccessfulRun = now
	status.ItemsAccepted = result.Pagination.TotalCount
	r.updateStatus(ctx, status)

	log.Printf("aggregation run accepted %d items across %d queries",
		result.Pagination.TotalCount, len(r.queries))
	return nil
}

func (r *Runner) updateStatus(ctx context.Context, status models.RunStatus) {
	if r.sink == nil {
		return
	}
	if err := r.sink.UpdateRunStatus(ctx, status); err != nil {
		log.Printf("failed to update run status: %v", err)
	}
}
