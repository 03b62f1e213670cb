package storage

import (
	"context"
	"fmt"

	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/models"
)

// Sink is the persistence boundary for accepted classified items. Failures
// inside the aggregation pipeline are logged, never propagated to callers.
type Sink interface {
	InsertAccepted(ctx context.Context, items []models.ClassifiedItem) error
	GetProblems(ctx context.Context, limit, offset int) ([]models.ClassifiedItem, error)
	GetStats(ctx context.Context) (*models.Stats, error)
	Search(ctx context.Context, term string, limit int) ([]models.ClassifiedItem, error)
	UpdateRunStatus(ctx context.Context, status models.RunStatus) error
	GetRunStatus(ctx context.Context) (*models.RunStatus, error)
	Close() error
}

// NewSink creates a sink instance based on configuration. Type "none"
// returns nil: the pipeline runs without persistence.
func NewSink(ctx context.Context, cfg config.StorageConfig) (Sink, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "postgresql":
		return NewPostgresSink(cfg)
	case "mongodb":
		return NewMongoDBSink(ctx, cfg)
	case "dynamodb":
		return NewDynamoDBSink(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
