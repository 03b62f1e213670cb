package fetch

import (
	"context"
	"fmt"

	"github.com/painradar/aggregation-service/internal/models"
)

// SourceClient fetches raw items for one source type.
type SourceClient interface {
	Fetch(ctx context.Context, query models.SourceQuery) ([]models.RawItem, error)
}

// Client is the rate-limited fetch client: it routes each query to its
// source client after clearing the limiter. Every network path goes through
// the limiter; there is no unthrottled variant.
type Client struct {
	limiter *Limiter
	sources map[models.SourceType]SourceClient
}

// NewClient creates a fetch client over the given limiter and source clients.
func NewClient(limiter *Limiter, sources map[models.SourceType]SourceClient) *Client {
	return &Client{limiter: limiter, sources: sources}
}

// Fetch performs one rate-limited fetch for the query.
func (c *Client) Fetch(ctx context.Context, query models.SourceQuery) ([]models.RawItem, error) {
	src, ok := c.sources[query.Source]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", query.Source)
	}
	if err := c.limiter.Wait(ctx, query.Source); err != nil {
		return nil, err
	}
	return src.Fetch(ctx, query)
}
