package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painradar/aggregation-service/internal/kv"
	"github.com/painradar/aggregation-service/internal/models"
)

type stubSourceClient struct {
	calls int
	items []models.RawItem
}

func (s *stubSourceClient) Fetch(context.Context, models.SourceQuery) ([]models.RawItem, error) {
	s.calls++
	return s.items, nil
}

func TestClientRoutesToSource(t *testing.T) {
	stub := &stubSourceClient{items: []models.RawItem{{LocalID: "x"}}}
	client := NewClient(
		NewLimiter(kv.NewMemoryStore(), limiterConfig(0, 100)),
		map[models.SourceType]SourceClient{models.SourceReddit: stub},
	)

	items, err := client.Fetch(context.Background(), models.SourceQuery{
		Source: models.SourceReddit, Community: "Entrepreneur",
	})

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, stub.calls)
}

func TestClientUnknownSource(t *testing.T) {
	client := NewClient(
		NewLimiter(kv.NewMemoryStore(), limiterConfig(0, 100)),
		map[models.SourceType]SourceClient{},
	)

	_, err := client.Fetch(context.Background(), models.SourceQuery{Source: "gopher"})
	assert.Error(t, err)
}

func TestClientQuotaStopsFetch(t *testing.T) {
	stub := &stubSourceClient{}
	client := NewClient(
		NewLimiter(kv.NewMemoryStore(), limiterConfig(0, 1)),
		map[models.SourceType]SourceClient{models.SourceReddit: stub},
	)
	ctx := context.Background()
	query := models.SourceQuery{Source: models.SourceReddit, Community: "Entrepreneur"}

	_, err := client.Fetch(ctx, query)
	require.NoError(t, err)

	_, err = client.Fetch(ctx, query)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 1, stub.calls, "source must not be hit once the quota is exhausted")
}
