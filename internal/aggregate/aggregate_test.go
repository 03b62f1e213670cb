package aggregate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/painradar/aggregation-service/internal/classify"
	"github.com/painradar/aggregation-service/internal/fetch"
	"github.com/painradar/aggregation-service/internal/models"
)

// stubSource routes each query key to a canned result or error.
type stubSource struct {
	items map[string][]models.RawItem
	errs  map[string]error
}

func (s *stubSource) GetOrFetch(ctx context.Context, q models.SourceQuery, _ time.Duration) ([]models.RawItem, error) {
	if err, ok := s.errs[q.Key()]; ok {
		return nil, err
	}
	return s.items[q.Key()], nil
}

// blockingSource waits for the context to expire before answering.
type blockingSource struct{}

func (b *blockingSource) GetOrFetch(ctx context.Context, _ models.SourceQuery, _ time.Duration) ([]models.RawItem, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// MockSink is a mock implementation of the storage.Sink interface
type MockSink struct {
	mock.Mock
}

func (m *MockSink) InsertAccepted(ctx context.Context, items []models.ClassifiedItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockSink) GetProblems(ctx context.Context, limit, offset int) ([]models.ClassifiedItem, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.ClassifiedItem), args.Error(1)
}

func (m *MockSink) GetStats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.Stats), args.Error(1)
}

func (m *MockSink) Search(ctx context.Context, term string, limit int) ([]models.ClassifiedItem, error) {
	args := m.Called(ctx, term, limit)
	return args.Get(0).([]models.ClassifiedItem), args.Error(1)
}

func (m *MockSink) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockSink) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.RunStatus), args.Error(1)
}

func (m *MockSink) Close() error {
	args := m.Called()
	return args.Error(0)
}

func fixedTTL(models.SourceType) time.Duration { return time.Minute }

func problemRaw(id, subject string, score int) models.RawItem {
	return models.RawItem{
		LocalID:    id,
		Title:      fmt.Sprintf("I wish there was an app for %s", subject),
		Body:       "tracking this by hand is such a pain",
		Score:      score,
		Comments:   2,
		CreatedUTC: float64(time.Now().Add(-time.Hour).Unix()),
		Group:      "Entrepreneur",
		Permalink:  "https://example.com/" + id,
	}
}

func redditQuery(community string) models.SourceQuery {
	return models.SourceQuery{Source: models.SourceReddit, Community: community, Limit: 25}
}

func newService(source ItemSource) *Service {
	return NewService(source, classify.New(classify.DefaultRules()), nil, fixedTTL)
}

func TestAggregatePartialFailure(t *testing.T) {
	q1 := redditQuery("Entrepreneur")
	q2 := redditQuery("smallbusiness")
	q3 := redditQuery("startups")

	source := &stubSource{
		items: map[string][]models.RawItem{
			q1.Key(): {problemRaw("a1", "invoices", 10)},
			q3.Key(): {problemRaw("c1", "contracts", 5)},
		},
		errs: map[string]error{
			q2.Key(): &fetch.UpstreamError{Source: models.SourceReddit, StatusCode: 502},
		},
	}

	result, err := newService(source).Aggregate(context.Background(),
		[]models.SourceQuery{q1, q2, q3}, Options{Category: "all"})
	require.NoError(t, err)

	assert.Len(t, result.Items, 2)
	require.Len(t, result.Diagnostics, 3)
	assert.Empty(t, result.Diagnostics[0].Error)
	assert.Contains(t, result.Diagnostics[1].Error, "status 502")
	assert.Empty(t, result.Diagnostics[2].Error)
}

func TestAggregateAllSourcesFailingReturnsEmptyPage(t *testing.T) {
	q1 := redditQuery("Entrepreneur")
	q2 := redditQuery("smallbusiness")

	source := &stubSource{
		errs: map[string]error{
			q1.Key(): &fetch.AuthError{Source: models.SourceReddit, Err: errors.New("bad credentials")},
			q2.Key(): fetch.ErrRateLimitExceeded,
		},
	}

	result, err := newService(source).Aggregate(context.Background(),
		[]models.SourceQuery{q1, q2}, Options{Category: "all"})
	require.NoError(t, err)

	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.Pagination.TotalCount)
	assert.Equal(t, 0, result.Pagination.TotalPages)
	assert.False(t, result.Pagination.HasNext)
	require.Len(t, result.Diagnostics, 2)
	assert.NotEmpty(t, result.Diagnostics[0].Error)
	assert.NotEmpty(t, result.Diagnostics[1].Error)
}

func TestAggregateDeadlineFailsWholeCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	service := newService(&blockingSource{})
	result, err := service.Aggregate(ctx, []models.SourceQuery{redditQuery("Entrepreneur")}, Options{})

	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAggregateDeduplicatesAcrossQueries(t *testing.T) {
	q1 := redditQuery("Entrepreneur")
	q2 := redditQuery("Entrepreneur+smallbusiness")

	shared := problemRaw("dup1", "invoices", 10)
	source := &stubSource{
		items: map[string][]models.RawItem{
			q1.Key(): {shared, problemRaw("a2", "payroll", 3)},
			q2.Key(): {shared, problemRaw("b2", "scheduling", 4)},
		},
	}

	result, err := newService(source).Aggregate(context.Background(),
		[]models.SourceQuery{q1, q2}, Options{Category: "all", Limit: 50})
	require.NoError(t, err)

	counts := make(map[string]int)
	for _, item := range result.Items {
		counts[item.ID]++
	}
	assert.Equal(t, 1, counts["reddit:dup1"])
	assert.Equal(t, 3, result.Pagination.TotalCount)
}

func TestAggregateFiltersNonProblemsAndConfidence(t *testing.T) {
	q := redditQuery("Entrepreneur")

	noise := models.RawItem{
		LocalID: "noise", Title: "nice weather today", Group: "Entrepreneur",
	}
	source := &stubSource{
		items: map[string][]models.RawItem{
			q.Key(): {problemRaw("keep", "invoices", 1), noise},
		},
	}

	result, err := newService(source).Aggregate(context.Background(),
		[]models.SourceQuery{q}, Options{Category: "all", MinConfidence: 0.6})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "reddit:keep", result.Items[0].ID)
	// The fetch itself saw both items; filtering happens downstream.
	assert.Equal(t, 2, result.Diagnostics[0].ItemCount)
}

func TestAggregateCategoryFilter(t *testing.T) {
	q := redditQuery("Entrepreneur")
	source := &stubSource{
		items: map[string][]models.RawItem{
			q.Key(): {problemRaw("a1", "invoices", 1)},
		},
	}

	service := newService(source)

	business, err := service.Aggregate(context.Background(), []models.SourceQuery{q},
		Options{Category: "business"})
	require.NoError(t, err)
	assert.Len(t, business.Items, 1)

	finance, err := service.Aggregate(context.Background(), []models.SourceQuery{q},
		Options{Category: "finance"})
	require.NoError(t, err)
	assert.Empty(t, finance.Items)
}

func TestAggregateSortEngagement(t *testing.T) {
	q := redditQuery("Entrepreneur")
	source := &stubSource{
		items: map[string][]models.RawItem{
			q.Key(): {
				problemRaw("low", "invoices", 1),
				problemRaw("high", "contracts", 50),
				problemRaw("mid", "payroll", 10),
			},
		},
	}

	result, err := newService(source).Aggregate(context.Background(),
		[]models.SourceQuery{q}, Options{Category: "all", SortBy: SortEngagement})
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	assert.Equal(t, "reddit:high", result.Items[0].ID)
	assert.Equal(t, "reddit:mid", result.Items[1].ID)
	assert.Equal(t, "reddit:low", result.Items[2].ID)
}

func TestAggregateSortIsStableOnTies(t *testing.T) {
	q := redditQuery("Entrepreneur")
	// Same text everywhere, so identical confidence; input order must hold.
	source := &stubSource{
		items: map[string][]models.RawItem{
			q.Key(): {
				problemRaw("first", "invoices", 5),
				problemRaw("second", "invoices", 5),
				problemRaw("third", "invoices", 5),
			},
		},
	}

	result, err := newService(source).Aggregate(context.Background(),
		[]models.SourceQuery{q}, Options{Category: "all"})
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	assert.Equal(t, "reddit:first", result.Items[0].ID)
	assert.Equal(t, "reddit:second", result.Items[1].ID)
	assert.Equal(t, "reddit:third", result.Items[2].ID)
}

func TestPaginateInvariants(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10, 23} {
		items := make([]models.ClassifiedItem, n)
		for i := range items {
			items[i].ID = fmt.Sprintf("item:%d", i)
		}
		for _, limit := range []int{1, 3, 10, 25} {
			maxPage := (n+limit-1)/limit + 1
			for page := 1; page <= maxPage; page++ {
				result := paginate(items, page, limit)
				p := result.Pagination

				wantPages := (n + limit - 1) / limit
				assert.Equal(t, wantPages, p.TotalPages, "n=%d limit=%d page=%d", n, limit, page)
				assert.Equal(t, n, p.TotalCount)
				assert.Equal(t, page*limit < n, p.HasNext, "n=%d limit=%d page=%d", n, limit, page)
				assert.Equal(t, page > 1, p.HasPrev)
				assert.LessOrEqual(t, len(result.Items), limit)
			}
		}
	}
}

func TestPaginateWindows(t *testing.T) {
	items := make([]models.ClassifiedItem, 7)
	for i := range items {
		items[i].ID = fmt.Sprintf("item:%d", i)
	}

	page2 := paginate(items, 2, 3)
	require.Len(t, page2.Items, 3)
	assert.Equal(t, "item:3", page2.Items[0].ID)
	assert.True(t, page2.Pagination.HasNext)
	assert.True(t, page2.Pagination.HasPrev)

	page3 := paginate(items, 3, 3)
	require.Len(t, page3.Items, 1)
	assert.False(t, page3.Pagination.HasNext)

	past := paginate(items, 9, 3)
	assert.Empty(t, past.Items)
	assert.Equal(t, 7, past.Pagination.TotalCount)
}

func TestAggregatePersistsAccepted(t *testing.T) {
	q := redditQuery("Entrepreneur")
	source := &stubSource{
		items: map[string][]models.RawItem{
			q.Key(): {problemRaw("a1", "invoices", 1)},
		},
	}

	sink := new(MockSink)
	sink.On("InsertAccepted", mock.Anything, mock.AnythingOfType("[]models.ClassifiedItem")).Return(nil)

	service := NewService(source, classify.New(classify.DefaultRules()), sink, fixedTTL)
	_, err := service.Aggregate(context.Background(), []models.SourceQuery{q}, Options{Category: "all"})
	require.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestAggregateSinkFailureDoesNotFailCall(t *testing.T) {
	q := redditQuery("Entrepreneur")
	source := &stubSource{
		items: map[string][]models.RawItem{
			q.Key(): {problemRaw("a1", "invoices", 1)},
		},
	}

	sink := new(MockSink)
	sink.On("InsertAccepted", mock.Anything, mock.Anything).Return(assert.AnError)

	service := NewService(source, classify.New(classify.DefaultRules()), sink, fixedTTL)
	result, err := service.Aggregate(context.Background(), []models.SourceQuery{q}, Options{Category: "all"})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	sink.AssertExpectations(t)
}
