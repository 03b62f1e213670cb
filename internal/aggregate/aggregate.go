// Package aggregate merges classified items from many source queries into
// one deduplicated, filtered, sorted, paginated result set. Fetches fan out
// concurrently and all settle before aggregation proceeds; a failing source
// is downgraded to an empty result plus a diagnostic, never an error for
// the whole call.
package aggregate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/painradar/aggregation-service/internal/classify"
	"github.com/painradar/aggregation-service/internal/models"
	"github.com/painradar/aggregation-service/internal/normalize"
	"github.com/painradar/aggregation-service/internal/storage"
)

// Sort keys accepted by Options.SortBy.
const (
	SortConfidence = "confidence"
	SortEngagement = "engagement"
	SortRecency    = "recency"
)

const defaultLimit = 10

// Options controls filtering, ordering and pagination of one aggregation
// call. Category "all" (or empty) disables the category filter.
type Options struct {
	Category      string
	MinConfidence float64
	SortBy        string
	Page          int
	Limit         int
}

// ItemSource is the cache-aside fetch path one query goes through.
type ItemSource interface {
	GetOrFetch(ctx context.Context, query models.SourceQuery, ttl time.Duration) ([]models.RawItem, error)
}

// TTLFunc returns the cache TTL for a source type.
type TTLFunc func(models.SourceType) time.Duration

// Service is the aggregator. The sink is optional; when present, accepted
// items are persisted best-effort after filtering.
type Service struct {
	source     ItemSource
	classifier *classify.Classifier
	sink       storage.Sink
	ttlFor     TTLFunc
}

// NewService creates an aggregator.
func NewService(source ItemSource, classifier *classify.Classifier, sink storage.Sink, ttlFor TTLFunc) *Service {
	return &Service{source: source, classifier: classifier, sink: sink, ttlFor: ttlFor}
}

type fetchOutcome struct {
	items []models.RawItem
	err   error
}

// Aggregate runs the full pipeline for the given queries. It returns an
// error only when the caller's deadline elapses; an aggregation where every
// source failed still yields a well-formed empty page.
func (s *Service) Aggregate(ctx context.Context, queries []models.SourceQuery, opts Options) (*models.PagedResult, error) {
	outcomes := make([]fetchOutcome, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q models.SourceQuery) {
			defer wg.Done()
			items, err := s.source.GetOrFetch(ctx, q, s.ttlFor(q.Source))
			outcomes[i] = fetchOutcome{items: items, err: err}
		}(i, q)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation deadline exceeded: %w", err)
	}

	diagnostics := make([]models.SourceDiagnostic, len(queries))
	seen := make(map[string]struct{})
	var classified []models.ClassifiedItem
	for i, q := range queries {
		diagnostics[i] = models.SourceDiagnostic{Query: q}
		if outcomes[i].err != nil {
			diagnostics[i].Error = outcomes[i].err.Error()
			continue
		}
		diagnostics[i].ItemCount = len(outcomes[i].items)
		for _, raw := range outcomes[i].items {
			item := normalize.Item(raw, q.Source)
			// First occurrence of an id wins across overlapping queries.
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			classified = append(classified, models.ClassifiedItem{
				CanonicalItem:  item,
				Classification: s.classifier.Classify(item),
			})
		}
	}

	accepted := filterItems(classified, opts)
	sortItems(accepted, opts.SortBy)
	s.persist(ctx, accepted)

	result := paginate(accepted, opts.Page, opts.Limit)
	result.Diagnostics = diagnostics
	return result, nil
}

func (s *Service) persist(ctx context.Context, items []models.ClassifiedItem) {
	if s.sink == nil || len(items) == 0 {
		return
	}
	if err := s.sink.InsertAccepted(ctx, items); err != nil {
		log.Printf("failed to persist %d accepted items: %v", len(items), err)
	}
}

func filterItems(items []models.ClassifiedItem, opts Options) []models.ClassifiedItem {
	filtered := make([]models.ClassifiedItem, 0, len(items))
	for _, item := range items {
		if !item.IsRealProblem {
			continue
		}
		if item.Confidence < opts.MinConfidence {
			continue
		}
		if opts.Category != "" && opts.Category != "all" && string(item.Category) != opts.Category {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

// sortItems orders items by the requested key. The sort is stable so ties
// retain their relative input order.
func sortItems(items []models.ClassifiedItem, sortBy string) {
	switch sortBy {
	case SortEngagement:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Engagement() > items[j].Engagement()
		})
	case SortRecency:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt > items[j].CreatedAt
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Confidence > items[j].Confidence
		})
	}
}

// paginate windows the filtered, sorted collection. Pages are 1-based; a
// page past the end yields an empty item list with correct totals.
func paginate(items []models.ClassifiedItem, page, limit int) *models.PagedResult {
	if limit <= 0 {
		limit = defaultLimit
	}
	if page <= 0 {
		page = 1
	}

	total := len(items)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &models.PagedResult{
		Items: append([]models.ClassifiedItem{}, items[start:end]...),
		Pagination: models.Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalCount:  total,
			HasNext:     page*limit < total,
			HasPrev:     page > 1,
			Limit:       limit,
		},
	}
}
