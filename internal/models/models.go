package models

import (
	"fmt"
	"time"
)

// SourceType identifies which external provider an item came from.
type SourceType string

const (
	SourceReddit        SourceType = "reddit"
	SourceStackExchange SourceType = "stackexchange"
	SourceRSS           SourceType = "rss"
)

// AllSourceTypes returns the known source types in canonical order.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceReddit, SourceStackExchange, SourceRSS}
}

// SourceQuery identifies one fetch unit against one source. Only the fields
// relevant to the source type are set: Community for reddit, Site+Tag for
// stackexchange, FeedURL for rss.
type SourceQuery struct {
	Source    SourceType `json:"source"`
	Community string     `json:"community,omitempty"`
	Site      string     `json:"site,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	FeedURL   string     `json:"feed_url,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// Key returns a deterministic string identity for the query, used for cache
// keys and diagnostics. Two queries with the same field values always
// produce the same key.
func (q SourceQuery) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d", q.Source, q.Community, q.Site, q.Tag, q.FeedURL, q.Limit)
}

// RawItem is a source-native record straight off the wire. It is ephemeral:
// normalized into a CanonicalItem before anything downstream sees it.
type RawItem struct {
	LocalID    string  `json:"local_id"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	Score      int     `json:"score"`
	Comments   int     `json:"comments"`
	CreatedUTC float64 `json:"created_utc"`
	Group      string  `json:"group"`
	Permalink  string  `json:"permalink"`
}

// CanonicalItem is the normalized shape shared across all sources. ID is
// source-prefixed and globally unique across one aggregation run.
type CanonicalItem struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	BodyText        string     `json:"body_text"`
	URL             string     `json:"url"`
	EngagementScore int        `json:"engagement_score"`
	CommentCount    int        `json:"comment_count"`
	CreatedAt       int64      `json:"created_at"`
	OriginGroup     string     `json:"origin_group"`
	SourceType      SourceType `json:"source_type"`
}

// Category is a topical classification bucket.
type Category string

const (
	CategoryBusiness   Category = "business"
	CategoryTechnology Category = "technology"
	CategoryEducation  Category = "education"
	CategoryFinance    Category = "finance"
	CategorySocial     Category = "social"
	CategoryGeneral    Category = "general"
)

// ScoredCategories returns the categories that carry keyword tables, in the
// fixed order used to break scoring ties. General is not scored; it is the
// all-zero fallback.
func ScoredCategories() []Category {
	return []Category{CategoryBusiness, CategoryEducation, CategoryTechnology, CategoryFinance, CategorySocial}
}

// ValidCategory reports whether s names a known category or the "all" filter.
func ValidCategory(s string) bool {
	switch Category(s) {
	case CategoryBusiness, CategoryTechnology, CategoryEducation, CategoryFinance, CategorySocial, CategoryGeneral:
		return true
	}
	return s == "all"
}

// Classification is the deterministic verdict for one canonical item.
type Classification struct {
	IsRealProblem bool     `json:"is_real_problem"`
	Category      Category `json:"category"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Keywords      []string `json:"keywords"`
}

// ClassifiedItem is the unit stored, filtered, sorted and paginated.
type ClassifiedItem struct {
	CanonicalItem
	Classification
}

// Engagement is the combined engagement metric used by the engagement sort.
func (c ClassifiedItem) Engagement() int {
	return c.EngagementScore + c.CommentCount
}

// Pagination describes one page of a filtered, sorted result set.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalCount  int  `json:"total_count"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
	Limit       int  `json:"limit"`
}

// SourceDiagnostic records the per-query outcome of one aggregation call.
// Error is empty for queries that succeeded.
type SourceDiagnostic struct {
	Query     SourceQuery `json:"query"`
	ItemCount int         `json:"item_count"`
	Error     string      `json:"error,omitempty"`
}

// PagedResult is the aggregation output returned to the route layer.
type PagedResult struct {
	Items       []ClassifiedItem   `json:"items"`
	Pagination  Pagination         `json:"pagination"`
	Diagnostics []SourceDiagnostic `json:"per_source_diagnostics"`
}

// Stats summarizes persisted accepted items.
type Stats struct {
	TotalItems    int            `json:"total_items"`
	ByCategory    map[string]int `json:"by_category"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// RunStatus tracks the outcome of background aggregation runs.
type RunStatus struct {
	LastSuccessfulRun time.Time `json:"last_successful_run"`
	LastAttempt       time.Time `json:"last_attempt"`
	Status            string    `json:"status"` // "success", "failure", "running", "never_run"
	ErrorMessage      string    `json:"error_message,omitempty"`
	ItemsAccepted     int       `json:"items_accepted"`
}
