package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/painradar/aggregation-service/internal/models"
)

func TestItemPrefixesID(t *testing.T) {
	raw := models.RawItem{
		LocalID:    "abc123",
		Title:      "a title",
		Body:       "a body",
		Score:      10,
		Comments:   4,
		CreatedUTC: 1700000000,
		Group:      "Entrepreneur",
		Permalink:  "https://example.com/abc123",
	}

	item := Item(raw, models.SourceReddit)

	assert.Equal(t, "reddit:abc123", item.ID)
	assert.Equal(t, "a title", item.Title)
	assert.Equal(t, "a body", item.BodyText)
	assert.Equal(t, "https://example.com/abc123", item.URL)
	assert.Equal(t, 10, item.EngagementScore)
	assert.Equal(t, 4, item.CommentCount)
	assert.Equal(t, int64(1700000000), item.CreatedAt)
	assert.Equal(t, "Entrepreneur", item.OriginGroup)
	assert.Equal(t, models.SourceReddit, item.SourceType)
}

func TestItemTotalOnMissingFields(t *testing.T) {
	item := Item(models.RawItem{LocalID: "x"}, models.SourceStackExchange)

	assert.Equal(t, "stackexchange:x", item.ID)
	assert.Empty(t, item.Title)
	assert.Empty(t, item.BodyText)
	assert.Zero(t, item.EngagementScore)
	assert.Zero(t, item.CreatedAt)
}

func TestItemClampsFutureTimestamp(t *testing.T) {
	future := float64(time.Now().Add(48 * time.Hour).Unix())
	item := Item(models.RawItem{LocalID: "x", CreatedUTC: future}, models.SourceReddit)

	assert.LessOrEqual(t, item.CreatedAt, time.Now().Unix())
}

func TestItemsMapsBatch(t *testing.T) {
	raws := []models.RawItem{{LocalID: "a"}, {LocalID: "b"}}
	items := Items(raws, models.SourceRSS)

	assert.Len(t, items, 2)
	assert.Equal(t, "rss:a", items[0].ID)
	assert.Equal(t, "rss:b", items[1].ID)
}
