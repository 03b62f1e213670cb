// Package normalize converts source-native records into the canonical item
// shape shared by every downstream component.
package normalize

import (
	"time"

	"github.com/painradar/aggregation-service/internal/models"
)

// Item maps a raw record to its canonical form. It is total: missing
// optional fields become zero values, and a creation timestamp in the future
// is clamped to now. The canonical id is prefixed with the source type so
// ids never collide across sources.
func Item(raw models.RawItem, sourceType models.SourceType) models.CanonicalItem {
	createdAt := int64(raw.CreatedUTC)
	if now := time.Now().Unix(); createdAt > now {
		createdAt = now
	}
	if createdAt < 0 {
		createdAt = 0
	}

	return models.CanonicalItem{
		ID:              string(sourceType) + ":" + raw.LocalID,
		Title:           raw.Title,
		BodyText:        raw.Body,
		URL:             raw.Permalink,
		EngagementScore: raw.Score,
		CommentCount:    raw.Comments,
		CreatedAt:       createdAt,
		OriginGroup:     raw.Group,
		SourceType:      sourceType,
	}
}

// Items maps a batch of raw records.
func Items(raws []models.RawItem, sourceType models.SourceType) []models.CanonicalItem {
	items := make([]models.CanonicalItem, len(raws))
	for i, raw := range raws {
		items[i] = Item(raw, sourceType)
	}
	return items
}
