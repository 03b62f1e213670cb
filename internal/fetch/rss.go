package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/painradar/aggregation-service/internal/models"
)

// RSSClient fetches items from a configured RSS/Atom feed URL. Each feed is
// its own origin group.
type RSSClient struct {
	parser *gofeed.Parser
}

// NewRSSClient creates an rss source client.
func NewRSSClient(userAgent string) *RSSClient {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &RSSClient{parser: parser}
}

// Fetch retrieves and parses the query's feed.
func (c *RSSClient) Fetch(ctx context.Context, query models.SourceQuery) ([]models.RawItem, error) {
	feed, err := c.parser.ParseURLWithContext(query.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", query.FeedURL, err)
	}

	group := strings.TrimSpace(feed.Title)
	if group == "" {
		group = query.FeedURL
	}

	limit := query.Limit
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	items := make([]models.RawItem, 0, limit)
	for _, entry := range feed.Items[:limit] {
		published := time.Time{}
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		body := entry.Description
		if body == "" {
			body = entry.Content
		}

		localID := entry.GUID
		if localID == "" {
			localID = hashID(entry.Link)
		}

		var createdUTC float64
		if !published.IsZero() {
			createdUTC = float64(published.Unix())
		}

		items = append(items, models.RawItem{
			LocalID:    localID,
			Title:      entry.Title,
			Body:       stripHTML(body),
			CreatedUTC: createdUTC,
			Group:      group,
			Permalink:  entry.Link,
		})
	}
	return items, nil
}

func hashID(link string) string {
	h := sha256.Sum256([]byte(link))
	return fmt.Sprintf("%x", h[:16])
}

// stripHTML removes markup, decodes entities and collapses whitespace; both
// the stackexchange and rss sources deliver HTML bodies.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}
