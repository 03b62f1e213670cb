package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/painradar/aggregation-service/internal/models"
)

// RedditClient fetches new posts from a subreddit. When client credentials
// are configured it acquires a short-lived bearer token before each data
// call; token acquisition failure is fatal for that fetch only.
type RedditClient struct {
	httpClient *http.Client
	creds      *clientcredentials.Config
	baseURL    string
	userAgent  string
}

// NewRedditClient creates a reddit source client. clientID may be empty, in
// which case requests go out unauthenticated against the public JSON
// endpoints.
func NewRedditClient(clientID, clientSecret, tokenURL, baseURL, userAgent string, timeout time.Duration) *RedditClient {
	c := &RedditClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
	}
	if clientID != "" {
		c.creds = &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
	}
	return c
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Subreddit   string  `json:"subreddit"`
				Permalink   string  `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch retrieves the newest posts from the query's community.
func (c *RedditClient) Fetch(ctx context.Context, query models.SourceQuery) ([]models.RawItem, error) {
	endpoint := fmt.Sprintf("%s/r/%s/new.json", c.baseURL, url.PathEscape(query.Community))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, &AuthError{Source: models.SourceReddit, Err: err}
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Source: models.SourceReddit, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Source: models.SourceReddit, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	items := make([]models.RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		d := child.Data
		items = append(items, models.RawItem{
			LocalID:    d.ID,
			Title:      d.Title,
			Body:       d.Selftext,
			Score:      d.Score,
			Comments:   d.NumComments,
			CreatedUTC: d.CreatedUTC,
			Group:      d.Subreddit,
			Permalink:  "https://www.reddit.com" + d.Permalink,
		})
	}
	return items, nil
}
