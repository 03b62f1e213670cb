package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/painradar/aggregation-service/internal/models"
)

// StackExchangeClient fetches recent questions for a site+tag pair from the
// Stack Exchange API (keyless access).
type StackExchangeClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewStackExchangeClient creates a stackexchange source client.
func NewStackExchangeClient(baseURL, userAgent string, timeout time.Duration) *StackExchangeClient {
	return &StackExchangeClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgent:  userAgent,
	}
}

type stackQuestions struct {
	Items []struct {
		QuestionID   int64  `json:"question_id"`
		Title        string `json:"title"`
		Body         string `json:"body"`
		Score        int    `json:"score"`
		AnswerCount  int    `json:"answer_count"`
		CreationDate int64  `json:"creation_date"`
		Link         string `json:"link"`
	} `json:"items"`
}

// Fetch retrieves the newest questions tagged query.Tag on query.Site.
func (c *StackExchangeClient) Fetch(ctx context.Context, query models.SourceQuery) ([]models.RawItem, error) {
	endpoint := c.baseURL + "/2.3/questions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("order", "desc")
	q.Set("sort", "creation")
	q.Set("site", query.Site)
	q.Set("filter", "withbody")
	if query.Tag != "" {
		q.Set("tagged", query.Tag)
	}
	if query.Limit > 0 {
		q.Set("pagesize", strconv.Itoa(query.Limit))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Source: models.SourceStackExchange, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var questions stackQuestions
	if err := json.Unmarshal(body, &questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	items := make([]models.RawItem, 0, len(questions.Items))
	for _, item := range questions.Items {
		items = append(items, models.RawItem{
			LocalID:    strconv.FormatInt(item.QuestionID, 10),
			Title:      item.Title,
			Body:       stripHTML(item.Body),
			Score:      item.Score,
			Comments:   item.AnswerCount,
			CreatedUTC: float64(item.CreationDate),
			Group:      query.Site,
			Permalink:  item.Link,
		})
	}
	return items, nil
}
