package fetch

import (
	"errors"
	"fmt"

	"github.com/painradar/aggregation-service/internal/models"
)

// ErrRateLimitExceeded is returned when a source's daily quota is exhausted.
var ErrRateLimitExceeded = errors.New("daily request quota exhausted")

// AuthError means credentials were missing or rejected. It is fatal only to
// the affected source's fetch.
type AuthError struct {
	Source models.SourceType
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UpstreamError means the source returned a non-success HTTP status.
type UpstreamError struct {
	Source     models.SourceType
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream returned status %d", e.Source, e.StatusCode)
}
