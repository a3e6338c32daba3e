// Package fetcher retrieves raw land records from the remote registry.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/landb/internal/models"
)

// ErrThrottled is returned when a fetch is attempted inside the throttle window.
var ErrThrottled = errors.New("fetch throttled")

// ThrottledError carries the timing of a throttled fetch. It matches ErrThrottled.
type ThrottledError struct {
	LastRequestedAt time.Time
	NextAllowedAt   time.Time
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("fetch throttled: last request at %s, next allowed at %s",
		e.LastRequestedAt.Format(time.RFC3339), e.NextAllowedAt.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrThrottled) hold for a *ThrottledError.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}

// Batch is the raw result of fetching one island.
type Batch struct {
	Island  models.Island
	Records []json.RawMessage
	// RequestedAt is taken before the network call.
	RequestedAt time.Time
}

// Fetcher retrieves the complete current record set of one island.
type Fetcher interface {
	Fetch(ctx context.Context, island models.Island) (*Batch, error)
}

// Clock abstracts the wall clock so throttling can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// NewClock returns a Clock backed by time.Now.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}
