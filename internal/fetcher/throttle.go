package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
)

// RequestLog persists the time of the last fetch attempt.
// store.Store satisfies it through its Info sidecar.
type RequestLog interface {
	GetInfo(ctx context.Context, name string) (string, bool, error)
	SetInfo(ctx context.Context, name, value string) error
}

// Throttled limits fetches of the primary island to one per interval.
// Other islands are fetched as part of the same refresh and pass through.
type Throttled struct {
	next     Fetcher
	log      RequestLog
	clock    Clock
	interval time.Duration
	primary  models.Island
	logger   *logger.Logger
}

// NewThrottled wraps next. A zero interval disables throttling but still
// records request times.
func NewThrottled(next Fetcher, requests RequestLog, clock Clock, interval time.Duration, primary models.Island, log *logger.Logger) *Throttled {
	if clock == nil {
		clock = NewClock()
	}
	return &Throttled{
		next:     next,
		log:      requests,
		clock:    clock,
		interval: interval,
		primary:  primary,
		logger:   log.WithComponent("throttle"),
	}
}

// Fetch refuses the primary island inside the window. Otherwise it records
// lastRequestedAt before calling through, whatever the outcome of the call.
func (t *Throttled) Fetch(ctx context.Context, island models.Island) (*Batch, error) {
	if island.ID != t.primary.ID {
		return t.next.Fetch(ctx, island)
	}

	now := t.clock.Now()

	last, err := t.lastRequestedAt(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil && now.Sub(*last) < t.interval {
		throttled := &ThrottledError{
			LastRequestedAt: *last,
			NextAllowedAt:   last.Add(t.interval),
		}
		t.logger.Info("Skipping fetch inside throttle window", map[string]interface{}{
			"last_requested_at": last.Format(time.RFC1123),
			"next_allowed_at":   throttled.NextAllowedAt.Format(time.RFC1123),
		})
		return nil, throttled
	}

	if err := t.log.SetInfo(ctx, models.InfoLastRequestedAt, now.UTC().Format(models.InfoTimeLayout)); err != nil {
		return nil, fmt.Errorf("failed to record request time: %w", err)
	}

	batch, err := t.next.Fetch(ctx, island)
	if err != nil {
		return nil, err
	}
	batch.RequestedAt = now
	return batch, nil
}

func (t *Throttled) lastRequestedAt(ctx context.Context) (*time.Time, error) {
	value, ok, err := t.log.GetInfo(ctx, models.InfoLastRequestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read last request time: %w", err)
	}
	if !ok || value == "" {
		return nil, nil
	}
	last, err := time.Parse(models.InfoTimeLayout, value)
	if err != nil {
		// Treat a corrupt timestamp as no previous request.
		t.logger.Warn("Ignoring unparsable last request time", map[string]interface{}{"value": value})
		return nil, nil
	}
	return &last, nil
}
