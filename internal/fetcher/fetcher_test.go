package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
)

var (
	mainIsland   = models.Island{ID: 0, Name: "main"}
	wizardIsland = models.Island{ID: 2, Name: "wizard"}
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// memoryLog is an in-memory RequestLog.
type memoryLog struct {
	mu      sync.Mutex
	values  map[string]string
	failSet error
}

func newMemoryLog() *memoryLog {
	return &memoryLog{values: map[string]string{}}
}

func (m *memoryLog) GetInfo(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memoryLog) SetInfo(_ context.Context, name, value string) error {
	if m.failSet != nil {
		return m.failSet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

// stubFetcher counts calls and returns a canned result.
type stubFetcher struct {
	calls map[int]int
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, island models.Island) (*Batch, error) {
	if s.calls == nil {
		s.calls = map[int]int{}
	}
	s.calls[island.ID]++
	if s.err != nil {
		return nil, s.err
	}
	return &Batch{Island: island, Records: []json.RawMessage{json.RawMessage(`{}`)}}, nil
}

func TestClient_Fetch(t *testing.T) {
	var gotBodies []string
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		gotBodies = append(gotBodies, string(body))
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"msg":"ok","data":{"items":[{"tokenId":1},{"tokenId":2}]}}`))
	}))
	defer server.Close()

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	client := NewClient(Options{
		URL:       server.URL + "/api/v1/land/info",
		Origin:    "https://land.example.com",
		UserAgent: "landb-test",
		Timeout:   5 * time.Second,
		Header:    http.Header{"X-Extra": []string{"1"}, "Accept": []string{"application/json"}},
	}, clock, logger.Nop())

	batch, err := client.Fetch(context.Background(), mainIsland)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, clock.now, batch.RequestedAt)
	assert.Equal(t, mainIsland, batch.Island)

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "/api/v1/land/info", gotHeader.Get("Path"))
	assert.Equal(t, "https://land.example.com", gotHeader.Get("Origin"))
	assert.Equal(t, "https://land.example.com/", gotHeader.Get("Referer"))
	assert.Equal(t, "landb-test", gotHeader.Get("User-Agent"))
	assert.Equal(t, "1", gotHeader.Get("X-Extra"))
	assert.Equal(t, []string{"application/json"}, gotHeader.Values("Accept"), "caller header replaces the default")

	_, err = client.Fetch(context.Background(), wizardIsland)
	require.NoError(t, err)
	assert.Equal(t, []string{`{}`, `{"landType":2}`}, gotBodies)
}

func TestClient_FetchFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "malformed json", status: http.StatusOK, body: `{"data":`},
		{name: "missing items", status: http.StatusOK, body: `{"code":1,"msg":"bad","data":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(Options{URL: server.URL, Timeout: time.Second}, nil, logger.Nop())
			batch, err := client.Fetch(context.Background(), mainIsland)
			assert.Error(t, err)
			assert.Nil(t, batch)
			assert.False(t, errors.Is(err, ErrThrottled))
		})
	}
}

func TestClient_FetchEmptyItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"items":[]}}`))
	}))
	defer server.Close()

	client := NewClient(Options{URL: server.URL, Timeout: time.Second}, nil, logger.Nop())
	batch, err := client.Fetch(context.Background(), mainIsland)
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
}

func TestThrottled_Window(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	requests := newMemoryLog()
	inner := &stubFetcher{}
	f := NewThrottled(inner, requests, clock, time.Minute, mainIsland, logger.Nop())

	batch, err := f.Fetch(ctx, mainIsland)
	require.NoError(t, err)
	assert.Equal(t, clock.now, batch.RequestedAt)
	assert.Equal(t, clock.now.Format(models.InfoTimeLayout), requests.values[models.InfoLastRequestedAt])

	clock.Advance(59 * time.Second)
	_, err = f.Fetch(ctx, mainIsland)
	require.ErrorIs(t, err, ErrThrottled)
	var throttled *ThrottledError
	require.True(t, errors.As(err, &throttled))
	assert.Equal(t, time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC), throttled.NextAllowedAt)
	assert.Equal(t, 1, inner.calls[mainIsland.ID], "throttled call never reaches the network")

	// Other islands are never throttled.
	_, err = f.Fetch(ctx, wizardIsland)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls[wizardIsland.ID])

	clock.Advance(time.Second)
	_, err = f.Fetch(ctx, mainIsland)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls[mainIsland.ID])
}

func TestThrottled_RecordsRequestEvenWhenFetchFails(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	requests := newMemoryLog()
	inner := &stubFetcher{err: errors.New("connection refused")}
	f := NewThrottled(inner, requests, clock, time.Minute, mainIsland, logger.Nop())

	_, err := f.Fetch(ctx, mainIsland)
	require.Error(t, err)
	assert.NotEmpty(t, requests.values[models.InfoLastRequestedAt])

	clock.Advance(30 * time.Second)
	_, err = f.Fetch(ctx, mainIsland)
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestThrottled_ZeroIntervalAndCorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	requests := newMemoryLog()
	requests.values[models.InfoLastRequestedAt] = "not a time"
	inner := &stubFetcher{}
	f := NewThrottled(inner, requests, clock, 0, mainIsland, logger.Nop())

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(ctx, mainIsland)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.calls[mainIsland.ID])
}

func TestThrottled_SetInfoFailure(t *testing.T) {
	requests := newMemoryLog()
	requests.failSet = errors.New("store is read-only")
	inner := &stubFetcher{}
	f := NewThrottled(inner, requests, nil, time.Minute, mainIsland, logger.Nop())

	_, err := f.Fetch(context.Background(), mainIsland)
	require.Error(t, err)
	assert.Zero(t, inner.calls[mainIsland.ID])
}
