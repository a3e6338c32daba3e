package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
)

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 512

// Options configures the HTTP client.
type Options struct {
	URL       string
	Origin    string
	UserAgent string
	Timeout   time.Duration
	// Header is added to every request after the defaults.
	Header http.Header
}

// Client fetches land records over HTTP.
type Client struct {
	http  *http.Client
	opts  Options
	clock Clock
	log   *logger.Logger
}

// NewClient creates a Client.
func NewClient(opts Options, clock Clock, log *logger.Logger) *Client {
	if clock == nil {
		clock = NewClock()
	}
	return &Client{
		http:  &http.Client{Timeout: opts.Timeout},
		opts:  opts,
		clock: clock,
		log:   log.WithComponent("fetcher"),
	}
}

// landInfoResponse is the envelope returned by the registry.
type landInfoResponse struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
	Data *struct {
		Items []json.RawMessage `json:"items"`
	} `json:"data"`
}

// Fetch posts the land info query for island and returns the raw items.
func (c *Client) Fetch(ctx context.Context, island models.Island) (*Batch, error) {
	requestedAt := c.clock.Now()

	req, err := c.newRequest(ctx, island)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch island %s: %w", island.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("failed to fetch island %s: status %d: %s",
			island.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload landInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode island %s response: %w", island.Name, err)
	}
	if payload.Data == nil || payload.Data.Items == nil {
		return nil, fmt.Errorf("island %s response has no data.items (msg %q)", island.Name, payload.Msg)
	}

	c.log.Debug("Fetched island", map[string]interface{}{
		"island":      island.Name,
		"records":     len(payload.Data.Items),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return &Batch{
		Island:      island,
		Records:     payload.Data.Items,
		RequestedAt: requestedAt,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, island models.Island) (*http.Request, error) {
	body, err := requestBody(island)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	if u, err := url.Parse(c.opts.URL); err == nil && u.Path != "" {
		req.Header.Set("Path", u.Path)
	}
	if c.opts.Origin != "" {
		req.Header.Set("Origin", c.opts.Origin)
		req.Header.Set("Referer", strings.TrimRight(c.opts.Origin, "/")+"/")
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	// Caller headers replace the defaults of the same name.
	for name, values := range c.opts.Header {
		req.Header.Del(name)
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return req, nil
}

// requestBody selects the island. The main island is the registry default.
func requestBody(island models.Island) ([]byte, error) {
	if island.ID == models.DefaultIslandID {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(map[string]int{"landType": island.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return body, nil
}
