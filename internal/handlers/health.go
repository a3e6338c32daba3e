package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/landb/internal/middleware"
	"github.com/stwalsh4118/landb/internal/services"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.1.0"
	// HealthCheckTimeout bounds the store ping and snapshot checks
	HealthCheckTimeout = 2 * time.Second
)

// Pinger checks that the land store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check, readiness and info endpoints.
type HealthHandler struct {
	store     Pinger
	service   services.LandService
	driver    string
	env       string
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(store Pinger, service services.LandService, driver, env string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		service:   service,
		driver:    driver,
		env:       env,
		startTime: time.Now(),
	}
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Snapshot string `json:"snapshot"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Version         string     `json:"version"`
	Environment     string     `json:"environment"`
	Uptime          string     `json:"uptime"`
	StoreDriver     string     `json:"store_driver"`
	LastFetchedAt   *time.Time `json:"last_fetched_at"`
	LastRequestedAt *time.Time `json:"last_requested_at"`
	NextFetchAt     *time.Time `json:"next_fetch_at,omitempty"`
}

// Health handles GET /health. It is a liveness check and always returns 200.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

// Ready handles GET /health/ready.
// The service is ready once the store answers and a snapshot exists.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Store health check failed", err, map[string]interface{}{
				"driver":  h.driver,
				"timeout": HealthCheckTimeout.String(),
			})
		}
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status:   "not_ready",
			Store:    "disconnected",
			Snapshot: "unknown",
		})
		return
	}

	info, err := h.service.Info(ctx)
	if err != nil || !info.Exists {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status:   "not_ready",
			Store:    "connected",
			Snapshot: "missing",
		})
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Status:   "ready",
		Store:    "connected",
		Snapshot: "present",
	})
}

// Info handles GET /api/v1/info.
// Returns API metadata and the state of the land snapshot.
func (h *HealthHandler) Info(c *gin.Context) {
	resp := InfoResponse{
		Version:     APIVersion,
		Environment: h.env,
		Uptime:      formatUptime(time.Since(h.startTime)),
		StoreDriver: h.driver,
	}

	info, err := h.service.Info(c.Request.Context())
	if err != nil {
		serviceError(c, err, "", "Failed to read snapshot info")
		return
	}
	resp.LastFetchedAt = info.LastFetchedAt
	resp.LastRequestedAt = info.LastRequestedAt
	resp.NextFetchAt = info.NextFetchAt

	c.JSON(http.StatusOK, resp)
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
