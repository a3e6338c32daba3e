package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/landb/internal/middleware"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/services"
)

// LandHandler handles land lookups and the snapshot refresh.
type LandHandler struct {
	service services.LandService
}

// NewLandHandler creates a new LandHandler instance.
func NewLandHandler(service services.LandService) *LandHandler {
	return &LandHandler{service: service}
}

// ListLandsRequest represents the query parameters for the land list endpoint.
type ListLandsRequest struct {
	Owner string `form:"owner" binding:"omitempty,max=128"`
}

// LandAtRequest represents the query parameters for the land-at endpoint.
// Island defaults to the main island.
type LandAtRequest struct {
	Island *int `form:"island" binding:"omitempty,gte=0"`
	X      *int `form:"x" binding:"required"`
	Y      *int `form:"y" binding:"required"`
}

// AdjacentRequest represents the query parameters for the adjacency endpoint.
type AdjacentRequest struct {
	Padding *int `form:"padding" binding:"omitempty,gte=0,lte=16"`
}

// CountsRequest represents the query parameters for the counts endpoint.
type CountsRequest struct {
	Owner         string `form:"owner" binding:"omitempty,max=128"`
	GroupByIsland bool   `form:"group_by_island"`
}

// LandsResponse is a list of lands.
type LandsResponse struct {
	Lands []models.Land `json:"lands"`
	Count int           `json:"count"`
}

// LandResponse is a single land.
type LandResponse struct {
	Land *models.Land `json:"land"`
}

// CountsResponse is the grouped cardinality of lands.
type CountsResponse struct {
	Counts []models.LandCount `json:"counts"`
}

func landsResponse(lands []models.Land) LandsResponse {
	if lands == nil {
		lands = []models.Land{}
	}
	return LandsResponse{Lands: lands, Count: len(lands)}
}

// List handles GET /api/v1/lands.
func (h *LandHandler) List(c *gin.Context) {
	var req ListLandsRequest
	if !bindQuery(c, &req) {
		return
	}

	lands, err := h.service.ListLands(c.Request.Context(), req.Owner)
	if err != nil {
		serviceError(c, err, "", "Failed to list lands")
		return
	}
	c.JSON(http.StatusOK, landsResponse(lands))
}

// OnMarket handles GET /api/v1/lands/on-market.
func (h *LandHandler) OnMarket(c *gin.Context) {
	lands, err := h.service.ListOnMarket(c.Request.Context())
	if err != nil {
		serviceError(c, err, "", "Failed to list on-market lands")
		return
	}
	c.JSON(http.StatusOK, landsResponse(lands))
}

// At handles GET /api/v1/lands/at.
// It returns the land whose footprint covers the cell.
func (h *LandHandler) At(c *gin.Context) {
	var req LandAtRequest
	if !bindQuery(c, &req) {
		return
	}
	island := models.DefaultIslandID
	if req.Island != nil {
		island = *req.Island
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Debug("Processing land-at request", map[string]interface{}{
			"island": island,
			"x":      *req.X,
			"y":      *req.Y,
		})
	}

	land, err := h.service.GetLandAt(c.Request.Context(), island, *req.X, *req.Y)
	if err != nil {
		serviceError(c, err, "No land covers this cell", "Failed to query land")
		return
	}
	c.JSON(http.StatusOK, LandResponse{Land: land})
}

// ByToken handles GET /api/v1/lands/token/:tokenId.
func (h *LandHandler) ByToken(c *gin.Context) {
	tokenID, ok := int64Param(c, "tokenId")
	if !ok {
		return
	}

	land, err := h.service.GetLandByToken(c.Request.Context(), tokenID)
	if err != nil {
		serviceError(c, err, "No land with this token", "Failed to query land")
		return
	}
	c.JSON(http.StatusOK, LandResponse{Land: land})
}

// ByRegion handles GET /api/v1/lands/region/:regionId.
func (h *LandHandler) ByRegion(c *gin.Context) {
	regionID, ok := int64Param(c, "regionId")
	if !ok {
		return
	}

	land, err := h.service.GetLandByRegion(c.Request.Context(), int(regionID))
	if err != nil {
		serviceError(c, err, "No land with this region", "Failed to query land")
		return
	}
	c.JSON(http.StatusOK, LandResponse{Land: land})
}

// Adjacent handles GET /api/v1/lands/token/:tokenId/adjacent.
func (h *LandHandler) Adjacent(c *gin.Context) {
	tokenID, ok := int64Param(c, "tokenId")
	if !ok {
		return
	}
	var req AdjacentRequest
	if !bindQuery(c, &req) {
		return
	}
	padding := services.DefaultPadding
	if req.Padding != nil {
		padding = *req.Padding
	}

	lands, err := h.service.GetAdjacent(c.Request.Context(), tokenID, padding)
	if err != nil {
		serviceError(c, err, "No land with this token", "Failed to query adjacent lands")
		return
	}
	c.JSON(http.StatusOK, landsResponse(lands))
}

// Counts handles GET /api/v1/counts.
func (h *LandHandler) Counts(c *gin.Context) {
	var req CountsRequest
	if !bindQuery(c, &req) {
		return
	}

	counts, err := h.service.GetCounts(c.Request.Context(), req.Owner, req.GroupByIsland)
	if err != nil {
		serviceError(c, err, "", "Failed to count lands")
		return
	}
	if counts == nil {
		counts = []models.LandCount{}
	}
	c.JSON(http.StatusOK, CountsResponse{Counts: counts})
}

// Refresh handles POST /api/v1/refresh.
// It answers 429 with Retry-After inside the fetch interval.
func (h *LandHandler) Refresh(c *gin.Context) {
	result, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		serviceError(c, err, "", "Failed to refresh lands")
		return
	}
	c.JSON(http.StatusOK, result)
}
