package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/services"
)

// OwnerHandler handles owner rankings, neighbors and prosperity.
type OwnerHandler struct {
	service services.LandService
}

// NewOwnerHandler creates a new OwnerHandler instance.
func NewOwnerHandler(service services.LandService) *OwnerHandler {
	return &OwnerHandler{service: service}
}

// OrderRequest selects the sort direction. Rankings default to descending.
type OrderRequest struct {
	Order string `form:"order" binding:"omitempty,oneof=asc desc"`
}

func (r OrderRequest) descending() bool {
	return r.Order != "asc"
}

// ProsperityRequest optionally restricts the total to one owner.
type ProsperityRequest struct {
	Owner string `form:"owner" binding:"omitempty,max=128"`
}

// OwnersResponse is the owner ranking.
type OwnersResponse struct {
	Owners []models.OwnerInfo `json:"owners"`
	Count  int                `json:"count"`
}

// NeighborsResponse lists the owners bordering an address.
type NeighborsResponse struct {
	OwnerAddress string            `json:"ownerAddress"`
	Neighbors    []models.Neighbor `json:"neighbors"`
}

// Ranking handles GET /api/v1/owners.
func (h *OwnerHandler) Ranking(c *gin.Context) {
	var req OrderRequest
	if !bindQuery(c, &req) {
		return
	}

	owners, err := h.service.GetOwnerRanking(c.Request.Context(), req.descending())
	if err != nil {
		serviceError(c, err, "", "Failed to rank owners")
		return
	}
	if owners == nil {
		owners = []models.OwnerInfo{}
	}
	c.JSON(http.StatusOK, OwnersResponse{Owners: owners, Count: len(owners)})
}

// Neighbors handles GET /api/v1/owners/:address/neighbors.
func (h *OwnerHandler) Neighbors(c *gin.Context) {
	var req OrderRequest
	if !bindQuery(c, &req) {
		return
	}
	address := c.Param("address")

	neighbors, err := h.service.GetNeighbors(c.Request.Context(), address, req.descending())
	if err != nil {
		serviceError(c, err, "", "Failed to find neighbors")
		return
	}
	if neighbors == nil {
		neighbors = []models.Neighbor{}
	}
	c.JSON(http.StatusOK, NeighborsResponse{OwnerAddress: address, Neighbors: neighbors})
}

// OwnerProsperity handles GET /api/v1/owners/:address/prosperity.
func (h *OwnerHandler) OwnerProsperity(c *gin.Context) {
	h.prosperity(c, c.Param("address"))
}

// Prosperity handles GET /api/v1/prosperity.
func (h *OwnerHandler) Prosperity(c *gin.Context) {
	var req ProsperityRequest
	if !bindQuery(c, &req) {
		return
	}
	h.prosperity(c, req.Owner)
}

func (h *OwnerHandler) prosperity(c *gin.Context, owner string) {
	report, err := h.service.GetProsperity(c.Request.Context(), owner)
	if err != nil {
		serviceError(c, err, "", "Failed to calculate prosperity")
		return
	}
	c.JSON(http.StatusOK, report)
}
