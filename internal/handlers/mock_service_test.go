package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockLandService is a mock implementation of services.LandService for testing.
type MockLandService struct {
	mock.Mock
}

func (m *MockLandService) Refresh(ctx context.Context) (*services.RefreshResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RefreshResult), args.Error(1)
}

func (m *MockLandService) RefreshIfEmpty(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockLandService) Info(ctx context.Context) (*services.SnapshotInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SnapshotInfo), args.Error(1)
}

func (m *MockLandService) ListLands(ctx context.Context, owner string) ([]models.Land, error) {
	args := m.Called(ctx, owner)
	return mockLands(args), args.Error(1)
}

func (m *MockLandService) ListOnMarket(ctx context.Context) ([]models.Land, error) {
	args := m.Called(ctx)
	return mockLands(args), args.Error(1)
}

func (m *MockLandService) GetLandAt(ctx context.Context, islandID, x, y int) (*models.Land, error) {
	args := m.Called(ctx, islandID, x, y)
	return mockLand(args), args.Error(1)
}

func (m *MockLandService) GetLandByToken(ctx context.Context, tokenID int64) (*models.Land, error) {
	args := m.Called(ctx, tokenID)
	return mockLand(args), args.Error(1)
}

func (m *MockLandService) GetLandByRegion(ctx context.Context, regionID int) (*models.Land, error) {
	args := m.Called(ctx, regionID)
	return mockLand(args), args.Error(1)
}

func (m *MockLandService) GetAdjacent(ctx context.Context, tokenID int64, padding int) ([]models.Land, error) {
	args := m.Called(ctx, tokenID, padding)
	return mockLands(args), args.Error(1)
}

func (m *MockLandService) GetCounts(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error) {
	args := m.Called(ctx, owner, groupByIsland)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LandCount), args.Error(1)
}

func (m *MockLandService) GetNeighbors(ctx context.Context, owner string, descending bool) ([]models.Neighbor, error) {
	args := m.Called(ctx, owner, descending)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Neighbor), args.Error(1)
}

func (m *MockLandService) GetOwnerRanking(ctx context.Context, descending bool) ([]models.OwnerInfo, error) {
	args := m.Called(ctx, descending)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OwnerInfo), args.Error(1)
}

func (m *MockLandService) GetProsperity(ctx context.Context, owner string) (*services.ProsperityReport, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ProsperityReport), args.Error(1)
}

func mockLand(args mock.Arguments) *models.Land {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.Land)
}

func mockLands(args mock.Arguments) []models.Land {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.Land)
}

// newTestRouter registers the land and owner routes the way main does.
func newTestRouter(service services.LandService) *gin.Engine {
	router := gin.New()
	lands := NewLandHandler(service)
	owners := NewOwnerHandler(service)

	v1 := router.Group("/api/v1")
	v1.GET("/lands", lands.List)
	v1.GET("/lands/on-market", lands.OnMarket)
	v1.GET("/lands/at", lands.At)
	v1.GET("/lands/token/:tokenId", lands.ByToken)
	v1.GET("/lands/token/:tokenId/adjacent", lands.Adjacent)
	v1.GET("/lands/region/:regionId", lands.ByRegion)
	v1.GET("/counts", lands.Counts)
	v1.POST("/refresh", lands.Refresh)
	v1.GET("/owners", owners.Ranking)
	v1.GET("/owners/:address/neighbors", owners.Neighbors)
	v1.GET("/owners/:address/prosperity", owners.OwnerProsperity)
	v1.GET("/prosperity", owners.Prosperity)
	return router
}

func doRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}
