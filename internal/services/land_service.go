package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/repository"
	"github.com/stwalsh4118/landb/internal/store"
	"golang.org/x/sync/singleflight"
)

// Padding validation constants
const (
	DefaultPadding = 1
	MinPadding     = 0
	MaxPadding     = 16
)

// Service-level errors
var (
	ErrLandNotFound     = errors.New("land not found")
	ErrInvalidIsland    = errors.New("unknown island")
	ErrInvalidPadding   = errors.New("padding must be between 0 and 16")
	ErrOwnerRequired    = errors.New("owner address is required")
	ErrRefreshThrottled = errors.New("refresh throttled")
	ErrRefreshFailed    = errors.New("refresh failed")

	// ErrNoSnapshot and ErrReadOnly are passed through from the lower layers.
	ErrNoSnapshot = repository.ErrNoSnapshot
	ErrReadOnly   = store.ErrReadOnly
)

// ThrottledError tells the caller when the next refresh may run.
type ThrottledError struct {
	NextAllowedAt time.Time
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("refresh throttled until %s", e.NextAllowedAt.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRefreshThrottled) hold.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrRefreshThrottled
}

// RefreshResult describes a completed refresh.
type RefreshResult struct {
	Refreshed     bool       `json:"refreshed"`
	LastFetchedAt *time.Time `json:"lastFetchedAt"`
}

// SnapshotInfo describes the state of the local snapshot.
type SnapshotInfo struct {
	Exists          bool       `json:"exists"`
	LastFetchedAt   *time.Time `json:"lastFetchedAt"`
	LastRequestedAt *time.Time `json:"lastRequestedAt"`
	NextFetchAt     *time.Time `json:"nextFetchAt"`
}

// LandPoint is the prosperity point of one land.
type LandPoint struct {
	TokenID  int64   `json:"tokenId"`
	IslandID int     `json:"islandId"`
	Point    float64 `json:"point"`
}

// ProsperityReport totals prosperity points for an owner, or for every land
// when OwnerAddress is empty. Lands is only filled for a single owner.
type ProsperityReport struct {
	OwnerAddress string      `json:"ownerAddress,omitempty"`
	Total        float64     `json:"total"`
	Lands        []LandPoint `json:"lands,omitempty"`
}

// LandService defines the land business operations behind the HTTP API.
type LandService interface {
	// Refresh pulls a new snapshot. Concurrent calls share one refresh.
	// Returns a *ThrottledError when inside the fetch interval.
	Refresh(ctx context.Context) (*RefreshResult, error)

	// RefreshIfEmpty refreshes only when no snapshot has ever been stored.
	RefreshIfEmpty(ctx context.Context) (bool, error)

	Info(ctx context.Context) (*SnapshotInfo, error)

	ListLands(ctx context.Context, owner string) ([]models.Land, error)
	ListOnMarket(ctx context.Context) ([]models.Land, error)

	// GetLandAt returns ErrLandNotFound when no land covers the cell.
	GetLandAt(ctx context.Context, islandID, x, y int) (*models.Land, error)
	GetLandByToken(ctx context.Context, tokenID int64) (*models.Land, error)
	GetLandByRegion(ctx context.Context, regionID int) (*models.Land, error)

	// GetAdjacent returns the lands touching the land with tokenID.
	GetAdjacent(ctx context.Context, tokenID int64, padding int) ([]models.Land, error)

	GetCounts(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error)
	GetNeighbors(ctx context.Context, owner string, descending bool) ([]models.Neighbor, error)
	GetOwnerRanking(ctx context.Context, descending bool) ([]models.OwnerInfo, error)
	GetProsperity(ctx context.Context, owner string) (*ProsperityReport, error)
}

// landService is the concrete implementation of LandService.
type landService struct {
	repo     repository.LandRepository
	interval time.Duration
	refresh  singleflight.Group
	log      *logger.Logger
}

// NewLandService creates a LandService. interval is the fetch throttle
// window, used to report when the next refresh is allowed.
func NewLandService(repo repository.LandRepository, interval time.Duration, log *logger.Logger) LandService {
	return &landService{
		repo:     repo,
		interval: interval,
		log:      log.WithComponent("service"),
	}
}

func (s *landService) Refresh(ctx context.Context) (*RefreshResult, error) {
	// One caller going away must not cancel the refresh the others wait on.
	v, err, shared := s.refresh.Do("refresh", func() (interface{}, error) {
		return s.doRefresh(context.WithoutCancel(ctx))
	})
	if shared {
		s.log.Debug("Joined in-flight refresh", nil)
	}
	if err != nil {
		return nil, err
	}
	return v.(*RefreshResult), nil
}

func (s *landService) doRefresh(ctx context.Context) (*RefreshResult, error) {
	refreshed, err := s.repo.Refresh(ctx)
	if err != nil {
		if errors.Is(err, store.ErrReadOnly) {
			return nil, err
		}
		s.log.Error("Refresh failed", err, nil)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if !refreshed {
		next := time.Now().Add(s.interval)
		if last, err := s.repo.GetLastRequestDate(ctx); err == nil && last != nil {
			next = last.Add(s.interval)
		}
		return nil, &ThrottledError{NextAllowedAt: next}
	}

	last, err := s.repo.GetLastFetchDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last fetch date: %w", err)
	}
	return &RefreshResult{Refreshed: true, LastFetchedAt: last}, nil
}

func (s *landService) RefreshIfEmpty(ctx context.Context) (bool, error) {
	exists, err := s.repo.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	if exists {
		s.log.Debug("Snapshot present, skipping cold-start refresh", nil)
		return false, nil
	}

	s.log.Info("No snapshot found, refreshing", nil)
	if _, err := s.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *landService) Info(ctx context.Context) (*SnapshotInfo, error) {
	exists, err := s.repo.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot: %w", err)
	}
	fetched, err := s.repo.GetLastFetchDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last fetch date: %w", err)
	}
	requested, err := s.repo.GetLastRequestDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last request date: %w", err)
	}

	info := &SnapshotInfo{Exists: exists, LastFetchedAt: fetched, LastRequestedAt: requested}
	if requested != nil {
		next := requested.Add(s.interval)
		info.NextFetchAt = &next
	}
	return info, nil
}

func (s *landService) ListLands(ctx context.Context, owner string) ([]models.Land, error) {
	lands, err := s.repo.GetLands(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list lands: %w", err)
	}
	s.log.Debug("Listed lands", map[string]interface{}{
		"owner": owner,
		"count": len(lands),
	})
	return lands, nil
}

func (s *landService) ListOnMarket(ctx context.Context) ([]models.Land, error) {
	lands, err := s.repo.GetOnMarketLands(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list on-market lands: %w", err)
	}
	return lands, nil
}

func (s *landService) GetLandAt(ctx context.Context, islandID, x, y int) (*models.Land, error) {
	if !knownIsland(islandID) {
		s.log.Warn("Invalid island provided", map[string]interface{}{"island": islandID})
		return nil, fmt.Errorf("%w: %d", ErrInvalidIsland, islandID)
	}

	land, err := s.repo.GetLandAt(ctx, islandID, x, y)
	if err != nil {
		s.log.Error("Failed to query land at point", err, map[string]interface{}{
			"island": islandID,
			"x":      x,
			"y":      y,
		})
		return nil, fmt.Errorf("failed to query land: %w", err)
	}

	// Repository returns nil, nil on a miss
	if land == nil {
		s.log.Debug("No land at point", map[string]interface{}{
			"island": islandID,
			"x":      x,
			"y":      y,
		})
		return nil, ErrLandNotFound
	}
	return land, nil
}

func (s *landService) GetLandByToken(ctx context.Context, tokenID int64) (*models.Land, error) {
	land, err := s.repo.GetLandByTokenID(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query land: %w", err)
	}
	if land == nil {
		return nil, ErrLandNotFound
	}
	return land, nil
}

func (s *landService) GetLandByRegion(ctx context.Context, regionID int) (*models.Land, error) {
	land, err := s.repo.GetLandByRegionID(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query land: %w", err)
	}
	if land == nil {
		return nil, ErrLandNotFound
	}
	return land, nil
}

func (s *landService) GetAdjacent(ctx context.Context, tokenID int64, padding int) ([]models.Land, error) {
	if padding < MinPadding || padding > MaxPadding {
		s.log.Warn("Invalid padding provided", map[string]interface{}{
			"token_id": tokenID,
			"padding":  padding,
		})
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPadding, padding)
	}

	land, err := s.GetLandByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	lands, err := s.repo.GetAdjacent(ctx, *land, padding)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjacent lands: %w", err)
	}
	return lands, nil
}

func (s *landService) GetCounts(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error) {
	counts, err := s.repo.GetCounts(ctx, owner, groupByIsland)
	if err != nil {
		return nil, fmt.Errorf("failed to count lands: %w", err)
	}
	return counts, nil
}

func (s *landService) GetNeighbors(ctx context.Context, owner string, descending bool) ([]models.Neighbor, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	neighbors, err := s.repo.GetNeighbors(ctx, owner, descending)
	if err != nil {
		return nil, fmt.Errorf("failed to find neighbors: %w", err)
	}
	s.log.Debug("Found neighbors", map[string]interface{}{
		"owner":  owner,
		"owners": len(neighbors),
	})
	return neighbors, nil
}

func (s *landService) GetOwnerRanking(ctx context.Context, descending bool) ([]models.OwnerInfo, error) {
	owners, err := s.repo.GetOwnerInfoMap(ctx, descending)
	if err != nil {
		return nil, fmt.Errorf("failed to rank owners: %w", err)
	}
	return owners, nil
}

func (s *landService) GetProsperity(ctx context.Context, owner string) (*ProsperityReport, error) {
	if owner == "" {
		total, err := s.repo.CalcProsperityPoints(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to calculate prosperity: %w", err)
		}
		return &ProsperityReport{Total: total}, nil
	}

	lands, err := s.repo.GetLands(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list lands: %w", err)
	}

	report := &ProsperityReport{OwnerAddress: owner, Lands: make([]LandPoint, 0, len(lands))}
	for _, land := range lands {
		point, err := s.repo.CalcProsperityPoint(land)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate prosperity of token %d: %w", land.TokenID, err)
		}
		report.Total += point
		report.Lands = append(report.Lands, LandPoint{TokenID: land.TokenID, IslandID: land.IslandID, Point: point})
	}
	return report, nil
}

func knownIsland(id int) bool {
	for _, island := range models.KnownIslands {
		if island.ID == id {
			return true
		}
	}
	return false
}
