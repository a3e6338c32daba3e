package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/landb/internal/fetcher"
	"github.com/stwalsh4118/landb/internal/ingest"
	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/prosperity"
	"github.com/stwalsh4118/landb/internal/store"
)

var (
	// ErrNoSnapshot is returned by reads before the first successful refresh.
	ErrNoSnapshot = errors.New("no land snapshot has been fetched yet")

	// ErrInvalidPadding is returned for a negative adjacency padding.
	ErrInvalidPadding = errors.New("padding must be non-negative")
)

// LandRepository defines the land snapshot operations.
//
// Single-record lookups return nil, nil on a miss.
type LandRepository interface {
	// Exists reports whether a snapshot table has ever been created.
	Exists(ctx context.Context) (bool, error)

	// Refresh fetches every configured island and replaces the snapshot.
	// It returns false with a nil error when the fetch was throttled.
	Refresh(ctx context.Context) (bool, error)

	// GetLastFetchDate returns the pre-flight time of the last successful
	// refresh, or nil if there has been none.
	GetLastFetchDate(ctx context.Context) (*time.Time, error)

	// GetLastRequestDate returns the time of the last fetch attempt.
	GetLastRequestDate(ctx context.Context) (*time.Time, error)

	// GetLands returns every land, or only those of owner when it is set.
	// Owners match case-insensitively. Lands are ordered by (island, x, y).
	GetLands(ctx context.Context, owner string) ([]models.Land, error)

	GetOnMarketLands(ctx context.Context) ([]models.Land, error)

	// GetLandAt returns the land whose footprint covers (x, y) on the island.
	GetLandAt(ctx context.Context, islandID, x, y int) (*models.Land, error)

	GetLandByTokenID(ctx context.Context, tokenID int64) (*models.Land, error)

	// GetLandByRegionID returns the first match in primary key order.
	GetLandByRegionID(ctx context.Context, regionID int) (*models.Land, error)

	GetCounts(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error)

	// GetAdjacent returns the other lands on the same island touching the
	// land's bounding box grown by padding.
	GetAdjacent(ctx context.Context, land models.Land, padding int) ([]models.Land, error)

	// GetNeighbors groups the foreign lands touching owner's lands by their owner.
	GetNeighbors(ctx context.Context, owner string, descending bool) ([]models.Neighbor, error)

	// GetOwnerInfoMap ranks every owner by holdings.
	GetOwnerInfoMap(ctx context.Context, descending bool) ([]models.OwnerInfo, error)

	CalcProsperityPoint(land models.Land) (float64, error)

	// CalcProsperityPoints sums the points of owner's lands, or of all lands.
	CalcProsperityPoints(ctx context.Context, owner string) (float64, error)
}

// landRepository is the concrete implementation of LandRepository.
type landRepository struct {
	store      store.Store
	fetcher    fetcher.Fetcher
	normalizer *ingest.Normalizer
	calculator *prosperity.Calculator
	islands    []models.Island
	log        *logger.Logger
}

// NewLandRepository creates a LandRepository. The first island is the
// primary one whose fetch time becomes lastFetchedAt.
func NewLandRepository(
	s store.Store,
	f fetcher.Fetcher,
	n *ingest.Normalizer,
	calc *prosperity.Calculator,
	islands []models.Island,
	log *logger.Logger,
) (LandRepository, error) {
	if len(islands) == 0 {
		return nil, fmt.Errorf("at least one island is required")
	}
	return &landRepository{
		store:      s,
		fetcher:    f,
		normalizer: n,
		calculator: calc,
		islands:    islands,
		log:        log.WithComponent("repository"),
	}, nil
}

// Exists reports whether the land table has been created.
func (r *landRepository) Exists(ctx context.Context) (bool, error) {
	return r.store.Exists(ctx)
}

// Refresh fetches every configured island before touching the store, so a
// failure on any island leaves the previous snapshot in place.
func (r *landRepository) Refresh(ctx context.Context) (bool, error) {
	if r.store.ReadOnly() {
		return false, store.ErrReadOnly
	}

	start := time.Now()
	batches := make([]*fetcher.Batch, 0, len(r.islands))
	for _, island := range r.islands {
		batch, err := r.fetcher.Fetch(ctx, island)
		if err != nil {
			if errors.Is(err, fetcher.ErrThrottled) {
				r.logThrottled(ctx)
				return false, nil
			}
			return false, fmt.Errorf("refresh aborted: %w", err)
		}
		batches = append(batches, batch)
	}

	normalized := r.normalizer.NewBatch()
	for _, b := range batches {
		normalized.Add(b.Island, b.Records)
	}
	lands := normalized.Lands()
	report := normalized.Report()

	info := map[string]string{
		models.InfoLastFetchedAt: batches[0].RequestedAt.UTC().Format(models.InfoTimeLayout),
	}
	if err := r.store.ReplaceLands(ctx, lands, info); err != nil {
		return false, fmt.Errorf("failed to replace land snapshot: %w", err)
	}

	r.log.Info("Land snapshot refreshed", map[string]interface{}{
		"islands":        len(batches),
		"lands":          report.Accepted,
		"rejected":       report.Rejected,
		"unknown_fields": len(report.UnknownFields),
		"duration_ms":    time.Since(start).Milliseconds(),
	})
	return true, nil
}

func (r *landRepository) logThrottled(ctx context.Context) {
	fields := map[string]interface{}{}
	if last, err := r.GetLastFetchDate(ctx); err == nil && last != nil {
		fields["last_fetched_at"] = last.Local().Format(time.RFC1123)
	}
	r.log.Info("Refresh skipped, fetch throttled", fields)
}

// GetLastFetchDate reads lastFetchedAt from the info table.
func (r *landRepository) GetLastFetchDate(ctx context.Context) (*time.Time, error) {
	return r.infoTime(ctx, models.InfoLastFetchedAt)
}

func (r *landRepository) GetLastRequestDate(ctx context.Context) (*time.Time, error) {
	return r.infoTime(ctx, models.InfoLastRequestedAt)
}

func (r *landRepository) infoTime(ctx context.Context, name string) (*time.Time, error) {
	value, ok, err := r.store.GetInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok || value == "" {
		return nil, nil
	}
	t, err := time.Parse(models.InfoTimeLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return &t, nil
}

// requireSnapshot guards every read against a store that was never filled.
func (r *landRepository) requireSnapshot(ctx context.Context) error {
	exists, err := r.store.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSnapshot
	}
	return nil
}

func (r *landRepository) findLands(ctx context.Context, filter store.LandFilter) ([]models.Land, error) {
	if err := r.requireSnapshot(ctx); err != nil {
		return nil, err
	}
	return r.store.FindLands(ctx, filter)
}

func (r *landRepository) findOne(ctx context.Context, filter store.LandFilter) (*models.Land, error) {
	filter.Order = store.OrderByKey
	filter.Limit = 1
	lands, err := r.findLands(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(lands) == 0 {
		return nil, nil
	}
	return &lands[0], nil
}

// GetLands lists every land, or owner's lands when owner is set.
func (r *landRepository) GetLands(ctx context.Context, owner string) ([]models.Land, error) {
	return r.findLands(ctx, store.LandFilter{Owner: owner})
}

// GetOnMarketLands returns the listed lands ordered by (island, x, y).
func (r *landRepository) GetOnMarketLands(ctx context.Context) ([]models.Land, error) {
	lands, err := r.findLands(ctx, store.LandFilter{OnMarketOnly: true})
	if err != nil {
		return nil, err
	}
	return keep(lands, models.Land.IsOnMarket), nil
}

// GetLandAt returns the first land by primary key whose footprint covers
// (x, y). The store narrows by bounding box; the footprint rule decides.
func (r *landRepository) GetLandAt(ctx context.Context, islandID, x, y int) (*models.Land, error) {
	land, err := r.findOne(ctx, store.LandFilter{
		Contains: &store.Point{IslandID: islandID, X: x, Y: y},
	})
	if err != nil || land == nil {
		return nil, err
	}
	if land.IslandID != islandID || !land.Contains(x, y) {
		r.log.Warn("Store returned a land outside the requested cell", map[string]interface{}{
			"token_id": land.TokenID,
			"island":   islandID,
			"x":        x,
			"y":        y,
		})
		return nil, nil
	}
	return land, nil
}

// keep filters lands in place, preserving order.
func keep(lands []models.Land, match func(models.Land) bool) []models.Land {
	out := lands[:0]
	for _, land := range lands {
		if match(land) {
			out = append(out, land)
		}
	}
	return out
}

// GetLandByTokenID returns nil, nil when no land carries the token.
func (r *landRepository) GetLandByTokenID(ctx context.Context, tokenID int64) (*models.Land, error) {
	return r.findOne(ctx, store.LandFilter{TokenID: &tokenID})
}

// GetLandByRegionID returns the lowest island's match.
func (r *landRepository) GetLandByRegionID(ctx context.Context, regionID int) (*models.Land, error) {
	return r.findOne(ctx, store.LandFilter{RegionID: &regionID})
}

// GetCounts groups lands by region weight and level, and by island when asked.
func (r *landRepository) GetCounts(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error) {
	if err := r.requireSnapshot(ctx); err != nil {
		return nil, err
	}
	return r.store.CountLands(ctx, owner, groupByIsland)
}
