// Package store persists the land snapshot and its Info sidecar.
//
// The land table is only ever written through ReplaceLands, which swaps the
// whole table inside one transaction. Info rows survive across replacements.
package store

import (
	"context"
	"errors"

	"github.com/stwalsh4118/landb/internal/models"
)

var (
	// ErrReadOnly is returned by write operations on a store opened read-only.
	ErrReadOnly = errors.New("store is read-only")
)

// Order selects the row ordering of FindLands.
type Order int

const (
	// OrderByLocation sorts by (island_id, x, y).
	OrderByLocation Order = iota
	// OrderByKey sorts by the primary key (island_id, region_id).
	OrderByKey
)

// Point is a grid cell on one island.
type Point struct {
	IslandID int
	X        int
	Y        int
}

// LandFilter narrows FindLands. Zero values mean "no restriction".
type LandFilter struct {
	// Owner matches owner addresses case-insensitively.
	Owner          string
	OnMarketOnly   bool
	IslandID       *int
	TokenID        *int64
	RegionID       *int
	ExcludeTokenID *int64
	// Contains keeps parcels whose footprint covers the point.
	Contains *Point
	// Overlaps keeps parcels whose footprint intersects the rectangle.
	Overlaps *models.Rect
	Order    Order
	Limit    int
}

// Store is the storage collaborator of the land repository.
type Store interface {
	// Exists reports whether the land table has been created.
	Exists(ctx context.Context) (bool, error)

	// ReplaceLands drops and recreates the land table, inserts lands and
	// upserts the info entries, all in one transaction.
	ReplaceLands(ctx context.Context, lands []models.Land, info map[string]string) error

	// GetInfo reads an Info entry. ok is false when the entry is absent.
	GetInfo(ctx context.Context, name string) (value string, ok bool, err error)

	// SetInfo upserts an Info entry outside of any land replacement.
	SetInfo(ctx context.Context, name, value string) error

	// FindLands returns the lands matching filter.
	FindLands(ctx context.Context, filter LandFilter) ([]models.Land, error)

	// CountLands groups lands by (island,) region weight and level.
	CountLands(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error)

	Ping(ctx context.Context) error
	Driver() string
	ReadOnly() bool
}
