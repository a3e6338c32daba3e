// Package prosperity scores lands with the prosperity point formula:
//
//	basePoint(island, level) * w² * sizeMultiplier(w) * landlordMultiplier(signType)
//
// where sizeMultiplier is 1 for 1x1 lands and w-0.5 otherwise.
package prosperity

import (
	"errors"
	"fmt"

	"github.com/stwalsh4118/landb/internal/models"
)

var (
	ErrUnknownIsland   = errors.New("no prosperity table for island")
	ErrUnknownLevel    = errors.New("no base point for land level")
	ErrUnknownSignType = errors.New("no landlord multiplier for sign type")
)

// skipField marks a land that is excluded from scoring by the remote source.
const skipField = "skipPp"

// Calculator evaluates the prosperity formula against fixed tables.
type Calculator struct {
	tables     Tables
	exceptions map[int]map[int64]struct{}
}

// NewCalculator builds a Calculator from validated tables.
func NewCalculator(tables Tables) (*Calculator, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prosperity tables: %w", err)
	}

	exceptions := make(map[int]map[int64]struct{}, len(tables.Islands))
	for id, island := range tables.Islands {
		set := make(map[int64]struct{}, len(island.Exceptions))
		for _, token := range island.Exceptions {
			set[token] = struct{}{}
		}
		exceptions[id] = set
	}

	return &Calculator{tables: tables, exceptions: exceptions}, nil
}

// IsException reports whether the land is a reserved parcel that never scores.
func (c *Calculator) IsException(land models.Land) bool {
	if _, ok := c.exceptions[land.IslandID][land.TokenID]; ok {
		return true
	}
	return land.Extra.Bool(skipField)
}

// Point returns the prosperity point of a single land.
// Levels, sign types and islands missing from the tables are errors.
func (c *Calculator) Point(land models.Land) (float64, error) {
	if c.IsException(land) {
		return 0, nil
	}

	base, err := c.BasePoint(land.IslandID, land.Level)
	if err != nil {
		return 0, err
	}

	landlord, err := c.LandlordMultiplier(land.SignType)
	if err != nil {
		return 0, err
	}

	w := float64(land.RegionWeight)
	return base * w * w * SizeMultiplier(land.RegionWeight) * landlord, nil
}

// Total sums the prosperity points of lands, stopping at the first error.
func (c *Calculator) Total(lands []models.Land) (float64, error) {
	var total float64
	for _, land := range lands {
		p, err := c.Point(land)
		if err != nil {
			return 0, fmt.Errorf("token %d: %w", land.TokenID, err)
		}
		total += p
	}
	return total, nil
}

// BasePoint looks up the base point of a level on an island.
func (c *Calculator) BasePoint(islandID, level int) (float64, error) {
	island, ok := c.tables.Islands[islandID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownIsland, islandID)
	}
	base, ok := island.BasePoints[level]
	if !ok {
		return 0, fmt.Errorf("%w: island %d level %d", ErrUnknownLevel, islandID, level)
	}
	return base, nil
}

// LandlordMultiplier looks up the multiplier for a sign type.
func (c *Calculator) LandlordMultiplier(signType int) (float64, error) {
	if signType < 0 || signType >= len(c.tables.LandlordMultipliers) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSignType, signType)
	}
	return c.tables.LandlordMultipliers[signType], nil
}

// SizeMultiplier rewards larger parcels: 1 for 1x1, w-0.5 otherwise.
func SizeMultiplier(regionWeight int) float64 {
	if regionWeight == 1 {
		return 1
	}
	return float64(regionWeight) - 0.5
}
