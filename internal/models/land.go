package models

import (
	"errors"
	"fmt"
	"time"
)

// MaxRegionWeight is the largest parcel side the registry is expected to hand out.
const MaxRegionWeight = 64

// ErrRegionWeight is returned for a parcel side outside [1, MaxRegionWeight].
var ErrRegionWeight = errors.New("region weight out of range")

// Land is a square parcel anchored at its top-left corner.
// It occupies cells [X, X+RegionWeight) horizontally and (Y-RegionWeight, Y] vertically.
type Land struct {
	Extra        Extension `json:"extra,omitempty"`
	ImageURL     string    `json:"imageUrl"`
	ImageStatus  string    `json:"imageStatus"`
	OwnerAddress string    `json:"userAddress" validate:"required"`
	TokenID      int64     `json:"tokenId" validate:"gte=0"`
	IslandID     int       `json:"islandId" validate:"gte=0"`
	RegionWeight int       `json:"regionWeight" validate:"gte=1,lte=64"`
	RegionID     int       `json:"regionId"`
	X            int       `json:"x"`
	Y            int       `json:"y"`
	Level        int       `json:"level"`
	OnMarket     int       `json:"onMarket" validate:"oneof=0 1"`
	MarketX      int       `json:"marketX"`
	MarketY      int       `json:"marketY"`
	SignType     int       `json:"signType" validate:"gte=0"`
}

// Area returns the number of grid cells the parcel covers.
func (l Land) Area() int {
	return l.RegionWeight * l.RegionWeight
}

// IsOnMarket reports whether the parcel is listed for sale.
func (l Land) IsOnMarket() bool {
	return l.OnMarket == 1
}

// Info keys stored in the sidecar table.
const (
	InfoLastFetchedAt   = "lastFetchedAt"
	InfoLastRequestedAt = "lastRequestedAt"
)

// InfoTimeLayout is the encoding used for timestamps in the Info sidecar.
const InfoTimeLayout = time.RFC3339Nano

// LandCount is one row of a grouped cardinality query.
// IslandID is only set when the counts were grouped by island.
type LandCount struct {
	IslandID     *int `json:"islandId,omitempty"`
	RegionWeight int  `json:"regionWeight"`
	Level        int  `json:"level"`
	Count        int  `json:"count"`
}

// OwnerInfo summarizes the holdings of a single owner.
//
// Counts[0] is the total occupied area (sum of RegionWeight squared) and
// Counts[k] is the number of parcels with RegionWeight == k.
type OwnerInfo struct {
	OwnerAddress string `json:"ownerAddress"`
	Lands        []Land `json:"lands"`
	Counts       []int  `json:"counts"`
}

// Count returns Counts[k], or zero when k is past the end of the slice.
func (o *OwnerInfo) Count(k int) int {
	if k < 0 || k >= len(o.Counts) {
		return 0
	}
	return o.Counts[k]
}

// Add records a parcel in the owner's lands and counts.
// Counts only grows to the largest weight seen, capped at MaxRegionWeight.
func (o *OwnerInfo) Add(land Land) error {
	w := land.RegionWeight
	if w < 1 || w > MaxRegionWeight {
		return fmt.Errorf("%w: token %d has weight %d", ErrRegionWeight, land.TokenID, w)
	}
	if len(o.Counts) <= w {
		grown := make([]int, w+1)
		copy(grown, o.Counts)
		o.Counts = grown
	}
	o.Lands = append(o.Lands, land)
	o.Counts[0] += land.Area()
	o.Counts[w]++
	return nil
}

// Neighbor groups the foreign parcels of one owner that touch another owner's lands.
type Neighbor struct {
	OwnerAddress string `json:"ownerAddress"`
	Lands        []Land `json:"lands"`
}
