package repository

import (
	"cmp"
	"context"
	"sort"

	"github.com/stwalsh4118/landb/internal/models"
)

// GetOwnerInfoMap builds one OwnerInfo per owner address, ignoring case, and
// ranks them with lessOwner. Lands with an out-of-range weight are skipped.
func (r *landRepository) GetOwnerInfoMap(ctx context.Context, descending bool) ([]models.OwnerInfo, error) {
	lands, err := r.GetLands(ctx, "")
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	owners := []models.OwnerInfo{}
	for _, land := range lands {
		key := ownerKey(land.OwnerAddress)
		i, ok := index[key]
		if !ok {
			owners = append(owners, models.OwnerInfo{OwnerAddress: land.OwnerAddress})
			i = len(owners) - 1
		}
		if err := owners[i].Add(land); err != nil {
			r.log.Warn("Skipping land in owner ranking", map[string]interface{}{
				"token_id": land.TokenID,
				"error":    err.Error(),
			})
			if !ok {
				owners = owners[:i]
			}
			continue
		}
		index[key] = i
	}

	sort.Slice(owners, func(i, j int) bool {
		return lessOwner(&owners[i], &owners[j], descending)
	})
	return owners, nil
}

// lessOwner ranks by total area, then by the count of each parcel size from
// the largest down, then by address. descending never flips the address.
func lessOwner(a, b *models.OwnerInfo, descending bool) bool {
	if c := compareCounts(a, b); c != 0 {
		if descending {
			return c > 0
		}
		return c < 0
	}
	return ownerKey(a.OwnerAddress) < ownerKey(b.OwnerAddress)
}

func compareCounts(a, b *models.OwnerInfo) int {
	if a.Count(0) != b.Count(0) {
		return cmp.Compare(a.Count(0), b.Count(0))
	}
	for k := max(len(a.Counts), len(b.Counts)) - 1; k >= 1; k-- {
		if a.Count(k) != b.Count(k) {
			return cmp.Compare(a.Count(k), b.Count(k))
		}
	}
	return 0
}

// CalcProsperityPoint scores a single land.
func (r *landRepository) CalcProsperityPoint(land models.Land) (float64, error) {
	return r.calculator.Point(land)
}

// CalcProsperityPoints sums the points of owner's lands, or of every land.
func (r *landRepository) CalcProsperityPoints(ctx context.Context, owner string) (float64, error) {
	lands, err := r.GetLands(ctx, owner)
	if err != nil {
		return 0, err
	}
	return r.calculator.Total(lands)
}
