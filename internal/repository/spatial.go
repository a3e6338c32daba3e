package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/store"
)

// neighborPadding is the Moore neighborhood: parcels touching on a side or corner.
const neighborPadding = 1

// GetAdjacent returns the lands on land's island whose footprint touches its
// bounds grown by padding, ordered by (island, x, y). land itself is excluded.
func (r *landRepository) GetAdjacent(ctx context.Context, land models.Land, padding int) ([]models.Land, error) {
	if padding < 0 {
		return nil, ErrInvalidPadding
	}
	if err := r.requireSnapshot(ctx); err != nil {
		return nil, err
	}
	return r.adjacent(ctx, land, padding)
}

// adjacent queries the store by padded bounding box and keeps the lands
// that pass IsAdjacent.
func (r *landRepository) adjacent(ctx context.Context, land models.Land, padding int) ([]models.Land, error) {
	bounds := land.PaddedBounds(padding)
	islandID := land.IslandID
	tokenID := land.TokenID
	lands, err := r.store.FindLands(ctx, store.LandFilter{
		IslandID:       &islandID,
		ExcludeTokenID: &tokenID,
		Overlaps:       &bounds,
	})
	if err != nil {
		return nil, err
	}
	return keep(lands, func(other models.Land) bool {
		return land.IsAdjacent(other, padding)
	}), nil
}

// GetNeighbors collects the foreign lands touching any of owner's lands,
// each counted once, and groups them by owner address ignoring case.
// Groups are ranked by size, ties broken by address.
func (r *landRepository) GetNeighbors(ctx context.Context, owner string, descending bool) ([]models.Neighbor, error) {
	owned, err := r.findLands(ctx, store.LandFilter{Owner: owner})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	groups := make(map[string]*models.Neighbor)
	for _, land := range owned {
		touching, err := r.adjacent(ctx, land, neighborPadding)
		if err != nil {
			return nil, err
		}
		for _, other := range touching {
			if strings.EqualFold(other.OwnerAddress, owner) || seen[other.TokenID] {
				continue
			}
			seen[other.TokenID] = true

			key := ownerKey(other.OwnerAddress)
			group, ok := groups[key]
			if !ok {
				group = &models.Neighbor{OwnerAddress: other.OwnerAddress}
				groups[key] = group
			}
			group.Lands = append(group.Lands, other)
		}
	}

	neighbors := make([]models.Neighbor, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group.Lands, func(i, j int) bool {
			return lessByPosition(group.Lands[i], group.Lands[j])
		})
		neighbors = append(neighbors, *group)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		a, b := neighbors[i], neighbors[j]
		if len(a.Lands) != len(b.Lands) {
			if descending {
				return len(a.Lands) > len(b.Lands)
			}
			return len(a.Lands) < len(b.Lands)
		}
		return ownerKey(a.OwnerAddress) < ownerKey(b.OwnerAddress)
	})
	return neighbors, nil
}

// lessByPosition orders by (x, y), then island to keep the order total.
func lessByPosition(a, b models.Land) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.IslandID < b.IslandID
}

func ownerKey(address string) string {
	return strings.ToLower(address)
}
