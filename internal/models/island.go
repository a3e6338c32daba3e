package models

import (
	"fmt"
	"strings"
)

// Island is a separate coordinate namespace of parcels.
type Island struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// KnownIslands lists the land collections in launch order.
var KnownIslands = []Island{
	{ID: 0, Name: "main"},
	{ID: 1, Name: "divinity"},
	{ID: 2, Name: "wizard"},
	{ID: 3, Name: "scorpion"},
	{ID: 4, Name: "ghost"},
}

// DefaultIslandID is the island used when a query does not name one.
const DefaultIslandID = 0

// ParseIslands resolves a list of island names to islands, keeping the given order.
func ParseIslands(names []string) ([]Island, error) {
	islands := make([]Island, 0, len(names))
	seen := make(map[int]bool, len(names))
	for _, name := range names {
		island, ok := IslandByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown island %q", name)
		}
		if seen[island.ID] {
			return nil, fmt.Errorf("island %q listed more than once", name)
		}
		seen[island.ID] = true
		islands = append(islands, island)
	}
	return islands, nil
}

// IslandByName finds a known island by its case-insensitive name.
func IslandByName(name string) (Island, bool) {
	name = strings.TrimSpace(name)
	for _, island := range KnownIslands {
		if strings.EqualFold(island.Name, name) {
			return island, true
		}
	}
	return Island{}, false
}
