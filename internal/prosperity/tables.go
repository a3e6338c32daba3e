package prosperity

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// Tables are the fixed lookup tables of the prosperity formula.
type Tables struct {
	Islands             map[int]IslandTable `yaml:"islands"`
	LandlordMultipliers []float64           `yaml:"landlord_multipliers"`
}

// IslandTable holds the per-island part of the formula.
type IslandTable struct {
	BasePoints map[int]float64 `yaml:"base_points"`
	Exceptions []int64         `yaml:"exceptions"`
}

// DefaultTables returns the tables compiled into the binary.
func DefaultTables() (Tables, error) {
	return parseTables(defaultTables, "tables.yaml")
}

// LoadTables reads tables from a YAML file. An empty path yields the defaults.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read prosperity tables: %w", err)
	}
	return parseTables(raw, path)
}

func parseTables(raw []byte, name string) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tables{}, fmt.Errorf("%s: %w", name, err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// Validate rejects tables the formula cannot be evaluated with.
func (t Tables) Validate() error {
	if len(t.Islands) == 0 {
		return fmt.Errorf("no islands defined")
	}
	if len(t.LandlordMultipliers) == 0 {
		return fmt.Errorf("no landlord multipliers defined")
	}
	for id, island := range t.Islands {
		if len(island.BasePoints) == 0 {
			return fmt.Errorf("island %d has no base points", id)
		}
		for level, points := range island.BasePoints {
			if points < 0 {
				return fmt.Errorf("island %d level %d has negative base points", id, level)
			}
		}
	}
	for i, m := range t.LandlordMultipliers {
		if m < 0 {
			return fmt.Errorf("landlord multiplier %d is negative", i)
		}
	}
	return nil
}
