// Package ingest turns raw land records from the remote registry into
// validated models.Land values.
//
// Decoding is permissive: fields the service does not know are reported to
// a drift hook and dropped, never rejected. Records that break a Land
// invariant are skipped and reported.
package ingest

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
)

// wireLand mirrors the remote record shape.
type wireLand struct {
	RegionWeight flexInt    `json:"regionWeight"`
	RegionID     flexInt    `json:"regionId"`
	X            flexInt    `json:"x"`
	Y            flexInt    `json:"y"`
	ImageURL     flexString `json:"imageUrl"`
	ImageStatus  flexString `json:"imageStatus"`
	Level        flexInt    `json:"level"`
	OnMarket     flexInt    `json:"onMarket"`
	UserAddress  flexString `json:"userAddress"`
	TokenID      flexInt    `json:"tokenId"`
	MarketX      flexInt    `json:"marketX"`
	MarketY      flexInt    `json:"marketY"`
	SignType     flexInt    `json:"signType"`
}

// coreFields are the remote fields decoded into wireLand. islandId is
// accepted but the configured island always wins.
var coreFields = map[string]bool{
	"regionWeight": true,
	"regionId":     true,
	"x":            true,
	"y":            true,
	"imageUrl":     true,
	"imageStatus":  true,
	"level":        true,
	"onMarket":     true,
	"userAddress":  true,
	"tokenId":      true,
	"marketX":      true,
	"marketY":      true,
	"signType":     true,
	"islandId":     true,
}

var extensionFields = func() map[string]bool {
	m := make(map[string]bool, len(models.ExtensionFields))
	for _, name := range models.ExtensionFields {
		m[name] = true
	}
	return m
}()

// DriftHook observes a field the service does not know about. It is called
// once per island and field in a batch.
type DriftHook func(island models.Island, field string)

// RejectHook observes a record that could not be turned into a Land.
type RejectHook func(island models.Island, index int, err error)

// Normalizer decodes and validates raw records.
type Normalizer struct {
	validate *validator.Validate
	onDrift  DriftHook
	onReject RejectHook
}

// NewNormalizer creates a Normalizer whose hooks log warnings to log.
func NewNormalizer(log *logger.Logger) *Normalizer {
	log = log.WithComponent("ingest")
	return &Normalizer{
		validate: validator.New(),
		onDrift: func(island models.Island, field string) {
			log.Warn("Unknown land field in remote record", map[string]interface{}{
				"island": island.Name,
				"field":  field,
			})
		},
		onReject: func(island models.Island, index int, err error) {
			log.Warn("Skipping invalid land record", map[string]interface{}{
				"island": island.Name,
				"index":  index,
				"error":  err.Error(),
			})
		},
	}
}

// WithDriftHook replaces the schema drift hook.
func (n *Normalizer) WithDriftHook(hook DriftHook) *Normalizer {
	n.onDrift = hook
	return n
}

// WithRejectHook replaces the invalid record hook.
func (n *Normalizer) WithRejectHook(hook RejectHook) *Normalizer {
	n.onReject = hook
	return n
}

// Report summarizes one batch.
type Report struct {
	Accepted      int
	Rejected      int
	UnknownFields map[string]int
}

// Batch normalizes the records of one refresh across islands and enforces
// the uniqueness invariants between them.
type Batch struct {
	n       *Normalizer
	lands   []models.Land
	report  Report
	tokens  map[int64]bool
	cells   map[[3]int]bool
	regions map[[2]int]bool
	drifted map[string]bool
}

// NewBatch starts an empty batch.
func (n *Normalizer) NewBatch() *Batch {
	return &Batch{
		n:       n,
		report:  Report{UnknownFields: map[string]int{}},
		tokens:  map[int64]bool{},
		cells:   map[[3]int]bool{},
		regions: map[[2]int]bool{},
		drifted: map[string]bool{},
	}
}

// Add normalizes the records fetched for island.
func (b *Batch) Add(island models.Island, records []json.RawMessage) {
	for i, raw := range records {
		land, err := b.decode(island, raw)
		if err == nil {
			err = b.claim(land)
		}
		if err != nil {
			b.report.Rejected++
			if b.n.onReject != nil {
				b.n.onReject(island, i, err)
			}
			continue
		}
		b.lands = append(b.lands, land)
		b.report.Accepted++
	}
}

// Lands returns the accepted lands in the order they were added.
func (b *Batch) Lands() []models.Land {
	return b.lands
}

// Report returns the batch summary.
func (b *Batch) Report() Report {
	return b.report
}

func (b *Batch) decode(island models.Island, raw json.RawMessage) (models.Land, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Land{}, fmt.Errorf("record is not an object: %w", err)
	}

	// Only exact field names reach wireLand. encoding/json matches struct
	// tags case-insensitively, so a drifting "TokenID" would otherwise
	// overwrite "tokenId".
	var extra models.Extension
	core := make(map[string]json.RawMessage, len(coreFields))
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch {
		case coreFields[name]:
			core[name] = fields[name]
		case extensionFields[name]:
			if extra == nil {
				extra = models.Extension{}
			}
			extra[name] = fields[name]
		default:
			b.drift(island, name)
		}
	}

	exact, err := json.Marshal(core)
	if err != nil {
		return models.Land{}, fmt.Errorf("failed to re-encode record: %w", err)
	}
	var w wireLand
	if err := json.Unmarshal(exact, &w); err != nil {
		return models.Land{}, fmt.Errorf("failed to decode record: %w", err)
	}

	land := models.Land{
		IslandID:     island.ID,
		RegionWeight: int(w.RegionWeight),
		RegionID:     int(w.RegionID),
		X:            int(w.X),
		Y:            int(w.Y),
		ImageURL:     string(w.ImageURL),
		ImageStatus:  string(w.ImageStatus),
		Level:        int(w.Level),
		OnMarket:     int(w.OnMarket),
		OwnerAddress: string(w.UserAddress),
		TokenID:      int64(w.TokenID),
		MarketX:      int(w.MarketX),
		MarketY:      int(w.MarketY),
		SignType:     int(w.SignType),
		Extra:        extra,
	}

	if err := b.n.validate.Struct(land); err != nil {
		return models.Land{}, fmt.Errorf("token %d: %w", land.TokenID, err)
	}
	return land, nil
}

// claim records the land's unique keys, failing if one is already taken.
func (b *Batch) claim(land models.Land) error {
	cell := [3]int{land.IslandID, land.X, land.Y}
	region := [2]int{land.IslandID, land.RegionID}
	switch {
	case b.tokens[land.TokenID]:
		return fmt.Errorf("duplicate token %d", land.TokenID)
	case b.cells[cell]:
		return fmt.Errorf("duplicate location (%d,%d) on island %d", land.X, land.Y, land.IslandID)
	case b.regions[region]:
		return fmt.Errorf("duplicate region %d on island %d", land.RegionID, land.IslandID)
	}
	b.tokens[land.TokenID] = true
	b.cells[cell] = true
	b.regions[region] = true
	return nil
}

func (b *Batch) drift(island models.Island, field string) {
	b.report.UnknownFields[field]++
	key := fmt.Sprintf("%d/%s", island.ID, field)
	if b.drifted[key] {
		return
	}
	b.drifted[key] = true
	if b.n.onDrift != nil {
		b.n.onDrift(island, field)
	}
}
