package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stwalsh4118/landb/internal/models"
)

const (
	landTable = "land"
	infoTable = "land_info"
)

// landColumns is the column order used for inserts and selects.
var landColumns = []string{
	"island_id",
	"region_id",
	"region_weight",
	"x",
	"y",
	"image_url",
	"image_status",
	"level",
	"on_market",
	"owner_address",
	"token_id",
	"market_x",
	"market_y",
	"sign_type",
	"extra",
}

// createLandStatements recreate the land table. Both engines accept this DDL.
var createLandStatements = []string{
	`DROP TABLE IF EXISTS land`,
	`CREATE TABLE land (
		island_id     INTEGER NOT NULL DEFAULT 0,
		region_id     INTEGER NOT NULL,
		region_weight INTEGER NOT NULL CHECK (region_weight >= 1),
		x             INTEGER NOT NULL,
		y             INTEGER NOT NULL,
		image_url     TEXT    NOT NULL DEFAULT '',
		image_status  TEXT    NOT NULL DEFAULT '',
		level         INTEGER NOT NULL,
		on_market     INTEGER NOT NULL DEFAULT 0,
		owner_address TEXT    NOT NULL,
		token_id      BIGINT  NOT NULL UNIQUE,
		market_x      INTEGER NOT NULL DEFAULT 0,
		market_y      INTEGER NOT NULL DEFAULT 0,
		sign_type     INTEGER NOT NULL DEFAULT 0,
		extra         TEXT,
		PRIMARY KEY (island_id, region_id),
		UNIQUE (island_id, x, y)
	)`,
	`CREATE INDEX idx_land_owner ON land (lower(owner_address))`,
	`CREATE INDEX idx_land_on_market ON land (on_market)`,
}

const createInfoStatement = `CREATE TABLE IF NOT EXISTS land_info (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// dialect captures the differences between the SQL engines.
type dialect struct {
	// placeholder renders the n-th (1-based) bind parameter. Parameters are
	// always bound in order of appearance, so sqlite can use bare "?".
	placeholder func(n int) string
}

var (
	sqliteDialect   = dialect{placeholder: func(int) string { return "?" }}
	postgresDialect = dialect{placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// args accumulates bind parameters and hands out placeholders for them.
type args struct {
	d      dialect
	values []interface{}
}

func (a *args) add(v interface{}) string {
	a.values = append(a.values, v)
	return a.d.placeholder(len(a.values))
}

func (d dialect) insertLandSQL() string {
	placeholders := make([]string, len(landColumns))
	for i := range landColumns {
		placeholders[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		landTable, strings.Join(landColumns, ", "), strings.Join(placeholders, ", "))
}

func (d dialect) upsertInfoSQL() string {
	return fmt.Sprintf(
		"INSERT INTO %s (name, value) VALUES (%s, %s) ON CONFLICT (name) DO UPDATE SET value = excluded.value",
		infoTable, d.placeholder(1), d.placeholder(2))
}

func (d dialect) selectInfoSQL() string {
	return fmt.Sprintf("SELECT value FROM %s WHERE name = %s", infoTable, d.placeholder(1))
}

// landValues returns the insert parameters of a land in landColumns order.
func landValues(l models.Land) ([]interface{}, error) {
	extra, err := l.Extra.Value()
	if err != nil {
		return nil, err
	}
	return []interface{}{
		l.IslandID,
		l.RegionID,
		l.RegionWeight,
		l.X,
		l.Y,
		l.ImageURL,
		l.ImageStatus,
		l.Level,
		l.OnMarket,
		l.OwnerAddress,
		l.TokenID,
		l.MarketX,
		l.MarketY,
		l.SignType,
		extra,
	}, nil
}

// buildLandQuery renders the SELECT for a LandFilter.
func (d dialect) buildLandQuery(f LandFilter) (string, []interface{}) {
	a := &args{d: d}
	var where []string

	if f.Owner != "" {
		where = append(where, "lower(owner_address) = lower("+a.add(f.Owner)+")")
	}
	if f.OnMarketOnly {
		where = append(where, "on_market = 1")
	}
	if f.IslandID != nil {
		where = append(where, "island_id = "+a.add(*f.IslandID))
	}
	if f.TokenID != nil {
		where = append(where, "token_id = "+a.add(*f.TokenID))
	}
	if f.RegionID != nil {
		where = append(where, "region_id = "+a.add(*f.RegionID))
	}
	if f.ExcludeTokenID != nil {
		where = append(where, "token_id <> "+a.add(*f.ExcludeTokenID))
	}
	if p := f.Contains; p != nil {
		where = append(where,
			"island_id = "+a.add(p.IslandID),
			"x <= "+a.add(p.X),
			"x + region_weight > "+a.add(p.X),
			"y - region_weight < "+a.add(p.Y),
			"y >= "+a.add(p.Y),
		)
	}
	if r := f.Overlaps; r != nil {
		where = append(where,
			"x + region_weight - 1 >= "+a.add(r.StartX),
			"x <= "+a.add(r.EndX),
			"y >= "+a.add(r.StartY),
			"y - region_weight + 1 <= "+a.add(r.EndY),
		)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(landColumns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(landTable)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	switch f.Order {
	case OrderByKey:
		sb.WriteString(" ORDER BY island_id, region_id")
	default:
		sb.WriteString(" ORDER BY island_id, x, y")
	}
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(a.add(f.Limit))
	}

	return sb.String(), a.values
}

// buildCountQuery renders the grouped cardinality query.
func (d dialect) buildCountQuery(owner string, groupByIsland bool) (string, []interface{}) {
	a := &args{d: d}
	group := "region_weight, level"
	if groupByIsland {
		group = "island_id, " + group
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(group)
	sb.WriteString(", COUNT(*) FROM ")
	sb.WriteString(landTable)
	if owner != "" {
		sb.WriteString(" WHERE lower(owner_address) = lower(")
		sb.WriteString(a.add(owner))
		sb.WriteString(")")
	}
	sb.WriteString(" GROUP BY ")
	sb.WriteString(group)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(group)

	return sb.String(), a.values
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLand(row rowScanner) (models.Land, error) {
	var l models.Land
	err := row.Scan(
		&l.IslandID,
		&l.RegionID,
		&l.RegionWeight,
		&l.X,
		&l.Y,
		&l.ImageURL,
		&l.ImageStatus,
		&l.Level,
		&l.OnMarket,
		&l.OwnerAddress,
		&l.TokenID,
		&l.MarketX,
		&l.MarketY,
		&l.SignType,
		&l.Extra,
	)
	if err != nil {
		return models.Land{}, fmt.Errorf("failed to scan land row: %w", err)
	}
	return l, nil
}

func scanCount(row rowScanner, groupByIsland bool) (models.LandCount, error) {
	var c models.LandCount
	var err error
	if groupByIsland {
		var island int
		err = row.Scan(&island, &c.RegionWeight, &c.Level, &c.Count)
		c.IslandID = &island
	} else {
		err = row.Scan(&c.RegionWeight, &c.Level, &c.Count)
	}
	if err != nil {
		return models.LandCount{}, fmt.Errorf("failed to scan count row: %w", err)
	}
	return c, nil
}
