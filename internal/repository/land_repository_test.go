package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/landb/internal/database"
	"github.com/stwalsh4118/landb/internal/fetcher"
	"github.com/stwalsh4118/landb/internal/ingest"
	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/prosperity"
	"github.com/stwalsh4118/landb/internal/store"
)

var testIslands = []models.Island{
	{ID: 0, Name: "main"},
	{ID: 1, Name: "divinity"},
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeFetcher serves canned records per island.
type fakeFetcher struct {
	clock   *fakeClock
	records map[int][]json.RawMessage
	fail    map[int]error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, island models.Island) (*fetcher.Batch, error) {
	f.calls++
	if err := f.fail[island.ID]; err != nil {
		return nil, err
	}
	return &fetcher.Batch{Island: island, Records: f.records[island.ID], RequestedAt: f.clock.Now()}, nil
}

// record renders a land the way the registry sends it.
func record(t *testing.T, l models.Land, extra map[string]interface{}) json.RawMessage {
	t.Helper()
	fields := map[string]interface{}{
		"regionWeight": l.RegionWeight,
		"regionId":     l.RegionID,
		"x":            l.X,
		"y":            l.Y,
		"level":        l.Level,
		"onMarket":     l.OnMarket,
		"userAddress":  l.OwnerAddress,
		"tokenId":      l.TokenID,
		"signType":     l.SignType,
	}
	for k, v := range extra {
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return raw
}

// fixture map, island 0 (A = alice, B = bob, D = dave, E = erin):
//
//	y=6     D . . . . E
//	y=5     . A A B A .
//	y=4     . A A . . .
//	y=3     . . . B . .
//	      x=4 5 6 7 8 9
//
// carol owns (0,0) on island 0 and alice owns (5,5) on island 1.
func fixtureLands() map[int][]models.Land {
	return map[int][]models.Land{
		0: {
			{RegionID: 1, TokenID: 101, X: 5, Y: 5, RegionWeight: 2, Level: 1, OwnerAddress: "0xAlice"},
			{RegionID: 2, TokenID: 102, X: 7, Y: 5, RegionWeight: 1, Level: 1, OwnerAddress: "0xbob"},
			{RegionID: 3, TokenID: 103, X: 0, Y: 0, RegionWeight: 1, Level: 1, OwnerAddress: "0xcarol", OnMarket: 1},
			{RegionID: 4, TokenID: 104, X: 8, Y: 5, RegionWeight: 1, Level: 1, OwnerAddress: "0xalice"},
			{RegionID: 5, TokenID: 105, X: 7, Y: 3, RegionWeight: 1, Level: 1, OwnerAddress: "0xBOB"},
			{RegionID: 6, TokenID: 106, X: 4, Y: 6, RegionWeight: 1, Level: 1, OwnerAddress: "0xdave"},
			{RegionID: 7, TokenID: 107, X: 9, Y: 6, RegionWeight: 1, Level: 1, OwnerAddress: "0xerin"},
		},
		1: {
			{RegionID: 1, TokenID: 201, X: 5, Y: 5, RegionWeight: 1, Level: 1, OwnerAddress: "0xalice"},
		},
	}
}

type testEnv struct {
	repo    LandRepository
	store   store.Store
	fetcher *fakeFetcher
	clock   *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, "", false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.NewSQLiteStore(ctx, db)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	ff := &fakeFetcher{clock: clock, records: map[int][]json.RawMessage{}, fail: map[int]error{}}
	for island, lands := range fixtureLands() {
		for _, l := range lands {
			ff.records[island] = append(ff.records[island], record(t, l, nil))
		}
	}

	tables, err := prosperity.DefaultTables()
	require.NoError(t, err)
	calc, err := prosperity.NewCalculator(tables)
	require.NoError(t, err)

	throttled := fetcher.NewThrottled(ff, s, clock, time.Minute, testIslands[0], logger.Nop())
	repo, err := NewLandRepository(s, throttled, ingest.NewNormalizer(logger.Nop()), calc, testIslands, logger.Nop())
	require.NoError(t, err)

	return &testEnv{repo: repo, store: s, fetcher: ff, clock: clock}
}

func (e *testEnv) refresh(t *testing.T) {
	t.Helper()
	ok, err := e.repo.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func tokens(lands []models.Land) []int64 {
	out := make([]int64, len(lands))
	for i, l := range lands {
		out[i] = l.TokenID
	}
	return out
}

func TestNewLandRepository_RequiresIslands(t *testing.T) {
	_, err := NewLandRepository(nil, nil, nil, nil, nil, logger.Nop())
	assert.Error(t, err)
}

func TestReadsBeforeSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	exists, err := env.repo.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	last, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = env.repo.GetLands(ctx, "")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = env.repo.GetLandAt(ctx, 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = env.repo.GetCounts(ctx, "", false)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = env.repo.GetOwnerInfoMap(ctx, true)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRefresh_RoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.refresh(t)

	lands, err := env.repo.GetLands(ctx, "")
	require.NoError(t, err)

	type shape struct {
		island, x, y, w int
		token           int64
	}
	var want []shape
	for island, ls := range fixtureLands() {
		for _, l := range ls {
			want = append(want, shape{island, l.X, l.Y, l.RegionWeight, l.TokenID})
		}
	}
	got := make([]shape, len(lands))
	for i, l := range lands {
		got[i] = shape{l.IslandID, l.X, l.Y, l.RegionWeight, l.TokenID}
	}
	assert.ElementsMatch(t, want, got)
	assert.Equal(t, []int64{103, 106, 101, 105, 102, 104, 107, 201}, tokens(lands), "ordered by island, x, y")

	last, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(env.clock.now))

	requested, err := env.repo.GetLastRequestDate(ctx)
	require.NoError(t, err)
	require.NotNil(t, requested)
	assert.True(t, requested.Equal(env.clock.now))
}

func TestRefresh_ThrottledKeepsLastFetchDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.refresh(t)
	first, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)
	calls := env.fetcher.calls

	env.clock.now = env.clock.now.Add(30 * time.Second)
	ok, err := env.repo.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, env.fetcher.calls, "no island is fetched when throttled")

	second, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)
	assert.True(t, first.Equal(*second))

	env.clock.now = env.clock.now.Add(time.Minute)
	env.refresh(t)
	third, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)
	assert.True(t, third.Equal(env.clock.now))
}

func TestRefresh_FailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.refresh(t)
	before, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)

	env.clock.now = env.clock.now.Add(2 * time.Minute)
	env.fetcher.records[0] = env.fetcher.records[0][:1]
	env.fetcher.fail[1] = errors.New("status 500")

	ok, err := env.repo.Refresh(ctx)
	require.Error(t, err)
	assert.False(t, ok)

	lands, err := env.repo.GetLands(ctx, "")
	require.NoError(t, err)
	assert.Len(t, lands, 8, "prior snapshot intact")

	after, err := env.repo.GetLastFetchDate(ctx)
	require.NoError(t, err)
	assert.True(t, before.Equal(*after))

	requested, err := env.repo.GetLastRequestDate(ctx)
	require.NoError(t, err)
	assert.True(t, requested.Equal(env.clock.now), "the attempt is still recorded")
}

func TestRefresh_SkipsInvalidAndDriftingRecords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fetcher.records[1] = append(env.fetcher.records[1],
		record(t, models.Land{RegionID: 2, TokenID: 202, X: 9, Y: 9, RegionWeight: 0, OwnerAddress: "0xbad"}, nil),
		record(t, models.Land{RegionID: 3, TokenID: 203, X: 1, Y: 1, RegionWeight: 1, Level: 2, OwnerAddress: "0xnew"},
			map[string]interface{}{"sparkle": true, "creator": "0xmint"}),
	)
	env.refresh(t)

	lands, err := env.repo.GetLands(ctx, "0xnew")
	require.NoError(t, err)
	require.Len(t, lands, 1)
	assert.Equal(t, 1, lands[0].IslandID)
	assert.Equal(t, json.RawMessage(`"0xmint"`), lands[0].Extra["creator"])
	_, drifted := lands[0].Extra["sparkle"]
	assert.False(t, drifted)

	bad, err := env.repo.GetLandByTokenID(ctx, 202)
	require.NoError(t, err)
	assert.Nil(t, bad)
}

type readOnlyStore struct {
	store.Store
}

func (readOnlyStore) ReadOnly() bool { return true }

func TestRefresh_ReadOnlyStore(t *testing.T) {
	env := newTestEnv(t)
	repo, err := NewLandRepository(readOnlyStore{env.store}, env.fetcher, ingest.NewNormalizer(logger.Nop()), nil, testIslands, logger.Nop())
	require.NoError(t, err)

	ok, err := repo.Refresh(context.Background())
	assert.ErrorIs(t, err, store.ErrReadOnly)
	assert.False(t, ok)
	assert.Zero(t, env.fetcher.calls)
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.refresh(t)

	tests := []struct {
		name    string
		lookup  func() (*models.Land, error)
		wantTok int64
	}{
		{name: "anchor cell", lookup: func() (*models.Land, error) { return env.repo.GetLandAt(ctx, 0, 5, 5) }, wantTok: 101},
		{name: "far corner of 2x2", lookup: func() (*models.Land, error) { return env.repo.GetLandAt(ctx, 0, 6, 4) }, wantTok: 101},
		{name: "other island", lookup: func() (*models.Land, error) { return env.repo.GetLandAt(ctx, 1, 5, 5) }, wantTok: 201},
		{name: "empty cell", lookup: func() (*models.Land, error) { return env.repo.GetLandAt(ctx, 0, 7, 4) }},
		{name: "below 2x2", lookup: func() (*models.Land, error) { return env.repo.GetLandAt(ctx, 0, 5, 3) }},
		{name: "by token", lookup: func() (*models.Land, error) { return env.repo.GetLandByTokenID(ctx, 107) }, wantTok: 107},
		{name: "missing token", lookup: func() (*models.Land, error) { return env.repo.GetLandByTokenID(ctx, 999) }},
		{name: "region prefers first island", lookup: func() (*models.Land, error) { return env.repo.GetLandByRegionID(ctx, 1) }, wantTok: 101},
		{name: "missing region", lookup: func() (*models.Land, error) { return env.repo.GetLandByRegionID(ctx, 42) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			land, err := tt.lookup()
			require.NoError(t, err)
			if tt.wantTok == 0 {
				assert.Nil(t, land)
				return
			}
			require.NotNil(t, land)
			assert.Equal(t, tt.wantTok, land.TokenID)
		})
	}
}

func TestGetLands_OwnerAndMarket(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.refresh(t)

	lands, err := env.repo.GetLands(ctx, "0XALICE")
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 104, 201}, tokens(lands))

	lands, err = env.repo.GetLands(ctx, "0xnobody")
	require.NoError(t, err)
	assert.Empty(t, lands)

	market, err := env.repo.GetOnMarketLands(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{103}, tokens(market))
}

func TestGetCounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.refresh(t)

	counts, err := env.repo.GetCounts(ctx, "0xALICE", false)
	require.NoError(t, err)
	assert.Equal(t, []models.LandCount{
		{RegionWeight: 1, Level: 1, Count: 2},
		{RegionWeight: 2, Level: 1, Count: 1},
	}, counts)

	byIsland, err := env.repo.GetCounts(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, byIsland, 3)
	require.NotNil(t, byIsland[2].IslandID)
	assert.Equal(t, 1, *byIsland[2].IslandID)
	assert.Equal(t, 1, byIsland[2].Count)
}
