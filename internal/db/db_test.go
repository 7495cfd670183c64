package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nook/internal/config"
	"nook/internal/lanes"
	"nook/internal/promotions"
	"nook/internal/timewindow"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPromotions_UpsertListOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	start, _ := timewindow.ParseClock("16:00")
	end, _ := timewindow.ParseClock("18:00")
	hh := promotions.Rule{
		ID:             "zz-happy",
		Name:           "Happy hour",
		Kind:           promotions.KindHappyHour,
		HappyHourModel: promotions.KindFixedAmount,
		Value:          1500,
		Scope:          promotions.ScopeSpecificService,
		TargetID:       "massage-60",
		IsActive:       true,
		Window: timewindow.Window{
			Dates:    timewindow.DateRange{Start: timewindow.Date{Year: 2024, Month: time.January, Day: 1}},
			Times:    timewindow.TimeRange{Start: start, End: end},
			Weekdays: []time.Weekday{time.Monday, time.Friday},
		},
	}
	spring := promotions.Rule{ID: "aa-spring", Kind: promotions.KindPercentage, Value: 20, Scope: promotions.ScopeAllServices, IsActive: true}

	require.NoError(t, db.UpsertPromotion(ctx, hh, SourceAdmin))
	require.NoError(t, db.UpsertPromotion(ctx, spring, SourceAdmin))

	// Updating keeps the original position.
	hh.Value = 2000
	require.NoError(t, db.UpsertPromotion(ctx, hh, SourceAdmin))

	got, err := db.ListPromotions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zz-happy", got[0].ID, "insertion order, not id order")
	assert.Equal(t, hh, got[0])
	assert.Equal(t, spring, got[1])
}

func TestPromotions_RejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	err := db.UpsertPromotion(context.Background(),
		promotions.Rule{ID: "bad", Kind: promotions.KindPercentage, Value: 150, Scope: promotions.ScopeAllServices}, "")
	assert.ErrorIs(t, err, promotions.ErrInvalidValue)
}

func TestPromotions_ToggleAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := promotions.Rule{ID: "p1", Kind: promotions.KindFixedAmount, Value: 500, Scope: promotions.ScopeAllServices, IsActive: true}
	require.NoError(t, db.UpsertPromotion(ctx, r, SourceAdmin))

	require.NoError(t, db.SetPromotionActive(ctx, "p1", false))
	got, err := db.GetPromotion(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, db.SetPromotionActive(ctx, "missing", true), ErrNotFound)

	require.NoError(t, db.DeletePromotion(ctx, "p1"))
	assert.ErrorIs(t, db.DeletePromotion(ctx, "p1"), ErrNotFound)
	_, err = db.GetPromotion(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func utc(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestLaneBlocks_CreateAndList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 11), End: utc(1, 10)})
	assert.ErrorIs(t, err, ErrInvalidBlock)

	a, err := db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-1", CenterID: "c1", Start: utc(1, 10), End: utc(1, 11), Reason: "maintenance"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	_, err = db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-1", CenterID: "c1", Start: utc(1, 0), End: utc(3, 0)})
	require.NoError(t, err)
	_, err = db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-2", CenterID: "c2", Start: utc(2, 9), End: utc(2, 10)})
	require.NoError(t, err)

	got, err := db.GetLaneBlock(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	all, err := db.ListLaneBlocks(ctx, "lane-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	day2, err := db.ListLaneBlocks(ctx, "lane-1", utc(2, 0), utc(2, 23))
	require.NoError(t, err)
	require.Len(t, day2, 1)
	assert.Equal(t, utc(1, 0), day2[0].Start)

	// A block ending exactly at `from` does not intersect.
	after, err := db.ListLaneBlocks(ctx, "lane-1", utc(1, 11), utc(1, 12))
	require.NoError(t, err)
	assert.Len(t, after, 1)

	center, err := db.ListCenterBlocks(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, center, 1)
}

func TestLaneBlocks_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	orig, err := db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 10), End: utc(1, 11)})
	require.NoError(t, err)

	_, err = db.ReplaceLaneBlock(ctx, orig.ID, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 12), End: utc(1, 12)})
	assert.ErrorIs(t, err, ErrInvalidBlock)

	repl, err := db.ReplaceLaneBlock(ctx, orig.ID, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 12), End: utc(1, 13)})
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, repl.ID)

	_, err = db.GetLaneBlock(ctx, orig.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.ReplaceLaneBlock(ctx, orig.ID, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 12), End: utc(1, 13)})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.DeleteLaneBlock(ctx, repl.ID))
	assert.ErrorIs(t, db.DeleteLaneBlock(ctx, repl.ID), ErrNotFound)
}

const syncCatalog = `
centers:
  - {id: madrid-centro, name: Centro, is_active: true}
lanes:
  - {id: lane-1, center_id: madrid-centro, name: Sala 1, is_active: true}
  - {id: lane-2, center_id: madrid-centro, name: Sala 2, is_active: false}
services:
  - {id: massage-60, name: Masaje, base_price_cents: 8000, duration_minutes: 60, is_active: true}
promotions:
  - {id: spring, kind: percentage, value: 20, scope: all_services, is_active: true}
holidays:
  - {date: "2024-12-25", name: Navidad}
`

func TestSyncFromConfig(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	cat, err := config.ParseCatalog([]byte(syncCatalog))
	require.NoError(t, err)

	admin := promotions.Rule{ID: "admin-only", Kind: promotions.KindFixedAmount, Value: 100, Scope: promotions.ScopeAllServices, IsActive: true}
	require.NoError(t, db.UpsertPromotion(ctx, admin, SourceAdmin))

	res, err := db.SyncFromConfig(ctx, cat, madrid)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Centers: 1, Lanes: 2, Services: 1, Promotions: 1, HolidayBlocks: 1}, res)

	lanesList, err := db.ListLanes(ctx)
	require.NoError(t, err)
	require.Len(t, lanesList, 2)
	assert.Equal(t, DefaultSchedule.StartTime, lanesList[0].Schedule.StartTime)
	assert.Equal(t, 30, lanesList[0].Schedule.SlotDuration)

	lane, err := db.GetLane(ctx, "lane-2")
	require.NoError(t, err)
	assert.False(t, lane.IsActive)
	_, err = db.GetLane(ctx, "lane-9")
	assert.ErrorIs(t, err, ErrNotFound)

	blocks, err := db.ListLaneBlocks(ctx, "lane-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, time.Date(2024, 12, 25, 0, 0, 0, 0, madrid).UTC(), blocks[0].Start)
	assert.Equal(t, "holiday: Navidad", blocks[0].Reason)

	// Re-sync without the promotion and the service.
	cat.Promotions = nil
	cat.Services = nil
	res, err = db.SyncFromConfig(ctx, cat, madrid)
	require.NoError(t, err)
	assert.Equal(t, 0, res.HolidayBlocks, "holiday blocks are idempotent")
	assert.Equal(t, 2, res.Deactivated)

	promos, err := db.ListPromotions(ctx)
	require.NoError(t, err)
	require.Len(t, promos, 2)
	for _, p := range promos {
		if p.ID == "spring" {
			assert.False(t, p.IsActive)
		} else {
			assert.True(t, p.IsActive, "admin promotions are not owned by the file")
		}
	}

	services, err := db.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.False(t, services[0].IsActive)

	centers, err := db.ListCenters(ctx)
	require.NoError(t, err)
	require.Len(t, centers, 1)
	assert.True(t, centers[0].IsActive)
}

func TestSyncFromConfig_RemovesStaleHolidays(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	cat, err := config.ParseCatalog([]byte(syncCatalog))
	require.NoError(t, err)
	_, err = db.SyncFromConfig(ctx, cat, madrid)
	require.NoError(t, err)

	manual, err := db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 10), End: utc(1, 11), Reason: "repairs"})
	require.NoError(t, err)

	christmas := time.Date(2024, 12, 25, 12, 0, 0, 0, madrid)
	tests := []struct {
		name     string
		mutate   func(c *config.Catalog)
		removed  int
		holidays int
	}{
		{name: "unchanged", mutate: func(*config.Catalog) {}, removed: 0, holidays: 1},
		{name: "lane deactivated", mutate: func(c *config.Catalog) { c.Lanes[0].IsActive = false }, removed: 1, holidays: 0},
		{name: "lane back", mutate: func(c *config.Catalog) { c.Lanes[0].IsActive = true }, removed: 0, holidays: 1},
		{name: "holiday dropped", mutate: func(c *config.Catalog) { c.Holidays = nil }, removed: 1, holidays: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mutate(cat)
			res, err := db.SyncFromConfig(ctx, cat, madrid)
			require.NoError(t, err)
			assert.Equal(t, tt.removed, res.HolidaysRemoved)

			blocks, err := db.ListLaneBlocks(ctx, "lane-1", time.Time{}, time.Time{})
			require.NoError(t, err)
			require.Len(t, blocks, tt.holidays+1, "manual blocks survive a sync")

			b := lanes.IsBlocked("lane-1", christmas, blocks)
			assert.Equal(t, tt.holidays == 1, b != nil)
		})
	}

	got, err := db.GetLaneBlock(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, "repairs", got.Reason)
}

func TestUpsertPromotion_Ownership(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	rule := promotions.Rule{ID: "spring", Kind: promotions.KindPercentage, Value: 10, Scope: promotions.ScopeAllServices, IsActive: true}
	require.NoError(t, db.UpsertPromotion(ctx, rule, SourceAdmin))

	// A config rule with the same id does not take the row over.
	cat, err := config.ParseCatalog([]byte(syncCatalog))
	require.NoError(t, err)
	_, err = db.SyncFromConfig(ctx, cat, time.UTC)
	assert.ErrorIs(t, err, ErrOwnership)

	got, err := db.GetPromotion(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Value)

	// The owner can still edit it.
	rule.Value = 15
	require.NoError(t, db.UpsertPromotion(ctx, rule, SourceAdmin))
	got, err = db.GetPromotion(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Value)

	require.NoError(t, db.UpsertPromotion(ctx, promotions.Rule{ID: "cfg", Kind: promotions.KindFixedAmount, Value: 100, Scope: promotions.ScopeAllServices}, SourceConfig))
	err = db.UpsertPromotion(ctx, promotions.Rule{ID: "cfg", Kind: promotions.KindFixedAmount, Value: 200, Scope: promotions.ScopeAllServices}, SourceAdmin)
	assert.ErrorIs(t, err, ErrOwnership)
}

func TestTableData(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.CreateLaneBlock(ctx, lanes.LaneBlock{LaneID: "lane-1", Start: utc(1, 10), End: utc(1, 11)})
	require.NoError(t, err)

	names, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "lane_blocks")

	data, cols, err := db.TableData(ctx, "lane_blocks")
	require.NoError(t, err)
	assert.Contains(t, cols, "start_at")
	require.Len(t, data, 1)
	assert.Equal(t, "lane-1", data[0]["lane_id"])

	_, _, err = db.TableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestBackupAndCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "nook.db"))
	require.NoError(t, err)
	defer db.Close()

	dest := filepath.Join(dir, "backups", "nook_1.db")
	require.NoError(t, db.Backup(ctx, dest))
	assert.FileExists(t, dest)
	assert.Error(t, db.Backup(ctx, dest), "refuses to overwrite")

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(dest, old, old))

	deleted, err := CleanupBackups(filepath.Dir(dest), 24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, dest)
}
