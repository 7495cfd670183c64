package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nook/internal/config"
	"nook/internal/lanes"
	"nook/internal/timewindow"
)

// DefaultSchedule is used for lanes without a schedule in the catalog.
var DefaultSchedule = config.ScheduleConfig{
	StartTime:           "10:00",
	EndTime:             "21:00",
	SlotDurationMinutes: 30,
}

// SyncResult counts what a catalog sync touched.
type SyncResult struct {
	Centers       int
	Lanes         int
	Services      int
	Promotions    int
	Deactivated   int
	HolidayBlocks int
	// HolidaysRemoved counts holiday blocks dropped because the holiday or
	// its lane left the active catalog.
	HolidaysRemoved int
}

// SyncFromConfig applies catalog.yaml to the database in one transaction.
// It upserts centers, lanes, services and config promotions, marks rows
// that disappeared from the file inactive and closes every active lane on
// configured holidays. Holidays are whole days in loc. Holiday blocks are
// owned by the file too: those without a matching active lane and holiday
// are deleted.
func (db *DB) SyncFromConfig(ctx context.Context, cat *config.Catalog, loc *time.Location) (SyncResult, error) {
	var res SyncResult
	if cat == nil {
		return res, fmt.Errorf("catalog is nil")
	}
	if loc == nil {
		loc = time.UTC
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()

	centers := make(map[string]struct{})
	for _, c := range cat.Centers {
		// Preserve created_at if the row already exists.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO centers (id, name, address, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				address = excluded.address,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			c.ID, c.Name, c.Address, c.IsActive, now, now,
		)
		if err != nil {
			return res, fmt.Errorf("sync center %s: %w", c.ID, err)
		}
		centers[c.ID] = struct{}{}
		res.Centers++
	}

	laneIDs := make(map[string]struct{})
	var activeLanes []config.LaneConfig
	for _, l := range cat.Lanes {
		s := DefaultSchedule
		if l.Schedule != nil {
			s = *l.Schedule
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lanes (id, center_id, name, start_time, end_time, break_start, break_end,
				slot_duration, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				center_id = excluded.center_id,
				name = excluded.name,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				break_start = excluded.break_start,
				break_end = excluded.break_end,
				slot_duration = excluded.slot_duration,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			l.ID, l.CenterID, l.Name, s.StartTime, s.EndTime, nullString(s.BreakStart), nullString(s.BreakEnd),
			s.SlotDurationMinutes, l.IsActive, now, now,
		)
		if err != nil {
			return res, fmt.Errorf("sync lane %s: %w", l.ID, err)
		}
		laneIDs[l.ID] = struct{}{}
		if l.IsActive {
			activeLanes = append(activeLanes, l)
		}
		res.Lanes++
	}

	services := make(map[string]struct{})
	for _, s := range cat.Services {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, name, base_price_cents, duration_minutes, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				base_price_cents = excluded.base_price_cents,
				duration_minutes = excluded.duration_minutes,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, s.BasePriceCents, s.DurationMinutes, s.IsActive, now, now,
		)
		if err != nil {
			return res, fmt.Errorf("sync service %s: %w", s.ID, err)
		}
		services[s.ID] = struct{}{}
		res.Services++
	}

	promos := make(map[string]struct{})
	for i, p := range cat.Promotions {
		rule, err := p.Rule()
		if err != nil {
			return res, fmt.Errorf("promotions[%d]: %w", i, err)
		}
		if err := upsertPromotion(ctx, tx, rule, SourceConfig); err != nil {
			return res, err
		}
		promos[p.ID] = struct{}{}
		res.Promotions++
	}

	// Deactivate rows that disappeared from the catalog. Admin-created
	// promotions are not owned by the file and are left alone.
	missing := []struct {
		table string
		query string
		seen  map[string]struct{}
	}{
		{"centers", `SELECT id FROM centers WHERE is_active = 1`, centers},
		{"lanes", `SELECT id FROM lanes WHERE is_active = 1`, laneIDs},
		{"services", `SELECT id FROM services WHERE is_active = 1`, services},
		{"promotions", `SELECT id FROM promotions WHERE is_active = 1 AND source = 'config'`, promos},
	}
	for _, m := range missing {
		ids, err := selectIDs(ctx, tx, m.query)
		if err != nil {
			return res, fmt.Errorf("list %s: %w", m.table, err)
		}
		for _, id := range ids {
			if _, ok := m.seen[id]; ok {
				continue
			}
			q := fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE id = ?`, m.table)
			if _, err := tx.ExecContext(ctx, q, now, id); err != nil {
				return res, fmt.Errorf("deactivate %s %s: %w", m.table, id, err)
			}
			res.Deactivated++
		}
	}

	wanted := make(map[string]struct{})
	for _, h := range cat.Holidays {
		d, err := timewindow.ParseDate(h.Date)
		if err != nil {
			return res, fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		start := d.In(loc)
		end := start.AddDate(0, 0, 1)
		for _, l := range activeLanes {
			id := holidayBlockID(l.ID, h.Date)
			wanted[id] = struct{}{}
			n, err := insertHolidayBlock(ctx, tx, lanes.LaneBlock{
				ID:       id,
				LaneID:   l.ID,
				CenterID: l.CenterID,
				Start:    start,
				End:      end,
				Reason:   "holiday: " + h.Name,
			})
			if err != nil {
				return res, fmt.Errorf("holiday block %s on %s: %w", l.ID, h.Date, err)
			}
			res.HolidayBlocks += n
		}
	}

	existing, err := selectIDs(ctx, tx, `SELECT id FROM lane_blocks WHERE id LIKE '`+holidayPrefix+`%'`)
	if err != nil {
		return res, fmt.Errorf("list holiday blocks: %w", err)
	}
	for _, id := range existing {
		if _, ok := wanted[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lane_blocks WHERE id = ?`, id); err != nil {
			return res, fmt.Errorf("remove holiday block %s: %w", id, err)
		}
		res.HolidaysRemoved++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

const holidayPrefix = "holiday:"

func holidayBlockID(laneID, date string) string {
	return holidayPrefix + laneID + ":" + date
}

// insertHolidayBlock is idempotent: re-syncing the same holiday is a no-op.
func insertHolidayBlock(ctx context.Context, ex execer, b lanes.LaneBlock) (int, error) {
	r, err := ex.ExecContext(ctx, `
		INSERT OR IGNORE INTO lane_blocks (`+blockColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.LaneID, b.CenterID, b.Start.UnixMilli(), b.End.UnixMilli(), nullString(b.Reason), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	n, err := r.RowsAffected()
	return int(n), err
}

// selectIDs drains the result before returning so the caller can execute
// statements on the same connection.
func selectIDs(ctx context.Context, tx *sql.Tx, query string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
