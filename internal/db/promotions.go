package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nook/internal/promotions"
	"nook/internal/timewindow"
)

// Promotion sources.
const (
	SourceConfig = "config"
	SourceAdmin  = "admin"
)

// ListPromotions returns every stored promotion in catalog order.
func (db *DB) ListPromotions(ctx context.Context) ([]promotions.Rule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, kind, happy_hour_model, value, scope, target_id,
		       start_date, end_date, start_time, end_time, days_of_week, is_active
		FROM promotions
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var out []promotions.Rule
	for rows.Next() {
		r, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetPromotion returns a promotion by id.
func (db *DB) GetPromotion(ctx context.Context, id string) (promotions.Rule, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, kind, happy_hour_model, value, scope, target_id,
		       start_date, end_date, start_time, end_time, days_of_week, is_active
		FROM promotions WHERE id = ?`, id)
	r, err := scanPromotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return promotions.Rule{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPromotion(s scanner) (promotions.Rule, error) {
	var (
		r                                promotions.Rule
		kind, scope                      string
		hhModel, target                  sql.NullString
		startDate, endDate, startT, endT sql.NullString
		days                             sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Name, &kind, &hhModel, &r.Value, &scope, &target,
		&startDate, &endDate, &startT, &endT, &days, &r.IsActive); err != nil {
		return promotions.Rule{}, err
	}

	// Unparseable stored values degrade to "no restriction", matching how
	// evaluation treats a malformed dimension.
	r.Kind, _ = promotions.ParseKind(kind)
	r.Scope, _ = promotions.ParseScope(scope)
	if hhModel.Valid {
		r.HappyHourModel, _ = promotions.ParseKind(hhModel.String)
	}
	r.TargetID = target.String
	if startDate.Valid {
		r.Window.Dates.Start, _ = timewindow.ParseDate(startDate.String)
	}
	if endDate.Valid {
		r.Window.Dates.End, _ = timewindow.ParseDate(endDate.String)
	}
	if startT.Valid {
		r.Window.Times.Start, _ = timewindow.ParseClock(startT.String)
	}
	if endT.Valid {
		r.Window.Times.End, _ = timewindow.ParseClock(endT.String)
	}
	if days.Valid {
		r.Window.Weekdays = parseWeekdays(days.String)
	}
	return r, nil
}

// UpsertPromotion validates and stores a rule. New rules are appended to
// the end of the catalog order; existing ones keep their position. A rule
// whose id belongs to the other source fails with ErrOwnership.
func (db *DB) UpsertPromotion(ctx context.Context, r promotions.Rule, source string) error {
	return upsertPromotion(ctx, db.DB, r, source)
}

func upsertPromotion(ctx context.Context, ex execer, r promotions.Rule, source string) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("promotion %s: %w", r.ID, err)
	}
	if r.ID == "" {
		return fmt.Errorf("promotion id is required")
	}
	if source == "" {
		source = SourceAdmin
	}

	var hhModel string
	if r.Kind == promotions.KindHappyHour && r.HappyHourModel != promotions.KindUnknown {
		hhModel = r.HappyHourModel.String()
	}

	now := time.Now()
	res, err := ex.ExecContext(ctx, `
		INSERT INTO promotions (
			id, name, kind, happy_hour_model, value, scope, target_id,
			start_date, end_date, start_time, end_time, days_of_week, is_active,
			position, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM promotions), ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			happy_hour_model = excluded.happy_hour_model,
			value = excluded.value,
			scope = excluded.scope,
			target_id = excluded.target_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			days_of_week = excluded.days_of_week,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		WHERE promotions.source = excluded.source`,
		r.ID, r.Name, r.Kind.String(), nullString(hhModel), r.Value, r.Scope.String(), nullString(r.TargetID),
		nullString(r.Window.Dates.Start.String()), nullString(r.Window.Dates.End.String()),
		nullString(r.Window.Times.Start.String()), nullString(r.Window.Times.End.String()),
		nullString(formatWeekdays(r.Window.Weekdays)), r.IsActive,
		source, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert promotion %s: %w", r.ID, err)
	}
	// A conflicting row owned by the other source is left untouched.
	if err := expectOne(res); errors.Is(err, ErrNotFound) {
		return fmt.Errorf("promotion %s: %w", r.ID, ErrOwnership)
	} else if err != nil {
		return fmt.Errorf("upsert promotion %s: %w", r.ID, err)
	}
	return nil
}

// SetPromotionActive flips the master switch of a promotion.
func (db *DB) SetPromotionActive(ctx context.Context, id string, active bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE promotions SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set promotion %s active: %w", id, err)
	}
	return expectOne(res)
}

// DeletePromotion removes a promotion from the catalog.
func (db *DB) DeletePromotion(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM promotions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete promotion %s: %w", id, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(s string) []time.Weekday {
	var out []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}
