package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nook/internal/slots"
)

// Center is a physical location.
type Center struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	IsActive bool   `json:"is_active"`
}

// Lane is a bookable room or table with its working hours.
type Lane struct {
	ID       string         `json:"id"`
	CenterID string         `json:"center_id"`
	Name     string         `json:"name"`
	IsActive bool           `json:"is_active"`
	Schedule slots.Schedule `json:"schedule"`
}

// Service is a treatment with its list price in cents.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	BasePriceCents  int64  `json:"base_price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        bool   `json:"is_active"`
}

// ListCenters returns every center ordered by id.
func (db *DB) ListCenters(ctx context.Context) ([]Center, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, address, is_active FROM centers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	defer rows.Close()

	var out []Center
	for rows.Next() {
		var c Center
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const laneColumns = `id, center_id, name, start_time, end_time, break_start, break_end, slot_duration, is_active`

// ListLanes returns every lane ordered by id.
func (db *DB) ListLanes(ctx context.Context) ([]Lane, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+laneColumns+` FROM lanes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lanes: %w", err)
	}
	defer rows.Close()

	var out []Lane
	for rows.Next() {
		l, err := scanLane(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLane returns a lane by id.
func (db *DB) GetLane(ctx context.Context, id string) (Lane, error) {
	l, err := scanLane(db.QueryRowContext(ctx, `SELECT `+laneColumns+` FROM lanes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Lane{}, ErrNotFound
	}
	return l, err
}

func scanLane(s scanner) (Lane, error) {
	var (
		l                          Lane
		start, end, brStart, brEnd sql.NullString
	)
	if err := s.Scan(&l.ID, &l.CenterID, &l.Name, &start, &end, &brStart, &brEnd,
		&l.Schedule.SlotDuration, &l.IsActive); err != nil {
		return Lane{}, err
	}
	l.Schedule.StartTime = start.String
	l.Schedule.EndTime = end.String
	l.Schedule.BreakStart = brStart.String
	l.Schedule.BreakEnd = brEnd.String
	return l, nil
}

// ListServices returns every service ordered by id.
func (db *DB) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, base_price_cents, duration_minutes, is_active
		FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.BasePriceCents, &s.DurationMinutes, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
