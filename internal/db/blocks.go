package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nook/internal/lanes"
)

// ErrInvalidBlock is returned for blocks whose end is not after their start.
var ErrInvalidBlock = errors.New("db: block end must be after start")

const blockColumns = `id, lane_id, center_id, start_at, end_at, reason`

// CreateLaneBlock stores a new block and returns it with its assigned id.
func (db *DB) CreateLaneBlock(ctx context.Context, b lanes.LaneBlock) (lanes.LaneBlock, error) {
	return insertBlock(ctx, db.DB, b)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBlock(ctx context.Context, ex execer, b lanes.LaneBlock) (lanes.LaneBlock, error) {
	if !b.Valid() {
		return lanes.LaneBlock{}, ErrInvalidBlock
	}
	if b.LaneID == "" {
		return lanes.LaneBlock{}, fmt.Errorf("lane id is required")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO lane_blocks (`+blockColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.LaneID, b.CenterID, b.Start.UnixMilli(), b.End.UnixMilli(), nullString(b.Reason), time.Now(),
	)
	if err != nil {
		return lanes.LaneBlock{}, fmt.Errorf("create lane block: %w", err)
	}
	return normalize(b), nil
}

// GetLaneBlock returns a block by id.
func (db *DB) GetLaneBlock(ctx context.Context, id string) (lanes.LaneBlock, error) {
	row := db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM lane_blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lanes.LaneBlock{}, ErrNotFound
	}
	return b, err
}

// DeleteLaneBlock removes a block.
func (db *DB) DeleteLaneBlock(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM lane_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete lane block %s: %w", id, err)
	}
	return expectOne(res)
}

// ReplaceLaneBlock edits a block by deleting it and inserting the new
// version in one transaction. The replacement gets a fresh id.
func (db *DB) ReplaceLaneBlock(ctx context.Context, id string, b lanes.LaneBlock) (lanes.LaneBlock, error) {
	if !b.Valid() {
		return lanes.LaneBlock{}, ErrInvalidBlock
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return lanes.LaneBlock{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM lane_blocks WHERE id = ?`, id)
	if err != nil {
		return lanes.LaneBlock{}, fmt.Errorf("delete lane block %s: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		return lanes.LaneBlock{}, err
	}

	b.ID = ""
	created, err := insertBlock(ctx, tx, b)
	if err != nil {
		return lanes.LaneBlock{}, err
	}

	if err := tx.Commit(); err != nil {
		return lanes.LaneBlock{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// ListLaneBlocks returns blocks of laneID intersecting [from, to], ordered
// by start. Zero bounds are open; an empty laneID lists every lane.
func (db *DB) ListLaneBlocks(ctx context.Context, laneID string, from, to time.Time) ([]lanes.LaneBlock, error) {
	query := `SELECT ` + blockColumns + ` FROM lane_blocks WHERE 1 = 1`
	var args []any
	if laneID != "" {
		query += ` AND lane_id = ?`
		args = append(args, laneID)
	}
	if !to.IsZero() {
		query += ` AND start_at <= ?`
		args = append(args, to.UnixMilli())
	}
	if !from.IsZero() {
		query += ` AND end_at > ?`
		args = append(args, from.UnixMilli())
	}
	query += ` ORDER BY start_at, id`

	return db.queryBlocks(ctx, query, args...)
}

// ListCenterBlocks returns every block of a center, ordered by start.
func (db *DB) ListCenterBlocks(ctx context.Context, centerID string) ([]lanes.LaneBlock, error) {
	return db.queryBlocks(ctx,
		`SELECT `+blockColumns+` FROM lane_blocks WHERE center_id = ? ORDER BY start_at, id`, centerID)
}

func (db *DB) queryBlocks(ctx context.Context, query string, args ...any) ([]lanes.LaneBlock, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lane blocks: %w", err)
	}
	defer rows.Close()

	var out []lanes.LaneBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBlock(s scanner) (lanes.LaneBlock, error) {
	var (
		b          lanes.LaneBlock
		start, end int64
		reason     sql.NullString
	)
	if err := s.Scan(&b.ID, &b.LaneID, &b.CenterID, &start, &end, &reason); err != nil {
		return lanes.LaneBlock{}, err
	}
	b.Start = time.UnixMilli(start).UTC()
	b.End = time.UnixMilli(end).UTC()
	b.Reason = reason.String
	return b, nil
}

// normalize drops sub-millisecond precision and location so a created
// block equals what a later read returns.
func normalize(b lanes.LaneBlock) lanes.LaneBlock {
	b.Start = time.UnixMilli(b.Start.UnixMilli()).UTC()
	b.End = time.UnixMilli(b.End.UnixMilli()).UTC()
	return b
}
