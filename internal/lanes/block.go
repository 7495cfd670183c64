// Package lanes answers whether a lane is blocked at an instant or on a day.
package lanes

import "time"

// LaneBlock is a staff-declared unavailable interval for a lane.
type LaneBlock struct {
	ID       string    `json:"id"`
	LaneID   string    `json:"lane_id"`
	CenterID string    `json:"center_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Reason   string    `json:"reason,omitempty"`
}

// Valid reports whether the block has a positive length.
func (b LaneBlock) Valid() bool {
	return b.Start.Before(b.End)
}

// Contains uses [start, end) semantics.
func (b LaneBlock) Contains(t time.Time) bool {
	return b.Valid() && !t.Before(b.Start) && t.Before(b.End)
}

// Intersects reports whether b shares any instant with [start, end).
func (b LaneBlock) Intersects(start, end time.Time) bool {
	return b.Valid() && start.Before(end) && b.Start.Before(end) && start.Before(b.End)
}

// IsBlocked returns the first block of laneID that contains at, or nil.
// A block ending exactly at `at` does not contain it.
func IsBlocked(laneID string, at time.Time, blocks []LaneBlock) *LaneBlock {
	for i := range blocks {
		if blocks[i].LaneID == laneID && blocks[i].Contains(at) {
			b := blocks[i]
			return &b
		}
	}
	return nil
}

// IsRangeBlocked returns the first block of laneID sharing any instant with
// the half-open range [start, end), or nil.
func IsRangeBlocked(laneID string, start, end time.Time, blocks []LaneBlock) *LaneBlock {
	for i := range blocks {
		if blocks[i].LaneID == laneID && blocks[i].Intersects(start, end) {
			b := blocks[i]
			return &b
		}
	}
	return nil
}

// DayBounds returns 00:00:00.000 and 23:59:59.999 of day in day's location.
func DayBounds(day time.Time) (start, end time.Time) {
	start = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), day.Location())
	return start, end
}

// BlocksOverlappingDay returns the blocks of laneID touching day, in input
// order. A block overlaps when its start falls in the day, its end falls in
// the day, or it spans the whole day.
func BlocksOverlappingDay(laneID string, day time.Time, blocks []LaneBlock) []LaneBlock {
	dayStart, dayEnd := DayBounds(day)

	var out []LaneBlock
	for _, b := range blocks {
		if b.LaneID != laneID || !b.Valid() {
			continue
		}
		startsInDay := within(b.Start, dayStart, dayEnd)
		endsInDay := within(b.End, dayStart, dayEnd)
		spansDay := !b.Start.After(dayStart) && !b.End.Before(dayEnd)
		if startsInDay || endsInDay || spansDay {
			out = append(out, b)
		}
	}
	return out
}

// ForLane keeps the blocks of laneID.
func ForLane(laneID string, blocks []LaneBlock) []LaneBlock {
	var out []LaneBlock
	for _, b := range blocks {
		if b.LaneID == laneID {
			out = append(out, b)
		}
	}
	return out
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
