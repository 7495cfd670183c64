package slots

import (
	"context"
	"fmt"
	"time"

	"nook/internal/lanes"
	"nook/internal/timewindow"
)

// Slot is one bookable interval on a lane.
type Slot struct {
	StartTime time.Time
	EndTime   time.Time
	Available bool
	// BlockID is set when a lane block covers part of the slot.
	BlockID string
}

// SlotInfo is the wire form of a slot.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "10:30"
	Available bool   `json:"available"`
	Blocked   bool   `json:"blocked,omitempty"`
}

// Schedule holds the working hours of a lane for one day.
type Schedule struct {
	StartTime    string `json:"start_time"` // "10:00"
	EndTime      string `json:"end_time"`   // "22:00"
	BreakStart   string `json:"break_start,omitempty"`
	BreakEnd     string `json:"break_end,omitempty"`
	SlotDuration int    `json:"slot_duration"` // minutes
	IsClosed     bool   `json:"is_closed,omitempty"`
}

// BlockLister returns the blocks of a lane intersecting [from, to].
type BlockLister interface {
	ListLaneBlocks(ctx context.Context, laneID string, from, to time.Time) ([]lanes.LaneBlock, error)
}

// Generator builds the slot grid of a lane for a date.
type Generator struct {
	blocks BlockLister
	now    func() time.Time
}

// NewGenerator creates a generator. A nil now falls back to time.Now.
func NewGenerator(blocks BlockLister, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{blocks: blocks, now: now}
}

// GenerateSlots returns every slot of the day. Slots in the past or covered
// by a lane block are marked unavailable; break slots are skipped.
func (g *Generator) GenerateSlots(ctx context.Context, laneID string, date time.Time, schedule Schedule) ([]Slot, error) {
	if schedule.IsClosed {
		return nil, nil
	}

	if schedule.SlotDuration <= 0 {
		schedule.SlotDuration = 30
	}

	startTime, err := parseTimeOnDate(date, schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}

	endTime, err := parseTimeOnDate(date, schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	var breakStart, breakEnd time.Time
	hasBreak := schedule.BreakStart != "" && schedule.BreakEnd != ""
	if hasBreak {
		if breakStart, err = parseTimeOnDate(date, schedule.BreakStart); err != nil {
			return nil, fmt.Errorf("parse break start: %w", err)
		}
		if breakEnd, err = parseTimeOnDate(date, schedule.BreakEnd); err != nil {
			return nil, fmt.Errorf("parse break end: %w", err)
		}
	}

	var dayBlocks []lanes.LaneBlock
	if g.blocks != nil {
		dayStart, dayEnd := lanes.DayBounds(date)
		dayBlocks, err = g.blocks.ListLaneBlocks(ctx, laneID, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("list lane blocks: %w", err)
		}
	}

	now := g.now()
	slotDuration := time.Duration(schedule.SlotDuration) * time.Minute
	var slots []Slot

	for cursor := startTime; !cursor.Add(slotDuration).After(endTime); cursor = cursor.Add(slotDuration) {
		slotStart := cursor
		slotEnd := cursor.Add(slotDuration)

		if hasBreak && isOverlapping(slotStart, slotEnd, breakStart, breakEnd) {
			continue
		}

		s := Slot{StartTime: slotStart, EndTime: slotEnd}
		if b := lanes.IsRangeBlocked(laneID, slotStart, slotEnd, dayBlocks); b != nil {
			s.BlockID = b.ID
		}
		s.Available = s.BlockID == "" && !slotStart.Before(now)

		slots = append(slots, s)
	}

	return slots, nil
}

// ToSlotInfo converts slots to their wire form.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.StartTime.Format(timewindow.ClockLayout),
			End:       s.EndTime.Format(timewindow.ClockLayout),
			Available: s.Available,
			Blocked:   s.BlockID != "",
		}
	}
	return result
}

func parseTimeOnDate(date time.Time, s string) (time.Time, error) {
	c, err := timewindow.ParseClock(s)
	if err != nil {
		return time.Time{}, err
	}
	return c.On(timewindow.DateOf(date), date.Location()), nil
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}
