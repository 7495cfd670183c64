package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nook/internal/lanes"
)

type stubBlocks struct {
	blocks []lanes.LaneBlock
	err    error
}

func (s *stubBlocks) ListLaneBlocks(_ context.Context, laneID string, from, to time.Time) ([]lanes.LaneBlock, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []lanes.LaneBlock
	for _, b := range lanes.ForLane(laneID, s.blocks) {
		if b.Start.Before(to) && b.End.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

var (
	baseDate = time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	earlier  = func() time.Time { return baseDate.AddDate(0, 0, -1) }
)

func at(hour, min int) time.Time {
	return baseDate.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestGenerateSlots(t *testing.T) {
	tests := []struct {
		name          string
		schedule      Schedule
		expectedCount int
	}{
		{
			name: "full day with break",
			schedule: Schedule{
				StartTime:    "09:00",
				EndTime:      "18:00",
				BreakStart:   "13:00",
				BreakEnd:     "14:00",
				SlotDuration: 30,
			},
			expectedCount: 16,
		},
		{
			name:          "closed day",
			schedule:      Schedule{IsClosed: true},
			expectedCount: 0,
		},
		{
			name:          "no break",
			schedule:      Schedule{StartTime: "10:00", EndTime: "12:00", SlotDuration: 30},
			expectedCount: 4,
		},
		{
			name:          "60 minute slots",
			schedule:      Schedule{StartTime: "09:00", EndTime: "12:00", SlotDuration: 60},
			expectedCount: 3,
		},
		{
			name:          "default duration",
			schedule:      Schedule{StartTime: "09:00", EndTime: "10:00"},
			expectedCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(&stubBlocks{}, earlier)

			slots, err := g.GenerateSlots(context.Background(), "lane-1", baseDate, tt.schedule)
			require.NoError(t, err)
			assert.Len(t, slots, tt.expectedCount)

			for _, s := range slots {
				assert.True(t, s.Available)
				if tt.schedule.BreakStart != "" {
					hhmm := s.StartTime.Format("15:04")
					assert.False(t, hhmm >= tt.schedule.BreakStart && hhmm < tt.schedule.BreakEnd, "break slot %s generated", hhmm)
				}
			}
		})
	}
}

func TestGenerateSlots_LaneBlocks(t *testing.T) {
	blocks := &stubBlocks{blocks: []lanes.LaneBlock{
		{ID: "maint", LaneID: "lane-1", Start: at(10, 0), End: at(11, 0)},
		{ID: "other", LaneID: "lane-2", Start: at(9, 0), End: at(12, 0)},
	}}
	g := NewGenerator(blocks, earlier)

	slots, err := g.GenerateSlots(context.Background(), "lane-1", baseDate,
		Schedule{StartTime: "09:00", EndTime: "12:00", SlotDuration: 30})
	require.NoError(t, err)
	require.Len(t, slots, 6)

	var got []bool
	for _, s := range slots {
		got = append(got, s.Available)
	}
	// 10:00 and 10:30 are blocked; 11:00 starts when the block ends.
	assert.Equal(t, []bool{true, true, false, false, true, true}, got)
	assert.Equal(t, "maint", slots[2].BlockID)
	assert.Empty(t, slots[4].BlockID)
}

func TestGenerateSlots_PastSlots(t *testing.T) {
	now := func() time.Time { return at(10, 15) }
	g := NewGenerator(nil, now)

	slots, err := g.GenerateSlots(context.Background(), "lane-1", baseDate,
		Schedule{StartTime: "09:00", EndTime: "12:00", SlotDuration: 60})
	require.NoError(t, err)
	require.Len(t, slots, 3)

	assert.False(t, slots[0].Available)
	assert.False(t, slots[1].Available)
	assert.True(t, slots[2].Available)
}

func TestGenerateSlots_Errors(t *testing.T) {
	g := NewGenerator(&stubBlocks{err: errors.New("db down")}, earlier)
	_, err := g.GenerateSlots(context.Background(), "lane-1", baseDate, Schedule{StartTime: "09:00", EndTime: "10:00"})
	assert.ErrorContains(t, err, "list lane blocks")

	g = NewGenerator(nil, earlier)
	_, err = g.GenerateSlots(context.Background(), "lane-1", baseDate, Schedule{StartTime: "9am", EndTime: "10:00"})
	assert.ErrorContains(t, err, "parse start time")
}

func TestToSlotInfo(t *testing.T) {
	infos := ToSlotInfo([]Slot{
		{StartTime: at(9, 0), EndTime: at(9, 30), Available: true},
		{StartTime: at(9, 30), EndTime: at(10, 0), BlockID: "b"},
	})

	require.Len(t, infos, 2)
	assert.Equal(t, SlotInfo{Start: "09:00", End: "09:30", Available: true}, infos[0])
	assert.Equal(t, SlotInfo{Start: "09:30", End: "10:00", Blocked: true}, infos[1])
}
