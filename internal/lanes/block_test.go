package lanes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datetime(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func block(id, lane string, start, end time.Time) LaneBlock {
	return LaneBlock{ID: id, LaneID: lane, CenterID: "madrid-centro", Start: start, End: end}
}

func TestIsBlocked_EndExclusive(t *testing.T) {
	blocks := []LaneBlock{block("b1", "lane-1", datetime(2024, 1, 1, 10, 0, 0), datetime(2024, 1, 1, 11, 0, 0))}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"at start", datetime(2024, 1, 1, 10, 0, 0), true},
		{"last second", datetime(2024, 1, 1, 10, 59, 59), true},
		{"at end", datetime(2024, 1, 1, 11, 0, 0), false},
		{"before", datetime(2024, 1, 1, 9, 59, 59), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsBlocked("lane-1", tt.at, blocks)
			assert.Equal(t, tt.want, got != nil)
		})
	}
}

func TestIsBlocked_OtherLaneAndFirstMatch(t *testing.T) {
	blocks := []LaneBlock{
		block("other", "lane-2", datetime(2024, 1, 1, 9, 0, 0), datetime(2024, 1, 1, 12, 0, 0)),
		block("first", "lane-1", datetime(2024, 1, 1, 9, 0, 0), datetime(2024, 1, 1, 12, 0, 0)),
		block("second", "lane-1", datetime(2024, 1, 1, 10, 0, 0), datetime(2024, 1, 1, 11, 0, 0)),
	}

	got := IsBlocked("lane-1", datetime(2024, 1, 1, 10, 30, 0), blocks)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ID)

	assert.Nil(t, IsBlocked("lane-3", datetime(2024, 1, 1, 10, 30, 0), blocks))
}

func TestIsBlocked_MalformedNeverMatches(t *testing.T) {
	at := datetime(2024, 1, 1, 10, 0, 0)
	blocks := []LaneBlock{
		block("inverted", "lane-1", datetime(2024, 1, 1, 11, 0, 0), datetime(2024, 1, 1, 9, 0, 0)),
		block("empty", "lane-1", at, at),
	}
	assert.Nil(t, IsBlocked("lane-1", at, blocks))
	assert.Empty(t, BlocksOverlappingDay("lane-1", at, blocks))
}

func TestBlocksOverlappingDay(t *testing.T) {
	day := datetime(2024, 1, 2, 15, 0, 0)
	blocks := []LaneBlock{
		block("full-span", "lane-1", datetime(2024, 1, 1, 0, 0, 0), datetime(2024, 1, 3, 0, 0, 0)),
		block("starts-in-day", "lane-1", datetime(2024, 1, 2, 20, 0, 0), datetime(2024, 1, 4, 8, 0, 0)),
		block("ends-in-day", "lane-1", datetime(2023, 12, 30, 8, 0, 0), datetime(2024, 1, 2, 9, 0, 0)),
		block("inside", "lane-1", datetime(2024, 1, 2, 10, 0, 0), datetime(2024, 1, 2, 11, 0, 0)),
		block("day-before", "lane-1", datetime(2024, 1, 1, 10, 0, 0), datetime(2024, 1, 1, 23, 0, 0)),
		block("day-after", "lane-1", datetime(2024, 1, 3, 0, 0, 1), datetime(2024, 1, 3, 5, 0, 0)),
		block("other-lane", "lane-2", datetime(2024, 1, 2, 10, 0, 0), datetime(2024, 1, 2, 11, 0, 0)),
	}

	got := BlocksOverlappingDay("lane-1", day, blocks)
	assert.Equal(t, []string{"full-span", "starts-in-day", "ends-in-day", "inside"}, blockIDs(got))
}

func TestBlocksOverlappingDay_MidnightEdges(t *testing.T) {
	day := datetime(2024, 1, 2, 0, 0, 0)
	blocks := []LaneBlock{
		// Ends exactly at the day's midnight: the end clause matches.
		block("ends-at-midnight", "lane-1", datetime(2024, 1, 1, 20, 0, 0), datetime(2024, 1, 2, 0, 0, 0)),
		// Starts at the next midnight: outside the day.
		block("next-midnight", "lane-1", datetime(2024, 1, 3, 0, 0, 0), datetime(2024, 1, 3, 2, 0, 0)),
	}

	got := BlocksOverlappingDay("lane-1", day, blocks)
	assert.Equal(t, []string{"ends-at-midnight"}, blockIDs(got))
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(datetime(2024, 1, 2, 15, 30, 0))
	assert.Equal(t, datetime(2024, 1, 2, 0, 0, 0), start)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 59, 59, int(999*time.Millisecond), time.UTC), end)
}

func TestIsRangeBlocked(t *testing.T) {
	blocks := []LaneBlock{block("b1", "lane-1", datetime(2024, 1, 1, 10, 0, 0), datetime(2024, 1, 1, 11, 0, 0))}

	assert.Nil(t, IsRangeBlocked("lane-1", datetime(2024, 1, 1, 9, 0, 0), datetime(2024, 1, 1, 10, 0, 0), blocks))
	assert.Nil(t, IsRangeBlocked("lane-1", datetime(2024, 1, 1, 11, 0, 0), datetime(2024, 1, 1, 12, 0, 0), blocks))
	assert.NotNil(t, IsRangeBlocked("lane-1", datetime(2024, 1, 1, 10, 30, 0), datetime(2024, 1, 1, 11, 30, 0), blocks))
	assert.NotNil(t, IsRangeBlocked("lane-1", datetime(2024, 1, 1, 9, 0, 0), datetime(2024, 1, 1, 12, 0, 0), blocks))
}

func TestForLane(t *testing.T) {
	blocks := []LaneBlock{
		block("a", "lane-1", datetime(2024, 1, 1, 10, 0, 0), datetime(2024, 1, 1, 11, 0, 0)),
		block("b", "lane-2", datetime(2024, 1, 1, 10, 0, 0), datetime(2024, 1, 1, 11, 0, 0)),
	}
	assert.Equal(t, []string{"b"}, blockIDs(ForLane("lane-2", blocks)))
}

func blockIDs(blocks []LaneBlock) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.ID)
	}
	return out
}
