package slots

import (
	"fmt"
	"time"

	"nook/internal/timewindow"
)

// FreeWindow is a run of back-to-back available slots.
type FreeWindow struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

// DurationOption is one bookable length from a start slot.
type DurationOption struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

// StartCheck answers whether a service fits a lane from a given slot.
type StartCheck struct {
	Start           string           `json:"start"`
	SlotsNeeded     int              `json:"slots_needed"`
	Bookable        bool             `json:"bookable"`
	DurationOptions []DurationOption `json:"duration_options"`
}

// FreeWindows merges the available slots of a day grid into contiguous
// windows. The grid is assumed ordered by start, as GenerateSlots returns it.
func FreeWindows(grid []Slot) []FreeWindow {
	var out []FreeWindow
	var run []Slot
	flush := func() {
		if len(run) == 0 {
			return
		}
		first, last := run[0], run[len(run)-1]
		out = append(out, FreeWindow{
			Start:   first.StartTime.Format(timewindow.ClockLayout),
			End:     last.EndTime.Format(timewindow.ClockLayout),
			Minutes: int(last.EndTime.Sub(first.StartTime) / time.Minute),
		})
		run = run[:0]
	}

	for _, s := range grid {
		if !s.Available {
			flush()
			continue
		}
		if len(run) > 0 && !s.StartTime.Equal(run[len(run)-1].EndTime) {
			flush()
		}
		run = append(run, s)
	}
	flush()
	return out
}

// SlotsNeeded returns how many grid slots a service of durationMinutes
// occupies. Anything shorter than one slot still takes one.
func SlotsNeeded(durationMinutes, slotMinutes int) int {
	if slotMinutes <= 0 || durationMinutes <= slotMinutes {
		return 1
	}
	return (durationMinutes + slotMinutes - 1) / slotMinutes
}

// CheckStart evaluates the run of free slots beginning at start. Bookable
// is true when at least count slots are free back to back.
func CheckStart(grid []Slot, start time.Time, count int) StartCheck {
	check := StartCheck{
		Start:           start.Format(timewindow.ClockLayout),
		SlotsNeeded:     count,
		DurationOptions: []DurationOption{},
	}

	run := freeRunFrom(grid, start)
	if count > 0 && len(run) >= count {
		check.Bookable = true
	}
	for _, s := range run {
		minutes := int(s.EndTime.Sub(start) / time.Minute)
		check.DurationOptions = append(check.DurationOptions, DurationOption{Minutes: minutes, Label: FormatDuration(minutes)})
	}
	return check
}

// freeRunFrom returns the available slots chained to the one starting at
// start, or nil when that slot is missing or taken.
func freeRunFrom(grid []Slot, start time.Time) []Slot {
	for i, s := range grid {
		if !s.StartTime.Equal(start) {
			continue
		}
		j := i
		for j < len(grid) && grid[j].Available && (j == i || grid[j].StartTime.Equal(grid[j-1].EndTime)) {
			j++
		}
		return grid[i:j]
	}
	return nil
}

// FormatDuration renders minutes as "45m", "1h" or "1h 30m".
func FormatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
