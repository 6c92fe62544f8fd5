package scheduling

import (
	"sort"
	"time"
)

// AvailableSlot is a bookable range of exactly the requested duration.
type AvailableSlot struct {
	Start         time.Time
	End           time.Time
	DurationHours float64
}

// BusySlot is an existing booking rendered for display.
type BusySlot struct {
	Start time.Time
	End   time.Time
	User  string
}

// SlotQuery describes one free-slot search inside a single day window.
type SlotQuery struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Duration    time.Duration
	// Step is how far the suggestion window advances inside a free region.
	Step time.Duration
	// Limit caps the number of returned slots; zero or less means no cap.
	Limit int
}

const defaultSlotStep = 60 * time.Minute

// FindSlots walks busy (ordered by start) with a cursor that begins at the
// window start and collects every free region long enough for the
// requested duration.  Each region is then swept with a window of exactly
// that duration, advancing by q.Step, so consecutive suggestions overlap
// whenever the step is shorter than the duration.  Results are in
// chronological order and capped at q.Limit.
func FindSlots(busy []Interval, q SlotQuery) []AvailableSlot {
	slots := []AvailableSlot{}
	if q.Duration <= 0 || !q.WindowEnd.After(q.WindowStart) {
		return slots
	}
	step := q.Step
	if step <= 0 {
		step = defaultSlotStep
	}

	ordered := make([]Interval, len(busy))
	copy(ordered, busy)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	var regions []Interval
	cursor := q.WindowStart
	for _, b := range ordered {
		if !cursor.Add(q.Duration).After(b.Start) {
			end := b.Start
			if end.After(q.WindowEnd) {
				end = q.WindowEnd
			}
			if !cursor.Add(q.Duration).After(end) {
				regions = append(regions, Interval{Start: cursor, End: end})
			}
		}
		// max() keeps the cursor monotonic when stored bookings overlap.
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if !cursor.Add(q.Duration).After(q.WindowEnd) {
		regions = append(regions, Interval{Start: cursor, End: q.WindowEnd})
	}

	hours := q.Duration.Hours()
	for _, r := range regions {
		for s := r.Start; !s.Add(q.Duration).After(r.End); s = s.Add(step) {
			if q.Limit > 0 && len(slots) >= q.Limit {
				return slots
			}
			slots = append(slots, AvailableSlot{Start: s, End: s.Add(q.Duration), DurationHours: hours})
		}
	}
	return slots
}

// DayBounds returns midnight of day in loc and the following midnight.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// AtClock combines the calendar date of day (in loc) with a time-of-day
// offset from midnight.
func AtClock(day time.Time, clock time.Duration, loc *time.Location) time.Time {
	start, _ := DayBounds(day, loc)
	h := int(clock / time.Hour)
	m := int((clock % time.Hour) / time.Minute)
	s := int((clock % time.Minute) / time.Second)
	return time.Date(start.Year(), start.Month(), start.Day(), h, m, s, 0, loc)
}
