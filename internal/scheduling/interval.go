package scheduling

import (
	"time"

	"github.com/iliyamo/pitch-booking/internal/model"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether i and o share at least one instant.  Touching
// ranges such as [14:00,16:00) and [16:00,17:00) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool { return i.End.After(i.Start) }

// Conflicts scans existing for appointments on fieldID whose range
// intersects [start, end).  The appointment with id excludeID is skipped,
// which is how an update avoids colliding with itself; pass 0 to scan
// everything.  It is the in-memory twin of the SQL predicate
// `start_time < end AND end_time > start` used by the repository.
func Conflicts(existing []model.Appointment, fieldID uint64, start, end time.Time, excludeID uint64) (int, bool) {
	want := Interval{Start: start, End: end}
	n := 0
	for _, a := range existing {
		if a.FieldID != fieldID || (excludeID != 0 && a.ID == excludeID) {
			continue
		}
		if want.Overlaps(Interval{Start: a.StartTime, End: a.EndTime}) {
			n++
		}
	}
	return n, n > 0
}
