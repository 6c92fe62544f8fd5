package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/pitch-booking/internal/model"
)

func at(h, m int) time.Time {
	return time.Date(2025, 6, 2, h, m, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	base := Interval{Start: at(14, 0), End: at(16, 0)}
	tests := []struct {
		name string
		o    Interval
		want bool
	}{
		{"same range", base, true},
		{"starts inside", Interval{at(15, 0), at(17, 0)}, true},
		{"ends inside", Interval{at(13, 0), at(14, 30)}, true},
		{"contains", Interval{at(13, 0), at(17, 0)}, true},
		{"contained", Interval{at(14, 30), at(15, 0)}, true},
		{"touches end", Interval{at(16, 0), at(17, 0)}, false},
		{"touches start", Interval{at(12, 0), at(14, 0)}, false},
		{"disjoint", Interval{at(8, 0), at(9, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.o))
			assert.Equal(t, tt.want, tt.o.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestConflicts(t *testing.T) {
	existing := []model.Appointment{
		{ID: 1, FieldID: 1, StartTime: at(14, 0), EndTime: at(16, 0)},
		{ID: 2, FieldID: 1, StartTime: at(16, 0), EndTime: at(17, 0)},
		{ID: 3, FieldID: 2, StartTime: at(14, 0), EndTime: at(18, 0)},
	}

	n, ok := Conflicts(existing, 1, at(15, 0), at(17, 0), 0)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = Conflicts(existing, 1, at(15, 0), at(16, 30), 1)
	assert.True(t, ok)
	assert.Equal(t, 1, n, "the excluded appointment must not count")

	n, ok = Conflicts(existing, 1, at(17, 0), at(18, 0), 0)
	assert.False(t, ok)
	assert.Zero(t, n)

	_, ok = Conflicts(existing, 3, at(0, 0), at(23, 0), 0)
	assert.False(t, ok)
}
