package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	good := map[string]time.Duration{
		"06:00":    6 * time.Hour,
		"22:00":    22 * time.Hour,
		"14:30:15": 14*time.Hour + 30*time.Minute + 15*time.Second,
		"00:00":    0,
		"24:00":    24 * time.Hour,
	}
	for in, want := range good {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "6", "6:00", "25:00", "24:01", "12:60", "12:00:61", "ab:cd", "12:00:00:00", "-1:00"} {
		_, err := ParseClock(in)
		assert.Error(t, err, in)
	}
}
