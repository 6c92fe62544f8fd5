package scheduling

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name  string
		d     time.Duration
		price string
		want  string
	}{
		{"two hours", 2 * time.Hour, "50.00", "100.000"},
		{"ninety minutes", 90 * time.Minute, "33.33", "49.995"},
		{"twenty minutes rounds", 20 * time.Minute, "10.00", "3.333"},
		{"forty minutes rounds up", 40 * time.Minute, "10.00", "6.667"},
		{"free field", 3 * time.Hour, "0", "0.000"},
		{"zero duration", 0, "50.00", "0.000"},
		{"negative duration", -time.Hour, "50.00", "0.000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := at(10, 0)
			got := Cost(start, start.Add(tt.d), decimal.RequireFromString(tt.price))
			assert.Equal(t, tt.want, got.StringFixed(CostScale))
		})
	}
}

func TestCostIsAdditiveOnWholeHours(t *testing.T) {
	price := decimal.RequireFromString("37.50")
	a, b, c := at(8, 0), at(11, 0), at(13, 0)

	whole := Cost(a, c, price)
	parts := Cost(a, b, price).Add(Cost(b, c, price))
	assert.True(t, whole.Equal(parts), "%s != %s", whole, parts)
	assert.True(t, whole.Equal(Cost(a, at(9, 0), price).Mul(decimal.NewFromInt(5))))
}
