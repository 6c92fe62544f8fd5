package scheduling

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostScale is the number of fractional digits persisted for a total cost.
const CostScale = 3

// maxCost is the largest value a DECIMAL(10,3) column holds.
var maxCost = decimal.RequireFromString("9999999.999")

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// Cost prices the range [start, end) at hourlyPrice per hour, rounded to
// three fractional digits.  The duration is converted to hours in decimal
// arithmetic so that currency values never pass through binary floating
// point.  A non-positive duration costs nothing.
func Cost(start, end time.Time, hourlyPrice decimal.Decimal) decimal.Decimal {
	d := end.Sub(start)
	if d <= 0 {
		return decimal.Zero
	}
	hours := decimal.NewFromInt(int64(d)).Div(nanosPerHour)
	return hours.Mul(hourlyPrice).Round(CostScale)
}
