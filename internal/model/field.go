package model

import "github.com/shopspring/decimal"

// Field is a rentable football pitch.  Only the columns needed for
// scheduling are mapped; everything else about a field belongs to the
// catalog service.
type Field struct {
	ID          uint64          // fields.id
	OwnerID     uint64          // fields.owner_id
	Name        string          // fields.name
	HourlyPrice decimal.Decimal // fields.hourly_price, DECIMAL(9,2)
}
