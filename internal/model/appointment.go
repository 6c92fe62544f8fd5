package model

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Appointment is a confirmed reservation of a field for a contiguous
// time range.  The range is half-open: StartTime is inclusive and
// EndTime is exclusive.  All timestamps are stored in UTC.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – identity that owns the booking.
//  FieldID   – booked field.
//  StartTime – first instant of the booking.
//  EndTime   – first instant after the booking (must be after StartTime).
//  CreatedAt – set once when the booking is created.
//  TotalCost – derived price, DECIMAL(10,3), recomputed whenever the
//              range or field changes.
type Appointment struct {
	ID        uint64          // appointments.id
	UserID    uint64          // appointments.user_id
	FieldID   uint64          // appointments.field_id
	StartTime time.Time       // appointments.start_time
	EndTime   time.Time       // appointments.end_time
	CreatedAt time.Time       // appointments.created_at
	TotalCost decimal.Decimal // appointments.total_cost
}

// DurationHours returns the booked duration in hours rounded to two
// decimal places.
func (a Appointment) DurationHours() float64 {
	h := a.EndTime.Sub(a.StartTime).Hours()
	return math.Round(h*100) / 100
}

// AppointmentView is an appointment joined with the display data of its
// field and owner.  It is what list and detail queries return.
type AppointmentView struct {
	Appointment
	FieldName     string // fields.name
	UserFirstName string // users.first_name
	UserLastName  string // users.last_name
	UserEmail     string // users.email
}

// UserDisplayName is the owner's full name, or the email when no name
// has been recorded.
func (v AppointmentView) UserDisplayName() string {
	full := strings.TrimSpace(strings.TrimSpace(v.UserFirstName) + " " + strings.TrimSpace(v.UserLastName))
	if full != "" {
		return full
	}
	return v.UserEmail
}
