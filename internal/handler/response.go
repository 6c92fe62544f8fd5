package handler

import (
	"time"

	"github.com/iliyamo/pitch-booking/internal/model"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

const (
	dateLayoutISO = "2006-01-02"
	dateLayoutDMY = "02-01-2006"
)

// parseDate reads raw as a calendar date in loc using the first layout
// that matches.
func parseDate(raw string, loc *time.Location, layouts ...string) (time.Time, error) {
	var err error
	for _, layout := range layouts {
		var d time.Time
		if d, err = time.ParseInLocation(layout, raw, loc); err == nil {
			return d, nil
		}
	}
	return time.Time{}, err
}

type appointmentResponse struct {
	ID            uint64    `json:"id"`
	User          uint64    `json:"user"`
	Field         uint64    `json:"field"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	FieldName     string    `json:"field_name"`
	UserName      string    `json:"user_name"`
	DurationHours float64   `json:"duration_hours"`
	TotalCost     string    `json:"total_cost"`
	CreatedAt     time.Time `json:"created_at"`
}

func newAppointmentResponse(v model.AppointmentView, loc *time.Location) appointmentResponse {
	return appointmentResponse{
		ID:            v.ID,
		User:          v.UserID,
		Field:         v.FieldID,
		StartTime:     v.StartTime.In(loc),
		EndTime:       v.EndTime.In(loc),
		FieldName:     v.FieldName,
		UserName:      v.UserDisplayName(),
		DurationHours: v.DurationHours(),
		TotalCost:     v.TotalCost.StringFixed(scheduling.CostScale),
		CreatedAt:     v.CreatedAt.In(loc),
	}
}

func newAppointmentList(views []model.AppointmentView, loc *time.Location) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newAppointmentResponse(v, loc))
	}
	return out
}

type rangeResponse struct {
	Available bool `json:"available"`
	Conflicts int  `json:"conflicts"`
}

type busySlotResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	User      string    `json:"user"`
}

type busyResponse struct {
	FieldName string             `json:"field_name"`
	Date      string             `json:"date"`
	BusySlots []busySlotResponse `json:"busy_slots"`
}

func newBusyResponse(d scheduling.BusyDay, loc *time.Location) busyResponse {
	out := busyResponse{
		FieldName: d.FieldName,
		Date:      d.Date.In(loc).Format(dateLayoutISO),
		BusySlots: make([]busySlotResponse, 0, len(d.Slots)),
	}
	for _, s := range d.Slots {
		out.BusySlots = append(out.BusySlots, busySlotResponse{StartTime: s.Start.In(loc), EndTime: s.End.In(loc), User: s.User})
	}
	return out
}

type slotResponse struct {
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationHours float64   `json:"duration_hours"`
}

type slotsResponse struct {
	FieldName         string         `json:"field_name"`
	Date              string         `json:"date"`
	RequestedDuration float64        `json:"requested_duration"`
	AvailableSlots    []slotResponse `json:"available_slots"`
}

func newSlotsResponse(s scheduling.SlotSearch, loc *time.Location) slotsResponse {
	out := slotsResponse{
		FieldName:         s.FieldName,
		Date:              s.Date.In(loc).Format(dateLayoutISO),
		RequestedDuration: s.RequestedDuration,
		AvailableSlots:    make([]slotResponse, 0, len(s.Slots)),
	}
	for _, sl := range s.Slots {
		out.AvailableSlots = append(out.AvailableSlots, slotResponse{StartTime: sl.Start.In(loc), EndTime: sl.End.In(loc), DurationHours: sl.DurationHours})
	}
	return out
}
