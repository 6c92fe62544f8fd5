// Package queue defines the appointment events exchanged over the message
// broker together with the publisher and the audit consumer.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the appointments topic exchange.
const (
	EventCreated   = "appointment.created"
	EventUpdated   = "appointment.updated"
	EventCancelled = "appointment.cancelled"
)

// AppointmentEvent is published after an appointment write has committed.
// It carries enough information for downstream consumers to log, notify or
// feed analytics without querying the primary database.  Timestamps are
// RFC 3339 strings in UTC and TotalCost keeps its three fractional digits.
type AppointmentEvent struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	AppointmentID uint64 `json:"appointment_id"`
	UserID        uint64 `json:"user_id"`
	FieldID       uint64 `json:"field_id"`
	FieldName     string `json:"field_name"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	TotalCost     string `json:"total_cost"`
	ActorID       uint64 `json:"actor_id"`
	OccurredAt    string `json:"occurred_at"`
}

// NewAppointmentEvent stamps a fresh event id and occurrence time.
func NewAppointmentEvent(kind string, at time.Time) AppointmentEvent {
	return AppointmentEvent{
		EventID:    uuid.NewString(),
		Type:       kind,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
