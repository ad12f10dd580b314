// Package queue defines the booking event payload exchanged over the
// message broker and the consumer that records those events.
package queue

import "time"

// BookingEventsQueue is the durable queue booking events are published to.
const BookingEventsQueue = "booking.events"

// BookingEvent is published after a booking is created or changes status.
// It carries enough information for downstream consumers to log or notify
// without querying the primary database.
type BookingEvent struct {
	BookingID   uint64    `json:"booking_id"`
	PatientID   uint64    `json:"patient_id"`
	AmbulanceID uint64    `json:"ambulance_id"`
	DriverID    uint64    `json:"driver_id,omitempty"`
	Status      string    `json:"status"`
	PatientLat  float64   `json:"patient_lat"`
	PatientLng  float64   `json:"patient_lng"`
	OccurredAt  time.Time `json:"occurred_at"`
}
