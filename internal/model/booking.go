package model

import (
	"fmt"
	"time"
)

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingRejected  BookingStatus = "rejected"
	BookingCompleted BookingStatus = "completed"
)

// validTransitions defines the booking state machine.  Every transition
// is driver-initiated.
var validTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingRejected},
	BookingConfirmed: {BookingCompleted},
	BookingRejected:  {},
	BookingCompleted: {},
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsActive reports whether a booking in this status blocks its patient
// from creating another one.
func (s BookingStatus) IsActive() bool {
	return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) String() string { return string(s) }

// ParseBookingStatus reads a status column.  Values outside the four
// lifecycle states are rejected rather than carried through as-is.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// Booking is a patient's request for a specific ambulance.  PatientLat
// and PatientLng are captured at creation and never change; CreatedAt is
// the booking timestamp.
type Booking struct {
	ID          uint64        `json:"id"`
	PatientID   uint64        `json:"patient_id"`
	AmbulanceID uint64        `json:"ambulance_id"`
	Status      BookingStatus `json:"status"`
	PatientLat  float64       `json:"patient_lat"`
	PatientLng  float64       `json:"patient_lng"`
	CreatedAt   time.Time     `json:"timestamp"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BookingParties is a booking joined with the driver that owns its
// ambulance.  DriverID is zero when the ambulance has no driver.
type BookingParties struct {
	Booking
	DriverID uint64
}

// LiveView is what either party of a confirmed booking sees on the map.
// Driver is nil until the driver has reported a position.
type LiveView struct {
	BookingID       uint64        `json:"booking_id"`
	Status          BookingStatus `json:"status"`
	PatientLat      float64       `json:"patient_lat"`
	PatientLng      float64       `json:"patient_lng"`
	Driver          *Coordinates  `json:"driver"`
	DriverUpdatedAt *time.Time    `json:"driver_updated_at,omitempty"`
}
