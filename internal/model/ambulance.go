package model

import "time"

// AmbulanceStatus controls whether an ambulance is offered to patients.
type AmbulanceStatus string

const (
	AmbulanceActive   AmbulanceStatus = "active"
	AmbulanceInactive AmbulanceStatus = "inactive"
)

// IsValid reports whether s is a known ambulance status.
func (s AmbulanceStatus) IsValid() bool {
	return s == AmbulanceActive || s == AmbulanceInactive
}

// Ambulance represents a row in the `ambulances` table.  Each driver owns
// exactly one ambulance, created together with the driver's account.
// DriverID is zero when the owning driver row no longer exists.
type Ambulance struct {
	ID        uint64          `json:"id"`         // ambulances.id
	DriverID  uint64          `json:"driver_id"`  // ambulances.driver_id (nullable, 0 = none)
	Status    AmbulanceStatus `json:"status"`     // ambulances.status
	CreatedAt time.Time       `json:"created_at"` // ambulances.created_at
	UpdatedAt time.Time       `json:"updated_at"` // ambulances.updated_at
}

// AmbulanceListing is the read model shown to patients: an ambulance
// joined with its driver's name and last known position.  The ambulance
// has no location of its own.
type AmbulanceListing struct {
	ID                uint64          `json:"id"`
	Status            AmbulanceStatus `json:"status"`
	DriverID          uint64          `json:"driver_id"`
	DriverUsername    string          `json:"driver_username"`
	Location          *Coordinates    `json:"location"`
	LocationUpdatedAt *time.Time      `json:"location_updated_at,omitempty"`
}
