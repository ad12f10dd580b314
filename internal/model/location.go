package model

import (
	"fmt"
	"math"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewCoordinates builds Coordinates from optional inputs.  A nil value
// means the caller did not send the field; zero is a legal coordinate
// and is accepted as-is.
func NewCoordinates(lat, lng *float64) (Coordinates, error) {
	if lat == nil || lng == nil {
		return Coordinates{}, fmt.Errorf("latitude and longitude are required")
	}
	c := Coordinates{Lat: *lat, Lng: *lng}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// Validate checks the numeric range of both components.
func (c Coordinates) Validate() error {
	if !finite(c.Lat) || !finite(c.Lng) {
		return fmt.Errorf("coordinates must be finite numbers")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Lng)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
