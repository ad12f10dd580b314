package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to BookingStatus
		ok       bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingPending, BookingRejected, true},
		{BookingPending, BookingCompleted, false},
		{BookingConfirmed, BookingCompleted, true},
		{BookingConfirmed, BookingRejected, false},
		{BookingConfirmed, BookingConfirmed, false},
		{BookingRejected, BookingConfirmed, false},
		{BookingRejected, BookingPending, false},
		{BookingCompleted, BookingPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBookingStatusFlags(t *testing.T) {
	assert.True(t, BookingPending.IsActive())
	assert.True(t, BookingConfirmed.IsActive())
	assert.False(t, BookingRejected.IsActive())
	assert.False(t, BookingCompleted.IsActive())

	_, err := ParseBookingStatus("cancelled")
	assert.Error(t, err)
	s, err := ParseBookingStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, BookingConfirmed, s)
}

func TestNewCoordinates(t *testing.T) {
	lat, lng := 12.9, 77.6
	c, err := NewCoordinates(&lat, &lng)
	require.NoError(t, err)
	assert.Equal(t, Coordinates{Lat: 12.9, Lng: 77.6}, c)

	zero := 0.0
	c, err = NewCoordinates(&zero, &zero)
	require.NoError(t, err, "zero is a real coordinate")
	assert.Equal(t, Coordinates{}, c)

	_, err = NewCoordinates(nil, &lng)
	assert.Error(t, err)

	bad := 91.0
	_, err = NewCoordinates(&bad, &lng)
	assert.Error(t, err)
}

func TestCoordinatesRejectNonFinite(t *testing.T) {
	for _, c := range []Coordinates{
		{Lat: math.NaN(), Lng: 10},
		{Lat: 10, Lng: math.NaN()},
		{Lat: math.Inf(1), Lng: 0},
		{Lat: 0, Lng: math.Inf(-1)},
	} {
		assert.Error(t, c.Validate(), "%v", c)
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Driver ")
	assert.True(t, ok)
	assert.Equal(t, RoleDriver, r)

	_, ok = ParseRole("admin")
	assert.False(t, ok)
}
