package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		u := &model.User{Username: "p", Email: "p@example.com", Role: model.RolePatient}
		require.NoError(t, tx.CreateUser(ctx, u))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetUserByEmail(ctx, "p@example.com")
		return err
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStoreUniqueKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &model.User{Username: "dave", Email: "d@example.com", Role: model.RoleDriver}))
		assert.ErrorIs(t, tx.CreateUser(ctx, &model.User{Username: "dave", Email: "x@example.com"}), ErrUsernameExists)
		assert.ErrorIs(t, tx.CreateUser(ctx, &model.User{Username: "other", Email: "D@example.com"}), ErrEmailExists)

		require.NoError(t, tx.CreateAmbulance(ctx, &model.Ambulance{DriverID: 1}))
		assert.ErrorIs(t, tx.CreateAmbulance(ctx, &model.Ambulance{DriverID: 1}), ErrDriverHasAmbulance)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreActiveBookingIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.InTx(ctx, func(tx Tx) error {
		b1 := &model.Booking{PatientID: 7, AmbulanceID: 1, Status: model.BookingPending}
		require.NoError(t, tx.CreateBooking(ctx, b1))
		assert.ErrorIs(t, tx.CreateBooking(ctx, &model.Booking{PatientID: 7, AmbulanceID: 2, Status: model.BookingPending}), ErrActiveBookingExists)

		ok, err := tx.UpdateBookingStatus(ctx, b1.ID, model.BookingPending, model.BookingRejected)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = tx.UpdateBookingStatus(ctx, b1.ID, model.BookingPending, model.BookingConfirmed)
		require.NoError(t, err)
		assert.False(t, ok, "conditional update must miss once the booking left pending")

		return tx.CreateBooking(ctx, &model.Booking{PatientID: 7, AmbulanceID: 2, Status: model.BookingPending})
	})
	require.NoError(t, err)
}

func TestMemoryStoreTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.StoreRefresh(ctx, 3, "h1", time.Now().Add(time.Hour)))
	require.NoError(t, s.StoreRefresh(ctx, 3, "h2", time.Now().Add(-time.Minute)))

	uid, err := s.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), uid)

	_, err = s.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, sql.ErrNoRows, "expired")

	require.NoError(t, s.RevokeAllForUser(ctx, 3))
	_, err = s.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, sql.ErrNoRows, "revoked")
}
