package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

var bookingCols = []string{"id", "patient_id", "ambulance_id", "status", "patient_lat", "patient_lng", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db), mock
}

func duplicateKey(key string) error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '3' for key '" + key + "'"}
}

func TestSQLCreateBookingDuplicateActive(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bookings`).
		WithArgs(3, 5, "pending", 12.9, 77.6).
		WillReturnError(duplicateKey("bookings.uq_bookings_active_patient"))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.CreateBooking(ctx, &model.Booking{PatientID: 3, AmbulanceID: 5, Status: model.BookingPending, PatientLat: 12.9, PatientLng: 77.6})
	})
	assert.ErrorIs(t, err, ErrActiveBookingExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCreateBookingReadsBackRow(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(`FROM bookings b WHERE b\.id = \?$`).WithArgs(11).
		WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(11, 3, 5, "pending", 12.9, 77.6, now, now))
	mock.ExpectCommit()

	b := &model.Booking{PatientID: 3, AmbulanceID: 5, Status: model.BookingPending, PatientLat: 12.9, PatientLng: 77.6}
	require.NoError(t, s.InTx(ctx, func(tx Tx) error { return tx.CreateBooking(ctx, b) }))
	assert.Equal(t, uint64(11), b.ID)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, now, b.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLUpdateBookingStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = \?, updated_at = \? WHERE id = \? AND status = \?`).
		WithArgs("confirmed", sqlmock.AnyArg(), 9, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE bookings`).
		WithArgs("completed", sqlmock.AnyArg(), 9, "confirmed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(tx Tx) error {
		ok, err := tx.UpdateBookingStatus(ctx, 9, model.BookingPending, model.BookingConfirmed)
		require.NoError(t, err)
		assert.False(t, ok, "booking already left pending")

		ok, err = tx.UpdateBookingStatus(ctx, 9, model.BookingConfirmed, model.BookingCompleted)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLGetBookingPartiesLocking(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := append(append([]string{}, bookingCols...), "driver_id")

	mock.ExpectBegin()
	mock.ExpectQuery(`JOIN ambulances a ON a\.id = b\.ambulance_id WHERE b\.id = \? FOR UPDATE$`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(4, 3, 5, "pending", 1.0, 2.0, now, now, 8))
	mock.ExpectQuery(`WHERE b\.id = \?$`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(4, 3, 5, "confirmed", 1.0, 2.0, now, now, nil))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(tx Tx) error {
		p, err := tx.GetBookingParties(ctx, 4, true)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), p.DriverID)
		assert.Equal(t, model.BookingPending, p.Status)

		p, err = tx.GetBookingParties(ctx, 4, false)
		require.NoError(t, err)
		assert.Zero(t, p.DriverID, "ambulance without driver")
		assert.Equal(t, model.BookingConfirmed, p.Status)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLUnknownBookingStatusIsAnError(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings b`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(2, 3, 5, "cancelled", 1.0, 2.0, now, now))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.ActiveBookingForPatient(ctx, 3)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCreateUserDuplicateKeys(t *testing.T) {
	cases := []struct {
		key  string
		want error
	}{
		{"users.uq_users_username", ErrUsernameExists},
		{"users.uq_users_email", ErrEmailExists},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			ctx := context.Background()
			s, mock := newMockStore(t)

			mock.ExpectBegin()
			mock.ExpectExec(`INSERT INTO users`).
				WithArgs("pat", "pat@example.com", "hash", "patient").
				WillReturnError(duplicateKey(tc.key))
			mock.ExpectRollback()

			err := s.InTx(ctx, func(tx Tx) error {
				return tx.CreateUser(ctx, &model.User{Username: "pat", Email: " Pat@Example.com", PasswordHash: "hash", Role: model.RolePatient})
			})
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLCreateAmbulanceDuplicateDriver(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ambulances`).WithArgs(8, "active").
		WillReturnError(duplicateKey("ambulances.uq_ambulances_driver"))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.CreateAmbulance(ctx, &model.Ambulance{DriverID: 8})
	})
	assert.ErrorIs(t, err, ErrDriverHasAmbulance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSetAmbulanceStatusUnchanged(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	// MySQL counts only changed rows, so re-setting the current status
	// affects nothing.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE ambulances SET status = \?`).
		WithArgs("active", sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM ambulances WHERE id=\?`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.SetAmbulanceStatus(ctx, 7, model.AmbulanceActive)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSetAmbulanceStatusMissing(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE ambulances`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM ambulances`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.SetAmbulanceStatus(ctx, 7, model.AmbulanceInactive)
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLUpdateUserLocationUnchanged(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET lat=\?, lng=\?, location_updated_at=\? WHERE id=\?`).
		WithArgs(1.5, 2.5, sqlmock.AnyArg(), 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM users WHERE id=\?`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.UpdateUserLocation(ctx, 4, model.Coordinates{Lat: 1.5, Lng: 2.5}, at)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
