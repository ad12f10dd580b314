package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// BookingRepo provides access to the 'bookings' table.  The table carries
// a stored generated column, active_patient_id, that equals patient_id
// while a booking is pending or confirmed and NULL otherwise; its unique
// index is what keeps a patient to one active booking even when two
// requests race past the application-level check.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = "b.id, b.patient_id, b.ambulance_id, b.status, b.patient_lat, b.patient_lng, b.created_at, b.updated_at"

func scanBooking(row rowScanner, extra ...any) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	dest := append([]any{&b.ID, &b.PatientID, &b.AmbulanceID, &status,
		&b.PatientLat, &b.PatientLng, &b.CreatedAt, &b.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Booking{}, err
	}
	st, err := model.ParseBookingStatus(status)
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	b.Status = st
	return b, nil
}

// CreateTx inserts a new booking within the scope of an existing
// transaction and populates its ID and timestamps.  A violation of the
// active-booking unique index is returned as ErrActiveBookingExists.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (patient_id, ambulance_id, status, patient_lat, patient_lng) VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, b.PatientID, b.AmbulanceID, string(b.Status), b.PatientLat, b.PatientLng)
	if err != nil {
		if _, dup := mysqlDuplicate(err); dup {
			return ErrActiveBookingExists
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	// Query back the full row to populate timestamps and defaults
	created, err := scanBooking(tx.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings b WHERE b.id = ?", id))
	if err != nil {
		return err
	}
	*b = created
	return nil
}

// ActiveForPatientTx returns the patient's pending or confirmed booking,
// or sql.ErrNoRows when there is none.
func (r *BookingRepo) ActiveForPatientTx(ctx context.Context, tx *sql.Tx, patientID uint64) (model.Booking, error) {
	const q = "SELECT " + bookingColumns + ` FROM bookings b
         WHERE b.patient_id = ? AND b.status IN ('pending', 'confirmed')
         ORDER BY b.id DESC LIMIT 1`
	return scanBooking(tx.QueryRowContext(ctx, q, patientID))
}

// GetPartiesTx loads the booking joined with its ambulance's driver id.
// With forUpdate the booking and ambulance rows are locked so that
// concurrent confirm/reject calls on the same booking serialise.
func (r *BookingRepo) GetPartiesTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (model.BookingParties, error) {
	q := "SELECT " + bookingColumns + `, a.driver_id
          FROM bookings b
          JOIN ambulances a ON a.id = b.ambulance_id
         WHERE b.id = ?`
	if forUpdate {
		q += " FOR UPDATE"
	}
	var driverID sql.NullInt64
	b, err := scanBooking(tx.QueryRowContext(ctx, q, id), &driverID)
	if err != nil {
		return model.BookingParties{}, err
	}
	p := model.BookingParties{Booking: b}
	if driverID.Valid {
		p.DriverID = uint64(driverID.Int64)
	}
	return p, nil
}

// UpdateStatusTx performs a conditional status change.  It returns false
// without error when the booking is not currently in status from.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.BookingStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		if _, dup := mysqlDuplicate(err); dup {
			return false, ErrActiveBookingExists
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByAmbulanceTx lists an ambulance's bookings in the given status,
// oldest first.
func (r *BookingRepo) ListByAmbulanceTx(ctx context.Context, tx *sql.Tx, ambulanceID uint64, status model.BookingStatus) ([]model.Booking, error) {
	const q = "SELECT " + bookingColumns + ` FROM bookings b
         WHERE b.ambulance_id = ? AND b.status = ?
         ORDER BY b.created_at, b.id`
	rows, err := tx.QueryContext(ctx, q, ambulanceID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
