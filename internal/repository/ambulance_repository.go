package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// AmbulanceRepo provides access to the 'ambulances' table.  An ambulance
// has no coordinates of its own; listings join the owning driver's row.
type AmbulanceRepo struct {
	db *sql.DB
}

// NewAmbulanceRepo returns a new AmbulanceRepo bound to the given database.
func NewAmbulanceRepo(db *sql.DB) *AmbulanceRepo { return &AmbulanceRepo{db: db} }

func scanAmbulance(row rowScanner) (model.Ambulance, error) {
	var (
		a        model.Ambulance
		driverID sql.NullInt64
		status   string
	)
	if err := row.Scan(&a.ID, &driverID, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Ambulance{}, err
	}
	if driverID.Valid {
		a.DriverID = uint64(driverID.Int64)
	}
	a.Status = model.AmbulanceStatus(status)
	return a, nil
}

// CreateTx inserts a new ambulance for a driver.  A second ambulance for
// the same driver violates uq_ambulances_driver and is reported as
// ErrDriverHasAmbulance.
func (r *AmbulanceRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.Ambulance) error {
	if a.Status == "" {
		a.Status = model.AmbulanceActive
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO ambulances (driver_id, status) VALUES (?, ?)", a.DriverID, string(a.Status))
	if err != nil {
		if _, dup := mysqlDuplicate(err); dup {
			return ErrDriverHasAmbulance
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByIDTx(ctx, tx, uint64(id))
	if err != nil {
		return err
	}
	*a = created
	return nil
}

// GetByIDTx returns the ambulance with the given id or sql.ErrNoRows.
func (r *AmbulanceRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ambulance, error) {
	const q = `SELECT id, driver_id, status, created_at, updated_at FROM ambulances WHERE id = ?`
	return scanAmbulance(tx.QueryRowContext(ctx, q, id))
}

// GetByDriverTx returns the ambulance owned by driverID or sql.ErrNoRows.
func (r *AmbulanceRepo) GetByDriverTx(ctx context.Context, tx *sql.Tx, driverID uint64) (model.Ambulance, error) {
	const q = `SELECT id, driver_id, status, created_at, updated_at FROM ambulances WHERE driver_id = ?`
	return scanAmbulance(tx.QueryRowContext(ctx, q, driverID))
}

// ListByStatusTx lists ambulances in the given status joined with their
// driver's username and last reported position, ordered by id.
func (r *AmbulanceRepo) ListByStatusTx(ctx context.Context, tx *sql.Tx, status model.AmbulanceStatus) ([]model.AmbulanceListing, error) {
	const q = `
        SELECT a.id, a.status, u.id, u.username, u.lat, u.lng, u.location_updated_at
          FROM ambulances a
          JOIN users u ON u.id = a.driver_id
         WHERE a.status = ?
         ORDER BY a.id`
	rows, err := tx.QueryContext(ctx, q, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AmbulanceListing
	for rows.Next() {
		var (
			l        model.AmbulanceListing
			st       string
			lat, lng sql.NullFloat64
			locAt    sql.NullTime
		)
		if err := rows.Scan(&l.ID, &st, &l.DriverID, &l.DriverUsername, &lat, &lng, &locAt); err != nil {
			return nil, err
		}
		l.Status = model.AmbulanceStatus(st)
		if lat.Valid && lng.Valid {
			l.Location = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		if locAt.Valid {
			t := locAt.Time
			l.LocationUpdatedAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetStatusTx changes an ambulance's availability.
func (r *AmbulanceRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.AmbulanceStatus) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE ambulances SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// unchanged status within the same second reports 0 rows
		var one int
		return tx.QueryRowContext(ctx, "SELECT 1 FROM ambulances WHERE id=?", id).Scan(&one)
	}
	return nil
}
