package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// Tx is the set of reads and writes available inside one unit of work.
// Every read-check-write sequence of the dispatch and account services
// runs through a single Tx so that its checks and its write commit or
// roll back together.
type Tx interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id uint64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	// LockUser reads the user and holds a write lock on the row until the
	// transaction ends.
	LockUser(ctx context.Context, id uint64) (model.User, error)
	UpdateUserLocation(ctx context.Context, id uint64, c model.Coordinates, at time.Time) error

	CreateAmbulance(ctx context.Context, a *model.Ambulance) error
	GetAmbulance(ctx context.Context, id uint64) (model.Ambulance, error)
	GetAmbulanceByDriver(ctx context.Context, driverID uint64) (model.Ambulance, error)
	ListAmbulances(ctx context.Context, status model.AmbulanceStatus) ([]model.AmbulanceListing, error)
	SetAmbulanceStatus(ctx context.Context, id uint64, status model.AmbulanceStatus) error

	CreateBooking(ctx context.Context, b *model.Booking) error
	ActiveBookingForPatient(ctx context.Context, patientID uint64) (model.Booking, error)
	// GetBookingParties loads a booking together with its ambulance's
	// driver.  With forUpdate the booking row stays locked until the
	// transaction ends.
	GetBookingParties(ctx context.Context, id uint64, forUpdate bool) (model.BookingParties, error)
	// UpdateBookingStatus moves a booking from one status to another and
	// reports false when the booking was no longer in status from.
	UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (bool, error)
	ListBookingsByAmbulance(ctx context.Context, ambulanceID uint64, status model.BookingStatus) ([]model.Booking, error)
}

// Store runs fn inside a transaction.  The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// TokenStore persists hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// SQLStore implements Store on MySQL through the table repositories.
type SQLStore struct {
	DB         *sql.DB
	Users      *UserRepo
	Ambulances *AmbulanceRepo
	Bookings   *BookingRepo
}

// NewSQLStore wires the repositories for db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		DB:         db,
		Users:      NewUserRepo(db),
		Ambulances: NewAmbulanceRepo(db),
		Bookings:   NewBookingRepo(db),
	}
}

// InTx begins a transaction, hands it to fn and commits when fn succeeds.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// sqlTx adapts the repositories' ...Tx methods to the Tx interface.
type sqlTx struct {
	store *SQLStore
	tx    *sql.Tx
}

func (t *sqlTx) CreateUser(ctx context.Context, u *model.User) error {
	return t.store.Users.CreateTx(ctx, t.tx, u)
}

func (t *sqlTx) GetUserByID(ctx context.Context, id uint64) (model.User, error) {
	return t.store.Users.GetByIDTx(ctx, t.tx, id, false)
}

func (t *sqlTx) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return t.store.Users.GetByEmailTx(ctx, t.tx, email)
}

func (t *sqlTx) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return t.store.Users.GetByUsernameTx(ctx, t.tx, username)
}

func (t *sqlTx) LockUser(ctx context.Context, id uint64) (model.User, error) {
	return t.store.Users.GetByIDTx(ctx, t.tx, id, true)
}

func (t *sqlTx) UpdateUserLocation(ctx context.Context, id uint64, c model.Coordinates, at time.Time) error {
	return t.store.Users.UpdateLocationTx(ctx, t.tx, id, c, at)
}

func (t *sqlTx) CreateAmbulance(ctx context.Context, a *model.Ambulance) error {
	return t.store.Ambulances.CreateTx(ctx, t.tx, a)
}

func (t *sqlTx) GetAmbulance(ctx context.Context, id uint64) (model.Ambulance, error) {
	return t.store.Ambulances.GetByIDTx(ctx, t.tx, id)
}

func (t *sqlTx) GetAmbulanceByDriver(ctx context.Context, driverID uint64) (model.Ambulance, error) {
	return t.store.Ambulances.GetByDriverTx(ctx, t.tx, driverID)
}

func (t *sqlTx) ListAmbulances(ctx context.Context, status model.AmbulanceStatus) ([]model.AmbulanceListing, error) {
	return t.store.Ambulances.ListByStatusTx(ctx, t.tx, status)
}

func (t *sqlTx) SetAmbulanceStatus(ctx context.Context, id uint64, status model.AmbulanceStatus) error {
	return t.store.Ambulances.SetStatusTx(ctx, t.tx, id, status)
}

func (t *sqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	return t.store.Bookings.CreateTx(ctx, t.tx, b)
}

func (t *sqlTx) ActiveBookingForPatient(ctx context.Context, patientID uint64) (model.Booking, error) {
	return t.store.Bookings.ActiveForPatientTx(ctx, t.tx, patientID)
}

func (t *sqlTx) GetBookingParties(ctx context.Context, id uint64, forUpdate bool) (model.BookingParties, error) {
	return t.store.Bookings.GetPartiesTx(ctx, t.tx, id, forUpdate)
}

func (t *sqlTx) UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus) (bool, error) {
	return t.store.Bookings.UpdateStatusTx(ctx, t.tx, id, from, to)
}

func (t *sqlTx) ListBookingsByAmbulance(ctx context.Context, ambulanceID uint64, status model.BookingStatus) ([]model.Booking, error) {
	return t.store.Bookings.ListByAmbulanceTx(ctx, t.tx, ambulanceID, status)
}
