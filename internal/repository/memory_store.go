package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// MemoryStore is an in-process Store used for tests and for running the
// service without MySQL (STORE_DRIVER=memory).  Transactions are fully
// serialised by a mutex; a transaction works on a copy of the state which
// replaces the live state only when fn succeeds.  It enforces the same
// unique keys as the SQL schema.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time

	tokMu  sync.Mutex
	tokens map[string]memToken
}

type memState struct {
	nextUser, nextAmbulance, nextBooking uint64

	users      map[uint64]model.User
	ambulances map[uint64]model.Ambulance
	bookings   map[uint64]model.Booking
}

type memToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			users:      map[uint64]model.User{},
			ambulances: map[uint64]model.Ambulance{},
			bookings:   map[uint64]model.Booking{},
		},
		now:    func() time.Time { return time.Now().UTC() },
		tokens: map[string]memToken{},
	}
}

func (s memState) clone() memState {
	c := s
	c.users = make(map[uint64]model.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.ambulances = make(map[uint64]model.Ambulance, len(s.ambulances))
	for k, v := range s.ambulances {
		c.ambulances[k] = v
	}
	c.bookings = make(map[uint64]model.Booking, len(s.bookings))
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

// InTx runs fn against a snapshot and publishes it when fn returns nil.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: m.state.clone(), now: m.now}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

type memTx struct {
	state memState
	now   func() time.Time
}

func (t *memTx) CreateUser(_ context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range t.state.users {
		if other.Username == u.Username {
			return ErrUsernameExists
		}
		if other.Email == u.Email {
			return ErrEmailExists
		}
	}
	t.state.nextUser++
	now := t.now()
	u.ID = t.state.nextUser
	u.CreatedAt, u.UpdatedAt = now, now
	t.state.users[u.ID] = *u
	return nil
}

func (t *memTx) GetUserByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range t.state.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (t *memTx) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	username = strings.TrimSpace(username)
	for _, u := range t.state.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

// LockUser is a plain read; the store-wide mutex already serialises transactions.
func (t *memTx) LockUser(ctx context.Context, id uint64) (model.User, error) {
	return t.GetUserByID(ctx, id)
}

func (t *memTx) UpdateUserLocation(_ context.Context, id uint64, c model.Coordinates, at time.Time) error {
	u, ok := t.state.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	loc := c
	ts := at.UTC()
	u.Location = &loc
	u.LocationUpdatedAt = &ts
	u.UpdatedAt = t.now()
	t.state.users[id] = u
	return nil
}

func (t *memTx) CreateAmbulance(_ context.Context, a *model.Ambulance) error {
	for _, other := range t.state.ambulances {
		if a.DriverID != 0 && other.DriverID == a.DriverID {
			return ErrDriverHasAmbulance
		}
	}
	if a.Status == "" {
		a.Status = model.AmbulanceActive
	}
	t.state.nextAmbulance++
	now := t.now()
	a.ID = t.state.nextAmbulance
	a.CreatedAt, a.UpdatedAt = now, now
	t.state.ambulances[a.ID] = *a
	return nil
}

func (t *memTx) GetAmbulance(_ context.Context, id uint64) (model.Ambulance, error) {
	a, ok := t.state.ambulances[id]
	if !ok {
		return model.Ambulance{}, sql.ErrNoRows
	}
	return a, nil
}

func (t *memTx) GetAmbulanceByDriver(_ context.Context, driverID uint64) (model.Ambulance, error) {
	for _, a := range t.state.ambulances {
		if a.DriverID == driverID {
			return a, nil
		}
	}
	return model.Ambulance{}, sql.ErrNoRows
}

func (t *memTx) ListAmbulances(_ context.Context, status model.AmbulanceStatus) ([]model.AmbulanceListing, error) {
	var out []model.AmbulanceListing
	for _, a := range t.state.ambulances {
		if a.Status != status {
			continue
		}
		d, ok := t.state.users[a.DriverID]
		if !ok {
			continue
		}
		out = append(out, model.AmbulanceListing{
			ID:                a.ID,
			Status:            a.Status,
			DriverID:          d.ID,
			DriverUsername:    d.Username,
			Location:          d.Location,
			LocationUpdatedAt: d.LocationUpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SetAmbulanceStatus(_ context.Context, id uint64, status model.AmbulanceStatus) error {
	a, ok := t.state.ambulances[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Status = status
	a.UpdatedAt = t.now()
	t.state.ambulances[id] = a
	return nil
}

func (t *memTx) CreateBooking(_ context.Context, b *model.Booking) error {
	if b.Status.IsActive() && t.hasActive(b.PatientID, 0) {
		return ErrActiveBookingExists
	}
	t.state.nextBooking++
	now := t.now()
	b.ID = t.state.nextBooking
	b.CreatedAt, b.UpdatedAt = now, now
	t.state.bookings[b.ID] = *b
	return nil
}

// hasActive mirrors the unique index on bookings.active_patient_id.
func (t *memTx) hasActive(patientID, except uint64) bool {
	for id, b := range t.state.bookings {
		if id != except && b.PatientID == patientID && b.Status.IsActive() {
			return true
		}
	}
	return false
}

func (t *memTx) ActiveBookingForPatient(_ context.Context, patientID uint64) (model.Booking, error) {
	var (
		found model.Booking
		ok    bool
	)
	for _, b := range t.state.bookings {
		if b.PatientID == patientID && b.Status.IsActive() && (!ok || b.ID > found.ID) {
			found, ok = b, true
		}
	}
	if !ok {
		return model.Booking{}, sql.ErrNoRows
	}
	return found, nil
}

func (t *memTx) GetBookingParties(_ context.Context, id uint64, _ bool) (model.BookingParties, error) {
	b, ok := t.state.bookings[id]
	if !ok {
		return model.BookingParties{}, sql.ErrNoRows
	}
	a, ok := t.state.ambulances[b.AmbulanceID]
	if !ok {
		return model.BookingParties{}, sql.ErrNoRows
	}
	return model.BookingParties{Booking: b, DriverID: a.DriverID}, nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, id uint64, from, to model.BookingStatus) (bool, error) {
	b, ok := t.state.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	if to.IsActive() && !from.IsActive() && t.hasActive(b.PatientID, id) {
		return false, ErrActiveBookingExists
	}
	b.Status = to
	b.UpdatedAt = t.now()
	t.state.bookings[id] = b
	return true, nil
}

func (t *memTx) ListBookingsByAmbulance(_ context.Context, ambulanceID uint64, status model.BookingStatus) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.state.bookings {
		if b.AmbulanceID == ambulanceID && b.Status == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DetachDriver clears an ambulance's driver, the state MySQL leaves
// behind when the driver row is deleted (ON DELETE SET NULL).
func (m *MemoryStore) DetachDriver(ambulanceID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.state.ambulances[ambulanceID]; ok {
		a.DriverID = 0
		m.state.ambulances[ambulanceID] = a
	}
}

// StoreRefresh implements TokenStore.
func (m *MemoryStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()
	m.tokens[tokenHash] = memToken{userID: userID, exp: exp.UTC()}
	return nil
}

// ValidateRefresh implements TokenStore.
func (m *MemoryStore) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()
	tok, ok := m.tokens[tokenHash]
	if !ok || tok.revoked || !m.now().Before(tok.exp) {
		return 0, sql.ErrNoRows
	}
	return tok.userID, nil
}

// RevokeByHash implements TokenStore.
func (m *MemoryStore) RevokeByHash(_ context.Context, tokenHash string) error {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()
	if tok, ok := m.tokens[tokenHash]; ok {
		tok.revoked = true
		m.tokens[tokenHash] = tok
	}
	return nil
}

// RevokeAllForUser implements TokenStore.
func (m *MemoryStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()
	for h, tok := range m.tokens {
		if tok.userID == userID {
			tok.revoked = true
			m.tokens[h] = tok
		}
	}
	return nil
}
