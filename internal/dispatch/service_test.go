package dispatch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
	"github.com/iliyamo/ambulance-dispatch/internal/queue"
	"github.com/iliyamo/ambulance-dispatch/internal/repository"
)

type fixture struct {
	store *repository.MemoryStore
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	return &fixture{store: store, svc: NewService(store, nil, zap.NewNop())}
}

func (f *fixture) patient(t *testing.T, name string) Actor {
	t.Helper()
	var id uint64
	require.NoError(t, f.store.InTx(context.Background(), func(tx repository.Tx) error {
		u := &model.User{Username: name, Email: name + "@example.com", Role: model.RolePatient}
		err := tx.CreateUser(context.Background(), u)
		id = u.ID
		return err
	}))
	return Actor{ID: id, Role: model.RolePatient}
}

// driver creates a driver together with their ambulance.
func (f *fixture) driver(t *testing.T, name string) (Actor, uint64) {
	t.Helper()
	var uid, aid uint64
	require.NoError(t, f.store.InTx(context.Background(), func(tx repository.Tx) error {
		ctx := context.Background()
		u := &model.User{Username: name, Email: name + "@example.com", Role: model.RoleDriver}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		a := &model.Ambulance{DriverID: u.ID, Status: model.AmbulanceActive}
		if err := tx.CreateAmbulance(ctx, a); err != nil {
			return err
		}
		uid, aid = u.ID, a.ID
		return nil
	}))
	return Actor{ID: uid, Role: model.RoleDriver}, aid
}

func ptr(v float64) *float64 { return &v }

func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	d, a1 := f.driver(t, "dan")

	list, err := f.svc.ListAvailable(ctx, p)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a1, list[0].ID)
	assert.Equal(t, "dan", list[0].DriverUsername)
	assert.Nil(t, list[0].Location)

	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(12.9), ptr(77.6))
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.NotZero(t, b.ID)

	_, err = f.svc.ListAvailable(ctx, p)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	active, err := f.svc.ActiveBooking(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, b.ID, active.ID)

	_, err = f.svc.GetLiveView(ctx, p, b.ID)
	assert.ErrorIs(t, err, apperr.ErrState, "no live view while pending")

	confirmed, err := f.svc.ConfirmBooking(ctx, d.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)

	view, err := f.svc.GetLiveView(ctx, p, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.9, view.PatientLat)
	assert.Equal(t, 77.6, view.PatientLng)
	assert.Nil(t, view.Driver, "driver position unknown until reported")

	require.NoError(t, f.svc.UpdateDriverLocation(ctx, d.ID, ptr(12.95), ptr(77.58)))
	view, err = f.svc.GetLiveView(ctx, d, b.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Driver)
	assert.Equal(t, model.Coordinates{Lat: 12.95, Lng: 77.58}, *view.Driver)
	assert.NotNil(t, view.DriverUpdatedAt)

	_, err = f.svc.ConfirmBooking(ctx, d.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrState, "second confirm")

	_, err = f.svc.CompleteBooking(ctx, d.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.GetLiveView(ctx, p, b.ID)
	assert.ErrorIs(t, err, apperr.ErrState, "no live view once completed")

	list, err = f.svc.ListAvailable(ctx, p)
	require.NoError(t, err, "completed booking no longer blocks the patient")
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Location)
}

func TestRejectIsTerminalAndFreesPatient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	d, a1 := f.driver(t, "dan")

	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(2))
	require.NoError(t, err)

	rejected, err := f.svc.RejectBooking(ctx, d.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingRejected, rejected.Status)

	_, err = f.svc.ConfirmBooking(ctx, d.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrState)
	_, err = f.svc.RejectBooking(ctx, d.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrState)
	_, err = f.svc.CompleteBooking(ctx, d.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrState)

	_, err = f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(2))
	assert.NoError(t, err)
}

func TestCreateBookingValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	d, a1 := f.driver(t, "dan")

	_, err := f.svc.CreateBooking(ctx, p.ID, a1, nil, ptr(77.6))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreateBooking(ctx, p.ID, a1, ptr(12.9), nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreateBooking(ctx, p.ID, a1, ptr(120), ptr(77.6))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreateBooking(ctx, p.ID, a1, ptr(math.NaN()), ptr(math.NaN()))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateBooking(ctx, p.ID, 999, ptr(12.9), ptr(77.6))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateBooking(ctx, d.ID, a1, ptr(12.9), ptr(77.6))
	assert.ErrorIs(t, err, apperr.ErrForbidden, "drivers cannot book")

	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(0), ptr(0))
	require.NoError(t, err, "0,0 is a real position")
	assert.Equal(t, 0.0, b.PatientLat)

	_, err = f.svc.CreateBooking(ctx, p.ID, a1, ptr(12.9), ptr(77.6))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateBookingInactiveAmbulance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	d, a1 := f.driver(t, "dan")

	amb, err := f.svc.SetAmbulanceStatus(ctx, d.ID, model.AmbulanceInactive)
	require.NoError(t, err)
	assert.Equal(t, model.AmbulanceInactive, amb.Status)

	list, err := f.svc.ListAvailable(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(1))
	assert.ErrorIs(t, err, apperr.ErrState)

	_, err = f.svc.SetAmbulanceStatus(ctx, d.ID, "parked")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTransitionAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	_, a1 := f.driver(t, "dan")
	other, _ := f.driver(t, "olga")

	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(1))
	require.NoError(t, err)

	_, err = f.svc.ConfirmBooking(ctx, other.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.RejectBooking(ctx, other.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ConfirmBooking(ctx, other.ID, 4242)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.store.DetachDriver(a1)
	_, err = f.svc.ConfirmBooking(ctx, other.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "ambulance without a driver")
}

func TestLiveViewAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	stranger := f.patient(t, "sam")
	d, a1 := f.driver(t, "dan")
	other, _ := f.driver(t, "olga")

	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(1))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, d.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.GetLiveView(ctx, stranger, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.GetLiveView(ctx, other, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.GetLiveView(ctx, Actor{ID: p.ID, Role: model.RoleDriver}, b.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "role must match the party")
	_, err = f.svc.GetLiveView(ctx, p, 777)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateDriverLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	d, _ := f.driver(t, "dan")

	assert.ErrorIs(t, f.svc.UpdateDriverLocation(ctx, d.ID, ptr(1), nil), apperr.ErrValidation)
	assert.ErrorIs(t, f.svc.UpdateDriverLocation(ctx, d.ID, ptr(math.NaN()), ptr(2)), apperr.ErrValidation)
	assert.ErrorIs(t, f.svc.UpdateDriverLocation(ctx, d.ID, ptr(1), ptr(math.Inf(1))), apperr.ErrValidation)
	assert.ErrorIs(t, f.svc.UpdateDriverLocation(ctx, p.ID, ptr(1), ptr(2)), apperr.ErrForbidden)
	assert.ErrorIs(t, f.svc.UpdateDriverLocation(ctx, 999, ptr(1), ptr(2)), apperr.ErrNotFound)

	require.NoError(t, f.svc.UpdateDriverLocation(ctx, d.ID, ptr(1), ptr(2)))
	require.NoError(t, f.svc.UpdateDriverLocation(ctx, d.ID, ptr(3), ptr(4)))

	list, err := f.svc.ListAvailable(ctx, p)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, &model.Coordinates{Lat: 3, Lng: 4}, list[0].Location, "last write wins")
}

func TestPendingRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p1 := f.patient(t, "p1")
	p2 := f.patient(t, "p2")
	p3 := f.patient(t, "p3")
	d, a1 := f.driver(t, "dan")

	b1, err := f.svc.CreateBooking(ctx, p1.ID, a1, ptr(1), ptr(1))
	require.NoError(t, err)
	b2, err := f.svc.CreateBooking(ctx, p2.ID, a1, ptr(2), ptr(2))
	require.NoError(t, err)
	b3, err := f.svc.CreateBooking(ctx, p3.ID, a1, ptr(3), ptr(3))
	require.NoError(t, err)
	_, err = f.svc.RejectBooking(ctx, d.ID, b2.ID)
	require.NoError(t, err)

	amb, reqs, err := f.svc.PendingRequests(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, a1, amb.ID)
	require.Len(t, reqs, 2)
	assert.Equal(t, b1.ID, reqs[0].ID)
	assert.Equal(t, b3.ID, reqs[1].ID)

	_, _, err = f.svc.PendingRequests(ctx, p1.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAvailableRequiresPatient(t *testing.T) {
	f := newFixture(t)
	d, _ := f.driver(t, "dan")
	_, err := f.svc.ListAvailable(context.Background(), d)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestConcurrentCreateBookingAdmitsOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	ambulances := make([]uint64, 8)
	for i := range ambulances {
		_, ambulances[i] = f.driver(t, "driver"+string(rune('a'+i)))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, aid := range ambulances {
		wg.Add(1)
		go func(aid uint64) {
			defer wg.Done()
			_, err := f.svc.CreateBooking(ctx, p.ID, aid, ptr(12.9), ptr(77.6))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(aid)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(ambulances)-1, conflicts)
}

func TestConcurrentConfirmAndRejectAreExclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.patient(t, "pat")
	d, a1 := f.driver(t, "dan")
	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.svc.ConfirmBooking(ctx, d.ID, b.ID) }()
	go func() { defer wg.Done(); _, errs[1] = f.svc.RejectBooking(ctx, d.ID, b.ID) }()
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, apperr.ErrState)
		}
	}
	assert.Equal(t, 1, ok)
}

type recordingPublisher struct {
	events chan queue.BookingEvent
}

func (r *recordingPublisher) PublishBookingEvent(_ context.Context, ev queue.BookingEvent) error {
	r.events <- ev
	return nil
}

func TestBookingEventsPublished(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{events: make(chan queue.BookingEvent, 4)}
	f := &fixture{store: store, svc: NewService(store, pub, zap.NewNop())}
	p := f.patient(t, "pat")
	d, a1 := f.driver(t, "dan")

	b, err := f.svc.CreateBooking(ctx, p.ID, a1, ptr(1), ptr(2))
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, d.ID, b.ID)
	require.NoError(t, err)

	got := map[string]queue.BookingEvent{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-pub.events:
			got[ev.Status] = ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for booking events")
		}
	}
	require.Contains(t, got, "pending")
	require.Contains(t, got, "confirmed")
	assert.Equal(t, b.ID, got["confirmed"].BookingID)
	assert.Equal(t, d.ID, got["confirmed"].DriverID)
}

type brokenStore struct{ err error }

func (b brokenStore) InTx(context.Context, func(repository.Tx) error) error { return b.err }

func TestStorageFailuresAreRetryable(t *testing.T) {
	svc := NewService(brokenStore{err: errors.New("connection refused")}, nil, nil)
	_, err := svc.ConfirmBooking(context.Background(), 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.True(t, apperr.Retryable(err))
}
