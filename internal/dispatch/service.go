// Package dispatch implements the booking lifecycle between patients and
// ambulance drivers: browsing available ambulances, creating bookings,
// the driver's confirm/reject/complete decisions, driver location reports
// and the live map view of a confirmed booking.
//
// Every operation that reads state in order to decide on a write does both
// inside one store transaction, so concurrent requests cannot interleave
// between the check and the write.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/metrics"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
	"github.com/iliyamo/ambulance-dispatch/internal/queue"
	"github.com/iliyamo/ambulance-dispatch/internal/repository"
)

// Publisher delivers booking events to the broker.
type Publisher interface {
	PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uint64
	Role model.Role
}

// Service runs the dispatch operations against a Store.
type Service struct {
	store   repository.Store
	events  Publisher
	log     *zap.Logger
	now     func() time.Time
	publish time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService builds a Service.  events may be nil, in which case no booking
// events are published.
func NewService(store repository.Store, events Publisher, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:   store,
		events:  events,
		log:     log.Named("dispatch"),
		now:     func() time.Time { return time.Now().UTC() },
		publish: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListAvailable returns the active ambulances with their drivers' last
// known positions.  Only patients may browse, and a patient holding a
// pending or confirmed booking is refused with ErrConflict; such callers
// should read ActiveBooking instead.
func (s *Service) ListAvailable(ctx context.Context, actor Actor) ([]model.AmbulanceListing, error) {
	if actor.Role != model.RolePatient {
		return nil, fmt.Errorf("%w: only patients can browse ambulances", apperr.ErrForbidden)
	}
	var out []model.AmbulanceListing
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		active, err := activeBooking(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: booking %d is %s", apperr.ErrConflict, active.ID, active.Status)
		}
		out, err = tx.ListAmbulances(ctx, model.AmbulanceActive)
		return err
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return out, nil
}

// ActiveBooking returns the patient's pending or confirmed booking, or nil.
func (s *Service) ActiveBooking(ctx context.Context, patientID uint64) (*model.Booking, error) {
	var out *model.Booking
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = activeBooking(ctx, tx, patientID)
		return err
	})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return out, nil
}

func activeBooking(ctx context.Context, tx repository.Tx, patientID uint64) (*model.Booking, error) {
	b, err := tx.ActiveBookingForPatient(ctx, patientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBooking books ambulanceID for the patient at the given position.
// Both coordinates are required; zero is a valid value.  The patient row is
// locked while the active-booking check and the insert run, and the
// storage unique key rejects any insert that still races through.
func (s *Service) CreateBooking(ctx context.Context, patientID, ambulanceID uint64, lat, lng *float64) (model.Booking, error) {
	pos, err := model.NewCoordinates(lat, lng)
	if err != nil {
		return model.Booking{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	var (
		booking  model.Booking
		driverID uint64
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		patient, err := tx.LockUser(ctx, patientID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: patient %d", apperr.ErrNotFound, patientID)
		}
		if err != nil {
			return err
		}
		if patient.Role != model.RolePatient {
			return fmt.Errorf("%w: only patients can book an ambulance", apperr.ErrForbidden)
		}

		amb, err := tx.GetAmbulance(ctx, ambulanceID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: ambulance %d", apperr.ErrNotFound, ambulanceID)
		}
		if err != nil {
			return err
		}
		if amb.Status != model.AmbulanceActive {
			return fmt.Errorf("%w: ambulance %d is not accepting bookings", apperr.ErrState, ambulanceID)
		}
		driverID = amb.DriverID

		active, err := activeBooking(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: patient already has booking %d (%s)", apperr.ErrConflict, active.ID, active.Status)
		}

		booking = model.Booking{
			PatientID:   patientID,
			AmbulanceID: ambulanceID,
			Status:      model.BookingPending,
			PatientLat:  pos.Lat,
			PatientLng:  pos.Lng,
		}
		if err := tx.CreateBooking(ctx, &booking); err != nil {
			if errors.Is(err, repository.ErrActiveBookingExists) {
				return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.BookingConflicts.Inc()
		}
		return model.Booking{}, apperr.Classify(err)
	}

	metrics.BookingsCreated.Inc()
	s.log.Info("booking created",
		zap.Uint64("booking_id", booking.ID),
		zap.Uint64("patient_id", patientID),
		zap.Uint64("ambulance_id", ambulanceID))
	s.emit(booking, driverID)
	return booking, nil
}

// ConfirmBooking accepts a pending booking on behalf of the driver that
// owns its ambulance.
func (s *Service) ConfirmBooking(ctx context.Context, driverID, bookingID uint64) (model.Booking, error) {
	return s.transition(ctx, driverID, bookingID, model.BookingPending, model.BookingConfirmed)
}

// RejectBooking declines a pending booking.  Rejection is terminal and
// frees the patient to book again.
func (s *Service) RejectBooking(ctx context.Context, driverID, bookingID uint64) (model.Booking, error) {
	return s.transition(ctx, driverID, bookingID, model.BookingPending, model.BookingRejected)
}

// CompleteBooking closes a confirmed booking once the trip is over.
func (s *Service) CompleteBooking(ctx context.Context, driverID, bookingID uint64) (model.Booking, error) {
	return s.transition(ctx, driverID, bookingID, model.BookingConfirmed, model.BookingCompleted)
}

func (s *Service) transition(ctx context.Context, driverID, bookingID uint64, from, to model.BookingStatus) (model.Booking, error) {
	var booking model.Booking
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetBookingParties(ctx, bookingID, true)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: booking %d", apperr.ErrNotFound, bookingID)
		}
		if err != nil {
			return err
		}
		if p.DriverID == 0 || p.DriverID != driverID {
			return fmt.Errorf("%w: booking %d belongs to another ambulance", apperr.ErrForbidden, bookingID)
		}
		if p.Status != from || !from.CanTransitionTo(to) {
			return fmt.Errorf("%w: booking %d is %s", apperr.ErrState, bookingID, p.Status)
		}
		ok, err := tx.UpdateBookingStatus(ctx, bookingID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: booking %d is no longer %s", apperr.ErrState, bookingID, from)
		}
		booking = p.Booking
		booking.Status = to
		booking.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return model.Booking{}, apperr.Classify(err)
	}

	metrics.BookingTransitions.WithLabelValues(string(to)).Inc()
	s.log.Info("booking status changed",
		zap.Uint64("booking_id", bookingID),
		zap.Uint64("driver_id", driverID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	s.emit(booking, driverID)
	return booking, nil
}

// PendingRequests returns the driver's ambulance and the bookings on it
// still awaiting a decision, oldest first.
func (s *Service) PendingRequests(ctx context.Context, driverID uint64) (model.Ambulance, []model.Booking, error) {
	var (
		amb  model.Ambulance
		reqs []model.Booking
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		amb, err = tx.GetAmbulanceByDriver(ctx, driverID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no ambulance assigned to driver %d", apperr.ErrNotFound, driverID)
		}
		if err != nil {
			return err
		}
		reqs, err = tx.ListBookingsByAmbulance(ctx, amb.ID, model.BookingPending)
		return err
	})
	if err != nil {
		return model.Ambulance{}, nil, apperr.Classify(err)
	}
	return amb, reqs, nil
}

// SetAmbulanceStatus lets a driver take their ambulance off or back onto
// the list patients browse.  Existing bookings are unaffected.
func (s *Service) SetAmbulanceStatus(ctx context.Context, driverID uint64, status model.AmbulanceStatus) (model.Ambulance, error) {
	if !status.IsValid() {
		return model.Ambulance{}, fmt.Errorf("%w: unknown ambulance status %q", apperr.ErrValidation, status)
	}
	var amb model.Ambulance
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		amb, err = tx.GetAmbulanceByDriver(ctx, driverID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no ambulance assigned to driver %d", apperr.ErrNotFound, driverID)
		}
		if err != nil {
			return err
		}
		if err := tx.SetAmbulanceStatus(ctx, amb.ID, status); err != nil {
			return err
		}
		amb.Status = status
		return nil
	})
	if err != nil {
		return model.Ambulance{}, apperr.Classify(err)
	}
	return amb, nil
}

// UpdateDriverLocation records the driver's current position.  Concurrent
// updates are last-write-wins.
func (s *Service) UpdateDriverLocation(ctx context.Context, driverID uint64, lat, lng *float64) error {
	pos, err := model.NewCoordinates(lat, lng)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUserByID(ctx, driverID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %d", apperr.ErrNotFound, driverID)
		}
		if err != nil {
			return err
		}
		if u.Role != model.RoleDriver {
			return fmt.Errorf("%w: only drivers report a location", apperr.ErrForbidden)
		}
		return tx.UpdateUserLocation(ctx, driverID, pos, s.now())
	})
	if err != nil {
		return apperr.Classify(err)
	}
	metrics.LocationUpdates.Inc()
	return nil
}

// GetLiveView returns the positions shown on the map of a confirmed
// booking.  Only the booking's patient and the driver owning its
// ambulance may look; Driver is nil until the driver reports a location.
func (s *Service) GetLiveView(ctx context.Context, actor Actor, bookingID uint64) (model.LiveView, error) {
	var view model.LiveView
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetBookingParties(ctx, bookingID, false)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: booking %d", apperr.ErrNotFound, bookingID)
		}
		if err != nil {
			return err
		}
		isPatient := actor.Role == model.RolePatient && p.PatientID == actor.ID
		isDriver := actor.Role == model.RoleDriver && p.DriverID != 0 && p.DriverID == actor.ID
		if !isPatient && !isDriver {
			return fmt.Errorf("%w: not a party to booking %d", apperr.ErrForbidden, bookingID)
		}
		if p.Status != model.BookingConfirmed {
			return fmt.Errorf("%w: booking %d is %s", apperr.ErrState, bookingID, p.Status)
		}

		view = model.LiveView{
			BookingID:  p.ID,
			Status:     p.Status,
			PatientLat: p.PatientLat,
			PatientLng: p.PatientLng,
		}
		if p.DriverID == 0 {
			return nil
		}
		driver, err := tx.GetUserByID(ctx, p.DriverID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		view.Driver = driver.Location
		view.DriverUpdatedAt = driver.LocationUpdatedAt
		return nil
	})
	if err != nil {
		return model.LiveView{}, apperr.Classify(err)
	}
	return view, nil
}

// emit publishes the booking's new state in the background.  Broker
// failures are logged and never reach the caller.
func (s *Service) emit(b model.Booking, driverID uint64) {
	if s.events == nil {
		return
	}
	ev := queue.BookingEvent{
		BookingID:   b.ID,
		PatientID:   b.PatientID,
		AmbulanceID: b.AmbulanceID,
		DriverID:    driverID,
		Status:      string(b.Status),
		PatientLat:  b.PatientLat,
		PatientLng:  b.PatientLng,
		OccurredAt:  s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.publish)
		defer cancel()
		if err := s.events.PublishBookingEvent(ctx, ev); err != nil {
			s.log.Warn("publish booking event failed",
				zap.Uint64("booking_id", ev.BookingID),
				zap.String("status", ev.Status),
				zap.Error(err))
		}
	}()
}
