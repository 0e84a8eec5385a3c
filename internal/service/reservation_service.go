package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/internal/availability"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/export"
	"staybook/internal/lifecycle"
	"staybook/internal/metrics"
	"staybook/internal/models"
	"staybook/internal/pricing"

	"github.com/rs/zerolog"
)

const (
	maxLockBackoff  = 200 * time.Millisecond
	initLockBackoff = 10 * time.Millisecond
)

type ReservationService struct {
	store    domain.Store
	locks    domain.LockStore
	eventBus domain.EventPublisher
	exporter *export.Exporter
	clock    domain.Clock
	machine  *lifecycle.Machine
	pricing  pricing.Calculator
	opts     Options
	logger   *zerolog.Logger
}

// NewReservationService wires the engine. locks, eventBus and exporter may be nil.
func NewReservationService(
	store domain.Store,
	locks domain.LockStore,
	eventBus domain.EventPublisher,
	exporter *export.Exporter,
	opts Options,
	logger *zerolog.Logger,
) *ReservationService {
	opts = opts.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if exporter == nil {
		exporter = export.NewExporter("", logger)
	}
	return &ReservationService{
		store:    store,
		locks:    locks,
		eventBus: eventBus,
		exporter: exporter,
		clock:    SystemClock{},
		machine:  lifecycle.NewMachine(opts.CancellationCutoffDays),
		pricing:  pricing.NewCalculator(opts.FeeRate),
		opts:     opts,
		logger:   logger,
	}
}

// WithClock replaces the clock; tests pin "today" with it.
func (s *ReservationService) WithClock(c domain.Clock) *ReservationService {
	s.clock = c
	return s
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CancellationCutoffDays < 0 {
		o.CancellationCutoffDays = d.CancellationCutoffDays
	}
	if o.FeeRate < 0 {
		o.FeeRate = d.FeeRate
	}
	if o.AvailabilityHorizonDays <= 0 {
		o.AvailabilityHorizonDays = d.AvailabilityHorizonDays
	}
	if o.MaxNights <= 0 {
		o.MaxNights = d.MaxNights
	}
	if o.MaxAdvanceDays <= 0 {
		o.MaxAdvanceDays = d.MaxAdvanceDays
	}
	if o.RateWindow <= 0 {
		o.RateWindow = d.RateWindow
	}
	if o.LockTTL <= 0 {
		o.LockTTL = d.LockTTL
	}
	if o.LockWait <= 0 {
		o.LockWait = d.LockWait
	}
	return o
}

func (s *ReservationService) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Reservation, error) {
	r, err := s.validateRequest(req)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	if err := s.checkRateLimit(ctx, req.UserID); err != nil {
		s.reject(err)
		return nil, err
	}

	release, err := s.lockProperty(ctx, req.PropertyID)
	if err != nil {
		s.reject(err)
		return nil, err
	}
	defer release()

	started := time.Now()
	var res *models.Reservation
	err = s.store.WithinPropertyTx(ctx, req.PropertyID, func(tx domain.Tx) error {
		p, err := tx.GetProperty(ctx, req.PropertyID)
		if err != nil {
			return err
		}
		if req.Guests > p.MaxGuests {
			return fmt.Errorf("%w: %d guests, property allows %d", domain.ErrGuestLimitExceeded, req.Guests, p.MaxGuests)
		}

		overlapping, err := tx.CountOverlapping(ctx, p.ID, r, 0)
		if err != nil {
			return err
		}
		if overlapping >= p.Units() {
			return &domain.FullyBookedError{Remaining: availability.Remaining(p.Units(), overlapping)}
		}

		price := s.pricing.ComputeRange(r, p.PricePerNight)
		b := &models.Booking{
			PropertyID: p.ID,
			UserID:     req.UserID,
			CheckIn:    r.Start,
			CheckOut:   r.End,
			Guests:     req.Guests,
			Nights:     price.Nights,
			TotalPrice: price.Total,
			Status:     models.StatusConfirmed,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}

		cal := availability.New(p.Availability...)
		cal.Subtract(r)
		p.Availability = cal.Windows()
		if err := tx.SaveAvailability(ctx, p); err != nil {
			return err
		}

		if err := s.enqueueLedger(ctx, tx, b); err != nil {
			return err
		}

		res = &models.Reservation{Booking: b, Price: price}
		return nil
	})
	metrics.ObserveAdmission(time.Since(started))
	if err != nil {
		s.reject(err)
		return nil, err
	}

	metrics.IncBookingCreated(fmt.Sprintf("%d", req.PropertyID))
	s.logger.Info().
		Int64("booking_id", res.Booking.ID).
		Int64("property_id", req.PropertyID).
		Int64("user_id", req.UserID).
		Str("range", r.String()).
		Int64("total", res.Price.Total).
		Msg("booking created")
	s.publishEvent(events.EventBookingCreated, res.Booking, "", "guest")

	return res, nil
}

// CancelBooking is the guest self-service cancel, subject to the cutoff policy.
func (s *ReservationService) CancelBooking(ctx context.Context, bookingID, actingUserID int64) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.StatusCancelled, lifecycle.ActorGuest, actingUserID,
		func(b *models.Booking, _ *models.Property) error {
			if b.UserID != actingUserID {
				return fmt.Errorf("%w: booking %d belongs to another guest", domain.ErrForbidden, b.ID)
			}
			return nil
		})
}

// UpdateStatus is the host override. It skips the cancellation policy but
// still follows the transition table.
func (s *ReservationService) UpdateStatus(ctx context.Context, bookingID int64, target models.BookingStatus, actorID int64) (*models.Booking, error) {
	return s.transition(ctx, bookingID, target, lifecycle.ActorHost, actorID, requireHost(actorID))
}

// CompleteBooking marks a confirmed stay as completed.
func (s *ReservationService) CompleteBooking(ctx context.Context, bookingID, hostID int64) (*models.Booking, error) {
	hostCheck := requireHost(hostID)
	return s.transition(ctx, bookingID, models.StatusCompleted, lifecycle.ActorHost, hostID,
		func(b *models.Booking, p *models.Property) error {
			if err := hostCheck(b, p); err != nil {
				return err
			}
			if b.Status != models.StatusConfirmed {
				return fmt.Errorf("%w: only confirmed bookings can be completed, booking %d is %s",
					domain.ErrInvalidTransition, b.ID, b.Status)
			}
			return nil
		})
}

func requireHost(actorID int64) func(*models.Booking, *models.Property) error {
	return func(_ *models.Booking, p *models.Property) error {
		if p.HostID != actorID {
			return fmt.Errorf("%w: user %d is not the host of property %d", domain.ErrForbidden, actorID, p.ID)
		}
		return nil
	}
}

func (s *ReservationService) transition(
	ctx context.Context,
	bookingID int64,
	target models.BookingStatus,
	actor lifecycle.Actor,
	actorID int64,
	authorize func(*models.Booking, *models.Property) error,
) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	propertyID := current.PropertyID

	release, err := s.lockProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	var (
		updated  *models.Booking
		decision lifecycle.Decision
	)
	err = s.store.WithinPropertyTx(ctx, propertyID, func(tx domain.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		p, err := tx.GetProperty(ctx, b.PropertyID)
		if err != nil {
			return err
		}
		if err := authorize(b, p); err != nil {
			return err
		}

		decision, err = s.machine.Transition(b, target, actor, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateBookingStatus(ctx, b, decision.To); err != nil {
			return err
		}

		if decision.Effect == lifecycle.EffectRestore {
			cal := availability.New(p.Availability...)
			cal.Restore(b.Range())
			p.Availability = cal.Windows()
			if err := tx.SaveAvailability(ctx, p); err != nil {
				return err
			}
		}

		if err := s.enqueueLedger(ctx, tx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("booking_id", bookingID).
			Str("target", string(target)).
			Str("actor", string(actor)).
			Msg("status change rejected")
		return nil, err
	}

	metrics.IncTransition(string(decision.From), string(decision.To), string(actor))
	s.logger.Info().
		Int64("booking_id", updated.ID).
		Str("from", string(decision.From)).
		Str("to", string(decision.To)).
		Str("actor", string(actor)).
		Int64("actor_id", actorID).
		Bool("restored", decision.Effect == lifecycle.EffectRestore).
		Msg("booking status changed")
	s.publishEvent(eventTypeFor(decision.To), updated, decision.From, string(actor))

	return updated, nil
}

// Quote validates and prices a stay without reserving anything.
func (s *ReservationService) Quote(ctx context.Context, req models.BookingRequest) (*models.PriceBreakdown, error) {
	r, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if req.Guests > p.MaxGuests {
		return nil, fmt.Errorf("%w: %d guests, property allows %d", domain.ErrGuestLimitExceeded, req.Guests, p.MaxGuests)
	}
	price := s.pricing.ComputeRange(r, p.PricePerNight)
	return &price, nil
}

func (s *ReservationService) GetAvailability(ctx context.Context, propertyID int64) (*models.Property, error) {
	return s.store.GetProperty(ctx, propertyID)
}

func (s *ReservationService) ListProperties(ctx context.Context) ([]*models.Property, error) {
	return s.store.ListProperties(ctx)
}

func (s *ReservationService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *ReservationService) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.store.ListBookingsByUser(ctx, userID)
}

func (s *ReservationService) ListPropertyBookings(ctx context.Context, propertyID int64) ([]*models.Booking, error) {
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.store.ListBookingsByProperty(ctx, propertyID)
}

func (s *ReservationService) ExportPropertyBookings(ctx context.Context, propertyID int64) (*models.Report, error) {
	p, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.ListBookingsByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return s.exporter.PropertyBookings(p, bookings, s.clock.Now())
}

// SeedProperties creates the given properties unless they already exist.
// A property without windows opens with [today, today+horizon).
func (s *ReservationService) SeedProperties(ctx context.Context, properties []*models.Property) (int, error) {
	today := models.Day(s.clock.Now())
	created := 0
	for _, p := range properties {
		if p.ID != 0 {
			if _, err := s.store.GetProperty(ctx, p.ID); err == nil {
				continue
			} else if !errors.Is(err, domain.ErrNotFound) {
				return created, err
			}
		}

		if len(p.Availability) == 0 {
			p.Availability = []models.DateRange{
				models.NewDateRange(today, today.AddDate(0, 0, s.opts.AvailabilityHorizonDays)),
			}
		} else {
			p.Availability = availability.New(p.Availability...).Windows()
		}

		if err := s.store.CreateProperty(ctx, p); err != nil {
			return created, fmt.Errorf("seed property %q: %w", p.Name, err)
		}
		created++
	}
	s.logger.Info().Int("created", created).Int("total", len(properties)).Msg("properties seeded")
	return created, nil
}

// validateRequest checks everything that does not need stored state and
// returns the normalized stay.
func (s *ReservationService) validateRequest(req models.BookingRequest) (models.DateRange, error) {
	today := models.Day(s.clock.Now())
	r := models.NewDateRange(req.CheckIn, req.CheckOut)

	if !r.Start.After(today) {
		return r, fmt.Errorf("%w: check-in %s, today %s", domain.ErrPastDate,
			r.Start.Format(models.DateLayout), today.Format(models.DateLayout))
	}
	if !r.Valid() {
		return r, fmt.Errorf("%w: %s", domain.ErrInvalidDateRange, r)
	}
	if r.Nights() > s.opts.MaxNights {
		return r, fmt.Errorf("%w: %d nights exceeds the maximum of %d", domain.ErrInvalidDateRange, r.Nights(), s.opts.MaxNights)
	}
	if r.Start.After(today.AddDate(0, 0, s.opts.MaxAdvanceDays)) {
		return r, fmt.Errorf("%w: bookings open %d days ahead", domain.ErrDateTooFar, s.opts.MaxAdvanceDays)
	}
	if req.Guests < 1 {
		return r, fmt.Errorf("%w: got %d", domain.ErrInvalidGuestCount, req.Guests)
	}
	return r, nil
}

// checkRateLimit fails open when the lock store is unreachable.
func (s *ReservationService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.locks == nil || s.opts.RateLimit <= 0 {
		return nil
	}
	allowed, err := s.locks.CheckRateLimit(ctx, userID, s.opts.RateLimit, s.opts.RateWindow)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// lockProperty takes the cross-instance property lock, retrying until
// LockWait elapses. If the lock store itself fails the storage transaction
// still serializes the unit of work, so the request proceeds unlocked.
func (s *ReservationService) lockProperty(ctx context.Context, propertyID int64) (func(), error) {
	noop := func() {}
	if s.locks == nil {
		return noop, nil
	}

	key := fmt.Sprintf("property:%d", propertyID)
	deadline := time.Now().Add(s.opts.LockWait)
	backoff := initLockBackoff
	for {
		token, err := s.locks.AcquireLock(ctx, key, s.opts.LockTTL)
		if err == nil {
			return func() {
				if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
					s.logger.Warn().Err(err).Str("key", key).Msg("lock release failed")
				}
			}, nil
		}
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			s.logger.Warn().Err(err).Str("key", key).Msg("lock store unavailable")
			return noop, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxLockBackoff {
			backoff = maxLockBackoff
		}
	}
}

// enqueueLedger records the booking for the ledger worker. Without a worker
// nothing would drain the rows, so it is a no-op unless LedgerEnabled is set.
func (s *ReservationService) enqueueLedger(ctx context.Context, tx domain.Tx, b *models.Booking) error {
	if !s.opts.LedgerEnabled {
		return nil
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal ledger payload: %w", err)
	}
	return tx.EnqueueOutbox(ctx, &models.OutboxTask{
		TaskType:  models.OutboxUpsertBooking,
		BookingID: b.ID,
		Payload:   string(payload),
		Status:    models.OutboxPending,
	})
}

func (s *ReservationService) publishEvent(eventType string, b *models.Booking, prev models.BookingStatus, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		UserID:     b.UserID,
		CheckIn:    b.CheckIn.Format(models.DateLayout),
		CheckOut:   b.CheckOut.Format(models.DateLayout),
		Guests:     b.Guests,
		TotalPrice: b.TotalPrice,
		Status:     string(b.Status),
		PrevStatus: string(prev),
		ChangedBy:  changedBy,
		OccurredAt: s.clock.Now(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func eventTypeFor(status models.BookingStatus) string {
	switch status {
	case models.StatusCancelled:
		return events.EventBookingCancelled
	case models.StatusCompleted:
		return events.EventBookingCompleted
	default:
		return events.EventBookingStatusChanged
	}
}

// reject records the reason a booking attempt failed.
func (s *ReservationService) reject(err error) {
	reason := rejectionReason(err)
	metrics.IncBookingRejected(reason)
	s.logger.Debug().Err(err).Str("reason", reason).Msg("booking rejected")
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrFullyBooked):
		return "fully_booked"
	case errors.Is(err, domain.ErrPastDate):
		return "past_date"
	case errors.Is(err, domain.ErrInvalidDateRange):
		return "invalid_range"
	case errors.Is(err, domain.ErrDateTooFar):
		return "too_far"
	case errors.Is(err, domain.ErrGuestLimitExceeded), errors.Is(err, domain.ErrInvalidGuestCount):
		return "guests"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrLockNotAcquired):
		return "lock_timeout"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

var _ domain.ReservationService = (*ReservationService)(nil)
