package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"staybook/internal/availability"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/events"
	"staybook/internal/models"
	"staybook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rng(start, end string) models.DateRange {
	return models.NewDateRange(day(start), day(end))
}

type fixture struct {
	svc      *ReservationService
	store    *repository.MemoryStore
	locks    *repository.MemoryLockStore
	clock    *stubClock
	bus      *events.EventBus
	received []events.Event
	mu       sync.Mutex
}

const hostID = 500

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		locks: repository.NewMemoryLockStore(),
		clock: &stubClock{t: time.Date(2030, 6, 1, 15, 0, 0, 0, time.UTC)},
		bus:   events.NewEventBus(),
	}
	f.bus.SubscribeAll(func(e *events.Event) error {
		f.mu.Lock()
		f.received = append(f.received, *e)
		f.mu.Unlock()
		return nil
	})
	logger := zerolog.New(io.Discard)
	f.svc = NewReservationService(f.store, f.locks, f.bus, nil, opts, &logger).WithClock(f.clock)
	return f
}

func (f *fixture) property(t *testing.T, units int) *models.Property {
	t.Helper()
	p := &models.Property{
		HostID:        hostID,
		Name:          "Seaside Loft",
		PricePerNight: 25000,
		MaxGuests:     4,
		NumberOfUnits: units,
		Availability:  []models.DateRange{rng("2030-06-01", "2031-06-01")},
	}
	require.NoError(t, f.store.CreateProperty(context.Background(), p))
	return p
}

func (f *fixture) book(t *testing.T, propertyID, userID int64, in, out string) *models.Booking {
	t.Helper()
	res, err := f.svc.CreateBooking(context.Background(), models.BookingRequest{
		PropertyID: propertyID, UserID: userID, CheckIn: day(in), CheckOut: day(out), Guests: 2,
	})
	require.NoError(t, err)
	return res.Booking
}

func (f *fixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, e := range f.received {
		out = append(out, e.Type)
	}
	return out
}

func TestCreateBooking(t *testing.T) {
	opts := DefaultOptions()
	opts.LedgerEnabled = true
	f := newFixture(t, opts)
	p := f.property(t, 1)
	ctx := context.Background()

	res, err := f.svc.CreateBooking(ctx, models.BookingRequest{
		PropertyID: p.ID, UserID: 7,
		CheckIn:  time.Date(2030, 6, 10, 14, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2030, 6, 13, 11, 0, 0, 0, time.UTC),
		Guests:   2,
	})
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.True(t, b.CheckIn.Equal(day("2030-06-10")))
	assert.True(t, b.CheckOut.Equal(day("2030-06-13")))
	assert.Equal(t, models.PriceBreakdown{Nights: 3, PricePerNight: 25000, Subtotal: 75000, Fee: 7500, Total: 82500}, res.Price)
	assert.Equal(t, int64(82500), b.TotalPrice)

	got, err := f.svc.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.DateRange{rng("2030-06-01", "2030-06-10"), rng("2030-06-13", "2031-06-01")}, got.Availability)

	tasks, err := f.store.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.OutboxUpsertBooking, tasks[0].TaskType)
	assert.Equal(t, b.ID, tasks[0].BookingID)

	assert.Equal(t, []string{events.EventBookingCreated}, f.eventTypes())
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t, Options{MaxNights: 30, MaxAdvanceDays: 100})
	p := f.property(t, 1)
	ctx := context.Background()

	cases := []struct {
		name    string
		in, out string
		guests  int
		want    error
	}{
		{"check-in today", "2030-06-01", "2030-06-03", 2, domain.ErrPastDate},
		{"check-in yesterday", "2030-05-31", "2030-06-03", 2, domain.ErrPastDate},
		{"check-out before check-in", "2030-06-10", "2030-06-09", 2, domain.ErrInvalidDateRange},
		{"zero nights", "2030-06-10", "2030-06-10", 2, domain.ErrInvalidDateRange},
		{"too many nights", "2030-06-10", "2030-07-11", 2, domain.ErrInvalidDateRange},
		{"too far ahead", "2030-09-10", "2030-09-12", 2, domain.ErrDateTooFar},
		{"no guests", "2030-06-10", "2030-06-12", 0, domain.ErrInvalidGuestCount},
		{"too many guests", "2030-06-10", "2030-06-12", 5, domain.ErrGuestLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(ctx, models.BookingRequest{
				PropertyID: p.ID, UserID: 1, CheckIn: day(tc.in), CheckOut: day(tc.out), Guests: tc.guests,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// Nothing was written by any rejected attempt.
	all, err := f.svc.ListPropertyBookings(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
	got, _ := f.svc.GetAvailability(ctx, p.ID)
	assert.Equal(t, []models.DateRange{rng("2030-06-01", "2031-06-01")}, got.Availability)

	// Tomorrow is the first bookable day.
	f.book(t, p.ID, 1, "2030-06-02", "2030-06-03")
}

func TestCreateBookingUnknownProperty(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	_, err := f.svc.CreateBooking(context.Background(), models.BookingRequest{
		PropertyID: 42, UserID: 1, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-12"), Guests: 1,
	})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "property", nf.Entity)
}

func TestCreateBookingCapacity(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 2)
	ctx := context.Background()

	f.book(t, p.ID, 1, "2030-06-10", "2030-06-15")
	f.book(t, p.ID, 2, "2030-06-12", "2030-06-14")

	_, err := f.svc.CreateBooking(ctx, models.BookingRequest{
		PropertyID: p.ID, UserID: 3, CheckIn: day("2030-06-13"), CheckOut: day("2030-06-16"), Guests: 1,
	})
	var fb *domain.FullyBookedError
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, 0, fb.Remaining)
	assert.ErrorIs(t, err, domain.ErrFullyBooked)

	// Back-to-back stays share no night.
	f.book(t, p.ID, 3, "2030-06-15", "2030-06-18")
	f.book(t, p.ID, 4, "2030-06-05", "2030-06-10")
}

func TestCreateBookingConcurrentCapacity(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	const units = 3
	p := f.property(t, units)
	assertConcurrentCapacity(t, f.svc, p.ID, units)

	n, err := f.store.CountOverlapping(context.Background(), p.ID, rng("2030-06-10", "2030-06-13"), 0)
	require.NoError(t, err)
	assert.Equal(t, units, n)
}

func TestCreateBookingConcurrentCapacitySQLite(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "svc.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	const units = 2
	p := &models.Property{HostID: hostID, Name: "Cabin", PricePerNight: 10000, MaxGuests: 2, NumberOfUnits: units,
		Availability: []models.DateRange{rng("2030-06-01", "2031-06-01")}}
	require.NoError(t, db.CreateProperty(context.Background(), p))

	// No cross-instance lock: the transaction alone must hold the line.
	svc := NewReservationService(db, nil, nil, nil, DefaultOptions(), &logger).
		WithClock(FixedClock{T: time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)})
	assertConcurrentCapacity(t, svc, p.ID, units)

	n, err := db.CountOverlapping(context.Background(), p.ID, rng("2030-06-10", "2030-06-13"), 0)
	require.NoError(t, err)
	assert.Equal(t, units, n)
}

func assertConcurrentCapacity(t *testing.T, svc *ReservationService, propertyID int64, units int) {
	t.Helper()
	const attempts = 12
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), models.BookingRequest{
				PropertyID: propertyID, UserID: uid, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-13"), Guests: 1,
			})
			results <- err
		}(int64(100 + i))
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrFullyBooked)
	}
	assert.Equal(t, units, ok)
}

func TestCancelBookingCutoff(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()

	onTime := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	late := f.book(t, p.ID, 7, "2030-06-20", "2030-06-22")

	// One second past the two-day deadline is already too late.
	f.clock.Set(time.Date(2030, 6, 8, 0, 0, 1, 0, time.UTC))
	_, err := f.svc.CancelBooking(ctx, onTime.ID, 7)
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)

	// Exactly two days before check-in is still allowed.
	f.clock.Set(time.Date(2030, 6, 8, 0, 0, 0, 0, time.UTC))
	cancelled, err := f.svc.CancelBooking(ctx, onTime.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	// One day before is not.
	f.clock.Set(time.Date(2030, 6, 19, 0, 0, 0, 0, time.UTC))
	_, err = f.svc.CancelBooking(ctx, late.ID, 7)
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)

	still, err := f.svc.GetBooking(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, still.Status)
	assert.Equal(t, late.Version, still.Version)
}

func TestCancelBookingRestoresCalendar(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()

	before, err := f.svc.GetAvailability(ctx, p.ID)
	require.NoError(t, err)

	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	_, err = f.svc.CancelBooking(ctx, b.ID, 7)
	require.NoError(t, err)

	after, err := f.svc.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, availability.New(before.Availability...).Equal(availability.New(after.Availability...)))

	// The freed unit can be booked again.
	f.book(t, p.ID, 8, "2030-06-10", "2030-06-13")

	assert.Equal(t, []string{
		events.EventBookingCreated, events.EventBookingCancelled, events.EventBookingCreated,
	}, f.eventTypes())
}

func TestCancelBookingAuthorization(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()
	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")

	_, err := f.svc.CancelBooking(ctx, b.ID, 8)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CancelBooking(ctx, 999, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CancelBooking(ctx, b.ID, 7)
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, b.ID, 7)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateStatusHostOverride(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()
	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")

	_, err := f.svc.UpdateStatus(ctx, b.ID, models.StatusCancelled, 7)
	assert.ErrorIs(t, err, domain.ErrForbidden, "guests cannot use the override")

	pending, err := f.svc.UpdateStatus(ctx, b.ID, models.StatusPending, hostID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)

	// Pending still holds the unit.
	_, err = f.svc.CreateBooking(ctx, models.BookingRequest{
		PropertyID: p.ID, UserID: 9, CheckIn: day("2030-06-11"), CheckOut: day("2030-06-12"), Guests: 1,
	})
	assert.ErrorIs(t, err, domain.ErrFullyBooked)

	// Override ignores the cutoff and still restores the calendar.
	f.clock.Set(day("2030-06-10"))
	cancelled, err := f.svc.UpdateStatus(ctx, b.ID, models.StatusCancelled, hostID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	got, _ := f.svc.GetAvailability(ctx, p.ID)
	assert.Equal(t, []models.DateRange{rng("2030-06-01", "2031-06-01")}, got.Availability)

	_, err = f.svc.UpdateStatus(ctx, b.ID, models.StatusConfirmed, hostID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "cancelled is terminal")
}

func TestCompleteBooking(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()
	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	calendar, _ := f.svc.GetAvailability(ctx, p.ID)

	_, err := f.svc.CompleteBooking(ctx, b.ID, 7)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	done, err := f.svc.CompleteBooking(ctx, b.ID, hostID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	after, _ := f.svc.GetAvailability(ctx, p.ID)
	assert.Equal(t, calendar.Availability, after.Availability)

	_, err = f.svc.CompleteBooking(ctx, b.ID, hostID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	other := f.book(t, p.ID, 8, "2030-07-01", "2030-07-02")
	_, err = f.svc.UpdateStatus(ctx, other.ID, models.StatusPending, hostID)
	require.NoError(t, err)
	_, err = f.svc.CompleteBooking(ctx, other.ID, hostID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCreateBookingRateLimited(t *testing.T) {
	f := newFixture(t, Options{RateLimit: 2, RateWindow: time.Minute})
	p := f.property(t, 5)

	f.book(t, p.ID, 7, "2030-06-10", "2030-06-11")
	f.book(t, p.ID, 7, "2030-06-11", "2030-06-12")
	_, err := f.svc.CreateBooking(context.Background(), models.BookingRequest{
		PropertyID: p.ID, UserID: 7, CheckIn: day("2030-06-12"), CheckOut: day("2030-06-13"), Guests: 1,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	f.book(t, p.ID, 8, "2030-06-12", "2030-06-13")
}

func TestCreateBookingLockTimeout(t *testing.T) {
	f := newFixture(t, Options{LockWait: 30 * time.Millisecond})
	p := f.property(t, 1)
	ctx := context.Background()

	token, err := f.locks.AcquireLock(ctx, "property:1", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, models.BookingRequest{
		PropertyID: p.ID, UserID: 7, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-11"), Guests: 1,
	})
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, f.locks.ReleaseLock(ctx, "property:1", token))
	f.book(t, p.ID, 7, "2030-06-10", "2030-06-11")
}

type failingLocks struct{}

func (failingLocks) AcquireLock(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("dial tcp: connection refused")
}
func (failingLocks) ReleaseLock(context.Context, string, string) error { return nil }
func (failingLocks) CheckRateLimit(context.Context, int64, int, time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func TestCreateBookingLockStoreDown(t *testing.T) {
	store := repository.NewMemoryStore()
	p := &models.Property{HostID: hostID, Name: "Cabin", PricePerNight: 100, MaxGuests: 2}
	require.NoError(t, store.CreateProperty(context.Background(), p))

	svc := NewReservationService(store, failingLocks{}, nil, nil, DefaultOptions(), nil).
		WithClock(FixedClock{T: day("2030-06-01")})
	_, err := svc.CreateBooking(context.Background(), models.BookingRequest{
		PropertyID: p.ID, UserID: 1, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-11"), Guests: 1,
	})
	assert.NoError(t, err)
}

func TestPublishedPayload(t *testing.T) {
	pub := new(mockPublisher)
	store := repository.NewMemoryStore()
	p := &models.Property{HostID: hostID, Name: "Cabin", PricePerNight: 25000, MaxGuests: 2,
		Availability: []models.DateRange{rng("2030-06-01", "2030-12-01")}}
	require.NoError(t, store.CreateProperty(context.Background(), p))

	pub.On("PublishJSON", events.EventBookingCreated, mock.MatchedBy(func(pl events.BookingEventPayload) bool {
		return pl.PropertyID == p.ID && pl.UserID == 7 && pl.CheckIn == "2030-06-10" &&
			pl.TotalPrice == 82500 && pl.Status == "confirmed"
	})).Return(errors.New("broker down")).Once()

	svc := NewReservationService(store, nil, pub, nil, DefaultOptions(), nil).
		WithClock(FixedClock{T: day("2030-06-01")})
	_, err := svc.CreateBooking(context.Background(), models.BookingRequest{
		PropertyID: p.ID, UserID: 7, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-13"), Guests: 2,
	})
	assert.NoError(t, err, "a failed publish does not undo the booking")
	pub.AssertExpectations(t)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()

	price, err := f.svc.Quote(ctx, models.BookingRequest{
		PropertyID: p.ID, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-13"), Guests: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(82500), price.Total)

	_, err = f.svc.Quote(ctx, models.BookingRequest{
		PropertyID: p.ID, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-13"), Guests: 5,
	})
	assert.ErrorIs(t, err, domain.ErrGuestLimitExceeded)

	all, _ := f.svc.ListPropertyBookings(ctx, p.ID)
	assert.Empty(t, all)
}

func TestListings(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 3)
	ctx := context.Background()

	f.book(t, p.ID, 7, "2030-07-01", "2030-07-03")
	f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	f.book(t, p.ID, 8, "2030-06-10", "2030-06-13")

	mine, err := f.svc.ListUserBookings(ctx, 7)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].CheckIn.Equal(day("2030-06-10")))

	all, err := f.svc.ListPropertyBookings(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListPropertyBookings(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	props, err := f.svc.ListProperties(ctx)
	require.NoError(t, err)
	assert.Len(t, props, 1)

	report, err := f.svc.ExportPropertyBookings(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Data)
	assert.Contains(t, report.FileName, "property_1_")
}

func TestSeedProperties(t *testing.T) {
	f := newFixture(t, Options{AvailabilityHorizonDays: 30})
	ctx := context.Background()

	seeds := []*models.Property{
		{ID: 1, HostID: hostID, Name: "Open", PricePerNight: 100, MaxGuests: 2},
		{ID: 2, HostID: hostID, Name: "Windows", PricePerNight: 100, MaxGuests: 2, Availability: []models.DateRange{
			rng("2030-07-05", "2030-07-10"), rng("2030-07-01", "2030-07-05"),
		}},
	}
	n, err := f.svc.SeedProperties(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	open, _ := f.svc.GetAvailability(ctx, 1)
	assert.Equal(t, []models.DateRange{rng("2030-06-01", "2030-07-01")}, open.Availability)

	merged, _ := f.svc.GetAvailability(ctx, 2)
	assert.Equal(t, []models.DateRange{rng("2030-07-01", "2030-07-10")}, merged.Availability)

	n, err = f.svc.SeedProperties(ctx, []*models.Property{{ID: 1, Name: "Open again"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultOptions().LockTTL, o.LockTTL)
	assert.Equal(t, 0, o.CancellationCutoffDays)
	assert.Equal(t, 0.0, o.FeeRate)
}

func TestOptionsFromConfigKeepsZeroFeeAndCutoff(t *testing.T) {
	zeroFee, zeroCutoff := 0.0, 0
	opts := OptionsFromConfig(config.BookingConfig{FeeRate: &zeroFee, CancellationCutoffDays: &zeroCutoff})
	assert.Equal(t, 0.0, opts.FeeRate)
	assert.Equal(t, 0, opts.CancellationCutoffDays)

	f := newFixture(t, opts)
	p := f.property(t, 1)
	ctx := context.Background()

	price, err := f.svc.Quote(ctx, models.BookingRequest{
		PropertyID: p.ID, CheckIn: day("2030-06-10"), CheckOut: day("2030-06-13"), Guests: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), price.Fee)
	assert.Equal(t, int64(75000), price.Total)

	// With no cutoff a guest may cancel until check-in midnight.
	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	f.clock.Set(time.Date(2030, 6, 9, 23, 59, 59, 0, time.UTC))
	_, err = f.svc.CancelBooking(ctx, b.ID, 7)
	require.NoError(t, err)
}

func TestOptionsFromConfigUnsetUsesDefaults(t *testing.T) {
	opts := OptionsFromConfig(config.BookingConfig{})
	assert.Equal(t, models.DefaultFeeRate, opts.FeeRate)
	assert.Equal(t, models.DefaultCancellationCutoffDays, opts.CancellationCutoffDays)
}

func TestLedgerDisabledWritesNoOutbox(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	p := f.property(t, 1)
	ctx := context.Background()

	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	_, err := f.svc.CancelBooking(ctx, b.ID, 7)
	require.NoError(t, err)

	tasks, err := f.store.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestLedgerEnabledTracksTransitions(t *testing.T) {
	opts := DefaultOptions()
	opts.LedgerEnabled = true
	f := newFixture(t, opts)
	p := f.property(t, 1)
	ctx := context.Background()

	b := f.book(t, p.ID, 7, "2030-06-10", "2030-06-13")
	_, err := f.svc.CancelBooking(ctx, b.ID, 7)
	require.NoError(t, err)

	tasks, err := f.store.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, b.ID, task.BookingID)
	}
}
