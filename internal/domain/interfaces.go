package domain

import (
	"context"
	"time"

	"staybook/internal/models"
)

// Store is the persistence boundary of the reservation engine.
type Store interface {
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
	ListProperties(ctx context.Context) ([]*models.Property, error)
	CreateProperty(ctx context.Context, property *models.Property) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListBookingsByProperty(ctx context.Context, propertyID int64) ([]*models.Booking, error)
	CountOverlapping(ctx context.Context, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error)
	// WithinPropertyTx runs fn as one atomic unit serialized against every other
	// unit of work on the same property. Nothing fn wrote survives an error.
	WithinPropertyTx(ctx context.Context, propertyID int64, fn func(tx Tx) error) error
}

// Tx is the store as seen from inside WithinPropertyTx.
type Tx interface {
	GetProperty(ctx context.Context, id int64) (*models.Property, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CountOverlapping(ctx context.Context, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, booking *models.Booking, status models.BookingStatus) error
	SaveAvailability(ctx context.Context, property *models.Property) error
	EnqueueOutbox(ctx context.Context, task *models.OutboxTask) error
}

// OutboxStore is drained by the ledger worker.
type OutboxStore interface {
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// LockStore provides short-lived exclusive locks and per-user throttling shared
// by every API instance.
type LockStore interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	ReleaseLock(ctx context.Context, key, token string) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Clock is injected so that the date rules can be tested at fixed instants.
type Clock interface {
	Now() time.Time
}

type ReservationService interface {
	CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Reservation, error)
	CancelBooking(ctx context.Context, bookingID, actingUserID int64) (*models.Booking, error)
	CompleteBooking(ctx context.Context, bookingID, hostID int64) (*models.Booking, error)
	UpdateStatus(ctx context.Context, bookingID int64, target models.BookingStatus, actorID int64) (*models.Booking, error)
	Quote(ctx context.Context, req models.BookingRequest) (*models.PriceBreakdown, error)
	GetAvailability(ctx context.Context, propertyID int64) (*models.Property, error)
	ListProperties(ctx context.Context) ([]*models.Property, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	ListPropertyBookings(ctx context.Context, propertyID int64) ([]*models.Booking, error)
	ExportPropertyBookings(ctx context.Context, propertyID int64) (*models.Report, error)
}

type LedgerWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
}
