package service

import (
	"time"

	"staybook/internal/config"
	"staybook/internal/models"
)

// Options are the booking rules the service enforces.
type Options struct {
	CancellationCutoffDays  int
	FeeRate                 float64
	AvailabilityHorizonDays int
	MaxNights               int
	MaxAdvanceDays          int
	RateLimit               int
	RateWindow              time.Duration
	LockTTL                 time.Duration
	LockWait                time.Duration
	// LedgerEnabled makes every booking write enqueue an outbox task for the
	// ledger worker. Set it only when a worker drains the outbox.
	LedgerEnabled bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		CancellationCutoffDays:  models.DefaultCancellationCutoffDays,
		FeeRate:                 models.DefaultFeeRate,
		AvailabilityHorizonDays: models.DefaultAvailabilityHorizonDays,
		MaxNights:               models.DefaultMaxNights,
		MaxAdvanceDays:          models.DefaultMaxAdvanceDays,
		RateLimit:               models.DefaultBookingRateLimit,
		RateWindow:              models.DefaultBookingRateWindow * time.Second,
		LockTTL:                 models.DefaultLockTTL * time.Second,
		LockWait:                5 * time.Second,
	}
}

func OptionsFromConfig(cfg config.BookingConfig) Options {
	return Options{
		CancellationCutoffDays:  cfg.Cutoff(),
		FeeRate:                 cfg.Fee(),
		AvailabilityHorizonDays: cfg.AvailabilityHorizonDays,
		MaxNights:               cfg.MaxNights,
		MaxAdvanceDays:          cfg.MaxAdvanceDays,
		RateLimit:               cfg.RateLimitPerWindow,
		RateWindow:              time.Duration(cfg.RateLimitWindow) * time.Second,
		LockTTL:                 time.Duration(cfg.LockTTL) * time.Second,
		LockWait:                time.Duration(cfg.LockWaitMillis) * time.Millisecond,
	}
}
