package database

import (
	"context"
	"database/sql"
	"fmt"

	"staybook/internal/domain"
	"staybook/internal/models"
)

// WithinPropertyTx runs fn in a single BEGIN IMMEDIATE transaction. SQLite has
// one writer, so the property id does not narrow the lock.
func (db *DB) WithinPropertyTx(ctx context.Context, _ int64, fn func(tx domain.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (s *txStore) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	return getProperty(ctx, s.tx, id)
}

func (s *txStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, s.tx, id)
}

func (s *txStore) CountOverlapping(ctx context.Context, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error) {
	return countOverlapping(ctx, s.tx, propertyID, r, excludeBookingID)
}

func (s *txStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	return insertBooking(ctx, s.tx, b)
}

func (s *txStore) UpdateBookingStatus(ctx context.Context, b *models.Booking, status models.BookingStatus) error {
	return updateBookingStatus(ctx, s.tx, b, status)
}

func (s *txStore) SaveAvailability(ctx context.Context, p *models.Property) error {
	return saveAvailability(ctx, s.tx, p)
}

func (s *txStore) EnqueueOutbox(ctx context.Context, task *models.OutboxTask) error {
	return enqueueOutbox(ctx, s.tx, task)
}

var (
	_ domain.Store       = (*DB)(nil)
	_ domain.OutboxStore = (*DB)(nil)
	_ domain.Tx          = (*txStore)(nil)
)
