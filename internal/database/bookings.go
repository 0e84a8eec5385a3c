package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

const bookingColumns = `id, property_id, user_id, check_in, check_out, guests, nights,
	total_price, status, created_at, updated_at, version`

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db.DB, id)
}

func (db *DB) ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY check_in ASC, id ASC`
	return queryBookings(ctx, db.DB, query, userID)
}

func (db *DB) ListBookingsByProperty(ctx context.Context, propertyID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE property_id = ? ORDER BY check_in ASC, id ASC`
	return queryBookings(ctx, db.DB, query, propertyID)
}

func (db *DB) CountOverlapping(ctx context.Context, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error) {
	return countOverlapping(ctx, db.DB, propertyID, r, excludeBookingID)
}

// countOverlapping counts active bookings whose stay intersects r.
// Dates are stored as YYYY-MM-DD so text comparison orders them.
func countOverlapping(ctx context.Context, q querier, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE property_id = ?
                AND check_in < ? AND ? < check_out
                AND status IN (?, ?)
                AND id != ?`
	var count int
	err := q.QueryRowContext(ctx, query,
		propertyID,
		r.End.Format(models.DateLayout),
		r.Start.Format(models.DateLayout),
		models.StatusPending, models.StatusConfirmed,
		excludeBookingID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return count, nil
}

func insertBooking(ctx context.Context, q querier, b *models.Booking) error {
	query := `INSERT INTO bookings (
				property_id, user_id, check_in, check_out, guests, nights,
				total_price, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		b.PropertyID,
		b.UserID,
		b.CheckIn.Format(models.DateLayout),
		b.CheckOut.Format(models.DateLayout),
		b.Guests,
		b.Nights,
		b.TotalPrice,
		string(b.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

// updateBookingStatus is a compare-and-swap on the booking version.
func updateBookingStatus(ctx context.Context, q querier, b *models.Booking, status models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, string(status), now, b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	b.Status = status
	b.Version++
	b.UpdatedAt = now
	return nil
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.BookingNotFound(id)
	}
	return b, err
}

func queryBookings(ctx context.Context, q querier, query string, args ...any) ([]*models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		checkIn, checkOut string
		status            string
	)
	err := s.Scan(&b.ID, &b.PropertyID, &b.UserID, &checkIn, &checkOut, &b.Guests, &b.Nights,
		&b.TotalPrice, &status, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if b.CheckIn, err = models.ParseDay(checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check-in %s: %w", checkIn, err)
	}
	if b.CheckOut, err = models.ParseDay(checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check-out %s: %w", checkOut, err)
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}
