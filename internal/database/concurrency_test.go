package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"staybook/internal/availability"
	"staybook/internal/domain"
	"staybook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// admit mirrors the service's check-and-write section.
func admit(ctx context.Context, db *DB, propertyID, userID int64, r models.DateRange) error {
	return db.WithinPropertyTx(ctx, propertyID, func(tx domain.Tx) error {
		p, err := tx.GetProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		n, err := tx.CountOverlapping(ctx, propertyID, r, 0)
		if err != nil {
			return err
		}
		if n >= p.Units() {
			return &domain.FullyBookedError{Remaining: availability.Remaining(p.Units(), n)}
		}
		b := &models.Booking{
			PropertyID: propertyID, UserID: userID,
			CheckIn: r.Start, CheckOut: r.End,
			Guests: 1, Nights: r.Nights(), Status: models.StatusConfirmed,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		cal := availability.New(p.Availability...)
		cal.Subtract(r)
		p.Availability = cal.Windows()
		return tx.SaveAvailability(ctx, p)
	})
}

func TestConcurrentAdmission(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const units = 2
	p := createTestProperty(t, db, units)
	r := rng(t, "2030-06-10", "2030-06-13")

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- admit(ctx, db, p.ID, int64(id), r)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		var fb *domain.FullyBookedError
		require.True(t, errors.As(err, &fb), "unexpected error: %v", err)
		assert.Equal(t, 0, fb.Remaining)
	}

	assert.Equal(t, units, successCount, "only as many bookings as units may succeed")

	count, err := db.CountOverlapping(ctx, p.ID, r, 0)
	require.NoError(t, err)
	assert.Equal(t, units, count)

	got, err := db.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+units), got.Version)
}
