package availability

import "staybook/internal/models"

// CountOverlapping counts active bookings of propertyID whose stay intersects r.
// A non-zero excludeBookingID leaves that booking out of the count.
func CountOverlapping(bookings []*models.Booking, propertyID int64, r models.DateRange, excludeBookingID int64) int {
	n := 0
	for _, b := range bookings {
		if b == nil || b.PropertyID != propertyID || !b.Status.Active() {
			continue
		}
		if excludeBookingID != 0 && b.ID == excludeBookingID {
			continue
		}
		if b.Range().Intersects(r) {
			n++
		}
	}
	return n
}

// Remaining is the number of free units given an overlap count, never negative.
func Remaining(units, overlapping int) int {
	if left := units - overlapping; left > 0 {
		return left
	}
	return 0
}

// PeakOccupancy returns the largest number of active bookings covering any
// single day of r.
func PeakOccupancy(bookings []*models.Booking, propertyID int64, r models.DateRange) int {
	peak := 0
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		day := models.DateRange{Start: d, End: d.AddDate(0, 0, 1)}
		if n := CountOverlapping(bookings, propertyID, day, 0); n > peak {
			peak = n
		}
	}
	return peak
}
