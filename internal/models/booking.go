package models

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus is the closed set of booking states.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// ParseBookingStatus rejects anything outside the four known states.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown booking status %q", raw)
}

// Active bookings hold a capacity unit.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal states cannot be left.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Booking struct {
	ID         int64         `json:"id"`
	PropertyID int64         `json:"property_id"`
	UserID     int64         `json:"user_id"`
	CheckIn    time.Time     `json:"check_in"`
	CheckOut   time.Time     `json:"check_out"`
	Guests     int           `json:"guests"`
	Nights     int           `json:"nights"`
	TotalPrice int64         `json:"total_price"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Version    int64         `json:"version"`
}

// Range is the stay as a half-open date range.
func (b *Booking) Range() DateRange {
	return DateRange{Start: b.CheckIn, End: b.CheckOut}
}

// PriceBreakdown is returned alongside a created booking and by quotes.
type PriceBreakdown struct {
	Nights        int   `json:"nights"`
	PricePerNight int64 `json:"price_per_night"`
	Subtotal      int64 `json:"subtotal"`
	Fee           int64 `json:"fee"`
	Total         int64 `json:"total"`
}

// BookingRequest carries the inputs of a reservation attempt.
type BookingRequest struct {
	PropertyID int64
	UserID     int64
	CheckIn    time.Time
	CheckOut   time.Time
	Guests     int
}

// Reservation is a created booking together with its price.
type Reservation struct {
	Booking *Booking       `json:"booking"`
	Price   PriceBreakdown `json:"price"`
}
