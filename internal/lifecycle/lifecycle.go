// Package lifecycle is the booking status state machine.
package lifecycle

import (
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

// Actor identifies who requests a transition.
type Actor string

const (
	ActorGuest Actor = "guest"
	ActorHost  Actor = "host"
)

// Effect is the calendar side effect a transition requires.
type Effect int

const (
	EffectNone Effect = iota
	// EffectRestore puts the booked range back into the availability calendar.
	EffectRestore
)

// Decision describes an accepted transition.
type Decision struct {
	From   models.BookingStatus
	To     models.BookingStatus
	Effect Effect
}

// hostTransitions is the administrative override table. Terminal states have
// no entry, so a cancelled or completed booking can never hold a unit again.
var hostTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled, models.StatusCompleted},
	models.StatusConfirmed: {models.StatusPending, models.StatusCancelled, models.StatusCompleted},
}

type Machine struct {
	cutoffDays int
}

func NewMachine(cutoffDays int) *Machine {
	if cutoffDays < 0 {
		cutoffDays = 0
	}
	return &Machine{cutoffDays: cutoffDays}
}

// CutoffDays is the minimum number of days before check-in a guest may cancel.
func (m *Machine) CutoffDays() int { return m.cutoffDays }

// CanCancel reports whether a guest may still cancel a stay starting on checkIn.
// The deadline is the instant cutoffDays before check-in midnight UTC; the
// deadline itself is still allowed.
func (m *Machine) CanCancel(checkIn, now time.Time) bool {
	deadline := models.Day(checkIn).AddDate(0, 0, -m.cutoffDays)
	return !now.UTC().After(deadline)
}

// Transition validates moving b to target on behalf of actor. It never mutates b.
func (m *Machine) Transition(b *models.Booking, target models.BookingStatus, actor Actor, now time.Time) (Decision, error) {
	from := b.Status
	if from == target {
		return Decision{}, fmt.Errorf("%w: booking %d is already %s", domain.ErrInvalidTransition, b.ID, from)
	}
	if from.Terminal() {
		return Decision{}, fmt.Errorf("%w: %s is final", domain.ErrInvalidTransition, from)
	}

	switch actor {
	case ActorGuest:
		if target != models.StatusCancelled {
			return Decision{}, fmt.Errorf("%w: guests may only cancel", domain.ErrForbidden)
		}
		if !m.CanCancel(b.CheckIn, now) {
			return Decision{}, fmt.Errorf("%w: cancellation closes %d days before check-in",
				domain.ErrPolicyViolation, m.cutoffDays)
		}
	case ActorHost:
		if !allowed(from, target) {
			return Decision{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, target)
		}
	default:
		return Decision{}, fmt.Errorf("%w: unknown actor %q", domain.ErrForbidden, actor)
	}

	return Decision{From: from, To: target, Effect: effectOf(target)}, nil
}

func allowed(from, to models.BookingStatus) bool {
	for _, s := range hostTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// effectOf ties the restore to the target state, whatever path led there.
func effectOf(to models.BookingStatus) Effect {
	if to == models.StatusCancelled {
		return EffectRestore
	}
	return EffectNone
}
