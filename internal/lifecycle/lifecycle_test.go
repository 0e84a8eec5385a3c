package lifecycle

import (
	"errors"
	"testing"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var checkIn = time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

func booking(status models.BookingStatus) *models.Booking {
	return &models.Booking{ID: 1, CheckIn: checkIn, CheckOut: checkIn.AddDate(0, 0, 3), Status: status}
}

func TestGuestCancel_CutoffBoundary(t *testing.T) {
	m := NewMachine(models.DefaultCancellationCutoffDays)

	t.Run("ExactlyTwoDaysBefore", func(t *testing.T) {
		now := checkIn.Add(-48 * time.Hour)
		d, err := m.Transition(booking(models.StatusConfirmed), models.StatusCancelled, ActorGuest, now)
		require.NoError(t, err)
		assert.Equal(t, EffectRestore, d.Effect)
		assert.Equal(t, models.StatusConfirmed, d.From)
		assert.Equal(t, models.StatusCancelled, d.To)
	})

	t.Run("OneSecondPastDeadline", func(t *testing.T) {
		now := checkIn.Add(-48*time.Hour + time.Second)
		_, err := m.Transition(booking(models.StatusConfirmed), models.StatusCancelled, ActorGuest, now)
		assert.ErrorIs(t, err, domain.ErrPolicyViolation)
	})

	t.Run("LateOnDeadlineDay", func(t *testing.T) {
		assert.False(t, m.CanCancel(checkIn, checkIn.Add(-25*time.Hour)))
	})

	t.Run("DeadlineInOtherZone", func(t *testing.T) {
		zone := time.FixedZone("UTC+3", 3*60*60)
		assert.True(t, m.CanCancel(checkIn, checkIn.Add(-48*time.Hour).In(zone)))
		assert.False(t, m.CanCancel(checkIn, checkIn.Add(-47*time.Hour).In(zone)))
	})

	t.Run("OneDayBefore", func(t *testing.T) {
		now := time.Date(2026, 6, 9, 0, 1, 0, 0, time.UTC)
		_, err := m.Transition(booking(models.StatusConfirmed), models.StatusCancelled, ActorGuest, now)
		assert.True(t, errors.Is(err, domain.ErrPolicyViolation))
	})

	t.Run("WellAhead", func(t *testing.T) {
		assert.True(t, m.CanCancel(checkIn, checkIn.AddDate(0, -1, 0)))
	})
}

func TestGuest_OnlyCancels(t *testing.T) {
	m := NewMachine(2)
	_, err := m.Transition(booking(models.StatusConfirmed), models.StatusCompleted, ActorGuest, checkIn.AddDate(0, 0, -10))
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestHostTransitions(t *testing.T) {
	m := NewMachine(2)
	late := checkIn // past the guest cutoff; hosts are not bound by it

	tests := []struct {
		from   models.BookingStatus
		to     models.BookingStatus
		ok     bool
		effect Effect
	}{
		{models.StatusConfirmed, models.StatusCompleted, true, EffectNone},
		{models.StatusConfirmed, models.StatusCancelled, true, EffectRestore},
		{models.StatusConfirmed, models.StatusPending, true, EffectNone},
		{models.StatusPending, models.StatusConfirmed, true, EffectNone},
		{models.StatusPending, models.StatusCancelled, true, EffectRestore},
		{models.StatusCancelled, models.StatusConfirmed, false, EffectNone},
		{models.StatusCompleted, models.StatusCancelled, false, EffectNone},
		{models.StatusConfirmed, models.StatusConfirmed, false, EffectNone},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			d, err := m.Transition(booking(tt.from), tt.to, ActorHost, late)
			if !tt.ok {
				assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.effect, d.Effect)
		})
	}
}

func TestUnknownActor(t *testing.T) {
	_, err := NewMachine(2).Transition(booking(models.StatusConfirmed), models.StatusCancelled, Actor("robot"), checkIn)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestNegativeCutoff(t *testing.T) {
	m := NewMachine(-3)
	assert.Equal(t, 0, m.CutoffDays())
	assert.True(t, m.CanCancel(checkIn, checkIn))
}
