package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/bookings", "2xx")
		ObserveAdmission(15 * time.Millisecond)
		IncOutbox("completed")
	})
}

func TestBookingCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingsRejected.WithLabelValues("fully_booked"))
	IncBookingRejected("fully_booked")
	IncBookingRejected("fully_booked")
	assert.Equal(t, before+2, testutil.ToFloat64(bookingsRejected.WithLabelValues("fully_booked")))

	IncBookingCreated("7")
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingsCreated.WithLabelValues("7")), 1.0)

	IncTransition("confirmed", "cancelled", "guest")
	assert.GreaterOrEqual(t, testutil.ToFloat64(statusTransitions.WithLabelValues("confirmed", "cancelled", "guest")), 1.0)
}
