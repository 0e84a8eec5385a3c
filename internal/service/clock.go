package service

import "time"

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T. Used by tests and the quote preview.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
