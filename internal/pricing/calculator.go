package pricing

import (
	"math"

	"staybook/internal/models"
)

// Calculator prices a stay as nights * nightly rate plus one flat fee that
// covers cleaning and service together.
type Calculator struct {
	FeeRate float64
}

func NewCalculator(feeRate float64) Calculator {
	if feeRate < 0 {
		feeRate = 0
	}
	return Calculator{FeeRate: feeRate}
}

// Compute returns the breakdown for the given number of nights. Amounts are in
// minor currency units; the fee is rounded half away from zero.
func (c Calculator) Compute(nights int, pricePerNight int64) models.PriceBreakdown {
	if nights < 0 {
		nights = 0
	}
	subtotal := int64(nights) * pricePerNight
	fee := int64(math.Round(float64(subtotal) * c.FeeRate))
	return models.PriceBreakdown{
		Nights:        nights,
		PricePerNight: pricePerNight,
		Subtotal:      subtotal,
		Fee:           fee,
		Total:         subtotal + fee,
	}
}

// ComputeRange prices the nights of r.
func (c Calculator) ComputeRange(r models.DateRange, pricePerNight int64) models.PriceBreakdown {
	return c.Compute(r.Nights(), pricePerNight)
}
