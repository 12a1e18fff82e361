package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundMoney rounds an amount to 2 decimal places, half away from zero.
// 33.33 * 0.05 must come out as 1.67, which plain float64 rounding gets
// wrong (166.649... truncates to 1.66).
func RoundMoney(amount float64) float64 {
	v, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return v
}

// Commission computes a referral commission at the given rate, rounded
// to 2 decimal places half away from zero.
func Commission(total, rate float64) float64 {
	v, _ := decimal.NewFromFloat(total).
		Mul(decimal.NewFromFloat(rate)).
		Round(2).
		Float64()
	return v
}

// MulMoney multiplies a unit price by a quantity with decimal precision.
func MulMoney(price float64, quantity int) float64 {
	v, _ := decimal.NewFromFloat(price).
		Mul(decimal.NewFromInt(int64(quantity))).
		Round(2).
		Float64()
	return v
}

// SumMoney adds amounts with decimal precision.
func SumMoney(amounts ...float64) float64 {
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(decimal.NewFromFloat(a))
	}
	v, _ := sum.Round(2).Float64()
	return v
}

// IsPositiveFinite reports whether v is a usable positive amount.
func IsPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
