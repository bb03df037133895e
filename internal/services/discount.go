package services

import "math"

// FinalAmount computes the settlement amount for a base charge after applying
// a provider's discount percent, rounded half-up to two decimal places. Every
// caller that shows or moves money (preview, settlement, receipts) goes
// through this function so the amounts always agree.
func FinalAmount(baseAmount float64, discountPercent int) float64 {
	return round2(baseAmount * (1 - float64(discountPercent)/100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
