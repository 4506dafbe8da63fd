package domain

import "github.com/shopspring/decimal"

// ToMinor converts a whole-currency amount to pence, rounding half up.
func ToMinor(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromMinor(amount int64) float64 {
	major, _ := decimal.New(amount, -2).Float64()
	return major
}
