package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Proration is the first partial-month charge for a mid-month signup.
type Proration struct {
	Amount        decimal.Decimal
	DaysRemaining int
	DaysInMonth   int
	// TrialEnd is the first of next month, when recurring billing starts.
	TrialEnd time.Time
}

// Prorate charges monthly × daysRemaining / daysInMonth, rounded half up to
// pence. daysRemaining counts today through the month end inclusive.
func Prorate(monthly float64, now time.Time) Proration {
	now = now.UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	firstOfNext := firstOfMonth.AddDate(0, 1, 0)
	daysInMonth := firstOfNext.AddDate(0, 0, -1).Day()
	remaining := daysInMonth - now.Day() + 1

	amount := decimal.NewFromFloat(monthly).
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(decimal.NewFromInt(int64(daysInMonth))).
		Round(2)

	return Proration{
		Amount:        amount,
		DaysRemaining: remaining,
		DaysInMonth:   daysInMonth,
		TrialEnd:      firstOfNext,
	}
}
