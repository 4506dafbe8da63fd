package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/config"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
	RiskExceeded RiskLevel = "EXCEEDED"
)

// Rank orders risk levels from LOW (0) to EXCEEDED (4).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	case RiskExceeded:
		return 4
	default:
		return -1
	}
}

// Position is one entity's standing against its VAT threshold.
type Position struct {
	EntityID         snowflake.ID `json:"entity_id"`
	Name             string       `json:"name"`
	Threshold        float64      `json:"threshold"`
	CurrentRevenue   float64      `json:"current_revenue"`
	Headroom         float64      `json:"headroom"`
	MonthlyAverage   float64      `json:"monthly_average"`
	ProjectedYearEnd float64      `json:"projected_year_end"`
	Utilization      float64      `json:"utilization"`
	MonthsElapsed    int          `json:"months_elapsed"`
	MonthsRemaining  int          `json:"months_remaining"`
	Risk             RiskLevel    `json:"risk_level"`
}

// Year is the half-open VAT year window [Start, End).
type Year struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// YearFor returns the April-to-March VAT year containing now.
func YearFor(now time.Time) Year {
	now = now.UTC()
	year := now.Year()
	if now.Month() < time.April {
		year--
	}
	start := time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC)
	return Year{Start: start, End: start.AddDate(1, 0, 0)}
}

// MonthsElapsed counts calendar months since the year start, the running
// month included. The result is clamped to [1, 12].
func (y Year) MonthsElapsed(now time.Time) int {
	now = now.UTC()
	months := (now.Year()-y.Start.Year())*12 + int(now.Month()-y.Start.Month()) + 1
	if months < 1 {
		return 1
	}
	if months > 12 {
		return 12
	}
	return months
}

// ClassifyRisk maps revenue/threshold onto the configured tiers. A zero
// threshold is treated as already exceeded.
func ClassifyRisk(revenue, threshold float64, tiers config.RiskThresholds) RiskLevel {
	if threshold <= 0 {
		return RiskExceeded
	}
	ratio := revenue / threshold
	switch {
	case ratio >= tiers.Exceeded:
		return RiskExceeded
	case ratio >= tiers.Critical:
		return RiskCritical
	case ratio >= tiers.High:
		return RiskHigh
	case ratio >= tiers.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// BuildPosition derives the projection fields for one entity.
func BuildPosition(entityID snowflake.ID, name string, threshold, revenue float64, year Year, now time.Time, tiers config.RiskThresholds) Position {
	elapsed := year.MonthsElapsed(now)
	remaining := 12 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	average := revenue / float64(elapsed)
	utilization := 0.0
	if threshold > 0 {
		utilization = revenue / threshold
	}
	return Position{
		EntityID:         entityID,
		Name:             name,
		Threshold:        threshold,
		CurrentRevenue:   revenue,
		Headroom:         threshold - revenue,
		MonthlyAverage:   average,
		ProjectedYearEnd: revenue + average*float64(remaining),
		Utilization:      utilization,
		MonthsElapsed:    elapsed,
		MonthsRemaining:  remaining,
		Risk:             ClassifyRisk(revenue, threshold, tiers),
	}
}

// Snapshot is the revenue-ledger summary cached in system settings.
type Snapshot struct {
	Year       Year       `json:"year"`
	Positions  []Position `json:"positions"`
	ComputedAt time.Time  `json:"computed_at"`
}
