package domain

import (
	"testing"
	"time"

	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestYearForShiftsBeforeApril(t *testing.T) {
	year := YearFor(time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), year.Start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), year.End)

	year = YearFor(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), year.Start)
}

func TestMonthsElapsedCountsRunningMonth(t *testing.T) {
	year := YearFor(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))

	cases := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 4, 30, 23, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), 9},
		{time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), 12},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, year.MonthsElapsed(tc.now), tc.now.String())
	}
}

func TestClassifyRiskBoundaries(t *testing.T) {
	tiers := config.DefaultRoutingConfig().Risk
	threshold := 90000.0

	assert.Equal(t, RiskLow, ClassifyRisk(0, threshold, tiers))
	assert.Equal(t, RiskMedium, ClassifyRisk(threshold*0.78, threshold, tiers))
	assert.Equal(t, RiskHigh, ClassifyRisk(threshold*0.89, threshold, tiers))
	assert.Equal(t, RiskCritical, ClassifyRisk(threshold*0.94, threshold, tiers))
	assert.Equal(t, RiskExceeded, ClassifyRisk(threshold, threshold, tiers))
	assert.Equal(t, RiskExceeded, ClassifyRisk(10, 0, tiers))
}

func TestClassifyRiskIsMonotonic(t *testing.T) {
	tiers := config.DefaultRoutingConfig().Risk
	threshold := 90000.0
	previous := RiskLow
	for revenue := 0.0; revenue <= threshold*1.2; revenue += 250 {
		level := ClassifyRisk(revenue, threshold, tiers)
		if level.Rank() < previous.Rank() {
			t.Fatalf("risk decreased at revenue %.2f: %s after %s", revenue, level, previous)
		}
		previous = level
	}
	assert.Equal(t, RiskExceeded, previous)
}

func TestBuildPositionProjection(t *testing.T) {
	tiers := config.DefaultRoutingConfig().Risk
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	year := YearFor(now)

	pos := BuildPosition(7, "North Gym Ltd", 90000, 30000, year, now, tiers)
	assert.Equal(t, 3, pos.MonthsElapsed)
	assert.Equal(t, 9, pos.MonthsRemaining)
	assert.Equal(t, 60000.0, pos.Headroom)
	assert.Equal(t, 10000.0, pos.MonthlyAverage)
	assert.Equal(t, 120000.0, pos.ProjectedYearEnd)
	assert.InDelta(t, 0.3333, pos.Utilization, 0.0001)
	assert.Equal(t, RiskLow, pos.Risk)
}
