package report

import (
	"bytes"
	"testing"

	"github.com/aristath/settlement/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDispersion_WeightedByKg(t *testing.T) {
	prices := []domain.FinalPrice{
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeI, Price: dec("1.0")},
		{Week: 2, Group: domain.GroupTop, Grade: domain.GradeI, Price: dec("2.0")},
		{Week: 3, Group: domain.GroupTop, Grade: domain.GradeI, Price: dec("9.0")}, // no kg that week
		{Week: 1, Group: domain.GroupMid, Grade: domain.GradeII, Price: dec("0.5")},
	}
	grouped := []domain.GroupedWeight{
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeI, Kg: dec("30")},
		{Week: 2, Group: domain.GroupTop, Grade: domain.GradeI, Kg: dec("10")},
		{Week: 1, Group: domain.GroupMid, Grade: domain.GradeII, Kg: dec("5")},
	}

	stats := Dispersion(prices, grouped)
	require.Len(t, stats, 2)

	top := stats[0]
	assert.Equal(t, domain.GroupTop, top.Group)
	assert.Equal(t, 2, top.Weeks)
	assert.InDelta(t, 40, top.Kg, 1e-9)
	assert.InDelta(t, 1.25, top.Mean, 1e-9)
	assert.Equal(t, 1.0, top.Min)
	assert.Equal(t, 2.0, top.Max)
	assert.Greater(t, top.StdDev, 0.0)
	assert.InDelta(t, top.StdDev/top.Mean, top.Variation, 1e-12)

	mid := stats[1]
	assert.Equal(t, domain.GroupMid, mid.Group)
	assert.Equal(t, 1, mid.Weeks)
	assert.Zero(t, mid.StdDev)
	assert.Equal(t, 0.5, mid.Median)
}

func TestDispersion_Empty(t *testing.T) {
	assert.Empty(t, Dispersion(nil, nil))
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Summary{
		Scope:     domain.CampaignScope{Campaign: 2024, Company: "COOP", Crop: "KAKI"},
		Metrics:   domain.ReconciliationMetrics{GrossRevenue: dec("100"), Coefficient: dec("4.95"), ReferenceWeek: 1},
		FundTotal: dec("1"),
		Certified: 1, Exceptions: 1, Prices: 6,
		Dispersion: []PriceStats{{Group: domain.GroupTop, Grade: domain.GradeI, Weeks: 1, Min: 4.95, Max: 4.95, Median: 4.95, Mean: 4.95}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2024 COOP KAKI")
	assert.Contains(t, out, "4.950000")
	assert.Contains(t, out, "(1 certified, 1 exceptions)")
	assert.Contains(t, out, "AAA")
}
