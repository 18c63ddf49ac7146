package reference

import (
	"errors"
	"testing"

	"github.com/aristath/settlement/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func priceOf(t *testing.T, prices []domain.ReferencePrice, week int, group domain.Group) decimal.Decimal {
	t.Helper()
	for _, p := range prices {
		if p.Week == week && p.Group == group {
			return p.BasePrice
		}
	}
	t.Fatalf("no price for week %d group %s", week, group)
	return decimal.Zero
}

func TestParseWeek(t *testing.T) {
	tests := []struct {
		cell string
		week int
		ok   bool
	}{
		{"12", 12, true},
		{"12 - 13", 12, true},
		{"Semana 7-8", 7, true},
		{"", 0, false},
		{"total", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			week, ok := ParseWeek(tt.cell)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.week, week)
		})
	}
}

func TestGroupOf(t *testing.T) {
	g, ok := GroupOf(" 7 / 8 ")
	require.True(t, ok)
	assert.Equal(t, domain.GroupLow, g)

	g, ok = GroupOf("2/3")
	require.True(t, ok)
	assert.Equal(t, domain.GroupTop, g)

	_, ok = GroupOf("1")
	assert.False(t, ok)
}

func TestNormalize_SubGrades(t *testing.T) {
	src := Source{
		Format: FormatSubGrade,
		SubGrades: []domain.SubGradePrice{
			{Week: 2, SubGrade: "2/3", Kg: dec("50"), Value: dec("2.2")},
			{Week: 1, SubGrade: "2/3", Kg: dec("100"), Value: dec("2.0")},
			{Week: 1, SubGrade: "4", Kg: dec("10"), Value: dec("1.2")},
			{Week: 1, SubGrade: "5", Kg: dec("30"), Value: dec("0.8")},
			{Week: 1, SubGrade: "6", Kg: decimal.Zero, Value: dec("0.7")},
			{Week: 1, SubGrade: "7/8", Kg: decimal.Zero, Value: dec("0.5")},
			{Week: 1, SubGrade: "1", Kg: dec("5"), Value: dec("9")},
		},
	}

	prices, err := Normalize(src)
	require.NoError(t, err)
	require.Len(t, prices, 6)

	assert.Equal(t, 1, prices[0].Week)
	assert.Equal(t, domain.GroupTop, prices[0].Group)
	assert.Equal(t, domain.GroupLow, prices[2].Group)
	assert.Equal(t, 2, prices[3].Week)

	assert.True(t, dec("2.0").Equal(priceOf(t, prices, 1, domain.GroupTop)))
	assert.True(t, dec("0.9").Equal(priceOf(t, prices, 1, domain.GroupMid)))
	assert.True(t, priceOf(t, prices, 1, domain.GroupLow).IsZero(), "zero-weight group prices at 0")
	assert.True(t, dec("2.2").Equal(priceOf(t, prices, 2, domain.GroupTop)))
	assert.True(t, priceOf(t, prices, 2, domain.GroupMid).IsZero())
}

func TestNormalize_SubGradeDuplicates(t *testing.T) {
	_, err := Normalize(Source{
		Format: FormatSubGrade,
		SubGrades: []domain.SubGradePrice{
			{Week: 1, SubGrade: "4", Kg: dec("1"), Value: dec("1")},
			{Week: 1, SubGrade: " 4", Kg: dec("2"), Value: dec("1")},
		},
	})

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, domain.RuleDuplicateKeys, verr.Rule)
}

func TestNormalize_NoValidRows(t *testing.T) {
	_, err := Normalize(Source{
		Format:    FormatSubGrade,
		SubGrades: []domain.SubGradePrice{{Week: 1, SubGrade: "1", Kg: dec("1"), Value: dec("1")}},
	})

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, domain.RuleNonEmpty, verr.Rule)

	_, err = Normalize(Source{Format: FormatWide})
	require.True(t, errors.As(err, &verr))
}

func TestNormalize_Aggregated(t *testing.T) {
	prices, err := Normalize(Source{
		Format: FormatAggregated,
		Aggregated: []domain.ReferencePrice{
			{Week: 1, Group: domain.GroupLow, BasePrice: dec("0.5")},
			{Week: 1, Group: domain.GroupTop, BasePrice: dec("2.0")},
			{Week: 1, Group: domain.GroupMid, BasePrice: dec("1.0")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GroupTop, prices[0].Group)
	assert.Equal(t, domain.GroupMid, prices[1].Group)
	assert.Equal(t, domain.GroupLow, prices[2].Group)

	t.Run("duplicate week and group", func(t *testing.T) {
		_, err := Normalize(Source{
			Format: FormatAggregated,
			Aggregated: []domain.ReferencePrice{
				{Week: 1, Group: domain.GroupTop, BasePrice: dec("2.0")},
				{Week: 1, Group: domain.GroupTop, BasePrice: dec("2.1")},
			},
		})
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"week 1/AAA"}, verr.Keys)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := Normalize(Source{
			Format:     FormatAggregated,
			Aggregated: []domain.ReferencePrice{{Week: 1, Group: "B", BasePrice: dec("1")}},
		})
		assert.Error(t, err)
	})
}

func TestParseWide(t *testing.T) {
	table := WideTable{
		Header: []string{"Semana", "Kg 2/3", "Valor fruta 2/3", "Kg 4", "Valor fruta 4", "Kg 5", "Valor fruta 5",
			"Kg 6", "Valor fruta 6", "Kg 7/8", "Valor fruta 7/8", "Kg 9/10", "Valor fruta 9/10"},
		Rows: [][]string{
			{"1 - 2", "100", "2,0", "10", "1,2", "30", "0,8", "", "", "0", "0", "0", "0"},
			{"TOTAL", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1"},
		},
	}

	rows, err := ParseWide(table)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, 1, rows[0].Week)
	assert.Equal(t, "2/3", rows[0].SubGrade)
	assert.True(t, dec("2.0").Equal(rows[0].Value))

	prices, err := Normalize(Source{Format: FormatWide, Wide: &table})
	require.NoError(t, err)
	assert.True(t, dec("0.9").Equal(priceOf(t, prices, 1, domain.GroupMid)))
}

func TestParseWide_MissingColumns(t *testing.T) {
	_, err := ParseWide(WideTable{Header: []string{"Semana", "Kg 2/3", "Valor fruta 2/3"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub-grade 4")

	_, err = ParseWide(WideTable{Header: []string{"week"}})
	assert.Error(t, err)
}
