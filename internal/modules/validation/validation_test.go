package validation

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

func requireRule(t *testing.T, err error, rule string) *domain.ValidationError {
	t.Helper()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, rule, verr.Rule)
	return verr
}

func TestNonEmpty(t *testing.T) {
	assert.NoError(t, NonEmpty("PesosFres", 3))

	verr := requireRule(t, NonEmpty("PesosFres", 0), domain.RuleNonEmpty)
	assert.Equal(t, []string{"PesosFres"}, verr.Keys)
}

func TestUniqueKeys(t *testing.T) {
	assert.NoError(t, UniqueKeys("calibers", []string{"c0", "c1", "c2"}))
	assert.NoError(t, UniqueKeys("calibers", nil))

	verr := requireRule(t, UniqueKeys("calibers", []string{"c3", "c1", "c3", "c1", "c0"}), domain.RuleDuplicateKeys)
	assert.Equal(t, []string{"c1", "c3"}, verr.Keys)
}

func TestWeeksPriced(t *testing.T) {
	refs := []domain.ReferencePrice{
		{Week: 1, Group: domain.GroupTop, BasePrice: dec("2")},
		{Week: 1, Group: domain.GroupMid, BasePrice: dec("1")},
	}

	t.Run("all priced", func(t *testing.T) {
		weights := []domain.GroupedWeight{
			{Week: 1, Group: domain.GroupTop, Grade: domain.GradeI, Kg: dec("10")},
			{Week: 1, Group: domain.GroupMid, Grade: domain.GradeII, Kg: dec("5")},
		}
		assert.NoError(t, WeeksPriced(weights, refs))
	})

	t.Run("zero kilograms need no price", func(t *testing.T) {
		weights := []domain.GroupedWeight{
			{Week: 2, Group: domain.GroupTop, Grade: domain.GradeI, Kg: decimal.Zero},
		}
		assert.NoError(t, WeeksPriced(weights, refs))
	})

	t.Run("missing cells listed once", func(t *testing.T) {
		weights := []domain.GroupedWeight{
			{Week: 1, Group: domain.GroupLow, Grade: domain.GradeI, Kg: dec("1")},
			{Week: 1, Group: domain.GroupLow, Grade: domain.GradeII, Kg: dec("1")},
			{Week: 2, Group: domain.GroupTop, Grade: domain.GradeI, Kg: dec("1")},
		}
		verr := requireRule(t, WeeksPriced(weights, refs), domain.RuleWeeksPriced)
		assert.Equal(t, []string{"week 1/A", "week 2/AAA"}, verr.Keys)
	})
}

func TestReferenceChecks(t *testing.T) {
	assert.NoError(t, ReferenceWeek(true))
	requireRule(t, ReferenceWeek(false), domain.RuleReferenceWeek)

	assert.NoError(t, PositiveReference(1, dec("2"), true))
	verr := requireRule(t, PositiveReference(3, decimal.Zero, true), domain.RulePositiveReference)
	assert.Equal(t, []string{"3"}, verr.Keys)

	err := PositiveReference(4, decimal.Zero, false)
	requireRule(t, err, domain.RulePositiveReference)
	assert.Contains(t, err.Error(), "missing")
}

func TestPositiveBase(t *testing.T) {
	assert.NoError(t, PositiveBase(dec("0.0001")))
	requireRule(t, PositiveBase(decimal.Zero), domain.RulePositiveBase)
	requireRule(t, PositiveBase(dec("-1")), domain.RulePositiveBase)
}

func TestPositiveTarget(t *testing.T) {
	assert.NoError(t, PositiveTarget(dec("99")))
	requireRule(t, PositiveTarget(decimal.Zero), domain.RulePositiveTarget)
}

func TestRatio(t *testing.T) {
	tests := []struct {
		ratio string
		ok    bool
	}{
		{"0.5", true},
		{"1", true},
		{"0", false},
		{"-0.2", false},
		{"1.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.ratio, func(t *testing.T) {
			err := Ratio(dec(tt.ratio))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				requireRule(t, err, domain.RuleRatio)
			}
		})
	}
}

func TestGradeOrdering(t *testing.T) {
	ok := []domain.FinalPrice{
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeI, Price: dec("4.95")},
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeII, Price: dec("4.95")},
	}
	assert.NoError(t, GradeOrdering(ok))

	bad := []domain.FinalPrice{
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeI, Price: dec("4.95")},
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeII, Price: dec("5.00")},
	}
	verr := requireRule(t, GradeOrdering(bad), domain.RuleGradeOrdering)
	require.Len(t, verr.Keys, 1)
	assert.Contains(t, verr.Keys[0], "week 1/AAA")
}

func TestReconciliation(t *testing.T) {
	mismatch, err := Reconciliation(dec("99.0"), dec("99"), dec("0.01"))
	require.NoError(t, err)
	assert.True(t, mismatch.IsZero())

	mismatch, err = Reconciliation(dec("99.01"), dec("99"), dec("0.01"))
	require.NoError(t, err)
	assert.True(t, dec("0.01").Equal(mismatch))

	mismatch, err = Reconciliation(dec("98.5"), dec("99"), dec("0.01"))
	requireRule(t, err, domain.RuleReconciliation)
	assert.True(t, dec("0.5").Equal(mismatch))
}

func TestNumericWeeks(t *testing.T) {
	assert.NoError(t, NumericWeeks(nil))

	err := NumericWeeks([]string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"})
	verr := requireRule(t, err, domain.RuleNumericWeek)
	assert.Equal(t, []string{"B1", "B2", "B3", "B4", "B5"}, verr.Keys)
	assert.Contains(t, verr.Message, "7 tickets")
}
