// Package validation holds the invariant checks run between settlement stages.
//
// Every check is a stateless predicate returning nil or a *domain.ValidationError that
// names the rule and carries the offending keys. A failure always aborts the run.
package validation

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/aristath/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// maxTicketExamples limits how many tickets a non-numeric week error lists.
const maxTicketExamples = 5

// NonEmpty fails when a required table has no rows.
func NonEmpty(table string, rows int) error {
	if rows > 0 {
		return nil
	}
	return domain.NewValidationError(domain.RuleNonEmpty, []string{table}, "table %q is empty", table)
}

// UniqueKeys fails when a join key appears more than once. Offending keys are sorted.
func UniqueKeys(table string, keys []string) error {
	seen := make(map[string]int, len(keys))
	for _, k := range keys {
		seen[k]++
	}

	var duplicates []string
	for k, n := range seen {
		if n > 1 {
			duplicates = append(duplicates, k)
		}
	}
	if len(duplicates) == 0 {
		return nil
	}

	sort.Strings(duplicates)
	return domain.NewValidationError(domain.RuleDuplicateKeys, duplicates, "duplicate join keys in %s", table)
}

// WeeksPriced fails when a (week, group) cell with positive commercial weight has no reference price.
func WeeksPriced(weights []domain.GroupedWeight, refs []domain.ReferencePrice) error {
	priced := make(map[string]bool, len(refs))
	for _, r := range refs {
		priced[cellKey(r.Week, r.Group)] = true
	}

	missing := make(map[string]bool)
	for _, w := range weights {
		if !w.Kg.IsPositive() {
			continue
		}
		key := cellKey(w.Week, w.Group)
		if !priced[key] {
			missing[key] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return domain.NewValidationError(domain.RuleWeeksPriced, keys, "weeks with commercial kilograms but no reference price")
}

// ReferenceWeek fails when no week is shared by the reference table and the commercial weights.
func ReferenceWeek(found bool) error {
	if found {
		return nil
	}
	return domain.NewValidationError(domain.RuleReferenceWeek, nil,
		"no reference week: reference prices and commercial kilograms share no week")
}

// PositiveReference fails when the top-group base price of the reference week is missing or not positive.
func PositiveReference(week int, price decimal.Decimal, found bool) error {
	if found && price.IsPositive() {
		return nil
	}
	return domain.NewValidationError(domain.RulePositiveReference, []string{strconv.Itoa(week)},
		"reference week %d is invalid: %s price is %s", week, domain.GroupTop, describe(price, found))
}

// PositiveBase fails when the relative-weighted base is not strictly positive.
func PositiveBase(base decimal.Decimal) error {
	if base.IsPositive() {
		return nil
	}
	return domain.NewValidationError(domain.RulePositiveBase, nil,
		"campaign weighted base is %s, the allocation coefficient is undefined", base.String())
}

// PositiveTarget fails when there is no revenue left to allocate after deductions.
func PositiveTarget(net decimal.Decimal) error {
	if net.IsPositive() {
		return nil
	}
	return domain.NewValidationError(domain.RulePositiveTarget, nil,
		"net allocation target is %s after bonus, other funds and reject revenue", net.String())
}

// Ratio fails unless the grade II ratio lies in (0, 1].
func Ratio(ratio decimal.Decimal) error {
	if ratio.IsPositive() && ratio.LessThanOrEqual(decimal.NewFromInt(1)) {
		return nil
	}
	return domain.NewValidationError(domain.RuleRatio, []string{ratio.String()},
		"grade II ratio must be greater than 0 and at most 1")
}

// GradeOrdering fails when any grade II price exceeds the grade I price of the same (week, group).
func GradeOrdering(prices []domain.FinalPrice) error {
	gradeI := make(map[string]decimal.Decimal)
	for _, p := range prices {
		if p.Grade == domain.GradeI {
			gradeI[cellKey(p.Week, p.Group)] = p.Price
		}
	}

	var offending []string
	for _, p := range prices {
		if p.Grade != domain.GradeII {
			continue
		}
		top, ok := gradeI[cellKey(p.Week, p.Group)]
		if ok && p.Price.GreaterThan(top) {
			offending = append(offending, fmt.Sprintf("%s II=%s > I=%s", cellKey(p.Week, p.Group), p.Price, top))
		}
	}
	if len(offending) == 0 {
		return nil
	}
	sort.Strings(offending)
	return domain.NewValidationError(domain.RuleGradeOrdering, offending, "grade II price above grade I")
}

// Reconciliation compares reconstructed revenue against the target and returns the absolute mismatch.
// It fails when the mismatch exceeds tolerance.
func Reconciliation(recon, target, tolerance decimal.Decimal) (decimal.Decimal, error) {
	mismatch := recon.Sub(target).Abs()
	if mismatch.GreaterThan(tolerance) {
		return mismatch, domain.NewValidationError(domain.RuleReconciliation, nil,
			"mismatch above tolerance: recon=%s target=%s mismatch=%s tolerance=%s",
			recon.String(), target.String(), mismatch.String(), tolerance.String())
	}
	return mismatch, nil
}

// NumericWeeks fails when some delivery tickets carry a period code that is not a number.
// Only the first few tickets are listed.
func NumericWeeks(invalidTickets []string) error {
	if len(invalidTickets) == 0 {
		return nil
	}
	examples := invalidTickets
	if len(examples) > maxTicketExamples {
		examples = examples[:maxTicketExamples]
	}
	return domain.NewValidationError(domain.RuleNumericWeek, examples,
		"%d tickets have a non-numeric period code, cannot derive week", len(invalidTickets))
}

func cellKey(week int, group domain.Group) string {
	return fmt.Sprintf("week %d/%s", week, group)
}

func describe(price decimal.Decimal, found bool) string {
	if !found {
		return "missing"
	}
	return price.String()
}
