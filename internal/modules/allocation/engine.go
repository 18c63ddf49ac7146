// Package allocation turns reference prices and commercial weights into final settlement prices.
//
// The engine derives a relative factor per (week, group, grade) from the reference week's top
// group price, computes one global coefficient that spreads the net campaign revenue over the
// relative-weighted kilograms, and proves the result by reconstructing the revenue target.
// Intermediate values keep full decimal precision; only factors (FactorScale) and emitted
// prices (PriceScale) are rounded.
package allocation

import (
	"fmt"
	"sort"

	"github.com/aristath/settlement/internal/diagnostics"
	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/validation"
	"github.com/aristath/settlement/internal/utils"
	"github.com/aristath/settlement/pkg/numeric"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Defaults
const (
	DefaultFactorScale int32 = 4
	DefaultPriceScale  int32 = 4
)

// DefaultTolerance is the accepted absolute reconciliation mismatch, in currency units.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Params are the economic parameters of one campaign.
type Params struct {
	GrossRevenue decimal.Decimal
	OtherFunds   decimal.Decimal
	GradeIIRatio decimal.Decimal
	// RejectPrices is the flat price per reject category (deslinea, desmesa, podrido)
	RejectPrices map[string]decimal.Decimal
	// GrowerRejectPrices overrides RejectPrices per grower and category
	GrowerRejectPrices map[string]map[string]decimal.Decimal
	Tolerance          decimal.Decimal
	FactorScale        int32
	PriceScale         int32
}

// Input is what the engine consumes for one run.
type Input struct {
	// Weights feed reject revenue; commercial weight comes from Grouped
	Weights   []domain.WeightRecord
	Grouped   []domain.GroupedWeight
	Reference []domain.ReferencePrice
	BonusFund decimal.Decimal
}

// Result is the engine output.
type Result struct {
	Prices  []domain.FinalPrice          `json:"prices"`
	Factors []domain.RelativeReference   `json:"factors"`
	Metrics domain.ReconciliationMetrics `json:"metrics"`
	Summary []domain.WeeklySummary       `json:"summary"`
}

// Engine computes final prices. It holds no state between runs.
type Engine struct {
	params Params
	sink   domain.DiagnosticSink
	log    zerolog.Logger
}

// NewEngine validates params and creates an engine.
// Zero scales and tolerance fall back to the defaults.
func NewEngine(params Params, sink domain.DiagnosticSink, log zerolog.Logger) (*Engine, error) {
	if err := validation.Ratio(params.GradeIIRatio); err != nil {
		return nil, err
	}
	if params.FactorScale == 0 {
		params.FactorScale = DefaultFactorScale
	}
	if params.PriceScale == 0 {
		params.PriceScale = DefaultPriceScale
	}
	if params.Tolerance.IsZero() {
		params.Tolerance = DefaultTolerance
	}
	if params.Tolerance.IsNegative() {
		return nil, domain.NewValidationError(domain.RuleParameters, []string{params.Tolerance.String()},
			"reconciliation tolerance cannot be negative")
	}
	for _, scale := range []int32{params.FactorScale, params.PriceScale} {
		if scale < 0 || scale > numeric.DivisionScale {
			return nil, domain.NewValidationError(domain.RuleParameters, []string{fmt.Sprint(scale)},
				"rounding scale must be between 0 and %d", numeric.DivisionScale)
		}
	}

	return &Engine{
		params: params,
		sink:   diagnostics.OrNop(sink),
		log:    log.With().Str("component", "allocation").Logger(),
	}, nil
}

// Params returns the effective parameters after defaults.
func (e *Engine) Params() Params {
	return e.params
}

// Compute runs the allocation. Every invariant failure aborts with a *domain.ValidationError.
func (e *Engine) Compute(in Input) (*Result, error) {
	if !hasCommercialKg(in.Grouped) {
		return nil, validation.PositiveBase(decimal.Zero)
	}
	if err := validation.WeeksPriced(in.Grouped, in.Reference); err != nil {
		return nil, err
	}

	refWeek, found := ReferenceWeek(in.Reference, in.Grouped)
	if err := validation.ReferenceWeek(found); err != nil {
		return nil, err
	}

	refBase, found := basePrice(in.Reference, refWeek, domain.GroupTop)
	if err := validation.PositiveReference(refWeek, refBase, found); err != nil {
		return nil, err
	}

	factors := e.relativeFactors(in.Reference, refBase)
	e.sink.Report("allocation.factors", factors)

	rejectRevenue, err := e.rejectRevenue(in.Weights)
	if err != nil {
		return nil, err
	}

	factorOf := make(map[cell]decimal.Decimal, len(factors))
	for _, f := range factors {
		factorOf[cell{f.Week, f.Group, f.Grade}] = f.Factor
	}

	totalKg := decimal.Zero
	weightedBase := decimal.Zero
	weeks := make(map[int]bool)
	for _, w := range in.Grouped {
		totalKg = totalKg.Add(w.Kg)
		weightedBase = weightedBase.Add(w.Kg.Mul(factorOf[cell{w.Week, w.Group, w.Grade}]))
		if w.Kg.IsPositive() {
			weeks[w.Week] = true
		}
	}

	target := e.params.GrossRevenue.Sub(in.BonusFund).Sub(e.params.OtherFunds)
	netTarget := target.Sub(rejectRevenue)

	if err := validation.PositiveBase(weightedBase); err != nil {
		return nil, err
	}
	if err := validation.PositiveTarget(netTarget); err != nil {
		return nil, err
	}

	coefficient := numeric.Div(netTarget, weightedBase)

	prices := make([]domain.FinalPrice, 0, len(factors))
	priceOf := make(map[cell]decimal.Decimal, len(factors))
	for _, f := range factors {
		price := numeric.RoundHalfUp(f.Factor.Mul(coefficient), e.params.PriceScale)
		prices = append(prices, domain.FinalPrice{Week: f.Week, Group: f.Group, Grade: f.Grade, Price: price})
		priceOf[cell{f.Week, f.Group, f.Grade}] = price
	}
	e.sink.Report("allocation.prices", prices)

	if err := validation.GradeOrdering(prices); err != nil {
		return nil, err
	}

	reconstructed := rejectRevenue
	fromPrices := rejectRevenue
	for _, w := range in.Grouped {
		c := cell{w.Week, w.Group, w.Grade}
		reconstructed = reconstructed.Add(w.Kg.Mul(factorOf[c]).Mul(coefficient))
		fromPrices = fromPrices.Add(w.Kg.Mul(priceOf[c]))
	}

	metrics := domain.ReconciliationMetrics{
		GrossRevenue:            e.params.GrossRevenue,
		OtherFunds:              e.params.OtherFunds,
		TotalCommercialKg:       totalKg,
		RejectRevenue:           rejectRevenue,
		BonusFund:               in.BonusFund,
		NetTarget:               netTarget,
		WeightedBase:            weightedBase,
		Coefficient:             coefficient,
		ReferenceWeek:           refWeek,
		WeeksWithKg:             len(weeks),
		Reconstructed:           reconstructed,
		Target:                  target,
		ReconstructedFromPrices: fromPrices,
		RoundingResidual:        fromPrices.Sub(target),
	}

	mismatch, err := validation.Reconciliation(reconstructed, target, e.params.Tolerance)
	metrics.Mismatch = mismatch
	e.sink.Report("allocation.metrics", metrics)
	if err != nil {
		return nil, err
	}

	if metrics.RoundingResidual.Abs().GreaterThan(e.params.Tolerance) {
		e.log.Warn().
			Str("residual", metrics.RoundingResidual.String()).
			Msg("Revenue rebuilt from rounded prices is outside tolerance")
	}

	e.log.Info().
		Int("reference_week", refWeek).
		Str("weighted_base", weightedBase.String()).
		Str("net_target", netTarget.String()).
		Str("coefficient", coefficient.String()).
		Str("mismatch", mismatch.String()).
		Msg("Prices allocated")

	return &Result{
		Prices:  prices,
		Factors: factors,
		Metrics: metrics,
		Summary: WeeklySummaries(in.Grouped, prices, coefficient, refWeek),
	}, nil
}

// cell identifies one (week, group, grade).
type cell struct {
	week  int
	group domain.Group
	grade domain.Grade
}

// ReferenceWeek returns the smallest week present both in the reference table and with
// positive commercial weight.
func ReferenceWeek(refs []domain.ReferencePrice, grouped []domain.GroupedWeight) (int, bool) {
	withKg := make(map[int]bool)
	for _, w := range grouped {
		if w.Kg.IsPositive() {
			withKg[w.Week] = true
		}
	}

	weeks := make([]int, 0, len(refs))
	for _, r := range refs {
		weeks = append(weeks, r.Week)
	}
	sort.Ints(weeks)
	for _, week := range weeks {
		if withKg[week] {
			return week, true
		}
	}
	return 0, false
}

func hasCommercialKg(grouped []domain.GroupedWeight) bool {
	for _, w := range grouped {
		if w.Kg.IsPositive() {
			return true
		}
	}
	return false
}

func basePrice(refs []domain.ReferencePrice, week int, group domain.Group) (decimal.Decimal, bool) {
	for _, r := range refs {
		if r.Week == week && r.Group == group {
			return r.BasePrice, true
		}
	}
	return decimal.Zero, false
}

// relativeFactors emits grade I and II factors for every reference row, sorted.
func (e *Engine) relativeFactors(refs []domain.ReferencePrice, refBase decimal.Decimal) []domain.RelativeReference {
	factors := make([]domain.RelativeReference, 0, 2*len(refs))
	for _, r := range refs {
		gradeI := numeric.RoundHalfUp(numeric.Div(r.BasePrice, refBase), e.params.FactorScale)
		factors = append(factors,
			domain.RelativeReference{Week: r.Week, Group: r.Group, Grade: domain.GradeI, Factor: gradeI},
			domain.RelativeReference{Week: r.Week, Group: r.Group, Grade: domain.GradeII, Factor: gradeI.Mul(e.params.GradeIIRatio)},
		)
	}
	sort.Slice(factors, func(i, j int) bool {
		a, b := factors[i], factors[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.Group != b.Group {
			return a.Group.Rank() < b.Group.Rank()
		}
		return a.Grade < b.Grade
	})
	return factors
}

// rejectRevenue sums kilograms times the reject price of each category, honoring grower overrides.
// A category carrying kilograms without any price is a parameter error.
func (e *Engine) rejectRevenue(weights []domain.WeightRecord) (decimal.Decimal, error) {
	total := decimal.Zero
	unpriced := make(map[string]bool)
	for _, w := range weights {
		overrides := e.params.GrowerRejectPrices[utils.NormalizeKey(w.GrowerID)]
		for category, kg := range w.Rejects {
			if kg.IsZero() {
				continue
			}
			price, ok := overrides[category]
			if !ok {
				price, ok = e.params.RejectPrices[category]
			}
			if !ok {
				unpriced[category] = true
				continue
			}
			total = total.Add(kg.Mul(price))
		}
	}

	if len(unpriced) > 0 {
		categories := make([]string, 0, len(unpriced))
		for c := range unpriced {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		return decimal.Zero, domain.NewValidationError(domain.RuleParameters, categories,
			"reject categories with kilograms but no price")
	}
	return total, nil
}
