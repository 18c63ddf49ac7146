package checks

import (
	"context"
	"fmt"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/services/settlement"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Expected outcome of the two-grower campaign
var (
	expectedFund        = decimal.NewFromInt(1)
	expectedCoefficient = decimal.RequireFromString("4.95")
	expectedTopI        = decimal.RequireFromString("4.95")
	expectedTopII       = decimal.RequireFromString("2.475")
	gradeTolerance      = decimal.RequireFromString("0.0001")
)

// Check is one verified property of the outcome.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of the two-grower run with its checks.
type Result struct {
	Outcome *settlement.Outcome `json:"outcome"`
	Checks  []Check             `json:"checks"`
}

// Passed reports whether every check passed.
func (r *Result) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Run settles the two-grower campaign and verifies the outcome.
// A run error is returned as is; failed checks are reported in the result.
func Run(ctx context.Context, sink domain.DiagnosticSink, log zerolog.Logger) (*Result, error) {
	svc := settlement.NewService(Source{}, sink, log)
	outcome, err := svc.Run(ctx, "checks", Parameters())
	if err != nil {
		return nil, fmt.Errorf("two-grower run failed: %w", err)
	}
	return Verify(outcome), nil
}

// Verify checks the outcome of a two-grower run.
func Verify(o *settlement.Outcome) *Result {
	r := &Result{Outcome: o}
	add := func(name string, passed bool, format string, args ...interface{}) {
		r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: fmt.Sprintf(format, args...)})
	}

	add("bonus_fund", o.Fund.Total.Equal(expectedFund),
		"fund %s, want %s", o.Fund.Total, expectedFund)

	notCertified := len(o.Fund.Exceptions) == 1 &&
		o.Fund.Exceptions[0].GrowerID == "B" &&
		o.Fund.Exceptions[0].Reason == domain.ReasonNotCertified
	add("exceptions", notCertified, "%d exceptions, want grower B not certified", len(o.Fund.Exceptions))

	add("coefficient", o.Metrics.Coefficient.Equal(expectedCoefficient),
		"coefficient %s, want %s", o.Metrics.Coefficient, expectedCoefficient)
	add("reconciliation", o.Metrics.Mismatch.Abs().LessThanOrEqual(decimal.RequireFromString("0.01")),
		"mismatch %s", o.Metrics.Mismatch)

	prices := make(map[domain.Group]map[domain.Grade]decimal.Decimal)
	for _, p := range o.Prices {
		if prices[p.Group] == nil {
			prices[p.Group] = make(map[domain.Grade]decimal.Decimal)
		}
		prices[p.Group][p.Grade] = p.Price
	}
	add("prices", len(o.Prices) == len(domain.Groups)*len(domain.Grades),
		"%d prices, want %d", len(o.Prices), len(domain.Groups)*len(domain.Grades))

	topI, topII := prices[domain.GroupTop][domain.GradeI], prices[domain.GroupTop][domain.GradeII]
	add("top_grade_i", topI.Equal(expectedTopI), "AAA I %s, want %s", topI, expectedTopI)
	add("top_grade_ii", topII.Equal(expectedTopII), "AAA II %s, want %s", topII, expectedTopII)

	ratio := Parameters().Allocation.GradeIIRatio
	for _, g := range domain.Groups {
		i, ii := prices[g][domain.GradeI], prices[g][domain.GradeII]
		diff := ii.Sub(i.Mul(ratio)).Abs()
		add("grade_ratio_"+string(g), diff.LessThanOrEqual(gradeTolerance),
			"%s II %s vs I %s x %s", g, ii, i, ratio)
	}

	ordered := true
	for k := 1; k < len(domain.Groups); k++ {
		upper := prices[domain.Groups[k-1]][domain.GradeI]
		lower := prices[domain.Groups[k]][domain.GradeI]
		if lower.GreaterThan(upper) {
			ordered = false
		}
	}
	add("group_ordering", ordered, "grade I prices non-increasing from %s to %s", domain.GroupTop, domain.GroupLow)

	return r
}
