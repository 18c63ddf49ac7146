// Package report summarizes a finished settlement for operators: price dispersion across
// weeks and the headline reconciliation figures.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/aristath/settlement/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PriceStats describes how the price of one (group, grade) moved across the campaign.
// Mean and StdDev are weighted by the kilograms delivered each week.
type PriceStats struct {
	Group     domain.Group `json:"group"`
	Grade     domain.Grade `json:"grade"`
	Weeks     int          `json:"weeks"`
	Kg        float64      `json:"kg"`
	Min       float64      `json:"min"`
	Max       float64      `json:"max"`
	Median    float64      `json:"median"`
	Mean      float64      `json:"mean"`
	StdDev    float64      `json:"std_dev"`
	Variation float64      `json:"variation"` // StdDev / Mean
}

// Dispersion computes price statistics per (group, grade) over the weeks with kilograms.
// Weeks without deliveries carry a price but no weight and are left out.
func Dispersion(prices []domain.FinalPrice, grouped []domain.GroupedWeight) []PriceStats {
	type key struct {
		group domain.Group
		grade domain.Grade
		week  int
	}
	kg := make(map[key]decimal.Decimal, len(grouped))
	for _, g := range grouped {
		k := key{g.Group, g.Grade, g.Week}
		kg[k] = kg[k].Add(g.Kg)
	}

	type series struct {
		x, w []float64
	}
	bySeries := make(map[key]*series)
	for _, p := range prices {
		weight, ok := kg[key{p.Group, p.Grade, p.Week}]
		if !ok || !weight.IsPositive() {
			continue
		}
		sk := key{group: p.Group, grade: p.Grade}
		s, ok := bySeries[sk]
		if !ok {
			s = &series{}
			bySeries[sk] = s
		}
		s.x = append(s.x, p.Price.InexactFloat64())
		s.w = append(s.w, weight.InexactFloat64())
	}

	out := make([]PriceStats, 0, len(bySeries))
	for sk, s := range bySeries {
		mean, std := stat.MeanStdDev(s.x, s.w)
		if len(s.x) < 2 || math.IsNaN(std) {
			std = 0
		}

		sorted := make([]float64, len(s.x))
		copy(sorted, s.x)
		sort.Float64s(sorted)

		ps := PriceStats{
			Group:  sk.group,
			Grade:  sk.grade,
			Weeks:  len(s.x),
			Kg:     floats.Sum(s.w),
			Min:    sorted[0],
			Max:    sorted[len(sorted)-1],
			Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
			Mean:   mean,
			StdDev: std,
		}
		if mean != 0 {
			ps.Variation = std / mean
		}
		out = append(out, ps)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group.Rank() < out[j].Group.Rank()
		}
		return out[i].Grade < out[j].Grade
	})
	return out
}

// Summary is the operator-facing digest of a run.
type Summary struct {
	Scope      domain.CampaignScope         `json:"scope"`
	Metrics    domain.ReconciliationMetrics `json:"metrics"`
	FundTotal  decimal.Decimal              `json:"fund_total"`
	Certified  int                          `json:"certified"`
	Exceptions int                          `json:"exceptions"`
	Prices     int                          `json:"prices"`
	Dispersion []PriceStats                 `json:"dispersion"`
}

// Render writes a plain text digest of the run.
func Render(w io.Writer, s Summary) error {
	m := s.Metrics
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Campaign\t%d %s %s\n", s.Scope.Campaign, s.Scope.Company, s.Scope.Crop)
	fmt.Fprintf(tw, "Gross revenue\t%s\n", m.GrossRevenue.StringFixed(2))
	fmt.Fprintf(tw, "Other funds\t%s\n", m.OtherFunds.StringFixed(2))
	fmt.Fprintf(tw, "Certification fund\t%s\t(%d certified, %d exceptions)\n", s.FundTotal.StringFixed(2), s.Certified, s.Exceptions)
	fmt.Fprintf(tw, "Reject revenue\t%s\n", m.RejectRevenue.StringFixed(2))
	fmt.Fprintf(tw, "Net target\t%s\n", m.NetTarget.StringFixed(2))
	fmt.Fprintf(tw, "Commercial kg\t%s\t(%d weeks)\n", m.TotalCommercialKg.StringFixed(2), m.WeeksWithKg)
	fmt.Fprintf(tw, "Reference week\t%d\n", m.ReferenceWeek)
	fmt.Fprintf(tw, "Coefficient\t%s\n", m.Coefficient.StringFixed(6))
	fmt.Fprintf(tw, "Mismatch\t%s\t(from prices: %s)\n", m.Mismatch.StringFixed(4), m.RoundingResidual.StringFixed(4))
	fmt.Fprintf(tw, "Prices emitted\t%d\n", s.Prices)

	if len(s.Dispersion) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Group\tGrade\tWeeks\tMin\tMedian\tMax\tMean\tCV")
		for _, d := range s.Dispersion {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f%%\n",
				d.Group, d.Grade, d.Weeks, d.Min, d.Median, d.Max, d.Mean, d.Variation*100)
		}
	}
	return tw.Flush()
}
