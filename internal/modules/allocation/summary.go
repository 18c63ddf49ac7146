package allocation

import (
	"sort"

	"github.com/aristath/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// WeeklySummaries builds one row per week with commercial kilograms: total kilograms,
// the grade I price of each group, the global coefficient and the reference week.
func WeeklySummaries(grouped []domain.GroupedWeight, prices []domain.FinalPrice, coefficient decimal.Decimal, refWeek int) []domain.WeeklySummary {
	kgByWeek := make(map[int]decimal.Decimal)
	for _, w := range grouped {
		if !w.Kg.IsPositive() {
			continue
		}
		kgByWeek[w.Week] = kgByWeek[w.Week].Add(w.Kg)
	}

	gradeI := make(map[int]map[domain.Group]decimal.Decimal)
	for _, p := range prices {
		if p.Grade != domain.GradeI {
			continue
		}
		if gradeI[p.Week] == nil {
			gradeI[p.Week] = make(map[domain.Group]decimal.Decimal)
		}
		gradeI[p.Week][p.Group] = p.Price
	}

	summaries := make([]domain.WeeklySummary, 0, len(kgByWeek))
	for week, kg := range kgByWeek {
		weekPrices := gradeI[week]
		if weekPrices == nil {
			weekPrices = make(map[domain.Group]decimal.Decimal)
		}
		summaries = append(summaries, domain.WeeklySummary{
			Week:          week,
			CommercialKg:  kg,
			GradeIPrices:  weekPrices,
			Coefficient:   coefficient,
			ReferenceWeek: refWeek,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Week < summaries[j].Week })
	return summaries
}
