// Package reference turns a weekly reference price source into one base price per (week, group).
package reference

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/validation"
	"github.com/aristath/settlement/pkg/numeric"
	"github.com/shopspring/decimal"
)

// Format identifies the shape of a reference price source.
type Format string

const (
	// FormatAggregated is already one row per (week, group, price)
	FormatAggregated Format = "aggregated"
	// FormatSubGrade is one row per (week, sub_grade, kg, value)
	FormatSubGrade Format = "subgrade"
	// FormatWide is a spreadsheet with one row per week and kg/value columns per sub-grade
	FormatWide Format = "wide"
)

// SubGrades lists the reference sub-grades in grouping order.
var SubGrades = []string{"2/3", "4", "5", "6", "7/8", "9/10"}

// subGradeGroups is the static sub-grade to commercial group table.
var subGradeGroups = map[string]domain.Group{
	"2/3":  domain.GroupTop,
	"4":    domain.GroupMid,
	"5":    domain.GroupMid,
	"6":    domain.GroupLow,
	"7/8":  domain.GroupLow,
	"9/10": domain.GroupLow,
}

var weekPattern = regexp.MustCompile(`(\d{1,2})(?:\s*-\s*\d{1,2})?`)

// WideTable is a raw spreadsheet: a header row plus data rows of text cells.
type WideTable struct {
	Header []string
	Rows   [][]string
}

// Source is a reference price source in one of the supported formats.
// Only the payload matching Format is read.
type Source struct {
	Format     Format
	Aggregated []domain.ReferencePrice
	SubGrades  []domain.SubGradePrice
	Wide       *WideTable
}

// GroupOf returns the commercial group a sub-grade belongs to.
func GroupOf(subGrade string) (domain.Group, bool) {
	g, ok := subGradeGroups[normalizeSubGrade(subGrade)]
	return g, ok
}

// ParseWeek extracts the week number from cells like "12" or "12 - 13".
func ParseWeek(cell string) (int, bool) {
	match := weekPattern.FindStringSubmatch(cell)
	if match == nil {
		return 0, false
	}
	week, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return week, true
}

// Normalize converts a source into base prices sorted by week and group rank.
func Normalize(src Source) ([]domain.ReferencePrice, error) {
	switch src.Format {
	case FormatAggregated:
		return normalizeAggregated(src.Aggregated)
	case FormatSubGrade:
		return averageSubGrades(src.SubGrades)
	case FormatWide:
		if src.Wide == nil {
			return nil, validation.NonEmpty("reference wide table", 0)
		}
		rows, err := ParseWide(*src.Wide)
		if err != nil {
			return nil, err
		}
		return averageSubGrades(rows)
	default:
		return nil, fmt.Errorf("unknown reference source format %q", src.Format)
	}
}

func normalizeAggregated(rows []domain.ReferencePrice) ([]domain.ReferencePrice, error) {
	if err := validation.NonEmpty("reference prices", len(rows)); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(rows))
	var unknown []string
	for _, r := range rows {
		keys = append(keys, fmt.Sprintf("week %d/%s", r.Week, r.Group))
		if !r.Group.Valid() {
			unknown = append(unknown, string(r.Group))
		}
	}
	if len(unknown) > 0 {
		return nil, domain.NewValidationError(domain.RuleParameters, unknown, "unknown commercial groups in reference prices")
	}
	if err := validation.UniqueKeys("reference prices", keys); err != nil {
		return nil, err
	}

	out := append([]domain.ReferencePrice(nil), rows...)
	sortPrices(out)
	return out, nil
}

// averageSubGrades collapses sub-grade rows into group prices.
// A group with one sub-grade takes its price; several sub-grades are kg-weighted, zero total kg gives 0.
// Sub-grades outside the static table are ignored.
func averageSubGrades(rows []domain.SubGradePrice) ([]domain.ReferencePrice, error) {
	type entry struct {
		kg    decimal.Decimal
		value decimal.Decimal
	}

	byWeek := make(map[int]map[string]entry)
	var keys []string
	for _, r := range rows {
		sub := normalizeSubGrade(r.SubGrade)
		if _, ok := subGradeGroups[sub]; !ok {
			continue
		}
		if byWeek[r.Week] == nil {
			byWeek[r.Week] = make(map[string]entry)
		}
		byWeek[r.Week][sub] = entry{kg: r.Kg, value: r.Value}
		keys = append(keys, fmt.Sprintf("week %d/%s", r.Week, sub))
	}
	if err := validation.NonEmpty("reference sub-grade rows", len(keys)); err != nil {
		return nil, err
	}
	if err := validation.UniqueKeys("reference sub-grade rows", keys); err != nil {
		return nil, err
	}

	var out []domain.ReferencePrice
	for week, subs := range byWeek {
		for _, group := range domain.Groups {
			members := subGradesOf(group)
			var price decimal.Decimal
			if len(members) == 1 {
				price = subs[members[0]].value
			} else {
				totalKg, weighted := decimal.Zero, decimal.Zero
				for _, sub := range members {
					e := subs[sub]
					totalKg = totalKg.Add(e.kg)
					weighted = weighted.Add(e.kg.Mul(e.value))
				}
				price = decimal.Zero
				if totalKg.IsPositive() {
					price = numeric.Div(weighted, totalKg)
				}
			}
			out = append(out, domain.ReferencePrice{Week: week, Group: group, BasePrice: price})
		}
	}

	sortPrices(out)
	return out, nil
}

// ParseWide reads a wide reference spreadsheet into sub-grade rows.
// The week column is the first header containing "semana"; rows without a parsable week are skipped.
func ParseWide(table WideTable) ([]domain.SubGradePrice, error) {
	weekCol := -1
	for i, h := range table.Header {
		if strings.Contains(strings.ToLower(h), "semana") {
			weekCol = i
			break
		}
	}
	if weekCol < 0 {
		return nil, fmt.Errorf("reference table has no week (semana) column")
	}

	type columns struct{ kg, value int }
	cols := make(map[string]columns, len(SubGrades))
	for _, sub := range SubGrades {
		c := columns{kg: -1, value: -1}
		for i, h := range table.Header {
			tokens := headerTokens(h)
			if !tokens[sub] {
				continue
			}
			if tokens["kg"] && c.kg < 0 {
				c.kg = i
			}
			if tokens["valor"] && c.value < 0 {
				c.value = i
			}
		}
		if c.kg < 0 || c.value < 0 {
			return nil, fmt.Errorf("reference table has no kg/valor columns for sub-grade %s", sub)
		}
		cols[sub] = c
	}

	var out []domain.SubGradePrice
	for n, row := range table.Rows {
		week, ok := ParseWeek(cell(row, weekCol))
		if !ok {
			continue
		}
		for _, sub := range SubGrades {
			kg, err := numeric.Parse(cell(row, cols[sub].kg))
			if err != nil {
				return nil, fmt.Errorf("row %d, sub-grade %s kg: %w", n+2, sub, err)
			}
			value, err := numeric.Parse(cell(row, cols[sub].value))
			if err != nil {
				return nil, fmt.Errorf("row %d, sub-grade %s value: %w", n+2, sub, err)
			}
			out = append(out, domain.SubGradePrice{Week: week, SubGrade: sub, Kg: kg, Value: value})
		}
	}
	return out, nil
}

func subGradesOf(group domain.Group) []string {
	var members []string
	for _, sub := range SubGrades {
		if subGradeGroups[sub] == group {
			members = append(members, sub)
		}
	}
	return members
}

func normalizeSubGrade(s string) string {
	return strings.Join(strings.Fields(s), "")
}

var tokenSplit = regexp.MustCompile(`[^0-9a-z/]+`)

func headerTokens(h string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range tokenSplit.Split(strings.ToLower(h), -1) {
		if t != "" {
			tokens[t] = true
		}
	}
	return tokens
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func sortPrices(prices []domain.ReferencePrice) {
	sort.Slice(prices, func(i, j int) bool {
		if prices[i].Week != prices[j].Week {
			return prices[i].Week < prices[j].Week
		}
		return prices[i].Group.Rank() < prices[j].Group.Rank()
	})
}
