// Package calibers translates per-size weight columns into commercial groups and grades.
package calibers

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/validation"
	"github.com/aristath/settlement/internal/utils"
	"github.com/shopspring/decimal"
)

// Unmapped reasons
const (
	ReasonEmptyLabel       = "empty_label"
	ReasonUnparseableLabel = "unparseable_label"
)

// labelPattern matches "{group}{grade}" economic labels such as "AAA 1ª", "AA2A" or "A II".
var labelPattern = regexp.MustCompile(`^(AAA|AA|A)\s*(1ª|1A|1º|1|I|2ª|2A|2º|2|II)$`)

// Mapping is the caliber code to (group, grade) table of one run.
type Mapping struct {
	byCode map[string]domain.CaliberMapping
}

// BuildMapping parses the correspondence table.
// Rows whose label cannot be parsed are returned as unmapped audit rows; they only become fatal
// later, if the caliber carries weight (see Check).
func BuildMapping(rows []domain.CaliberCorrespondence) (*Mapping, []domain.UnmappedCaliber, error) {
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, utils.NormalizeCaliberCode(row.Code))
	}
	if err := validation.UniqueKeys("caliber correspondence", codes); err != nil {
		return nil, nil, err
	}

	m := &Mapping{byCode: make(map[string]domain.CaliberMapping, len(rows))}
	var unmapped []domain.UnmappedCaliber

	for i, row := range rows {
		code := codes[i]
		label := utils.NormalizeLabel(row.Label)
		if label == "" {
			unmapped = append(unmapped, domain.UnmappedCaliber{Code: code, Label: row.Label, Reason: ReasonEmptyLabel})
			continue
		}

		group, grade, ok := ParseLabel(label)
		if !ok {
			unmapped = append(unmapped, domain.UnmappedCaliber{Code: code, Label: row.Label, Reason: ReasonUnparseableLabel})
			continue
		}
		m.byCode[code] = domain.CaliberMapping{Code: code, Group: group, Grade: grade}
	}

	if len(m.byCode) == 0 {
		return nil, unmapped, &domain.MappingError{
			Message: "empty caliber mapping: no correspondence label parses as AAA/AA/A with grade I/II",
		}
	}

	sort.Slice(unmapped, func(i, j int) bool { return codeLess(unmapped[i].Code, unmapped[j].Code) })
	return m, unmapped, nil
}

// ParseLabel extracts group and grade from a normalized economic label.
func ParseLabel(label string) (domain.Group, domain.Grade, bool) {
	match := labelPattern.FindStringSubmatch(utils.NormalizeLabel(label))
	if match == nil {
		return "", "", false
	}

	grade := domain.GradeI
	if strings.HasPrefix(match[2], "2") || match[2] == "II" {
		grade = domain.GradeII
	}
	return domain.Group(match[1]), grade, true
}

// Lookup returns the mapping of a caliber code. The code is normalized first.
func (m *Mapping) Lookup(code string) (domain.CaliberMapping, bool) {
	row, ok := m.byCode[utils.NormalizeCaliberCode(code)]
	return row, ok
}

// Len returns the number of mapped calibers.
func (m *Mapping) Len() int {
	return len(m.byCode)
}

// Rows returns the mapping rows ordered by caliber number.
func (m *Mapping) Rows() []domain.CaliberMapping {
	rows := make([]domain.CaliberMapping, 0, len(m.byCode))
	for _, row := range m.byCode {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return codeLess(rows[i].Code, rows[j].Code) })
	return rows
}

// Check fails with a MappingError listing every caliber that carries kilograms but has no mapping.
// Calibers whose column is present with zero weight do not count.
func (m *Mapping) Check(weights []domain.WeightRecord) error {
	missing := make(map[string]bool)
	for _, w := range weights {
		for code, kg := range w.Calibers {
			if kg.IsZero() {
				continue
			}
			if _, ok := m.Lookup(code); !ok {
				missing[utils.NormalizeCaliberCode(code)] = true
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	codes := make([]string, 0, len(missing))
	for code := range missing {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codeLess(codes[i], codes[j]) })
	return &domain.MappingError{Codes: codes, Message: "calibers with kilograms but no commercial mapping"}
}

// GroupWeights sums commercial kilograms per (week, group, grade).
// Cells without positive weight are dropped. Output is sorted by week, group rank and grade.
func GroupWeights(weights []domain.WeightRecord, m *Mapping) ([]domain.GroupedWeight, error) {
	if err := m.Check(weights); err != nil {
		return nil, err
	}

	type cell struct {
		week  int
		group domain.Group
		grade domain.Grade
	}
	totals := make(map[cell]decimal.Decimal)
	for _, w := range weights {
		for code, kg := range w.Calibers {
			row, ok := m.Lookup(code)
			if !ok {
				continue
			}
			c := cell{week: w.Week, group: row.Group, grade: row.Grade}
			totals[c] = totals[c].Add(kg)
		}
	}

	grouped := make([]domain.GroupedWeight, 0, len(totals))
	for c, kg := range totals {
		if !kg.IsPositive() {
			continue
		}
		grouped = append(grouped, domain.GroupedWeight{Week: c.week, Group: c.group, Grade: c.grade, Kg: kg})
	}

	sort.Slice(grouped, func(i, j int) bool {
		a, b := grouped[i], grouped[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.Group != b.Group {
			return a.Group.Rank() < b.Group.Rank()
		}
		return a.Grade < b.Grade
	})
	return grouped, nil
}

// codeLess orders caliber codes by their numeric suffix so c2 sorts before c10.
func codeLess(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimLeft(a, "abcdefghijklmnopqrstuvwxyz"))
	nb, errB := strconv.Atoi(strings.TrimLeft(b, "abcdefghijklmnopqrstuvwxyz"))
	if errA == nil && errB == nil && na != nb {
		return na < nb
	}
	return a < b
}
