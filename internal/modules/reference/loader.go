package reference

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/pkg/numeric"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadFile reads a reference price CSV and detects its format from the header:
// "semana,grupo_anecop,kg,valor_fruta" is sub-grade, "semana,grupo,precio" is aggregated,
// anything else with a week column is read as a wide table.
// The field separator (';' or ',') is detected from the header line.
func LoadFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to open reference file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load reads a reference price CSV from r. See LoadFile.
func Load(r io.Reader) (Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read reference file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectSeparator(string(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Source{}, fmt.Errorf("failed to read reference header: %w", err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return Source{}, fmt.Errorf("failed to read reference rows: %w", err)
	}

	index := mapHeaders(header)
	switch {
	case hasHeaders(index, "semana", "grupo_anecop", "kg", "valor_fruta"):
		rows, err := parseSubGradeRows(records, index)
		if err != nil {
			return Source{}, err
		}
		return Source{Format: FormatSubGrade, SubGrades: rows}, nil
	case hasHeaders(index, "semana", "grupo", "precio"):
		rows, err := parseAggregatedRows(records, index)
		if err != nil {
			return Source{}, err
		}
		return Source{Format: FormatAggregated, Aggregated: rows}, nil
	default:
		return Source{Format: FormatWide, Wide: &WideTable{Header: header, Rows: records}}, nil
	}
}

func parseSubGradeRows(records [][]string, index map[string]int) ([]domain.SubGradePrice, error) {
	var rows []domain.SubGradePrice
	var invalid []string
	for n, record := range records {
		line := n + 2
		if isBlank(record) {
			continue
		}
		week, ok := parseIntWeek(cell(record, index["semana"]))
		if !ok {
			invalid = append(invalid, fmt.Sprintf("line %d", line))
			continue
		}
		kg, err := numeric.Parse(cell(record, index["kg"]))
		if err != nil {
			return nil, fmt.Errorf("line %d kg: %w", line, err)
		}
		value, err := numeric.Parse(cell(record, index["valor_fruta"]))
		if err != nil {
			return nil, fmt.Errorf("line %d valor_fruta: %w", line, err)
		}
		rows = append(rows, domain.SubGradePrice{
			Week:     week,
			SubGrade: strings.TrimSpace(cell(record, index["grupo_anecop"])),
			Kg:       kg,
			Value:    value,
		})
	}
	if len(invalid) > 0 {
		return nil, domain.NewValidationError(domain.RuleNumericWeek, invalid, "reference file contains invalid weeks")
	}
	return rows, nil
}

func parseAggregatedRows(records [][]string, index map[string]int) ([]domain.ReferencePrice, error) {
	var rows []domain.ReferencePrice
	var invalid []string
	for n, record := range records {
		line := n + 2
		if isBlank(record) {
			continue
		}
		week, ok := parseIntWeek(cell(record, index["semana"]))
		if !ok {
			invalid = append(invalid, fmt.Sprintf("line %d", line))
			continue
		}
		price, err := numeric.Parse(cell(record, index["precio"]))
		if err != nil {
			return nil, fmt.Errorf("line %d precio: %w", line, err)
		}
		rows = append(rows, domain.ReferencePrice{
			Week:      week,
			Group:     domain.Group(strings.ToUpper(strings.TrimSpace(cell(record, index["grupo"])))),
			BasePrice: price,
		})
	}
	if len(invalid) > 0 {
		return nil, domain.NewValidationError(domain.RuleNumericWeek, invalid, "reference file contains invalid weeks")
	}
	return rows, nil
}

// parseIntWeek accepts whole-number week cells only; normalized files carry no ranges.
func parseIntWeek(s string) (int, bool) {
	s = strings.TrimSpace(s)
	week, ok := ParseWeek(s)
	if !ok || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	return week, true
}

func mapHeaders(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	return index
}

func hasHeaders(index map[string]int, names ...string) bool {
	for _, name := range names {
		if _, ok := index[name]; !ok {
			return false
		}
	}
	return true
}

func detectSeparator(content string) rune {
	headerLine := content
	if i := strings.IndexByte(headerLine, '\n'); i >= 0 {
		headerLine = headerLine[:i]
	}
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
