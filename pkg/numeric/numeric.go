// Package numeric provides decimal parsing and rounding helpers shared by the settlement packages.
package numeric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DivisionScale is the number of fractional digits kept by every division in the engine.
// Rounding to presentation scales happens once, when final prices are emitted.
const DivisionScale int32 = 28

// Zero is the decimal zero value.
var Zero = decimal.Zero

// Div divides a by b at DivisionScale, rounding half away from zero on the last digit.
// The caller must ensure b is not zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, DivisionScale)
}

// RoundHalfUp rounds v to the given number of fractional digits.
// Ties round away from zero, which matches commercial half-up rounding for positive amounts.
func RoundHalfUp(v decimal.Decimal, places int32) decimal.Decimal {
	return v.Round(places)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Parse converts a numeric text into a decimal.
// Accepts plain notation ("1234.56") and European notation ("1.234,56", "0,1").
// Empty or whitespace-only input parses as zero.
func Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, " ", "")

	if strings.Contains(s, ",") {
		// European notation: dots group thousands, comma separates decimals
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if strings.Count(s, ".") > 1 {
		// "1.234.567" only makes sense as thousands grouping
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot convert %q to decimal: %w", raw, err)
	}
	return d, nil
}

// MustParse is Parse for literals known to be valid. It panics on malformed input.
func MustParse(raw string) decimal.Decimal {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// FromAny converts a value scanned from a database column into a decimal.
// NULL, empty strings and NaN become zero.
func FromAny(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return val, nil
	case int64:
		return decimal.NewFromInt(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, nil
		}
		// Go through the shortest textual form so 0.1 stays 0.1
		return decimal.NewFromString(strconv.FormatFloat(val, 'f', -1, 64))
	case []byte:
		return Parse(string(val))
	case string:
		return Parse(val)
	default:
		return Parse(fmt.Sprint(val))
	}
}

// FormatComma renders v with a fixed number of fractional digits and a comma decimal separator.
func FormatComma(v decimal.Decimal, places int32) string {
	return strings.Replace(RoundHalfUp(v, places).StringFixed(places), ".", ",", 1)
}
