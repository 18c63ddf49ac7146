package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: "0"},
		{name: "whitespace", input: "   ", expected: "0"},
		{name: "plain", input: "1234.56", expected: "1234.56"},
		{name: "european decimal", input: "0,1", expected: "0.1"},
		{name: "european thousands", input: "1.234,56", expected: "1234.56"},
		{name: "thousands only", input: "1.234.567", expected: "1234567"},
		{name: "negative", input: "-0,03", expected: "-0.03"},
		{name: "inner spaces", input: " 12 345,5 ", expected: "12345.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(got), "got %s", got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("abc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
}

func TestFromAny(t *testing.T) {
	cases := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"nil", nil, "0"},
		{"int64", int64(20), "20"},
		{"float keeps shortest form", 0.1, "0.1"},
		{"bytes european", []byte("2,5"), "2.5"},
		{"string", "7", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromAny(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.String())
		})
	}
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, "2.4750", RoundHalfUp(MustParse("2.47495"), 4).StringFixed(4))
	assert.Equal(t, "0.13", RoundHalfUp(MustParse("0.125"), 2).StringFixed(2))
	assert.Equal(t, "-0.13", RoundHalfUp(MustParse("-0.125"), 2).StringFixed(2))
}

func TestDiv_KeepsFullScale(t *testing.T) {
	got := Div(decimal.NewFromInt(1), decimal.NewFromInt(3))
	assert.Equal(t, int32(-DivisionScale), got.Exponent())
	assert.True(t, got.Mul(decimal.NewFromInt(3)).Sub(decimal.NewFromInt(1)).Abs().LessThan(MustParse("0.0000000000000000000001")))
}

func TestFormatComma(t *testing.T) {
	assert.Equal(t, "4,9500", FormatComma(MustParse("4.95"), 4))
	assert.Equal(t, "1234,57", FormatComma(MustParse("1234.565"), 2))
}

func TestSum(t *testing.T) {
	assert.True(t, Sum(MustParse("1.5"), MustParse("2.25"), MustParse("-0.75")).Equal(MustParse("3")))
	assert.True(t, Sum().IsZero())
}
