package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "http://localhost:5173",
			expected: []string{"http://localhost:5173"},
		},
		{
			name:     "varied spacing",
			input:    "a.example,  b.example , c.example",
			expected: []string{"a.example", "b.example", "c.example"},
		},
		{
			name:     "only commas",
			input:    " , ,",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "S1", NormalizeKey("  S1 "))
	assert.Equal(t, "B 12", NormalizeKey("B\t  12"))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "AAA 1ª", NormalizeLabel("  aaa   1ª "))
}

func TestCompactUpper(t *testing.T) {
	assert.Equal(t, "GLOBALGAP", CompactUpper(" global gap "))
	assert.Equal(t, "GLOBALGAP", CompactUpper("GLOBAL\tGAP"))
	assert.Equal(t, "OTRA", CompactUpper("otra"))
}

func TestNormalizeCaliberCode(t *testing.T) {
	tests := map[string]string{
		"Cal0":  "c0",
		"CAL11": "c11",
		" c3 ":  "c3",
		"cal 4": "c4",
		"x9":    "x9",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, NormalizeCaliberCode(input), "input %q", input)
	}
}
