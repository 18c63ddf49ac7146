package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticFunc(t *testing.T) {
	var stages []string
	var sink DiagnosticSink = DiagnosticFunc(func(stage string, table interface{}) {
		stages = append(stages, stage)
	})

	sink.Report("calibers.grouped", []GroupedWeight{})
	sink.Report("allocation.factors", nil)

	assert.Equal(t, []string{"calibers.grouped", "allocation.factors"}, stages)
}
