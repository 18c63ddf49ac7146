package domain

import (
	"fmt"
	"strings"
)

// maxKeysInMessage caps how many offending keys are spelled out in an error message.
// The full list stays available in the Keys field.
const maxKeysInMessage = 20

// MappingError reports caliber codes that cannot be translated to a commercial group and grade.
// A settlement run cannot continue past it.
type MappingError struct {
	Codes   []string
	Message string
}

func (e *MappingError) Error() string {
	if len(e.Codes) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, joinKeys(e.Codes))
}

// Validation rules. Each names the invariant a ValidationError reports.
const (
	RuleNonEmpty          = "non_empty"
	RuleDuplicateKeys     = "duplicate_keys"
	RuleWeeksPriced       = "weeks_priced"
	RuleReferenceWeek     = "reference_week"
	RulePositiveReference = "positive_reference"
	RulePositiveBase      = "positive_base"
	RulePositiveTarget    = "positive_target"
	RuleGradeOrdering     = "grade_ordering"
	RuleReconciliation    = "reconciliation"
	RuleRatio             = "grade_ratio"
	RuleNumericWeek       = "numeric_week"
	RuleParameters        = "parameters"
)

// ValidationError is an invariant violation detected at a stage boundary.
// Keys carries the offending keys or values so the caller can show them verbatim.
type ValidationError struct {
	Rule    string
	Message string
	Keys    []string
}

func (e *ValidationError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("%s: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Rule, e.Message, joinKeys(e.Keys))
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(rule string, keys []string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
		Keys:    keys,
	}
}

func joinKeys(keys []string) string {
	if len(keys) <= maxKeysInMessage {
		return strings.Join(keys, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(keys[:maxKeysInMessage], ", "), len(keys)-maxKeysInMessage)
}
