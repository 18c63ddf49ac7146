package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Slow thresholds. A stage or query slower than these is logged at warn level.
const (
	SlowStage = 30 * time.Second
	SlowQuery = 5 * time.Second
)

// StageTimer measures one stage of a settlement run.
//
// Usage:
//
//	done := utils.StageTimer("allocation", log)
//	defer done()
func StageTimer(stage string, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		event := log.Debug()
		if duration > SlowStage {
			event = log.Warn()
		}
		event.
			Str("stage", stage).
			Dur("duration_ms", duration).
			Msg("Stage completed")
		return duration
	}
}

// MeasureQuery measures a source query. The returned func takes the number of rows read.
func MeasureQuery(query string, log zerolog.Logger) func(rows int) {
	start := time.Now()

	return func(rows int) {
		duration := time.Since(start)

		event := log.Debug()
		if duration > SlowQuery {
			event = log.Warn()
		}
		event.
			Str("query", query).
			Dur("duration_ms", duration).
			Int("rows", rows).
			Msg("Source query completed")
	}
}
