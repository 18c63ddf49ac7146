package domain

// DiagnosticSink receives intermediate tables produced while a run progresses.
// Implementations must not affect the computation.
type DiagnosticSink interface {
	// Report records one intermediate table under a stage name (e.g. "allocation.factors")
	Report(stage string, table interface{})
}

// DiagnosticFunc adapts a plain function to DiagnosticSink.
type DiagnosticFunc func(stage string, table interface{})

// Report calls f(stage, table).
func (f DiagnosticFunc) Report(stage string, table interface{}) {
	f(stage, table)
}
