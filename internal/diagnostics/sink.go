// Package diagnostics provides DiagnosticSink implementations for intermediate run tables.
package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/aristath/settlement/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Nop discards every report.
type Nop struct{}

// Report does nothing.
func (Nop) Report(string, interface{}) {}

// OrNop returns sink, or Nop when sink is nil.
func OrNop(sink domain.DiagnosticSink) domain.DiagnosticSink {
	if sink == nil {
		return Nop{}
	}
	return sink
}

// LogSink logs the stage name and row count of each report at debug level.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "diagnostics").Logger()}
}

// Report logs one table.
func (s *LogSink) Report(stage string, table interface{}) {
	s.log.Debug().Str("stage", stage).Int("rows", rowCount(table)).Msg("Intermediate table")
}

// Record is one entry of a diagnostics file.
type Record struct {
	RunID string      `msgpack:"run_id"`
	Stage string      `msgpack:"stage"`
	At    time.Time   `msgpack:"at"`
	Rows  int         `msgpack:"rows"`
	Table interface{} `msgpack:"table"`
}

// FileSink appends msgpack-encoded records to a file, one per report.
// Encoding failures are logged, never returned: diagnostics must not change a run's outcome.
type FileSink struct {
	mu    sync.Mutex
	runID string
	f     *os.File
	enc   *msgpack.Encoder
	log   zerolog.Logger
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path, runID string, log zerolog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics file: %w", err)
	}

	return &FileSink{
		runID: runID,
		f:     f,
		enc:   msgpack.NewEncoder(f),
		log:   log.With().Str("component", "diagnostics").Str("file", path).Logger(),
	}, nil
}

// Report appends one record.
func (s *FileSink) Report(stage string, table interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{RunID: s.runID, Stage: stage, At: time.Now().UTC(), Rows: rowCount(table), Table: table}
	if err := s.enc.Encode(&rec); err != nil {
		s.log.Warn().Err(err).Str("stage", stage).Msg("Failed to write diagnostics record")
	}
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadRecords decodes every record from r. Tables decode into generic maps and slices.
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := msgpack.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("failed to decode diagnostics record: %w", err)
		}
		records = append(records, rec)
	}
}

// Multi fans reports out to several sinks.
type Multi []domain.DiagnosticSink

// Report forwards to every sink.
func (m Multi) Report(stage string, table interface{}) {
	for _, s := range m {
		s.Report(stage, table)
	}
}

func rowCount(table interface{}) int {
	if table == nil {
		return 0
	}
	v := reflect.ValueOf(table)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len()
	default:
		return 1
	}
}
