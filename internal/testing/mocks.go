package testing

import (
	"context"
	"sync"

	"github.com/aristath/settlement/internal/domain"
)

// MockSource is an in-memory settlement source.
// It serves the tables set on it and counts calls per table.
type MockSource struct {
	mu              sync.RWMutex
	weights         []domain.WeightRecord
	correspondences []domain.CaliberCorrespondence
	certifications  []domain.CertificationRecord
	qualityIndex    []domain.QualityIndex
	bonusRates      []domain.BonusRate
	errs            map[string]error
	calls           map[string]int
	scopes          []domain.CampaignScope
}

// NewMockSource creates a mock source
func NewMockSource() *MockSource {
	return &MockSource{
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// NewTwoGrowerSource returns a mock source preloaded with the two-grower campaign.
func NewTwoGrowerSource() *MockSource {
	m := NewMockSource()
	m.SetWeights(TwoGrowerWeights())
	m.SetCorrespondences(TwoGrowerCorrespondences())
	m.SetCertifications(TwoGrowerCertifications())
	m.SetQualityIndex(TwoGrowerQualityIndex())
	m.SetBonusRates(TwoGrowerBonusRates())
	return m
}

// SetWeights sets the deliveries to return
func (m *MockSource) SetWeights(rows []domain.WeightRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = rows
}

// SetCorrespondences sets the caliber correspondences to return
func (m *MockSource) SetCorrespondences(rows []domain.CaliberCorrespondence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correspondences = rows
}

// SetCertifications sets the certification rows to return
func (m *MockSource) SetCertifications(rows []domain.CertificationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certifications = rows
}

// SetQualityIndex sets the quality index table to return
func (m *MockSource) SetQualityIndex(rows []domain.QualityIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qualityIndex = rows
}

// SetBonusRates sets the bonus rates to return
func (m *MockSource) SetBonusRates(rows []domain.BonusRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bonusRates = rows
}

// SetError makes reads of one table ("weights", "correspondences", "certifications",
// "quality_index", "bonus_rates") fail with err.
func (m *MockSource) SetError(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[table] = err
}

// Calls returns how many times a table was read.
func (m *MockSource) Calls(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[table]
}

// Scopes returns the campaign scopes passed to scoped reads.
func (m *MockSource) Scopes() []domain.CampaignScope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CampaignScope, len(m.scopes))
	copy(out, m.scopes)
	return out
}

func (m *MockSource) record(ctx context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[table]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.errs[table]
}

// Weights returns the configured deliveries
func (m *MockSource) Weights(ctx context.Context, scope domain.CampaignScope) ([]domain.WeightRecord, error) {
	if err := m.record(ctx, "weights"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = append(m.scopes, scope)
	return m.weights, nil
}

// Correspondences returns the configured caliber correspondences
func (m *MockSource) Correspondences(ctx context.Context) ([]domain.CaliberCorrespondence, error) {
	if err := m.record(ctx, "correspondences"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.correspondences, nil
}

// Certifications returns the configured certification rows
func (m *MockSource) Certifications(ctx context.Context) ([]domain.CertificationRecord, error) {
	if err := m.record(ctx, "certifications"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.certifications, nil
}

// QualityIndex returns the configured quality index table
func (m *MockSource) QualityIndex(ctx context.Context) ([]domain.QualityIndex, error) {
	if err := m.record(ctx, "quality_index"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qualityIndex, nil
}

// BonusRates returns the configured bonus rates
func (m *MockSource) BonusRates(ctx context.Context, scope domain.CampaignScope) ([]domain.BonusRate, error) {
	if err := m.record(ctx, "bonus_rates"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = append(m.scopes, scope)
	return m.bonusRates, nil
}

// RecordingSink is a DiagnosticSink that keeps every reported table.
type RecordingSink struct {
	mu     sync.Mutex
	stages []string
	tables map[string]interface{}
}

// NewRecordingSink creates an empty recording sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{tables: make(map[string]interface{})}
}

// Report records the table under its stage. A later report of the same stage replaces it.
func (s *RecordingSink) Report(stage string, table interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
	s.tables[stage] = table
}

// Stages returns the reported stage names in order.
func (s *RecordingSink) Stages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.stages))
	copy(out, s.stages)
	return out
}

// Table returns the last table reported under stage.
func (s *RecordingSink) Table(stage string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.tables[stage]
	return table, ok
}
