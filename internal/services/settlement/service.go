// Package settlement orchestrates one settlement run: load the source tables, map calibers,
// compute the certification fund, normalize reference prices, allocate and export.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/settlement/internal/diagnostics"
	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/allocation"
	"github.com/aristath/settlement/internal/modules/calibers"
	"github.com/aristath/settlement/internal/modules/certification"
	"github.com/aristath/settlement/internal/modules/export"
	"github.com/aristath/settlement/internal/modules/reference"
	"github.com/aristath/settlement/internal/modules/report"
	"github.com/aristath/settlement/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Source provides the operational tables of a campaign.
// extraction.Repository is the production implementation.
type Source interface {
	Weights(ctx context.Context, scope domain.CampaignScope) ([]domain.WeightRecord, error)
	Correspondences(ctx context.Context) ([]domain.CaliberCorrespondence, error)
	Certifications(ctx context.Context) ([]domain.CertificationRecord, error)
	QualityIndex(ctx context.Context) ([]domain.QualityIndex, error)
	BonusRates(ctx context.Context, scope domain.CampaignScope) ([]domain.BonusRate, error)
}

// Parameters configures one run.
type Parameters struct {
	Scope      domain.CampaignScope
	Allocation allocation.Params

	AcceptedLabel string
	Mode          certification.Mode

	// ReferencePath is the reference price file; Reference, when set, is used instead.
	ReferencePath string
	Reference     *reference.Source
}

// Outcome is everything a successful run produced.
type Outcome struct {
	RunID      string                       `json:"run_id"`
	Scope      domain.CampaignScope         `json:"scope"`
	Prices     []domain.FinalPrice          `json:"prices"`
	Factors    []domain.RelativeReference   `json:"factors"`
	Metrics    domain.ReconciliationMetrics `json:"metrics"`
	Summary    []domain.WeeklySummary       `json:"summary"`
	Fund       *certification.FundResult    `json:"fund"`
	Mapping    []domain.CaliberMapping      `json:"mapping"`
	Unmapped   []domain.UnmappedCaliber     `json:"unmapped"`
	Dispersion []report.PriceStats          `json:"dispersion"`
	Files      export.Files                 `json:"files,omitempty"`
	Duration   time.Duration                `json:"duration"`
}

// Report builds the operator digest of the outcome.
func (o *Outcome) Report() report.Summary {
	return report.Summary{
		Scope:      o.Scope,
		Metrics:    o.Metrics,
		FundTotal:  o.Fund.Total,
		Certified:  len(o.Fund.Rows),
		Exceptions: len(o.Fund.Exceptions),
		Prices:     len(o.Prices),
		Dispersion: o.Dispersion,
	}
}

// Bundle converts the outcome into the exported tables.
func (o *Outcome) Bundle() export.Bundle {
	return export.Bundle{
		Scope:      o.Scope,
		Prices:     o.Prices,
		Funds:      o.Fund.Rows,
		FundTotal:  o.Fund.Total,
		Exceptions: o.Fund.Exceptions,
		Unmapped:   o.Unmapped,
		Summary:    o.Summary,
		Metrics:    o.Metrics,
	}
}

// Service runs settlements against a source.
type Service struct {
	source Source
	sink   domain.DiagnosticSink
	writer *export.Writer
	ledger *export.LedgerWriter
	log    zerolog.Logger
}

// NewService creates a settlement service. A nil sink discards diagnostics.
func NewService(source Source, sink domain.DiagnosticSink, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		sink:   diagnostics.OrNop(sink),
		log:    log.With().Str("service", "settlement").Logger(),
	}
}

// SetWriter enables file export after each successful run.
func (s *Service) SetWriter(w *export.Writer) {
	s.writer = w
}

// SetLedger enables recording each successful run in the ledger.
func (s *Service) SetLedger(l *export.LedgerWriter) {
	s.ledger = l
}

type inputs struct {
	weights         []domain.WeightRecord
	correspondences []domain.CaliberCorrespondence
	certifications  []domain.CertificationRecord
	qualityIndex    []domain.QualityIndex
	bonusRates      []domain.BonusRate
	reference       reference.Source
}

// Run executes one settlement. Any failure aborts the whole run; nothing is exported
// or recorded unless every stage succeeded.
func (s *Service) Run(ctx context.Context, runID string, params Parameters) (*Outcome, error) {
	start := time.Now()
	log := s.log.With().Str("run_id", runID).Int("campaign", params.Scope.Campaign).Logger()
	log.Info().Str("company", params.Scope.Company).Str("crop", params.Scope.Crop).Msg("Starting settlement run")

	loaded := utils.StageTimer("load", log)
	in, err := s.load(ctx, params)
	if err != nil {
		return nil, err
	}
	loaded()

	mapping, unmapped, err := calibers.BuildMapping(in.correspondences)
	if err != nil {
		return nil, fmt.Errorf("caliber mapping: %w", err)
	}
	s.sink.Report("calibers.mapping", mapping.Rows())
	s.sink.Report("calibers.unmapped", unmapped)
	if len(unmapped) > 0 {
		log.Warn().Int("rows", len(unmapped)).Msg("Caliber correspondences without a usable label")
	}

	grouped, err := calibers.GroupWeights(in.weights, mapping)
	if err != nil {
		return nil, err
	}
	s.sink.Report("calibers.grouped", grouped)

	allocator, err := certification.NewAllocator(certification.Config{
		AcceptedLabel: params.AcceptedLabel,
		Mode:          params.Mode,
		Scope:         params.Scope,
	}, s.sink, log)
	if err != nil {
		return nil, err
	}
	fund, err := allocator.Allocate(certification.Input{
		Weights:        in.weights,
		Certifications: in.certifications,
		QualityIndex:   in.qualityIndex,
		BonusRates:     in.bonusRates,
	})
	if err != nil {
		return nil, fmt.Errorf("certification fund: %w", err)
	}

	refs, err := reference.Normalize(in.reference)
	if err != nil {
		return nil, fmt.Errorf("reference prices: %w", err)
	}
	s.sink.Report("reference.prices", refs)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocated := utils.StageTimer("allocation", log)
	engine, err := allocation.NewEngine(params.Allocation, s.sink, log)
	if err != nil {
		return nil, err
	}
	result, err := engine.Compute(allocation.Input{
		Weights:   in.weights,
		Grouped:   grouped,
		Reference: refs,
		BonusFund: fund.Total,
	})
	if err != nil {
		return nil, err
	}
	allocated()

	outcome := &Outcome{
		RunID:      runID,
		Scope:      params.Scope,
		Prices:     result.Prices,
		Factors:    result.Factors,
		Metrics:    result.Metrics,
		Summary:    result.Summary,
		Fund:       fund,
		Mapping:    mapping.Rows(),
		Unmapped:   unmapped,
		Dispersion: report.Dispersion(result.Prices, grouped),
	}

	if s.writer != nil {
		done := utils.StageTimer("export", log)
		files, err := s.writer.WriteAll(outcome.Bundle())
		if err != nil {
			return nil, err
		}
		outcome.Files = files
		done()
	}
	if s.ledger != nil {
		id, err := s.ledger.Record(ctx, runID, outcome.Bundle())
		if err != nil {
			return nil, err
		}
		outcome.RunID = id
	}

	outcome.Duration = time.Since(start)
	log.Info().
		Str("coefficient", result.Metrics.Coefficient.String()).
		Str("mismatch", result.Metrics.Mismatch.String()).
		Int("prices", len(result.Prices)).
		Dur("duration", outcome.Duration).
		Msg("Settlement run completed")
	return outcome, nil
}

// load reads the independent source tables concurrently. The first failure cancels the rest.
func (s *Service) load(ctx context.Context, params Parameters) (*inputs, error) {
	in := &inputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := s.source.Weights(gctx, params.Scope)
		if err != nil {
			return fmt.Errorf("load weights: %w", err)
		}
		in.weights = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.source.Correspondences(gctx)
		if err != nil {
			return fmt.Errorf("load caliber correspondences: %w", err)
		}
		in.correspondences = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.source.Certifications(gctx)
		if err != nil {
			return fmt.Errorf("load certifications: %w", err)
		}
		in.certifications = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.source.QualityIndex(gctx)
		if err != nil {
			return fmt.Errorf("load quality index: %w", err)
		}
		in.qualityIndex = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.source.BonusRates(gctx, params.Scope)
		if err != nil {
			return fmt.Errorf("load bonus rates: %w", err)
		}
		in.bonusRates = rows
		return nil
	})
	g.Go(func() error {
		if params.Reference != nil {
			in.reference = *params.Reference
			return nil
		}
		if params.ReferencePath == "" {
			return fmt.Errorf("no reference price source configured")
		}
		src, err := reference.LoadFile(params.ReferencePath)
		if err != nil {
			return fmt.Errorf("load reference prices: %w", err)
		}
		in.reference = src
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Debug().
		Int("tickets", len(in.weights)).
		Int("correspondences", len(in.correspondences)).
		Int("certifications", len(in.certifications)).
		Str("reference_format", string(in.reference.Format)).
		Msg("Loaded settlement inputs")
	return in, nil
}
