// Package certification computes the certification bonus fund deducted before price allocation.
package certification

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/settlement/internal/diagnostics"
	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultAcceptedLabel is the certification label that qualifies for the bonus.
const DefaultAcceptedLabel = "GLOBAL GAP"

// Config configures an Allocator.
type Config struct {
	AcceptedLabel string
	Mode          Mode
	Scope         domain.CampaignScope
}

// Input is one run's certification inputs.
type Input struct {
	Weights        []domain.WeightRecord
	Certifications []domain.CertificationRecord
	QualityIndex   []domain.QualityIndex
	BonusRates     []domain.BonusRate
}

// FundResult is the bonus fund of a run with its audit trail.
type FundResult struct {
	Total      decimal.Decimal         `json:"total"`
	Mode       Mode                    `json:"mode"`
	Rows       []domain.FundRow        `json:"rows"`
	Exceptions []domain.AuditException `json:"exceptions"`
}

// Allocator computes the certification bonus fund.
type Allocator struct {
	accepted string
	strategy KeyStrategy
	scope    domain.CampaignScope
	sink     domain.DiagnosticSink
	log      zerolog.Logger
}

// NewAllocator creates an allocator. An empty accepted label means DefaultAcceptedLabel.
func NewAllocator(cfg Config, sink domain.DiagnosticSink, log zerolog.Logger) (*Allocator, error) {
	strategy, err := StrategyFor(cfg.Mode)
	if err != nil {
		return nil, err
	}
	accepted := cfg.AcceptedLabel
	if strings.TrimSpace(accepted) == "" {
		accepted = DefaultAcceptedLabel
	}
	return &Allocator{
		accepted: utils.CompactUpper(accepted),
		strategy: strategy,
		scope:    cfg.Scope,
		sink:     diagnostics.OrNop(sink),
		log:      log.With().Str("component", "certification").Logger(),
	}, nil
}

// keyWeight is the commercial weight aggregated at one key.
type keyWeight struct {
	key    string
	grower string
	kg     decimal.Decimal
}

// resolved is the single certification status of a key.
type resolved struct {
	label      string
	level      string
	labels     []string
	levelCount map[string]int
	levels     []string
}

// Allocate resolves certification per key, filters to the accepted label and sums
// commercial kilograms times the effective rate. Exclusions are returned as audit
// exceptions; only broken join preconditions are errors.
func (a *Allocator) Allocate(in Input) (*FundResult, error) {
	rates, err := NewRateTable(in.BonusRates, in.QualityIndex)
	if err != nil {
		return nil, err
	}

	weights := a.aggregate(in.Weights)
	certs := a.resolveAll(in.Certifications)

	result := &FundResult{Total: decimal.Zero, Mode: a.strategy.Mode()}
	for _, w := range weights {
		exception := func(reason, detail string) {
			result.Exceptions = append(result.Exceptions, domain.AuditException{
				Key: w.key, GrowerID: w.grower, Reason: reason, Detail: detail,
			})
		}

		c, ok := certs[w.key]
		if !ok {
			exception(domain.ReasonMissingCertification, "no certification rows")
			continue
		}
		if len(c.labels) > 1 {
			exception(domain.ReasonInconsistentCertification,
				fmt.Sprintf("labels %s, using %q", strings.Join(c.labels, " | "), c.label))
		}
		if len(c.levels) > 1 {
			exception(domain.ReasonInconsistentLevel,
				fmt.Sprintf("levels %s, using %q", describeLevels(c), c.level))
		}

		if c.label == "" {
			exception(domain.ReasonMissingCertification, "empty certification label")
			continue
		}
		if utils.CompactUpper(c.label) != a.accepted {
			exception(domain.ReasonNotCertified, fmt.Sprintf("label %q", c.label))
			continue
		}
		if c.level == "" {
			exception(domain.ReasonMissingLevel, "certified without quality level")
			continue
		}

		rate, index, ok := rates.Resolve(c.level)
		if !ok {
			exception(domain.ReasonLevelWithoutIndex, fmt.Sprintf("level %q has no rate or index", c.level))
			continue
		}

		fund := w.kg.Mul(rate)
		result.Rows = append(result.Rows, domain.FundRow{
			Key:      w.key,
			GrowerID: w.grower,
			Kg:       w.kg,
			Level:    c.level,
			Index:    index,
			Rate:     rate,
			Fund:     fund,
		})
		result.Total = result.Total.Add(fund)
	}

	a.sink.Report("certification.funds", result.Rows)
	a.sink.Report("certification.exceptions", result.Exceptions)

	a.log.Info().
		Str("mode", string(result.Mode)).
		Int("keys", len(weights)).
		Int("funded", len(result.Rows)).
		Int("exceptions", len(result.Exceptions)).
		Str("total", result.Total.String()).
		Msg("Certification bonus fund computed")

	return result, nil
}

// aggregate sums commercial kilograms per key. Keys come back sorted.
func (a *Allocator) aggregate(records []domain.WeightRecord) []keyWeight {
	byKey := make(map[string]*keyWeight)
	for _, w := range records {
		key := a.strategy.WeightKey(w)
		kw, ok := byKey[key]
		if !ok {
			kw = &keyWeight{key: key, grower: utils.NormalizeKey(w.GrowerID), kg: decimal.Zero}
			byKey[key] = kw
		}
		kw.kg = kw.kg.Add(w.CommercialKg())
	}

	out := make([]keyWeight, 0, len(byKey))
	for _, kw := range byKey {
		out = append(out, *kw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// resolveAll collapses the in-scope certification rows of each key.
// Label is the first non-empty value; level is the most frequent non-empty value,
// ties going to the one seen first.
func (a *Allocator) resolveAll(rows []domain.CertificationRecord) map[string]*resolved {
	out := make(map[string]*resolved)
	ignored := 0
	for _, row := range rows {
		if !a.scope.Matches(row) {
			ignored++
			continue
		}
		key := a.strategy.CertificationKey(row)
		r, ok := out[key]
		if !ok {
			r = &resolved{levelCount: make(map[string]int)}
			out[key] = r
		}

		if label := utils.NormalizeKey(row.Label); label != "" {
			if r.label == "" {
				r.label = label
			}
			if !containsCompact(r.labels, label) {
				r.labels = append(r.labels, label)
			}
		}

		if level := utils.NormalizeLabel(row.Level); level != "" {
			if r.levelCount[level] == 0 {
				r.levels = append(r.levels, level)
			}
			r.levelCount[level]++
		}
	}

	for _, r := range out {
		best := 0
		for _, level := range r.levels {
			if r.levelCount[level] > best {
				best = r.levelCount[level]
				r.level = level
			}
		}
	}

	if ignored > 0 {
		a.log.Debug().Int("rows", ignored).Msg("Certification rows outside campaign scope ignored")
	}
	return out
}

func containsCompact(values []string, v string) bool {
	for _, existing := range values {
		if utils.CompactUpper(existing) == utils.CompactUpper(v) {
			return true
		}
	}
	return false
}

func describeLevels(r *resolved) string {
	parts := make([]string, 0, len(r.levels))
	for _, level := range r.levels {
		parts = append(parts, fmt.Sprintf("%s=%d", level, r.levelCount[level]))
	}
	return strings.Join(parts, ", ")
}
