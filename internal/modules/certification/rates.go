package certification

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/validation"
	"github.com/aristath/settlement/internal/utils"
)

// flatKey is how the flat base rate shows up in duplicate-key reports.
const flatKey = "(flat)"

// RateTable resolves the effective euro-per-kilogram bonus of a quality level.
// A level-keyed rate wins; otherwise the flat base rate is scaled by the level's index.
type RateTable struct {
	flat    *decimal.Decimal
	byLevel map[string]decimal.Decimal
	index   map[string]decimal.Decimal
}

// NewRateTable validates both tables as join preconditions and builds the resolver.
func NewRateTable(rates []domain.BonusRate, indices []domain.QualityIndex) (*RateTable, error) {
	if err := validation.NonEmpty("bonus rates", len(rates)); err != nil {
		return nil, err
	}

	rateKeys := make([]string, 0, len(rates))
	for _, r := range rates {
		key := utils.NormalizeLabel(r.Level)
		if key == "" {
			key = flatKey
		}
		rateKeys = append(rateKeys, key)
	}
	if err := validation.UniqueKeys("bonus rates", rateKeys); err != nil {
		return nil, err
	}

	indexKeys := make([]string, 0, len(indices))
	for _, q := range indices {
		indexKeys = append(indexKeys, utils.NormalizeLabel(q.Level))
	}
	if err := validation.UniqueKeys("quality index", indexKeys); err != nil {
		return nil, err
	}

	t := &RateTable{
		byLevel: make(map[string]decimal.Decimal),
		index:   make(map[string]decimal.Decimal, len(indices)),
	}
	for i, r := range rates {
		if rateKeys[i] == flatKey {
			flat := r.Rate
			t.flat = &flat
			continue
		}
		t.byLevel[rateKeys[i]] = r.Rate
	}
	for i, q := range indices {
		t.index[indexKeys[i]] = q.Index
	}
	return t, nil
}

// Resolve returns the effective rate and the index of a level.
// ok is false when neither a level-keyed rate nor (flat rate and index) exist.
func (t *RateTable) Resolve(level string) (rate, index decimal.Decimal, ok bool) {
	key := utils.NormalizeLabel(level)
	index, hasIndex := t.index[key]

	if r, found := t.byLevel[key]; found {
		return r, index, true
	}
	if t.flat != nil && hasIndex {
		return t.flat.Mul(index), index, true
	}
	return decimal.Zero, index, false
}
