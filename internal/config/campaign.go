package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/allocation"
	"github.com/aristath/settlement/internal/modules/certification"
	"github.com/aristath/settlement/internal/modules/export"
	"github.com/aristath/settlement/internal/services/settlement"
	"github.com/aristath/settlement/pkg/numeric"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Amount is a decimal read from YAML. Plain numbers and European notation strings
// ("1.234,56") are both accepted, so values can be pasted from the cooperative's sheets.
type Amount struct {
	Value decimal.Decimal
	Set   bool
}

// UnmarshalYAML implements yaml.Unmarshaler
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	if node.Tag == "!!null" {
		return nil
	}
	d, err := numeric.Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	a.Value = d
	a.Set = true
	return nil
}

// CampaignFile is the YAML description of one settlement run.
type CampaignFile struct {
	Campaign           int                          `yaml:"campaign"`
	Company            string                       `yaml:"company"`
	Crop               string                       `yaml:"crop"`
	GrossRevenue       Amount                       `yaml:"gross_revenue"`
	OtherFunds         Amount                       `yaml:"other_funds"`
	GradeIIRatio       Amount                       `yaml:"grade_ii_ratio"`
	RejectPrices       map[string]Amount            `yaml:"reject_prices"`
	GrowerRejectPrices map[string]map[string]Amount `yaml:"grower_reject_prices"`
	Reference          struct {
		Path string `yaml:"path"`
	} `yaml:"reference"`
	Certification struct {
		AcceptedLabel string `yaml:"accepted_label"`
		Mode          string `yaml:"mode"`
	} `yaml:"certification"`
	Tolerance   Amount `yaml:"tolerance"`
	FactorScale int32  `yaml:"factor_scale"`
	PriceScale  int32  `yaml:"price_scale"`
	Export      struct {
		PriceDecimals  int32 `yaml:"price_decimals"`
		AmountDecimals int32 `yaml:"amount_decimals"`
	} `yaml:"export"`

	baseDir string
}

// LoadCampaignFile reads a campaign file. A relative reference path is resolved against
// the file's directory.
func LoadCampaignFile(path string) (*CampaignFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign file: %w", err)
	}
	f, err := ParseCampaign(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve campaign file path: %w", err)
	}
	f.baseDir = filepath.Dir(absPath)
	return f, nil
}

// ParseCampaign decodes a campaign file. Unknown keys are rejected.
func ParseCampaign(data []byte) (*CampaignFile, error) {
	var f CampaignFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("campaign file is empty")
		}
		return nil, fmt.Errorf("failed to parse campaign file: %w", err)
	}
	return &f, nil
}

// Scope returns the campaign scope of the file.
func (f *CampaignFile) Scope() domain.CampaignScope {
	return domain.CampaignScope{Campaign: f.Campaign, Company: f.Company, Crop: f.Crop}
}

// ReferencePath returns the reference file path, resolved against the campaign file directory.
func (f *CampaignFile) ReferencePath() string {
	if f.Reference.Path == "" || filepath.IsAbs(f.Reference.Path) || f.baseDir == "" {
		return f.Reference.Path
	}
	return filepath.Join(f.baseDir, f.Reference.Path)
}

// ExportOptions returns the export settings for an output directory.
func (f *CampaignFile) ExportOptions(dir string) export.Options {
	return export.Options{
		Dir:            dir,
		PriceDecimals:  f.Export.PriceDecimals,
		AmountDecimals: f.Export.AmountDecimals,
	}
}

// Parameters validates the file and converts it into run parameters.
// Every problem is reported at once as ValidationErrors.
func (f *CampaignFile) Parameters() (*settlement.Parameters, error) {
	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if f.Campaign <= 0 {
		add("campaign", "must be a positive year")
	}
	if f.Company == "" {
		add("company", "is required")
	}
	if f.Crop == "" {
		add("crop", "is required")
	}
	if !f.GrossRevenue.Set {
		add("gross_revenue", "is required")
	} else if !f.GrossRevenue.Value.IsPositive() {
		add("gross_revenue", "must be greater than 0")
	}
	if f.OtherFunds.Value.IsNegative() {
		add("other_funds", "must not be negative")
	}
	if !f.GradeIIRatio.Set {
		add("grade_ii_ratio", "is required")
	} else if !f.GradeIIRatio.Value.IsPositive() || f.GradeIIRatio.Value.GreaterThan(decimal.NewFromInt(1)) {
		add("grade_ii_ratio", "must be in (0, 1]")
	}

	rejectPrices, ok := rejectTable(f.RejectPrices, "reject_prices", add)
	if ok {
		for _, category := range domain.RejectCategories {
			if _, found := rejectPrices[category]; !found {
				add("reject_prices."+category, "is required")
			}
		}
	}
	var growerPrices map[string]map[string]decimal.Decimal
	if len(f.GrowerRejectPrices) > 0 {
		growerPrices = make(map[string]map[string]decimal.Decimal, len(f.GrowerRejectPrices))
		for _, grower := range sortedKeys(f.GrowerRejectPrices) {
			prices, _ := rejectTable(f.GrowerRejectPrices[grower], "grower_reject_prices."+grower, add)
			growerPrices[grower] = prices
		}
	}

	if f.Reference.Path == "" {
		add("reference.path", "is required")
	}
	mode := certification.Mode(f.Certification.Mode)
	if _, err := certification.StrategyFor(mode); err != nil {
		add("certification.mode", "must be %q or %q", certification.ModeGrower, certification.ModeTicket)
	}
	if f.Tolerance.Value.IsNegative() {
		add("tolerance", "must not be negative")
	}
	if f.FactorScale < 0 || f.FactorScale > 28 {
		add("factor_scale", "must be between 0 and 28")
	}
	if f.PriceScale < 0 || f.PriceScale > 28 {
		add("price_scale", "must be between 0 and 28")
	}
	if f.Export.PriceDecimals < 0 || f.Export.PriceDecimals > 10 {
		add("export.price_decimals", "must be between 0 and 10")
	}
	if f.Export.AmountDecimals < 0 || f.Export.AmountDecimals > 10 {
		add("export.amount_decimals", "must be between 0 and 10")
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &settlement.Parameters{
		Scope: f.Scope(),
		Allocation: allocation.Params{
			GrossRevenue:       f.GrossRevenue.Value,
			OtherFunds:         f.OtherFunds.Value,
			GradeIIRatio:       f.GradeIIRatio.Value,
			RejectPrices:       rejectPrices,
			GrowerRejectPrices: growerPrices,
			Tolerance:          f.Tolerance.Value,
			FactorScale:        f.FactorScale,
			PriceScale:         f.PriceScale,
		},
		AcceptedLabel: f.Certification.AcceptedLabel,
		Mode:          mode,
		ReferencePath: f.ReferencePath(),
	}, nil
}

// rejectTable converts a category → price table, reporting unknown categories and negative prices.
func rejectTable(in map[string]Amount, field string, add func(field, format string, args ...interface{})) (map[string]decimal.Decimal, bool) {
	known := make(map[string]bool, len(domain.RejectCategories))
	for _, c := range domain.RejectCategories {
		known[c] = true
	}

	ok := true
	out := make(map[string]decimal.Decimal, len(in))
	for _, category := range sortedKeys(in) {
		price := in[category]
		switch {
		case !known[category]:
			add(field+"."+category, "unknown reject category")
			ok = false
		case price.Value.IsNegative():
			add(field+"."+category, "must not be negative")
			ok = false
		default:
			out[category] = price.Value
		}
	}
	return out, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
