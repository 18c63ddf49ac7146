// Package checks runs the minimal two-grower campaign end to end and verifies the
// settlement invariants on its outcome. It is the operator's smoke test before a real run.
package checks

import (
	"context"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/allocation"
	"github.com/aristath/settlement/internal/modules/reference"
	"github.com/aristath/settlement/internal/services/settlement"
	"github.com/shopspring/decimal"
)

// Scope of the two-grower campaign
const (
	Campaign = 2024
	Company  = "COOP"
	Crop     = "KAKI"
)

// Scope returns the campaign scope of the two-grower campaign.
func Scope() domain.CampaignScope {
	return domain.CampaignScope{Campaign: Campaign, Company: Company, Crop: Crop}
}

// Weights: grower A delivers 10 kg of AAA grade I plus 1 kg of each reject category;
// grower B delivers 20 kg of AAA grade II.
func Weights() []domain.WeightRecord {
	return []domain.WeightRecord{
		{
			GrowerID: "A", Ticket: "B1", Week: 1,
			Calibers: map[string]decimal.Decimal{"c0": decimal.NewFromInt(10)},
			Rejects: map[string]decimal.Decimal{
				domain.RejectLine:  decimal.NewFromInt(1),
				domain.RejectTable: decimal.NewFromInt(1),
				domain.RejectRot:   decimal.NewFromInt(1),
			},
		},
		{
			GrowerID: "B", Ticket: "B2", Week: 1,
			Calibers: map[string]decimal.Decimal{"c1": decimal.NewFromInt(20)},
			Rejects:  map[string]decimal.Decimal{},
		},
	}
}

// Correspondences maps c0 to AAA grade I and c1 to AAA grade II.
func Correspondences() []domain.CaliberCorrespondence {
	return []domain.CaliberCorrespondence{
		{Code: "Cal0", Label: "AAA 1ª"},
		{Code: "Cal1", Label: "AAA 2ª"},
	}
}

// Certifications certifies grower A only.
func Certifications() []domain.CertificationRecord {
	return []domain.CertificationRecord{
		{GrowerID: "A", Ticket: "B1", Label: "GLOBAL GAP", Level: "N1", Campaign: Campaign, Crop: Crop, Company: Company},
		{GrowerID: "B", Ticket: "B2", Label: "OTRA", Level: "N1", Campaign: Campaign, Crop: Crop, Company: Company},
	}
}

// QualityIndex gives level N1 index 1.
func QualityIndex() []domain.QualityIndex {
	return []domain.QualityIndex{{Level: "N1", Index: decimal.NewFromInt(1)}}
}

// BonusRates is the flat 0.1/kg rate.
func BonusRates() []domain.BonusRate {
	return []domain.BonusRate{{Rate: decimal.RequireFromString("0.1")}}
}

// Reference returns the week 1 reference prices.
func Reference() []domain.ReferencePrice {
	return []domain.ReferencePrice{
		{Week: 1, Group: domain.GroupTop, BasePrice: decimal.RequireFromString("2.0")},
		{Week: 1, Group: domain.GroupMid, BasePrice: decimal.RequireFromString("1.0")},
		{Week: 1, Group: domain.GroupLow, BasePrice: decimal.RequireFromString("0.5")},
	}
}

// Parameters returns the run parameters of the two-grower campaign: gross revenue 100,
// grade II at half of grade I, rejects worth nothing.
func Parameters() settlement.Parameters {
	return settlement.Parameters{
		Scope: Scope(),
		Allocation: allocation.Params{
			GrossRevenue: decimal.NewFromInt(100),
			GradeIIRatio: decimal.RequireFromString("0.5"),
			RejectPrices: map[string]decimal.Decimal{
				domain.RejectLine:  decimal.Zero,
				domain.RejectTable: decimal.Zero,
				domain.RejectRot:   decimal.Zero,
			},
		},
		Reference: &reference.Source{
			Format:     reference.FormatAggregated,
			Aggregated: Reference(),
		},
	}
}

// Source serves the two-grower tables. It implements settlement.Source.
type Source struct{}

// Weights implements settlement.Source
func (Source) Weights(ctx context.Context, scope domain.CampaignScope) ([]domain.WeightRecord, error) {
	return Weights(), ctx.Err()
}

// Correspondences implements settlement.Source
func (Source) Correspondences(ctx context.Context) ([]domain.CaliberCorrespondence, error) {
	return Correspondences(), ctx.Err()
}

// Certifications implements settlement.Source
func (Source) Certifications(ctx context.Context) ([]domain.CertificationRecord, error) {
	return Certifications(), ctx.Err()
}

// QualityIndex implements settlement.Source
func (Source) QualityIndex(ctx context.Context) ([]domain.QualityIndex, error) {
	return QualityIndex(), ctx.Err()
}

// BonusRates implements settlement.Source
func (Source) BonusRates(ctx context.Context, scope domain.CampaignScope) ([]domain.BonusRate, error) {
	return BonusRates(), ctx.Err()
}
