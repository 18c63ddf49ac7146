package testing

import (
	"github.com/aristath/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// Fixture campaign scope shared by the SQL and domain fixtures.
const (
	FixtureCampaign = 2024
	FixtureCompany  = "COOP"
	FixtureCrop     = "KAKI"
)

// FixtureScope returns the campaign scope of the two-grower fixture.
func FixtureScope() domain.CampaignScope {
	return domain.CampaignScope{Campaign: FixtureCampaign, Company: FixtureCompany, Crop: FixtureCrop}
}

// TwoGrowerSQL seeds the two-grower campaign: grower A delivers 10 kg of AAA grade I
// plus 1 kg of each reject category and is GLOBAL GAP certified at level N1; grower B
// delivers 20 kg of AAA grade II and is not certified. A row of another campaign is
// present to check scope filtering.
var TwoGrowerSQL = []string{
	`INSERT INTO PesosFres ("CAMPAÑA", EMPRESA, CULTIVO, Apodo, Boleta, IDSocio,
		Cal0, Cal1, Cal2, Cal3, Cal4, Cal5, Cal6, Cal7, Cal8, Cal9, Cal10, Cal11, DesLinea, DesMesa, Podrido)
	VALUES
		(2024, 'COOP', 'KAKI', '1', 'B1', 'A', 10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1),
		(2024, 'COOP', 'KAKI', '1', 'B2', 'B', 0, 20, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL),
		(2023, 'COOP', 'KAKI', '1', 'OLD', 'A', 99, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)`,
	`INSERT INTO CorrespondenciasCalibres (BASE, KAKIS) VALUES
		('Cal0', 'AAA 1ª'),
		('Cal1', 'AAA 2ª'),
		('Cal2', 'AA 1ª'),
		('Cal3', 'AA 2ª'),
		('Cal4', 'A 1ª'),
		('Cal5', 'A 2ª'),
		('Cal6', NULL)`,
	`INSERT INTO DEEPP (Boleta, IDSocio, Certificacion, NivelGlobal, "CAMPAÑA", CULTIVO, EMPRESA) VALUES
		('B1', 'A', 'GLOBAL GAP', 'N1', 2024, 'KAKI', 'COOP'),
		('B2', 'B', 'OTRA', 'N1', 2024, 'KAKI', 'COOP')`,
	`INSERT INTO MNivelGlobal (Nivel, Indice) VALUES ('N1', 1), ('N2', 0.5)`,
	`INSERT INTO BonGlobal ("CAMPAÑA", CULTIVO, EMPRESA, CATEGORIA, Bonificacion) VALUES
		(2024, 'KAKI', 'COOP', NULL, 0.1),
		(2023, 'KAKI', 'COOP', NULL, 0.2)`,
}

// TwoGrowerReferenceCSV is the week 1 reference price file of the two-grower campaign.
const TwoGrowerReferenceCSV = "semana;grupo;precio\n1;AAA;2,0\n1;AA;1,0\n1;A;0,5\n"

// TwoGrowerWeights returns the deliveries of the two-grower campaign.
func TwoGrowerWeights() []domain.WeightRecord {
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

// TwoGrowerCorrespondences maps c0 to AAA grade I and c1 to AAA grade II.
func TwoGrowerCorrespondences() []domain.CaliberCorrespondence {
	return []domain.CaliberCorrespondence{
		{Code: "Cal0", Label: "AAA 1ª"},
		{Code: "Cal1", Label: "AAA 2ª"},
	}
}

// TwoGrowerCertifications certifies grower A only.
func TwoGrowerCertifications() []domain.CertificationRecord {
	return []domain.CertificationRecord{
		{GrowerID: "A", Ticket: "B1", Label: "GLOBAL GAP", Level: "N1", Campaign: FixtureCampaign, Crop: FixtureCrop, Company: FixtureCompany},
		{GrowerID: "B", Ticket: "B2", Label: "OTRA", Level: "N1", Campaign: FixtureCampaign, Crop: FixtureCrop, Company: FixtureCompany},
	}
}

// TwoGrowerQualityIndex gives level N1 index 1.
func TwoGrowerQualityIndex() []domain.QualityIndex {
	return []domain.QualityIndex{{Level: "N1", Index: decimal.NewFromInt(1)}}
}

// TwoGrowerBonusRates is the flat 0.1/kg rate.
func TwoGrowerBonusRates() []domain.BonusRate {
	return []domain.BonusRate{{Rate: decimal.RequireFromString("0.1")}}
}

// TwoGrowerReference returns the week 1 reference prices.
func TwoGrowerReference() []domain.ReferencePrice {
	return []domain.ReferencePrice{
		{Week: 1, Group: domain.GroupTop, BasePrice: decimal.RequireFromString("2.0")},
		{Week: 1, Group: domain.GroupMid, BasePrice: decimal.RequireFromString("1.0")},
		{Week: 1, Group: domain.GroupLow, BasePrice: decimal.RequireFromString("0.5")},
	}
}
