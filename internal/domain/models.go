// Package domain provides the settlement data model shared by every stage of a run.
package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Group is a commercial group: the top-level size/quality bucket prices are set for.
type Group string

const (
	// GroupTop is the top tier; its reference-week price anchors every relative factor
	GroupTop Group = "AAA"
	// GroupMid is the middle tier
	GroupMid Group = "AA"
	// GroupLow is the low tier
	GroupLow Group = "A"
)

// Groups lists commercial groups from top to low tier.
var Groups = []Group{GroupTop, GroupMid, GroupLow}

// Rank orders groups top first. Unknown groups sort last.
func (g Group) Rank() int {
	for i, candidate := range Groups {
		if candidate == g {
			return i
		}
	}
	return len(Groups)
}

// Valid reports whether g is one of the known commercial groups.
func (g Group) Valid() bool {
	return g.Rank() < len(Groups)
}

// Grade is the sub-classification inside a commercial group.
type Grade string

const (
	// GradeI is first category fruit
	GradeI Grade = "I"
	// GradeII is second category fruit, priced as a fixed ratio of grade I
	GradeII Grade = "II"
)

// Grades lists grades in emission order.
var Grades = []Grade{GradeI, GradeII}

// WeightRecord is the delivered weight of one delivery ticket, already assigned to a week.
// Caliber and reject maps are keyed by normalized codes (see utils.NormalizeCaliberCode).
type WeightRecord struct {
	GrowerID string                     `json:"grower_id"`
	Ticket   string                     `json:"ticket"`
	Week     int                        `json:"week"`
	Calibers map[string]decimal.Decimal `json:"calibers"`
	Rejects  map[string]decimal.Decimal `json:"rejects"`
}

// CommercialKg sums the caliber columns of the record.
func (w WeightRecord) CommercialKg() decimal.Decimal {
	return sumValues(w.Calibers)
}

// RejectKg sums the reject columns of the record.
func (w WeightRecord) RejectKg() decimal.Decimal {
	return sumValues(w.Rejects)
}

// Reject categories
const (
	RejectLine  = "deslinea"
	RejectTable = "desmesa"
	RejectRot   = "podrido"
)

// RejectCategories lists the reject categories in source column order.
var RejectCategories = []string{RejectLine, RejectTable, RejectRot}

// CaliberCorrespondence is a raw row of the caliber correspondence table.
type CaliberCorrespondence struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// CaliberMapping assigns a caliber code to a commercial group and grade.
type CaliberMapping struct {
	Code  string `json:"code" msgpack:"code"`
	Group Group  `json:"group" msgpack:"group"`
	Grade Grade  `json:"grade" msgpack:"grade"`
}

// GroupedWeight is the commercial weight of one (week, group, grade) cell.
type GroupedWeight struct {
	Week  int             `json:"week" msgpack:"week"`
	Group Group           `json:"group" msgpack:"group"`
	Grade Grade           `json:"grade" msgpack:"grade"`
	Kg    decimal.Decimal `json:"kg" msgpack:"kg"`
}

// SubGradePrice is one sub-grade row of the reference price source before group averaging.
type SubGradePrice struct {
	Week     int             `json:"week"`
	SubGrade string          `json:"sub_grade"`
	Kg       decimal.Decimal `json:"kg"`
	Value    decimal.Decimal `json:"value"`
}

// ReferencePrice is the base price of a commercial group in a week.
type ReferencePrice struct {
	Week      int             `json:"week" msgpack:"week"`
	Group     Group           `json:"group" msgpack:"group"`
	BasePrice decimal.Decimal `json:"base_price" msgpack:"base_price"`
}

// RelativeReference is a price factor relative to the reference week's top-group price.
type RelativeReference struct {
	Week   int             `json:"week" msgpack:"week"`
	Group  Group           `json:"group" msgpack:"group"`
	Grade  Grade           `json:"grade" msgpack:"grade"`
	Factor decimal.Decimal `json:"factor" msgpack:"factor"`
}

// CertificationRecord is a raw certification row. Several rows may exist per grower.
// Campaign, Crop and Company scope the row; zero values mean "unscoped".
type CertificationRecord struct {
	GrowerID string `json:"grower_id"`
	Ticket   string `json:"ticket"`
	Label    string `json:"label"`
	Level    string `json:"level"`
	Campaign int    `json:"campaign,omitempty"`
	Crop     string `json:"crop,omitempty"`
	Company  string `json:"company,omitempty"`
}

// QualityIndex maps a quality level to its index factor.
type QualityIndex struct {
	Level string          `json:"level"`
	Index decimal.Decimal `json:"index"`
}

// BonusRate is a row of the bonus rate table. An empty Level is the flat base rate.
type BonusRate struct {
	Level string          `json:"level"`
	Rate  decimal.Decimal `json:"rate"`
}

// FinalPrice is the settlement price of one (week, group, grade).
type FinalPrice struct {
	Week  int             `json:"week" msgpack:"week"`
	Group Group           `json:"group" msgpack:"group"`
	Grade Grade           `json:"grade" msgpack:"grade"`
	Price decimal.Decimal `json:"price" msgpack:"price"`
}

// ReconciliationMetrics summarizes one allocation and its closed-loop check.
type ReconciliationMetrics struct {
	GrossRevenue      decimal.Decimal `json:"gross_revenue" msgpack:"gross_revenue"`
	OtherFunds        decimal.Decimal `json:"other_funds" msgpack:"other_funds"`
	TotalCommercialKg decimal.Decimal `json:"total_commercial_kg" msgpack:"total_commercial_kg"`
	RejectRevenue     decimal.Decimal `json:"reject_revenue" msgpack:"reject_revenue"`
	BonusFund         decimal.Decimal `json:"bonus_fund" msgpack:"bonus_fund"`
	NetTarget         decimal.Decimal `json:"net_target" msgpack:"net_target"`
	WeightedBase      decimal.Decimal `json:"weighted_base" msgpack:"weighted_base"`
	Coefficient       decimal.Decimal `json:"coefficient" msgpack:"coefficient"`
	ReferenceWeek     int             `json:"reference_week" msgpack:"reference_week"`
	WeeksWithKg       int             `json:"weeks_with_kg" msgpack:"weeks_with_kg"`
	// Reconstructed is Σ kg × factor × coefficient + reject revenue, before price rounding
	Reconstructed decimal.Decimal `json:"reconstructed" msgpack:"reconstructed"`
	// Target is gross − bonus − other funds
	Target   decimal.Decimal `json:"target" msgpack:"target"`
	Mismatch decimal.Decimal `json:"mismatch" msgpack:"mismatch"`
	// ReconstructedFromPrices uses the emitted (rounded) prices; advisory only
	ReconstructedFromPrices decimal.Decimal `json:"reconstructed_from_prices" msgpack:"reconstructed_from_prices"`
	RoundingResidual        decimal.Decimal `json:"rounding_residual" msgpack:"rounding_residual"`
}

// WeeklySummary is one row of the per-week summary table.
type WeeklySummary struct {
	Week          int                       `json:"week"`
	CommercialKg  decimal.Decimal           `json:"commercial_kg"`
	GradeIPrices  map[Group]decimal.Decimal `json:"grade_i_prices"`
	Coefficient   decimal.Decimal           `json:"coefficient"`
	ReferenceWeek int                       `json:"reference_week"`
}

// Audit exception reasons.
const (
	ReasonMissingCertification      = "missing_certification"
	ReasonNotCertified              = "not_certified"
	ReasonMissingLevel              = "missing_level"
	ReasonLevelWithoutIndex         = "level_without_index"
	ReasonInconsistentLevel         = "inconsistent_level"
	ReasonInconsistentCertification = "inconsistent_certification"
)

// AuditException records a grower (or ticket) excluded from, or flagged during, the bonus computation.
// It is returned data, never an error.
type AuditException struct {
	Key      string `json:"key" msgpack:"key"`
	GrowerID string `json:"grower_id" msgpack:"grower_id"`
	Reason   string `json:"reason" msgpack:"reason"`
	Detail   string `json:"detail" msgpack:"detail"`
}

// FundRow is the per-key audit row of the certification bonus fund.
type FundRow struct {
	Key      string          `json:"key" msgpack:"key"`
	GrowerID string          `json:"grower_id" msgpack:"grower_id"`
	Kg       decimal.Decimal `json:"kg" msgpack:"kg"`
	Level    string          `json:"level" msgpack:"level"`
	Index    decimal.Decimal `json:"index" msgpack:"index"`
	Rate     decimal.Decimal `json:"rate" msgpack:"rate"`
	Fund     decimal.Decimal `json:"fund" msgpack:"fund"`
}

// UnmappedCaliber is a correspondence row that could not be turned into a mapping.
type UnmappedCaliber struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// SortPrices orders final prices by week, group rank, then grade.
func SortPrices(prices []FinalPrice) {
	sort.Slice(prices, func(i, j int) bool {
		a, b := prices[i], prices[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.Group != b.Group {
			return a.Group.Rank() < b.Group.Rank()
		}
		return a.Grade < b.Grade
	})
}

func sumValues(m map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}

// CampaignScope identifies one campaign's data: campaign year, company and crop.
type CampaignScope struct {
	Campaign int    `json:"campaign" yaml:"campaign"`
	Company  string `json:"company" yaml:"company"`
	Crop     string `json:"crop" yaml:"crop"`
}

// Matches reports whether a certification row belongs to the scope.
// Zero scope fields match anything, and so do rows that leave the field empty.
func (s CampaignScope) Matches(c CertificationRecord) bool {
	if s.Campaign != 0 && c.Campaign != 0 && c.Campaign != s.Campaign {
		return false
	}
	if s.Crop != "" && c.Crop != "" && !sameText(c.Crop, s.Crop) {
		return false
	}
	if s.Company != "" && c.Company != "" && !sameText(c.Company, s.Company) {
		return false
	}
	return true
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
