package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/settlement/internal/modules/certification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const campaignYAML = `
campaign: 2025
company: "1"
crop: KAKIS
gross_revenue: "1.234.567,89"
other_funds: 1500
grade_ii_ratio: 0.5
reject_prices:
  deslinea: 0.05
  desmesa: "0,03"
  podrido: 0
grower_reject_prices:
  S001:
    podrido: 0.01
reference:
  path: anecop.csv
certification:
  accepted_label: global gap
  mode: ticket
tolerance: 0.02
export:
  price_decimals: 4
  amount_decimals: 2
`

func TestParameters(t *testing.T) {
	f, err := ParseCampaign([]byte(campaignYAML))
	require.NoError(t, err)

	params, err := f.Parameters()
	require.NoError(t, err)

	assert.Equal(t, 2025, params.Scope.Campaign)
	assert.Equal(t, "1", params.Scope.Company)
	assert.Equal(t, "KAKIS", params.Scope.Crop)
	assert.Equal(t, "1234567.89", params.Allocation.GrossRevenue.String())
	assert.Equal(t, "1500", params.Allocation.OtherFunds.String())
	assert.Equal(t, "0.5", params.Allocation.GradeIIRatio.String())
	assert.Equal(t, "0.03", params.Allocation.RejectPrices["desmesa"].String())
	assert.Equal(t, "0.01", params.Allocation.GrowerRejectPrices["S001"]["podrido"].String())
	assert.Equal(t, "0.02", params.Allocation.Tolerance.String())
	assert.Equal(t, certification.ModeTicket, params.Mode)
	assert.Equal(t, "global gap", params.AcceptedLabel)
	assert.Equal(t, "anecop.csv", params.ReferencePath)

	opts := f.ExportOptions("/tmp/out")
	assert.Equal(t, int32(4), opts.PriceDecimals)
	assert.Equal(t, "/tmp/out", opts.Dir)
}

func TestParameters_CollectsEveryError(t *testing.T) {
	f, err := ParseCampaign([]byte(`
campaign: 0
gross_revenue: -1
grade_ii_ratio: 1.5
reject_prices:
  deslinea: -0.1
  hueso: 0.2
certification:
  mode: socio
factor_scale: 40
`))
	require.NoError(t, err)

	_, err = f.Parameters()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{
		"campaign", "company", "crop", "gross_revenue", "grade_ii_ratio",
		"reject_prices.deslinea", "reject_prices.hueso",
		"reference.path", "certification.mode", "factor_scale",
	}, verrs.Fields())
}

func TestParameters_MissingRejectCategory(t *testing.T) {
	f, err := ParseCampaign([]byte(`
campaign: 2025
company: "1"
crop: KAKIS
gross_revenue: 100
grade_ii_ratio: 0.5
reject_prices:
  deslinea: 0
reference:
  path: a.csv
`))
	require.NoError(t, err)

	_, err = f.Parameters()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"reject_prices.desmesa", "reject_prices.podrido"}, verrs.Fields())
}

func TestParseCampaign_UnknownKey(t *testing.T) {
	_, err := ParseCampaign([]byte("campaign: 2025\nbruto: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bruto")
}

func TestParseCampaign_Empty(t *testing.T) {
	_, err := ParseCampaign(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestParseCampaign_BadAmount(t *testing.T) {
	_, err := ParseCampaign([]byte("gross_revenue: diez\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diez")
}

func TestLoadCampaignFile_ResolvesReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(campaignYAML), 0644))

	f, err := LoadCampaignFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "anecop.csv"), f.ReferencePath())

	params, err := f.Parameters()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "anecop.csv"), params.ReferencePath)
}
