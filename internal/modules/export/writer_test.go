package export

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/aristath/settlement/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func twoGrowerBundle() Bundle {
	prices := []domain.FinalPrice{
		{Week: 1, Group: domain.GroupLow, Grade: domain.GradeII, Price: dec("0.6188")},
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeII, Price: dec("2.475")},
		{Week: 1, Group: domain.GroupTop, Grade: domain.GradeI, Price: dec("4.95")},
	}
	return Bundle{
		Scope:     domain.CampaignScope{Campaign: 2024, Company: "COOP", Crop: "kaki rojo"},
		Prices:    prices,
		FundTotal: dec("1.0"),
		Funds: []domain.FundRow{
			{Key: "A", GrowerID: "A", Kg: dec("10"), Level: "N1", Index: dec("1"), Rate: dec("0.1"), Fund: dec("1.0")},
		},
		Exceptions: []domain.AuditException{
			{Key: "B", GrowerID: "B", Reason: domain.ReasonNotCertified, Detail: "label OTRA"},
		},
		Unmapped: []domain.UnmappedCaliber{{Code: "c6", Reason: "empty_label"}},
		Summary: []domain.WeeklySummary{{
			Week: 1, CommercialKg: dec("30"), Coefficient: dec("4.95"), ReferenceWeek: 1,
			GradeIPrices: map[domain.Group]decimal.Decimal{domain.GroupTop: dec("4.95")},
		}},
		Metrics: domain.ReconciliationMetrics{
			GrossRevenue: dec("100"), BonusFund: dec("1"), NetTarget: dec("99"),
			Coefficient: dec("4.95"), Reconstructed: dec("99"), Target: dec("99"), Mismatch: dec("0.005"),
			ReferenceWeek: 1, WeeksWithKg: 1,
		},
	}
}

func readFile(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "file %s must start with a BOM", path)
	return strings.Split(strings.TrimRight(string(data[len(utf8BOM):]), "\n"), "\n")
}

func TestWriteAll_Perceco(t *testing.T) {
	w := NewWriter(Options{Dir: t.TempDir()}, zerolog.Nop())

	files, err := w.WriteAll(twoGrowerBundle())
	require.NoError(t, err)
	require.Len(t, files, 6)
	assert.True(t, strings.HasSuffix(files[KindPerceco], "perceco_2024_KAKI_ROJO.csv"))

	lines := readFile(t, files[KindPerceco])
	assert.Equal(t, []string{
		"campaña;semana;calibre;categoria;precio_final",
		"2024;1;AAA;I;4,9500",
		"2024;1;AAA;II;2,4750",
		"2024;1;A;II;0,6188",
	}, lines)
}

func TestWriteAll_AuditAndExceptions(t *testing.T) {
	w := NewWriter(Options{Dir: t.TempDir()}, zerolog.Nop())

	files, err := w.WriteAll(twoGrowerBundle())
	require.NoError(t, err)

	audit := readFile(t, files[KindAudit])
	require.Len(t, audit, 3)
	assert.Equal(t, "A;A;10,00;N1;1,0000;0,1000;1,00", audit[1])
	assert.Equal(t, "TOTAL;;;;;;1,00", audit[2])

	exceptions := readFile(t, files[KindExceptions])
	assert.Equal(t, "B;B;not_certified;label OTRA", exceptions[1])

	unmapped := readFile(t, files[KindUnmapped])
	assert.Equal(t, "c6;;empty_label", unmapped[1])
}

func TestWriteAll_SummaryFiles(t *testing.T) {
	w := NewWriter(Options{Dir: t.TempDir(), AmountDecimals: 3}, zerolog.Nop())

	files, err := w.WriteAll(twoGrowerBundle())
	require.NoError(t, err)

	weekly := readFile(t, files[KindWeekly])
	assert.Equal(t, "semana;kilos_comerciales;precio_AAA_I;precio_AA_I;precio_A_I;coeficiente;semana_referencia", weekly[0])
	assert.Equal(t, "1;30,000;4,9500;;;4,9500;1", weekly[1])

	recon := readFile(t, files[KindReconciliation])
	assert.Contains(t, recon, "descuadre;0,005")
	assert.Contains(t, recon, "semana_referencia;1")
}

func TestNewWriter_Defaults(t *testing.T) {
	w := NewWriter(Options{}, zerolog.Nop())
	assert.Equal(t, DefaultPriceDecimals, w.opts.PriceDecimals)
	assert.Equal(t, DefaultAmountDecimals, w.opts.AmountDecimals)
	assert.Equal(t, ".", w.opts.Dir)
}

func TestFileToken(t *testing.T) {
	assert.Equal(t, "KAKIS", fileToken(" kakis "))
	assert.Equal(t, "A_B", fileToken("a/b"))
	assert.Equal(t, "NA", fileToken(""))
}
