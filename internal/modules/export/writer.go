// Package export writes the outputs of a settlement run: the Perceco price file, the audit
// tables and the settlement ledger.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/pkg/numeric"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Default export precision.
const (
	DefaultPriceDecimals  int32 = 4
	DefaultAmountDecimals int32 = 2
)

// File kinds written by WriteAll.
const (
	KindPerceco        = "perceco"
	KindAudit          = "audit"
	KindExceptions     = "exceptions"
	KindUnmapped       = "unmapped"
	KindWeekly         = "weekly"
	KindReconciliation = "reconciliation"
)

const separator = ';'

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options controls where and how files are written.
type Options struct {
	Dir            string
	PriceDecimals  int32
	AmountDecimals int32
}

// Bundle is everything a run exports.
type Bundle struct {
	Scope      domain.CampaignScope
	Prices     []domain.FinalPrice
	Funds      []domain.FundRow
	FundTotal  decimal.Decimal
	Exceptions []domain.AuditException
	Unmapped   []domain.UnmappedCaliber
	Summary    []domain.WeeklySummary
	Metrics    domain.ReconciliationMetrics
}

// Files maps a file kind to the written path.
type Files map[string]string

// Writer writes semicolon separated, comma decimal, UTF-8 (with BOM) files,
// the format the cooperative's spreadsheet and Perceco imports expect.
type Writer struct {
	opts Options
	log  zerolog.Logger
}

// NewWriter creates a writer. Zero decimals fall back to the defaults.
func NewWriter(opts Options, log zerolog.Logger) *Writer {
	if opts.PriceDecimals <= 0 {
		opts.PriceDecimals = DefaultPriceDecimals
	}
	if opts.AmountDecimals <= 0 {
		opts.AmountDecimals = DefaultAmountDecimals
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Writer{
		opts: opts,
		log:  log.With().Str("component", "export").Logger(),
	}
}

// WriteAll writes every output file of a run and returns their paths.
func (w *Writer) WriteAll(b Bundle) (Files, error) {
	if err := os.MkdirAll(w.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	suffix := fmt.Sprintf("%d_%s", b.Scope.Campaign, fileToken(b.Scope.Crop))
	tables := []struct {
		kind string
		name string
		rows [][]string
	}{
		{KindPerceco, "perceco_" + suffix + ".csv", w.perceco(b)},
		{KindAudit, "auditoria_certificacion_" + suffix + ".csv", w.audit(b)},
		{KindExceptions, "excepciones_certificacion_" + suffix + ".csv", w.exceptions(b)},
		{KindUnmapped, "calibres_sin_mapeo_" + suffix + ".csv", w.unmapped(b)},
		{KindWeekly, "resumen_semanal_" + suffix + ".csv", w.weekly(b)},
		{KindReconciliation, "resumen_reconciliacion_" + suffix + ".csv", w.reconciliation(b)},
	}

	files := make(Files, len(tables))
	for _, t := range tables {
		path := filepath.Join(w.opts.Dir, t.name)
		if err := writeCSV(path, t.rows); err != nil {
			return nil, fmt.Errorf("failed to write %s file: %w", t.kind, err)
		}
		files[t.kind] = path
	}

	w.log.Info().
		Str("perceco", files[KindPerceco]).
		Int("files", len(files)).
		Msg("Exported settlement files")
	return files, nil
}

// perceco is the import file of the payment system: one row per (week, group, grade).
func (w *Writer) perceco(b Bundle) [][]string {
	prices := make([]domain.FinalPrice, len(b.Prices))
	copy(prices, b.Prices)
	domain.SortPrices(prices)

	campaign := strconv.Itoa(b.Scope.Campaign)
	rows := [][]string{{"campaña", "semana", "calibre", "categoria", "precio_final"}}
	for _, p := range prices {
		rows = append(rows, []string{
			campaign,
			strconv.Itoa(p.Week),
			string(p.Group),
			string(p.Grade),
			w.price(p.Price),
		})
	}
	return rows
}

func (w *Writer) audit(b Bundle) [][]string {
	rows := [][]string{{"clave", "socio", "kilos", "nivel", "indice", "tarifa", "fondo"}}
	for _, f := range b.Funds {
		rows = append(rows, []string{
			f.Key,
			f.GrowerID,
			w.amount(f.Kg),
			f.Level,
			w.price(f.Index),
			w.price(f.Rate),
			w.amount(f.Fund),
		})
	}
	rows = append(rows, []string{"TOTAL", "", "", "", "", "", w.amount(b.FundTotal)})
	return rows
}

func (w *Writer) exceptions(b Bundle) [][]string {
	rows := [][]string{{"clave", "socio", "motivo", "detalle"}}
	for _, e := range b.Exceptions {
		rows = append(rows, []string{e.Key, e.GrowerID, e.Reason, e.Detail})
	}
	return rows
}

func (w *Writer) unmapped(b Bundle) [][]string {
	rows := [][]string{{"calibre", "etiqueta", "motivo"}}
	for _, u := range b.Unmapped {
		rows = append(rows, []string{u.Code, u.Label, u.Reason})
	}
	return rows
}

func (w *Writer) weekly(b Bundle) [][]string {
	header := []string{"semana", "kilos_comerciales"}
	for _, g := range domain.Groups {
		header = append(header, "precio_"+string(g)+"_I")
	}
	header = append(header, "coeficiente", "semana_referencia")

	summary := make([]domain.WeeklySummary, len(b.Summary))
	copy(summary, b.Summary)
	sort.Slice(summary, func(i, j int) bool { return summary[i].Week < summary[j].Week })

	rows := [][]string{header}
	for _, s := range summary {
		row := []string{strconv.Itoa(s.Week), w.amount(s.CommercialKg)}
		for _, g := range domain.Groups {
			if p, ok := s.GradeIPrices[g]; ok {
				row = append(row, w.price(p))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, w.price(s.Coefficient), strconv.Itoa(s.ReferenceWeek))
		rows = append(rows, row)
	}
	return rows
}

func (w *Writer) reconciliation(b Bundle) [][]string {
	m := b.Metrics
	return [][]string{
		{"metrica", "valor"},
		{"bruto", w.amount(m.GrossRevenue)},
		{"otros_fondos", w.amount(m.OtherFunds)},
		{"fondo_certificacion", w.amount(m.BonusFund)},
		{"ingreso_destrios", w.amount(m.RejectRevenue)},
		{"kilos_comerciales", w.amount(m.TotalCommercialKg)},
		{"objetivo_neto", w.amount(m.NetTarget)},
		{"base_ponderada", w.amount(m.WeightedBase)},
		{"coeficiente", w.price(m.Coefficient)},
		{"semana_referencia", strconv.Itoa(m.ReferenceWeek)},
		{"semanas_con_kilos", strconv.Itoa(m.WeeksWithKg)},
		{"recon", w.amount(m.Reconstructed)},
		{"objetivo", w.amount(m.Target)},
		{"descuadre", w.amount(m.Mismatch)},
		{"recon_precios", w.amount(m.ReconstructedFromPrices)},
		{"residuo_redondeo", w.amount(m.RoundingResidual)},
	}
}

func (w *Writer) price(v decimal.Decimal) string {
	return numeric.FormatComma(v, w.opts.PriceDecimals)
}

func (w *Writer) amount(v decimal.Decimal) string {
	return numeric.FormatComma(v, w.opts.AmountDecimals)
}

func writeCSV(path string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := f.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	cw.Comma = separator
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// fileToken makes a crop name safe for use in a file name.
func fileToken(s string) string {
	s = strings.ToUpper(strings.Join(strings.Fields(s), "_"))
	if s == "" {
		return "NA"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, s)
}
