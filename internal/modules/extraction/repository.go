// Package extraction reads one campaign's source tables from the operational SQLite databases.
package extraction

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/settlement/internal/database"
	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/validation"
	"github.com/aristath/settlement/internal/utils"
	"github.com/aristath/settlement/pkg/numeric"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CaliberColumns is the number of caliber columns (Cal0..Cal11) in PesosFres.
const CaliberColumns = 12

// rejectColumns maps PesosFres reject columns to reject categories.
var rejectColumns = []struct {
	column   string
	category string
}{
	{"DesLinea", domain.RejectLine},
	{"DesMesa", domain.RejectTable},
	{"Podrido", domain.RejectRot},
}

// Repository reads the source tables.
// Databases: fruta (PesosFres, BonGlobal), calidad (CorrespondenciasCalibres), eeppl (DEEPP, MNivelGlobal).
type Repository struct {
	fruta   *sql.DB
	calidad *sql.DB
	eeppl   *sql.DB
	log     zerolog.Logger
}

// NewRepository creates a repository over already opened connections.
// The same connection may serve several roles.
func NewRepository(fruta, calidad, eeppl *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		fruta:   fruta,
		calidad: calidad,
		eeppl:   eeppl,
		log:     log.With().Str("repo", "extraction").Logger(),
	}
}

// Paths locates the three source databases.
type Paths struct {
	Fruta   string
	Calidad string
	EEPPL   string
}

// Sources owns the opened source databases.
type Sources struct {
	*Repository
	dbs []*database.DB
}

// Open opens the source databases query-only and returns a repository over them.
func Open(paths Paths, log zerolog.Logger) (*Sources, error) {
	s := &Sources{}
	open := func(name, path string) (*sql.DB, error) {
		db, err := database.New(database.Config{Path: path, Profile: database.ProfileSource, Name: name})
		if err != nil {
			return nil, err
		}
		s.dbs = append(s.dbs, db)
		log.Info().Str("database", name).Str("path", db.Path()).Msg("Opened source database")
		return db.Conn(), nil
	}

	fruta, err := open("fruta", paths.Fruta)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	calidad, err := open("calidad", paths.Calidad)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	eeppl, err := open("eeppl", paths.EEPPL)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Repository = NewRepository(fruta, calidad, eeppl, log)
	return s, nil
}

// Close closes every opened database.
func (s *Sources) Close() error {
	var firstErr error
	for _, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.dbs = nil
	return firstErr
}

// Weights returns the delivery tickets of a campaign with their week derived from the numeric Apodo.
// Blank and NULL weights read as zero. A non-numeric Apodo on any row fails the whole read.
func (r *Repository) Weights(ctx context.Context, scope domain.CampaignScope) ([]domain.WeightRecord, error) {
	cols := []string{"Apodo", "Boleta", "IDSocio"}
	for i := 0; i < CaliberColumns; i++ {
		cols = append(cols, fmt.Sprintf("Cal%d", i))
	}
	for _, rc := range rejectColumns {
		cols = append(cols, rc.column)
	}
	query := fmt.Sprintf(`SELECT %s FROM PesosFres WHERE "CAMPAÑA" = ? AND EMPRESA = ? AND CULTIVO = ?`,
		strings.Join(cols, ", "))

	measured := utils.MeasureQuery("PesosFres", r.log)
	rows, err := r.fruta.QueryContext(ctx, query, scope.Campaign, scope.Company, scope.Crop)
	if err != nil {
		return nil, fmt.Errorf("failed to query PesosFres: %w", err)
	}
	defer rows.Close()

	var records []domain.WeightRecord
	var invalid []string
	defer func() { measured(len(records) + len(invalid)) }()
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan PesosFres row: %w", err)
		}

		ticket := utils.NormalizeKey(text(values[1]))
		week, ok := parseWeek(values[0])
		if !ok {
			invalid = append(invalid, fmt.Sprintf("%s (apodo %q)", ticket, text(values[0])))
			continue
		}

		record := domain.WeightRecord{
			GrowerID: utils.NormalizeKey(text(values[2])),
			Ticket:   ticket,
			Week:     week,
			Calibers: make(map[string]decimal.Decimal, CaliberColumns),
			Rejects:  make(map[string]decimal.Decimal, len(rejectColumns)),
		}
		for i := 0; i < CaliberColumns; i++ {
			kg, err := numeric.FromAny(values[3+i])
			if err != nil {
				return nil, fmt.Errorf("ticket %s Cal%d: %w", ticket, i, err)
			}
			record.Calibers[utils.NormalizeCaliberCode(cols[3+i])] = kg
		}
		for i, rc := range rejectColumns {
			kg, err := numeric.FromAny(values[3+CaliberColumns+i])
			if err != nil {
				return nil, fmt.Errorf("ticket %s %s: %w", ticket, rc.column, err)
			}
			record.Rejects[rc.category] = kg
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating PesosFres: %w", err)
	}

	if err := validation.NumericWeeks(invalid); err != nil {
		return nil, err
	}
	if err := validation.NonEmpty("PesosFres", len(records)); err != nil {
		return nil, fmt.Errorf("no deliveries for campaign %d, company %s, crop %s: %w",
			scope.Campaign, scope.Company, scope.Crop, err)
	}

	r.log.Info().Int("tickets", len(records)).Msg("Loaded delivery weights")
	return records, nil
}

// Correspondences returns the caliber correspondence table (BASE → KAKIS label).
func (r *Repository) Correspondences(ctx context.Context) ([]domain.CaliberCorrespondence, error) {
	rows, err := r.calidad.QueryContext(ctx, "SELECT BASE, KAKIS FROM CorrespondenciasCalibres")
	if err != nil {
		return nil, fmt.Errorf("failed to query CorrespondenciasCalibres: %w", err)
	}
	defer rows.Close()

	var out []domain.CaliberCorrespondence
	for rows.Next() {
		var base, label sql.NullString
		if err := rows.Scan(&base, &label); err != nil {
			return nil, fmt.Errorf("failed to scan caliber correspondence: %w", err)
		}
		out = append(out, domain.CaliberCorrespondence{Code: base.String, Label: label.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating caliber correspondences: %w", err)
	}
	return out, nil
}

// Certifications returns every certification row. Scope filtering happens in the allocator,
// because rows may leave campaign, crop or company empty.
func (r *Repository) Certifications(ctx context.Context) ([]domain.CertificationRecord, error) {
	rows, err := r.eeppl.QueryContext(ctx,
		`SELECT Boleta, IDSocio, Certificacion, NivelGlobal, "CAMPAÑA", CULTIVO, EMPRESA FROM DEEPP`)
	if err != nil {
		return nil, fmt.Errorf("failed to query DEEPP: %w", err)
	}
	defer rows.Close()

	var out []domain.CertificationRecord
	for rows.Next() {
		var ticket, grower, label, level, crop, company sql.NullString
		var campaign interface{}
		if err := rows.Scan(&ticket, &grower, &label, &level, &campaign, &crop, &company); err != nil {
			return nil, fmt.Errorf("failed to scan DEEPP row: %w", err)
		}
		year, _ := parseWeek(campaign)
		out = append(out, domain.CertificationRecord{
			GrowerID: utils.NormalizeKey(grower.String),
			Ticket:   utils.NormalizeKey(ticket.String),
			Label:    label.String,
			Level:    level.String,
			Campaign: year,
			Crop:     crop.String,
			Company:  company.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating DEEPP: %w", err)
	}
	return out, nil
}

// QualityIndex returns the quality level index table.
func (r *Repository) QualityIndex(ctx context.Context) ([]domain.QualityIndex, error) {
	rows, err := r.eeppl.QueryContext(ctx, "SELECT Nivel, Indice FROM MNivelGlobal")
	if err != nil {
		return nil, fmt.Errorf("failed to query MNivelGlobal: %w", err)
	}
	defer rows.Close()

	var out []domain.QualityIndex
	for rows.Next() {
		var level sql.NullString
		var raw interface{}
		if err := rows.Scan(&level, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan MNivelGlobal row: %w", err)
		}
		index, err := numeric.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("level %s index: %w", level.String, err)
		}
		out = append(out, domain.QualityIndex{Level: level.String, Index: index})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating MNivelGlobal: %w", err)
	}
	return out, nil
}

// BonusRates returns the campaign's bonus rows. With a CATEGORIA column each row is a
// level-keyed rate (an empty category is the flat rate); without it every row is flat.
func (r *Repository) BonusRates(ctx context.Context, scope domain.CampaignScope) ([]domain.BonusRate, error) {
	cols, err := database.TableColumns(ctx, r.fruta, "BonGlobal")
	if err != nil {
		return nil, err
	}
	category := "'' AS CATEGORIA"
	if cols["CATEGORIA"] {
		category = "CATEGORIA"
	}

	query := fmt.Sprintf(`SELECT %s, Bonificacion FROM BonGlobal WHERE "CAMPAÑA" = ? AND CULTIVO = ? AND EMPRESA = ?`, category)
	rows, err := r.fruta.QueryContext(ctx, query, scope.Campaign, scope.Crop, scope.Company)
	if err != nil {
		return nil, fmt.Errorf("failed to query BonGlobal: %w", err)
	}
	defer rows.Close()

	var out []domain.BonusRate
	for rows.Next() {
		var level sql.NullString
		var raw interface{}
		if err := rows.Scan(&level, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan BonGlobal row: %w", err)
		}
		rate, err := numeric.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("BonGlobal rate: %w", err)
		}
		out = append(out, domain.BonusRate{Level: strings.TrimSpace(level.String), Rate: rate})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating BonGlobal: %w", err)
	}

	if err := validation.NonEmpty("BonGlobal", len(out)); err != nil {
		return nil, fmt.Errorf("no bonus rate for campaign %d, crop %s, company %s: %w",
			scope.Campaign, scope.Crop, scope.Company, err)
	}
	if len(out) > 1 {
		r.log.Info().Int("rows", len(out)).Msg("BonGlobal returned several rows (per-category rates)")
	}
	return out, nil
}

// parseWeek reads a whole number from a scanned column. 12, 12.0, "12" and " 12 " are accepted.
func parseWeek(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, false
		}
		return int(val), true
	case nil:
		return 0, false
	}

	s := strings.TrimSpace(text(v))
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
		return int(f), true
	}
	return 0, false
}

func text(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
