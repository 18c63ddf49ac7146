package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/settlement/internal/domain"
	testingpkg "github.com/aristath/settlement/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixtureRepository(t *testing.T, statements ...string) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewSourceDB(t, "fruta", statements...)
	t.Cleanup(cleanup)
	conn := db.Conn()
	return NewRepository(conn, conn, conn, zerolog.Nop())
}

func requireRule(t *testing.T, err error, rule string) {
	t.Helper()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, rule, verr.Rule)
}

func TestWeights_FiltersScopeAndNormalizes(t *testing.T) {
	repo := newFixtureRepository(t, testingpkg.TwoGrowerSQL...)

	weights, err := repo.Weights(context.Background(), testingpkg.FixtureScope())
	require.NoError(t, err)
	require.Len(t, weights, 2)

	byTicket := map[string]domain.WeightRecord{}
	for _, w := range weights {
		byTicket[w.Ticket] = w
	}

	a := byTicket["B1"]
	assert.Equal(t, "A", a.GrowerID)
	assert.Equal(t, 1, a.Week)
	assert.True(t, decimal.NewFromInt(10).Equal(a.Calibers["c0"]))
	assert.Len(t, a.Calibers, CaliberColumns)
	assert.True(t, decimal.NewFromInt(3).Equal(a.RejectKg()))
	assert.True(t, decimal.NewFromInt(1).Equal(a.Rejects[domain.RejectRot]))

	b := byTicket["B2"]
	assert.True(t, decimal.NewFromInt(20).Equal(b.CommercialKg()))
	assert.True(t, b.RejectKg().IsZero(), "NULL rejects read as zero")
}

func TestWeights_NonNumericApodo(t *testing.T) {
	repo := newFixtureRepository(t,
		`INSERT INTO PesosFres ("CAMPAÑA", EMPRESA, CULTIVO, Apodo, Boleta, IDSocio, Cal0)
		 VALUES (2024, 'COOP', 'KAKI', 'S1', 'T9', 'A', 5), (2024, 'COOP', 'KAKI', '2', 'T10', 'A', 5)`)

	_, err := repo.Weights(context.Background(), testingpkg.FixtureScope())
	requireRule(t, err, domain.RuleNumericWeek)
	assert.Contains(t, err.Error(), "T9")
}

func TestWeights_EmptyCampaign(t *testing.T) {
	repo := newFixtureRepository(t, testingpkg.TwoGrowerSQL...)

	scope := testingpkg.FixtureScope()
	scope.Campaign = 1999
	_, err := repo.Weights(context.Background(), scope)
	requireRule(t, err, domain.RuleNonEmpty)
}

func TestCorrespondences(t *testing.T) {
	repo := newFixtureRepository(t, testingpkg.TwoGrowerSQL...)

	rows, err := repo.Correspondences(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, domain.CaliberCorrespondence{Code: "Cal0", Label: "AAA 1ª"}, rows[0])
	assert.Equal(t, "", rows[6].Label, "NULL label reads as empty")
}

func TestCertifications(t *testing.T) {
	repo := newFixtureRepository(t, testingpkg.TwoGrowerSQL...)

	rows, err := repo.Certifications(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, testingpkg.TwoGrowerCertifications(), rows)
}

func TestQualityIndex(t *testing.T) {
	repo := newFixtureRepository(t, testingpkg.TwoGrowerSQL...)

	rows, err := repo.QualityIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "N2", rows[1].Level)
	assert.True(t, decimal.RequireFromString("0.5").Equal(rows[1].Index))
}

func TestBonusRates_FlatRow(t *testing.T) {
	repo := newFixtureRepository(t, testingpkg.TwoGrowerSQL...)

	rows, err := repo.BonusRates(context.Background(), testingpkg.FixtureScope())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Level)
	assert.True(t, decimal.RequireFromString("0.1").Equal(rows[0].Rate))
}

func TestBonusRates_PerCategory(t *testing.T) {
	repo := newFixtureRepository(t,
		`INSERT INTO BonGlobal ("CAMPAÑA", CULTIVO, EMPRESA, CATEGORIA, Bonificacion)
		 VALUES (2024, 'KAKI', 'COOP', ' N1 ', 0.12), (2024, 'KAKI', 'COOP', 'N2', 0.06)`)

	rows, err := repo.BonusRates(context.Background(), testingpkg.FixtureScope())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "N1", rows[0].Level)
	assert.True(t, decimal.RequireFromString("0.06").Equal(rows[1].Rate))
}

func TestBonusRates_WithoutCategoryColumn(t *testing.T) {
	conn := testingpkg.NewRawSourceDB(t,
		`DROP TABLE BonGlobal`,
		`CREATE TABLE BonGlobal ("CAMPAÑA" INTEGER, CULTIVO TEXT, EMPRESA TEXT, Bonificacion NUMERIC)`,
		`INSERT INTO BonGlobal VALUES (2024, 'KAKI', 'COOP', 0.1)`)
	repo := NewRepository(conn, conn, conn, zerolog.Nop())

	rows, err := repo.BonusRates(context.Background(), testingpkg.FixtureScope())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Level)
}

func TestBonusRates_Missing(t *testing.T) {
	repo := newFixtureRepository(t)

	_, err := repo.BonusRates(context.Background(), testingpkg.FixtureScope())
	requireRule(t, err, domain.RuleNonEmpty)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(Paths{Fruta: "/nonexistent/fruta.db"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fruta")
}

func TestOpen_ThreeDatabases(t *testing.T) {
	fruta := testingpkg.NewSourceFile(t, "fruta", testingpkg.TwoGrowerSQL...)
	calidad := testingpkg.NewSourceFile(t, "calidad", testingpkg.TwoGrowerSQL...)
	eeppl := testingpkg.NewSourceFile(t, "eeppl", testingpkg.TwoGrowerSQL...)

	sources, err := Open(Paths{Fruta: fruta, Calidad: calidad, EEPPL: eeppl}, zerolog.Nop())
	require.NoError(t, err)
	defer sources.Close()

	weights, err := sources.Weights(context.Background(), testingpkg.FixtureScope())
	require.NoError(t, err)
	assert.Len(t, weights, 2)
}

func TestParseWeek(t *testing.T) {
	tests := []struct {
		in   interface{}
		week int
		ok   bool
	}{
		{int64(12), 12, true},
		{float64(12), 12, true},
		{12.5, 0, false},
		{" 7 ", 7, true},
		{[]byte("8"), 8, true},
		{"9.0", 9, true},
		{"S1", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		week, ok := parseWeek(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		assert.Equal(t, tt.week, week, "input %v", tt.in)
	}
}
