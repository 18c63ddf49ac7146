package settlement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/allocation"
	"github.com/aristath/settlement/internal/modules/export"
	"github.com/aristath/settlement/internal/modules/extraction"
	"github.com/aristath/settlement/internal/modules/reference"
	testingpkg "github.com/aristath/settlement/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoGrowerParams() Parameters {
	return Parameters{
		Scope: testingpkg.FixtureScope(),
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
			Aggregated: testingpkg.TwoGrowerReference(),
		},
	}
}

func assertTwoGrowerOutcome(t *testing.T, outcome *Outcome) {
	t.Helper()
	assert.Equal(t, "1", outcome.Fund.Total.String())
	require.Len(t, outcome.Fund.Exceptions, 1)
	assert.Equal(t, "B", outcome.Fund.Exceptions[0].GrowerID)
	assert.Equal(t, domain.ReasonNotCertified, outcome.Fund.Exceptions[0].Reason)

	assert.Equal(t, "4.95", outcome.Metrics.Coefficient.String())
	assert.True(t, outcome.Metrics.Mismatch.IsZero())
	require.Len(t, outcome.Prices, 6)
	assert.Equal(t, "4.95", outcome.Prices[0].Price.String())
	assert.True(t, decimal.RequireFromString("2.475").Equal(outcome.Prices[1].Price))
	require.Len(t, outcome.Dispersion, 2)
}

func TestRun_TwoGrowerExample(t *testing.T) {
	source := testingpkg.NewTwoGrowerSource()
	sink := testingpkg.NewRecordingSink()
	svc := NewService(source, sink, zerolog.Nop())

	outcome, err := svc.Run(context.Background(), "run-1", twoGrowerParams())
	require.NoError(t, err)

	assertTwoGrowerOutcome(t, outcome)
	assert.Equal(t, "run-1", outcome.RunID)
	assert.Empty(t, outcome.Files)
	assert.Len(t, outcome.Mapping, 2)

	assert.Equal(t, 1, source.Calls("weights"))
	assert.Equal(t, 1, source.Calls("bonus_rates"))
	for _, scope := range source.Scopes() {
		assert.Equal(t, testingpkg.FixtureScope(), scope)
	}

	stages := sink.Stages()
	assert.Contains(t, stages, "calibers.grouped")
	assert.Contains(t, stages, "certification.funds")
	assert.Contains(t, stages, "allocation.metrics")

	summary := outcome.Report()
	assert.Equal(t, 1, summary.Certified)
	assert.Equal(t, 1, summary.Exceptions)
}

func TestRun_SourceErrorAbortsRun(t *testing.T) {
	source := testingpkg.NewTwoGrowerSource()
	boom := errors.New("database is locked")
	source.SetError("certifications", boom)

	_, err := NewService(source, nil, zerolog.Nop()).Run(context.Background(), "run-1", twoGrowerParams())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "load certifications")
}

func TestRun_UnmappedCaliberIsFatal(t *testing.T) {
	source := testingpkg.NewTwoGrowerSource()
	source.SetCorrespondences(testingpkg.TwoGrowerCorrespondences()[:1])

	_, err := NewService(source, nil, zerolog.Nop()).Run(context.Background(), "run-1", twoGrowerParams())
	var merr *domain.MappingError
	require.True(t, errors.As(err, &merr), "expected MappingError, got %v", err)
	assert.Equal(t, []string{"c1"}, merr.Codes)
}

func TestRun_MissingReference(t *testing.T) {
	params := twoGrowerParams()
	params.Reference = nil

	_, err := NewService(testingpkg.NewTwoGrowerSource(), nil, zerolog.Nop()).Run(context.Background(), "run-1", params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reference price source")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(testingpkg.NewTwoGrowerSource(), nil, zerolog.Nop()).Run(ctx, "run-1", twoGrowerParams())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_FromSQLiteSourcesWithExportAndLedger(t *testing.T) {
	db, cleanup := testingpkg.NewSourceDB(t, "fruta", testingpkg.TwoGrowerSQL...)
	defer cleanup()
	conn := db.Conn()
	repo := extraction.NewRepository(conn, conn, conn, zerolog.Nop())

	dir := t.TempDir()
	refPath := filepath.Join(dir, "anecop.csv")
	require.NoError(t, os.WriteFile(refPath, []byte(testingpkg.TwoGrowerReferenceCSV), 0644))

	ledgerDB, ledgerCleanup := testingpkg.NewLedgerDB(t)
	defer ledgerCleanup()
	ledger := export.NewLedgerWriter(ledgerDB.Conn(), zerolog.Nop())

	svc := NewService(repo, nil, zerolog.Nop())
	svc.SetWriter(export.NewWriter(export.Options{Dir: filepath.Join(dir, "out")}, zerolog.Nop()))
	svc.SetLedger(ledger)

	params := twoGrowerParams()
	params.Reference = nil
	params.ReferencePath = refPath

	outcome, err := svc.Run(context.Background(), "", params)
	require.NoError(t, err)
	assertTwoGrowerOutcome(t, outcome)

	require.Len(t, outcome.Unmapped, 1, "Cal6 has no label")
	assert.FileExists(t, outcome.Files[export.KindPerceco])
	assert.NotEmpty(t, outcome.RunID)

	stored, err := ledger.Prices(context.Background(), outcome.RunID)
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}
