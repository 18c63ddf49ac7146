package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SETTLEMENT_DATA_DIR", dir)
	for _, key := range []string{"LOG_LEVEL", "SETTLEMENT_PORT", "FRUTA_DB", "OUTPUT_DIR", "RESULTS_DB", "DIAGNOSTICS_FILE", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, "fruta.db"), cfg.FrutaDB)
	assert.Equal(t, filepath.Join(dir, "salidas"), cfg.OutputDir)
	assert.Empty(t, cfg.ResultsDB)
	assert.Empty(t, cfg.DiagnosticsFile)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SETTLEMENT_DATA_DIR", dir)
	t.Setenv("SETTLEMENT_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("FRUTA_DB", "/srv/fruta.db")
	t.Setenv("RESULTS_DB", "ledger.db")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "/srv/fruta.db", cfg.FrutaDB)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.ResultsDB)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestValidate_Port(t *testing.T) {
	cfg := &Config{Port: 70000, FrutaDB: "a", CalidadDB: "b", EEPPLDB: "c"}
	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"SETTLEMENT_PORT"}, verrs.Fields())
}

func TestValidate_MissingDatabases(t *testing.T) {
	cfg := &Config{Port: 8010}
	var verrs ValidationErrors
	require.ErrorAs(t, cfg.Validate(), &verrs)
	assert.Equal(t, []string{"CALIDAD_DB", "EEPPL_DB", "FRUTA_DB"}, verrs.Fields())
}
