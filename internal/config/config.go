// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/settlement/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for databases and outputs (always absolute)
	LogLevel        string
	Port            int
	DevMode         bool // Human-readable console logs
	FrutaDB         string
	CalidadDB       string
	EEPPLDB         string
	ResultsDB       string // Settlement ledger; empty disables recording
	OutputDir       string
	DiagnosticsFile string // msgpack dump of intermediate tables; empty disables it
	AllowedOrigins  []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SETTLEMENT_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("SETTLEMENT_PORT", 8010),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		FrutaDB:         resolve(absDataDir, getEnv("FRUTA_DB", "fruta.db")),
		CalidadDB:       resolve(absDataDir, getEnv("CALIDAD_DB", "calidad.db")),
		EEPPLDB:         resolve(absDataDir, getEnv("EEPPL_DB", "eeppl.db")),
		ResultsDB:       resolve(absDataDir, getEnv("RESULTS_DB", "")),
		OutputDir:       resolve(absDataDir, getEnv("OUTPUT_DIR", "salidas")),
		DiagnosticsFile: resolve(absDataDir, getEnv("DIAGNOSTICS_FILE", "")),
		AllowedOrigins:  utils.ParseCSV(getEnv("ALLOWED_ORIGINS", "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	var errs ValidationErrors
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ValidationError{Field: "SETTLEMENT_PORT", Message: "must be between 1 and 65535"})
	}
	for field, path := range map[string]string{"FRUTA_DB": c.FrutaDB, "CALIDAD_DB": c.CalidadDB, "EEPPL_DB": c.EEPPLDB} {
		if path == "" {
			errs = append(errs, ValidationError{Field: field, Message: "is required"})
		}
	}
	if len(errs) > 0 {
		errs.sort()
		return errs
	}
	return nil
}

// resolve makes relative paths relative to the data directory. Empty stays empty.
func resolve(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
