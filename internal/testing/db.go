// Package testing provides database helpers, fixtures and mocks for settlement tests.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/settlement/internal/database"
	_ "github.com/mattn/go-sqlite3" // Raw driver for seeding source fixtures
)

// NewLedgerDB creates a file-backed ledger database with the ledger schema applied.
// Returns the database instance and a cleanup function that closes the connection.
// The file lives in t.TempDir() and is removed with it.
func NewLedgerDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		t.Fatalf("Failed to create ledger database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate ledger database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			// Log error but don't fail test - cleanup should be idempotent
			t.Logf("Warning: Failed to close ledger database: %v", err)
		}
	}
}

// NewSourceFile creates a SQLite file holding the operational tables and seeds it with
// the given statements. The file is written through a raw connection, because source
// databases are only ever opened query-only by the application.
func NewSourceFile(t *testing.T, name string, statements ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("%s.db", name))
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to create source database %s: %v", name, err)
	}
	defer conn.Close()

	schema, err := LoadTestSchema("source")
	if err != nil {
		t.Fatalf("Failed to load source schema: %v", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("Failed to apply source schema to %s: %v", name, err)
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("Failed to seed source database %s: %v\n%s", name, err, stmt)
		}
	}
	return path
}

// NewSourceDB seeds a source file and opens it the way a run does (query-only).
func NewSourceDB(t *testing.T, name string, statements ...string) (*database.DB, func()) {
	t.Helper()

	path := NewSourceFile(t, name, statements...)
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileSource,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to open source database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close source database %s: %v", name, err)
		}
	}
}

// NewRawSourceDB returns an in-memory database with the source schema and seed data,
// for tests that need to write to the tables after setup.
func NewRawSourceDB(t *testing.T, statements ...string) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// Every pooled connection to :memory: is a different database
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	schema, err := LoadTestSchema("source")
	if err != nil {
		t.Fatalf("Failed to load source schema: %v", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("Failed to apply source schema: %v", err)
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("Failed to seed in-memory database: %v\n%s", err, stmt)
		}
	}
	return conn
}

// LoadTestSchema returns the contents of a named schema ("ledger" or "source").
func LoadTestSchema(name string) (string, error) {
	path, err := database.SchemaPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return string(content), nil
}
