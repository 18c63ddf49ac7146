// Package database opens the SQLite databases a settlement run reads from and writes to.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Profile selects connection PRAGMAs for a database's role.
type Profile string

const (
	// ProfileSource - operational databases owned by other systems, opened query-only
	ProfileSource Profile = "source"
	// ProfileLedger - settlement results, fsync on every write
	ProfileLedger Profile = "ledger"
)

// DB wraps a database connection with its role.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string // Database name for logging and schema lookup
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile Profile
	Name    string // e.g. "fruta", "calidad", "eeppl", "ledger"
}

// New opens a database. Source databases must already exist; ledger databases are created.
func New(cfg Config) (*DB, error) {
	if cfg.Profile == "" {
		cfg.Profile = ProfileSource
	}

	// file: URIs are used for in-memory databases in tests
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		cfg.Path = absPath

		if cfg.Profile == ProfileSource {
			if _, err := os.Stat(absPath); err != nil {
				return nil, fmt.Errorf("database %s not found at %s: %w", cfg.Name, absPath, err)
			}
		} else if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}
	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
	}, nil
}

// buildConnectionString creates SQLite connection string with profile-specific PRAGMAs
func buildConnectionString(path string, profile Profile) string {
	var pragmas []string

	switch profile {
	case ProfileSource:
		// Never write to databases owned by other systems
		pragmas = append(pragmas, "query_only(1)")
	case ProfileLedger:
		pragmas = append(pragmas,
			"journal_mode(WAL)",
			"synchronous(FULL)", // Fsync after every write
			"foreign_keys(1)",
		)
	}
	pragmas = append(pragmas, "busy_timeout(5000)")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// configureConnectionPool sizes the pool. A run is a single batch, so few connections suffice.
func configureConnectionPool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	// Ledger writes are serialized
	if profile == ProfileLedger {
		conn.SetMaxOpenConns(1)
	}
}

// findSchemasDirectory locates internal/database/schemas next to this source file,
// independent of the working directory.
func findSchemasDirectory() (string, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	absFile, err := filepath.Abs(currentFile)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path of source file: %w", err)
	}

	schemasDir := filepath.Join(filepath.Dir(absFile), "schemas")
	if info, err := os.Stat(schemasDir); err != nil {
		return "", fmt.Errorf("schemas directory not found at %s: %w", schemasDir, err)
	} else if !info.IsDir() {
		return "", fmt.Errorf("schemas path exists but is not a directory: %s", schemasDir)
	}

	return schemasDir, nil
}

// SchemaPath returns the schema file of a named database.
// "ledger" is the settlement ledger; "source" holds the operational tables and is used by fixtures.
func SchemaPath(name string) (string, error) {
	schemaFiles := map[string]string{
		"ledger": "ledger_schema.sql",
		"source": "source_schema.sql",
	}
	file, ok := schemaFiles[name]
	if !ok {
		return "", fmt.Errorf("no schema for database %q", name)
	}

	dir, err := findSchemasDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file), nil
}

// Migrate applies the schema of a ledger database. Source databases are never migrated.
func (db *DB) Migrate() error {
	if db.profile != ProfileLedger {
		return nil
	}
	return db.ApplySchema("ledger")
}

// ApplySchema executes a schema file inside a transaction.
func (db *DB) ApplySchema(name string) error {
	path, err := SchemaPath(name)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", path, err)
	}

	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute schema %s for %s: %w", name, db.name, err)
		}
		return nil
	})
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
// Used by repositories to execute queries
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Profile returns the database profile
func (db *DB) Profile() Profile {
	return db.profile
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// WithTransaction executes a function within a database transaction.
// If the function returns an error or panics, the transaction is rolled back.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

// TableColumns returns the upper-cased column names of a table.
// Source tables differ between installations, so optional columns are probed before querying.
func TableColumns(ctx context.Context, conn *sql.DB, table string) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[strings.ToUpper(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", table, err)
	}
	return cols, nil
}

// QuickCheck pings the database
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
