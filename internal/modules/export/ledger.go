package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/settlement/internal/database"
	"github.com/aristath/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RunRecord is the ledger header of one settlement run.
type RunRecord struct {
	RunID     string                       `json:"run_id"`
	Scope     domain.CampaignScope         `json:"scope"`
	Metrics   domain.ReconciliationMetrics `json:"metrics"`
	CreatedAt time.Time                    `json:"created_at"`
}

// LedgerWriter persists successful runs to the settlement ledger.
// Amounts are stored as decimal text so they read back exactly.
type LedgerWriter struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLedgerWriter creates a ledger writer over a migrated ledger database.
func NewLedgerWriter(db *sql.DB, log zerolog.Logger) *LedgerWriter {
	return &LedgerWriter{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// Record stores one run atomically. An empty runID gets a fresh UUID.
// Returns the run ID used.
func (l *LedgerWriter) Record(ctx context.Context, runID string, b Bundle) (string, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	m := b.Metrics
	now := time.Now().UTC().Format(time.RFC3339)

	err := database.WithTransaction(l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_runs (run_id, campaign, company, crop, reference_week,
				gross_revenue, other_funds, bonus_fund, reject_revenue, net_target, weighted_base,
				coefficient, reconstructed, mismatch, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, b.Scope.Campaign, b.Scope.Company, b.Scope.Crop, m.ReferenceWeek,
			m.GrossRevenue.String(), m.OtherFunds.String(), m.BonusFund.String(), m.RejectRevenue.String(),
			m.NetTarget.String(), m.WeightedBase.String(), m.Coefficient.String(), m.Reconstructed.String(),
			m.Mismatch.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		priceStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO settlement_prices (run_id, week, commercial_group, grade, price)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer priceStmt.Close()
		for _, p := range b.Prices {
			if _, err := priceStmt.ExecContext(ctx, runID, p.Week, string(p.Group), string(p.Grade), p.Price.String()); err != nil {
				return fmt.Errorf("failed to insert price %d/%s/%s: %w", p.Week, p.Group, p.Grade, err)
			}
		}

		excStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO settlement_exceptions (run_id, grower_key, grower_id, reason, detail)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare exception insert: %w", err)
		}
		defer excStmt.Close()
		for _, e := range b.Exceptions {
			if _, err := excStmt.ExecContext(ctx, runID, e.Key, e.GrowerID, e.Reason, e.Detail); err != nil {
				return fmt.Errorf("failed to insert exception for %s: %w", e.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	l.log.Info().
		Str("run_id", runID).
		Int("prices", len(b.Prices)).
		Int("exceptions", len(b.Exceptions)).
		Msg("Recorded settlement run")
	return runID, nil
}

// Run loads a run header. Returns nil if the run is unknown.
func (l *LedgerWriter) Run(ctx context.Context, runID string) (*RunRecord, error) {
	var (
		rec       RunRecord
		amounts   [9]string
		createdAt string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT run_id, campaign, company, crop, reference_week,
			gross_revenue, other_funds, bonus_fund, reject_revenue, net_target, weighted_base,
			coefficient, reconstructed, mismatch, created_at
		FROM settlement_runs WHERE run_id = ?`, runID).Scan(
		&rec.RunID, &rec.Scope.Campaign, &rec.Scope.Company, &rec.Scope.Crop, &rec.Metrics.ReferenceWeek,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
		&amounts[6], &amounts[7], &amounts[8], &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	targets := []*decimal.Decimal{
		&rec.Metrics.GrossRevenue, &rec.Metrics.OtherFunds, &rec.Metrics.BonusFund,
		&rec.Metrics.RejectRevenue, &rec.Metrics.NetTarget, &rec.Metrics.WeightedBase,
		&rec.Metrics.Coefficient, &rec.Metrics.Reconstructed, &rec.Metrics.Mismatch,
	}
	for i, target := range targets {
		v, err := decimal.NewFromString(amounts[i])
		if err != nil {
			return nil, fmt.Errorf("run %s has a malformed amount %q: %w", runID, amounts[i], err)
		}
		*target = v
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("run %s has a malformed timestamp: %w", runID, err)
	}
	return &rec, nil
}

// Prices loads the final prices of a run in emission order.
func (l *LedgerWriter) Prices(ctx context.Context, runID string) ([]domain.FinalPrice, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT week, commercial_group, grade, price
		FROM settlement_prices WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices of %s: %w", runID, err)
	}
	defer rows.Close()

	var prices []domain.FinalPrice
	for rows.Next() {
		var (
			p     domain.FinalPrice
			group string
			grade string
			price string
		)
		if err := rows.Scan(&p.Week, &group, &grade, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Group = domain.Group(group)
		p.Grade = domain.Grade(grade)
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("malformed price %q: %w", price, err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	domain.SortPrices(prices)
	return prices, nil
}
