package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id                 TEXT PRIMARY KEY,
	merchant           TEXT NOT NULL DEFAULT '',
	amount             REAL NOT NULL DEFAULT 0,
	tx_date            TEXT NOT NULL DEFAULT '',
	litres             REAL NOT NULL DEFAULT 0,
	fuel_type          TEXT NOT NULL DEFAULT '',
	price_per_litre    REAL NOT NULL DEFAULT 0,
	invoice_number     TEXT NOT NULL DEFAULT '',
	kra_verified       INTEGER NOT NULL DEFAULT 0,
	overall_status     TEXT NOT NULL,
	needs_review       INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	record             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at);
`

// SQLiteStore keeps reconciled transactions in an embedded sqlite file.
// The denormalized columns exist for ad-hoc querying; the full record
// round-trips through the JSON column.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, tx *entity.ReconciledTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	record, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	txDate := ""
	if !tx.TxDate.Value.IsZero() {
		txDate = tx.TxDate.Value.Format("2006-01-02")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, merchant, amount, tx_date, litres, fuel_type, price_per_litre,
			invoice_number, kra_verified, overall_status, needs_review,
			processing_time_ms, created_at, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID.String(),
		tx.Merchant.Value,
		tx.Amount.Value,
		txDate,
		tx.Litres.Value,
		tx.FuelType.Value,
		tx.PricePerLitre.Value,
		tx.InvoiceNumber,
		boolToInt(tx.KRAVerified),
		string(tx.OverallStatus),
		boolToInt(tx.NeedsReview()),
		tx.ProcessingTimeMs,
		tx.CreatedAt.UTC().Format(time.RFC3339),
		string(record),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	s.logger.Info("store.save.ok", "id", tx.ID, "status", tx.OverallStatus, "amount", tx.Amount.Value)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, from, to *time.Time) ([]entity.ReconciledTransaction, error) {
	query := `SELECT record FROM transactions`
	var (
		conds []string
		args  []any
	)
	if from != nil {
		conds = append(conds, `created_at >= ?`)
		args = append(args, from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		conds = append(conds, `created_at <= ?`)
		args = append(args, to.UTC().Format(time.RFC3339))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []entity.ReconciledTransaction
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var tx entity.ReconciledTransaction
		if err := json.Unmarshal([]byte(record), &tx); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
