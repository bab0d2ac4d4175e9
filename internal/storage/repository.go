package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"finledger/internal/amqp"
	"finledger/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = `id, owner_id, date, description, amount, category_id,
	is_recurrent, recurrence_type, recurrence_end_date, recurrence_id,
	is_original_recurrence, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Date, &t.Description, &t.Amount, &t.CategoryID,
		&t.IsRecurrent, &t.RecurrenceType, &t.RecurrenceEndDate, &t.RecurrenceID,
		&t.IsOriginalRecurrence, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// FindTransaction returns one transaction scoped to its owner.
func (r *SQLiteRepository) FindTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`,
		id, ownerID)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

// ListMonth returns all of an owner's transactions dated inside the given
// month, ordered by date ascending.
func (r *SQLiteRepository) ListMonth(ctx context.Context, ownerID string, year, month int) ([]core.Transaction, error) {
	from, to := core.MonthRange(year, month)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE owner_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`,
		ownerID, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("list month: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListSeriesFrom returns the members of a recurrence series dated on or after
// from, ordered by date ascending.
func (r *SQLiteRepository) ListSeriesFrom(ctx context.Context, ownerID, recurrenceID string, from core.Timestamp) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE owner_id = ? AND recurrence_id = ? AND date >= ?
		 ORDER BY date ASC`,
		ownerID, recurrenceID, string(from))
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

const insertTransactionSQL = `INSERT INTO transactions (` + transactionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertTransaction stores a single transaction.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx, insertTransactionSQL,
		t.ID, t.OwnerID, string(t.Date), t.Description, t.Amount, t.CategoryID,
		t.IsRecurrent, string(t.RecurrenceType), string(t.RecurrenceEndDate), t.RecurrenceID,
		t.IsOriginalRecurrence, string(t.CreatedAt), string(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"transaction_id", t.ID,
		"owner_id", t.OwnerID,
		"date", t.Date)
	return nil
}

// InsertTransactionBatch stores all transactions atomically. Either every row
// is written or none are.
func (r *SQLiteRepository) InsertTransactionBatch(ctx context.Context, ts []core.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTransactionSQL)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ts {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.OwnerID, string(t.Date), t.Description, t.Amount, t.CategoryID,
			t.IsRecurrent, string(t.RecurrenceType), string(t.RecurrenceEndDate), t.RecurrenceID,
			t.IsOriginalRecurrence, string(t.CreatedAt), string(t.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}

	slog.InfoContext(ctx, "Transaction batch saved", "record_count", len(ts))
	return nil
}

// UpdateTransaction overwrites the mutable fields of an existing row.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET date = ?, description = ?, amount = ?, category_id = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		string(t.Date), t.Description, t.Amount, t.CategoryID, string(t.UpdatedAt),
		t.ID, t.OwnerID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteTransaction removes one transaction scoped to its owner.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// DeleteSeriesFrom removes every member of a recurrence series dated on or
// after from, returning how many rows were deleted.
func (r *SQLiteRepository) DeleteSeriesFrom(ctx context.Context, ownerID, recurrenceID string, from core.Timestamp) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions
		 WHERE owner_id = ? AND recurrence_id = ? AND date >= ?`,
		ownerID, recurrenceID, string(from))
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete series rows affected: %w", err)
	}

	slog.InfoContext(ctx, "Recurrence series deleted",
		"owner_id", ownerID,
		"recurrence_id", recurrenceID,
		"record_count", affected)
	return int(affected), nil
}

// CategoryExists reports whether a category row exists.
func (r *SQLiteRepository) CategoryExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM categories WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check category: %w", err)
	}
	return true, nil
}

// InsertCategory creates a category.
func (r *SQLiteRepository) InsertCategory(ctx context.Context, id, name string, createdAt core.Timestamp) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, string(createdAt))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// AppendAuditEvent records one mutation event in the audit trail.
func (r *SQLiteRepository) AppendAuditEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events
		 (event_type, owner_id, transaction_id, recurrence_id, record_count, occurred_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Type, msg.OwnerID, msg.TransactionID, msg.RecurrenceID, msg.RecordCount,
		string(core.Canonicalize(msg.Timestamp)), string(core.Now()))
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	slog.InfoContext(ctx, "Audit event recorded",
		"event_type", msg.Type,
		"transaction_id", msg.TransactionID,
		"record_count", msg.RecordCount)
	return nil
}
