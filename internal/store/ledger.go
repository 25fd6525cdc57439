package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/task"
)

type ledgerTable string

const (
	xpTable     ledgerTable = "xp_transactions"
	creditTable ledgerTable = "credit_transactions"
)

// insertLedger appends one transaction. It runs on whatever q is, so reward
// rows commit together with the transition that earned them.
func insertLedger(ctx context.Context, q queryer, table ledgerTable, userID string, amount int, reason string, taskID *string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+string(table)+` (user_id, amount, reason, task_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, amount, reason, nullString(taskID), now,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Balance sums a user's XP and credit ledgers.
func (s *LedgerStore) Balance(ctx context.Context, userID string) (*model.Balance, error) {
	b := &model.Balance{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE((SELECT SUM(amount) FROM xp_transactions WHERE user_id = ?), 0),
			COALESCE((SELECT SUM(amount) FROM credit_transactions WHERE user_id = ?), 0)`,
		userID, userID,
	).Scan(&b.XP, &b.Credits)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	b.Level = task.Level(b.XP)
	return b, nil
}

func (s *LedgerStore) ListXP(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	return s.list(ctx, xpTable, userID, limit)
}

func (s *LedgerStore) ListCredits(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	return s.list(ctx, creditTable, userID, limit)
}

func (s *LedgerStore) list(ctx context.Context, table ledgerTable, userID string, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, task_id, created_at FROM `+string(table)+`
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var taskID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &taskID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		e.TaskID = stringPtr(taskID)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
