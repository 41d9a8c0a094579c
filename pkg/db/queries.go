// Package db provides user-isolated database queries for multi-tenant architecture.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// ----------------------------------------
// Wallet Queries
// ----------------------------------------

// GetWalletsByUser returns all wallets for a specific user.
func (q *UserQueries) GetWalletsByUser(ctx context.Context, userID string) ([]Wallet, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, currency, is_halted, created_at
		FROM wallets
		WHERE user_id = ?
		ORDER BY currency
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		var w Wallet
		var halted int
		if err := rows.Scan(&w.ID, &w.UserID, &w.Currency, &halted, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		w.IsHalted = halted == 1
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ----------------------------------------
// Transaction Queries
// ----------------------------------------

// GetTransactionsByUser returns ledger rows across all of a user's wallets.
func (q *UserQueries) GetTransactionsByUser(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.wallet_id, t.type, t.amount, COALESCE(t.ref_id, ''), t.created_at
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = ?
		ORDER BY t.created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.RefID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// GetTransactionsByWallet returns ledger rows for one wallet, verifying ownership.
func (q *UserQueries) GetTransactionsByWallet(ctx context.Context, userID, walletID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.wallet_id, t.type, t.amount, COALESCE(t.ref_id, ''), t.created_at
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = ? AND t.wallet_id = ?
		ORDER BY t.created_at DESC
		LIMIT ?
	`, userID, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("query wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.RefID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ----------------------------------------
// Bot Instance Queries
// ----------------------------------------

// GetInstancesByUser returns bot instances for a specific user.
// Pass status "" for all statuses.
func (q *UserQueries) GetInstancesByUser(ctx context.Context, userID, status string) ([]BotInstance, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	query := `
		SELECT id, user_id, template_id, currency, investment, current_value,
		       profit_pct, status, tick_index, started_at, stopped_at
		FROM bot_instances
		WHERE user_id = ?
	`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

// GetInstanceByID returns a bot instance, verifying user ownership.
func (q *UserQueries) GetInstanceByID(ctx context.Context, userID, instanceID string) (*BotInstance, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	var b BotInstance
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, template_id, currency, investment, current_value,
		       profit_pct, status, tick_index, started_at, stopped_at
		FROM bot_instances
		WHERE id = ? AND user_id = ?
	`, instanceID, userID).Scan(&b.ID, &b.UserID, &b.TemplateID, &b.Currency, &b.Investment,
		&b.CurrentValue, &b.ProfitPct, &b.Status, &b.TickIndex, &b.StartedAt, &b.StoppedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	return &b, nil
}
