package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Bot instance lifecycle states.
const (
	StatusRunning = "RUNNING"
	StatusStopped = "STOPPED"
)

// Ledger transaction types.
const (
	TxDeposit       = "deposit"
	TxWithdrawal    = "withdrawal"
	TxBotInvestment = "bot_investment"
	TxBotProfit     = "bot_profit"
	TxReferral      = "referral"
)

// KYC document states.
const (
	KycNotStarted = "not_started"
	KycPending    = "pending"
	KycApproved   = "approved"
	KycRejected   = "rejected"
)

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	KycTier      int
	ReferralCode string
	ReferredBy   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Wallet is one user's balance container for a single currency.
// The balance itself is never stored; it is derived from the transaction log.
type Wallet struct {
	ID        string
	UserID    string
	Currency  string
	IsHalted  bool
	CreatedAt time.Time
}

// Transaction is one append-only ledger row with a signed amount.
type Transaction struct {
	ID        string
	WalletID  string
	Type      string
	Amount    float64
	RefID     string // bot instance reference where applicable
	CreatedAt time.Time
}

// BotTemplate is an immutable catalog entry.
type BotTemplate struct {
	ID            string
	Name          string
	Strategy      string
	RiskLevel     string
	MinProfitPct  float64
	MaxProfitPct  float64
	MinInvestment float64
	MaxInvestment float64
	IsActive      bool
	CreatedAt     time.Time
}

// BotInstance is one user's live or closed investment in a template.
type BotInstance struct {
	ID           string
	UserID       string
	TemplateID   string
	Currency     string
	Investment   float64
	CurrentValue float64
	ProfitPct    float64
	Status       string
	TickIndex    int64
	StartedAt    time.Time
	StoppedAt    sql.NullTime
}

// DepositAddress is a provisioned address for a (wallet, network) pair.
type DepositAddress struct {
	ID        string
	WalletID  string
	Network   string
	Address   string
	CreatedAt time.Time
}

// KycRecord is one document submission for a verification level.
type KycRecord struct {
	ID          string
	UserID      string
	Level       int
	DocType     string
	Status      string
	SubmittedAt time.Time
	ReviewedAt  sql.NullTime
}

// ----------------------------------------
// Users
// ----------------------------------------

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, kyc_tier, referral_code, referred_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.KycTier, u.ReferralCode, u.ReferredBy, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, kyc_tier, referral_code, referred_by, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	return scanUser(row)
}

// GetUserByID returns a user by ID or nil if not found.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, kyc_tier, referral_code, referred_by, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// GetUserByReferralCode returns the user owning a referral code, or nil.
func (d *Database) GetUserByReferralCode(ctx context.Context, code string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, kyc_tier, referral_code, referred_by, created_at, updated_at
		FROM users WHERE referral_code = ?
	`, code)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.KycTier, &u.ReferralCode, &u.ReferredBy, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AdvanceUserTier raises a user's KYC tier. The guard keeps the tier
// monotonic: a concurrent or stale caller can never lower it.
func (d *Database) AdvanceUserTier(ctx context.Context, userID string, tier int) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE users SET kyc_tier = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND kyc_tier < ?
	`, tier, userID, tier)
	return err
}

// ----------------------------------------
// Wallets & transactions
// ----------------------------------------

// CreateWallet inserts a wallet row. Creation never writes a transaction.
func (d *Database) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, currency, is_halted, created_at)
		VALUES (?, ?, ?, 0, COALESCE(?, CURRENT_TIMESTAMP))
	`, w.ID, w.UserID, w.Currency, w.CreatedAt)
	return err
}

// GetWallet returns the wallet for (user, currency) or nil if not found.
func (d *Database) GetWallet(ctx context.Context, userID, currency string) (*Wallet, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, currency, is_halted, created_at
		FROM wallets WHERE user_id = ? AND currency = ?
	`, userID, currency)
	return scanWallet(row)
}

// GetWalletByID returns a wallet by ID or nil if not found.
func (d *Database) GetWalletByID(ctx context.Context, id string) (*Wallet, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, currency, is_halted, created_at
		FROM wallets WHERE id = ?
	`, id)
	return scanWallet(row)
}

// ListWallets returns every wallet, halted ones included.
func (d *Database) ListWallets(ctx context.Context) ([]Wallet, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, currency, is_halted, created_at FROM wallets
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Wallet
	for rows.Next() {
		var w Wallet
		var halted int
		if err := rows.Scan(&w.ID, &w.UserID, &w.Currency, &halted, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.IsHalted = halted == 1
		res = append(res, w)
	}
	return res, rows.Err()
}

func scanWallet(row *sql.Row) (*Wallet, error) {
	var w Wallet
	var halted int
	err := row.Scan(&w.ID, &w.UserID, &w.Currency, &halted, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.IsHalted = halted == 1
	return &w, nil
}

// HaltWallet marks a wallet as frozen pending manual reconciliation.
func (d *Database) HaltWallet(ctx context.Context, walletID string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE wallets SET is_halted = 1 WHERE id = ?`, walletID)
	return err
}

// InsertTransactionTx appends a ledger row inside an open SQL transaction.
func InsertTransactionTx(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, wallet_id, type, amount, ref_id, created_at)
		VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.WalletID, t.Type, t.Amount, t.RefID, t.CreatedAt)
	return err
}

// SumTransactionsTx recomputes a wallet balance inside an open SQL transaction.
func SumTransactionsTx(ctx context.Context, tx *sql.Tx, walletID string) (float64, error) {
	var sum float64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE wallet_id = ?
	`, walletID).Scan(&sum)
	return sum, err
}

// SumTransactions recomputes a wallet balance from the full log.
func (d *Database) SumTransactions(ctx context.Context, walletID string) (float64, error) {
	var sum float64
	err := d.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE wallet_id = ?
	`, walletID).Scan(&sum)
	return sum, err
}

// CountTransactions returns the number of ledger rows of a type for a wallet.
func (d *Database) CountTransactions(ctx context.Context, walletID, txType string) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE wallet_id = ? AND type = ?
	`, walletID, txType).Scan(&n)
	return n, err
}

// ----------------------------------------
// Bot templates & instances
// ----------------------------------------

// GetTemplate returns a template by ID or nil if not found.
func (d *Database) GetTemplate(ctx context.Context, id string) (*BotTemplate, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, name, strategy, risk_level, min_profit_pct, max_profit_pct,
		       min_investment, max_investment, is_active, created_at
		FROM bot_templates WHERE id = ?
	`, id)
	var t BotTemplate
	var active int
	err := row.Scan(&t.ID, &t.Name, &t.Strategy, &t.RiskLevel, &t.MinProfitPct, &t.MaxProfitPct,
		&t.MinInvestment, &t.MaxInvestment, &active, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.IsActive = active == 1
	return &t, nil
}

// ListActiveTemplates returns the browsable catalog.
func (d *Database) ListActiveTemplates(ctx context.Context) ([]BotTemplate, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, name, strategy, risk_level, min_profit_pct, max_profit_pct,
		       min_investment, max_investment, is_active, created_at
		FROM bot_templates WHERE is_active = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []BotTemplate
	for rows.Next() {
		var t BotTemplate
		var active int
		if err := rows.Scan(&t.ID, &t.Name, &t.Strategy, &t.RiskLevel, &t.MinProfitPct, &t.MaxProfitPct,
			&t.MinInvestment, &t.MaxInvestment, &active, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.IsActive = active == 1
		res = append(res, t)
	}
	return res, rows.Err()
}

// CreateBotInstanceTx inserts a running instance inside an open SQL transaction.
func CreateBotInstanceTx(ctx context.Context, tx *sql.Tx, b BotInstance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bot_instances (
			id, user_id, template_id, currency, investment, current_value,
			profit_pct, status, tick_index, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, b.ID, b.UserID, b.TemplateID, b.Currency, b.Investment, b.CurrentValue,
		b.ProfitPct, b.Status, b.TickIndex, b.StartedAt)
	return err
}

// GetBotInstance returns an instance by ID or nil if not found.
func (d *Database) GetBotInstance(ctx context.Context, id string) (*BotInstance, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, user_id, template_id, currency, investment, current_value,
		       profit_pct, status, tick_index, started_at, stopped_at
		FROM bot_instances WHERE id = ?
	`, id)
	var b BotInstance
	err := row.Scan(&b.ID, &b.UserID, &b.TemplateID, &b.Currency, &b.Investment, &b.CurrentValue,
		&b.ProfitPct, &b.Status, &b.TickIndex, &b.StartedAt, &b.StoppedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListRunningInstances returns all running instances (engine reload on startup).
func (d *Database) ListRunningInstances(ctx context.Context) ([]BotInstance, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, template_id, currency, investment, current_value,
		       profit_pct, status, tick_index, started_at, stopped_at
		FROM bot_instances WHERE status = ?
	`, StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstances(rows)
}

func collectInstances(rows *sql.Rows) ([]BotInstance, error) {
	var res []BotInstance
	for rows.Next() {
		var b BotInstance
		if err := rows.Scan(&b.ID, &b.UserID, &b.TemplateID, &b.Currency, &b.Investment, &b.CurrentValue,
			&b.ProfitPct, &b.Status, &b.TickIndex, &b.StartedAt, &b.StoppedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// UpdateInstanceValue persists the result of one profit tick. The status
// guard keeps a stopped instance immutable; the affected row count tells the
// caller whether the guard fired.
func (d *Database) UpdateInstanceValue(ctx context.Context, id string, currentValue, profitPct float64, tickIndex int64) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE bot_instances
		SET current_value = ?, profit_pct = ?, tick_index = ?
		WHERE id = ? AND status = ?
	`, currentValue, profitPct, tickIndex, id, StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StopBotInstanceTx finalizes an instance inside an open SQL transaction.
// Returns the affected row count so callers can detect a lost race.
func StopBotInstanceTx(ctx context.Context, tx *sql.Tx, id string, finalValue, profitPct float64, stoppedAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bot_instances
		SET status = ?, current_value = ?, profit_pct = ?, stopped_at = ?
		WHERE id = ? AND status = ?
	`, StatusStopped, finalValue, profitPct, stoppedAt, id, StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ----------------------------------------
// Deposit addresses
// ----------------------------------------

// CreateDepositAddress inserts a provisioned address. The UNIQUE(wallet_id,
// network) constraint makes concurrent duplicate inserts fail loudly.
func (d *Database) CreateDepositAddress(ctx context.Context, a DepositAddress) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO deposit_addresses (id, wallet_id, network, address, created_at)
		VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, a.ID, a.WalletID, a.Network, a.Address, a.CreatedAt)
	return err
}

// GetDepositAddress returns the address row for (wallet, network) or nil.
func (d *Database) GetDepositAddress(ctx context.Context, walletID, network string) (*DepositAddress, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, wallet_id, network, address, created_at
		FROM deposit_addresses WHERE wallet_id = ? AND network = ?
	`, walletID, network)
	var a DepositAddress
	err := row.Scan(&a.ID, &a.WalletID, &a.Network, &a.Address, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ----------------------------------------
// KYC records
// ----------------------------------------

// UpsertKycRecord records a document submission. Re-submitting after a
// rejection resets the row to pending.
func (d *Database) UpsertKycRecord(ctx context.Context, r KycRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO kyc_records (id, user_id, level, doc_type, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
		ON CONFLICT(user_id, level, doc_type) DO UPDATE SET
			status = excluded.status,
			submitted_at = CURRENT_TIMESTAMP,
			reviewed_at = NULL
	`, r.ID, r.UserID, r.Level, r.DocType, r.Status, r.SubmittedAt)
	return err
}

// ReviewKycRecord sets the review outcome for a submission.
func (d *Database) ReviewKycRecord(ctx context.Context, userID string, level int, docType, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE kyc_records
		SET status = ?, reviewed_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND level = ? AND doc_type = ?
	`, status, userID, level, docType)
	return err
}

// ListKycRecords returns all submissions for a user.
func (d *Database) ListKycRecords(ctx context.Context, userID string) ([]KycRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, level, doc_type, status, submitted_at, reviewed_at
		FROM kyc_records WHERE user_id = ?
		ORDER BY level, doc_type
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []KycRecord
	for rows.Next() {
		var r KycRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Level, &r.DocType, &r.Status, &r.SubmittedAt, &r.ReviewedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// ApprovedDocTypes returns the set of approved document types for a level.
func (d *Database) ApprovedDocTypes(ctx context.Context, userID string, level int) (map[string]bool, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT doc_type FROM kyc_records
		WHERE user_id = ? AND level = ? AND status = ?
	`, userID, level, KycApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[string]bool)
	for rows.Next() {
		var dt string
		if err := rows.Scan(&dt); err != nil {
			return nil, err
		}
		res[dt] = true
	}
	return res, rows.Err()
}
