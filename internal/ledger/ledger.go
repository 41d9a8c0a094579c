// Package ledger owns per-wallet balances derived from an append-only
// transaction log. Every balance-affecting operation in the platform funnels
// through Append or Atomic; nothing else writes ledger rows.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"bot-core/internal/events"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
	"bot-core/pkg/lock"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletHalted        = errors.New("wallet halted pending reconciliation")
	ErrIntegrity           = errors.New("ledger integrity violation")

	// ErrBusy is surfaced when the per-wallet lock cannot be taken in time.
	ErrBusy = lock.ErrBusy
)

var debitTypes = map[string]bool{
	db.TxWithdrawal:    true,
	db.TxBotInvestment: true,
}

// Ledger is the wallet ledger service.
type Ledger struct {
	db    *db.Database
	locks *lock.KeyedMutex
	cache *ristretto.Cache
	bus   *events.Bus
}

// New creates a ledger over the given database.
func New(database *db.Database, bus *events.Bus, lockTimeout time.Duration) (*Ledger, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create balance cache: %w", err)
	}
	return &Ledger{
		db:    database,
		locks: lock.NewKeyedMutex(lockTimeout),
		cache: cache,
		bus:   bus,
	}, nil
}

// GetOrCreateWallet returns the (user, currency) wallet, creating it if
// needed. Creation never writes a transaction row.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, userID, currency string) (*db.Wallet, error) {
	w, err := l.db.GetWallet(ctx, userID, currency)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if w != nil {
		return w, nil
	}

	nw := db.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: time.Now(),
	}
	if err := l.db.CreateWallet(ctx, nw); err != nil {
		// A concurrent creator may have won the UNIQUE(user_id, currency)
		// race; the existing row is the answer either way.
		if w, rerr := l.db.GetWallet(ctx, userID, currency); rerr == nil && w != nil {
			return w, nil
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return &nw, nil
}

// Atomic runs fn as one ledger-affecting unit on a wallet: the per-wallet
// lock is held for the duration, the wallet's halted flag is checked first,
// and all writes share one SQL transaction. The balance cache entry is
// dropped after a successful commit.
func (l *Ledger) Atomic(ctx context.Context, walletID string, fn func(tx *sql.Tx) error) error {
	if err := l.locks.Acquire(walletID); err != nil {
		return err
	}
	defer l.locks.Release(walletID)

	w, err := l.db.GetWalletByID(ctx, walletID)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	if w == nil {
		return ErrWalletNotFound
	}
	if w.IsHalted {
		return ErrWalletHalted
	}

	tx, err := l.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	l.cache.Del(walletID)
	return nil
}

// AppendInTx validates and inserts one ledger row inside an open Atomic unit.
// Debits that would drive the balance negative fail ErrInsufficientBalance.
// Returns the appended row and the resulting balance.
func (l *Ledger) AppendInTx(ctx context.Context, tx *sql.Tx, walletID, txType string, amount float64, refID string) (db.Transaction, float64, error) {
	balance, err := db.SumTransactionsTx(ctx, tx, walletID)
	if err != nil {
		return db.Transaction{}, 0, fmt.Errorf("sum transactions: %w", err)
	}

	if amount < 0 && balance+amount < 0 {
		return db.Transaction{}, 0, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientBalance, -amount, balance)
	}
	if debitTypes[txType] && amount > 0 {
		return db.Transaction{}, 0, fmt.Errorf("debit type %s requires a negative amount", txType)
	}

	row := db.Transaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Type:      txType,
		Amount:    amount,
		RefID:     refID,
		CreatedAt: time.Now(),
	}
	if err := db.InsertTransactionTx(ctx, tx, row); err != nil {
		return db.Transaction{}, 0, fmt.Errorf("append transaction: %w", err)
	}
	return row, balance + amount, nil
}

// Append is the single standalone mutation primitive: one validated ledger
// row in its own atomic unit.
func (l *Ledger) Append(ctx context.Context, walletID, txType string, amount float64, refID string) (db.Transaction, float64, error) {
	var (
		row     db.Transaction
		balance float64
	)
	err := l.Atomic(ctx, walletID, func(tx *sql.Tx) error {
		var ierr error
		row, balance, ierr = l.AppendInTx(ctx, tx, walletID, txType, amount, refID)
		return ierr
	})
	if err != nil {
		return db.Transaction{}, 0, err
	}

	log.Printf(i18n.Get("LedgerAppended"), txType, amount, walletID, balance)
	return row, balance, nil
}

// Balance returns the wallet balance: cached when warm, recomputed from the
// log on a miss. The cache is only a read-path shortcut; debit validation
// always recomputes under the wallet lock.
func (l *Ledger) Balance(ctx context.Context, walletID string) (float64, error) {
	if v, ok := l.cache.Get(walletID); ok {
		if bal, ok := v.(float64); ok {
			return bal, nil
		}
	}

	bal, err := l.db.SumTransactions(ctx, walletID)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	l.cache.Set(walletID, bal, 1)
	return bal, nil
}

// Verify recomputes the wallet balance and compares it against the cached
// value. A mismatch is fatal for the wallet: it is halted, an alert is
// published, and every further write fails until manual reconciliation.
func (l *Ledger) Verify(ctx context.Context, walletID string) error {
	computed, err := l.db.SumTransactions(ctx, walletID)
	if err != nil {
		return fmt.Errorf("sum transactions: %w", err)
	}

	v, ok := l.cache.Get(walletID)
	if !ok {
		l.cache.Set(walletID, computed, 1)
		return nil
	}
	cached, ok := v.(float64)
	if !ok || cached == computed {
		return nil
	}

	log.Printf(i18n.Get("LedgerIntegrityFailed"), walletID, cached, computed)
	if err := l.db.HaltWallet(ctx, walletID); err != nil {
		return fmt.Errorf("halt wallet: %w", err)
	}
	l.cache.Del(walletID)
	if l.bus != nil {
		l.bus.Publish(events.EventLedgerAlert, events.LedgerAlert{
			WalletID: walletID,
			Cached:   cached,
			Computed: computed,
			At:       time.Now(),
		})
	}
	return fmt.Errorf("%w: wallet %s cached=%.2f computed=%.2f", ErrIntegrity, walletID, cached, computed)
}
