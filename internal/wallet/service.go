// Package wallet exposes deposit, withdrawal and projection operations over
// the ledger, with KYC limits applied inline.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bot-core/internal/events"
	"bot-core/internal/kyc"
	"bot-core/internal/ledger"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrKycLimitExceeded = errors.New("kyc limit exceeded")
)

// Service orchestrates wallet-facing operations.
type Service struct {
	db     *db.Database
	ledger *ledger.Ledger
	bus    *events.Bus

	referralBonus float64
}

// NewService creates the wallet service.
func NewService(database *db.Database, lgr *ledger.Ledger, bus *events.Bus, referralBonus float64) *Service {
	return &Service{db: database, ledger: lgr, bus: bus, referralBonus: referralBonus}
}

// WalletView is a wallet projection with its derived balance.
type WalletView struct {
	db.Wallet
	Balance float64 `json:"balance"`
}

// SettleDeposit credits a confirmed deposit. In this closed-ledger
// simulation the settlement confirmation itself is the caller's concern.
func (s *Service) SettleDeposit(ctx context.Context, userID, currency string, amount float64) (db.Transaction, float64, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return db.Transaction{}, 0, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return db.Transaction{}, 0, ErrUserNotFound
	}
	if dec := kyc.CheckLimit(user.KycTier, kyc.OpDeposit, amount); !dec.Allowed {
		return db.Transaction{}, 0, fmt.Errorf("%w: %s", ErrKycLimitExceeded, dec.Reason)
	}

	w, err := s.ledger.GetOrCreateWallet(ctx, userID, currency)
	if err != nil {
		return db.Transaction{}, 0, err
	}

	row, balance, err := s.ledger.Append(ctx, w.ID, db.TxDeposit, amount, "")
	if err != nil {
		return db.Transaction{}, 0, err
	}

	if s.bus != nil {
		s.bus.Publish(events.EventDeposit, events.WalletEvent{
			UserID:   userID,
			WalletID: w.ID,
			Currency: currency,
			Amount:   amount,
			At:       time.Now(),
		})
	}
	return row, balance, nil
}

// Withdraw debits the wallet toward a destination address. Settlement on
// chain is out of scope; the ledger row is the record of intent.
func (s *Service) Withdraw(ctx context.Context, userID, currency string, amount float64, destination string) (db.Transaction, float64, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return db.Transaction{}, 0, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return db.Transaction{}, 0, ErrUserNotFound
	}
	if dec := kyc.CheckLimit(user.KycTier, kyc.OpWithdrawal, amount); !dec.Allowed {
		return db.Transaction{}, 0, fmt.Errorf("%w: %s", ErrKycLimitExceeded, dec.Reason)
	}

	w, err := s.db.GetWallet(ctx, userID, currency)
	if err != nil {
		return db.Transaction{}, 0, fmt.Errorf("load wallet: %w", err)
	}
	if w == nil {
		return db.Transaction{}, 0, ledger.ErrWalletNotFound
	}

	row, balance, err := s.ledger.Append(ctx, w.ID, db.TxWithdrawal, -amount, "")
	if err != nil {
		return db.Transaction{}, 0, err
	}

	log.Printf(i18n.Get("WithdrawalRecorded"), amount, currency, userID, destination)
	if s.bus != nil {
		s.bus.Publish(events.EventWithdrawal, events.WalletEvent{
			UserID:   userID,
			WalletID: w.ID,
			Currency: currency,
			Amount:   amount,
			At:       time.Now(),
		})
	}
	return row, balance, nil
}

// CreditReferral pays the signup bonus to the referrer's wallet. Best-effort:
// a failure here must not fail the registration that triggered it.
func (s *Service) CreditReferral(ctx context.Context, referrerID, currency, refUserID string) {
	if s.referralBonus <= 0 {
		return
	}
	w, err := s.ledger.GetOrCreateWallet(ctx, referrerID, currency)
	if err != nil {
		log.Printf(i18n.Get("ReferralCreditFailed"), referrerID, err)
		return
	}
	if _, _, err := s.ledger.Append(ctx, w.ID, db.TxReferral, s.referralBonus, refUserID); err != nil {
		log.Printf(i18n.Get("ReferralCreditFailed"), referrerID, err)
	}
}

// Wallets returns the user's wallets with derived balances.
func (s *Service) Wallets(ctx context.Context, userID string) ([]WalletView, error) {
	wallets, err := s.db.Queries().GetWalletsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]WalletView, 0, len(wallets))
	for _, w := range wallets {
		bal, err := s.ledger.Balance(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, WalletView{Wallet: w, Balance: bal})
	}
	return views, nil
}

// Transactions returns the user's ledger history, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]db.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.db.Queries().GetTransactionsByUser(ctx, userID, limit)
}
