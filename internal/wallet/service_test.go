package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"bot-core/internal/events"
	"bot-core/internal/ledger"
	"bot-core/pkg/db"
)

func newTestService(t *testing.T) (*Service, *db.Database, *ledger.Ledger) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	bus := events.NewBus()
	lgr, err := ledger.New(database, bus, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	return NewService(database, lgr, bus, 10), database, lgr
}

func seedUser(t *testing.T, database *db.Database, id string, tier int) {
	t.Helper()
	u := db.User{
		ID: id, Email: id + "@test.co", PasswordHash: "x", KycTier: tier,
		ReferralCode: "ref-" + id,
		CreatedAt:    time.Now(), UpdatedAt: time.Now(),
	}
	if err := database.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
}

func TestSettleDepositCreatesWalletAndCredits(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, database, "user-1", 1)

	row, balance, err := svc.SettleDeposit(ctx, "user-1", "USDT", 500)
	if err != nil {
		t.Fatalf("SettleDeposit failed: %v", err)
	}
	if row.Type != db.TxDeposit || row.Amount != 500 {
		t.Errorf("unexpected row %+v", row)
	}
	if balance != 500 {
		t.Errorf("expected balance 500, got %.2f", balance)
	}

	views, err := svc.Wallets(ctx, "user-1")
	if err != nil {
		t.Fatalf("Wallets failed: %v", err)
	}
	if len(views) != 1 || views[0].Balance != 500 {
		t.Errorf("unexpected wallet views %+v", views)
	}
}

func TestSettleDepositEnforcesTierCeiling(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, database, "user-1", 0) // tier 0 deposit ceiling is 100

	if _, _, err := svc.SettleDeposit(ctx, "user-1", "USDT", 150); !errors.Is(err, ErrKycLimitExceeded) {
		t.Errorf("expected ErrKycLimitExceeded, got %v", err)
	}
	if _, _, err := svc.SettleDeposit(ctx, "user-1", "USDT", 100); err != nil {
		t.Errorf("deposit at ceiling should pass, got %v", err)
	}
}

func TestWithdrawDebitsWithLimits(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, database, "user-1", 1) // tier 1 withdrawal ceiling is 500

	if _, _, err := svc.SettleDeposit(ctx, "user-1", "USDT", 1000); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	t.Run("over tier ceiling", func(t *testing.T) {
		_, _, err := svc.Withdraw(ctx, "user-1", "USDT", 600, "0xdest")
		if !errors.Is(err, ErrKycLimitExceeded) {
			t.Errorf("expected ErrKycLimitExceeded, got %v", err)
		}
	})

	t.Run("within ceiling", func(t *testing.T) {
		row, balance, err := svc.Withdraw(ctx, "user-1", "USDT", 400, "0xdest")
		if err != nil {
			t.Fatalf("Withdraw failed: %v", err)
		}
		if row.Amount != -400 {
			t.Errorf("expected ledger amount -400, got %.2f", row.Amount)
		}
		if balance != 600 {
			t.Errorf("expected balance 600, got %.2f", balance)
		}
	})

	t.Run("over balance", func(t *testing.T) {
		// Tier allows 500 but only 600 remain; drain below zero must fail.
		if _, _, err := svc.Withdraw(ctx, "user-1", "USDT", 500, "0xdest"); err != nil {
			t.Fatalf("Withdraw failed: %v", err)
		}
		_, _, err := svc.Withdraw(ctx, "user-1", "USDT", 200, "0xdest")
		if !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Errorf("expected ErrInsufficientBalance, got %v", err)
		}
	})
}

func TestWithdrawUnknownWallet(t *testing.T) {
	svc, database, _ := newTestService(t)
	seedUser(t, database, "user-1", 1)

	_, _, err := svc.Withdraw(context.Background(), "user-1", "BTC", 10, "dest")
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestCreditReferral(t *testing.T) {
	svc, database, lgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, database, "referrer", 1)

	svc.CreditReferral(ctx, "referrer", "USDT", "new-user")

	w, err := database.GetWallet(ctx, "referrer", "USDT")
	if err != nil || w == nil {
		t.Fatalf("referrer wallet missing: %v", err)
	}
	bal, err := lgr.Balance(ctx, w.ID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != 10 {
		t.Errorf("expected referral bonus 10, got %.2f", bal)
	}

	n, err := database.CountTransactions(ctx, w.ID, db.TxReferral)
	if err != nil {
		t.Fatalf("CountTransactions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 referral row, got %d", n)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	svc, database, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, database, "user-1", 2)

	for _, amt := range []float64{100, 200, 300} {
		if _, _, err := svc.SettleDeposit(ctx, "user-1", "USDT", amt); err != nil {
			t.Fatalf("deposit failed: %v", err)
		}
	}

	txs, err := svc.Transactions(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("expected limit of 2 rows, got %d", len(txs))
	}
}
