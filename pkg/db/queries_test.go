package db

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestUserQueriesRequireUserID(t *testing.T) {
	database := newTestDB(t)
	q := database.Queries()
	ctx := context.Background()

	t.Run("GetWalletsByUser requires userID", func(t *testing.T) {
		_, err := q.GetWalletsByUser(ctx, "")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("GetTransactionsByUser requires userID", func(t *testing.T) {
		_, err := q.GetTransactionsByUser(ctx, "", 100)
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("GetInstancesByUser requires userID", func(t *testing.T) {
		_, err := q.GetInstancesByUser(ctx, "", "")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})

	t.Run("GetInstanceByID requires userID", func(t *testing.T) {
		_, err := q.GetInstanceByID(ctx, "", "inst-1")
		if err != ErrUserIDRequired {
			t.Errorf("expected ErrUserIDRequired, got %v", err)
		}
	})
}

func TestUserQueriesDataIsolation(t *testing.T) {
	database := newTestDB(t)
	q := database.Queries()
	ctx := context.Background()

	userA := "user-a-123"
	userB := "user-b-456"

	walletA := Wallet{ID: "wallet-a-1", UserID: userA, Currency: "USDT", CreatedAt: time.Now()}
	walletB := Wallet{ID: "wallet-b-1", UserID: userB, Currency: "USDT", CreatedAt: time.Now()}
	if err := database.CreateWallet(ctx, walletA); err != nil {
		t.Fatalf("Failed to create wallet A: %v", err)
	}
	if err := database.CreateWallet(ctx, walletB); err != nil {
		t.Fatalf("Failed to create wallet B: %v", err)
	}

	tx, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	txA := Transaction{ID: "tx-a-1", WalletID: walletA.ID, Type: TxDeposit, Amount: 100, CreatedAt: time.Now()}
	txB := Transaction{ID: "tx-b-1", WalletID: walletB.ID, Type: TxDeposit, Amount: 200, CreatedAt: time.Now()}
	if err := InsertTransactionTx(ctx, tx, txA); err != nil {
		t.Fatalf("Failed to insert tx A: %v", err)
	}
	if err := InsertTransactionTx(ctx, tx, txB); err != nil {
		t.Fatalf("Failed to insert tx B: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	t.Run("User A sees only their wallets", func(t *testing.T) {
		wallets, err := q.GetWalletsByUser(ctx, userA)
		if err != nil {
			t.Fatalf("Failed to get wallets: %v", err)
		}
		if len(wallets) != 1 {
			t.Errorf("expected 1 wallet, got %d", len(wallets))
		}
		if len(wallets) > 0 && wallets[0].ID != walletA.ID {
			t.Errorf("expected %s, got %s", walletA.ID, wallets[0].ID)
		}
	})

	t.Run("User A sees only their transactions", func(t *testing.T) {
		txs, err := q.GetTransactionsByUser(ctx, userA, 100)
		if err != nil {
			t.Fatalf("Failed to get transactions: %v", err)
		}
		if len(txs) != 1 {
			t.Errorf("expected 1 transaction, got %d", len(txs))
		}
		if len(txs) > 0 && txs[0].ID != "tx-a-1" {
			t.Errorf("expected tx-a-1, got %s", txs[0].ID)
		}
	})

	t.Run("Unknown user sees nothing", func(t *testing.T) {
		txs, err := q.GetTransactionsByUser(ctx, "user-unknown", 100)
		if err != nil {
			t.Fatalf("Failed to get transactions: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("expected 0 transactions, got %d", len(txs))
		}
	})

	t.Run("Instance ownership enforced", func(t *testing.T) {
		inst := BotInstance{
			ID: "inst-a-1", UserID: userA, TemplateID: "tpl-1", Currency: "USDT",
			Investment: 100, CurrentValue: 100, Status: StatusRunning, StartedAt: time.Now(),
		}
		tx, err := database.DB.Begin()
		if err != nil {
			t.Fatalf("Failed to begin tx: %v", err)
		}
		if err := CreateBotInstanceTx(ctx, tx, inst); err != nil {
			t.Fatalf("Failed to create instance: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}

		if _, err := q.GetInstanceByID(ctx, userB, inst.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for foreign user, got %v", err)
		}
		got, err := q.GetInstanceByID(ctx, userA, inst.ID)
		if err != nil {
			t.Fatalf("owner lookup failed: %v", err)
		}
		if got.ID != inst.ID {
			t.Errorf("expected %s, got %s", inst.ID, got.ID)
		}
	})
}

func TestAdvanceUserTierMonotonic(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := User{ID: "user-1", Email: "a@b.co", PasswordHash: "x", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := database.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	if err := database.AdvanceUserTier(ctx, user.ID, 2); err != nil {
		t.Fatalf("Failed to advance tier: %v", err)
	}
	// A stale caller trying to set a lower tier must be a no-op.
	if err := database.AdvanceUserTier(ctx, user.ID, 1); err != nil {
		t.Fatalf("Failed on stale advance: %v", err)
	}

	got, err := database.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("Failed to load user: %v", err)
	}
	if got.KycTier != 2 {
		t.Errorf("expected tier 2, got %d", got.KycTier)
	}
}

func TestStopBotInstanceTxStatusGuard(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	inst := BotInstance{
		ID: "inst-1", UserID: "user-1", TemplateID: "tpl-1", Currency: "USDT",
		Investment: 100, CurrentValue: 100, Status: StatusRunning, StartedAt: time.Now(),
	}
	tx, err := database.DB.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	if err := CreateBotInstanceTx(ctx, tx, inst); err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	stop := func() (int64, error) {
		tx, err := database.DB.Begin()
		if err != nil {
			t.Fatalf("Failed to begin tx: %v", err)
		}
		n, err := StopBotInstanceTx(ctx, tx, inst.ID, 110, 10, time.Now())
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		return n, tx.Commit()
	}

	n, err := stop()
	if err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row affected on first stop, got %d", n)
	}

	n, err = stop()
	if err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows affected on second stop, got %d", n)
	}
}
