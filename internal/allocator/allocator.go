// Package allocator provisions deposit addresses idempotently per
// (wallet, network) key.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/events"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
	"bot-core/pkg/lock"
)

var ErrWalletNotFound = errors.New("wallet not found")

// Generator produces address material for an allocation key. Implementations
// may derive deterministically or call out to a custody service.
type Generator interface {
	Derive(walletID, network string) (string, error)
}

// Allocator maps (walletID, network) to exactly one provisioned address.
// Concurrent requests for the same key collapse to a single winner; losers
// receive the winner's row, never an error.
type Allocator struct {
	db    *db.Database
	gen   Generator
	locks *lock.KeyedMutex
	bus   *events.Bus
}

// New creates an allocator with the given address generator.
func New(database *db.Database, gen Generator, bus *events.Bus) *Allocator {
	return &Allocator{
		db:    database,
		gen:   gen,
		locks: lock.NewKeyedMutex(5 * time.Second),
		bus:   bus,
	}
}

// Allocate returns the address for (walletID, network), creating it at most
// once. A repeated or racing call returns the existing row.
func (a *Allocator) Allocate(ctx context.Context, walletID, network string) (*db.DepositAddress, error) {
	key := walletID + "/" + network
	if err := a.locks.Acquire(key); err != nil {
		return nil, err
	}
	defer a.locks.Release(key)

	existing, err := a.db.GetDepositAddress(ctx, walletID, network)
	if err != nil {
		return nil, fmt.Errorf("load deposit address: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	wallet, err := a.db.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	addr, err := a.gen.Derive(walletID, network)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	row := db.DepositAddress{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Network:   network,
		Address:   addr,
		CreatedAt: time.Now(),
	}
	if err := a.db.CreateDepositAddress(ctx, row); err != nil {
		// Lost the UNIQUE(wallet_id, network) race to another node or a
		// caller that slipped past the lock table; the winner's row wins.
		if winner, rerr := a.db.GetDepositAddress(ctx, walletID, network); rerr == nil && winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("store deposit address: %w", err)
	}

	log.Printf(i18n.Get("AddressAllocated"), network, walletID)
	if a.bus != nil {
		a.bus.Publish(events.EventAddressReady, events.WalletEvent{
			UserID:   wallet.UserID,
			WalletID: walletID,
			Currency: wallet.Currency,
			Network:  network,
			Address:  addr,
			At:       time.Now(),
		})
	}
	return &row, nil
}
