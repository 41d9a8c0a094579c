package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
)

// Reconciler periodically sweeps every wallet through the ledger integrity
// check. A wallet whose cached balance disagrees with the recomputed sum is
// halted by Verify and stays halted until someone reconciles it by hand; the
// sweep only detects, it never repairs.
type Reconciler struct {
	ledger   *Ledger
	db       *db.Database
	interval time.Duration
	mu       sync.Mutex
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	At      time.Time
	Checked int
	Skipped int // already-halted wallets
	Halted  []string
}

// NewReconciler creates a reconciler over the given ledger.
func NewReconciler(lgr *Ledger, database *db.Database, interval time.Duration) *Reconciler {
	return &Reconciler{ledger: lgr, db: database, interval: interval}
}

// Start begins the periodic sweep loop.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := r.Sweep(ctx)
				if err != nil {
					log.Printf(i18n.Get("ReconcileSweepFailed"), err)
					continue
				}
				if len(report.Halted) > 0 {
					log.Printf(i18n.Get("ReconcileWalletsHalted"), len(report.Halted), report.Checked)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf(i18n.Get("ReconcilerStarted"), r.interval)
}

// Sweep verifies every non-halted wallet once and reports what it found.
// Integrity failures are collected rather than returned, so one bad wallet
// does not shield the rest of the table; only infrastructure errors abort.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wallets, err := r.db.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	report := &SweepReport{At: time.Now()}
	for _, w := range wallets {
		if w.IsHalted {
			report.Skipped++
			continue
		}
		report.Checked++
		switch err := r.ledger.Verify(ctx, w.ID); {
		case err == nil:
		case errors.Is(err, ErrIntegrity):
			report.Halted = append(report.Halted, w.ID)
		default:
			return nil, fmt.Errorf("verify wallet %s: %w", w.ID, err)
		}
	}
	return report, nil
}
