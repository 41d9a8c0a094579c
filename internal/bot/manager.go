// Package bot orchestrates the investment lifecycle: launching instances
// against the wallet ledger and closing them back out through it.
package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/events"
	"bot-core/internal/kyc"
	"bot-core/internal/ledger"
	"bot-core/internal/profit"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
)

var (
	ErrInvalidAmount    = errors.New("amount outside template bounds")
	ErrKycLimitExceeded = errors.New("kyc limit exceeded")
	ErrNotFound         = errors.New("not found")
)

// errStoppedRace aborts the stop unit when another caller finalized first.
var errStoppedRace = errors.New("instance already stopped")

// Manager is the lifecycle orchestrator other layers call.
type Manager struct {
	db     *db.Database
	ledger *ledger.Ledger
	engine *profit.Engine
	bus    *events.Bus
}

// NewManager creates the lifecycle manager.
func NewManager(database *db.Database, lgr *ledger.Ledger, engine *profit.Engine, bus *events.Bus) *Manager {
	return &Manager{db: database, ledger: lgr, engine: engine, bus: bus}
}

// LoadRunning re-registers running instances with the profit engine after a
// restart.
func (m *Manager) LoadRunning(ctx context.Context) error {
	instances, err := m.db.ListRunningInstances(ctx)
	if err != nil {
		return fmt.Errorf("list running instances: %w", err)
	}
	for _, inst := range instances {
		tpl, err := m.db.GetTemplate(ctx, inst.TemplateID)
		if err != nil {
			return fmt.Errorf("load template %s: %w", inst.TemplateID, err)
		}
		if tpl == nil {
			log.Printf(i18n.Get("TemplateMissing"), inst.TemplateID, inst.ID)
			continue
		}
		m.engine.Register(inst, tpl.MinProfitPct, tpl.MaxProfitPct)
	}
	log.Printf(i18n.Get("InstancesReloaded"), len(instances))
	return nil
}

// Launch debits the wallet and creates a running instance as one atomic
// unit; if the debit fails no instance exists. The new instance joins the
// tick schedule before returning.
func (m *Manager) Launch(ctx context.Context, userID, templateID, currency string, amount float64) (*db.BotInstance, error) {
	tpl, err := m.db.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || !tpl.IsActive {
		return nil, fmt.Errorf("%w: template %s", ErrNotFound, templateID)
	}

	if amount < tpl.MinInvestment || amount > tpl.MaxInvestment {
		return nil, fmt.Errorf("%w: %.2f not in [%.2f, %.2f]",
			ErrInvalidAmount, amount, tpl.MinInvestment, tpl.MaxInvestment)
	}

	user, err := m.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	// Tier is read fresh on every launch; an upgrade applies immediately.
	if dec := kyc.CheckLimit(user.KycTier, kyc.OpInvestment, amount); !dec.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrKycLimitExceeded, dec.Reason)
	}

	wallet, err := m.ledger.GetOrCreateWallet(ctx, userID, currency)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	inst := db.BotInstance{
		ID:           uuid.NewString(),
		UserID:       userID,
		TemplateID:   templateID,
		Currency:     currency,
		Investment:   amount,
		CurrentValue: amount,
		ProfitPct:    0,
		Status:       db.StatusRunning,
		StartedAt:    now,
	}

	err = m.ledger.Atomic(ctx, wallet.ID, func(tx *sql.Tx) error {
		if _, _, err := m.ledger.AppendInTx(ctx, tx, wallet.ID, db.TxBotInvestment, -amount, inst.ID); err != nil {
			return err
		}
		return db.CreateBotInstanceTx(ctx, tx, inst)
	})
	if err != nil {
		return nil, err
	}

	m.engine.Register(inst, tpl.MinProfitPct, tpl.MaxProfitPct)

	log.Printf(i18n.Get("BotLaunched"), inst.ID, templateID, amount, userID)
	if m.bus != nil {
		m.bus.Publish(events.EventBotLaunched, events.BotEvent{
			InstanceID:   inst.ID,
			UserID:       userID,
			TemplateID:   templateID,
			Investment:   amount,
			CurrentValue: amount,
			At:           now,
		})
	}
	return &inst, nil
}

// Stop freezes the instance, credits its current value back to the wallet,
// and marks it terminal, all atomically with respect to both ticks and
// concurrent stop calls. Stopping an already stopped instance is a benign
// no-op that returns the frozen state.
func (m *Manager) Stop(ctx context.Context, instanceID, userID string) (*db.BotInstance, error) {
	inst, err := m.db.GetBotInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst == nil || inst.UserID != userID {
		return nil, fmt.Errorf("%w: instance %s", ErrNotFound, instanceID)
	}
	if inst.Status == db.StatusStopped {
		return inst, nil
	}

	// Pull the instance off the tick schedule first; after Unregister
	// returns, no tick can move the value we are about to credit.
	finalValue, _, tracked := m.engine.Unregister(instanceID)
	if !tracked {
		finalValue = inst.CurrentValue
	}
	profitPct := 0.0
	if inst.Investment > 0 {
		profitPct = (finalValue - inst.Investment) / inst.Investment * 100
	}

	wallet, err := m.db.GetWallet(ctx, userID, inst.Currency)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet %s/%s", ErrNotFound, userID, inst.Currency)
	}

	now := time.Now()
	err = m.ledger.Atomic(ctx, wallet.ID, func(tx *sql.Tx) error {
		n, err := db.StopBotInstanceTx(ctx, tx, instanceID, finalValue, profitPct, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return errStoppedRace
		}
		_, _, err = m.ledger.AppendInTx(ctx, tx, wallet.ID, db.TxBotProfit, finalValue, instanceID)
		return err
	})
	if errors.Is(err, errStoppedRace) {
		// Another caller finalized concurrently; its credit stands alone.
		return m.db.GetBotInstance(ctx, instanceID)
	}
	if err != nil {
		// The instance is still RUNNING in the store; put it back on the
		// schedule so accrual resumes until a later stop succeeds.
		if tracked {
			if cur, terr := m.db.GetBotInstance(ctx, instanceID); terr == nil && cur != nil {
				if tpl, terr := m.db.GetTemplate(ctx, cur.TemplateID); terr == nil && tpl != nil {
					m.engine.Register(*cur, tpl.MinProfitPct, tpl.MaxProfitPct)
				}
			}
		}
		return nil, err
	}

	inst.Status = db.StatusStopped
	inst.CurrentValue = finalValue
	inst.ProfitPct = profitPct
	inst.StoppedAt = sql.NullTime{Time: now, Valid: true}

	log.Printf(i18n.Get("BotStopped"), instanceID, finalValue, profitPct)
	if m.bus != nil {
		m.bus.Publish(events.EventBotStopped, events.BotEvent{
			InstanceID:   instanceID,
			UserID:       userID,
			TemplateID:   inst.TemplateID,
			Investment:   inst.Investment,
			CurrentValue: finalValue,
			ProfitPct:    profitPct,
			At:           now,
		})
	}
	return inst, nil
}

// ListActive returns the user's running instances.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]db.BotInstance, error) {
	return m.db.Queries().GetInstancesByUser(ctx, userID, db.StatusRunning)
}

// ListAll returns all of the user's instances, running and stopped.
func (m *Manager) ListAll(ctx context.Context, userID string) ([]db.BotInstance, error) {
	return m.db.Queries().GetInstancesByUser(ctx, userID, "")
}

// ListAvailable returns the browsable template catalog.
func (m *Manager) ListAvailable(ctx context.Context) ([]db.BotTemplate, error) {
	return m.db.ListActiveTemplates(ctx)
}
