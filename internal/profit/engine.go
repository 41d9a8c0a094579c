// Package profit advances running bot instances along a seeded, bounded
// random walk on a fixed schedule.
package profit

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"bot-core/internal/events"
	"bot-core/pkg/db"
	"bot-core/pkg/i18n"
)

// instance is the engine-side state for one running bot.
type instance struct {
	mu           sync.Mutex
	id           string
	userID       string
	templateID   string
	minPct       float64
	maxPct       float64
	investment   float64
	currentValue float64
	tickIndex    int64
	stopped      bool
}

// Engine owns the tick schedule and per-instance accrual state.
type Engine struct {
	mu        sync.RWMutex
	instances map[string]*instance

	db       *db.Database
	bus      *events.Bus
	seed     int64
	interval time.Duration
}

// NewEngine creates a profit engine. The seed fixes every instance's accrual
// trajectory, which makes runs replayable.
func NewEngine(database *db.Database, bus *events.Bus, seed int64, interval time.Duration) *Engine {
	return &Engine{
		instances: make(map[string]*instance),
		db:        database,
		bus:       bus,
		seed:      seed,
		interval:  interval,
	}
}

// Delta returns the accrual percentage for one tick, deterministically keyed
// by (seed, instanceID, tickIndex) and scaled into [minPct, maxPct]. Clamped
// so a single tick can never push a value below zero.
func Delta(seed int64, instanceID string, tickIndex int64, minPct, maxPct float64) float64 {
	h := fnv.New64a()
	h.Write([]byte(instanceID))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.FormatInt(tickIndex, 10)))
	src := rand.NewSource(int64(h.Sum64()) ^ seed)

	frac := rand.New(src).Float64()
	d := minPct + frac*(maxPct-minPct)
	if d < -100 {
		d = -100
	}
	if d > maxPct {
		d = maxPct
	}
	return d
}

// Register adds a running instance to the tick schedule. Re-registering an
// already tracked instance is a no-op.
func (e *Engine) Register(b db.BotInstance, minPct, maxPct float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.instances[b.ID]; ok {
		return
	}
	e.instances[b.ID] = &instance{
		id:           b.ID,
		userID:       b.UserID,
		templateID:   b.TemplateID,
		minPct:       minPct,
		maxPct:       maxPct,
		investment:   b.Investment,
		currentValue: b.CurrentValue,
		tickIndex:    b.TickIndex,
	}
}

// Unregister removes an instance from the schedule and freezes its value.
// It shares the per-instance mutex with ticking, so once it returns no tick
// can touch the instance again. Reports the frozen value and whether the
// instance was tracked.
func (e *Engine) Unregister(id string) (finalValue float64, tickIndex int64, ok bool) {
	e.mu.Lock()
	inst, found := e.instances[id]
	delete(e.instances, id)
	e.mu.Unlock()

	if !found {
		return 0, 0, false
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.stopped = true
	return inst.currentValue, inst.tickIndex, true
}

// Snapshot returns the live value for a tracked instance.
func (e *Engine) Snapshot(id string) (currentValue float64, ok bool) {
	e.mu.RLock()
	inst, found := e.instances[id]
	e.mu.RUnlock()
	if !found {
		return 0, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.currentValue, true
}

// Count returns the number of instances on the schedule.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.instances)
}

// Start begins the fixed-interval tick loop.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.TickAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf(i18n.Get("ProfitEngineStarted"), e.interval)
}

// TickAll advances every registered instance by one tick.
func (e *Engine) TickAll(ctx context.Context) {
	e.mu.RLock()
	batch := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		batch = append(batch, inst)
	}
	e.mu.RUnlock()

	for _, inst := range batch {
		e.tick(ctx, inst)
	}
}

// tick applies one accrual step. Ticking a stopped instance is a no-op.
func (e *Engine) tick(ctx context.Context, inst *instance) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.stopped {
		return
	}

	d := Delta(e.seed, inst.id, inst.tickIndex, inst.minPct, inst.maxPct)
	inst.currentValue *= 1 + d/100
	inst.tickIndex++

	profitPct := 0.0
	if inst.investment > 0 {
		profitPct = (inst.currentValue - inst.investment) / inst.investment * 100
	}

	if e.db != nil {
		n, err := e.db.UpdateInstanceValue(ctx, inst.id, inst.currentValue, profitPct, inst.tickIndex)
		if err != nil {
			log.Printf(i18n.Get("TickPersistFailed"), inst.id, err)
		} else if n == 0 {
			// The store no longer shows this instance as running: a stop
			// finalized around a registration race. Drop it from the
			// schedule without publishing; the finalized row stands.
			inst.stopped = true
			e.mu.Lock()
			delete(e.instances, inst.id)
			e.mu.Unlock()
			return
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.EventProfitTick, events.BotEvent{
			InstanceID:   inst.id,
			UserID:       inst.userID,
			TemplateID:   inst.templateID,
			Investment:   inst.investment,
			CurrentValue: inst.currentValue,
			ProfitPct:    profitPct,
			At:           time.Now(),
		})
	}
}
