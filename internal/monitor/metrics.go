package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance.
type SystemMetrics struct {
	mu sync.RWMutex

	// Latency histograms
	LedgerLatency *LatencyHistogram
	TickLatency   *LatencyHistogram
	APILatency    *LatencyHistogram

	// Counters
	botsLaunched      uint64
	botsStopped       uint64
	ticksProcessed    uint64
	addressAllocated  uint64
	withdrawalsPlaced uint64
	errorsCount       uint64

	// Engine stats (updated periodically from main).
	runningInstances int

	lastUpdate time.Time
}

// LatencyHistogram tracks latency samples with a sliding window and lazy
// stats computation.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		LedgerLatency: NewLatencyHistogram(1000),
		TickLatency:   NewLatencyHistogram(1000),
		APILatency:    NewLatencyHistogram(1000),
		lastUpdate:    time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Only recomputes when samples
// have changed.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementLaunches increments the launched bots counter.
func (m *SystemMetrics) IncrementLaunches() {
	atomic.AddUint64(&m.botsLaunched, 1)
}

// IncrementStops increments the stopped bots counter.
func (m *SystemMetrics) IncrementStops() {
	atomic.AddUint64(&m.botsStopped, 1)
}

// IncrementTicks increments the processed ticks counter.
func (m *SystemMetrics) IncrementTicks() {
	atomic.AddUint64(&m.ticksProcessed, 1)
}

// IncrementAllocations increments the allocated addresses counter.
func (m *SystemMetrics) IncrementAllocations() {
	atomic.AddUint64(&m.addressAllocated, 1)
}

// IncrementWithdrawals increments the withdrawals counter.
func (m *SystemMetrics) IncrementWithdrawals() {
	atomic.AddUint64(&m.withdrawalsPlaced, 1)
}

// IncrementErrors increments the error counter.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// MetricsSnapshot is a point-in-time view of the counters and histograms.
type MetricsSnapshot struct {
	LedgerLatency     LatencyStats `json:"ledger_latency"`
	TickLatency       LatencyStats `json:"tick_latency"`
	APILatency        LatencyStats `json:"api_latency"`
	BotsLaunched      uint64       `json:"bots_launched"`
	BotsStopped       uint64       `json:"bots_stopped"`
	TicksProcessed    uint64       `json:"ticks_processed"`
	AddressAllocated  uint64       `json:"addresses_allocated"`
	WithdrawalsPlaced uint64       `json:"withdrawals_placed"`
	ErrorsCount       uint64       `json:"errors_count"`
	RunningInstances  int          `json:"running_instances"`
	GoroutineCount    int          `json:"goroutine_count"`
	HeapAlloc         uint64       `json:"heap_alloc_bytes"`
	HeapSys           uint64       `json:"heap_sys_bytes"`
	Timestamp         time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	running := m.runningInstances
	m.mu.RUnlock()

	return MetricsSnapshot{
		LedgerLatency:     m.LedgerLatency.Stats(),
		TickLatency:       m.TickLatency.Stats(),
		APILatency:        m.APILatency.Stats(),
		BotsLaunched:      atomic.LoadUint64(&m.botsLaunched),
		BotsStopped:       atomic.LoadUint64(&m.botsStopped),
		TicksProcessed:    atomic.LoadUint64(&m.ticksProcessed),
		AddressAllocated:  atomic.LoadUint64(&m.addressAllocated),
		WithdrawalsPlaced: atomic.LoadUint64(&m.withdrawalsPlaced),
		ErrorsCount:       atomic.LoadUint64(&m.errorsCount),
		RunningInstances:  running,
		GoroutineCount:    runtime.NumGoroutine(),
		HeapAlloc:         memStats.HeapAlloc,
		HeapSys:           memStats.HeapSys,
		Timestamp:         time.Now(),
	}
}

// SetRunningInstances updates the live instance count.
func (m *SystemMetrics) SetRunningInstances(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningInstances = n
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
