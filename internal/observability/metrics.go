package observability

import (
	"sync"
	"time"

	"packflow/internal/saga"
)

type StageSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

type Snapshot struct {
	UptimeSec        int64                    `json:"uptime_sec"`
	SagasStarted     int64                    `json:"sagas_started"`
	SagasSucceeded   int64                    `json:"sagas_succeeded"`
	SagasFailed      int64                    `json:"sagas_failed"`
	CompensationsRun int64                    `json:"compensations_run"`
	StockBatches     int64                    `json:"stock_batches"`
	InFlight         int64                    `json:"in_flight"`
	Lifecycle        *LifecycleSnapshot       `json:"lifecycle,omitempty"`
	Stages           map[string]StageSnapshot `json:"stages"`
}

type stageStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics aggregates saga stage timings and counters for the snapshot
// endpoint. All methods are nil-safe so wiring stays optional.
type Metrics struct {
	mu               sync.Mutex
	start            time.Time
	stages           map[string]*stageStats
	sagasStarted     int64
	sagasSucceeded   int64
	sagasFailed      int64
	compensationsRun int64
	stockBatches     int64
	lifecycle        lifecycleStats
}

type StageSpan struct {
	metrics *Metrics
	stage   string
	start   time.Time
}

type lifecycleStats struct {
	shutdownAt time.Time
	inflight   int64
}

type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		start:  time.Now(),
		stages: make(map[string]*stageStats),
	}
}

func (m *Metrics) StartStage(stage string) *StageSpan {
	if m == nil {
		return &StageSpan{}
	}
	m.mu.Lock()
	stats := m.ensureStage(stage)
	stats.inFlight++
	m.mu.Unlock()
	return &StageSpan{
		metrics: m,
		stage:   stage,
		start:   time.Now(),
	}
}

func (s *StageSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.start)
	s.metrics.finish(s.stage, dur, err != nil)
}

func (m *Metrics) SagaStarted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.sagasStarted++
	m.mu.Unlock()
}

func (m *Metrics) SagaFinished(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if success {
		m.sagasSucceeded++
	} else {
		m.sagasFailed++
	}
	m.mu.Unlock()
}

func (m *Metrics) CompensationRun() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.compensationsRun++
	m.mu.Unlock()
}

func (m *Metrics) StockBatchApplied() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.stockBatches++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	snap := Snapshot{
		UptimeSec:        int64(now.Sub(m.start).Seconds()),
		SagasStarted:     m.sagasStarted,
		SagasSucceeded:   m.sagasSucceeded,
		SagasFailed:      m.sagasFailed,
		CompensationsRun: m.compensationsRun,
		StockBatches:     m.stockBatches,
		Stages:           make(map[string]StageSnapshot),
	}

	for stage, stats := range m.stages {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Stages[stage] = StageSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.InFlight += stats.inFlight
	}

	if !m.lifecycle.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{
			ShutdownAt:         m.lifecycle.shutdownAt,
			InFlightAtShutdown: m.lifecycle.inflight,
		}
	}

	return snap
}

func (m *Metrics) ensureStage(stage string) *stageStats {
	stats, ok := m.stages[stage]
	if !ok {
		stats = &stageStats{}
		m.stages[stage] = stats
	}
	return stats
}

func (m *Metrics) finish(stage string, dur time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureStage(stage)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}

func (m *Metrics) MarkShutdown(inflight int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lifecycle.shutdownAt = time.Now()
	m.lifecycle.inflight = inflight
	m.mu.Unlock()
}

// StageObserver feeds saga lifecycle events into Metrics. Spans are
// keyed by order id and stage, so concurrent sagas never collide.
type StageObserver struct {
	metrics *Metrics

	mu    sync.Mutex
	spans map[string]*StageSpan
}

// NewStageObserver wires an observer onto the given metrics.
func NewStageObserver(metrics *Metrics) *StageObserver {
	return &StageObserver{
		metrics: metrics,
		spans:   make(map[string]*StageSpan),
	}
}

func (o *StageObserver) StageStarted(orderID, txID string, state saga.State) {
	if state == saga.StateValidating {
		o.metrics.SagaStarted()
	}
	span := o.metrics.StartStage(string(state))
	o.mu.Lock()
	o.spans[orderID+"/"+string(state)] = span
	o.mu.Unlock()
}

func (o *StageObserver) StageFinished(orderID, txID string, state saga.State, err error) {
	key := orderID + "/" + string(state)
	o.mu.Lock()
	span := o.spans[key]
	delete(o.spans, key)
	o.mu.Unlock()
	span.End(err)
}

func (o *StageObserver) CompensationRun(orderID, txID, detail string, err error) {
	o.metrics.CompensationRun()
}

func (o *StageObserver) SagaFinished(orderID, txID string, result saga.Result) {
	o.metrics.SagaFinished(result.Success)
}
