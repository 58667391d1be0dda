// Package monitor implements the liveness sweep: the background loop
// that transitions stale records to offline after missed heartbeats.
package monitor

import (
	"context"
	"time"

	"github.com/lengoman/grpc-hub/internal/registry"
	"github.com/lengoman/grpc-hub/internal/telemetry"
)

// Config controls sweep cadence and the staleness threshold.
type Config struct {
	// Interval is how often the monitor scans the registry. Default 10s.
	Interval time.Duration
	// OfflineAfter is how long without a heartbeat before a record is
	// marked offline. Default 30s.
	OfflineAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = 30 * time.Second
	}
	return c
}

// Monitor periodically sweeps a Store for stale records.
type Monitor struct {
	store   *registry.Store
	cfg     Config
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// Option configures optional telemetry hooks on a Monitor.
type Option func(*Monitor)

// WithMetrics records a registry-size gauge and a sweep-duration
// histogram on every tick against m.
func WithMetrics(m telemetry.Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// New constructs a Monitor bound to store. log may be nil, in which
// case a no-op logger is used.
func New(store *registry.Store, cfg Config, log telemetry.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	mon := &Monitor{store: store, cfg: cfg.withDefaults(), log: log, metrics: telemetry.NewNoopMetrics()}
	for _, o := range opts {
		o(mon)
	}
	return mon
}

// Run blocks, sweeping on cfg.Interval, until ctx is cancelled. The
// store lock is held only for the span of each individual record's
// transition (see Store.MarkOfflineIfStale), never for the whole sweep,
// so registration/dispatch traffic is never starved by a large sweep.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Monitor) sweepOnce() {
	start := time.Now()
	snapshot := m.store.Snapshot()
	for _, rec := range snapshot {
		changed, prev := m.store.MarkOfflineIfStale(rec.ServiceID, m.cfg.OfflineAfter, start)
		if changed {
			m.log.Info(context.Background(), "service marked offline",
				"service_id", rec.ServiceID,
				"service_name", rec.ServiceName,
				"prev_status", string(prev),
			)
		}
	}
	m.metrics.RecordGauge("registry_size", float64(len(snapshot)))
	m.metrics.RecordTimer("sweep_duration", time.Since(start))
}
