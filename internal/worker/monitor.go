// Package worker runs the monitoring loop: on every tick each configured
// target is sampled, its snapshot recorded, and matching rules are fired.
package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"auditwatch/internal/alerts"
	"auditwatch/internal/clock"
	"auditwatch/internal/logger"
	"auditwatch/internal/metrics"
	"auditwatch/internal/models"
	"auditwatch/internal/notify"
	"auditwatch/internal/sampler"
)

// RuleSource returns the rules applicable to a target
type RuleSource interface {
	RulesFor(targetID string) []models.AlertRule
}

// SnapshotRecorder keeps metric history
type SnapshotRecorder interface {
	Record(snap models.MetricSnapshot)
}

// Firer fires one matched rule; see notify.Dispatcher
type Firer interface {
	Fire(ctx context.Context, rule models.AlertRule, snap models.MetricSnapshot) notify.Result
}

// Config holds monitor configuration
type Config struct {
	Sampler     sampler.Sampler
	Store       SnapshotRecorder
	Rules       RuleSource
	Dispatcher  Firer
	Targets     []string
	Interval    time.Duration
	Parallelism int
	Clock       clock.Clock
}

// Monitor is the periodic monitoring loop. At most one timer is active.
type Monitor struct {
	sampler     sampler.Sampler
	store       SnapshotRecorder
	rules       RuleSource
	dispatcher  Firer
	targets     []string
	interval    time.Duration
	parallelism int
	clock       clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running atomic.Bool
	cycles  atomic.Uint64
	fired   atomic.Uint64
	errors  atomic.Uint64
}

// NewMonitor creates a stopped monitor
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	return &Monitor{
		sampler:     cfg.Sampler,
		store:       cfg.Store,
		rules:       cfg.Rules,
		dispatcher:  cfg.Dispatcher,
		targets:     append([]string(nil), cfg.Targets...),
		interval:    cfg.Interval,
		parallelism: cfg.Parallelism,
		clock:       cfg.Clock,
	}
}

// Start begins periodic cycles. Starting a running monitor replaces its timer.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logger.WithComponent("monitor")
	if m.cancel != nil {
		log.Info().Msg("restarting monitor, replacing active timer")
		m.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)
	metrics.MonitorRunning.Set(1)

	log.Info().
		Dur("interval", m.interval).
		Strs("targets", m.targets).
		Int("parallelism", m.parallelism).
		Msg("monitor started")

	go m.loop(ctx, m.done)
}

// Stop cancels future cycles and waits for the loop to exit. A cycle that
// is already dispatching finishes its deliveries first.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	m.stopLocked()
	log := logger.WithComponent("monitor")
	log.Info().Msg("monitor stopped")
}

func (m *Monitor) stopLocked() {
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.running.Store(false)
	metrics.MonitorRunning.Set(0)
}

// Running reports whether the loop is active
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Targets returns the monitored target ids
func (m *Monitor) Targets() []string {
	return append([]string(nil), m.targets...)
}

// Interval returns the cycle period
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// CycleReport summarizes one monitoring cycle
type CycleReport struct {
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Targets      int           `json:"targets"`
	Sampled      int           `json:"sampled"`
	SampleErrors int           `json:"sample_errors"`
	Matched      int           `json:"matched"`
	Fired        int           `json:"fired"`
	Suppressed   int           `json:"suppressed"`
}

func (r *CycleReport) add(o CycleReport) {
	r.Sampled += o.Sampled
	r.SampleErrors += o.SampleErrors
	r.Matched += o.Matched
	r.Fired += o.Fired
	r.Suppressed += o.Suppressed
}

// RunCycle processes every target once. Targets are handled with bounded
// parallelism and a failure in one target never aborts the others.
func (m *Monitor) RunCycle(ctx context.Context) CycleReport {
	start := time.Now()
	report := CycleReport{StartedAt: m.clock.Now(), Targets: len(m.targets)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.parallelism)

	for _, target := range m.targets {
		g.Go(func() error {
			r := m.processTarget(ctx, target)
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	m.cycles.Add(1)
	m.fired.Add(uint64(report.Fired))
	m.errors.Add(uint64(report.SampleErrors))
	metrics.MonitorCyclesTotal.Inc()
	metrics.MonitorCycleDuration.Observe(report.Duration.Seconds())

	log := logger.WithComponent("monitor")

	log.Debug().
		Int("targets", report.Targets).
		Int("sample_errors", report.SampleErrors).
		Int("matched", report.Matched).
		Int("fired", report.Fired).
		Int("suppressed", report.Suppressed).
		Dur("duration", report.Duration).
		Msg("monitor cycle complete")

	return report
}

func (m *Monitor) processTarget(ctx context.Context, targetID string) (report CycleReport) {
	log := logger.WithTarget("monitor", targetID)

	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("monitor").Inc()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("target cycle panic recovered")
			report.SampleErrors++
		}
	}()

	// A Stop mid-cycle leaves the remaining targets unsampled, not failed
	if ctx.Err() != nil {
		return report
	}

	snap, err := m.sampler.Sample(ctx, targetID)
	if err != nil {
		if ctx.Err() != nil {
			return report
		}
		metrics.SampleErrorsTotal.WithLabelValues(targetID).Inc()
		log.Warn().Err(err).Msg("sampling failed, skipping target this cycle")
		report.SampleErrors++
		return report
	}
	if snap.TargetID == "" {
		snap.TargetID = targetID
	}
	report.Sampled++

	m.store.Record(snap)

	matched := alerts.Evaluate(m.rules.RulesFor(targetID), snap)
	report.Matched = len(matched)

	// Deliveries outlive a Stop issued mid-cycle
	dispatchCtx := context.WithoutCancel(ctx)
	for _, rule := range matched {
		result := m.dispatcher.Fire(dispatchCtx, rule, snap)
		if result.Suppressed {
			report.Suppressed++
			continue
		}
		if result.Notification != nil {
			report.Fired++
		}
	}

	return report
}

// Stats holds lifetime monitor counters
type Stats struct {
	Running      bool   `json:"running"`
	Cycles       uint64 `json:"cycles"`
	Fired        uint64 `json:"fired"`
	SampleErrors uint64 `json:"sample_errors"`
}

func (m *Monitor) Stats() Stats {
	return Stats{
		Running:      m.running.Load(),
		Cycles:       m.cycles.Load(),
		Fired:        m.fired.Load(),
		SampleErrors: m.errors.Load(),
	}
}
