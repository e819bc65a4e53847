// Package engine assembles the alerting components into one service object
// with an explicit lifecycle and the administrative operations the API
// exposes.
package engine

import (
	"context"
	"fmt"
	"time"

	"auditwatch/internal/alerts"
	"auditwatch/internal/clock"
	"auditwatch/internal/ledger"
	"auditwatch/internal/logger"
	"auditwatch/internal/models"
	"auditwatch/internal/notify"
	"auditwatch/internal/registry"
	"auditwatch/internal/sampler"
	"auditwatch/internal/state"
	"auditwatch/internal/storage"
	"auditwatch/internal/store"
	"auditwatch/internal/worker"
)

// Options are the injected dependencies of a Service. Only Sampler and
// Targets are required.
type Options struct {
	Sampler        sampler.Sampler
	Targets        []string
	Interval       time.Duration
	Parallelism    int
	HistorySize    int
	ChannelTimeout time.Duration
	Senders        map[models.ChannelKind]notify.Sender
	Publisher      notify.Publisher
	State          state.Store
	Archive        storage.Archive
	Clock          clock.Clock
}

// Service is the alerting engine
type Service struct {
	clock      clock.Clock
	registry   *registry.Registry
	store      *store.MetricsStore
	ledger     *ledger.Ledger
	cooldown   *alerts.Cooldown
	dispatcher *notify.Dispatcher
	monitor    *worker.Monitor
}

// New wires a stopped service
func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Senders == nil {
		opts.Senders = notify.DefaultSenders(nil, notify.SMTPMailer{}, notify.NewHTTPGateway(nil))
	}

	reg := registry.New()
	ms := store.NewMetricsStore(opts.HistorySize)
	led := ledger.New(opts.Clock, opts.Archive)
	cd := alerts.NewCooldown(reg, opts.State)

	disp := notify.NewDispatcher(notify.Config{
		Channels:  reg,
		Claimer:   cd,
		Ledger:    led,
		Publisher: opts.Publisher,
		Senders:   opts.Senders,
		Timeout:   opts.ChannelTimeout,
		Clock:     opts.Clock,
	})

	mon := worker.NewMonitor(worker.Config{
		Sampler:     opts.Sampler,
		Store:       ms,
		Rules:       reg,
		Dispatcher:  disp,
		Targets:     opts.Targets,
		Interval:    opts.Interval,
		Parallelism: opts.Parallelism,
		Clock:       opts.Clock,
	})

	return &Service{
		clock:      opts.Clock,
		registry:   reg,
		store:      ms,
		ledger:     led,
		cooldown:   cd,
		dispatcher: disp,
		monitor:    mon,
	}
}

// Seed loads initial rules and channels, stopping at the first invalid entry
func (s *Service) Seed(rules []models.AlertRule, channels []models.AlertChannel) error {
	for _, ch := range channels {
		if _, err := s.registry.AddChannel(ch); err != nil {
			return fmt.Errorf("seed channel %q: %w", ch.ID, err)
		}
	}
	for _, rule := range rules {
		if _, err := s.registry.AddRule(rule); err != nil {
			return fmt.Errorf("seed rule %q: %w", rule.ID, err)
		}
	}
	return nil
}

// RestoreCooldowns reloads persisted firing times into the registry
func (s *Service) RestoreCooldowns(ctx context.Context) error {
	n, err := s.cooldown.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore cooldowns: %w", err)
	}
	log := logger.WithComponent("engine")
	log.Info().Int("rules", n).Msg("cooldown state restored")
	return nil
}

// Rules

func (s *Service) AddRule(rule models.AlertRule) (models.AlertRule, error) {
	return s.registry.AddRule(rule)
}

func (s *Service) UpdateRule(id string, patch models.RulePatch) (models.AlertRule, error) {
	return s.registry.UpdateRule(id, patch)
}

// DeleteRule removes the rule and its persisted cooldown, so a rule later
// re-created under the same id starts unarmed.
func (s *Service) DeleteRule(id string) error {
	if err := s.registry.DeleteRule(id); err != nil {
		return err
	}
	s.cooldown.Forget(context.Background(), id)
	return nil
}

func (s *Service) GetRule(id string) (models.AlertRule, error) {
	return s.registry.GetRule(id)
}

func (s *Service) ListRules() []models.AlertRule {
	return s.registry.ListRules()
}

// Channels

func (s *Service) AddChannel(ch models.AlertChannel) (models.AlertChannel, error) {
	return s.registry.AddChannel(ch)
}

func (s *Service) UpdateChannel(id string, patch models.ChannelPatch) (models.AlertChannel, error) {
	return s.registry.UpdateChannel(id, patch)
}

func (s *Service) DeleteChannel(id string) error {
	return s.registry.DeleteChannel(id)
}

func (s *Service) GetChannel(id string) (models.AlertChannel, error) {
	return s.registry.GetChannel(id)
}

func (s *Service) ListChannels() []models.AlertChannel {
	return s.registry.ListChannels()
}

// TestChannel sends a test notification through one channel and reports
// whether it was delivered. Unknown ids return registry.ErrChannelNotFound.
func (s *Service) TestChannel(ctx context.Context, id string) (bool, error) {
	out, err := s.TestChannelOutcome(ctx, id)
	if err != nil {
		return false, err
	}
	return out.Status == notify.StatusDelivered, nil
}

// TestChannelOutcome is TestChannel with the full delivery outcome
func (s *Service) TestChannelOutcome(ctx context.Context, id string) (notify.Outcome, error) {
	if _, err := s.registry.GetChannel(id); err != nil {
		return notify.Outcome{}, err
	}
	return s.dispatcher.TestChannel(ctx, id)
}

// Alerts

func (s *Service) ActiveAlerts() []models.Notification {
	return s.ledger.ActiveAlerts()
}

func (s *Service) Acknowledge(ctx context.Context, id, actor string) error {
	return s.ledger.Acknowledge(ctx, id, actor)
}

func (s *Service) Resolve(ctx context.Context, id, actor string) (models.Notification, error) {
	return s.ledger.Resolve(ctx, id, actor)
}

func (s *Service) Statistics(window string) ledger.Stats {
	return s.ledger.Statistics(window)
}

func (s *Service) History(ctx context.Context, window, targetID string, limit int) ([]storage.NotificationRecord, error) {
	return s.ledger.History(ctx, window, targetID, limit)
}

// Targets

func (s *Service) Targets() []string {
	return s.monitor.Targets()
}

func (s *Service) TargetHistory(targetID string) []models.MetricSnapshot {
	return s.store.History(targetID)
}

// Monitoring loop

func (s *Service) Start() { s.monitor.Start() }

func (s *Service) Stop() { s.monitor.Stop() }

func (s *Service) Running() bool { return s.monitor.Running() }

func (s *Service) MonitorStats() worker.Stats { return s.monitor.Stats() }

// RunCycle runs one monitoring cycle immediately, independent of the timer
func (s *Service) RunCycle(ctx context.Context) worker.CycleReport {
	return s.monitor.RunCycle(ctx)
}
