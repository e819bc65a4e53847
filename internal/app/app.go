// Package app wires configuration, backends, the alerting engine and the
// admin HTTP server into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"auditwatch/internal/config"
	"auditwatch/internal/engine"
	"auditwatch/internal/handlers"
	"auditwatch/internal/kafka"
	"auditwatch/internal/logger"
	"auditwatch/internal/middleware"
	"auditwatch/internal/models"
	"auditwatch/internal/notify"
	"auditwatch/internal/sampler"
	"auditwatch/internal/state"
	"auditwatch/internal/storage"
)

// statsInterval is how often Run logs a summary line
const statsInterval = 30 * time.Second

// App is the top-level coordinator for the monitoring service
type App struct {
	cfg *config.Config

	service    *engine.Service
	producer   *kafka.Producer
	stateStore state.Store
	archive    storage.Archive
	checks     map[string]handlers.HealthChecker

	httpServer *http.Server
	wg         sync.WaitGroup
}

// New builds every component from cfg. Optional backends that fail to
// connect are reported as errors; nothing is started yet.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		cfg:    cfg,
		checks: make(map[string]handlers.HealthChecker),
	}

	if err := a.initBackends(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}

	var publisher notify.Publisher
	if a.producer != nil {
		publisher = a.producer
	}

	a.service = engine.New(engine.Options{
		Sampler:        a.newSampler(),
		Targets:        cfg.Monitor.Targets,
		Interval:       cfg.Monitor.Interval,
		Parallelism:    cfg.Monitor.Parallelism,
		HistorySize:    cfg.Monitor.HistorySize,
		ChannelTimeout: cfg.Dispatch.ChannelTimeout,
		Publisher:      publisher,
		State:          a.stateStore,
		Archive:        a.archive,
	})

	if err := a.seed(ctx); err != nil {
		a.closeBackends()
		return nil, err
	}

	a.initHTTPServer()
	return a, nil
}

// Service exposes the engine, mainly for tests and the CLI
func (a *App) Service() *engine.Service { return a.service }

// Handler returns the full HTTP handler chain
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

func (a *App) initBackends(ctx context.Context) error {
	log := logger.WithComponent("app")

	if a.cfg.Redis.Enabled {
		rs, err := state.NewRedisStore(ctx, state.RedisConfig{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Key:      a.cfg.Redis.Key,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize cooldown store: %w", err)
		}
		a.stateStore = rs
		a.checks["redis"] = rs
		log.Info().Str("addr", a.cfg.Redis.Addr).Msg("redis cooldown store initialized")
	}

	if a.cfg.Archive.Enabled {
		ga, err := storage.Open(a.cfg.Archive.Driver, a.cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		a.archive = ga
		a.checks["archive"] = ga
		log.Info().Str("driver", a.cfg.Archive.Driver).Msg("notification archive initialized")
	}

	if a.cfg.Kafka.Enabled {
		p, err := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.cfg.Kafka.Producer)
		if err != nil {
			return fmt.Errorf("failed to initialize producer: %w", err)
		}
		a.producer = p
		a.checks["kafka"] = p
		log.Info().
			Strs("brokers", a.cfg.Kafka.Brokers).
			Str("topic", a.cfg.Kafka.Topic).
			Msg("kafka producer initialized")
	}

	return nil
}

func (a *App) newSampler() sampler.Sampler {
	if a.cfg.Monitor.Sampler == "http" {
		return sampler.NewHTTPProbe(sampler.HTTPProbeConfig{
			URLs: a.cfg.Monitor.ProbeURLs,
		})
	}
	return sampler.NewSynthetic(nil, nil)
}

func (a *App) seed(ctx context.Context) error {
	log := logger.WithComponent("app")

	rules := make([]models.AlertRule, 0, len(a.cfg.Rules))
	for _, rc := range a.cfg.Rules {
		rules = append(rules, rc.Model())
	}
	channels := make([]models.AlertChannel, 0, len(a.cfg.Channels))
	for _, cc := range a.cfg.Channels {
		channels = append(channels, cc.Model())
	}

	if err := a.service.Seed(rules, channels); err != nil {
		return fmt.Errorf("failed to seed registry: %w", err)
	}
	log.Info().
		Int("rules", len(rules)).
		Int("channels", len(channels)).
		Msg("registry seeded")

	if err := a.service.RestoreCooldowns(ctx); err != nil {
		// Stale cooldowns only risk an early re-fire
		log.Warn().Err(err).Msg("failed to restore cooldown state")
	}
	return nil
}

func (a *App) initHTTPServer() {
	api := handlers.NewAPI(handlers.APIConfig{
		Engine: a.service,
		Checks: a.checks,
	})

	a.httpServer = &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: middleware.Chain(
			api,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Run starts the monitor and HTTP server and blocks until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	log := logger.WithComponent("app")
	log.Info().Msg("auditwatch starting")

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		a.closeBackends()
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	if a.cfg.Monitor.AutoStart {
		a.service.Start()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return a.shutdown()
}

// shutdown performs graceful shutdown
func (a *App) shutdown() error {
	log := logger.WithComponent("app")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	timeout := a.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		errs = append(errs, err)
	}

	// 2. Stop the monitor; in-flight dispatches complete first
	a.service.Stop()

	// 3. Close backends
	a.closeBackends()

	// 4. Wait for background goroutines
	a.wg.Wait()

	log.Info().Msg("auditwatch stopped gracefully")
	return errors.Join(errs...)
}

func (a *App) closeBackends() {
	log := logger.WithComponent("app")

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			log.Error().Err(err).Msg("archive close error")
		}
	}
	if a.stateStore != nil {
		if err := a.stateStore.Close(); err != nil {
			log.Error().Err(err).Msg("cooldown store close error")
		}
	}
}

// reportStats periodically logs statistics
func (a *App) reportStats(ctx context.Context) {
	log := logger.WithComponent("app")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ms := a.service.MonitorStats()
			ev := log.Info().
				Bool("monitoring", ms.Running).
				Uint64("cycles", ms.Cycles).
				Uint64("fired", ms.Fired).
				Uint64("sample_errors", ms.SampleErrors).
				Int("active_alerts", len(a.service.ActiveAlerts()))
			if a.producer != nil {
				ps := a.producer.Stats()
				ev = ev.
					Uint64("producer_sent", ps.MessagesSent).
					Uint64("producer_failed", ps.MessagesFailed)
			}
			ev.Msg("stats")
		}
	}
}
