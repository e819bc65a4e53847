package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"auditwatch/internal/ledger"
	"auditwatch/internal/logger"
	"auditwatch/internal/middleware"
	"auditwatch/internal/models"
	"auditwatch/internal/notify"
	"auditwatch/internal/registry"
	"auditwatch/internal/storage"
	"auditwatch/internal/worker"
)

// Engine is the administrative surface exposed over HTTP
type Engine interface {
	AddRule(rule models.AlertRule) (models.AlertRule, error)
	UpdateRule(id string, patch models.RulePatch) (models.AlertRule, error)
	DeleteRule(id string) error
	GetRule(id string) (models.AlertRule, error)
	ListRules() []models.AlertRule

	AddChannel(ch models.AlertChannel) (models.AlertChannel, error)
	UpdateChannel(id string, patch models.ChannelPatch) (models.AlertChannel, error)
	DeleteChannel(id string) error
	GetChannel(id string) (models.AlertChannel, error)
	ListChannels() []models.AlertChannel
	TestChannelOutcome(ctx context.Context, id string) (notify.Outcome, error)

	ActiveAlerts() []models.Notification
	Acknowledge(ctx context.Context, id, actor string) error
	Resolve(ctx context.Context, id, actor string) (models.Notification, error)
	Statistics(window string) ledger.Stats
	History(ctx context.Context, window, targetID string, limit int) ([]storage.NotificationRecord, error)

	Targets() []string
	TargetHistory(targetID string) []models.MetricSnapshot

	Start()
	Stop()
	MonitorStats() worker.Stats
}

// HealthChecker reports whether an optional backend is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// APIConfig holds configuration for the admin API
type APIConfig struct {
	Engine      Engine
	MaxBodySize int64
	// Checks are probed by /health; keyed by component name
	Checks map[string]HealthChecker
}

// API serves the admin endpoints for rules, channels, alerts and the monitor
type API struct {
	engine      Engine
	maxBodySize int64
	checks      map[string]HealthChecker
	mux         *http.ServeMux
}

// NewAPI creates the admin API and registers its routes
func NewAPI(cfg APIConfig) *API {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 << 20 // 1MB default
	}

	a := &API{
		engine:      cfg.Engine,
		maxBodySize: maxBodySize,
		checks:      cfg.Checks,
		mux:         http.NewServeMux(),
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /api/rules", a.listRules)
	a.mux.HandleFunc("POST /api/rules", a.createRule)
	a.mux.HandleFunc("GET /api/rules/{id}", a.getRule)
	a.mux.HandleFunc("PATCH /api/rules/{id}", a.updateRule)
	a.mux.HandleFunc("DELETE /api/rules/{id}", a.deleteRule)

	a.mux.HandleFunc("GET /api/channels", a.listChannels)
	a.mux.HandleFunc("POST /api/channels", a.createChannel)
	a.mux.HandleFunc("GET /api/channels/{id}", a.getChannel)
	a.mux.HandleFunc("PATCH /api/channels/{id}", a.updateChannel)
	a.mux.HandleFunc("DELETE /api/channels/{id}", a.deleteChannel)
	a.mux.HandleFunc("POST /api/channels/{id}/test", a.testChannel)

	a.mux.HandleFunc("GET /api/alerts", a.listAlerts)
	a.mux.HandleFunc("GET /api/alerts/statistics", a.statistics)
	a.mux.HandleFunc("GET /api/alerts/history", a.history)
	a.mux.HandleFunc("POST /api/alerts/{id}/acknowledge", a.acknowledge)
	a.mux.HandleFunc("POST /api/alerts/{id}/resolve", a.resolve)

	a.mux.HandleFunc("GET /api/targets", a.listTargets)
	a.mux.HandleFunc("GET /api/targets/{id}/history", a.targetHistory)

	a.mux.HandleFunc("GET /api/monitor", a.monitorStatus)
	a.mux.HandleFunc("POST /api/monitor/start", a.monitorStart)
	a.mux.HandleFunc("POST /api/monitor/stop", a.monitorStop)

	a.mux.HandleFunc("GET /health", a.health)
	a.mux.Handle("GET /metrics", promhttp.Handler())
}

// ServeHTTP dispatches to the registered routes
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Rules

// ruleRequest decodes a new rule; Enabled defaults to true when omitted
type ruleRequest struct {
	models.AlertRule
	Enabled *bool `json:"enabled"`
}

func (a *API) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.ListRules())
}

func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := req.AlertRule
	rule.Enabled = req.Enabled == nil || *req.Enabled
	rule.LastFiredAt = nil
	if strings.TrimSpace(rule.TargetID) == "" {
		rule.TargetID = models.AllTargets
	}

	created, err := a.engine.AddRule(rule)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := a.engine.GetRule(r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	var patch models.RulePatch
	if err := a.decode(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := a.engine.UpdateRule(r.PathValue("id"), patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DeleteRule(r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Channels

type channelPatchRequest struct {
	Name    *string         `json:"name"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

func (a *API) listChannels(w http.ResponseWriter, r *http.Request) {
	channels := a.engine.ListChannels()
	for i := range channels {
		channels[i] = channels[i].Redacted()
	}
	writeJSON(w, http.StatusOK, channels)
}

func (a *API) createChannel(w http.ResponseWriter, r *http.Request) {
	body, err := a.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var ch models.AlertChannel
	if err := json.Unmarshal(body, &ch); err != nil {
		a.fail(w, r, badRequest(err))
		return
	}
	var flags struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(body, &flags); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ch.Enabled = flags.Enabled == nil || *flags.Enabled

	created, err := a.engine.AddChannel(ch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Redacted())
}

func (a *API) getChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := a.engine.GetChannel(r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch.Redacted())
}

func (a *API) updateChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req channelPatchRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := models.ChannelPatch{Name: req.Name, Enabled: req.Enabled}
	if len(req.Config) > 0 && string(req.Config) != "null" {
		current, err := a.engine.GetChannel(id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		cfg, err := models.DecodeChannelConfig(current.Kind, req.Config)
		if err != nil {
			a.fail(w, r, badRequest(err))
			return
		}
		patch.Config = cfg
	}

	updated, err := a.engine.UpdateChannel(id, patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Redacted())
}

func (a *API) deleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DeleteChannel(r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testChannelResponse mirrors the boolean result of a test send
type testChannelResponse struct {
	Success bool           `json:"success"`
	Outcome notify.Outcome `json:"outcome"`
}

func (a *API) testChannel(w http.ResponseWriter, r *http.Request) {
	out, err := a.engine.TestChannelOutcome(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testChannelResponse{
		Success: out.Status == notify.StatusDelivered,
		Outcome: out,
	})
}

// Alerts

type actorRequest struct {
	Actor string `json:"actor"`
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.ActiveAlerts())
}

func (a *API) acknowledge(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := a.decodeOptional(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.engine.Acknowledge(r.Context(), r.PathValue("id"), req.Actor); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := a.decodeOptional(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolved, err := a.engine.Resolve(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (a *API) statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Statistics(r.URL.Query().Get("window")))
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := a.engine.History(r.Context(), q.Get("window"), q.Get("target"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Targets

func (a *API) listTargets(w http.ResponseWriter, r *http.Request) {
	type target struct {
		ID   string               `json:"id"`
		Name models.LocalizedText `json:"name"`
	}

	ids := a.engine.Targets()
	out := make([]target, 0, len(ids))
	for _, id := range ids {
		out = append(out, target{ID: id, Name: notify.TargetName(id)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) targetHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.TargetHistory(r.PathValue("id")))
}

// Monitor

func (a *API) monitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.MonitorStats())
}

func (a *API) monitorStart(w http.ResponseWriter, r *http.Request) {
	a.engine.Start()
	log := requestLog(r)
	log.Info().Msg("monitoring started via API")
	writeJSON(w, http.StatusOK, a.engine.MonitorStats())
}

func (a *API) monitorStop(w http.ResponseWriter, r *http.Request) {
	a.engine.Stop()
	log := requestLog(r)
	log.Info().Msg("monitoring stopped via API")
	writeJSON(w, http.StatusOK, a.engine.MonitorStats())
}

// health probes every configured backend
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string, len(a.checks))
	healthy := true
	for name, check := range a.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"monitoring": a.engine.MonitorStats().Running,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// Helpers

func requestLog(r *http.Request) zerolog.Logger {
	return logger.WithRequestID(r.Header.Get(middleware.RequestIDHeader)).With().
		Str("component", "api").
		Logger()
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

func (a *API) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodySize)
	return io.ReadAll(r.Body)
}

// decode parses a required JSON body into v
func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := a.readBody(w, r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// decodeOptional is decode but accepts an empty body
func (a *API) decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := a.readBody(w, r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// fail maps domain errors onto HTTP status codes
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var bad badRequestError
	switch {
	case errors.Is(err, registry.ErrRuleNotFound),
		errors.Is(err, registry.ErrChannelNotFound),
		errors.Is(err, ledger.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case models.IsValidationError(err), errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log := requestLog(r)
		log.Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
