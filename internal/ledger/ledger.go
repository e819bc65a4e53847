// Package ledger keeps the set of open notifications and aggregates them
// into per-severity and per-target statistics.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"auditwatch/internal/clock"
	"auditwatch/internal/logger"
	"auditwatch/internal/metrics"
	"auditwatch/internal/models"
	"auditwatch/internal/storage"
)

// ErrAlertNotFound is returned for ids not in the ledger
var ErrAlertNotFound = errors.New("alert not found")

// Ledger holds currently open notifications. Status changes are also
// written to the archive, which is the system of record.
type Ledger struct {
	clock   clock.Clock
	archive storage.Archive

	mu     sync.RWMutex
	alerts map[string]models.Notification
}

// New creates an empty ledger. A nil archive disables recording.
func New(clk clock.Clock, archive storage.Archive) *Ledger {
	if clk == nil {
		clk = clock.Real()
	}
	if archive == nil {
		archive = storage.Nop{}
	}
	return &Ledger{
		clock:   clk,
		archive: archive,
		alerts:  make(map[string]models.Notification),
	}
}

// Add stores a fired notification and records it in the archive.
// Archive failures are logged and do not affect membership.
func (l *Ledger) Add(ctx context.Context, n *models.Notification) {
	l.mu.Lock()
	l.alerts[n.ID] = n.Clone()
	size := len(l.alerts)
	l.mu.Unlock()

	metrics.ActiveAlerts.Set(float64(size))

	if err := l.archive.Record(ctx, n); err != nil {
		l.archiveFailed(err, n.ID, "record")
	}
}

// ActiveAlerts returns open notifications, oldest first
func (l *Ledger) ActiveAlerts() []models.Notification {
	l.mu.RLock()
	out := make([]models.Notification, 0, len(l.alerts))
	for _, n := range l.alerts {
		out = append(out, n.Clone())
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FiredAt.Before(out[j].FiredAt)
	})
	return out
}

// Get returns one open notification
func (l *Ledger) Get(id string) (models.Notification, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n, ok := l.alerts[id]
	if !ok {
		return models.Notification{}, false
	}
	return n.Clone(), true
}

// Acknowledge records that actor has seen the alert. The alert stays open.
func (l *Ledger) Acknowledge(ctx context.Context, id, actor string) error {
	if _, ok := l.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}

	if err := l.archive.UpdateStatus(ctx, id, models.StatusAcknowledged, actor, l.clock.Now()); err != nil {
		l.archiveFailed(err, id, "acknowledge")
	}

	log := logger.WithComponent("ledger")

	log.Info().
		Str("alert_id", id).
		Str("actor", actor).
		Msg("alert acknowledged")
	return nil
}

// Resolve closes the alert and removes it from the ledger
func (l *Ledger) Resolve(ctx context.Context, id, actor string) (models.Notification, error) {
	l.mu.Lock()
	n, ok := l.alerts[id]
	if ok {
		delete(l.alerts, id)
	}
	size := len(l.alerts)
	l.mu.Unlock()

	if !ok {
		return models.Notification{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	metrics.ActiveAlerts.Set(float64(size))

	if err := l.archive.UpdateStatus(ctx, id, models.StatusResolved, actor, l.clock.Now()); err != nil {
		l.archiveFailed(err, id, "resolve")
	}

	log := logger.WithComponent("ledger")

	log.Info().
		Str("alert_id", id).
		Str("actor", actor).
		Msg("alert resolved")
	return n, nil
}

// History queries the archive for notifications fired within window
func (l *Ledger) History(ctx context.Context, window, targetID string, limit int) ([]storage.NotificationRecord, error) {
	d := ParseWindow(window)
	return l.archive.History(ctx, storage.HistoryQuery{
		TargetID: targetID,
		Since:    l.clock.Now().Add(-d),
		Limit:    limit,
	})
}

func (l *Ledger) archiveFailed(err error, id, op string) {
	metrics.PersistenceErrorsTotal.WithLabelValues("archive").Inc()
	log := logger.WithComponent("ledger")
	log.Error().
		Err(err).
		Str("alert_id", id).
		Str("op", op).
		Msg("archive write failed")
}

// Stats aggregates open alerts fired within a window
type Stats struct {
	Window     string                  `json:"window"`
	Since      time.Time               `json:"since"`
	Total      int                     `json:"total"`
	BySeverity map[models.Severity]int `json:"by_severity"`
	ByTarget   map[string]int          `json:"by_target"`
}

// Statistics counts open alerts with FiredAt >= now-window, grouped by
// severity and target. Unparseable windows fall back to 24h.
func (l *Ledger) Statistics(window string) Stats {
	d, token := parseWindow(window)
	since := l.clock.Now().Add(-d)

	stats := Stats{
		Window:     token,
		Since:      since,
		BySeverity: make(map[models.Severity]int, len(models.Severities)),
		ByTarget:   make(map[string]int),
	}
	for _, sev := range models.Severities {
		stats.BySeverity[sev] = 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, n := range l.alerts {
		if n.FiredAt.Before(since) {
			continue
		}
		stats.Total++
		stats.BySeverity[n.Severity]++
		stats.ByTarget[n.TargetID]++
	}
	return stats
}
