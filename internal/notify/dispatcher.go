// Package notify turns a rule firing into a Notification and fans it out to
// every channel the rule references. Delivery is settle-all: each channel
// runs concurrently under its own timeout, and one channel's failure never
// prevents the others from being attempted.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"auditwatch/internal/clock"
	"auditwatch/internal/logger"
	"auditwatch/internal/metrics"
	"auditwatch/internal/models"
)

// DefaultChannelTimeout bounds a single channel delivery
const DefaultChannelTimeout = 5 * time.Second

// ChannelSource resolves channel ids at delivery time
type ChannelSource interface {
	LookupChannel(id string) (models.AlertChannel, bool)
}

// Claimer records a firing before delivery; see alerts.Cooldown
type Claimer interface {
	Claim(ctx context.Context, rule models.AlertRule, now time.Time) (models.AlertRule, bool)
}

// Recorder stores fired notifications; see ledger.Ledger
type Recorder interface {
	Add(ctx context.Context, n *models.Notification)
}

// Publisher streams fired notifications to other systems
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Status is the outcome of one channel delivery
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome records what happened for one channel id
type Outcome struct {
	ChannelID string             `json:"channel_id"`
	Kind      models.ChannelKind `json:"kind,omitempty"`
	Status    Status             `json:"status"`
	Err       error              `json:"-"`
	Error     string             `json:"error,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Result is the full account of one Fire call
type Result struct {
	Notification *models.Notification `json:"notification,omitempty"`
	Suppressed   bool                 `json:"suppressed"`
	Outcomes     []Outcome            `json:"outcomes"`
}

// Count returns how many outcomes have status s
func (r Result) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Config wires a Dispatcher
type Config struct {
	Channels  ChannelSource
	Claimer   Claimer
	Ledger    Recorder
	Publisher Publisher // optional
	Senders   map[models.ChannelKind]Sender
	Timeout   time.Duration
	Clock     clock.Clock
}

// Dispatcher fires rules and delivers notifications
type Dispatcher struct {
	channels  ChannelSource
	claimer   Claimer
	ledger    Recorder
	publisher Publisher
	senders   map[models.ChannelKind]Sender
	timeout   time.Duration
	clock     clock.Clock
}

// DefaultSenders returns the sender table for every channel kind
func DefaultSenders(client *http.Client, mailer MailSender, gateway SMSGateway) map[models.ChannelKind]Sender {
	webhook := NewWebhookSender(client)
	return map[models.ChannelKind]Sender{
		models.KindEmail:       NewEmailSender(mailer),
		models.KindSMS:         NewSMSSender(gateway),
		models.KindWebhook:     webhook,
		models.KindChatWebhook: NewChatSender(webhook),
	}
}

// NewDispatcher creates a dispatcher, using DefaultChannelTimeout and the
// real clock when cfg leaves them unset.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultChannelTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Dispatcher{
		channels:  cfg.Channels,
		claimer:   cfg.Claimer,
		ledger:    cfg.Ledger,
		publisher: cfg.Publisher,
		senders:   cfg.Senders,
		timeout:   cfg.Timeout,
		clock:     cfg.Clock,
	}
}

// Fire claims the rule's cooldown, builds and records the notification, and
// delivers it to every channel of the rule. A rule still in cooldown yields
// a suppressed result with no notification.
func (d *Dispatcher) Fire(ctx context.Context, rule models.AlertRule, snap models.MetricSnapshot) Result {
	now := d.clock.Now()
	log := logger.WithRule("dispatcher", rule.ID).With().Str("target_id", snap.TargetID).Logger()

	if _, ok := d.claimer.Claim(ctx, rule, now); !ok {
		return Result{Suppressed: true, Outcomes: []Outcome{}}
	}

	n, err := d.build(rule, snap, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to build notification")
		return Result{Outcomes: []Outcome{}}
	}
	metrics.FiringsTotal.WithLabelValues(string(n.Severity), n.TargetID).Inc()

	d.ledger.Add(ctx, n)
	d.publish(ctx, n)

	outcomes := d.Deliver(ctx, n, n.ChannelIDs)
	result := Result{Notification: n, Outcomes: outcomes}

	log.Info().
		Str("alert_id", n.ID).
		Str("severity", string(n.Severity)).
		Int("delivered", result.Count(StatusDelivered)).
		Int("failed", result.Count(StatusFailed)).
		Int("skipped", result.Count(StatusSkipped)).
		Msg("rule fired")

	return result
}

func (d *Dispatcher) build(rule models.AlertRule, snap models.MetricSnapshot, now time.Time) (*models.Notification, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate notification id: %w", err)
	}

	observed, _ := snap.Value(rule.MetricField)
	msg := RenderMessage(rule, snap.TargetID, observed)
	target := TargetName(snap.TargetID)

	return &models.Notification{
		ID:           id.String(),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		TargetID:     snap.TargetID,
		TargetName:   target.EN,
		TargetNameAR: target.AR,
		Severity:     rule.Severity,
		Message:      msg.EN,
		MessageAR:    msg.AR,
		FiredAt:      now,
		ChannelIDs:   append([]string{}, rule.ChannelIDs...),
		Metadata: models.NotificationMetadata{
			ObservedValue: observed,
			Threshold:     rule.Threshold,
			Comparator:    rule.Comparator,
			MetricField:   rule.MetricField,
			Snapshot:      snap,
		},
	}, nil
}

func (d *Dispatcher) publish(ctx context.Context, n *models.Notification) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, n); err != nil {
		log := logger.WithRule("dispatcher", n.RuleID)
		log.Warn().
			Err(err).
			Str("alert_id", n.ID).
			Msg("failed to publish notification")
	}
}

// Deliver sends n to every channel in ids concurrently and waits for all of
// them. Outcomes are returned in the order of ids.
func (d *Dispatcher) Deliver(ctx context.Context, n *models.Notification, ids []string) []Outcome {
	outcomes := make([]Outcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = d.deliverOne(ctx, id, n, false)
		}()
	}
	wg.Wait()

	return outcomes
}

// TestChannel sends a synthetic low-severity notification through one
// channel and reports whether it was delivered. The channel's enabled flag
// is ignored so a channel can be verified before it is switched on. No rule,
// cooldown or ledger state is touched.
func (d *Dispatcher) TestChannel(ctx context.Context, channelID string) (Outcome, error) {
	if _, ok := d.channels.LookupChannel(channelID); !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrChannelMissing, channelID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate notification id: %w", err)
	}
	now := d.clock.Now()
	n := &models.Notification{
		ID:           id.String(),
		RuleID:       "channel-test",
		RuleName:     models.LocalizedText{EN: "Channel test", AR: "اختبار القناة"},
		TargetID:     "test",
		TargetName:   "Test",
		TargetNameAR: "اختبار",
		Severity:     models.SeverityLow,
		Message:      "This is a test notification for channel " + channelID,
		MessageAR:    "هذا إشعار تجريبي للقناة " + channelID,
		FiredAt:      now,
		ChannelIDs:   []string{channelID},
		Test:         true,
	}

	return d.deliverOne(ctx, channelID, n, true), nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, channelID string, n *models.Notification, ignoreDisabled bool) (out Outcome) {
	out = Outcome{ChannelID: channelID}
	log := logger.WithRule("dispatcher", n.RuleID).With().
		Str("alert_id", n.ID).
		Str("channel_id", channelID).
		Logger()

	ch, ok := d.channels.LookupChannel(channelID)
	if !ok {
		log.Warn().Msg("skipping missing channel")
		return skipped(out, ErrChannelMissing)
	}
	out.Kind = ch.Kind
	if !ch.Enabled && !ignoreDisabled {
		log.Debug().Msg("skipping disabled channel")
		return skipped(out, ErrChannelDisabled)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("dispatcher").Inc()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("channel delivery panic recovered")
			out.Status = StatusFailed
			out.Err = fmt.Errorf("channel delivery panic: %v", r)
			out.Error = out.Err.Error()
		}
		out.Duration = time.Since(start)
		metrics.ChannelDeliveriesTotal.WithLabelValues(string(out.Kind), string(out.Status)).Inc()
		metrics.ChannelDeliveryDuration.WithLabelValues(string(out.Kind)).Observe(out.Duration.Seconds())
	}()

	sender, ok := d.senders[ch.Kind]
	if !ok {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("%w: %s", ErrUnsupportedKind, ch.Kind)
		out.Error = out.Err.Error()
		return out
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(sendCtx, ch, n); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("channel timed out after %s: %w", d.timeout, err)
		}
		log.Warn().
			Err(err).
			Str("channel_kind", string(ch.Kind)).
			Msg("channel delivery failed")
		out.Status = StatusFailed
		out.Err = err
		out.Error = err.Error()
		return out
	}

	out.Status = StatusDelivered
	return out
}

func skipped(out Outcome, err error) Outcome {
	out.Status = StatusSkipped
	out.Err = err
	out.Error = err.Error()
	metrics.ChannelDeliveriesTotal.WithLabelValues(string(out.Kind), string(out.Status)).Inc()
	return out
}
