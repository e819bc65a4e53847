package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"auditwatch/internal/models"
)

const userAgent = "auditwatch/1.0"

// WebhookPayload is the JSON body posted to webhook channels
type WebhookPayload struct {
	AlertID     string                      `json:"alert_id"`
	RuleID      string                      `json:"rule_id"`
	RuleName    string                      `json:"rule_name"`
	RuleNameAR  string                      `json:"rule_name_ar,omitempty"`
	APIName     string                      `json:"api_name"`
	APINameAR   string                      `json:"api_name_ar,omitempty"`
	Severity    models.Severity             `json:"severity"`
	Message     string                      `json:"message"`
	MessageAR   string                      `json:"message_ar,omitempty"`
	TriggeredAt string                      `json:"triggered_at"`
	Test        bool                        `json:"test,omitempty"`
	Metadata    models.NotificationMetadata `json:"metadata"`
}

// NewWebhookPayload maps a notification onto the webhook wire format
func NewWebhookPayload(n *models.Notification) WebhookPayload {
	return WebhookPayload{
		AlertID:     n.ID,
		RuleID:      n.RuleID,
		RuleName:    n.RuleName.EN,
		RuleNameAR:  n.RuleName.AR,
		APIName:     n.TargetName,
		APINameAR:   n.TargetNameAR,
		Severity:    n.Severity,
		Message:     n.Message,
		MessageAR:   n.MessageAR,
		TriggeredAt: n.FiredAt.UTC().Format(time.RFC3339),
		Test:        n.Test,
		Metadata:    n.Metadata,
	}
}

// WebhookSender posts JSON payloads to webhook channels
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a sender; a nil client uses http.DefaultClient.
// Deadlines come from the request context.
func NewWebhookSender(client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSender{client: client}
}

func (s *WebhookSender) Send(ctx context.Context, ch models.AlertChannel, n *models.Notification) error {
	cfg, ok := ch.Config.(models.WebhookConfig)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigMismatch, ch.ID)
	}
	return s.Post(ctx, cfg, NewWebhookPayload(n))
}

// Post marshals body and sends it with the configured method and headers.
// Any status outside 2xx is an error.
func (s *WebhookSender) Post(ctx context.Context, cfg models.WebhookConfig, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrNon2xx, resp.StatusCode)
	}
	return nil
}
