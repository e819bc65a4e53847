package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"auditwatch/internal/models"
)

const (
	defaultSMSTemplate = `[{{upper .Severity}}] {{.Message}}`
	maxSMSRunes        = 320
)

// SMSMessage is a rendered short message for a gateway
type SMSMessage struct {
	GatewayURL string   `json:"-"`
	APIKey     string   `json:"-"`
	SenderID   string   `json:"sender_id,omitempty"`
	To         []string `json:"to"`
	Text       string   `json:"text"`
}

// SMSGateway transmits a rendered short message
type SMSGateway interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}

// SMSSender renders short messages for sms channels
type SMSSender struct {
	gateway SMSGateway
}

func NewSMSSender(gateway SMSGateway) *SMSSender {
	return &SMSSender{gateway: gateway}
}

func (s *SMSSender) Send(ctx context.Context, ch models.AlertChannel, n *models.Notification) error {
	cfg, ok := ch.Config.(models.SMSConfig)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigMismatch, ch.ID)
	}

	msg, err := RenderSMS(cfg, n)
	if err != nil {
		return err
	}
	return s.gateway.SendSMS(ctx, msg)
}

// RenderSMS applies the channel template and truncates to maxSMSRunes
func RenderSMS(cfg models.SMSConfig, n *models.Notification) (SMSMessage, error) {
	tmpl := cfg.Template
	if tmpl == "" {
		tmpl = defaultSMSTemplate
	}

	text, err := renderTemplate("sms", tmpl, n)
	if err != nil {
		return SMSMessage{}, err
	}

	return SMSMessage{
		GatewayURL: cfg.GatewayURL,
		APIKey:     cfg.APIKey,
		SenderID:   cfg.SenderID,
		To:         append([]string(nil), cfg.Numbers...),
		Text:       truncateRunes(strings.TrimSpace(text), maxSMSRunes),
	}, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// HTTPGateway posts messages as JSON to the channel's gateway URL
type HTTPGateway struct {
	webhook *WebhookSender
}

func NewHTTPGateway(client *http.Client) *HTTPGateway {
	return &HTTPGateway{webhook: NewWebhookSender(client)}
}

func (g *HTTPGateway) SendSMS(ctx context.Context, msg SMSMessage) error {
	if msg.GatewayURL == "" {
		return fmt.Errorf("%w: sms gateway url", ErrNoTransport)
	}

	cfg := models.WebhookConfig{URL: msg.GatewayURL}
	if msg.APIKey != "" {
		cfg.Headers = map[string]string{"Authorization": "Bearer " + msg.APIKey}
	}
	return g.webhook.Post(ctx, cfg, msg)
}
