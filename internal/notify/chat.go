package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditwatch/internal/models"
)

// ChatMessage is an incoming-webhook envelope understood by Slack-style chat tools
type ChatMessage struct {
	Text        string           `json:"text"`
	Username    string           `json:"username,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	IconEmoji   string           `json:"icon_emoji,omitempty"`
	Attachments []ChatAttachment `json:"attachments"`
	Alert       WebhookPayload   `json:"alert"`
}

// ChatAttachment is one colored block of a chat message
type ChatAttachment struct {
	Color  string      `json:"color"`
	Title  string      `json:"title"`
	Text   string      `json:"text"`
	Fields []ChatField `json:"fields"`
	Footer string      `json:"footer,omitempty"`
	Ts     int64       `json:"ts"`
}

// ChatField is a title/value pair rendered inside an attachment
type ChatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type severityStyle struct {
	color string
	emoji string
}

var severityStyles = map[models.Severity]severityStyle{
	models.SeverityCritical: {color: "#d32f2f", emoji: ":rotating_light:"},
	models.SeverityHigh:     {color: "#f57c00", emoji: ":warning:"},
	models.SeverityMedium:   {color: "#fbc02d", emoji: ":large_orange_diamond:"},
	models.SeverityLow:      {color: "#1976d2", emoji: ":information_source:"},
}

func styleFor(sev models.Severity) severityStyle {
	if s, ok := severityStyles[sev]; ok {
		return s
	}
	return severityStyle{color: "#9e9e9e", emoji: ":bell:"}
}

// NewChatMessage wraps the webhook payload in a chat envelope
func NewChatMessage(cfg models.ChatWebhookConfig, n *models.Notification) ChatMessage {
	style := styleFor(n.Severity)

	icon := cfg.IconEmoji
	if icon == "" {
		icon = style.emoji
	}

	title := n.RuleName.EN
	if title == "" {
		title = n.RuleID
	}

	return ChatMessage{
		Text:      fmt.Sprintf("%s *[%s]* %s", style.emoji, strings.ToUpper(string(n.Severity)), title),
		Username:  cfg.Username,
		Channel:   cfg.Channel,
		IconEmoji: icon,
		Attachments: []ChatAttachment{{
			Color: style.color,
			Title: title,
			Text:  strings.TrimSpace(n.Message + "\n" + n.MessageAR),
			Fields: []ChatField{
				{Title: "Target", Value: n.TargetName, Short: true},
				{Title: "Severity", Value: string(n.Severity), Short: true},
				{Title: "Time", Value: n.FiredAt.UTC().Format(time.RFC3339), Short: false},
			},
			Footer: "auditwatch",
			Ts:     n.FiredAt.Unix(),
		}},
		Alert: NewWebhookPayload(n),
	}
}

// ChatSender formats a chat envelope and hands it to the webhook sender
type ChatSender struct {
	webhook *WebhookSender
}

// NewChatSender wraps webhook; delivery and error handling are the webhook's
func NewChatSender(webhook *WebhookSender) *ChatSender {
	return &ChatSender{webhook: webhook}
}

func (s *ChatSender) Send(ctx context.Context, ch models.AlertChannel, n *models.Notification) error {
	cfg, ok := ch.Config.(models.ChatWebhookConfig)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigMismatch, ch.ID)
	}
	return s.webhook.Post(ctx, cfg.Webhook(), NewChatMessage(cfg, n))
}
