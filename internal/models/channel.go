package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// ChannelKind identifies the delivery mechanism of a channel
type ChannelKind string

const (
	KindEmail       ChannelKind = "email"
	KindSMS         ChannelKind = "sms"
	KindWebhook     ChannelKind = "webhook"
	KindChatWebhook ChannelKind = "chat_webhook"
)

// IsValid checks if the channel kind is known
func (k ChannelKind) IsValid() bool {
	switch k {
	case KindEmail, KindSMS, KindWebhook, KindChatWebhook:
		return true
	default:
		return false
	}
}

// ChannelConfig is the kind-specific delivery configuration of a channel.
// Implementations: EmailConfig, SMSConfig, WebhookConfig, ChatWebhookConfig.
type ChannelConfig interface {
	Kind() ChannelKind
	Validate() error
}

// EmailConfig configures an email channel. Credentials are passed to the
// mail sender untouched.
type EmailConfig struct {
	Recipients      []string `json:"recipients"`
	From            string   `json:"from,omitempty"`
	SubjectTemplate string   `json:"subject_template,omitempty"`
	BodyTemplate    string   `json:"body_template,omitempty"`
	SMTPHost        string   `json:"smtp_host,omitempty"`
	SMTPPort        int      `json:"smtp_port,omitempty"`
	Username        string   `json:"username,omitempty"`
	Password        string   `json:"password,omitempty"`
}

func (EmailConfig) Kind() ChannelKind { return KindEmail }

func (c EmailConfig) Validate() error {
	if len(c.Recipients) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// SMSConfig configures an SMS channel
type SMSConfig struct {
	Numbers    []string `json:"numbers"`
	Template   string   `json:"template,omitempty"`
	GatewayURL string   `json:"gateway_url,omitempty"`
	SenderID   string   `json:"sender_id,omitempty"`
	APIKey     string   `json:"api_key,omitempty"`
}

func (SMSConfig) Kind() ChannelKind { return KindSMS }

func (c SMSConfig) Validate() error {
	if len(c.Numbers) == 0 {
		return ErrNoRecipients
	}
	if c.GatewayURL != "" {
		return validateEndpoint(c.GatewayURL)
	}
	return nil
}

// WebhookConfig configures a generic JSON webhook
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (WebhookConfig) Kind() ChannelKind { return KindWebhook }

func (c WebhookConfig) Validate() error {
	if err := validateEndpoint(c.URL); err != nil {
		return err
	}
	return validateMethod(c.Method)
}

// ChatWebhookConfig configures a chat-style incoming webhook
type ChatWebhookConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Username  string            `json:"username,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	IconEmoji string            `json:"icon_emoji,omitempty"`
}

func (ChatWebhookConfig) Kind() ChannelKind { return KindChatWebhook }

func (c ChatWebhookConfig) Validate() error {
	if err := validateEndpoint(c.URL); err != nil {
		return err
	}
	return validateMethod(c.Method)
}

// Webhook returns the generic webhook settings the chat envelope is posted with
func (c ChatWebhookConfig) Webhook() WebhookConfig {
	return WebhookConfig{URL: c.URL, Method: c.Method, Headers: c.Headers}
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

func validateMethod(method string) error {
	switch strings.ToUpper(method) {
	case "", http.MethodPost, http.MethodPut, http.MethodPatch:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
}

// AlertChannel is a named delivery target
type AlertChannel struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Kind    ChannelKind   `json:"kind"`
	Enabled bool          `json:"enabled"`
	Config  ChannelConfig `json:"config"`
}

// Normalize trims the identifier and lower-cases the kind
func (c *AlertChannel) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.Kind = ChannelKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
}

// Validate checks the channel and that its config shape matches its kind
func (c *AlertChannel) Validate() error {
	if c.ID == "" {
		return ErrEmptyChannelID
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannelKind, c.Kind)
	}
	if c.Config == nil {
		return ErrMissingConfig
	}
	if c.Config.Kind() != c.Kind {
		return fmt.Errorf("%w: channel is %s, config is %s", ErrConfigKindMismatch, c.Kind, c.Config.Kind())
	}
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("%s config: %w", c.Kind, err)
	}
	return nil
}

// Clone returns a deep copy of the channel
func (c AlertChannel) Clone() AlertChannel {
	c.Config = cloneConfig(c.Config)
	return c
}

func cloneConfig(cfg ChannelConfig) ChannelConfig {
	switch v := cfg.(type) {
	case EmailConfig:
		v.Recipients = slices.Clone(v.Recipients)
		return v
	case SMSConfig:
		v.Numbers = slices.Clone(v.Numbers)
		return v
	case WebhookConfig:
		v.Headers = maps.Clone(v.Headers)
		return v
	case ChatWebhookConfig:
		v.Headers = maps.Clone(v.Headers)
		return v
	default:
		return cfg
	}
}

type channelJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Kind    ChannelKind     `json:"kind"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON decodes the config variant selected by "kind"
func (c *AlertChannel) UnmarshalJSON(data []byte) error {
	var raw channelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ID = raw.ID
	c.Name = raw.Name
	c.Kind = ChannelKind(strings.ToLower(strings.TrimSpace(string(raw.Kind))))
	c.Enabled = raw.Enabled
	c.Config = nil

	if len(raw.Config) == 0 || string(raw.Config) == "null" {
		return nil
	}

	cfg, err := DecodeChannelConfig(c.Kind, raw.Config)
	if err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// DecodeChannelConfig decodes a JSON config blob into the variant for kind
func DecodeChannelConfig(kind ChannelKind, data []byte) (ChannelConfig, error) {
	switch kind {
	case KindEmail:
		var cfg EmailConfig
		err := json.Unmarshal(data, &cfg)
		return cfg, err
	case KindSMS:
		var cfg SMSConfig
		err := json.Unmarshal(data, &cfg)
		return cfg, err
	case KindWebhook:
		var cfg WebhookConfig
		err := json.Unmarshal(data, &cfg)
		return cfg, err
	case KindChatWebhook:
		var cfg ChatWebhookConfig
		err := json.Unmarshal(data, &cfg)
		return cfg, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidChannelKind, kind)
	}
}

// ChannelPatch is a partial channel update; nil fields are left unchanged.
// A replacement Config must be of the channel's existing kind.
type ChannelPatch struct {
	Name    *string       `json:"name,omitempty"`
	Enabled *bool         `json:"enabled,omitempty"`
	Config  ChannelConfig `json:"-"`
}

// Apply returns a copy of c with the patch applied
func (p ChannelPatch) Apply(c AlertChannel) (AlertChannel, error) {
	c = c.Clone()
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.Config != nil {
		if p.Config.Kind() != c.Kind {
			return c, fmt.Errorf("%w: channel is %s, config is %s", ErrConfigKindMismatch, c.Kind, p.Config.Kind())
		}
		c.Config = cloneConfig(p.Config)
	}
	return c, nil
}

const redactedSecret = "******"

// Redacted returns a copy with credentials masked, for API responses
func (c AlertChannel) Redacted() AlertChannel {
	c = c.Clone()
	switch v := c.Config.(type) {
	case EmailConfig:
		if v.Password != "" {
			v.Password = redactedSecret
		}
		c.Config = v
	case SMSConfig:
		if v.APIKey != "" {
			v.APIKey = redactedSecret
		}
		c.Config = v
	case WebhookConfig:
		redactHeaders(v.Headers)
		c.Config = v
	case ChatWebhookConfig:
		redactHeaders(v.Headers)
		c.Config = v
	}
	return c
}

// redactHeaders masks every value in place; callers pass a cloned map
func redactHeaders(h map[string]string) {
	for k := range h {
		h[k] = redactedSecret
	}
}
