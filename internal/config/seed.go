package config

import "auditwatch/internal/models"

// RuleConfig is the file/env representation of an alert rule
type RuleConfig struct {
	ID              string   `mapstructure:"id"`
	NameEN          string   `mapstructure:"name_en"`
	NameAR          string   `mapstructure:"name_ar"`
	TargetID        string   `mapstructure:"target_id"`
	Metric          string   `mapstructure:"metric"`
	Comparator      string   `mapstructure:"comparator"`
	Threshold       float64  `mapstructure:"threshold"`
	Severity        string   `mapstructure:"severity"`
	Enabled         *bool    `mapstructure:"enabled"`
	Channels        []string `mapstructure:"channels"`
	CooldownMinutes int      `mapstructure:"cooldown_minutes"`
}

// Model converts the seed entry into a normalized rule. Enabled defaults to true.
func (rc RuleConfig) Model() models.AlertRule {
	enabled := true
	if rc.Enabled != nil {
		enabled = *rc.Enabled
	}
	target := rc.TargetID
	if target == "" {
		target = models.AllTargets
	}

	rule := models.AlertRule{
		ID:              rc.ID,
		Name:            models.LocalizedText{EN: rc.NameEN, AR: rc.NameAR},
		TargetID:        target,
		MetricField:     models.MetricField(rc.Metric),
		Comparator:      models.Comparator(rc.Comparator),
		Threshold:       rc.Threshold,
		Severity:        models.Severity(rc.Severity),
		Enabled:         enabled,
		ChannelIDs:      rc.Channels,
		CooldownMinutes: rc.CooldownMinutes,
	}
	rule.Normalize()
	return rule
}

// ChannelConfig is the flattened file/env representation of a channel.
// Only the fields of the selected kind are read.
type ChannelConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	Enabled *bool  `mapstructure:"enabled"`

	// email
	Recipients      []string `mapstructure:"recipients"`
	From            string   `mapstructure:"from"`
	SubjectTemplate string   `mapstructure:"subject_template"`
	BodyTemplate    string   `mapstructure:"body_template"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`

	// sms
	Numbers    []string `mapstructure:"numbers"`
	Template   string   `mapstructure:"template"`
	GatewayURL string   `mapstructure:"gateway_url"`
	SenderID   string   `mapstructure:"sender_id"`
	APIKey     string   `mapstructure:"api_key"`

	// webhook, chat_webhook
	URL         string            `mapstructure:"url"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	ChatUser    string            `mapstructure:"chat_username"`
	ChatChannel string            `mapstructure:"chat_channel"`
	IconEmoji   string            `mapstructure:"icon_emoji"`
}

// Model converts the seed entry into a channel with the matching config variant.
// Unknown kinds produce a channel without config, which fails validation.
func (cc ChannelConfig) Model() models.AlertChannel {
	enabled := true
	if cc.Enabled != nil {
		enabled = *cc.Enabled
	}

	ch := models.AlertChannel{
		ID:      cc.ID,
		Name:    cc.Name,
		Kind:    models.ChannelKind(cc.Kind),
		Enabled: enabled,
	}
	ch.Normalize()

	switch ch.Kind {
	case models.KindEmail:
		ch.Config = models.EmailConfig{
			Recipients:      cc.Recipients,
			From:            cc.From,
			SubjectTemplate: cc.SubjectTemplate,
			BodyTemplate:    cc.BodyTemplate,
			SMTPHost:        cc.SMTPHost,
			SMTPPort:        cc.SMTPPort,
			Username:        cc.Username,
			Password:        cc.Password,
		}
	case models.KindSMS:
		ch.Config = models.SMSConfig{
			Numbers:    cc.Numbers,
			Template:   cc.Template,
			GatewayURL: cc.GatewayURL,
			SenderID:   cc.SenderID,
			APIKey:     cc.APIKey,
		}
	case models.KindWebhook:
		ch.Config = models.WebhookConfig{
			URL:     cc.URL,
			Method:  cc.Method,
			Headers: cc.Headers,
		}
	case models.KindChatWebhook:
		ch.Config = models.ChatWebhookConfig{
			URL:       cc.URL,
			Method:    cc.Method,
			Headers:   cc.Headers,
			Username:  cc.ChatUser,
			Channel:   cc.ChatChannel,
			IconEmoji: cc.IconEmoji,
		}
	}

	return ch
}

// DefaultRules are seeded when the configuration does not list any rules
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			ID: "slow-response", NameEN: "Slow API response", NameAR: "بطء استجابة الواجهة",
			TargetID: models.AllTargets, Metric: string(models.FieldResponseTime),
			Comparator: string(models.GreaterThan), Threshold: 3000,
			Severity: string(models.SeverityHigh), CooldownMinutes: 15,
		},
		{
			ID: "high-error-rate", NameEN: "High error rate", NameAR: "ارتفاع معدل الأخطاء",
			TargetID: models.AllTargets, Metric: string(models.FieldErrorRate),
			Comparator: string(models.GreaterThan), Threshold: 8,
			Severity: string(models.SeverityCritical), CooldownMinutes: 10,
		},
		{
			ID: "low-availability", NameEN: "Low availability", NameAR: "انخفاض التوفر",
			TargetID: models.AllTargets, Metric: string(models.FieldAvailability),
			Comparator: string(models.LessThan), Threshold: 85,
			Severity: string(models.SeverityCritical), CooldownMinutes: 5,
		},
		{
			ID: "degraded-health", NameEN: "Degraded health score", NameAR: "تراجع مؤشر الصحة",
			TargetID: models.AllTargets, Metric: string(models.FieldHealthScore),
			Comparator: string(models.LessThan), Threshold: 75,
			Severity: string(models.SeverityMedium), CooldownMinutes: 30,
		},
	}
}
