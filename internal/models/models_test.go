package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparator_Compare(t *testing.T) {
	tests := []struct {
		cmp       Comparator
		value     float64
		threshold float64
		want      bool
	}{
		{GreaterThan, 96, 95, true},
		{GreaterThan, 95, 95, false},
		{GreaterThan, 94, 95, false},
		{LessThan, 94, 95, true},
		{LessThan, 95, 95, false},
		{Equals, 95, 95, true},
		{Equals, 95.0001, 95, false},
		{NotEquals, 95, 95, false},
		{NotEquals, 96, 95, true},
		{Comparator("between"), 95, 95, false},
		{Comparator(""), 1, 0, false},
	}

	for _, tt := range tests {
		got := tt.cmp.Compare(tt.value, tt.threshold)
		assert.Equal(t, tt.want, got, "%s(%v, %v)", tt.cmp, tt.value, tt.threshold)
	}
}

func TestSnapshot_Value(t *testing.T) {
	snap := MetricSnapshot{
		ResponseTimeMs:  1200,
		ErrorRatePct:    2.5,
		AvailabilityPct: 99.1,
		HealthScore:     88,
		RequestCount:    640,
	}

	for field, want := range map[MetricField]float64{
		FieldResponseTime: 1200,
		FieldErrorRate:    2.5,
		FieldAvailability: 99.1,
		FieldHealthScore:  88,
		FieldRequestCount: 640,
	} {
		got, ok := snap.Value(field)
		require.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}

	_, ok := snap.Value("cpu")
	assert.False(t, ok)
}

func TestAlertRule_NormalizeAndValidate(t *testing.T) {
	rule := AlertRule{
		ID:          "  r1 ",
		TargetID:    " CBE ",
		MetricField: "Availability",
		Comparator:  " LESS_THAN",
		Severity:    "High",
		ChannelIDs:  []string{"a", " b", "a", "c", "b"},
	}
	rule.Normalize()

	assert.Equal(t, "r1", rule.ID)
	assert.Equal(t, "cbe", rule.TargetID)
	assert.Equal(t, FieldAvailability, rule.MetricField)
	assert.Equal(t, LessThan, rule.Comparator)
	assert.Equal(t, SeverityHigh, rule.Severity)
	assert.Equal(t, []string{"a", "b", "c"}, rule.ChannelIDs)
	assert.NoError(t, rule.Validate())
}

func TestAlertRule_ValidateErrors(t *testing.T) {
	valid := AlertRule{
		ID: "r1", TargetID: AllTargets, MetricField: FieldErrorRate,
		Comparator: GreaterThan, Severity: SeverityLow,
	}
	require.NoError(t, valid.Validate())

	cases := map[error]func(r *AlertRule){
		ErrEmptyRuleID:        func(r *AlertRule) { r.ID = "" },
		ErrEmptyTargetID:      func(r *AlertRule) { r.TargetID = "" },
		ErrInvalidMetricField: func(r *AlertRule) { r.MetricField = "cpu" },
		ErrInvalidComparator:  func(r *AlertRule) { r.Comparator = "gte" },
		ErrInvalidSeverity:    func(r *AlertRule) { r.Severity = "warning" },
		ErrNegativeCooldown:   func(r *AlertRule) { r.CooldownMinutes = -5 },
		ErrEmptyChannelRef:    func(r *AlertRule) { r.ChannelIDs = []string{""} },
	}
	for want, mutate := range cases {
		r := valid.Clone()
		mutate(&r)
		assert.ErrorIs(t, r.Validate(), want)
	}
}

func TestRulePatch_ApplyLeavesUnsetFields(t *testing.T) {
	rule := AlertRule{ID: "r1", Threshold: 10, Enabled: true, ChannelIDs: []string{"a"}}
	off := false

	patched := RulePatch{Enabled: &off}.Apply(rule)

	assert.False(t, patched.Enabled)
	assert.Equal(t, 10.0, patched.Threshold)
	assert.Equal(t, []string{"a"}, patched.ChannelIDs)
	assert.True(t, rule.Enabled, "original must not change")
}

func TestAlertChannel_UnmarshalSelectsVariant(t *testing.T) {
	payloads := map[ChannelKind]string{
		KindEmail:       `{"id":"m","kind":"email","enabled":true,"config":{"recipients":["ops@example.com"]}}`,
		KindSMS:         `{"id":"s","kind":"SMS","enabled":true,"config":{"numbers":["+201001234567"]}}`,
		KindWebhook:     `{"id":"w","kind":"webhook","enabled":true,"config":{"url":"https://example.com/hook","headers":{"X-Token":"t"}}}`,
		KindChatWebhook: `{"id":"c","kind":"chat_webhook","enabled":true,"config":{"url":"https://chat.example.com/in","channel":"#alerts"}}`,
	}

	for kind, body := range payloads {
		var ch AlertChannel
		require.NoError(t, json.Unmarshal([]byte(body), &ch), kind)
		assert.Equal(t, kind, ch.Kind)
		require.NotNil(t, ch.Config, kind)
		assert.Equal(t, kind, ch.Config.Kind())
		assert.NoError(t, ch.Validate(), kind)
	}
}

func TestAlertChannel_UnmarshalUnknownKind(t *testing.T) {
	var ch AlertChannel
	err := json.Unmarshal([]byte(`{"id":"x","kind":"pager","config":{}}`), &ch)
	assert.ErrorIs(t, err, ErrInvalidChannelKind)
}

func TestAlertChannel_RoundTripKeepsConfig(t *testing.T) {
	ch := AlertChannel{
		ID: "w", Kind: KindWebhook, Enabled: true,
		Config: WebhookConfig{URL: "https://example.com/hook", Method: "PUT"},
	}
	data, err := json.Marshal(ch)
	require.NoError(t, err)

	var decoded AlertChannel
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ch, decoded)
}

func TestAlertChannel_ValidateConfig(t *testing.T) {
	ch := AlertChannel{ID: "w", Kind: KindWebhook, Config: WebhookConfig{URL: "ftp://example.com"}}
	assert.ErrorIs(t, ch.Validate(), ErrInvalidURL)

	ch.Config = WebhookConfig{URL: "https://example.com", Method: "DELETE"}
	assert.ErrorIs(t, ch.Validate(), ErrInvalidMethod)

	ch = AlertChannel{ID: "m", Kind: KindEmail, Config: EmailConfig{}}
	assert.ErrorIs(t, ch.Validate(), ErrNoRecipients)

	ch = AlertChannel{ID: "m", Kind: KindEmail}
	assert.ErrorIs(t, ch.Validate(), ErrMissingConfig)
}

func TestAlertChannel_RedactedMasksSecrets(t *testing.T) {
	ch := AlertChannel{
		ID: "m", Kind: KindEmail,
		Config: EmailConfig{Recipients: []string{"a@example.com"}, Password: "hunter2"},
	}

	red := ch.Redacted()
	assert.Equal(t, "******", red.Config.(EmailConfig).Password)
	assert.Equal(t, "hunter2", ch.Config.(EmailConfig).Password)
}

func TestAlertChannel_RedactedMasksHeaders(t *testing.T) {
	hook := AlertChannel{
		ID: "h", Kind: KindWebhook,
		Config: WebhookConfig{URL: "https://hooks.example.com", Headers: map[string]string{"Authorization": "Bearer abc"}},
	}
	red := hook.Redacted()
	assert.Equal(t, "******", red.Config.(WebhookConfig).Headers["Authorization"])
	assert.Equal(t, "Bearer abc", hook.Config.(WebhookConfig).Headers["Authorization"])

	chat := AlertChannel{
		ID: "c", Kind: KindChatWebhook,
		Config: ChatWebhookConfig{URL: "https://chat.example.com", Headers: map[string]string{"X-Token": "s3cret"}},
	}
	red = chat.Redacted()
	assert.Equal(t, "******", red.Config.(ChatWebhookConfig).Headers["X-Token"])
	assert.Equal(t, "s3cret", chat.Config.(ChatWebhookConfig).Headers["X-Token"])
}
