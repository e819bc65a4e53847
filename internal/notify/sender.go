package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"auditwatch/internal/models"
)

// Delivery errors
var (
	ErrChannelMissing  = errors.New("channel not found")
	ErrChannelDisabled = errors.New("channel disabled")
	ErrUnsupportedKind = errors.New("no sender for channel kind")
	ErrConfigMismatch  = errors.New("channel config does not match sender")
	ErrNon2xx          = errors.New("endpoint returned non-2xx status")
	ErrNoTransport     = errors.New("channel has no delivery transport configured")
)

// Sender delivers one notification through one channel
type Sender interface {
	Send(ctx context.Context, ch models.AlertChannel, n *models.Notification) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, ch models.AlertChannel, n *models.Notification) error

func (f SenderFunc) Send(ctx context.Context, ch models.AlertChannel, n *models.Notification) error {
	return f(ctx, ch, n)
}

var templateFuncs = template.FuncMap{
	"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
}

func renderTemplate(name, text string, n *models.Notification) (string, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}
