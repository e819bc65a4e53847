// Package storage archives fired notifications and their lifecycle
// transitions so alert history survives restarts.
package storage

import (
	"context"
	"errors"
	"time"

	"auditwatch/internal/models"
)

// ErrRecordNotFound is returned when updating an unknown notification
var ErrRecordNotFound = errors.New("notification record not found")

// Archive persists notifications and their status changes
type Archive interface {
	Record(ctx context.Context, n *models.Notification) error
	UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, actor string, at time.Time) error
	History(ctx context.Context, q HistoryQuery) ([]NotificationRecord, error)
	Close() error
}

// HistoryQuery filters archived notifications. Zero values mean no filter;
// Limit <= 0 falls back to DefaultHistoryLimit.
type HistoryQuery struct {
	TargetID string
	Since    time.Time
	Limit    int
}

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

func (q HistoryQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultHistoryLimit
	case q.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return q.Limit
	}
}

// Nop discards everything; used when the archive is disabled
type Nop struct{}

func (Nop) Record(context.Context, *models.Notification) error { return nil }

func (Nop) UpdateStatus(context.Context, string, models.NotificationStatus, string, time.Time) error {
	return nil
}

func (Nop) History(context.Context, HistoryQuery) ([]NotificationRecord, error) {
	return []NotificationRecord{}, nil
}

func (Nop) Close() error { return nil }
