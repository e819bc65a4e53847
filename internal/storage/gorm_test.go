package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditwatch/internal/models"
)

func newTestArchive(t *testing.T) *GormArchive {
	t.Helper()
	a, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func notificationAt(id, target string, at time.Time) *models.Notification {
	return &models.Notification{
		ID:       id,
		RuleID:   "low-availability",
		RuleName: models.LocalizedText{EN: "Low availability", AR: "انخفاض التوفر"},
		TargetID: target,
		Severity: models.SeverityCritical,
		Message:  "Central Bank - Availability dropped below 95% (current: 90%)",
		FiredAt:  at,
		Metadata: models.NotificationMetadata{ObservedValue: 90, Threshold: 95},
	}
}

func TestGormArchive_RecordAndHistory(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	base := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

	require.NoError(t, a.Record(ctx, notificationAt("n1", "cbe", base)))
	require.NoError(t, a.Record(ctx, notificationAt("n2", "eta", base.Add(time.Minute))))
	require.NoError(t, a.Record(ctx, notificationAt("n3", "cbe", base.Add(2*time.Minute))))

	all, err := a.History(ctx, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "n3", all[0].ID, "newest first")
	assert.Equal(t, models.StatusActive, all[0].Status)
	assert.Contains(t, all[0].Metadata, `"observed_value":90`)

	cbe, err := a.History(ctx, HistoryQuery{TargetID: "cbe", Since: base.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, cbe, 1)
	assert.Equal(t, "n3", cbe[0].ID)

	limited, err := a.History(ctx, HistoryQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGormArchive_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	at := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, a.Record(ctx, notificationAt("n1", "cbe", at)))

	require.NoError(t, a.UpdateStatus(ctx, "n1", models.StatusAcknowledged, "oncall", at.Add(time.Minute)))
	require.NoError(t, a.UpdateStatus(ctx, "n1", models.StatusResolved, "", at.Add(2*time.Minute)))

	recs, err := a.History(ctx, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.StatusResolved, recs[0].Status)
	assert.Equal(t, "oncall", recs[0].AcknowledgedBy)
	require.NotNil(t, recs[0].ResolvedAt)

	err = a.UpdateStatus(ctx, "missing", models.StatusResolved, "", at)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("postgres", "")
	assert.Error(t, err)
}

func TestHistoryQuery_Limit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, HistoryQuery{}.limit())
	assert.Equal(t, MaxHistoryLimit, HistoryQuery{Limit: 5000}.limit())
	assert.Equal(t, 7, HistoryQuery{Limit: 7}.limit())
}

func TestGormArchive_HealthCheck(t *testing.T) {
	a := newTestArchive(t)
	assert.NoError(t, a.HealthCheck(context.Background()))
}
