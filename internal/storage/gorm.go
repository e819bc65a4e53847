package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"auditwatch/internal/models"
)

// NotificationRecord is the archived row of one notification
type NotificationRecord struct {
	ID             string                    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RuleID         string                    `gorm:"index;type:varchar(128)" json:"rule_id"`
	RuleNameEN     string                    `json:"rule_name_en"`
	RuleNameAR     string                    `json:"rule_name_ar"`
	TargetID       string                    `gorm:"index;type:varchar(64)" json:"target_id"`
	Severity       models.Severity           `gorm:"type:varchar(16)" json:"severity"`
	Message        string                    `json:"message"`
	MessageAR      string                    `json:"message_ar"`
	FiredAt        time.Time                 `gorm:"index" json:"fired_at"`
	Status         models.NotificationStatus `gorm:"index;type:varchar(16)" json:"status"`
	AcknowledgedBy string                    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time                `json:"acknowledged_at,omitempty"`
	ResolvedBy     string                    `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time                `json:"resolved_at,omitempty"`
	Metadata       string                    `gorm:"type:text" json:"metadata"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func (NotificationRecord) TableName() string { return "notifications" }

// GormArchive stores notifications through gorm
type GormArchive struct {
	db *gorm.DB
}

// Open connects to the archive database and migrates the schema.
// driver is "sqlite" or "mysql".
func Open(driver, dsn string) (*GormArchive, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s archive: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormArchive(db)
}

// NewGormArchive wraps an open gorm handle and migrates the schema
func NewGormArchive(db *gorm.DB) (*GormArchive, error) {
	if err := db.AutoMigrate(&NotificationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &GormArchive{db: db}, nil
}

// Record inserts a newly fired notification as active
func (a *GormArchive) Record(ctx context.Context, n *models.Notification) error {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	rec := NotificationRecord{
		ID:         n.ID,
		RuleID:     n.RuleID,
		RuleNameEN: n.RuleName.EN,
		RuleNameAR: n.RuleName.AR,
		TargetID:   n.TargetID,
		Severity:   n.Severity,
		Message:    n.Message,
		MessageAR:  n.MessageAR,
		FiredAt:    n.FiredAt,
		Status:     models.StatusActive,
		Metadata:   string(meta),
	}
	return a.db.WithContext(ctx).Create(&rec).Error
}

// UpdateStatus moves a record to acknowledged or resolved
func (a *GormArchive) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, actor string, at time.Time) error {
	updates := map[string]any{"status": status}
	switch status {
	case models.StatusAcknowledged:
		updates["acknowledged_by"] = actor
		updates["acknowledged_at"] = at
	case models.StatusResolved:
		updates["resolved_by"] = actor
		updates["resolved_at"] = at
	}

	res := a.db.WithContext(ctx).
		Model(&NotificationRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// History returns archived notifications, newest first
func (a *GormArchive) History(ctx context.Context, q HistoryQuery) ([]NotificationRecord, error) {
	tx := a.db.WithContext(ctx).Model(&NotificationRecord{})
	if q.TargetID != "" {
		tx = tx.Where("target_id = ?", q.TargetID)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("fired_at >= ?", q.Since)
	}

	records := make([]NotificationRecord, 0)
	err := tx.Order("fired_at DESC").Limit(q.limit()).Find(&records).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return records, nil
}

func (a *GormArchive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the archive database
func (a *GormArchive) HealthCheck(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
