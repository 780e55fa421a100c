package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// NotificationStorage records outbound notification attempts.
type NotificationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNotificationStorage creates a new NotificationStorage instance
func NewNotificationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NotificationStorage {
	return &NotificationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NotificationStorage) Save(ctx context.Context, log *models.NotificationLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Store().Insert(log.ID, *log); err != nil {
		return fmt.Errorf("failed to save notification log: %w", err)
	}
	return nil
}

func (s *NotificationStorage) ByReportDate(ctx context.Context, reportDate string) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	query := badgerhold.Where("ReportDate").Eq(reportDate).Index("ReportDate")
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	return logs, nil
}
