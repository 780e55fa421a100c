package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// RecordStorage persists intelligence records. Records are append-only;
// nothing here mutates or deletes existing rows.
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RecordStorage) Save(ctx context.Context, record *models.IntelligenceRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := s.db.Store().Insert(record.ID, *record); err != nil {
		return fmt.Errorf("failed to save intelligence record: %w", err)
	}

	s.logger.Trace().
		Str("id", record.ID).
		Str("code", record.Code).
		Str("business_date", record.BusinessDate).
		Bool("llm_valid", record.LLMValid).
		Msg("Intelligence record saved")
	return nil
}

// ByCode returns the newest records for a code, most recent first.
// limit <= 0 returns everything.
func (s *RecordStorage) ByCode(ctx context.Context, code string, limit int) ([]models.IntelligenceRecord, error) {
	var records []models.IntelligenceRecord
	query := badgerhold.Where("Code").Eq(code).Index("Code")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query records for code %s: %w", code, err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *RecordStorage) ByBusinessDate(ctx context.Context, businessDate string) ([]models.IntelligenceRecord, error) {
	var records []models.IntelligenceRecord
	query := badgerhold.Where("BusinessDate").Eq(businessDate).Index("BusinessDate")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query records for date %s: %w", businessDate, err)
	}
	return records, nil
}
