package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// QueueStorage implements the QueueStorage interface for Badger.
// Entries are keyed by idempotency key and never deleted; they form the
// audit trail the recovery sweep inspects.
type QueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a pending entry or refreshes an existing one in place.
// An existing entry keeps its status unless the seed's filing-id set
// changed, in which case done and failed entries are reset to pending so
// the new evidence gets processed. Skipped entries stay skipped.
func (s *QueueStorage) Upsert(ctx context.Context, entry *models.QueueEntry) (bool, error) {
	if entry.IdempotencyKey == "" {
		return false, fmt.Errorf("idempotency key is required")
	}

	now := time.Now().UTC()

	var existing models.QueueEntry
	err := s.db.Store().Get(entry.IdempotencyKey, &existing)
	if err == badgerhold.ErrNotFound {
		entry.Status = models.StatusPending
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if err := s.db.Store().Upsert(entry.IdempotencyKey, *entry); err != nil {
			return false, fmt.Errorf("failed to insert queue entry: %w", err)
		}
		s.logger.Trace().
			Str("key", entry.IdempotencyKey).
			Float64("priority", entry.Priority).
			Msg("Queue entry created")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load queue entry: %w", err)
	}

	seedChanged := !equalStringSlices(existing.SourcesSeed.FilingIDSet(), entry.SourcesSeed.FilingIDSet())

	existing.Priority = entry.Priority
	existing.SourcesSeed = entry.SourcesSeed
	existing.UpdatedAt = now
	if seedChanged && existing.Status != models.StatusPending && existing.Status != models.StatusSkipped {
		s.logger.Debug().
			Str("key", existing.IdempotencyKey).
			Str("prev_status", string(existing.Status)).
			Msg("Filing set changed, resetting queue entry to pending")
		existing.Status = models.StatusPending
	}

	if err := s.db.Store().Upsert(existing.IdempotencyKey, existing); err != nil {
		return false, fmt.Errorf("failed to update queue entry: %w", err)
	}
	return false, nil
}

func (s *QueueStorage) Get(ctx context.Context, idempotencyKey string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.db.Store().Get(idempotencyKey, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("queue entry not found: %s", idempotencyKey)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

// Pending returns pending entries for the (date, session) pair ordered
// by priority descending, then code ascending.
func (s *QueueStorage) Pending(ctx context.Context, businessDate string, session models.Session) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	query := badgerhold.Where("BusinessDate").Eq(businessDate).Index("BusinessDate").
		And("Session").Eq(session).
		And("Status").Eq(models.StatusPending)
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Code < entries[j].Code
	})
	return entries, nil
}

// BySession returns all entries for the pair regardless of status.
func (s *QueueStorage) BySession(ctx context.Context, businessDate string, session models.Session) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	query := badgerhold.Where("BusinessDate").Eq(businessDate).Index("BusinessDate").
		And("Session").Eq(session)
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to query session entries: %w", err)
	}
	return entries, nil
}

func (s *QueueStorage) UpdateStatus(ctx context.Context, idempotencyKey string, status models.QueueStatus) error {
	var entry models.QueueEntry
	if err := s.db.Store().Get(idempotencyKey, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("queue entry not found: %s", idempotencyKey)
		}
		return fmt.Errorf("failed to get queue entry: %w", err)
	}

	entry.Status = status
	entry.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(entry.IdempotencyKey, entry); err != nil {
		return fmt.Errorf("failed to update queue entry status: %w", err)
	}

	s.logger.Trace().
		Str("key", idempotencyKey).
		Str("status", string(status)).
		Msg("Queue entry status updated")
	return nil
}

// ResetFailed flips failed entries for the business date back to
// pending. Skipped entries are never touched.
func (s *QueueStorage) ResetFailed(ctx context.Context, businessDate string) (int, error) {
	var entries []models.QueueEntry
	query := badgerhold.Where("BusinessDate").Eq(businessDate).Index("BusinessDate").
		And("Status").Eq(models.StatusFailed)
	if err := s.db.Store().Find(&entries, query); err != nil {
		return 0, fmt.Errorf("failed to query failed entries: %w", err)
	}

	now := time.Now().UTC()
	reset := 0
	for i := range entries {
		entries[i].Status = models.StatusPending
		entries[i].UpdatedAt = now
		if err := s.db.Store().Upsert(entries[i].IdempotencyKey, entries[i]); err != nil {
			return reset, fmt.Errorf("failed to reset entry %s: %w", entries[i].IdempotencyKey, err)
		}
		reset++
	}

	if reset > 0 {
		s.logger.Info().
			Str("business_date", businessDate).
			Int("count", reset).
			Msg("Failed queue entries reset to pending")
	}
	return reset, nil
}

// DoneCodes returns the set of codes already completed for the date.
func (s *QueueStorage) DoneCodes(ctx context.Context, businessDate string) (map[string]bool, error) {
	var entries []models.QueueEntry
	query := badgerhold.Where("BusinessDate").Eq(businessDate).Index("BusinessDate").
		And("Status").Eq(models.StatusDone)
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to query done entries: %w", err)
	}

	codes := make(map[string]bool, len(entries))
	for _, e := range entries {
		codes[e.Code] = true
	}
	return codes, nil
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
