package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	queue        interfaces.QueueStorage
	record       interfaces.RecordStorage
	budget       interfaces.BudgetStorage
	security     interfaces.SecurityStorage
	notification interfaces.NotificationStorage
	lease        interfaces.LeaseStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		queue:        NewQueueStorage(db, logger),
		record:       NewRecordStorage(db, logger),
		budget:       NewBudgetStorage(db, logger),
		security:     NewSecurityStorage(db, logger),
		notification: NewNotificationStorage(db, logger),
		lease:        NewLeaseStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

func (m *Manager) QueueStorage() interfaces.QueueStorage {
	return m.queue
}

func (m *Manager) RecordStorage() interfaces.RecordStorage {
	return m.record
}

func (m *Manager) BudgetStorage() interfaces.BudgetStorage {
	return m.budget
}

func (m *Manager) SecurityStorage() interfaces.SecurityStorage {
	return m.security
}

func (m *Manager) NotificationStorage() interfaces.NotificationStorage {
	return m.notification
}

func (m *Manager) LeaseStorage() interfaces.LeaseStorage {
	return m.lease
}

// CommitCompletion inserts the record and flips the queue entry to done
// inside a single badger transaction. The budget counter is not part of
// the unit of work; callers increment it only after this commit returns.
func (m *Manager) CommitCompletion(ctx context.Context, record *models.IntelligenceRecord, idempotencyKey string) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	store := m.db.Store()
	err := store.Badger().Update(func(txn *badger.Txn) error {
		var entry models.QueueEntry
		if err := store.TxGet(txn, idempotencyKey, &entry); err != nil {
			return fmt.Errorf("failed to load queue entry %s: %w", idempotencyKey, err)
		}
		if err := store.TxInsert(txn, record.ID, *record); err != nil {
			return fmt.Errorf("failed to store intelligence record: %w", err)
		}
		entry.Status = models.StatusDone
		entry.UpdatedAt = time.Now().UTC()
		if err := store.TxUpdate(txn, idempotencyKey, entry); err != nil {
			return fmt.Errorf("failed to mark queue entry done: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Trace().
		Str("key", idempotencyKey).
		Str("record_id", record.ID).
		Msg("Completion committed")
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
