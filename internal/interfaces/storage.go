package interfaces

import (
	"context"
	"time"

	"equityintel/internal/models"
)

// QueueStorage persists deep-dive candidates keyed by idempotency key.
type QueueStorage interface {
	// Upsert inserts a new pending entry, or refreshes the priority of
	// an existing one in place. When the seed's filing-id set changed
	// since the last enqueue, the entry status is force-reset to pending
	// so the new evidence gets reprocessed. Returns true when a row was
	// created rather than updated.
	Upsert(ctx context.Context, entry *models.QueueEntry) (bool, error)

	Get(ctx context.Context, idempotencyKey string) (*models.QueueEntry, error)

	// Pending returns pending entries for the (date, session) pair
	// ordered by priority descending, code ascending.
	Pending(ctx context.Context, businessDate string, session models.Session) ([]models.QueueEntry, error)

	// BySession returns all entries for the pair regardless of status.
	BySession(ctx context.Context, businessDate string, session models.Session) ([]models.QueueEntry, error)

	UpdateStatus(ctx context.Context, idempotencyKey string, status models.QueueStatus) error

	// ResetFailed flips failed entries for the business date back to
	// pending. Skipped entries are never touched. Returns the number of
	// entries reset.
	ResetFailed(ctx context.Context, businessDate string) (int, error)

	// DoneCodes returns the set of codes already completed for the date.
	DoneCodes(ctx context.Context, businessDate string) (map[string]bool, error)
}

// RecordStorage persists intelligence records (append-only).
type RecordStorage interface {
	Save(ctx context.Context, record *models.IntelligenceRecord) error
	ByCode(ctx context.Context, code string, limit int) ([]models.IntelligenceRecord, error)
	ByBusinessDate(ctx context.Context, businessDate string) ([]models.IntelligenceRecord, error)
}

// BudgetStorage persists daily done counters.
type BudgetStorage interface {
	// GetOrCreate returns the budget row for the date, creating a zeroed
	// row when none exists.
	GetOrCreate(ctx context.Context, businessDate string) (*models.DailyBudget, error)
	// Get returns nil without error when no row exists.
	Get(ctx context.Context, businessDate string) (*models.DailyBudget, error)
	// AddDone increments the daily and per-session done counters.
	AddDone(ctx context.Context, businessDate string, session models.Session, delta int) error
}

// SecurityStorage persists per-code aggregate state.
type SecurityStorage interface {
	// Get returns nil without error when the code is unknown.
	Get(ctx context.Context, code string) (*models.SecurityState, error)
	Upsert(ctx context.Context, state *models.SecurityState) error
	All(ctx context.Context) ([]models.SecurityState, error)
}

// NotificationStorage records outbound notification attempts.
type NotificationStorage interface {
	Save(ctx context.Context, log *models.NotificationLog) error
	ByReportDate(ctx context.Context, reportDate string) ([]models.NotificationLog, error)
}

// LeaseStorage provides non-blocking, key-scoped mutual exclusion with
// a TTL so a crashed holder cannot wedge future runs.
type LeaseStorage interface {
	// Acquire returns true when the caller now holds the lease. A held,
	// unexpired lease makes the call return false immediately.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// StorageManager aggregates the storage interfaces behind one handle.
type StorageManager interface {
	QueueStorage() QueueStorage
	RecordStorage() RecordStorage
	BudgetStorage() BudgetStorage
	SecurityStorage() SecurityStorage
	NotificationStorage() NotificationStorage
	LeaseStorage() LeaseStorage

	// CommitCompletion stores the intelligence record and marks the
	// queue entry done in one transaction. Either both land or neither
	// does, so a crash can never leave a persisted record behind a
	// still-pending entry.
	CommitCompletion(ctx context.Context, record *models.IntelligenceRecord, idempotencyKey string) error

	Close() error
}
