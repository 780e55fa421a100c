package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"equityintel/internal/interfaces"
)

// leaseRecord is a TTL-scoped mutual exclusion row. A held lease whose
// TTL has lapsed is treated as free, so a crashed holder cannot wedge
// future runs.
type leaseRecord struct {
	Key        string `badgerhold:"key"`
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// LeaseStorage implements non-blocking leases on top of Badger. The
// process runs single-instance against its database directory (Badger
// itself enforces that), so check-then-set here does not race across
// processes. Within the process all lease calls go through the
// scheduler's run mutex.
type LeaseStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLeaseStorage creates a new LeaseStorage instance
func NewLeaseStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LeaseStorage {
	return &LeaseStorage{
		db:     db,
		logger: logger,
	}
}

// Acquire returns true when the caller now holds the lease. A held,
// unexpired lease makes the call return false immediately.
func (s *LeaseStorage) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()

	var existing leaseRecord
	err := s.db.Store().Get(key, &existing)
	if err == nil && existing.ExpiresAt.After(now) {
		s.logger.Debug().
			Str("key", key).
			Str("expires_at", existing.ExpiresAt.Format(time.RFC3339)).
			Msg("Lease already held")
		return false, nil
	}
	if err != nil && err != badgerhold.ErrNotFound {
		return false, fmt.Errorf("failed to read lease %s: %w", key, err)
	}

	record := leaseRecord{
		Key:        key,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.db.Store().Upsert(key, record); err != nil {
		return false, fmt.Errorf("failed to write lease %s: %w", key, err)
	}
	return true, nil
}

func (s *LeaseStorage) Release(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, leaseRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}
