package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityintel/internal/common"
	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: t.TempDir() + "/badger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func testEntry(code string, filingIDs ...string) *models.QueueEntry {
	seed := models.SourcesSeed{}
	for _, id := range filingIDs {
		seed.Filings = append(seed.Filings, models.FilingRef{FilingID: id, SecurityCode: code})
	}
	return &models.QueueEntry{
		IdempotencyKey: models.IdempotencyKey("2026-02-13", models.SessionClose, code),
		BusinessDate:   "2026-02-13",
		Session:        models.SessionClose,
		Code:           code,
		Priority:       0.5,
		SourcesSeed:    seed,
	}
}

func TestQueueUpsertCreatesPendingEntry(t *testing.T) {
	storage := newTestManager(t).QueueStorage()
	ctx := context.Background()

	created, err := storage.Upsert(ctx, testEntry("7203", "F100A"))
	require.NoError(t, err)
	assert.True(t, created)

	entry, err := storage.Get(ctx, models.IdempotencyKey("2026-02-13", models.SessionClose, "7203"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.StatusPending, entry.Status)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestQueueUpsertRefreshesPriorityInPlace(t *testing.T) {
	storage := newTestManager(t).QueueStorage()
	ctx := context.Background()

	_, err := storage.Upsert(ctx, testEntry("7203", "F100A"))
	require.NoError(t, err)

	update := testEntry("7203", "F100A")
	update.Priority = 0.9
	created, err := storage.Upsert(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)

	entry, err := storage.Get(ctx, update.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, 0.9, entry.Priority)
	assert.Equal(t, models.StatusPending, entry.Status)
}

func TestQueueUpsertSeedChangeResetsDoneEntry(t *testing.T) {
	storage := newTestManager(t).QueueStorage()
	ctx := context.Background()

	first := testEntry("7203", "F100A")
	_, err := storage.Upsert(ctx, first)
	require.NoError(t, err)
	require.NoError(t, storage.UpdateStatus(ctx, first.IdempotencyKey, models.StatusDone))

	// Same seed: done stays done.
	_, err = storage.Upsert(ctx, testEntry("7203", "F100A"))
	require.NoError(t, err)
	entry, err := storage.Get(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, entry.Status)

	// New filing id: done resets to pending.
	_, err = storage.Upsert(ctx, testEntry("7203", "F100A", "F100B"))
	require.NoError(t, err)
	entry, err = storage.Get(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, entry.Status)
}

func TestQueueUpsertSeedChangeNeverRevivesSkipped(t *testing.T) {
	storage := newTestManager(t).QueueStorage()
	ctx := context.Background()

	first := testEntry("7203", "F100A")
	_, err := storage.Upsert(ctx, first)
	require.NoError(t, err)
	require.NoError(t, storage.UpdateStatus(ctx, first.IdempotencyKey, models.StatusSkipped))

	_, err = storage.Upsert(ctx, testEntry("7203", "F100A", "F100B"))
	require.NoError(t, err)

	entry, err := storage.Get(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, entry.Status)
}

func TestQueuePendingOrder(t *testing.T) {
	storage := newTestManager(t).QueueStorage()
	ctx := context.Background()

	for code, priority := range map[string]float64{
		"6758": 0.7,
		"9984": 0.7,
		"7203": 0.9,
	} {
		entry := testEntry(code)
		entry.Priority = priority
		_, err := storage.Upsert(ctx, entry)
		require.NoError(t, err)
	}

	pending, err := storage.Pending(ctx, "2026-02-13", models.SessionClose)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "7203", pending[0].Code)
	// Equal priorities break ties by code ascending.
	assert.Equal(t, "6758", pending[1].Code)
	assert.Equal(t, "9984", pending[2].Code)
}

func TestQueueResetFailed(t *testing.T) {
	storage := newTestManager(t).QueueStorage()
	ctx := context.Background()

	failed := testEntry("7203")
	skipped := testEntry("6758")
	_, err := storage.Upsert(ctx, failed)
	require.NoError(t, err)
	_, err = storage.Upsert(ctx, skipped)
	require.NoError(t, err)
	require.NoError(t, storage.UpdateStatus(ctx, failed.IdempotencyKey, models.StatusFailed))
	require.NoError(t, storage.UpdateStatus(ctx, skipped.IdempotencyKey, models.StatusSkipped))

	count, err := storage.ResetFailed(ctx, "2026-02-13")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entry, err := storage.Get(ctx, failed.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, entry.Status)

	entry, err = storage.Get(ctx, skipped.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, entry.Status)
}

func TestCommitCompletionPersistsRecordAndStatusTogether(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.QueueStorage().Upsert(ctx, testEntry("7203", "F100A"))
	require.NoError(t, err)

	key := models.IdempotencyKey("2026-02-13", models.SessionClose, "7203")
	record := &models.IntelligenceRecord{
		Code:         "7203",
		BusinessDate: "2026-02-13",
		Session:      models.SessionClose,
		Headline:     "Earnings revision announced",
	}
	require.NoError(t, manager.CommitCompletion(ctx, record, key))
	assert.NotEmpty(t, record.ID)

	entry, err := manager.QueueStorage().Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.StatusDone, entry.Status)

	records, err := manager.RecordStorage().ByCode(ctx, "7203", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Earnings revision announced", records[0].Headline)
}

func TestCommitCompletionUnknownEntryLeavesNoRecord(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	record := &models.IntelligenceRecord{
		Code:         "7203",
		BusinessDate: "2026-02-13",
		Session:      models.SessionClose,
	}
	err := manager.CommitCompletion(ctx, record, "2026-02-13:close:7203")
	require.Error(t, err)

	records, err := manager.RecordStorage().ByCode(ctx, "7203", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLeaseAcquireAndExpiry(t *testing.T) {
	storage := newTestManager(t).LeaseStorage()
	ctx := context.Background()

	acquired, err := storage.Acquire(ctx, "intel:2026-02-13:close", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Held and unexpired: second caller loses.
	acquired, err = storage.Acquire(ctx, "intel:2026-02-13:close", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)

	// Released: available again.
	require.NoError(t, storage.Release(ctx, "intel:2026-02-13:close"))
	acquired, err = storage.Acquire(ctx, "intel:2026-02-13:close", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)

	// An expired lease from a crashed holder is reclaimable.
	acquired, err = storage.Acquire(ctx, "intel:2026-02-13:morning", -time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)
	acquired, err = storage.Acquire(ctx, "intel:2026-02-13:morning", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestBudgetAddDoneAccumulates(t *testing.T) {
	storage := newTestManager(t).BudgetStorage()
	ctx := context.Background()

	row, err := storage.GetOrCreate(ctx, "2026-02-13")
	require.NoError(t, err)
	assert.Equal(t, 0, row.DoneCount)

	require.NoError(t, storage.AddDone(ctx, "2026-02-13", models.SessionMorning, 2))
	require.NoError(t, storage.AddDone(ctx, "2026-02-13", models.SessionClose, 3))

	row, err = storage.Get(ctx, "2026-02-13")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 5, row.DoneCount)
	assert.Equal(t, 2, row.MorningDone)
	assert.Equal(t, 3, row.CloseDone)

	// Unknown dates are a nil row, not an error.
	row, err = storage.Get(ctx, "2026-02-16")
	require.NoError(t, err)
	assert.Nil(t, row)
}
