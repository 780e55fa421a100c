package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// BudgetStorage persists per-date done counters. Counters only move
// forward; failures and skips never consume budget.
type BudgetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBudgetStorage creates a new BudgetStorage instance
func NewBudgetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BudgetStorage {
	return &BudgetStorage{
		db:     db,
		logger: logger,
	}
}

// GetOrCreate returns the budget row for the date, creating a zeroed
// row when none exists.
func (s *BudgetStorage) GetOrCreate(ctx context.Context, businessDate string) (*models.DailyBudget, error) {
	var budget models.DailyBudget
	err := s.db.Store().Get(businessDate, &budget)
	if err == nil {
		return &budget, nil
	}
	if err != badgerhold.ErrNotFound {
		return nil, fmt.Errorf("failed to get daily budget: %w", err)
	}

	budget = models.DailyBudget{
		BusinessDate: businessDate,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.db.Store().Upsert(businessDate, budget); err != nil {
		return nil, fmt.Errorf("failed to create daily budget: %w", err)
	}
	return &budget, nil
}

// Get returns nil without error when no row exists.
func (s *BudgetStorage) Get(ctx context.Context, businessDate string) (*models.DailyBudget, error) {
	var budget models.DailyBudget
	err := s.db.Store().Get(businessDate, &budget)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily budget: %w", err)
	}
	return &budget, nil
}

// AddDone increments the daily and per-session done counters.
func (s *BudgetStorage) AddDone(ctx context.Context, businessDate string, session models.Session, delta int) error {
	budget, err := s.GetOrCreate(ctx, businessDate)
	if err != nil {
		return err
	}

	budget.DoneCount += delta
	switch session {
	case models.SessionMorning:
		budget.MorningDone += delta
	case models.SessionClose:
		budget.CloseDone += delta
	default:
		return fmt.Errorf("unknown session: %s", session)
	}
	budget.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(businessDate, *budget); err != nil {
		return fmt.Errorf("failed to update daily budget: %w", err)
	}

	s.logger.Trace().
		Str("business_date", businessDate).
		Str("session", string(session)).
		Int("done_count", budget.DoneCount).
		Msg("Daily budget updated")
	return nil
}
