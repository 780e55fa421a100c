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

// SecurityStorage persists the per-code aggregate state.
type SecurityStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSecurityStorage creates a new SecurityStorage instance
func NewSecurityStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SecurityStorage {
	return &SecurityStorage{
		db:     db,
		logger: logger,
	}
}

// Get returns nil without error when the code is unknown.
func (s *SecurityStorage) Get(ctx context.Context, code string) (*models.SecurityState, error) {
	var state models.SecurityState
	err := s.db.Store().Get(code, &state)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security state for %s: %w", code, err)
	}
	return &state, nil
}

func (s *SecurityStorage) Upsert(ctx context.Context, state *models.SecurityState) error {
	if state.Code == "" {
		return fmt.Errorf("security code is required")
	}
	state.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(state.Code, *state); err != nil {
		return fmt.Errorf("failed to upsert security state for %s: %w", state.Code, err)
	}
	return nil
}

func (s *SecurityStorage) All(ctx context.Context) ([]models.SecurityState, error) {
	var states []models.SecurityState
	if err := s.db.Store().Find(&states, nil); err != nil {
		return nil, fmt.Errorf("failed to list security states: %w", err)
	}
	return states, nil
}
