package providers

import (
	"context"

	"github.com/ternarybob/arbor"

	"equityintel/internal/interfaces"
	"equityintel/internal/models"
)

// StorageFundStateProvider reads the fundamental classification from
// the security aggregate store. The external fundamental-scoring model
// writes IN/WATCH/OUT states and scores there out of band; this
// pipeline only ever reads them.
type StorageFundStateProvider struct {
	storage interfaces.SecurityStorage
	logger  arbor.ILogger
}

// NewStorageFundStateProvider creates a fund-state provider backed by
// the security store.
func NewStorageFundStateProvider(storage interfaces.SecurityStorage, logger arbor.ILogger) *StorageFundStateProvider {
	return &StorageFundStateProvider{
		storage: storage,
		logger:  logger,
	}
}

// States returns the current classification for every known code.
// Codes with no recorded state are simply absent; the caller treats
// them as OUT.
func (p *StorageFundStateProvider) States(ctx context.Context) (map[string]models.SecurityState, error) {
	all, err := p.storage.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.SecurityState, len(all))
	for _, state := range all {
		if state.State == "" {
			continue
		}
		out[state.Code] = state
	}
	p.logger.Debug().Int("codes", len(out)).Msg("Fund states loaded")
	return out, nil
}
