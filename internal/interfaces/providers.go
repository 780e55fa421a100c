package interfaces

import (
	"context"

	"equityintel/internal/models"
)

// FundStateProvider exposes the external fundamental classification of
// the universe. Read-only from the pipeline's point of view.
type FundStateProvider interface {
	// States returns the current classification for every known code.
	States(ctx context.Context) (map[string]models.SecurityState, error)
}

// ThemeProvider exposes the external thematic strength signal.
type ThemeProvider interface {
	// StrengthFor returns the average strength and day-over-day delta of
	// the themes the code belongs to. Zero values for unthemed codes.
	StrengthFor(ctx context.Context, code string, businessDate string) (strength float64, delta float64, err error)

	// HighOrRisingCodes returns codes whose theme strength is high or
	// rising on the given date.
	HighOrRisingCodes(ctx context.Context, businessDate string) ([]string, error)
}

// FilingLister exposes the regulatory disclosure list for a date.
type FilingLister interface {
	List(ctx context.Context, businessDate string) ([]models.FilingRef, error)
}

// FilingDownloader retrieves filing payloads by id and file-type
// variant, and resolves the canonical URL for a variant.
type FilingDownloader interface {
	Download(ctx context.Context, filingID string, fileType int) ([]byte, error)
	DocumentURL(filingID string, fileType int) string
}

// EvidenceFetcher gathers evidence sources for one candidate. A nil or
// empty result means the candidate has nothing worth summarizing.
type EvidenceFetcher interface {
	Fetch(ctx context.Context, code string, businessDate string, seed models.SourcesSeed) []models.EvidenceSource
}

// Notifier is the fire-and-forget notification sink. The pipeline logs
// and records the outcome but never retries delivery.
type Notifier interface {
	Send(ctx context.Context, content string) error
}

// PauseChecker reports whether a higher-priority scheduled job is
// imminent. Consulted between candidates only, never mid-candidate.
type PauseChecker interface {
	ShouldPause() bool
}
