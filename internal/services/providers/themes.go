package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
)

// SnapshotThemeProvider reads the daily theme snapshots the external
// theme engine drops as TOML files, one per business date. A missing
// snapshot means no theme signal for that day, not an error.
type SnapshotThemeProvider struct {
	dir           string
	highThreshold float64
	riseThreshold float64
	logger        arbor.ILogger

	mu    sync.Mutex
	cache map[string]*themeSnapshot
}

// themeSnapshot mirrors the snapshot file shape.
type themeSnapshot struct {
	Themes []themeEntry `toml:"themes"`
}

type themeEntry struct {
	Name     string   `toml:"name"`
	Strength float64  `toml:"strength"`
	Delta    float64  `toml:"delta"`
	Codes    []string `toml:"codes"`
}

// NewSnapshotThemeProvider creates a theme provider reading from the
// configured snapshot directory.
func NewSnapshotThemeProvider(config *common.ThemesConfig, logger arbor.ILogger) *SnapshotThemeProvider {
	return &SnapshotThemeProvider{
		dir:           config.SnapshotDir,
		highThreshold: config.HighThreshold,
		riseThreshold: config.RiseThreshold,
		logger:        logger,
		cache:         make(map[string]*themeSnapshot),
	}
}

// StrengthFor returns the average strength and delta of the themes the
// code belongs to on the given date. Zero values for unthemed codes.
func (p *SnapshotThemeProvider) StrengthFor(ctx context.Context, code string, businessDate string) (float64, float64, error) {
	snapshot, err := p.load(businessDate)
	if err != nil {
		return 0, 0, err
	}
	if snapshot == nil {
		return 0, 0, nil
	}

	var strengthSum, deltaSum float64
	matched := 0
	for _, theme := range snapshot.Themes {
		for _, c := range theme.Codes {
			if c == code {
				strengthSum += theme.Strength
				deltaSum += theme.Delta
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return 0, 0, nil
	}
	return strengthSum / float64(matched), deltaSum / float64(matched), nil
}

// HighOrRisingCodes returns codes in a theme whose strength clears the
// high threshold or whose delta clears the rise threshold.
func (p *SnapshotThemeProvider) HighOrRisingCodes(ctx context.Context, businessDate string) ([]string, error) {
	snapshot, err := p.load(businessDate)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, theme := range snapshot.Themes {
		if theme.Strength < p.highThreshold && theme.Delta < p.riseThreshold {
			continue
		}
		for _, code := range theme.Codes {
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out, nil
}

// load reads and caches the snapshot for a date. Returns (nil, nil)
// when no snapshot file exists.
func (p *SnapshotThemeProvider) load(businessDate string) (*themeSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.cache[businessDate]; ok {
		return cached, nil
	}

	path := filepath.Join(p.dir, fmt.Sprintf("themes_%s.toml", businessDate))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		p.logger.Debug().Str("business_date", businessDate).Msg("No theme snapshot for date")
		p.cache[businessDate] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read theme snapshot %s: %w", path, err)
	}

	var snapshot themeSnapshot
	if err := toml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse theme snapshot %s: %w", path, err)
	}
	p.cache[businessDate] = &snapshot
	return &snapshot, nil
}
