package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Budget      BudgetConfig    `toml:"budget"`
	Filings     FilingsConfig   `toml:"filings"`
	Evidence    EvidenceConfig  `toml:"evidence"`
	Claude      ClaudeConfig    `toml:"claude"`
	Intel       IntelConfig     `toml:"intel"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Recovery    RecoveryConfig  `toml:"recovery"`
	Notify      NotifyConfig    `toml:"notify"`
	Themes      ThemesConfig    `toml:"themes"`
	Calendar    CalendarConfig  `toml:"calendar"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// BudgetConfig caps how many deep dives run per day and per session.
type BudgetConfig struct {
	DailyBudget int `toml:"daily_budget"` // Max deep dives per business day
	MorningCap  int `toml:"morning_cap"`  // Max deep dives in the morning session
	CloseCap    int `toml:"close_cap"`    // Max deep dives in the close session
}

// FilingsConfig configures the regulatory disclosure API client.
type FilingsConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Timeout    string `toml:"timeout"`     // e.g. "20s"
	RateLimit  string `toml:"rate_limit"`  // Minimum time between API requests, e.g. "500ms"
	Retries    int    `toml:"retries"`     // Retry attempts for transient download errors
	Backoff    string `toml:"backoff"`     // Initial retry backoff, e.g. "1s"
	BackoffMax string `toml:"backoff_max"` // Retry backoff cap, e.g. "30s"
}

// EvidenceConfig tunes filing/web extraction behavior.
type EvidenceConfig struct {
	FileTypes         []int               `toml:"file_types"`           // Filing file-type variants in preference order
	FullTextLimit     int                 `toml:"full_text_limit"`      // Max chars of filing full text kept per source
	IRFullTextLimit   int                 `toml:"ir_full_text_limit"`   // Max chars of IR page text kept per source
	MaxItemsPerSymbol int                 `toml:"max_items_per_symbol"` // Max evidence sources per candidate
	RequestTimeout    string              `toml:"request_timeout"`      // Web fetch timeout, e.g. "20s"
	WhitelistDomains  []string            `toml:"whitelist_domains"`    // Allowed evidence domains; empty = allow all
	CompanyIRPages    map[string][]string `toml:"company_ir_pages"`     // code -> IR page URLs
	MaxXBRLFacts      int                 `toml:"max_xbrl_facts"`       // Max structured facts per filing
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "90s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.0)
	MaxTokens   int     `toml:"max_tokens"`
	Retries     int     `toml:"retries"` // Retries on 429/5xx/timeout
}

// IntelConfig tunes the summarize chain and signal gating.
type IntelConfig struct {
	HighSignalTags []string `toml:"high_signal_tags"` // Tags that make a processed candidate notify-worthy
	RiskHardKeys   []string `toml:"risk_hard_keys"`   // Risk flags treated as hard risks in notifications
}

// SchedulerConfig drives the cron-triggered session runs.
type SchedulerConfig struct {
	Enabled          bool     `toml:"enabled"`
	MorningSchedule  string   `toml:"morning_schedule"`  // Cron expression for the morning session
	CloseSchedule    string   `toml:"close_schedule"`    // Cron expression for the close session
	RecoverySchedule string   `toml:"recovery_schedule"` // Cron expression for the recovery sweep
	PauseSchedules   []string `toml:"pause_schedules"`   // Schedules whose imminent fire pauses a running batch
	PauseMargin      string   `toml:"pause_margin"`      // How close an imminent fire must be, e.g. "2m"
	LeaseTTL         string   `toml:"lease_ttl"`         // Per-(date,session) lease TTL, e.g. "30m"
}

// RecoveryConfig drives the incomplete-day sweep.
type RecoveryConfig struct {
	Enabled              bool `toml:"enabled"`
	LookbackBusinessDays int  `toml:"lookback_business_days"`
	MaxDaysPerRun        int  `toml:"max_days_per_run"` // 0 = unlimited
}

// NotifyConfig configures the webhook notification sink.
type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url"`
	Timeout    string `toml:"timeout"`
}

// ThemesConfig points at the theme snapshot drop directory. The theme
// engine is an external collaborator; it writes one TOML snapshot per
// business date that this pipeline reads.
type ThemesConfig struct {
	SnapshotDir   string  `toml:"snapshot_dir"`
	HighThreshold float64 `toml:"high_threshold"` // Strength at or above which a theme is "high"
	RiseThreshold float64 `toml:"rise_threshold"` // Delta at or above which a theme is "rising"
}

// CalendarConfig lists market holidays beyond weekends.
type CalendarConfig struct {
	Holidays []string `toml:"holidays"` // ISO dates
}

// NewDefaultConfig returns a Config populated with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/equityintel"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Budget: BudgetConfig{
			DailyBudget: 10,
			MorningCap:  4,
			CloseCap:    6,
		},
		Filings: FilingsConfig{
			BaseURL:    "https://api.edinet-fsa.go.jp",
			Timeout:    "20s",
			RateLimit:  "500ms",
			Retries:    3,
			Backoff:    "1s",
			BackoffMax: "30s",
		},
		Evidence: EvidenceConfig{
			FileTypes:         []int{5, 1, 2},
			FullTextLimit:     30000,
			IRFullTextLimit:   12000,
			MaxItemsPerSymbol: 5,
			RequestTimeout:    "20s",
			MaxXBRLFacts:      6,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			Timeout:     "90s",
			Temperature: 0.0,
			MaxTokens:   4096,
			Retries:     2,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			MorningSchedule:  "30 8 * * 1-5",
			CloseSchedule:    "30 15 * * 1-5",
			RecoverySchedule: "15 * * * *",
			PauseMargin:      "2m",
			LeaseTTL:         "30m",
		},
		Recovery: RecoveryConfig{
			Enabled:              true,
			LookbackBusinessDays: 40,
			MaxDaysPerRun:        3,
		},
		Notify: NotifyConfig{
			Timeout: "10s",
		},
		Themes: ThemesConfig{
			SnapshotDir:   "./data/themes",
			HighThreshold: 0.7,
			RiseThreshold: 0.15,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> environment variables. Later files override earlier
// files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EQUITYINTEL_ENV"); env != "" {
		config.Environment = env
	}
	if level := os.Getenv("EQUITYINTEL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("EQUITYINTEL_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if key := os.Getenv("EQUITYINTEL_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("EQUITYINTEL_FILINGS_API_KEY"); key != "" {
		config.Filings.APIKey = key
	}
	if url := os.Getenv("EQUITYINTEL_WEBHOOK_URL"); url != "" {
		config.Notify.WebhookURL = url
	}
	if budget := os.Getenv("EQUITYINTEL_DAILY_BUDGET"); budget != "" {
		if n, err := strconv.Atoi(budget); err == nil && n >= 0 {
			config.Budget.DailyBudget = n
		}
	}
}

func (c *Config) validate() error {
	for _, expr := range c.allSchedules() {
		if expr == "" {
			continue
		}
		if err := ValidateJobSchedule(expr); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", expr, err)
		}
	}
	if c.Budget.DailyBudget < 0 || c.Budget.MorningCap < 0 || c.Budget.CloseCap < 0 {
		return fmt.Errorf("budget caps must not be negative")
	}
	return nil
}

func (c *Config) allSchedules() []string {
	out := []string{
		c.Scheduler.MorningSchedule,
		c.Scheduler.CloseSchedule,
		c.Scheduler.RecoverySchedule,
	}
	out = append(out, c.Scheduler.PauseSchedules...)
	return out
}

// PauseScheduleList returns the explicit list of schedules the pause
// check evaluates. When none are configured it defaults to the two
// session schedules.
func (c *Config) PauseScheduleList() []string {
	if len(c.Scheduler.PauseSchedules) > 0 {
		return c.Scheduler.PauseSchedules
	}
	return []string{c.Scheduler.MorningSchedule, c.Scheduler.CloseSchedule}
}

// ValidateJobSchedule checks a standard 5-field cron expression.
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if len(strings.Fields(schedule)) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
