package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
	"equityintel/internal/interfaces"
	"equityintel/internal/services/evidence"
	"equityintel/internal/services/filings"
	"equityintel/internal/services/intel"
	"equityintel/internal/services/llm"
	"equityintel/internal/services/notify"
	"equityintel/internal/services/orchestrator"
	"equityintel/internal/services/providers"
	"equityintel/internal/services/scheduler"
	"equityintel/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	FilingsClient *filings.Client
	Extractor     *evidence.Extractor
	LLMService    interfaces.LLMService
	Chain         *intel.Chain
	Notifier      interfaces.Notifier
	Calendar      *orchestrator.Calendar
	Orchestrator  *orchestrator.Orchestrator
	Scheduler     *scheduler.Service
}

// New wires every service behind the orchestrator and scheduler.
// Construction order matters: storage first, then the external clients,
// then the orchestrator that consumes them.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	filingsClient, err := filings.NewClient(&config.Filings, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize filings client: %w", err)
	}

	extractor, err := evidence.NewExtractor(&config.Evidence, filingsClient, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize evidence extractor: %w", err)
	}

	llmService, err := llm.NewClaudeService(&config.Claude, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	notifier, err := notify.NewWebhookNotifier(&config.Notify, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	var pauseMargin time.Duration
	if config.Scheduler.PauseMargin != "" {
		pauseMargin, err = time.ParseDuration(config.Scheduler.PauseMargin)
		if err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("invalid pause margin %q: %w", config.Scheduler.PauseMargin, err)
		}
	}
	pauseChecker, err := scheduler.NewPauseChecker(config.PauseScheduleList(), pauseMargin, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize pause checker: %w", err)
	}

	calendar := orchestrator.NewCalendar(config.Calendar.Holidays)
	chain := intel.NewChain(llmService, logger)

	orch, err := orchestrator.New(config, orchestrator.Deps{
		Storage:    storageManager,
		Filings:    filingsClient,
		Extractor:  extractor,
		Chain:      chain,
		FundStates: providers.NewStorageFundStateProvider(storageManager.SecurityStorage(), logger),
		Themes:     providers.NewSnapshotThemeProvider(&config.Themes, logger),
		Notifier:   notifier,
		Pause:      pauseChecker,
		Calendar:   calendar,
	}, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		FilingsClient:  filingsClient,
		Extractor:      extractor,
		LLMService:     llmService,
		Chain:          chain,
		Notifier:       notifier,
		Calendar:       calendar,
		Orchestrator:   orch,
		Scheduler:      scheduler.NewService(config, orch, calendar, logger),
	}, nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
