package cmd

import (
	"fmt"
	"time"

	llmadapter "github.com/hugo-lorenzo-mato/pilot/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/pilot/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/pilot/internal/adapters/terminal"
	"github.com/hugo-lorenzo-mato/pilot/internal/adapters/vision"
	"github.com/hugo-lorenzo-mato/pilot/internal/config"
	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
	"github.com/hugo-lorenzo-mato/pilot/internal/service"
	"github.com/hugo-lorenzo-mato/pilot/internal/snapshot"
)

// agentComponents bundles the wired collaborators behind one run or serve
// invocation.
type agentComponents struct {
	store        *store.SQLiteGoalStore
	gate         *service.SafetyGate
	overrides    *service.OverrideRegistry
	snapshots    *snapshot.Manager
	orchestrator *service.Orchestrator
}

// Close releases held resources.
func (c *agentComponents) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// buildAgent wires the control loop from the loaded configuration. A
// missing LLM credential degrades to the planner's deterministic
// fallbacks rather than failing startup.
func buildAgent(cfg *config.Config, logger *logging.Logger) (*agentComponents, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	goalStore, err := store.NewSQLiteGoalStore(cfg.Store.Path, store.WithBackupPath(cfg.Store.BackupPath))
	if err != nil {
		return nil, fmt.Errorf("opening goal store: %w", err)
	}

	gate := service.NewSafetyGate(
		service.WithSafetyLevel(safetyLevelFromName(cfg.Safety.Level)),
		service.WithSafetyLogger(logger),
	)
	if cfg.Safety.PatternsFile != "" {
		patterns, err := config.LoadSafetyPatterns(cfg.Safety.PatternsFile)
		if err != nil {
			_ = goalStore.Close()
			return nil, fmt.Errorf("loading safety patterns: %w", err)
		}
		if err := gate.SetCustomPatterns(toCustomPatterns(patterns)); err != nil {
			_ = goalStore.Close()
			return nil, err
		}
		logger.Info("loaded custom safety patterns",
			"file", cfg.Safety.PatternsFile, "count", len(patterns))
	}

	overrides := service.NewOverrideRegistry(gate, logger)

	snapshots := snapshot.NewManager(goalStore,
		snapshot.WithManagerLogger(logger),
		snapshot.WithExportOptions(snapshot.ExportOptions{
			Dir:        cfg.Snapshots.Dir,
			Compress:   cfg.Snapshots.Compress,
			EventLimit: cfg.Snapshots.EventLimit,
		}),
	)

	var llmClient core.LLMClient
	client, err := llmadapter.NewGollmClient(llmadapter.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		logger.Warn("LLM client unavailable, using deterministic fallbacks", "error", err)
	} else {
		llmClient = client
	}

	planner := service.NewPlanner(
		service.WithPlannerLLM(llmClient),
		service.WithPlannerStore(goalStore),
		service.WithPlannerLogger(logger),
	)

	executor := terminal.NewExecutor(
		terminal.WithShell(cfg.Agent.Shell),
		terminal.WithExecutorLogger(logger),
	)

	actionTimeout, err := time.ParseDuration(cfg.Agent.ActionTimeout)
	if err != nil {
		actionTimeout = 30 * time.Second
	}

	orchestrator := service.NewOrchestrator(
		service.WithPlanner(planner),
		service.WithVision(vision.NewNoop()),
		service.WithDesktopExecutor(executor),
		service.WithGoalStore(goalStore),
		service.WithSafetyGate(gate),
		service.WithOverrideRegistry(overrides),
		service.WithRetryCoordinator(service.NewRetryCoordinator(
			service.WithRetryLimit(cfg.Agent.MaxRetries),
		)),
		service.WithPriorityScorer(service.NewPriorityScorer(
			service.WithPriorityStore(goalStore),
			service.WithPriorityLogger(logger),
		)),
		service.WithCompletionVoter(service.NewCompletionVoter(
			service.WithVoterLLM(llmClient),
			service.WithVoterStore(goalStore),
			service.WithVoterLogger(logger),
		)),
		service.WithMemorySnapshotter(snapshots),
		service.WithActionTimeout(actionTimeout),
		service.WithOrchestratorLogger(logger),
	)

	return &agentComponents{
		store:        goalStore,
		gate:         gate,
		overrides:    overrides,
		snapshots:    snapshots,
		orchestrator: orchestrator,
	}, nil
}

func safetyLevelFromName(name string) int {
	switch name {
	case "off":
		return service.SafetyLevelOff
	case "warn":
		return service.SafetyLevelWarn
	default:
		return service.SafetyLevelBlock
	}
}

func toCustomPatterns(patterns []config.SafetyPattern) []service.CustomPattern {
	out := make([]service.CustomPattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, service.CustomPattern{
			Pattern:     p.Pattern,
			Description: p.Description,
			AddedAt:     time.Now().UTC(),
		})
	}
	return out
}
