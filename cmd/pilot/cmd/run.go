package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run the agent until the goal completes",
	Long: `Run one agent session in the foreground. The goal can be provided as
an argument or via --file. The run ends when the goal is judged
complete or the iteration budget is exhausted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgent,
}

var (
	runFile          string
	runContext       string
	runMaxIterations int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read the goal from a file")
	runCmd.Flags().StringVar(&runContext, "context", "", "Extra context handed to the planner")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0,
		"Iteration budget (defaults to the configured value)")
}

func runAgent(_ *cobra.Command, args []string) error {
	goal, err := getGoal(args, runFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping...")
		cancel()
	}()

	agent, err := buildAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = agent.Close() }()

	maxIterations := runMaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.Agent.MaxIterations
	}

	sessionID := uuid.New()
	bb := core.NewBlackboard(sessionID, goal, maxIterations)
	if runContext != "" {
		bb.UserContext = runContext
	}

	if !quiet {
		fmt.Printf("Session %s\n", sessionID)
		fmt.Printf("Goal: %s\n\n", goal)
	}

	final, err := agent.orchestrator.Run(ctx, bb)
	if err != nil {
		return fmt.Errorf("agent run: %w", err)
	}

	printRunOutcome(final)
	if final.GoalFailed {
		return fmt.Errorf("goal failed: %s", final.GoalFailedReason)
	}
	return nil
}

// getGoal resolves the goal text from args or a file.
func getGoal(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file) // #nosec G304 -- operator-supplied path
		if err != nil {
			return "", fmt.Errorf("reading goal file: %w", err)
		}
		goal := strings.TrimSpace(string(data))
		if goal == "" {
			return "", fmt.Errorf("goal file is empty")
		}
		return goal, nil
	}

	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("a goal is required (argument or --file)")
	}
	return strings.TrimSpace(args[0]), nil
}

func printRunOutcome(bb *core.Blackboard) {
	if quiet {
		return
	}

	fmt.Println()
	if bb.GoalComplete {
		fmt.Printf("✓ %s\n", bb.StatusMessage)
	} else {
		fmt.Printf("✗ %s\n", bb.StatusMessage)
	}
	fmt.Printf("Iterations: %d/%d\n", bb.LoopCounter, bb.MaxIterations)
	if bb.Action.Result != "" {
		fmt.Printf("Last action: %s\n", bb.Action.Result)
	}
}
