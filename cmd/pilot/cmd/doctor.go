package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/pilot/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/pilot/internal/config"
	"github.com/hugo-lorenzo-mato/pilot/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and host readiness",
	Long:  "Verify the configuration, the goal store, and host resources.",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	ok := true

	fmt.Println("Checking configuration...")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  ✗ config: %v\n", err)
		fmt.Println()
		fmt.Println("Fix the configuration before running the agent.")
		return fmt.Errorf("configuration invalid")
	}
	fmt.Println("  ✓ configuration valid")

	if cfg.Safety.PatternsFile != "" {
		if _, err := config.LoadSafetyPatterns(cfg.Safety.PatternsFile); err != nil {
			fmt.Printf("  ✗ safety patterns: %v\n", err)
			ok = false
		} else {
			fmt.Println("  ✓ safety patterns file valid")
		}
	}

	fmt.Println()
	fmt.Println("Checking dependencies...")
	fmt.Println()

	if _, err := exec.LookPath(cfg.Agent.Shell); err != nil {
		fmt.Printf("  ✗ shell %s not found\n", cfg.Agent.Shell)
		ok = false
	} else {
		fmt.Printf("  ✓ shell (%s)\n", cfg.Agent.Shell)
	}

	if cfg.LLM.APIKey == "" {
		fmt.Printf("  ○ llm api key not configured (provider %s will use its environment variable)\n", cfg.LLM.Provider)
	} else {
		fmt.Printf("  ✓ llm credentials (%s/%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	}

	fmt.Println()
	fmt.Println("Checking goal store...")
	fmt.Println()

	goalStore, err := store.NewSQLiteGoalStore(cfg.Store.Path)
	if err != nil {
		fmt.Printf("  ✗ store: %v\n", err)
		ok = false
	} else {
		fmt.Printf("  ✓ store (%s)\n", cfg.Store.Path)
		_ = goalStore.Close()
	}

	fmt.Println()
	fmt.Println("Host resources:")
	fmt.Println()

	metrics := diagnostics.NewSystemMetricsCollector().Collect()
	fmt.Printf("  cpu:    %d cores / %d threads\n", metrics.CPUCores, metrics.CPUThreads)
	fmt.Printf("  memory: %.0f MB used of %.0f MB (%.0f%%)\n",
		metrics.MemUsedMB, metrics.MemTotalMB, metrics.MemPercent)
	fmt.Printf("  disk:   %.1f GB used of %.1f GB (%.0f%%)\n",
		metrics.DiskUsedGB, metrics.DiskTotalGB, metrics.DiskPercent)

	fmt.Println()
	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("All checks passed.")
	return nil
}
