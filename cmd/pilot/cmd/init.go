package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/pilot/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a pilot workspace",
	Long: `Initialize a pilot workspace in the current directory.
Creates the configuration file and data directories.`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

func runInit(_ *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	configPath := filepath.Join(cwd, ".pilot.yaml")

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists, use --force to overwrite")
	}

	if err := config.AtomicWrite(configPath, []byte(config.DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	dirs := []string{
		".pilot",
		".pilot/snapshots",
		".pilot/screenshots",
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(cwd, dir), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	if !quiet {
		fmt.Println("Initialized pilot workspace")
		fmt.Printf("  config: %s\n", configPath)
		fmt.Println("  data:   .pilot/")
	}
	return nil
}
