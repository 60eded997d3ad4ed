package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/pilot/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export, import and inspect memory snapshots",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session's goals and events to a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotExport,
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Replay a snapshot file into the goal store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotImport,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot files in the snapshot directory",
	RunE:  runSnapshotList,
}

var snapshotValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a snapshot file without importing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotValidate,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotImportCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotValidateCmd)
}

func withSnapshotManager(fn func(context.Context, *agentComponents) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	agent, err := buildAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = agent.Close() }()

	return fn(context.Background(), agent)
}

func runSnapshotExport(_ *cobra.Command, args []string) error {
	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID: %w", err)
	}

	return withSnapshotManager(func(ctx context.Context, agent *agentComponents) error {
		path, err := agent.snapshots.Export(ctx, sessionID)
		if err != nil {
			return err
		}
		if quiet {
			fmt.Println(path)
			return nil
		}
		fmt.Printf("Snapshot exported to %s\n", path)
		return nil
	})
}

func runSnapshotImport(_ *cobra.Command, args []string) error {
	return withSnapshotManager(func(ctx context.Context, agent *agentComponents) error {
		result, err := agent.snapshots.Import(ctx, args[0])
		if err != nil {
			return err
		}
		if quiet {
			return nil
		}
		fmt.Printf("Snapshot import complete (session %s)\n", result.SessionID)
		fmt.Printf("Goals: %d\n", result.Goals)
		fmt.Printf("Events: %d\n", result.Events)
		return nil
	})
}

func runSnapshotList(_ *cobra.Command, _ []string) error {
	return withSnapshotManager(func(_ context.Context, agent *agentComponents) error {
		paths, err := agent.snapshots.List()
		if err != nil {
			return err
		}
		if len(paths) == 0 && !quiet {
			fmt.Println("No snapshots found.")
			return nil
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	})
}

func runSnapshotValidate(_ *cobra.Command, args []string) error {
	snap, err := snapshot.Load(args[0])
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}
	fmt.Printf("Snapshot valid (session %s)\n", snap.Meta.SessionID)
	fmt.Printf("Goals: %d\n", len(snap.Goals))
	fmt.Printf("Events: %d\n", len(snap.Events))
	return nil
}
