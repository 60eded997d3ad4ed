package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// Load reads and validates a snapshot file.
func Load(path string) (*Snapshot, error) {
	if path == "" {
		return nil, fmt.Errorf("input path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	snap := &Snapshot{Meta: env.Meta}
	if err := env.Goals.decode(&snap.Goals); err != nil {
		return nil, fmt.Errorf("parse goals section: %w", err)
	}
	if err := env.Events.decode(&snap.Events); err != nil {
		return nil, fmt.Errorf("parse events section: %w", err)
	}
	if err := Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate checks snapshot integrity: format version, session identity
// and, when present, the payload checksum.
func Validate(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is required")
	}
	if snap.Meta.Version != FormatVersion {
		return fmt.Errorf("unsupported snapshot version %q (want %q)", snap.Meta.Version, FormatVersion)
	}
	if snap.Meta.SessionID == uuid.Nil {
		return fmt.Errorf("snapshot session ID is empty")
	}
	if snap.Meta.Checksum != "" {
		if got := checksum(snap); got != snap.Meta.Checksum {
			return fmt.Errorf("snapshot checksum mismatch")
		}
	}
	return nil
}

// Apply replays a snapshot's goals and events into the store.
func Apply(ctx context.Context, store core.GoalStore, snap *Snapshot, opts ImportOptions) (*ImportResult, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := Validate(snap); err != nil {
		return nil, err
	}

	result := &ImportResult{SessionID: snap.Meta.SessionID}
	if opts.Goals {
		for _, goal := range snap.Goals {
			if goal == nil {
				continue
			}
			if err := store.SaveGoal(ctx, goal); err != nil {
				return result, fmt.Errorf("import goal %s: %w", goal.ID, err)
			}
			result.Goals++
		}
	}
	if opts.Events {
		for _, event := range snap.Events {
			if event == nil {
				continue
			}
			if err := store.AppendEvent(ctx, event); err != nil {
				return result, fmt.Errorf("import event %s: %w", event.ID, err)
			}
			result.Events++
		}
	}
	return result, nil
}
