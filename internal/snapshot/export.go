package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// Capture collects the goals and memory events of a session from the store.
func Capture(ctx context.Context, store core.GoalStore, sessionID uuid.UUID, opts ExportOptions) (*Snapshot, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("session ID is required")
	}

	goals, err := store.GetActiveGoals(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("collect goals: %w", err)
	}
	events, err := store.QueryEvents(ctx, core.EventQuery{
		SessionID: sessionID,
		Limit:     opts.EventLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("collect events: %w", err)
	}

	snap := &Snapshot{
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			SessionID: sessionID,
			Version:   FormatVersion,
		},
		Goals:  goals,
		Events: events,
	}
	snap.Meta.Checksum = checksum(snap)
	return snap, nil
}

// Write serializes the snapshot and writes it atomically to path.
func Write(snap *Snapshot, path string, compress bool) error {
	if snap == nil {
		return fmt.Errorf("snapshot is required")
	}
	if path == "" {
		return fmt.Errorf("output path is required")
	}

	goals, err := newSection(snap.Goals, compress)
	if err != nil {
		return err
	}
	events, err := newSection(snap.Events, compress)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(envelope{
		Meta:   snap.Meta,
		Goals:  goals,
		Events: events,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Filename builds the default snapshot file name for a session.
func Filename(sessionID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("memory_snapshot_%s_%s.json", sessionID, at.UTC().Format("20060102T150405Z"))
}

// checksum hashes the goals and events payloads so imports can detect
// snapshots edited after export.
func checksum(snap *Snapshot) string {
	h := sha256.New()
	if raw, err := json.Marshal(snap.Goals); err == nil {
		h.Write(raw)
	}
	if raw, err := json.Marshal(snap.Events); err == nil {
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}
