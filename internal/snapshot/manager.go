package snapshot

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// Manager exports and imports memory snapshots against a goal store.
type Manager struct {
	store  core.GoalStore
	opts   ExportOptions
	logger *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithExportOptions sets the default export options.
func WithExportOptions(opts ExportOptions) ManagerOption {
	return func(m *Manager) {
		m.opts = opts
	}
}

// NewManager creates a snapshot manager writing to opts.Dir.
func NewManager(store core.GoalStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		opts:   ExportOptions{Dir: "snapshots"},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Export captures a session snapshot and writes it to the snapshots
// directory, returning the written path.
func (m *Manager) Export(ctx context.Context, sessionID uuid.UUID) (string, error) {
	snap, err := Capture(ctx, m.store, sessionID, m.opts)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.opts.Dir, Filename(sessionID, snap.Meta.Timestamp))
	if err := Write(snap, path, m.opts.Compress); err != nil {
		return "", err
	}
	m.logger.Info("memory snapshot exported",
		"session_id", sessionID.String(),
		"path", path,
		"goals", len(snap.Goals),
		"events", len(snap.Events))
	return path, nil
}

// Import loads a snapshot file and replays its goals and events into
// the store.
func (m *Manager) Import(ctx context.Context, path string) (*ImportResult, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	result, err := Apply(ctx, m.store, snap, ImportOptions{Goals: true, Events: true})
	if err != nil {
		return result, err
	}
	m.logger.Info("memory snapshot imported",
		"session_id", result.SessionID.String(),
		"path", path,
		"goals", result.Goals,
		"events", result.Events)
	return result, nil
}

// List returns the snapshot files in the snapshots directory, newest
// naming last (the timestamped file names sort chronologically).
func (m *Manager) List() ([]string, error) {
	pattern := filepath.Join(m.opts.Dir, "memory_snapshot_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return matches, nil
}
