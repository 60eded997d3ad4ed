package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// memStore is an in-memory core.GoalStore for snapshot tests.
type memStore struct {
	goals  []*core.Goal
	events []*core.MemoryEvent
}

func (m *memStore) SaveGoal(_ context.Context, goal *core.Goal) error {
	m.goals = append(m.goals, goal)
	return nil
}

func (m *memStore) GetGoal(_ context.Context, id uuid.UUID) (*core.Goal, error) {
	for _, g := range m.goals {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, core.ErrNotFound("goal", id.String())
}

func (m *memStore) UpdateGoalStatus(_ context.Context, _ uuid.UUID, _ core.StatusUpdate) error {
	return nil
}

func (m *memStore) UpdateGoalPriority(_ context.Context, _ uuid.UUID, _ int, _ map[string]interface{}) error {
	return nil
}

func (m *memStore) GetActiveGoals(_ context.Context, sessionID uuid.UUID, limit int) ([]*core.Goal, error) {
	var out []*core.Goal
	for _, g := range m.goals {
		if sessionID != uuid.Nil && g.SessionID != sessionID {
			continue
		}
		out = append(out, g)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) AppendEvent(_ context.Context, event *core.MemoryEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) QueryEvents(_ context.Context, q core.EventQuery) ([]*core.MemoryEvent, error) {
	var out []*core.MemoryEvent
	for _, e := range m.events {
		if q.SessionID != uuid.Nil && e.SessionID != q.SessionID {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) ClearSession(_ context.Context, sessionID uuid.UUID) error {
	m.goals = nil
	m.events = nil
	return nil
}

func seededStore(t *testing.T, sessionID uuid.UUID) *memStore {
	t.Helper()
	store := &memStore{}
	ctx := context.Background()

	for _, text := range []string{"open the settings panel", "enable dark mode"} {
		goal := core.NewGoal(sessionID, text)
		if err := store.SaveGoal(ctx, goal); err != nil {
			t.Fatalf("SaveGoal: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		event := &core.MemoryEvent{
			ID:           uuid.New(),
			SessionID:    sessionID,
			GoalID:       store.goals[0].ID,
			Action:       "click",
			ActionResult: "clicked the settings icon",
			Timestamp:    time.Now().UTC(),
		}
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	return store
}

func TestSnapshotRoundTrip(t *testing.T) {
	sessionID := uuid.New()
	store := seededStore(t, sessionID)
	ctx := context.Background()

	snap, err := Capture(ctx, store, sessionID, ExportOptions{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.Meta.Version != FormatVersion {
		t.Errorf("version = %q, want %q", snap.Meta.Version, FormatVersion)
	}
	if snap.Meta.SessionID != sessionID {
		t.Errorf("session = %s, want %s", snap.Meta.SessionID, sessionID)
	}
	if len(snap.Goals) != 2 || len(snap.Events) != 3 {
		t.Fatalf("captured %d goals / %d events, want 2 / 3", len(snap.Goals), len(snap.Events))
	}

	path := filepath.Join(t.TempDir(), "snap.json")
	if err := Write(snap, path, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Goals) != 2 || len(loaded.Events) != 3 {
		t.Fatalf("loaded %d goals / %d events, want 2 / 3", len(loaded.Goals), len(loaded.Events))
	}
	if loaded.Goals[0].Text != snap.Goals[0].Text {
		t.Errorf("goal text = %q, want %q", loaded.Goals[0].Text, snap.Goals[0].Text)
	}

	target := &memStore{}
	result, err := Apply(ctx, target, loaded, ImportOptions{Goals: true, Events: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Goals != 2 || result.Events != 3 {
		t.Errorf("applied %d goals / %d events, want 2 / 3", result.Goals, result.Events)
	}
	if result.SessionID != sessionID {
		t.Errorf("result session = %s, want %s", result.SessionID, sessionID)
	}
}

func TestSnapshotCompressedSections(t *testing.T) {
	sessionID := uuid.New()
	store := seededStore(t, sessionID)
	ctx := context.Background()

	snap, err := Capture(ctx, store, sessionID, ExportOptions{Compress: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := Write(snap, path, true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), sectionEncoding) {
		t.Fatalf("compressed snapshot missing %q marker", sectionEncoding)
	}
	if strings.Contains(string(raw), "open the settings panel") {
		t.Error("compressed snapshot leaks plaintext goal text")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Goals) != 2 || len(loaded.Events) != 3 {
		t.Fatalf("loaded %d goals / %d events, want 2 / 3", len(loaded.Goals), len(loaded.Events))
	}
}

func TestSnapshotCaptureEventLimit(t *testing.T) {
	sessionID := uuid.New()
	store := seededStore(t, sessionID)

	snap, err := Capture(context.Background(), store, sessionID, ExportOptions{EventLimit: 2})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(snap.Events) != 2 {
		t.Errorf("captured %d events, want 2", len(snap.Events))
	}
}

func TestSnapshotValidate(t *testing.T) {
	valid := func() *Snapshot {
		s := &Snapshot{Meta: Meta{
			Timestamp: time.Now().UTC(),
			SessionID: uuid.New(),
			Version:   FormatVersion,
		}}
		s.Meta.Checksum = checksum(s)
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Snapshot) {},
		},
		{
			name:    "wrong version",
			mutate:  func(s *Snapshot) { s.Meta.Version = "2.0" },
			wantErr: "unsupported snapshot version",
		},
		{
			name:    "missing session",
			mutate:  func(s *Snapshot) { s.Meta.SessionID = uuid.Nil },
			wantErr: "session ID is empty",
		},
		{
			name: "checksum mismatch",
			mutate: func(s *Snapshot) {
				s.Goals = append(s.Goals, core.NewGoal(s.Meta.SessionID, "tampered"))
			},
			wantErr: "checksum mismatch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := valid()
			tt.mutate(snap)
			err := Validate(snap)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestManagerExportImport(t *testing.T) {
	sessionID := uuid.New()
	store := seededStore(t, sessionID)
	dir := t.TempDir()
	ctx := context.Background()

	mgr := NewManager(store, WithExportOptions(ExportOptions{Dir: dir}))
	path, err := mgr.Export(ctx, sessionID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "memory_snapshot_"+sessionID.String()) {
		t.Errorf("unexpected snapshot file name %q", filepath.Base(path))
	}

	files, err := mgr.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Fatalf("List = %v, want [%s]", files, path)
	}

	target := &memStore{}
	targetMgr := NewManager(target, WithExportOptions(ExportOptions{Dir: dir}))
	result, err := targetMgr.Import(ctx, path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Goals != 2 || result.Events != 3 {
		t.Errorf("imported %d goals / %d events, want 2 / 3", result.Goals, result.Events)
	}
	if len(target.goals) != 2 || len(target.events) != 3 {
		t.Errorf("store holds %d goals / %d events, want 2 / 3", len(target.goals), len(target.events))
	}
}

func TestCaptureRejectsMissingInputs(t *testing.T) {
	ctx := context.Background()
	if _, err := Capture(ctx, nil, uuid.New(), ExportOptions{}); err == nil {
		t.Error("Capture with nil store succeeded")
	}
	if _, err := Capture(ctx, &memStore{}, uuid.Nil, ExportOptions{}); err == nil {
		t.Error("Capture with nil session succeeded")
	}
}
