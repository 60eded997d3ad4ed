package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

func newTestStore(t *testing.T) *SQLiteGoalStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pilot.db")
	s, err := NewSQLiteGoalStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteGoalStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestGoal(sessionID uuid.UUID, text string) *core.Goal {
	goal := core.NewGoal(sessionID, text)
	goal.CreatedAt = goal.CreatedAt.Truncate(time.Second) // SQLite stores with second precision
	return goal
}

func TestSQLiteGoalStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	parent := uuid.New()
	score := 0.8
	goal := newTestGoal(sessionID, "open the settings panel")
	goal.Status = core.GoalStatusInProgress
	goal.Priority = 4
	goal.ParentGoalID = &parent
	goal.SuccessScore = &score
	goal.Metadata = map[string]interface{}{"source": "planner"}

	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}

	got, err := s.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal() error = %v", err)
	}
	if got.Text != goal.Text {
		t.Errorf("Text = %q, want %q", got.Text, goal.Text)
	}
	if got.SessionID != sessionID {
		t.Errorf("SessionID = %s, want %s", got.SessionID, sessionID)
	}
	if got.Status != core.GoalStatusInProgress {
		t.Errorf("Status = %q, want %q", got.Status, core.GoalStatusInProgress)
	}
	if got.Priority != 4 {
		t.Errorf("Priority = %d, want 4", got.Priority)
	}
	if got.ParentGoalID == nil || *got.ParentGoalID != parent {
		t.Errorf("ParentGoalID = %v, want %s", got.ParentGoalID, parent)
	}
	if got.SuccessScore == nil || *got.SuccessScore != score {
		t.Errorf("SuccessScore = %v, want %v", got.SuccessScore, score)
	}
	if got.Metadata["source"] != "planner" {
		t.Errorf("Metadata = %v, want source=planner", got.Metadata)
	}
	if !got.IsActive {
		t.Error("saved goal should be active")
	}
}

func TestSQLiteGoalStore_SaveUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goal := newTestGoal(uuid.New(), "initial text")
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}

	goal.Text = "revised text"
	goal.Priority = 5
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() upsert error = %v", err)
	}

	got, err := s.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal() error = %v", err)
	}
	if got.Text != "revised text" || got.Priority != 5 {
		t.Errorf("got %q/%d, want revised text/5", got.Text, got.Priority)
	}
}

func TestSQLiteGoalStore_GetGoalNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetGoal(context.Background(), uuid.New()); err == nil {
		t.Error("GetGoal() on missing ID should fail")
	}
}

func TestSQLiteGoalStore_UpdateGoalStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goal := newTestGoal(uuid.New(), "finish the report")
	goal.Metadata = map[string]interface{}{"source": "planner"}
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}

	score := 1.0
	err := s.UpdateGoalStatus(ctx, goal.ID, core.StatusUpdate{
		Status:       core.GoalStatusCompleted,
		SuccessScore: &score,
		Metadata:     map[string]interface{}{"iterations": 3},
	})
	if err != nil {
		t.Fatalf("UpdateGoalStatus() error = %v", err)
	}

	got, err := s.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal() error = %v", err)
	}
	if got.Status != core.GoalStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("terminal status should stamp CompletedAt")
	}
	if got.IsActive {
		t.Error("terminal status should deactivate the goal")
	}
	if got.SuccessScore == nil || *got.SuccessScore != 1.0 {
		t.Errorf("SuccessScore = %v, want 1.0", got.SuccessScore)
	}
	if got.Metadata["source"] != "planner" {
		t.Error("status update should preserve existing metadata")
	}
	if _, ok := got.Metadata["iterations"]; !ok {
		t.Error("status update should merge new metadata")
	}
}

func TestSQLiteGoalStore_UpdateGoalStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateGoalStatus(context.Background(), uuid.New(), core.StatusUpdate{
		Status: core.GoalStatusCompleted,
	})
	if err == nil {
		t.Error("UpdateGoalStatus() on missing ID should fail")
	}
}

func TestSQLiteGoalStore_UpdateGoalPriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goal := newTestGoal(uuid.New(), "refile the archive")
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}

	audit := map[string]interface{}{"source": "override", "updated_at": "2026-08-28T00:00:00Z"}
	if err := s.UpdateGoalPriority(ctx, goal.ID, 5, audit); err != nil {
		t.Fatalf("UpdateGoalPriority() error = %v", err)
	}

	got, err := s.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal() error = %v", err)
	}
	if got.Priority != 5 {
		t.Errorf("Priority = %d, want 5", got.Priority)
	}
	auditMeta, ok := got.Metadata["priority_audit"].(map[string]interface{})
	if !ok {
		t.Fatalf("Metadata = %v, want a priority_audit entry", got.Metadata)
	}
	if auditMeta["source"] != "override" {
		t.Errorf("audit source = %v, want override", auditMeta["source"])
	}
}

func TestSQLiteGoalStore_UpdateGoalPriorityNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateGoalPriority(context.Background(), uuid.New(), 3, nil); err == nil {
		t.Error("UpdateGoalPriority() on missing ID should fail")
	}
}

func TestSQLiteGoalStore_GetActiveGoals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()
	base := time.Now().Truncate(time.Second)

	low := newTestGoal(sessionID, "low priority")
	low.Priority = 1
	low.CreatedAt = base

	high := newTestGoal(sessionID, "high priority")
	high.Priority = 5
	high.CreatedAt = base.Add(time.Second)

	inactive := newTestGoal(sessionID, "already finished")
	inactive.IsActive = false

	otherSession := newTestGoal(uuid.New(), "someone else's goal")

	for _, g := range []*core.Goal{low, high, inactive, otherSession} {
		if err := s.SaveGoal(ctx, g); err != nil {
			t.Fatalf("SaveGoal() error = %v", err)
		}
	}

	goals, err := s.GetActiveGoals(ctx, sessionID, 0)
	if err != nil {
		t.Fatalf("GetActiveGoals() error = %v", err)
	}
	if len(goals) != 2 {
		t.Fatalf("GetActiveGoals() returned %d goals, want 2", len(goals))
	}
	if goals[0].ID != high.ID {
		t.Errorf("first goal = %q, want the high-priority goal", goals[0].Text)
	}

	limited, err := s.GetActiveGoals(ctx, sessionID, 1)
	if err != nil {
		t.Fatalf("GetActiveGoals(limit=1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("GetActiveGoals(limit=1) returned %d goals, want 1", len(limited))
	}

	all, err := s.GetActiveGoals(ctx, uuid.Nil, 0)
	if err != nil {
		t.Fatalf("GetActiveGoals(all sessions) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("GetActiveGoals(all sessions) returned %d goals, want 3", len(all))
	}
}

func TestSQLiteGoalStore_AppendAndQueryEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()
	goalID := uuid.New()
	base := time.Now().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		event := &core.MemoryEvent{
			ID:             uuid.New(),
			SessionID:      sessionID,
			GoalID:         goalID,
			StepID:         uuid.New(),
			Action:         "click",
			ActionResult:   "clicked the icon",
			VisionState:    "a desktop with icons",
			TerminalOutput: "",
			Meta:           map[string]interface{}{"pass": i},
			Timestamp:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendEvent(ctx, event); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}
	other := &core.MemoryEvent{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Action:    "observe",
		Timestamp: base,
	}
	if err := s.AppendEvent(ctx, other); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	events, err := s.QueryEvents(ctx, core.EventQuery{SessionID: sessionID})
	if err != nil {
		t.Fatalf("QueryEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("QueryEvents() returned %d events, want 3", len(events))
	}
	if !events[0].Timestamp.After(events[2].Timestamp) {
		t.Error("events should be ordered newest first")
	}
	if events[0].ActionResult != "clicked the icon" {
		t.Errorf("ActionResult = %q", events[0].ActionResult)
	}

	limited, err := s.QueryEvents(ctx, core.EventQuery{SessionID: sessionID, Limit: 2})
	if err != nil {
		t.Fatalf("QueryEvents(limit) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("QueryEvents(limit=2) returned %d events, want 2", len(limited))
	}

	since, err := s.QueryEvents(ctx, core.EventQuery{
		SessionID: sessionID,
		Since:     base.Add(1500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("QueryEvents(since) error = %v", err)
	}
	if len(since) != 1 {
		t.Errorf("QueryEvents(since) returned %d events, want 1", len(since))
	}

	byGoal, err := s.QueryEvents(ctx, core.EventQuery{GoalID: goalID})
	if err != nil {
		t.Fatalf("QueryEvents(goal) error = %v", err)
	}
	if len(byGoal) != 3 {
		t.Errorf("QueryEvents(goal) returned %d events, want 3", len(byGoal))
	}
}

func TestSQLiteGoalStore_ClearSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	goal := newTestGoal(sessionID, "goal to wipe")
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}
	keep := newTestGoal(uuid.New(), "goal to keep")
	if err := s.SaveGoal(ctx, keep); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}
	event := &core.MemoryEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		Action:    "observe",
		Timestamp: time.Now(),
	}
	if err := s.AppendEvent(ctx, event); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	if err := s.ClearSession(ctx, sessionID); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}

	if _, err := s.GetGoal(ctx, goal.ID); err == nil {
		t.Error("cleared goal should be gone")
	}
	if _, err := s.GetGoal(ctx, keep.ID); err != nil {
		t.Errorf("other session's goal should survive: %v", err)
	}
	events, err := s.QueryEvents(ctx, core.EventQuery{SessionID: sessionID})
	if err != nil {
		t.Fatalf("QueryEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("cleared session still has %d events", len(events))
	}
}

func TestSQLiteGoalStore_ReopenPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pilot.db")
	ctx := context.Background()

	s, err := NewSQLiteGoalStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteGoalStore() error = %v", err)
	}
	goal := newTestGoal(uuid.New(), "survive a restart")
	if err := s.SaveGoal(ctx, goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteGoalStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetGoal() after reopen error = %v", err)
	}
	if got.Text != goal.Text {
		t.Errorf("Text = %q, want %q", got.Text, goal.Text)
	}
}

func TestSQLiteGoalStore_Backup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pilot.db")
	backupPath := filepath.Join(dir, "pilot.bak")

	s, err := NewSQLiteGoalStore(dbPath, WithBackupPath(backupPath))
	if err != nil {
		t.Fatalf("NewSQLiteGoalStore() error = %v", err)
	}
	defer s.Close()

	goal := newTestGoal(uuid.New(), "back me up")
	if err := s.SaveGoal(context.Background(), goal); err != nil {
		t.Fatalf("SaveGoal() error = %v", err)
	}
	if err := s.Backup(context.Background()); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	info, err := os.Stat(backupPath)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup file is empty")
	}
}
