package core

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewGoal(t *testing.T) {
	sid := uuid.New()
	g := NewGoal(sid, "open the settings panel")

	if g.ID == uuid.Nil {
		t.Error("ID should be assigned")
	}
	if g.SessionID != sid {
		t.Errorf("SessionID = %v, want %v", g.SessionID, sid)
	}
	if g.Status != GoalStatusCreated {
		t.Errorf("Status = %q, want %q", g.Status, GoalStatusCreated)
	}
	if g.Priority != MinPriority {
		t.Errorf("Priority = %d, want %d", g.Priority, MinPriority)
	}
	if !g.IsActive {
		t.Error("new goal should be active")
	}
	if g.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestGoal_IsTerminal(t *testing.T) {
	tests := []struct {
		status GoalStatus
		want   bool
	}{
		{GoalStatusCreated, false},
		{GoalStatusInProgress, false},
		{GoalStatusCompleted, true},
		{GoalStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			g := &Goal{Status: tt.status}
			if got := g.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGoal_Validate(t *testing.T) {
	g := NewGoal(uuid.New(), "valid goal")
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	g.Text = ""
	if err := g.Validate(); err == nil {
		t.Error("empty text should fail validation")
	}

	g.Text = "goal"
	g.Priority = 6
	if err := g.Validate(); err == nil {
		t.Error("priority above range should fail validation")
	}
	g.Priority = 0
	if err := g.Validate(); err == nil {
		t.Error("priority below range should fail validation")
	}
}

func TestGoal_MetaHelpers(t *testing.T) {
	g := NewGoal(uuid.New(), "goal")
	g.Metadata = map[string]interface{}{
		"deadline":     "2026-09-01T00:00:00Z",
		"urgency":      1.5,
		"dependents":   2,
		"blocking":     true,
		"not_a_string": 42,
	}

	if s, ok := g.MetaString("deadline"); !ok || s != "2026-09-01T00:00:00Z" {
		t.Errorf("MetaString(deadline) = %q, %v", s, ok)
	}
	if _, ok := g.MetaString("not_a_string"); ok {
		t.Error("MetaString should reject non-string values")
	}
	if f, ok := g.MetaFloat("urgency"); !ok || f != 1.5 {
		t.Errorf("MetaFloat(urgency) = %v, %v", f, ok)
	}
	if f, ok := g.MetaFloat("dependents"); !ok || f != 2 {
		t.Errorf("MetaFloat(dependents) = %v, %v, want int coerced", f, ok)
	}
	if !g.MetaBool("blocking") {
		t.Error("MetaBool(blocking) = false, want true")
	}
	if g.MetaBool("missing") {
		t.Error("MetaBool(missing) = true, want false")
	}

	empty := NewGoal(uuid.New(), "goal")
	if _, ok := empty.MetaString("anything"); ok {
		t.Error("nil metadata should return not-found")
	}
}
