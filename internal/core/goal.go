package core

import (
	"time"

	"github.com/google/uuid"
)

// GoalStatus represents the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusCreated    GoalStatus = "created"
	GoalStatusInProgress GoalStatus = "in_progress"
	GoalStatusCompleted  GoalStatus = "completed"
	GoalStatusFailed     GoalStatus = "failed"
)

// Priority bounds for goals.
const (
	MinPriority = 1
	MaxPriority = 5
)

// Goal is the persisted goal entity. Goals are created when first generated,
// mutated on status or priority change, and removed only by an explicit
// session-memory clear.
type Goal struct {
	ID           uuid.UUID              `json:"id"`
	SessionID    uuid.UUID              `json:"session_id,omitempty"`
	Text         string                 `json:"text"`
	Status       GoalStatus             `json:"status"`
	Priority     int                    `json:"priority"`
	CreatedAt    time.Time              `json:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	SuccessScore *float64               `json:"success_score,omitempty"`
	ParentGoalID *uuid.UUID             `json:"parent_goal_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IsActive     bool                   `json:"is_active"`
}

// NewGoal creates a goal in the created state with the default priority.
func NewGoal(sessionID uuid.UUID, text string) *Goal {
	return &Goal{
		ID:        uuid.New(),
		SessionID: sessionID,
		Text:      text,
		Status:    GoalStatusCreated,
		Priority:  MinPriority,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
}

// IsTerminal reports whether the goal reached a final status.
func (g *Goal) IsTerminal() bool {
	return g.Status == GoalStatusCompleted || g.Status == GoalStatusFailed
}

// MetaString returns a string metadata value, if present.
func (g *Goal) MetaString(key string) (string, bool) {
	if g.Metadata == nil {
		return "", false
	}
	v, ok := g.Metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MetaFloat returns a numeric metadata value, if present. JSON round-trips
// store numbers as float64 but callers may also set int or string values.
func (g *Goal) MetaFloat(key string) (float64, bool) {
	if g.Metadata == nil {
		return 0, false
	}
	switch v := g.Metadata[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// MetaBool returns a boolean metadata value, if present.
func (g *Goal) MetaBool(key string) bool {
	if g.Metadata == nil {
		return false
	}
	v, ok := g.Metadata[key].(bool)
	return ok && v
}

// Validate checks goal invariants.
func (g *Goal) Validate() error {
	if g.Text == "" {
		return ErrValidation("GOAL_TEXT_REQUIRED", "goal text cannot be empty")
	}
	if g.Priority < MinPriority || g.Priority > MaxPriority {
		return ErrValidation("GOAL_PRIORITY_RANGE", "goal priority must be between 1 and 5")
	}
	return nil
}
