package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LLM Port
// =============================================================================

// CompletionRequest configures one text completion.
type CompletionRequest struct {
	SystemPrompt string
	UserContent  string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// LLMClient defines the contract for the language-model collaborator.
// Replies may be free text or JSON embedded in prose; callers expecting JSON
// must extract the first balanced object and tolerate parse failure.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// =============================================================================
// Vision Port
// =============================================================================

// Image is an opaque captured frame. Adapters fill what they can; Path may be
// empty for in-memory captures.
type Image struct {
	Path   string
	Width  int
	Height int
	Data   []byte
}

// TemplateMatch locates a named template within a capture.
type TemplateMatch struct {
	Name       string
	CenterX    int
	CenterY    int
	Confidence float64
}

// VisionService defines the contract for the perception collaborator.
// No determinism is guaranteed across calls.
type VisionService interface {
	Capture(ctx context.Context) (*Image, error)
	OCR(ctx context.Context, img *Image) (string, error)
	TemplateMatch(ctx context.Context, name string, img *Image, threshold float64) (*TemplateMatch, error)
}

// =============================================================================
// Action Executor Port
// =============================================================================

// ExecutionResult reports the outcome of one action. Executors must not
// panic or return errors; all failures surface through Success and Message.
type ExecutionResult struct {
	Success        bool
	Message        string
	TerminalOutput string
	ExitCode       int
	CompletedGoal  bool
}

// ActionExecutor defines the contract for actuation collaborators (desktop,
// browser). The timeout bounds a single action, not the run.
type ActionExecutor interface {
	Execute(ctx context.Context, action *Action, timeout time.Duration) ExecutionResult
}

// =============================================================================
// Goal / Event Store Port
// =============================================================================

// MemoryEvent is one recorded observation-action pair of a run.
type MemoryEvent struct {
	ID             uuid.UUID              `json:"id"`
	SessionID      uuid.UUID              `json:"session_id,omitempty"`
	GoalID         uuid.UUID              `json:"goal_id,omitempty"`
	StepID         uuid.UUID              `json:"step_id,omitempty"`
	Action         string                 `json:"action,omitempty"`
	ActionResult   string                 `json:"action_result,omitempty"`
	VisionState    string                 `json:"vision_state,omitempty"`
	TerminalOutput string                 `json:"terminal_output,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// EventQuery filters memory events.
type EventQuery struct {
	SessionID uuid.UUID
	GoalID    uuid.UUID
	Since     time.Time
	Limit     int
}

// StatusUpdate mutates a goal's lifecycle fields.
type StatusUpdate struct {
	Status       GoalStatus
	SuccessScore *float64
	Metadata     map[string]interface{}
}

// GoalStore defines the contract for goal and event persistence. A run with
// no configured store degrades to a no-op with a logged warning; it must
// never crash the run.
type GoalStore interface {
	SaveGoal(ctx context.Context, goal *Goal) error
	GetGoal(ctx context.Context, id uuid.UUID) (*Goal, error)
	UpdateGoalStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error
	UpdateGoalPriority(ctx context.Context, id uuid.UUID, priority int, audit map[string]interface{}) error
	GetActiveGoals(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Goal, error)
	AppendEvent(ctx context.Context, event *MemoryEvent) error
	QueryEvents(ctx context.Context, q EventQuery) ([]*MemoryEvent, error)
	ClearSession(ctx context.Context, sessionID uuid.UUID) error
}
