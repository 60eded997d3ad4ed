package core

import (
	"time"

	"github.com/google/uuid"
)

// CompletionMarker is the literal that, when present in the goal text,
// short-circuits the completion check.
const CompletionMarker = "done"

// CompletionSuffix is appended to the goal text exactly once when a run
// completes.
const CompletionSuffix = " (Goal complete!)"

// DefaultMaxIterations bounds a run when the caller does not specify a budget.
const DefaultMaxIterations = 3

// CurrentBlackboardVersion is the schema version for blackboard snapshots.
const CurrentBlackboardVersion = 1

// Blackboard is the mutable per-run state threaded through every step of one
// workflow run. It is owned exclusively by one in-flight run and never shared
// across concurrent runs. Optional step outputs live in named sections rather
// than a free-form bag so a typo'd field is a compile error.
type Blackboard struct {
	Version   int       `json:"version"`
	SessionID uuid.UUID `json:"session_id"`
	GoalID    uuid.UUID `json:"goal_id,omitempty"`
	StepID    uuid.UUID `json:"step_id,omitempty"`

	Goal             string `json:"goal"`
	GoalComplete     bool   `json:"goal_complete"`
	GoalFailed       bool   `json:"goal_failed"`
	GoalFailedReason string `json:"goal_failed_reason,omitempty"`
	StatusMessage    string `json:"status_message,omitempty"`

	LoopCounter   int    `json:"loop_counter"`
	MaxIterations int    `json:"max_iterations"`
	UserContext   string `json:"user_context,omitempty"`

	Vision   VisionSection   `json:"vision"`
	Action   ActionSection   `json:"action"`
	Planning PlanningSection `json:"planning"`
	Retry    RetrySection    `json:"retry"`
	Safety   SafetySection   `json:"safety"`
	Override OverrideSection `json:"override"`
	Memory   MemorySection   `json:"memory"`
}

// NewBlackboard creates the state record for a fresh run.
func NewBlackboard(sessionID uuid.UUID, goal string, maxIterations int) *Blackboard {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Blackboard{
		Version:       CurrentBlackboardVersion,
		SessionID:     sessionID,
		Goal:          goal,
		MaxIterations: maxIterations,
	}
}

// VisionSection holds perception output for the current iteration.
type VisionSection struct {
	State          string    `json:"state,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	UITexts        []string  `json:"ui_texts,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
	Err            string    `json:"error,omitempty"`
}

// ActionSection holds the selected action request and its outcome.
// Success is tri-state: nil means no action has executed yet this iteration.
type ActionSection struct {
	Request        *Action   `json:"request,omitempty"`
	Result         string    `json:"result,omitempty"`
	Success        *bool     `json:"success,omitempty"`
	CompletedGoal  bool      `json:"completed_goal,omitempty"`
	TerminalOutput string    `json:"terminal_output,omitempty"`
	TerminalExit   int       `json:"terminal_exit,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
	Err            string    `json:"error,omitempty"`
}

// Succeeded reports whether the last action ran and reported success.
func (a *ActionSection) Succeeded() bool {
	return a.Success != nil && *a.Success
}

// SetOutcome records an action result.
func (a *ActionSection) SetOutcome(success bool, result string) {
	a.Success = &success
	a.Result = result
	a.Timestamp = time.Now()
}

// PlanStep is one entry of an ordered plan.
type PlanStep struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
}

// PlanningSection holds the current plan and the optimization audit trail.
type PlanningSection struct {
	Steps              []PlanStep        `json:"steps,omitempty"`
	CurrentStepIndex   int               `json:"current_step_index"`
	SkipPlanning       bool              `json:"skip_planning,omitempty"`
	SkipGoalGeneration bool              `json:"skip_goal_generation,omitempty"`
	Optimization       OptimizationTrail `json:"optimization"`
	GeneratedAt        time.Time         `json:"generated_at,omitzero"`
	Err                string            `json:"error,omitempty"`
}

// CurrentStep returns the plan step at the current index, if any.
func (p *PlanningSection) CurrentStep() (PlanStep, bool) {
	if p.CurrentStepIndex < 0 || p.CurrentStepIndex >= len(p.Steps) {
		return PlanStep{}, false
	}
	return p.Steps[p.CurrentStepIndex], true
}

// HasRemainingSteps reports whether there are plan steps after the current one.
func (p *PlanningSection) HasRemainingSteps() bool {
	return len(p.Steps) > 0 && p.CurrentStepIndex < len(p.Steps)-1
}

// OptimizationTrail records which steps were skipped and why. TimeSaved is
// additive and monotonically non-decreasing within a run.
type OptimizationTrail struct {
	SkippedSteps     []string          `json:"skipped_steps,omitempty"`
	Reasons          map[string]string `json:"reasons,omitempty"`
	TimeSavedSeconds float64           `json:"time_saved_seconds"`
}

// RecordSkip notes one skipped step with its reason and estimated saving.
func (o *OptimizationTrail) RecordSkip(step, reason string, savedSeconds float64) {
	if o.Reasons == nil {
		o.Reasons = make(map[string]string)
	}
	o.SkippedSteps = append(o.SkippedSteps, step)
	o.Reasons[step] = reason
	o.TimeSavedSeconds += savedSeconds
}

// RetrySection mirrors the Retry Coordinator's view of the current step.
type RetrySection struct {
	Info              *RetrySnapshot `json:"info,omitempty"`
	Retrying          bool           `json:"retrying,omitempty"`
	Count             int            `json:"count,omitempty"`
	MaxRetriesReached bool           `json:"max_retries_reached,omitempty"`
	StepFailed        bool           `json:"step_failed,omitempty"`
	StepError         string         `json:"step_error,omitempty"`
}

// RetrySnapshot is a serializable view of a RetryState, attached to the
// blackboard so callers can inspect backoff without touching the coordinator.
type RetrySnapshot struct {
	StepID           string         `json:"step_id"`
	Attempts         int            `json:"attempts"`
	MaxRetries       int            `json:"max_retries"`
	Jitter           bool           `json:"jitter"`
	FirstAttemptTime time.Time      `json:"first_attempt_time"`
	LastAttemptTime  time.Time      `json:"last_attempt_time,omitzero"`
	NextAttemptTime  time.Time      `json:"next_attempt_time,omitzero"`
	Errors           []AttemptError `json:"errors,omitempty"`
	CanRetry         bool           `json:"can_retry"`
}

// AttemptError records one failed attempt.
type AttemptError struct {
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// SafetySection carries the Safety Gate's decision for the pending action.
type SafetySection struct {
	Decision    *SafetyDecision `json:"decision,omitempty"`
	Blocked     bool            `json:"blocked,omitempty"`
	BlockReason string          `json:"block_reason,omitempty"`
}

// SafetyStatus is the outcome class of a safety check.
type SafetyStatus string

const (
	SafetyAllowed     SafetyStatus = "allowed"
	SafetyWarned      SafetyStatus = "allowed_with_warning"
	SafetyBlocked     SafetyStatus = "blocked"
	SafetyCheckFailed SafetyStatus = "error"
)

// SafetyDecision is the result of classifying one command or code snippet.
type SafetyDecision struct {
	Status  SafetyStatus `json:"status"`
	Message string       `json:"message"`
	Reason  string       `json:"reason,omitempty"`
}

// OverrideSection carries a pending override request and its outcome.
type OverrideSection struct {
	PendingID uuid.UUID    `json:"pending_id,omitempty"`
	Outcome   *ApplyResult `json:"outcome,omitempty"`
}

// MemorySection drives snapshot export/import from within a run.
type MemorySection struct {
	ExportRequested bool   `json:"export_requested,omitempty"`
	ExportPath      string `json:"export_path,omitempty"`
	ExportErr       string `json:"export_error,omitempty"`
	ImportRequested bool   `json:"import_requested,omitempty"`
	ImportPath      string `json:"import_path,omitempty"`
	ImportErr       string `json:"import_error,omitempty"`
	Err             string `json:"error,omitempty"`
}

// Clone returns a deep copy safe to read while the original keeps being
// mutated by its run.
func (b *Blackboard) Clone() *Blackboard {
	if b == nil {
		return nil
	}
	dup := *b

	dup.Vision.UITexts = append([]string(nil), b.Vision.UITexts...)

	if b.Action.Request != nil {
		req := *b.Action.Request
		req.Params = copyParams(b.Action.Request.Params)
		dup.Action.Request = &req
	}
	if b.Action.Success != nil {
		success := *b.Action.Success
		dup.Action.Success = &success
	}

	dup.Planning.Steps = append([]PlanStep(nil), b.Planning.Steps...)
	dup.Planning.Optimization.SkippedSteps = append([]string(nil), b.Planning.Optimization.SkippedSteps...)
	if b.Planning.Optimization.Reasons != nil {
		reasons := make(map[string]string, len(b.Planning.Optimization.Reasons))
		for k, v := range b.Planning.Optimization.Reasons {
			reasons[k] = v
		}
		dup.Planning.Optimization.Reasons = reasons
	}

	if b.Retry.Info != nil {
		info := *b.Retry.Info
		info.Errors = append([]AttemptError(nil), b.Retry.Info.Errors...)
		dup.Retry.Info = &info
	}
	if b.Safety.Decision != nil {
		decision := *b.Safety.Decision
		dup.Safety.Decision = &decision
	}
	if b.Override.Outcome != nil {
		outcome := *b.Override.Outcome
		if b.Override.Outcome.Intent != nil {
			intent := *b.Override.Outcome.Intent
			intent.Params = copyParams(b.Override.Outcome.Intent.Params)
			outcome.Intent = &intent
		}
		dup.Override.Outcome = &outcome
	}
	return &dup
}

func copyParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	dup := make(map[string]interface{}, len(params))
	for k, v := range params {
		dup[k] = v
	}
	return dup
}

// Validate checks blackboard invariants before a run starts.
func (b *Blackboard) Validate() error {
	if b.SessionID == uuid.Nil {
		return ErrValidation("SESSION_ID_REQUIRED", "blackboard session ID cannot be empty")
	}
	if b.MaxIterations <= 0 {
		return ErrValidation("INVALID_MAX_ITERATIONS", "max iterations must be positive")
	}
	return nil
}
