package events

// Event type constants for agent run events.
const (
	TypeRunStarted      = "run_started"
	TypeRunCompleted    = "run_completed"
	TypeRunFailed       = "run_failed"
	TypeStepCompleted   = "step_completed"
	TypeActionExecuted  = "action_executed"
	TypeSafetyBlocked   = "safety_blocked"
	TypeOverrideApplied = "override_applied"
	TypeGoalCompleted   = "goal_completed"
	TypeRetryScheduled  = "retry_scheduled"
)

// RunStartedEvent signals the start of an agent run.
type RunStartedEvent struct {
	BaseEvent
	Goal          string `json:"goal"`
	MaxIterations int    `json:"max_iterations"`
}

// NewRunStartedEvent creates a run start event.
func NewRunStartedEvent(sessionID, goal string, maxIterations int) RunStartedEvent {
	return RunStartedEvent{
		BaseEvent:     NewBaseEvent(TypeRunStarted, sessionID),
		Goal:          goal,
		MaxIterations: maxIterations,
	}
}

// RunCompletedEvent signals a run that reached a terminal state.
type RunCompletedEvent struct {
	BaseEvent
	Goal          string `json:"goal"`
	Iterations    int    `json:"iterations"`
	GoalComplete  bool   `json:"goal_complete"`
	StatusMessage string `json:"status_message,omitempty"`
}

// NewRunCompletedEvent creates a run completion event.
func NewRunCompletedEvent(sessionID, goal string, iterations int, goalComplete bool, statusMessage string) RunCompletedEvent {
	return RunCompletedEvent{
		BaseEvent:     NewBaseEvent(TypeRunCompleted, sessionID),
		Goal:          goal,
		Iterations:    iterations,
		GoalComplete:  goalComplete,
		StatusMessage: statusMessage,
	}
}

// RunFailedEvent signals a run-level error, distinct from in-loop step errors.
type RunFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// NewRunFailedEvent creates a run failure event.
func NewRunFailedEvent(sessionID, errMsg string) RunFailedEvent {
	return RunFailedEvent{
		BaseEvent: NewBaseEvent(TypeRunFailed, sessionID),
		Error:     errMsg,
	}
}

// StepCompletedEvent reports one completed pass through the workflow.
type StepCompletedEvent struct {
	BaseEvent
	Iteration    int    `json:"iteration"`
	Goal         string `json:"goal"`
	ActionType   string `json:"action_type,omitempty"`
	ActionResult string `json:"action_result,omitempty"`
	Success      bool   `json:"success"`
}

// NewStepCompletedEvent creates a step completion event.
func NewStepCompletedEvent(sessionID string, iteration int, goal, actionType, actionResult string, success bool) StepCompletedEvent {
	return StepCompletedEvent{
		BaseEvent:    NewBaseEvent(TypeStepCompleted, sessionID),
		Iteration:    iteration,
		Goal:         goal,
		ActionType:   actionType,
		ActionResult: actionResult,
		Success:      success,
	}
}

// SafetyBlockedEvent reports an action refused by the safety gate.
type SafetyBlockedEvent struct {
	BaseEvent
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// NewSafetyBlockedEvent creates a safety block event.
func NewSafetyBlockedEvent(sessionID, kind, reason string) SafetyBlockedEvent {
	return SafetyBlockedEvent{
		BaseEvent: NewBaseEvent(TypeSafetyBlocked, sessionID),
		Kind:      kind,
		Reason:    reason,
	}
}

// OverrideAppliedEvent reports a manual override taking effect.
type OverrideAppliedEvent struct {
	BaseEvent
	OverrideID string `json:"override_id"`
	Target     string `json:"target"`
	Action     string `json:"action"`
	Message    string `json:"message"`
}

// NewOverrideAppliedEvent creates an override application event.
func NewOverrideAppliedEvent(sessionID, overrideID, target, action, message string) OverrideAppliedEvent {
	return OverrideAppliedEvent{
		BaseEvent:  NewBaseEvent(TypeOverrideApplied, sessionID),
		OverrideID: overrideID,
		Target:     target,
		Action:     action,
		Message:    message,
	}
}

// GoalCompletedEvent reports a goal judged complete or failed by the voter.
type GoalCompletedEvent struct {
	BaseEvent
	GoalID       string  `json:"goal_id"`
	Success      bool    `json:"success"`
	Confidence   float64 `json:"confidence"`
	SuccessScore float64 `json:"success_score"`
}

// NewGoalCompletedEvent creates a goal completion event.
func NewGoalCompletedEvent(sessionID, goalID string, success bool, confidence, successScore float64) GoalCompletedEvent {
	return GoalCompletedEvent{
		BaseEvent:    NewBaseEvent(TypeGoalCompleted, sessionID),
		GoalID:       goalID,
		Success:      success,
		Confidence:   confidence,
		SuccessScore: successScore,
	}
}

// RetryScheduledEvent reports a failed attempt with a scheduled retry.
type RetryScheduledEvent struct {
	BaseEvent
	StepID   string `json:"step_id"`
	Attempt  int    `json:"attempt"`
	MaxTries int    `json:"max_tries"`
	Error    string `json:"error,omitempty"`
}

// NewRetryScheduledEvent creates a retry scheduling event.
func NewRetryScheduledEvent(sessionID, stepID string, attempt, maxTries int, errMsg string) RetryScheduledEvent {
	return RetryScheduledEvent{
		BaseEvent: NewBaseEvent(TypeRetryScheduled, sessionID),
		StepID:    stepID,
		Attempt:   attempt,
		MaxTries:  maxTries,
		Error:     errMsg,
	}
}
