package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
	"github.com/hugo-lorenzo-mato/pilot/internal/snapshot"
)

// Skip reasons and estimated savings recorded on the optimization trail.
const (
	skipPlanningReason    = "Action successful and more steps in plan"
	skipGoalGenReason     = "Making progress on existing plan"
	skipPlanningSavedSecs = 1.5
	skipGoalGenSavedSecs  = 0.8
)

// DefaultActionTimeout bounds a single action execution, not the run.
const DefaultActionTimeout = 30 * time.Second

// retryStateMaxAge bounds how long a failed step's retry state may outlive
// its run before end-of-run pruning drops it.
const retryStateMaxAge = time.Hour

// Orchestrator is the step state machine driving one agent run:
// goal generation, optimization, planning, action, memory record, and
// completion check, looping until the goal is judged complete or the
// iteration budget is exhausted.
//
// Every step traps collaborator failures into blackboard error fields and
// substitutes safe defaults, so the loop always reaches the completion
// check. Only a corrupted blackboard or a cancelled context aborts a run.
type Orchestrator struct {
	planner   *Planner
	vision    core.VisionService
	desktop   core.ActionExecutor
	browser   core.ActionExecutor
	store     core.GoalStore
	retries   *RetryCoordinator
	safety    *SafetyGate
	overrides *OverrideRegistry
	scorer    *PriorityScorer
	voter     *CompletionVoter
	snapshots MemorySnapshotter
	logger    *logging.Logger

	actionTimeout time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	observer      func(*core.Blackboard)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPlanner sets the goal generator and planner.
func WithPlanner(p *Planner) OrchestratorOption {
	return func(o *Orchestrator) { o.planner = p }
}

// WithVision sets the perception collaborator. Without one the perception
// step is skipped.
func WithVision(v core.VisionService) OrchestratorOption {
	return func(o *Orchestrator) { o.vision = v }
}

// WithDesktopExecutor sets the executor for regular actions.
func WithDesktopExecutor(e core.ActionExecutor) OrchestratorOption {
	return func(o *Orchestrator) { o.desktop = e }
}

// WithBrowserExecutor sets the executor for browser_-prefixed actions.
func WithBrowserExecutor(e core.ActionExecutor) OrchestratorOption {
	return func(o *Orchestrator) { o.browser = e }
}

// WithGoalStore sets goal and event persistence. Without one persistence
// degrades to a logged no-op.
func WithGoalStore(store core.GoalStore) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithRetryCoordinator sets the shared retry coordinator.
func WithRetryCoordinator(c *RetryCoordinator) OrchestratorOption {
	return func(o *Orchestrator) { o.retries = c }
}

// WithSafetyGate sets the shared safety gate.
func WithSafetyGate(g *SafetyGate) OrchestratorOption {
	return func(o *Orchestrator) { o.safety = g }
}

// WithOverrideRegistry sets the shared override registry.
func WithOverrideRegistry(r *OverrideRegistry) OrchestratorOption {
	return func(o *Orchestrator) { o.overrides = r }
}

// WithPriorityScorer sets the goal priority scorer.
func WithPriorityScorer(s *PriorityScorer) OrchestratorOption {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithCompletionVoter sets the multi-criteria completion voter.
func WithCompletionVoter(v *CompletionVoter) OrchestratorOption {
	return func(o *Orchestrator) { o.voter = v }
}

// MemorySnapshotter exports and imports session memory snapshots.
type MemorySnapshotter interface {
	Export(ctx context.Context, sessionID uuid.UUID) (string, error)
	Import(ctx context.Context, path string) (*snapshot.ImportResult, error)
}

// WithMemorySnapshotter sets the handler for blackboard export and import
// requests. Without one a request fails with an error on the memory section.
func WithMemorySnapshotter(s MemorySnapshotter) OrchestratorOption {
	return func(o *Orchestrator) { o.snapshots = s }
}

// WithRunObserver registers a callback invoked after every loop pass with a
// deep copy of the blackboard. The copy is safe to retain and read while the
// run keeps mutating its own record.
func WithRunObserver(fn func(*core.Blackboard)) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithActionTimeout bounds each action execution.
func WithActionTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.actionTimeout = d }
}

// NewOrchestrator creates an orchestrator. Collaborators not provided are
// replaced by safe defaults: a planner without a language model falls back to
// deterministic goals and actions, and missing executors report failure
// instead of acting.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		logger:        logging.NewNop(),
		actionTimeout: DefaultActionTimeout,
		sleep:         sleepWithContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.planner == nil {
		o.planner = NewPlanner(WithPlannerLogger(o.logger))
	}
	if o.retries == nil {
		o.retries = NewRetryCoordinator()
	}
	if o.safety == nil {
		o.safety = NewSafetyGate(WithSafetyLogger(o.logger))
	}
	if o.voter == nil {
		o.voter = NewCompletionVoter(WithVoterStore(o.store), WithVoterLogger(o.logger))
	}
	return o
}

// SetRunObserver replaces the progress callback. Callers sharing an
// orchestrator must set it before any run starts.
func (o *Orchestrator) SetRunObserver(fn func(*core.Blackboard)) {
	o.observer = fn
}

func (o *Orchestrator) publishProgress(bb *core.Blackboard) {
	if o.observer == nil {
		return
	}
	o.observer(bb.Clone())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the workflow for one blackboard until completion. The
// returned blackboard is the same record, mutated in place; it is returned
// for caller convenience. A non-nil error means the run itself failed
// (invalid blackboard or cancelled context), as opposed to in-loop step
// failures, which are recorded in blackboard error fields.
func (o *Orchestrator) Run(ctx context.Context, bb *core.Blackboard) (*core.Blackboard, error) {
	if bb == nil {
		return nil, core.ErrState("NIL_BLACKBOARD", "run requires a blackboard")
	}
	if err := bb.Validate(); err != nil {
		return bb, err
	}

	log := o.logger.WithSession(bb.SessionID.String())
	log.Info("run started", "goal", bb.Goal, "max_iterations", bb.MaxIterations)

	for {
		if err := ctx.Err(); err != nil {
			return bb, core.ErrTimeout("run cancelled").WithCause(err)
		}

		// Each loop pass is one step of work with its own retry scope.
		bb.StepID = uuid.New()
		bb.Retry = core.RetrySection{}
		bb.Safety = core.SafetySection{}

		o.stepGoalGeneration(ctx, bb)
		o.stepOptimization(bb)
		o.stepPerception(ctx, bb)
		if bb.Planning.SkipPlanning {
			bb.Action.Request = o.planner.DeriveAction(bb)
		} else {
			o.stepPlanning(ctx, bb)
		}
		o.stepOverride(ctx, bb)
		o.stepAction(ctx, bb)
		o.stepMemoryRecord(ctx, bb)

		done := o.stepCompletionCheck(ctx, bb)
		o.publishProgress(bb)
		if done {
			break
		}
	}

	o.finalizeGoalRecord(ctx, bb)
	if pruned := o.retries.Cleanup(retryStateMaxAge); pruned > 0 {
		log.Debug("pruned stale retry state", "entries", pruned)
	}
	log.Info("run finished",
		"iterations", bb.LoopCounter,
		"goal_complete", bb.GoalComplete,
		"status", bb.StatusMessage)
	return bb, nil
}

// stepGoalGeneration produces the goal for this pass. A caller-supplied goal
// is kept on the first pass; afterwards the language model proposes the next
// goal unless optimization decided to skip generation.
func (o *Orchestrator) stepGoalGeneration(ctx context.Context, bb *core.Blackboard) {
	if bb.Planning.SkipGoalGeneration {
		o.logger.Debug("skipping goal generation", "reason", skipGoalGenReason)
	} else if bb.Goal == "" || bb.LoopCounter > 0 {
		o.planner.GenerateGoal(ctx, bb)
	}
	o.persistGoalRecord(ctx, bb)
}

// persistGoalRecord creates the goal row the first time a goal text exists,
// then rescores priorities across the session's active goals.
func (o *Orchestrator) persistGoalRecord(ctx context.Context, bb *core.Blackboard) {
	if bb.Goal == "" || bb.GoalID != uuid.Nil {
		return
	}
	if o.store == nil {
		o.logger.Warn("no goal store configured, goal will not be persisted")
		return
	}

	goal := core.NewGoal(bb.SessionID, bb.Goal)
	goal.Status = core.GoalStatusInProgress
	if err := o.store.SaveGoal(ctx, goal); err != nil {
		o.logger.Warn("failed to persist goal", "error", err)
		return
	}
	bb.GoalID = goal.ID

	if o.scorer != nil {
		if _, err := o.scorer.UpdateGoalPriorities(ctx, bb.SessionID); err != nil {
			o.logger.Warn("goal prioritization failed", "error", err)
		}
	}
}

// stepOptimization decides which upcoming steps can be skipped based on the
// previous pass's outcome, and records every skip on the audit trail.
func (o *Orchestrator) stepOptimization(bb *core.Blackboard) {
	planning := &bb.Planning
	planning.SkipPlanning = false
	planning.SkipGoalGeneration = false

	if bb.Action.Succeeded() && planning.HasRemainingSteps() {
		planning.SkipPlanning = true
		planning.Optimization.RecordSkip("planning", skipPlanningReason, skipPlanningSavedSecs)
		planning.CurrentStepIndex++
	}

	if !bb.GoalComplete && bb.LoopCounter > 1 &&
		bb.Action.Succeeded() && len(planning.Steps) > 0 &&
		planning.CurrentStepIndex < len(planning.Steps) {
		planning.SkipGoalGeneration = true
		planning.Optimization.RecordSkip("goal_generation", skipGoalGenReason, skipGoalGenSavedSecs)
	}
}

// stepPerception captures and reads the screen. Failures are recorded and
// the pass continues without fresh vision state.
func (o *Orchestrator) stepPerception(ctx context.Context, bb *core.Blackboard) {
	if o.vision == nil {
		return
	}

	img, err := o.vision.Capture(ctx)
	if err != nil {
		bb.Vision.Err = err.Error()
		o.logger.Warn("screen capture failed", "error", err)
		return
	}
	bb.Vision.ScreenshotPath = img.Path

	text, err := o.vision.OCR(ctx, img)
	if err != nil {
		bb.Vision.Err = err.Error()
		o.logger.Warn("ocr failed", "error", err)
		return
	}
	bb.Vision.State = text
	bb.Vision.Summary = truncateHead(text, 200)
	bb.Vision.Timestamp = time.Now()
	bb.Vision.Err = ""
}

func (o *Orchestrator) stepPlanning(ctx context.Context, bb *core.Blackboard) {
	o.planner.BuildPlan(ctx, bb)
}

// stepOverride applies a pending override and carries registry intents onto
// the blackboard or the store. The registry itself never touches either.
func (o *Orchestrator) stepOverride(ctx context.Context, bb *core.Blackboard) {
	if o.overrides == nil || bb.Override.PendingID == uuid.Nil {
		return
	}

	result := o.overrides.Apply(bb.Override.PendingID)
	bb.Override.Outcome = &result
	bb.Override.PendingID = uuid.Nil

	if !result.Success {
		o.logger.Warn("override application failed", "message", result.Message)
		return
	}
	o.logger.Info("override applied", "message", result.Message)

	if result.Intent != nil {
		o.applyIntent(ctx, bb, result.Intent)
	}
}

// applyIntent executes an override intent against the blackboard or store.
func (o *Orchestrator) applyIntent(ctx context.Context, bb *core.Blackboard, intent *core.OverrideIntent) {
	switch {
	case intent.Target == core.OverrideTargetPrioritization && intent.Action == core.OverrideActionSetPriority:
		if o.store == nil {
			o.logger.Warn("no goal store configured, ignoring priority override")
			return
		}
		goalID, err := uuid.Parse(stringParam(intent.Params, "goal_id"))
		if err != nil {
			o.logger.Warn("priority override carries invalid goal_id", "error", err)
			return
		}
		priority, _ := intent.Params["priority"].(int)
		audit := map[string]interface{}{
			"source":     "override",
			"updated_at": time.Now().Format(time.RFC3339),
		}
		if err := o.store.UpdateGoalPriority(ctx, goalID, priority, audit); err != nil {
			o.logger.Warn("priority override persistence failed", "error", err)
		}

	case intent.Target == core.OverrideTargetAgentState && intent.Action == core.OverrideActionSetField:
		o.setBlackboardField(bb, stringParam(intent.Params, "field"), intent.Params["value"])

	default:
		o.logger.Warn("unhandled override intent",
			"target", intent.Target, "action", intent.Action)
	}
}

// setBlackboardField mutates one of the adjustable blackboard fields.
func (o *Orchestrator) setBlackboardField(bb *core.Blackboard, field string, value interface{}) {
	switch field {
	case "goal":
		if s, ok := value.(string); ok {
			bb.Goal = s
		}
	case "user_context":
		if s, ok := value.(string); ok {
			bb.UserContext = s
		}
	case "max_iterations":
		switch v := value.(type) {
		case int:
			bb.MaxIterations = v
		case float64:
			bb.MaxIterations = int(v)
		}
	case "goal_complete":
		if b, ok := value.(bool); ok {
			bb.GoalComplete = b
		}
	default:
		o.logger.Warn("override targets unknown blackboard field", "field", field)
	}
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

// stepAction gates the pending action through safety, routes it to the
// matching executor, and retries failures with backoff. Executor absence and
// safety blocks surface as failed outcomes, never as run errors.
func (o *Orchestrator) stepAction(ctx context.Context, bb *core.Blackboard) {
	action := bb.Action.Request
	if action == nil {
		action = core.DefaultAction()
		bb.Action.Request = action
	}

	if blocked := o.gateAction(bb, action); blocked {
		return
	}

	exec := o.desktop
	if action.IsBrowser() {
		exec = o.browser
	}
	if exec == nil {
		bb.Action.SetOutcome(false, fmt.Sprintf("no executor configured for action type %q", action.Type))
		bb.Action.Err = "no executor configured"
		return
	}

	result := o.executeWithRetry(ctx, bb, exec, action)
	bb.Action.SetOutcome(result.Success, result.Message)
	bb.Action.CompletedGoal = result.CompletedGoal
	if result.TerminalOutput != "" || action.IsTerminal() {
		bb.Action.TerminalOutput = result.TerminalOutput
		bb.Action.TerminalExit = result.ExitCode
	}
}

// gateAction runs terminal commands and code snippets through the safety
// gate. Returns true when the action was blocked.
func (o *Orchestrator) gateAction(bb *core.Blackboard, action *core.Action) bool {
	var kind, content string
	switch {
	case action.IsTerminal():
		kind = SafetyKindCommand
		content, _ = action.ParamString("command")
	case action.Type == core.ActionTypeCode:
		kind = SafetyKindCode
		content, _ = action.ParamString("code")
	default:
		return false
	}

	decision := o.safety.HandleUnsafeAction(kind, content)
	bb.Safety.Decision = &decision
	if decision.Status != core.SafetyBlocked {
		return false
	}

	bb.Safety.Blocked = true
	bb.Safety.BlockReason = decision.Reason
	bb.Action.SetOutcome(false, decision.Message)
	if action.IsTerminal() {
		bb.Action.TerminalOutput = "Command blocked for safety."
		bb.Action.TerminalExit = -2
	}
	o.logger.Warn("action blocked by safety gate", "reason", decision.Reason)
	return true
}

// executeWithRetry runs the action, recording failed attempts with the
// retry coordinator and sleeping out the backoff window between attempts.
func (o *Orchestrator) executeWithRetry(ctx context.Context, bb *core.Blackboard, exec core.ActionExecutor, action *core.Action) core.ExecutionResult {
	stepKey := bb.StepID.String()
	o.retries.StartTracking(stepKey, 0, 0, 0)

	for {
		result := exec.Execute(ctx, action, o.actionTimeout)
		if result.Success {
			bb.Retry.Retrying = false
			o.retries.StopTracking(stepKey)
			return result
		}

		o.retries.RecordAttempt(stepKey, errors.New(result.Message))
		info := o.retries.Info(stepKey)
		bb.Retry.Info = info
		bb.Retry.Count = info.Attempts

		if !o.retries.ShouldRetry(stepKey) {
			bb.Retry.Retrying = false
			bb.Retry.MaxRetriesReached = true
			bb.Retry.StepFailed = true
			bb.Retry.StepError = result.Message
			return result
		}

		bb.Retry.Retrying = true
		o.logger.Info("retrying action",
			"attempt", info.Attempts, "next_attempt", info.NextAttemptTime)
		if err := o.sleep(ctx, time.Until(info.NextAttemptTime)); err != nil {
			bb.Retry.Retrying = false
			bb.Retry.StepFailed = true
			bb.Retry.StepError = err.Error()
			return result
		}
	}
}

// stepMemoryRecord appends this pass's observation-action pair to the event
// store. Without a store this is a logged no-op.
func (o *Orchestrator) stepMemoryRecord(ctx context.Context, bb *core.Blackboard) {
	defer o.handleSnapshotRequests(ctx, bb)

	if o.store == nil {
		o.logger.Warn("no goal store configured, skipping memory record")
		return
	}

	event := &core.MemoryEvent{
		ID:             uuid.New(),
		SessionID:      bb.SessionID,
		GoalID:         bb.GoalID,
		StepID:         bb.StepID,
		Action:         describeAction(bb.Action.Request),
		ActionResult:   bb.Action.Result,
		VisionState:    bb.Vision.State,
		TerminalOutput: bb.Action.TerminalOutput,
		Timestamp:      time.Now(),
	}
	if err := o.store.AppendEvent(ctx, event); err != nil {
		bb.Memory.Err = err.Error()
		o.logger.Warn("memory record failed", "error", err)
		return
	}
	bb.Memory.Err = ""
}

// handleSnapshotRequests services export and import requests raised on the
// memory section. Request flags are consumed whether or not they succeed.
func (o *Orchestrator) handleSnapshotRequests(ctx context.Context, bb *core.Blackboard) {
	if bb.Memory.ExportRequested {
		bb.Memory.ExportRequested = false
		switch {
		case o.snapshots == nil:
			bb.Memory.ExportErr = "no snapshot manager configured"
		default:
			path, err := o.snapshots.Export(ctx, bb.SessionID)
			if err != nil {
				bb.Memory.ExportErr = err.Error()
				o.logger.Warn("memory export failed", "error", err)
			} else {
				bb.Memory.ExportPath = path
				bb.Memory.ExportErr = ""
			}
		}
	}

	if bb.Memory.ImportRequested {
		bb.Memory.ImportRequested = false
		switch {
		case o.snapshots == nil:
			bb.Memory.ImportErr = "no snapshot manager configured"
		default:
			if _, err := o.snapshots.Import(ctx, bb.Memory.ImportPath); err != nil {
				bb.Memory.ImportErr = err.Error()
				o.logger.Warn("memory import failed", "error", err)
			} else {
				bb.Memory.ImportErr = ""
			}
		}
	}
}

func describeAction(action *core.Action) string {
	if action == nil {
		return ""
	}
	data, err := json.Marshal(action)
	if err != nil {
		return action.Type
	}
	return string(data)
}

// stepCompletionCheck consults the voter, increments the loop counter, and
// evaluates the completion predicate. The counter moves before any other
// logic so the run terminates within the iteration budget even when every
// completion signal stays false.
func (o *Orchestrator) stepCompletionCheck(ctx context.Context, bb *core.Blackboard) bool {
	o.consultVoter(ctx, bb)

	bb.LoopCounter++

	complete := strings.Contains(strings.ToLower(bb.Goal), core.CompletionMarker) ||
		bb.LoopCounter >= bb.MaxIterations ||
		bb.GoalComplete ||
		(bb.Action.Succeeded() && bb.Action.CompletedGoal)

	bb.GoalComplete = complete
	if !complete {
		return false
	}

	if !strings.Contains(bb.Goal, core.CompletionSuffix) {
		bb.Goal += core.CompletionSuffix
	}
	if bb.LoopCounter >= bb.MaxIterations {
		bb.StatusMessage = fmt.Sprintf("Goal processing stopped after reaching maximum iterations (%d)", bb.MaxIterations)
	} else {
		bb.StatusMessage = "Goal processing completed successfully"
	}
	o.logger.Info("goal complete", "iterations", bb.LoopCounter)
	return true
}

// consultVoter runs the multi-criteria completion check and acts on its
// verdict only at or above the confidence threshold. Below it the decision
// is logged but the goal stays open.
func (o *Orchestrator) consultVoter(ctx context.Context, bb *core.Blackboard) {
	if o.voter == nil || bb.Goal == "" {
		return
	}

	result := o.voter.CheckCompletion(ctx, bb)
	if !result.Completed {
		return
	}
	if result.Confidence < o.voter.Threshold() {
		o.logger.Info("completion vote below threshold",
			"confidence", result.Confidence, "success", result.Success)
		return
	}

	if result.Success {
		bb.GoalComplete = true
	} else {
		bb.GoalFailed = true
		bb.GoalFailedReason = result.Explanation
	}
	if err := o.voter.RecordVerdict(ctx, bb, result); err != nil {
		o.logger.Warn("failed to record completion verdict", "error", err)
	}
}

// finalizeGoalRecord settles the goal's terminal status after the run. The
// voter may already have recorded a verdict; re-recording the same terminal
// status is harmless.
func (o *Orchestrator) finalizeGoalRecord(ctx context.Context, bb *core.Blackboard) {
	if o.store == nil || bb.GoalID == uuid.Nil {
		return
	}

	status := core.GoalStatusCompleted
	if bb.GoalFailed {
		status = core.GoalStatusFailed
	}
	update := core.StatusUpdate{
		Status: status,
		Metadata: map[string]interface{}{
			"iterations":     bb.LoopCounter,
			"status_message": bb.StatusMessage,
		},
	}
	if err := o.store.UpdateGoalStatus(ctx, bb.GoalID, update); err != nil {
		o.logger.Warn("failed to finalize goal status", "error", err)
	}
}
