package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// Criterion names, used as keys for weights and in result details.
const (
	CriterionExplicitFlag   = "explicit_flag"
	CriterionActionResult   = "action_result"
	CriterionVisionState    = "vision_state"
	CriterionTerminalOutput = "terminal_output"
	CriterionUIText         = "ui_text"
	CriterionLLMJudgment    = "llm_judgment"
)

// DefaultConfidenceThreshold gates acting on a completion verdict.
const DefaultConfidenceThreshold = 0.7

// DefaultCriterionWeights returns the standard per-criterion weights.
func DefaultCriterionWeights() map[string]float64 {
	return map[string]float64{
		CriterionExplicitFlag:   1.0,
		CriterionActionResult:   0.7,
		CriterionVisionState:    0.6,
		CriterionTerminalOutput: 0.8,
		CriterionUIText:         0.7,
		CriterionLLMJudgment:    0.9,
	}
}

// Vote is one criterion's verdict. Decided=false means the criterion had
// no usable signal and abstains from aggregation.
type Vote struct {
	Decided     bool
	Success     bool
	Confidence  float64
	Explanation string
}

func abstain(explanation string) Vote {
	return Vote{Explanation: explanation}
}

func voteFor(success bool, confidence float64, explanation string) Vote {
	return Vote{Decided: true, Success: success, Confidence: confidence, Explanation: explanation}
}

// CriterionResult is one participating criterion's contribution.
type CriterionResult struct {
	Criterion          string  `json:"criterion"`
	Success            bool    `json:"success"`
	Confidence         float64 `json:"confidence"`
	Weight             float64 `json:"weight"`
	WeightedConfidence float64 `json:"weighted_confidence"`
	Explanation        string  `json:"explanation"`
}

// CompletionResult is the aggregated verdict over all criteria.
type CompletionResult struct {
	Completed    bool              `json:"completed"`
	Success      bool              `json:"success"`
	Confidence   float64           `json:"confidence"`
	SuccessScore float64           `json:"success_score"`
	Explanation  string            `json:"explanation"`
	Details      []CriterionResult `json:"details,omitempty"`
}

// Pattern vocabularies. Within a criterion, success patterns are checked
// before failure patterns and the first match wins.
var (
	actionSuccessPatterns = compilePatterns(
		`success(fully)?`, `completed`, `clicked`, `found`,
		`created`, `added`, `installed`,
	)
	actionFailurePatterns = compilePatterns(
		`fail(ed|ure)?`, `error`, `exception`, `not found`,
		`invalid`, `missing`, `unable`,
	)

	visionSuccessPatterns = compilePatterns(
		`success(fully)?`, `completed`, `done`, `finished`,
		`created`, `installed`, `ready`,
	)
	visionFailurePatterns = compilePatterns(
		`fail(ed|ure)?`, `error`, `exception`, `not found`,
		`invalid`, `missing`, `unable`,
	)

	terminalSuccessPatterns = compilePatterns(
		`success(fully)?`, `completed`, `saved`, `created`, `installed`,
		`BUILD SUCCESS`, `PASSED`, `OK`, `100%`,
	)
	terminalFailurePatterns = compilePatterns(
		`fail(ed|ure)?`, `error`, `exception`, `not found`,
		`invalid`, `missing`, `unable`, `FAILED`, `BUILD FAILED`,
		`Traceback`, `Error:`, `fatal:`,
	)

	uiSuccessPatterns = compilePatterns(
		`success(fully)?`, `completed`, `done`, `finished`,
		`congrats`, `congratulations`, `thank you`,
	)
	uiFailurePatterns = compilePatterns(
		`fail(ed|ure)?`, `error`, `exception`, `not found`,
		`invalid`, `retry`, `try again`,
	)
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// matchVote scans success patterns first, then failure patterns.
func matchVote(text string, success, failure []*regexp.Regexp, confidence float64, successMsg, failureMsg string) Vote {
	for _, re := range success {
		if re.MatchString(text) {
			return voteFor(true, confidence, successMsg)
		}
	}
	for _, re := range failure {
		if re.MatchString(text) {
			return voteFor(false, confidence, failureMsg)
		}
	}
	return abstain("no clear success/failure indicators")
}

// completionSystemPrompt instructs the model to judge goal completion.
const completionSystemPrompt = `You are the goal completion detector for an autonomous desktop agent. Analyze the original goal, the current state of the environment, results of recent actions and terminal output, and determine whether the goal has been successfully completed.

Rate the goal completion on a scale from 0.0 to 1.0 where:
- 0.0: complete failure, goal not achieved at all
- 0.5: partial success, goal partially achieved
- 1.0: complete success, goal fully achieved

Respond with JSON only:
{
    "success_score": 0.0-1.0,
    "status": "completed"|"failed"|"in_progress",
    "explanation": "explanation of the score"
}`

// llmVerdict mirrors the JSON shape the model is asked to produce.
type llmVerdict struct {
	SuccessScore float64 `json:"success_score"`
	Status       string  `json:"status"`
	Explanation  string  `json:"explanation"`
}

// CompletionVoter judges goal completion by aggregating independent
// criteria over the blackboard.
type CompletionVoter struct {
	weights   map[string]float64
	threshold float64
	llm       core.LLMClient
	store     core.GoalStore
	logger    *logging.Logger
}

// VoterOption configures a CompletionVoter.
type VoterOption func(*CompletionVoter)

// WithVoterLLM enables the LLM judgment criterion.
func WithVoterLLM(llm core.LLMClient) VoterOption {
	return func(v *CompletionVoter) {
		v.llm = llm
	}
}

// WithVoterStore sets the goal store used to persist verdicts.
func WithVoterStore(store core.GoalStore) VoterOption {
	return func(v *CompletionVoter) {
		v.store = store
	}
}

// WithVoterThreshold overrides the confidence threshold.
func WithVoterThreshold(threshold float64) VoterOption {
	return func(v *CompletionVoter) {
		v.threshold = threshold
	}
}

// WithVoterWeights overrides individual criterion weights.
func WithVoterWeights(weights map[string]float64) VoterOption {
	return func(v *CompletionVoter) {
		for k, w := range weights {
			v.weights[k] = w
		}
	}
}

// WithVoterLogger sets the logger.
func WithVoterLogger(logger *logging.Logger) VoterOption {
	return func(v *CompletionVoter) {
		v.logger = logger
	}
}

// NewCompletionVoter creates a voter with default weights and threshold.
func NewCompletionVoter(opts ...VoterOption) *CompletionVoter {
	v := &CompletionVoter{
		weights:   DefaultCriterionWeights(),
		threshold: DefaultConfidenceThreshold,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Threshold returns the confidence threshold for acting on a verdict.
func (v *CompletionVoter) Threshold() float64 {
	return v.threshold
}

func (v *CompletionVoter) checkExplicitFlag(bb *core.Blackboard) Vote {
	if bb.GoalComplete {
		return voteFor(true, 1.0, "explicit goal_complete flag is set")
	}
	if bb.GoalFailed {
		reason := bb.GoalFailedReason
		if reason == "" {
			reason = "no reason given"
		}
		return voteFor(false, 1.0, fmt.Sprintf("explicit goal_failed flag is set: %s", reason))
	}
	return abstain("no explicit success/failure flags")
}

func (v *CompletionVoter) checkActionResult(bb *core.Blackboard) Vote {
	result := bb.Action.Result
	if result == "" {
		return abstain("no action result")
	}
	return matchVote(result, actionSuccessPatterns, actionFailurePatterns, 0.7,
		fmt.Sprintf("action result indicates success: %s", truncateHead(result, 100)),
		fmt.Sprintf("action result indicates failure: %s", truncateHead(result, 100)))
}

func (v *CompletionVoter) checkVisionState(bb *core.Blackboard) Vote {
	summary := bb.Vision.Summary
	if summary == "" {
		return abstain("no vision data")
	}
	return matchVote(summary, visionSuccessPatterns, visionFailurePatterns, 0.6,
		fmt.Sprintf("vision summary indicates success: %s", truncateHead(summary, 100)),
		fmt.Sprintf("vision summary indicates failure: %s", truncateHead(summary, 100)))
}

func (v *CompletionVoter) checkTerminalOutput(bb *core.Blackboard) Vote {
	output := bb.Action.TerminalOutput
	if output == "" {
		return abstain("no terminal output")
	}
	return matchVote(output, terminalSuccessPatterns, terminalFailurePatterns, 0.8,
		"terminal output indicates success",
		"terminal output indicates failure")
}

func (v *CompletionVoter) checkUIText(bb *core.Blackboard) Vote {
	if len(bb.Vision.UITexts) == 0 {
		return abstain("no UI element data")
	}
	for _, text := range bb.Vision.UITexts {
		vote := matchVote(text, uiSuccessPatterns, uiFailurePatterns, 0.7,
			fmt.Sprintf("UI text indicates success: %s", truncateHead(text, 100)),
			fmt.Sprintf("UI text indicates failure: %s", truncateHead(text, 100)))
		if vote.Decided {
			return vote
		}
	}
	return abstain("no clear success/failure indicators in UI elements")
}

func (v *CompletionVoter) checkLLMJudgment(ctx context.Context, bb *core.Blackboard) Vote {
	if v.llm == nil {
		return abstain("no LLM configured")
	}
	if bb.Goal == "" {
		return abstain("no goal specified")
	}

	var steps []string
	for i, step := range bb.Planning.Steps {
		if i < bb.Planning.CurrentStepIndex {
			steps = append(steps, step.Name)
		}
	}
	stepsCompleted := "None"
	if len(steps) > 0 {
		stepsCompleted = strings.Join(steps, ", ")
	}

	userContent := fmt.Sprintf(`Goal: %s

Current vision state summary: %s

Latest action result: %s

Terminal output: %s

Steps completed: %s

Has this goal been successfully completed? Rate the success on a scale from 0.0 to 1.0.`,
		bb.Goal,
		bb.Vision.Summary,
		bb.Action.Result,
		truncateTail(bb.Action.TerminalOutput, 500),
		stepsCompleted,
	)

	reply, err := v.llm.Complete(ctx, core.CompletionRequest{
		SystemPrompt: completionSystemPrompt,
		UserContent:  userContent,
		MaxTokens:    500,
		Temperature:  0.2,
	})
	if err != nil {
		v.logger.Error("LLM completion criterion error", "error", err)
		return abstain(fmt.Sprintf("error in LLM evaluation: %v", err))
	}

	if raw := extractJSONObject(reply); raw != "" {
		var verdict llmVerdict
		if err := json.Unmarshal([]byte(raw), &verdict); err == nil {
			explanation := verdict.Explanation
			if explanation == "" {
				explanation = "no explanation provided"
			}
			switch {
			case verdict.Status == "completed" || verdict.SuccessScore > 0.8:
				return voteFor(true, verdict.SuccessScore, explanation)
			case verdict.Status == "failed" || verdict.SuccessScore < 0.2:
				return voteFor(false, verdict.SuccessScore, explanation)
			default:
				return abstain(explanation)
			}
		}
	}

	// Non-JSON reply: fall back to keyword sniffing with reduced confidence.
	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, "success") || strings.Contains(lower, "completed"):
		return voteFor(true, 0.7, fmt.Sprintf("LLM indicates success: %s", truncateHead(reply, 100)))
	case strings.Contains(lower, "fail") || strings.Contains(lower, "not achieved"):
		return voteFor(false, 0.3, fmt.Sprintf("LLM indicates failure: %s", truncateHead(reply, 100)))
	}
	return abstain(fmt.Sprintf("unclear LLM evaluation (non-JSON): %s", truncateHead(reply, 100)))
}

// CheckCompletion evaluates all criteria and aggregates their votes.
// Criteria without a usable signal abstain. Majority is by vote count;
// confidence and success score are weighted.
func (v *CompletionVoter) CheckCompletion(ctx context.Context, bb *core.Blackboard) CompletionResult {
	if bb.Goal == "" {
		return CompletionResult{
			Completed:   false,
			Success:     false,
			Confidence:  1.0,
			Explanation: "no goal specified",
		}
	}

	type namedCheck struct {
		name string
		run  func() Vote
	}
	checks := []namedCheck{
		{CriterionExplicitFlag, func() Vote { return v.checkExplicitFlag(bb) }},
		{CriterionActionResult, func() Vote { return v.checkActionResult(bb) }},
		{CriterionVisionState, func() Vote { return v.checkVisionState(bb) }},
		{CriterionTerminalOutput, func() Vote { return v.checkTerminalOutput(bb) }},
		{CriterionUIText, func() Vote { return v.checkUIText(bb) }},
		{CriterionLLMJudgment, func() Vote { return v.checkLLMJudgment(ctx, bb) }},
	}

	var details []CriterionResult
	for _, check := range checks {
		vote := check.run()
		if !vote.Decided {
			continue
		}
		weight, ok := v.weights[check.name]
		if !ok {
			weight = 0.5
		}
		details = append(details, CriterionResult{
			Criterion:          check.name,
			Success:            vote.Success,
			Confidence:         vote.Confidence,
			Weight:             weight,
			WeightedConfidence: vote.Confidence * weight,
			Explanation:        vote.Explanation,
		})
	}

	if len(details) == 0 {
		return CompletionResult{
			Explanation: "insufficient data to determine goal completion",
		}
	}

	successVotes, failureVotes := 0, 0
	successConfidence, failureConfidence := 0.0, 0.0
	for _, d := range details {
		if d.Success {
			successVotes++
			successConfidence += d.WeightedConfidence
		} else {
			failureVotes++
			failureConfidence += d.WeightedConfidence
		}
	}
	totalConfidence := successConfidence + failureConfidence

	completed := successVotes > 0 || failureVotes > 0
	success := successVotes > failureVotes

	confidence := 0.0
	successScore := 0.0
	if totalConfidence > 0 {
		if success {
			confidence = successConfidence / totalConfidence
		} else {
			confidence = failureConfidence / totalConfidence
		}
		successScore = successConfidence / totalConfidence
	}

	var explanation string
	switch {
	case completed && success:
		explanation = fmt.Sprintf("Goal completed successfully with %.2f confidence", confidence)
	case completed:
		explanation = fmt.Sprintf("Goal failed with %.2f confidence", confidence)
	default:
		explanation = "Goal completion status unclear"
	}

	return CompletionResult{
		Completed:    completed,
		Success:      completed && success,
		Confidence:   confidence,
		SuccessScore: successScore,
		Explanation:  explanation,
		Details:      details,
	}
}

// RecordVerdict persists a completion verdict to the goal store when it
// clears the confidence threshold; below the threshold the verdict is
// recorded on the blackboard only and the goal stays open.
func (v *CompletionVoter) RecordVerdict(ctx context.Context, bb *core.Blackboard, result CompletionResult) error {
	if !result.Completed || result.Confidence < v.threshold {
		return nil
	}
	if v.store == nil || bb.GoalID == uuid.Nil {
		return nil
	}

	score := result.SuccessScore
	status := core.GoalStatusCompleted
	if !result.Success {
		status = core.GoalStatusFailed
	}
	update := core.StatusUpdate{
		Status:       status,
		SuccessScore: &score,
		Metadata: map[string]interface{}{
			"completion_explanation": result.Explanation,
			"completion_confidence":  result.Confidence,
		},
	}
	if err := v.store.UpdateGoalStatus(ctx, bb.GoalID, update); err != nil {
		return core.ErrStore("failed to persist completion verdict").WithCause(err)
	}
	return nil
}
