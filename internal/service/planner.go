package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// FallbackGoal is used when goal generation cannot reach the language model.
const FallbackGoal = "Explore the current screen and report what you see (fallback goal)"

const goalGeneratorSystemPrompt = `You are the goal generator for an autonomous desktop agent. Given the current state, generate a clear, actionable goal for the agent to pursue next. Be concise and specific.`

const stepDecompositionPrompt = `You are the planner for an autonomous desktop agent, responsible for breaking down high-level goals into specific, actionable steps.
Given a goal, decompose it into a sequence of steps that the agent can execute.
Each step should be clear, concise, and actionable.

GOAL: %s

VISION STATE: %s

Your task is to break down this goal into 3-7 specific steps.
Return your response as JSON with this structure:
{
  "steps": [
    {"name": "Step name", "description": "Detailed step description", "estimated_duration": "30s"}
  ]
}

Be specific and concrete about each action the agent should take.`

const contextIncorporationPrompt = `You are the planner for an autonomous desktop agent, responsible for refining plans based on memory context.
Review the goal, initial plan, and memory context to create an improved plan.

GOAL: %s

INITIAL PLAN: %s

MEMORY CONTEXT: %s

VISION STATE: %s

Your task is to refine the initial plan incorporating context from memory.
Return your response as JSON with this structure:
{
  "steps": [
    {"name": "Step name", "description": "Detailed step description", "estimated_duration": "30s"}
  ],
  "context_utilized": "Brief explanation of how memory context informed this plan"
}

Be specific and concrete about each action. Consider what you've learned from past interactions in your plan.`

const selfCritiquePrompt = `You are the planner for an autonomous desktop agent, conducting a self-critique of your plan.
Analyze the current plan for potential issues and suggest improvements.

GOAL: %s

CURRENT PLAN: %s

VISION STATE: %s

Your task is to critique this plan and improve it:
1. Identify potential issues, inefficiencies, or missing steps
2. Suggest improvements or alternative approaches
3. Produce a refined plan that addresses these issues

Return your response as JSON with this structure:
{
  "critique": [
    {"issue": "Description of issue", "impact": "Why this matters", "recommendation": "How to fix it"}
  ],
  "improved_steps": [
    {"name": "Step name", "description": "Detailed step description", "estimated_duration": "30s"}
  ]
}

Be constructively critical and focus on making the plan more robust, efficient, and likely to succeed.`

// Planner turns goals into ordered step plans and derives concrete actions
// from plan steps. Planning runs three LLM phases: decomposition, memory
// context incorporation, and self-critique. Every phase degrades gracefully;
// a total planning failure still yields a neutral fallback action.
type Planner struct {
	llm    core.LLMClient
	store  core.GoalStore
	logger *logging.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerLLM sets the language-model collaborator.
func WithPlannerLLM(llm core.LLMClient) PlannerOption {
	return func(p *Planner) { p.llm = llm }
}

// WithPlannerStore sets the goal store used for memory context retrieval.
func WithPlannerStore(store core.GoalStore) PlannerOption {
	return func(p *Planner) { p.store = store }
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(logger *logging.Logger) PlannerOption {
	return func(p *Planner) { p.logger = logger }
}

// NewPlanner creates a planner.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateGoal asks the language model for the next goal. On any failure the
// blackboard receives a deterministic fallback goal instead of an error.
func (p *Planner) GenerateGoal(ctx context.Context, bb *core.Blackboard) {
	userContent := bb.UserContext
	if userContent == "" {
		userContent = p.describeState(bb)
	}

	if p.llm == nil {
		bb.Goal = FallbackGoal
		return
	}

	reply, err := p.llm.Complete(ctx, core.CompletionRequest{
		SystemPrompt: goalGeneratorSystemPrompt,
		UserContent:  userContent,
		Temperature:  0.3,
		MaxTokens:    128,
	})
	if err != nil {
		p.logger.Warn("goal generation failed, using fallback goal", "error", err)
		bb.Goal = FallbackGoal
		return
	}
	goal := strings.TrimSpace(reply)
	if goal == "" {
		bb.Goal = FallbackGoal
		return
	}
	bb.Goal = goal
	p.logger.Info("generated goal", "goal", goal)
}

// describeState summarizes the blackboard for the goal generator when the
// caller supplied no user context.
func (p *Planner) describeState(bb *core.Blackboard) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Iteration %d of %d.", bb.LoopCounter, bb.MaxIterations)
	if bb.Goal != "" {
		fmt.Fprintf(&sb, " Previous goal: %s.", bb.Goal)
	}
	if bb.Action.Result != "" {
		fmt.Fprintf(&sb, " Last action result: %s.", bb.Action.Result)
	}
	if bb.Vision.Summary != "" {
		fmt.Fprintf(&sb, " Screen: %s.", bb.Vision.Summary)
	}
	return sb.String()
}

type planPhaseResult struct {
	Steps           []core.PlanStep `json:"steps"`
	ContextUtilized string          `json:"context_utilized"`
}

type planCritiqueResult struct {
	Critique []struct {
		Issue          string `json:"issue"`
		Impact         string `json:"impact"`
		Recommendation string `json:"recommendation"`
	} `json:"critique"`
	ImprovedSteps []core.PlanStep `json:"improved_steps"`
}

// memoryContext is the planning context assembled from persisted events and
// sibling goals, serialized into the context incorporation prompt.
type memoryContext struct {
	RecentEvents []memoryContextEvent `json:"recent_events"`
	RelatedGoals []memoryContextGoal  `json:"related_goals"`
}

type memoryContextEvent struct {
	Timestamp string `json:"timestamp,omitempty"`
	Action    string `json:"action,omitempty"`
	Vision    string `json:"vision,omitempty"`
	Terminal  string `json:"terminal,omitempty"`
}

type memoryContextGoal struct {
	Text     string `json:"text"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// BuildPlan decomposes the current goal into steps, refines them with memory
// context, self-critiques the result, and stores the final plan with a
// derived first action. On failure it records the error and falls back to the
// neutral action so the run continues.
func (p *Planner) BuildPlan(ctx context.Context, bb *core.Blackboard) {
	initial, err := p.decompose(ctx, bb)
	if err != nil {
		p.logger.Warn("plan decomposition failed", "error", err)
		bb.Planning.Err = err.Error()
		bb.Action.Request = core.DefaultAction()
		return
	}

	refined := p.incorporateContext(ctx, bb, initial)
	final := p.selfCritique(ctx, bb, refined)

	bb.Planning.Steps = final
	bb.Planning.CurrentStepIndex = 0
	bb.Planning.GeneratedAt = time.Now()
	bb.Planning.Err = ""
	bb.Action.Request = p.DeriveAction(bb)

	p.logger.Info("generated plan", "steps", len(final), "action", bb.Action.Request.Type)
}

func (p *Planner) decompose(ctx context.Context, bb *core.Blackboard) ([]core.PlanStep, error) {
	if p.llm == nil {
		return nil, core.ErrLLM("no language model configured")
	}

	reply, err := p.llm.Complete(ctx, core.CompletionRequest{
		SystemPrompt: fmt.Sprintf(stepDecompositionPrompt, bb.Goal, p.visionContext(bb)),
		UserContent:  "Generate a step-by-step plan for this goal.",
		Temperature:  0.7,
		MaxTokens:    1000,
	})
	if err != nil {
		return nil, err
	}

	steps, _, err := parsePlanReply(reply)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, core.ErrLLM("plan decomposition returned no steps")
	}
	return steps, nil
}

// incorporateContext refines the plan with memory context. Any failure keeps
// the initial plan.
func (p *Planner) incorporateContext(ctx context.Context, bb *core.Blackboard, initial []core.PlanStep) []core.PlanStep {
	if p.llm == nil {
		return initial
	}

	initialJSON, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return initial
	}
	contextJSON, err := json.MarshalIndent(p.gatherMemoryContext(ctx, bb), "", "  ")
	if err != nil {
		return initial
	}

	reply, err := p.llm.Complete(ctx, core.CompletionRequest{
		SystemPrompt: fmt.Sprintf(contextIncorporationPrompt, bb.Goal, initialJSON, contextJSON, p.visionContext(bb)),
		UserContent:  "Refine this plan using the memory context.",
		Temperature:  0.7,
		MaxTokens:    1000,
	})
	if err != nil {
		p.logger.Debug("context incorporation failed, keeping initial plan", "error", err)
		return initial
	}

	steps, _, err := parsePlanReply(reply)
	if err != nil || len(steps) == 0 {
		return initial
	}
	return steps
}

// selfCritique asks the model to critique and improve the plan. Any failure
// keeps the current plan.
func (p *Planner) selfCritique(ctx context.Context, bb *core.Blackboard, current []core.PlanStep) []core.PlanStep {
	if p.llm == nil {
		return current
	}

	currentJSON, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return current
	}

	reply, err := p.llm.Complete(ctx, core.CompletionRequest{
		SystemPrompt: fmt.Sprintf(selfCritiquePrompt, bb.Goal, currentJSON, p.visionContext(bb)),
		UserContent:  "Critique and improve this plan.",
		Temperature:  0.7,
		MaxTokens:    1000,
	})
	if err != nil {
		p.logger.Debug("plan self-critique failed, keeping current plan", "error", err)
		return current
	}

	obj := extractJSONObject(reply)
	if obj == "" {
		return current
	}
	var critique planCritiqueResult
	if err := json.Unmarshal([]byte(obj), &critique); err != nil {
		return current
	}
	if len(critique.ImprovedSteps) == 0 {
		return current
	}
	return critique.ImprovedSteps
}

// gatherMemoryContext pulls recent events and sibling goals from the store.
// Errors are logged and produce a partial (possibly empty) context.
func (p *Planner) gatherMemoryContext(ctx context.Context, bb *core.Blackboard) memoryContext {
	mc := memoryContext{
		RecentEvents: []memoryContextEvent{},
		RelatedGoals: []memoryContextGoal{},
	}
	if p.store == nil {
		return mc
	}

	events, err := p.store.QueryEvents(ctx, core.EventQuery{GoalID: bb.GoalID, Limit: 5})
	if err != nil {
		p.logger.Debug("memory context event query failed", "error", err)
	}
	for _, ev := range events {
		mc.RecentEvents = append(mc.RecentEvents, memoryContextEvent{
			Timestamp: ev.Timestamp.Format(time.RFC3339),
			Action:    ev.Action,
			Vision:    truncateHead(ev.VisionState, 100),
			Terminal:  truncateHead(ev.TerminalOutput, 100),
		})
	}

	goals, err := p.store.GetActiveGoals(ctx, bb.SessionID, 3)
	if err != nil {
		p.logger.Debug("memory context goal query failed", "error", err)
	}
	for _, g := range goals {
		if g.ID == bb.GoalID {
			continue
		}
		mc.RelatedGoals = append(mc.RelatedGoals, memoryContextGoal{
			Text:     g.Text,
			Status:   string(g.Status),
			Priority: g.Priority,
		})
	}
	return mc
}

func (p *Planner) visionContext(bb *core.Blackboard) string {
	if bb.Vision.State == "" {
		return "No vision state available"
	}
	return truncateHead(bb.Vision.State, 1000)
}

// parsePlanReply extracts the first balanced JSON object from an LLM reply
// and decodes its steps.
func parsePlanReply(reply string) ([]core.PlanStep, string, error) {
	obj := extractJSONObject(reply)
	if obj == "" {
		return nil, "", core.ErrLLM("no JSON object in plan reply")
	}
	var result planPhaseResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, "", core.ErrLLM("malformed plan JSON").WithCause(err)
	}
	return result.Steps, result.ContextUtilized, nil
}

var (
	coordsPattern = regexp.MustCompile(`\((\d+),\s*(\d+)\)`)
	scrollPattern = regexp.MustCompile(`scroll\s+(\d+)`)
)

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// DeriveAction maps the current plan step's description onto a concrete
// action by keyword. Without a usable step it returns the neutral action.
func (p *Planner) DeriveAction(bb *core.Blackboard) *core.Action {
	step, ok := bb.Planning.CurrentStep()
	if !ok {
		return core.DefaultAction()
	}
	description := strings.ToLower(step.Description)

	switch {
	case containsAny(description, "type", "enter", "input"):
		text := ""
		if idx := strings.Index(description, "type"); idx >= 0 {
			text = strings.TrimSpace(description[idx+len("type"):])
			text = strings.Trim(text, `"'`)
			if cut := strings.Index(text, `"`); cut >= 0 {
				text = text[:cut]
			}
		}
		if text == "" {
			text = "Hello"
		}
		return core.NewAction(core.ActionTypeType).With("text", text)

	case containsAny(description, "click", "select", "press", "choose"):
		if strings.Contains(description, "click on") && strings.Contains(description, "at coordinates") {
			coordsText := description[strings.Index(description, "at coordinates")+len("at coordinates"):]
			if m := coordsPattern.FindStringSubmatch(coordsText); m != nil {
				x, _ := strconv.Atoi(m[1])
				y, _ := strconv.Atoi(m[2])
				return core.NewAction(core.ActionTypeClick).With("x", x).With("y", y)
			}
		}
		if strings.Contains(description, "click on") {
			candidate := description[strings.Index(description, "click on")+len("click on"):]
			candidate = strings.TrimSpace(candidate)
			if cut := strings.Index(candidate, "."); cut >= 0 {
				candidate = candidate[:cut]
			}
			candidate = strings.Trim(strings.TrimSpace(candidate), `"'`)
			if candidate != "" {
				return core.NewAction(core.ActionTypeClickTemplate).With("template_name", candidate)
			}
		}
		return core.DefaultAction()

	case containsAny(description, "scroll", "move page"):
		direction := "down"
		switch {
		case strings.Contains(description, "up"):
			direction = "up"
		case strings.Contains(description, "left"):
			direction = "left"
		case strings.Contains(description, "right"):
			direction = "right"
		}
		amount := 3
		if m := scrollPattern.FindStringSubmatch(description); m != nil {
			amount, _ = strconv.Atoi(m[1])
		}
		return core.NewAction(core.ActionTypeScroll).With("direction", direction).With("amount", amount)

	case containsAny(description, "drag", "move element"):
		return core.NewAction(core.ActionTypeDragAndDrop).
			With("start_x", 100).With("start_y", 100).
			With("end_x", 200).With("end_y", 200).
			With("duration", 0.5)

	case containsAny(description, "hover", "move mouse to"):
		return core.NewAction(core.ActionTypeHover).With("x", 150).With("y", 150).With("duration", 1.0)
	}

	return core.DefaultAction()
}
