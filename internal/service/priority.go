package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// PriorityWeights control the contribution of each scoring factor.
type PriorityWeights struct {
	UserPriority float64
	Urgency      float64
	Importance   float64
	Dependency   float64
	Resource     float64
}

// DefaultPriorityWeights returns the standard factor weights.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{
		UserPriority: 2.0,
		Urgency:      1.5,
		Importance:   1.2,
		Dependency:   1.0,
		Resource:     0.8,
	}
}

func (w PriorityWeights) total() float64 {
	return w.UserPriority + w.Urgency + w.Importance + w.Dependency + w.Resource
}

// urgencyKeywords bump urgency when found in the goal text.
var urgencyKeywords = []string{"urgent", "immediately", "asap", "emergency", "critical"}

// importanceKeywords add their value to importance when found in the goal
// text. A text containing several keywords accumulates all of them.
var importanceKeywords = map[string]float64{
	"critical":    0.4,
	"important":   0.3,
	"essential":   0.3,
	"crucial":     0.3,
	"key":         0.2,
	"major":       0.2,
	"significant": 0.2,
	"primary":     0.2,
}

// subScoreCap bounds every individual factor.
const subScoreCap = 2.0

// ScoredGoal pairs a goal with its computed priority and sub-scores.
type ScoredGoal struct {
	Goal             *core.Goal `json:"goal"`
	PriorityScore    float64    `json:"priority_score"`
	OriginalPriority int        `json:"original_priority"`
	Urgency          float64    `json:"urgency"`
	Importance       float64    `json:"importance"`
	DependencyScore  float64    `json:"dependency_score"`
}

// PriorityScorer assigns goals a priority in [1,5] from user priority,
// urgency, importance, dependencies and resource availability.
type PriorityScorer struct {
	weights PriorityWeights
	store   core.GoalStore
	logger  *logging.Logger
	now     func() time.Time
}

// PriorityOption configures a PriorityScorer.
type PriorityOption func(*PriorityScorer)

// WithPriorityWeights overrides the default factor weights.
func WithPriorityWeights(w PriorityWeights) PriorityOption {
	return func(s *PriorityScorer) {
		s.weights = w
	}
}

// WithPriorityStore sets the goal store used for persisting updates.
func WithPriorityStore(store core.GoalStore) PriorityOption {
	return func(s *PriorityScorer) {
		s.store = store
	}
}

// WithPriorityLogger sets the logger.
func WithPriorityLogger(logger *logging.Logger) PriorityOption {
	return func(s *PriorityScorer) {
		s.logger = logger
	}
}

// NewPriorityScorer creates a scorer with default weights.
func NewPriorityScorer(opts ...PriorityOption) *PriorityScorer {
	s := &PriorityScorer{
		weights: DefaultPriorityWeights(),
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateUrgency scores time sensitivity from deadline metadata and
// urgency keywords. Baseline 1.0, capped at 2.0.
func (s *PriorityScorer) EvaluateUrgency(goal *core.Goal) float64 {
	urgency := 1.0

	if deadline, ok := goal.MetaString("deadline"); ok {
		t, err := time.Parse(time.RFC3339, deadline)
		if err != nil {
			s.logger.Warn("invalid deadline format", "goal_id", goal.ID.String(), "deadline", deadline)
		} else {
			remaining := t.Sub(s.now())
			switch {
			case remaining <= 0:
				urgency = 2.0
			case remaining < time.Hour:
				urgency = 1.8
			case remaining < 24*time.Hour:
				urgency = 1.5
			case remaining < 72*time.Hour:
				urgency = 1.2
			}
		}
	}

	text := strings.ToLower(goal.Text)
	for _, kw := range urgencyKeywords {
		if strings.Contains(text, kw) {
			urgency += 0.5
			break
		}
	}

	return math.Min(urgency, subScoreCap)
}

// EvaluateImportance scores strategic importance from metadata and keyword
// hits. Baseline 1.0; a metadata override is clamped to [0.5, 2.0] before
// keywords add on top. Capped at 2.0.
func (s *PriorityScorer) EvaluateImportance(goal *core.Goal) float64 {
	importance := 1.0

	if v, ok := goal.MetaFloat("importance"); ok {
		importance = math.Min(math.Max(v, 0.5), 2.0)
	}

	text := strings.ToLower(goal.Text)
	for kw, value := range importanceKeywords {
		if strings.Contains(text, kw) {
			importance += value
		}
	}

	return math.Min(importance, subScoreCap)
}

// EvaluateDependencies scores a goal by the active goals depending on it
// plus an explicit blocking flag. Returns the score and the dependents.
func (s *PriorityScorer) EvaluateDependencies(goal *core.Goal, allGoals []*core.Goal) (float64, []*core.Goal) {
	score := 1.0
	var dependents []*core.Goal

	for _, other := range allGoals {
		if other.ParentGoalID != nil && *other.ParentGoalID == goal.ID {
			dependents = append(dependents, other)
			score += 0.2
		}
	}

	if goal.MetaBool("blocks_goals") {
		score += 0.5
	}

	return math.Min(score, subScoreCap), dependents
}

// Score computes the overall priority in [1,5], rounded to one decimal.
func (s *PriorityScorer) Score(goal *core.Goal, allGoals []*core.Goal) float64 {
	basePriority := float64(goal.Priority)
	urgency := s.EvaluateUrgency(goal)
	importance := s.EvaluateImportance(goal)
	dependency, _ := s.EvaluateDependencies(goal, allGoals)
	resourceAvail := 1.0 // Placeholder until resource tracking lands.

	weighted := basePriority*s.weights.UserPriority +
		urgency*s.weights.Urgency +
		importance*s.weights.Importance +
		dependency*s.weights.Dependency +
		resourceAvail*s.weights.Resource

	normalized := (weighted/s.weights.total())*4 + 1
	clamped := math.Min(math.Max(normalized, core.MinPriority), core.MaxPriority)
	return math.Round(clamped*10) / 10
}

// PrioritizeGoals scores each goal against the whole set and returns them
// sorted by descending priority.
func (s *PriorityScorer) PrioritizeGoals(goals []*core.Goal) []ScoredGoal {
	if len(goals) == 0 {
		return nil
	}

	scored := make([]ScoredGoal, 0, len(goals))
	for _, g := range goals {
		dep, _ := s.EvaluateDependencies(g, goals)
		scored = append(scored, ScoredGoal{
			Goal:             g,
			PriorityScore:    s.Score(g, goals),
			OriginalPriority: g.Priority,
			Urgency:          s.EvaluateUrgency(g),
			Importance:       s.EvaluateImportance(g),
			DependencyScore:  dep,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].PriorityScore > scored[j].PriorityScore
	})
	return scored
}

// UpdateGoalPriorities re-scores all active goals for the session and
// persists the new priority with an audit record, but only for goals whose
// rounded integer priority actually changed.
func (s *PriorityScorer) UpdateGoalPriorities(ctx context.Context, sessionID uuid.UUID) ([]ScoredGoal, error) {
	if s.store == nil {
		s.logger.Warn("no goal store configured, skipping goal prioritization")
		return nil, nil
	}

	active, err := s.store.GetActiveGoals(ctx, sessionID, 100)
	if err != nil {
		return nil, core.ErrStore("failed to load active goals").WithCause(err)
	}
	if len(active) == 0 {
		s.logger.Info("no active goals to prioritize")
		return nil, nil
	}

	scored := s.PrioritizeGoals(active)

	for _, sg := range scored {
		newPriority := int(math.Round(sg.PriorityScore))
		if newPriority == sg.Goal.Priority {
			continue
		}

		audit := map[string]interface{}{
			"updated_at":        s.now().Format(time.RFC3339),
			"original_priority": sg.OriginalPriority,
			"urgency_score":     sg.Urgency,
			"importance_score":  sg.Importance,
			"dependency_score":  sg.DependencyScore,
		}
		if err := s.store.UpdateGoalPriority(ctx, sg.Goal.ID, newPriority, audit); err != nil {
			s.logger.Error("priority update failed", "goal_id", sg.Goal.ID.String(), "error", err)
			continue
		}
		sg.Goal.Priority = newPriority
	}

	s.logger.Info("updated goal priorities", "count", len(scored))
	return scored, nil
}
