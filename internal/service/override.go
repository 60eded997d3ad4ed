package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// OverrideRegistry manages time-bounded administrative overrides. It is a
// process-wide singleton shared by all sessions; mutation is serialized
// behind a mutex.
//
// The registry applies safety overrides directly against the gate. For
// prioritization and agent-state overrides it records an intent the
// orchestrator applies itself; the registry never touches a blackboard.
type OverrideRegistry struct {
	mu        sync.Mutex
	overrides map[uuid.UUID]*core.Override
	// pattern -> override holding it open, so revocation and expiry
	// restore the rule.
	allowedPatterns map[string]uuid.UUID

	gate   *SafetyGate
	logger *logging.Logger
	now    func() time.Time
}

// NewOverrideRegistry creates a registry bound to a safety gate.
func NewOverrideRegistry(gate *SafetyGate, logger *logging.Logger) *OverrideRegistry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OverrideRegistry{
		overrides:       make(map[uuid.UUID]*core.Override),
		allowedPatterns: make(map[string]uuid.UUID),
		gate:            gate,
		logger:          logger,
		now:             time.Now,
	}
}

// Create registers a new override and returns its ID.
func (r *OverrideRegistry) Create(target, action string, params map[string]interface{}, duration time.Duration, reason string) uuid.UUID {
	o := core.NewOverride(target, action, params, duration, reason)

	r.mu.Lock()
	r.overrides[o.ID] = o
	r.mu.Unlock()

	r.logger.Info("created manual override",
		"id", o.ID.String(), "target", target, "action", action, "expires_at", o.ExpiresAt)
	return o.ID
}

// Get returns an override by ID, or a not-found error.
func (r *OverrideRegistry) Get(id uuid.UUID) (*core.Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.overrides[id]
	if !ok {
		return nil, core.ErrNotFound("override", id.String())
	}
	return o, nil
}

// ListActive returns all overrides that are neither expired nor revoked.
func (r *OverrideRegistry) ListActive() []*core.Override {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var active []*core.Override
	for _, o := range r.overrides {
		if !o.IsExpired(now) && !o.Revoked {
			active = append(active, o)
		}
	}
	return active
}

// Revoke marks an override revoked and rolls back any safety effect it
// holds open. Returns false for unknown or already-revoked overrides.
func (r *OverrideRegistry) Revoke(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.overrides[id]
	if !ok || o.Revoked {
		return false
	}
	o.Revoke(r.now())
	r.releaseSafetyEffects(id)
	r.logger.Info("revoked manual override", "id", id.String())
	return true
}

// CleanupExpired removes expired overrides, releasing any safety patterns
// they held open, and returns the number removed.
func (r *OverrideRegistry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanupExpiredLocked()
}

func (r *OverrideRegistry) cleanupExpiredLocked() int {
	now := r.now()
	removed := 0
	for id, o := range r.overrides {
		if o.IsExpired(now) {
			r.releaseSafetyEffects(id)
			delete(r.overrides, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("cleaned up expired overrides", "count", removed)
	}
	return removed
}

// releaseSafetyEffects restores safety rules held open by the override.
// Caller holds the lock.
func (r *OverrideRegistry) releaseSafetyEffects(id uuid.UUID) {
	for pattern, holder := range r.allowedPatterns {
		if holder == id {
			delete(r.allowedPatterns, pattern)
			if r.gate != nil {
				r.gate.DisallowPattern(pattern)
			}
		}
	}
}

// Apply processes an override, dispatching on (target, action). Expired
// and revoked overrides are rejected with an explicit message. Applying an
// override twice within its validity window repeats the same effect.
func (r *OverrideRegistry) Apply(id uuid.UUID) core.ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cleanupExpiredLocked()

	o, ok := r.overrides[id]
	if !ok {
		return core.ApplyResult{Success: false, Message: fmt.Sprintf("Override %s not found", id)}
	}
	if o.Revoked {
		return core.ApplyResult{Success: false, Message: fmt.Sprintf("Override %s has been revoked", id)}
	}
	now := r.now()
	if o.IsExpired(now) {
		return core.ApplyResult{Success: false, Message: fmt.Sprintf("Override %s has expired", id)}
	}

	var result core.ApplyResult
	switch {
	case o.Target == core.OverrideTargetSafety && o.Action == core.OverrideActionDisable:
		result = r.applySafetyDisable(o)
	case o.Target == core.OverrideTargetSafety && o.Action == core.OverrideActionAllowPattern:
		result = r.applyAllowPattern(o)
	case o.Target == core.OverrideTargetPrioritization && o.Action == core.OverrideActionSetPriority:
		result = r.applySetPriority(o)
	case o.Target == core.OverrideTargetAgentState && o.Action == core.OverrideActionSetField:
		result = r.applySetField(o)
	default:
		return core.ApplyResult{Success: false, Message: "Unknown override target/action"}
	}

	if result.Success {
		o.MarkApplied(now)
	}
	return result
}

func (r *OverrideRegistry) applySafetyDisable(o *core.Override) core.ApplyResult {
	if r.gate == nil {
		return core.ApplyResult{Success: false, Message: "No safety gate configured"}
	}

	level, ok := o.ParamInt("level")
	if !ok {
		level = SafetyLevelOff
	}

	// Record the prior level for eventual restoration. Restoration is the
	// caller's responsibility; the registry does not self-schedule it.
	original := r.gate.Level()
	o.Parameters["original_level"] = original

	if err := r.gate.SetLevel(level); err != nil {
		return core.ApplyResult{Success: false, Message: err.Error()}
	}

	remaining := time.Until(o.ExpiresAt).Round(time.Second)
	r.logger.Warn("safety level temporarily lowered",
		"level", level, "original", original, "remaining", remaining.String())
	return core.ApplyResult{
		Success: true,
		Message: fmt.Sprintf("Safety level set to %d for %s", level, remaining),
	}
}

func (r *OverrideRegistry) applyAllowPattern(o *core.Override) core.ApplyResult {
	pattern, ok := o.ParamString("pattern")
	if !ok || pattern == "" {
		return core.ApplyResult{Success: false, Message: "No pattern specified for override"}
	}
	if r.gate == nil {
		return core.ApplyResult{Success: false, Message: "No safety gate configured"}
	}

	r.allowedPatterns[pattern] = o.ID
	r.gate.AllowPattern(pattern)
	return core.ApplyResult{
		Success: true,
		Message: fmt.Sprintf("Temporarily allowing pattern: %s", pattern),
	}
}

func (r *OverrideRegistry) applySetPriority(o *core.Override) core.ApplyResult {
	goalID, hasGoal := o.ParamString("goal_id")
	priority, hasPriority := o.ParamInt("priority")
	if !hasGoal || goalID == "" || !hasPriority {
		return core.ApplyResult{Success: false, Message: "Missing goal_id or priority"}
	}

	return core.ApplyResult{
		Success: true,
		Message: fmt.Sprintf("Goal %s priority set to %d", goalID, priority),
		Intent: &core.OverrideIntent{
			Target: core.OverrideTargetPrioritization,
			Action: core.OverrideActionSetPriority,
			Params: map[string]interface{}{"goal_id": goalID, "priority": priority},
		},
	}
}

func (r *OverrideRegistry) applySetField(o *core.Override) core.ApplyResult {
	field, ok := o.ParamString("field")
	if !ok || field == "" {
		return core.ApplyResult{Success: false, Message: "No field specified"}
	}

	return core.ApplyResult{
		Success: true,
		Message: fmt.Sprintf("Will set agent state field %q", field),
		Intent: &core.OverrideIntent{
			Target: core.OverrideTargetAgentState,
			Action: core.OverrideActionSetField,
			Params: map[string]interface{}{"field": field, "value": o.Parameters["value"]},
		},
	}
}
