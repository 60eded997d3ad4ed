package core

import (
	"time"

	"github.com/google/uuid"
)

// Override targets.
const (
	OverrideTargetSafety         = "safety"
	OverrideTargetPrioritization = "prioritization"
	OverrideTargetAgentState     = "agent_state"
)

// Override actions.
const (
	OverrideActionDisable      = "disable"
	OverrideActionAllowPattern = "allow_pattern"
	OverrideActionSetPriority  = "set_priority"
	OverrideActionSetField     = "set_field"
)

// DefaultOverrideDuration applies when a create request omits the duration.
const DefaultOverrideDuration = 300 * time.Second

// Override is a time-bounded administrative exception to normal safety,
// priority, or state behavior.
type Override struct {
	ID         uuid.UUID              `json:"id"`
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
	CreatedAt  time.Time              `json:"created_at"`
	ExpiresAt  time.Time              `json:"expires_at"`
	Reason     string                 `json:"reason"`
	Applied    bool                   `json:"applied"`
	AppliedAt  *time.Time             `json:"applied_at,omitempty"`
	Revoked    bool                   `json:"revoked"`
	RevokedAt  *time.Time             `json:"revoked_at,omitempty"`
}

// NewOverride creates an override expiring after the given duration.
func NewOverride(target, action string, params map[string]interface{}, duration time.Duration, reason string) *Override {
	if duration <= 0 {
		duration = DefaultOverrideDuration
	}
	if params == nil {
		params = make(map[string]interface{})
	}
	now := time.Now()
	return &Override{
		ID:         uuid.New(),
		Target:     target,
		Action:     action,
		Parameters: params,
		CreatedAt:  now,
		ExpiresAt:  now.Add(duration),
		Reason:     reason,
	}
}

// IsExpired reports whether the override's validity window has passed.
func (o *Override) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// MarkApplied stamps the override as applied.
func (o *Override) MarkApplied(now time.Time) {
	o.Applied = true
	t := now
	o.AppliedAt = &t
}

// Revoke stamps the override as revoked.
func (o *Override) Revoke(now time.Time) {
	o.Revoked = true
	t := now
	o.RevokedAt = &t
}

// ParamString returns a string parameter, if present.
func (o *Override) ParamString(key string) (string, bool) {
	v, ok := o.Parameters[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ParamInt returns an integer parameter, coercing JSON float64 values.
func (o *Override) ParamInt(key string) (int, bool) {
	switch v := o.Parameters[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// OverrideIntent is an application the registry records but does not carry
// out itself; the orchestrator applies it to the blackboard or goal store.
type OverrideIntent struct {
	Target string                 `json:"target"`
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ApplyResult is the outcome of applying one override.
type ApplyResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Intent  *OverrideIntent `json:"intent,omitempty"`
}
