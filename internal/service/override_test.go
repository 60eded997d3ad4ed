package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

func newTestRegistry() (*OverrideRegistry, *SafetyGate, *fixedClock) {
	gate := NewSafetyGate()
	r := NewOverrideRegistry(gate, nil)
	clock := &fixedClock{t: time.Now()}
	r.now = clock.now
	return r, gate, clock
}

func TestOverrideRegistry_CreateAndGet(t *testing.T) {
	r, _, _ := newTestRegistry()

	id := r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, time.Minute, "maintenance")
	o, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if o.Target != core.OverrideTargetSafety || o.Action != core.OverrideActionDisable {
		t.Errorf("override = %+v", o)
	}
	if o.Reason != "maintenance" {
		t.Errorf("Reason = %q", o.Reason)
	}
	if o.Applied || o.Revoked {
		t.Error("fresh override should be neither applied nor revoked")
	}

	if _, err := r.Get(uuid.New()); err == nil {
		t.Error("Get of unknown ID should fail")
	}
}

func TestOverrideRegistry_DefaultDuration(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, 0, "")
	o, _ := r.Get(id)
	if got := o.ExpiresAt.Sub(o.CreatedAt); got != core.DefaultOverrideDuration {
		t.Errorf("duration = %v, want %v", got, core.DefaultOverrideDuration)
	}
}

func TestOverrideRegistry_ListActive(t *testing.T) {
	r, _, clock := newTestRegistry()

	short := r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, time.Minute, "")
	long := r.Create(core.OverrideTargetAgentState, core.OverrideActionSetField,
		map[string]interface{}{"field": "goal"}, time.Hour, "")
	revoked := r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, time.Hour, "")
	r.Revoke(revoked)

	clock.advance(5 * time.Minute)

	active := r.ListActive()
	if len(active) != 1 {
		t.Fatalf("ListActive() = %d overrides, want 1", len(active))
	}
	if active[0].ID != long {
		t.Errorf("active = %v, want %v", active[0].ID, long)
	}
	_ = short
}

func TestOverrideRegistry_Revoke(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, time.Hour, "")

	if !r.Revoke(id) {
		t.Error("first revoke should succeed")
	}
	if r.Revoke(id) {
		t.Error("second revoke should report false")
	}
	if r.Revoke(uuid.New()) {
		t.Error("revoking unknown ID should report false")
	}
}

func TestOverrideRegistry_CleanupExpired(t *testing.T) {
	r, _, clock := newTestRegistry()
	r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, time.Minute, "")
	r.Create(core.OverrideTargetSafety, core.OverrideActionDisable, nil, time.Hour, "")

	clock.advance(10 * time.Minute)
	if removed := r.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", removed)
	}
	if removed := r.CleanupExpired(); removed != 0 {
		t.Errorf("second CleanupExpired() = %d, want 0", removed)
	}
}

func TestOverrideRegistry_ApplySafetyDisable(t *testing.T) {
	r, gate, _ := newTestRegistry()

	id := r.Create(core.OverrideTargetSafety, core.OverrideActionDisable,
		map[string]interface{}{"level": 0}, time.Minute, "demo")
	result := r.Apply(id)

	if !result.Success {
		t.Fatalf("Apply failed: %s", result.Message)
	}
	if gate.Level() != SafetyLevelOff {
		t.Errorf("gate level = %d, want 0", gate.Level())
	}

	// Prior level recorded for caller-driven restoration.
	o, _ := r.Get(id)
	if o.Parameters["original_level"] != SafetyLevelBlock {
		t.Errorf("original_level = %v, want %d", o.Parameters["original_level"], SafetyLevelBlock)
	}
	if !o.Applied || o.AppliedAt == nil {
		t.Error("override should be stamped applied")
	}
}

func TestOverrideRegistry_ApplyAllowPattern(t *testing.T) {
	r, gate, _ := newTestRegistry()
	pattern := `(shutdown|reboot|halt)`

	id := r.Create(core.OverrideTargetSafety, core.OverrideActionAllowPattern,
		map[string]interface{}{"pattern": pattern}, time.Minute, "")
	result := r.Apply(id)
	if !result.Success {
		t.Fatalf("Apply failed: %s", result.Message)
	}
	if safe, _ := gate.IsCommandSafe("reboot"); !safe {
		t.Error("whitelisted pattern should be allowed")
	}

	// Revoking restores the rule.
	r.Revoke(id)
	if safe, _ := gate.IsCommandSafe("reboot"); safe {
		t.Error("revocation should restore the rule")
	}
}

func TestOverrideRegistry_AllowPatternExpiryRestoresRule(t *testing.T) {
	r, gate, clock := newTestRegistry()

	id := r.Create(core.OverrideTargetSafety, core.OverrideActionAllowPattern,
		map[string]interface{}{"pattern": `(shutdown|reboot|halt)`}, time.Minute, "")
	r.Apply(id)

	clock.advance(2 * time.Minute)
	r.CleanupExpired()
	if safe, _ := gate.IsCommandSafe("reboot"); safe {
		t.Error("expiry should restore the rule")
	}
}

func TestOverrideRegistry_ApplyAllowPattern_MissingPattern(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create(core.OverrideTargetSafety, core.OverrideActionAllowPattern, nil, time.Minute, "")
	result := r.Apply(id)
	if result.Success {
		t.Error("apply without pattern should fail")
	}
}

func TestOverrideRegistry_ApplySetPriority_Intent(t *testing.T) {
	r, _, _ := newTestRegistry()
	goalID := uuid.New().String()

	id := r.Create(core.OverrideTargetPrioritization, core.OverrideActionSetPriority,
		map[string]interface{}{"goal_id": goalID, "priority": 5}, time.Minute, "")
	result := r.Apply(id)

	if !result.Success {
		t.Fatalf("Apply failed: %s", result.Message)
	}
	if result.Intent == nil {
		t.Fatal("set_priority should produce an intent")
	}
	if result.Intent.Params["goal_id"] != goalID || result.Intent.Params["priority"] != 5 {
		t.Errorf("intent params = %v", result.Intent.Params)
	}
}

func TestOverrideRegistry_ApplySetPriority_MissingParams(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create(core.OverrideTargetPrioritization, core.OverrideActionSetPriority,
		map[string]interface{}{"goal_id": uuid.New().String()}, time.Minute, "")
	if result := r.Apply(id); result.Success {
		t.Error("apply without priority should fail")
	}
}

func TestOverrideRegistry_ApplySetField_Intent(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create(core.OverrideTargetAgentState, core.OverrideActionSetField,
		map[string]interface{}{"field": "goal", "value": "new goal"}, time.Minute, "")
	result := r.Apply(id)

	if !result.Success {
		t.Fatalf("Apply failed: %s", result.Message)
	}
	if result.Intent == nil || result.Intent.Params["field"] != "goal" {
		t.Errorf("intent = %+v", result.Intent)
	}
}

func TestOverrideRegistry_ApplyRejectsExpiredAndRevoked(t *testing.T) {
	r, _, clock := newTestRegistry()

	revoked := r.Create(core.OverrideTargetAgentState, core.OverrideActionSetField,
		map[string]interface{}{"field": "x"}, time.Hour, "")
	r.Revoke(revoked)
	result := r.Apply(revoked)
	if result.Success || !strings.Contains(result.Message, "revoked") {
		t.Errorf("revoked apply = %+v", result)
	}

	// Expired overrides are swept by Apply's cleanup, surfacing as not found.
	expired := r.Create(core.OverrideTargetAgentState, core.OverrideActionSetField,
		map[string]interface{}{"field": "x"}, time.Minute, "")
	clock.advance(2 * time.Minute)
	result = r.Apply(expired)
	if result.Success {
		t.Errorf("expired apply should fail: %+v", result)
	}

	result = r.Apply(uuid.New())
	if result.Success || !strings.Contains(result.Message, "not found") {
		t.Errorf("unknown apply = %+v", result)
	}
}

func TestOverrideRegistry_ApplyIdempotentWithinWindow(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create(core.OverrideTargetAgentState, core.OverrideActionSetField,
		map[string]interface{}{"field": "goal", "value": "v"}, time.Hour, "")

	first := r.Apply(id)
	second := r.Apply(id)
	if !first.Success || !second.Success {
		t.Errorf("re-application within window should succeed: %+v / %+v", first, second)
	}
	if first.Message != second.Message {
		t.Errorf("re-application should repeat the effect: %q vs %q", first.Message, second.Message)
	}
}

func TestOverrideRegistry_ApplyUnknownTarget(t *testing.T) {
	r, _, _ := newTestRegistry()
	id := r.Create("weather", "make_sunny", nil, time.Minute, "")
	result := r.Apply(id)
	if result.Success || result.Message != "Unknown override target/action" {
		t.Errorf("result = %+v", result)
	}
}
