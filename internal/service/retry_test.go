package service

import (
	"errors"
	"testing"
	"time"
)

// fixedClock lets tests advance time deterministically.
type fixedClock struct {
	t time.Time
}

func (f *fixedClock) now() time.Time          { return f.t }
func (f *fixedClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCoordinator(opts ...RetryOption) (*RetryCoordinator, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewRetryCoordinator(opts...)
	c.now = clock.now
	c.jitter = func() float64 { return 1.0 }
	return c, clock
}

func TestRetryCoordinator_ShouldRetry(t *testing.T) {
	c, _ := newTestCoordinator()
	c.StartTracking("step-1", 3, 0, 0)

	if !c.ShouldRetry("step-1") {
		t.Error("step with no attempts should be retryable")
	}

	c.RecordAttempt("step-1", errors.New("fail 1"))
	c.RecordAttempt("step-1", errors.New("fail 2"))
	if !c.ShouldRetry("step-1") {
		t.Error("2 of 3 attempts used, should still retry")
	}

	c.RecordAttempt("step-1", errors.New("fail 3"))
	if c.ShouldRetry("step-1") {
		t.Error("3 of 3 attempts used, should not retry")
	}
}

func TestRetryCoordinator_UntrackedStep(t *testing.T) {
	c, _ := newTestCoordinator()
	if c.ShouldRetry("nope") {
		t.Error("untracked step should not be retryable")
	}
	if c.CanRetryNow("nope") {
		t.Error("untracked step should not be ready")
	}
	if c.Info("nope") != nil {
		t.Error("untracked step should have nil info")
	}
}

func TestRetryCoordinator_BackoffDoubling(t *testing.T) {
	c, clock := newTestCoordinator()
	c.StartTracking("step-1", 5, time.Second, 30*time.Second)

	// attempt n schedules delay base * 2^(n-1)
	wantDelays := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, want := range wantDelays {
		c.RecordAttempt("step-1", errors.New("fail"))
		info := c.Info("step-1")
		got := info.NextAttemptTime.Sub(info.LastAttemptTime)
		if got != want {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, want)
		}
		clock.advance(want)
	}
}

func TestRetryCoordinator_BackoffCap(t *testing.T) {
	c, _ := newTestCoordinator()
	c.StartTracking("step-1", 10, 10*time.Second, 30*time.Second)

	// 10s, 20s, then capped at 30s
	for i := 0; i < 3; i++ {
		c.RecordAttempt("step-1", errors.New("fail"))
	}
	info := c.Info("step-1")
	if got := info.NextAttemptTime.Sub(info.LastAttemptTime); got != 30*time.Second {
		t.Errorf("capped delay = %v, want 30s", got)
	}
}

func TestRetryCoordinator_JitterDisabled(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewRetryCoordinator(WithRetryJitter(false))
	c.now = clock.now
	// The real jitter source stays in place; disabled state must bypass it.

	c.StartTracking("step-1", 5, time.Second, 30*time.Second)
	wantDelays := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
	}
	for i, want := range wantDelays {
		c.RecordAttempt("step-1", errors.New("fail"))
		info := c.Info("step-1")
		if got := info.NextAttemptTime.Sub(info.LastAttemptTime); got != want {
			t.Errorf("attempt %d: delay = %v, want exact %v", i+1, got, want)
		}
	}
	if c.Info("step-1").Jitter {
		t.Error("snapshot should report jitter disabled")
	}
}

func TestRetryCoordinator_JitterFlagPerState(t *testing.T) {
	c, _ := newTestCoordinator()
	c.StartTracking("step-1", 3, 0, 0)
	c.RecordAttempt("step-1", errors.New("fail"))
	if info := c.Info("step-1"); !info.Jitter {
		t.Error("default state should carry jitter enabled")
	}
}

func TestRetryCoordinator_JitterBounds(t *testing.T) {
	c := NewRetryCoordinator()
	for i := 0; i < 1000; i++ {
		j := c.jitter()
		if j < 0.75 || j >= 1.25 {
			t.Fatalf("jitter = %v, want in [0.75, 1.25)", j)
		}
	}
}

func TestRetryCoordinator_CanRetryNow(t *testing.T) {
	c, clock := newTestCoordinator()
	c.StartTracking("step-1", 3, time.Second, 30*time.Second)

	c.RecordAttempt("step-1", errors.New("fail"))
	if c.CanRetryNow("step-1") {
		t.Error("inside backoff window, should not be ready")
	}

	clock.advance(time.Second)
	if !c.CanRetryNow("step-1") {
		t.Error("backoff elapsed, should be ready")
	}

	c.RecordAttempt("step-1", errors.New("fail"))
	c.RecordAttempt("step-1", errors.New("fail"))
	clock.advance(time.Hour)
	if c.CanRetryNow("step-1") {
		t.Error("exhausted step should never be ready")
	}
}

func TestRetryCoordinator_Info(t *testing.T) {
	c, _ := newTestCoordinator()
	c.StartTracking("step-1", 3, 0, 0)
	c.RecordAttempt("step-1", errors.New("first failure"))

	info := c.Info("step-1")
	if info == nil {
		t.Fatal("Info returned nil for tracked step")
	}
	if info.StepID != "step-1" || info.Attempts != 1 || info.MaxRetries != 3 {
		t.Errorf("info = %+v", info)
	}
	if !info.CanRetry {
		t.Error("CanRetry should be true with attempts remaining")
	}
	if len(info.Errors) != 1 || info.Errors[0].Error != "first failure" {
		t.Errorf("Errors = %+v", info.Errors)
	}
	if info.Errors[0].Attempt != 1 {
		t.Errorf("Errors[0].Attempt = %d, want 1", info.Errors[0].Attempt)
	}
}

func TestRetryCoordinator_ImplicitTracking(t *testing.T) {
	c, _ := newTestCoordinator()
	c.RecordAttempt("surprise", errors.New("fail"))

	info := c.Info("surprise")
	if info == nil {
		t.Fatal("RecordAttempt should register untracked steps")
	}
	if info.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", info.MaxRetries, DefaultMaxRetries)
	}
}

func TestRetryCoordinator_StartTrackingIdempotent(t *testing.T) {
	c, _ := newTestCoordinator()
	c.StartTracking("step-1", 3, 0, 0)
	c.RecordAttempt("step-1", errors.New("fail"))
	c.StartTracking("step-1", 10, 0, 0)

	info := c.Info("step-1")
	if info.Attempts != 1 || info.MaxRetries != 3 {
		t.Errorf("re-registration should not reset state: %+v", info)
	}
}

func TestRetryCoordinator_Cleanup(t *testing.T) {
	c, clock := newTestCoordinator()
	c.StartTracking("old", 3, 0, 0)
	clock.advance(2 * time.Hour)
	c.StartTracking("fresh", 3, 0, 0)

	removed := c.Cleanup(time.Hour)
	if removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if c.Info("old") != nil {
		t.Error("old step should be gone")
	}
	if c.Info("fresh") == nil {
		t.Error("fresh step should survive")
	}
}

func TestRetryCoordinator_StopTracking(t *testing.T) {
	c, _ := newTestCoordinator()
	c.StartTracking("step-1", 3, 0, 0)
	c.StopTracking("step-1")
	if c.Tracked() != 0 {
		t.Errorf("Tracked() = %d, want 0", c.Tracked())
	}
}
