package service

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// Default retry parameters for step tracking.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// retryState tracks attempts for a single step.
type retryState struct {
	stepID           string
	attempts         int
	maxRetries       int
	baseDelay        time.Duration
	maxDelay         time.Duration
	jitter           bool
	firstAttemptTime time.Time
	lastAttemptTime  time.Time
	nextAttemptTime  time.Time
	errors           []core.AttemptError
}

// RetryCoordinator tracks retry state per step ID and computes jittered
// exponential backoff. Safe for concurrent use.
type RetryCoordinator struct {
	mu     sync.Mutex
	states map[string]*retryState

	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	jitterEnabled bool

	// now and jitter are swappable for tests.
	now    func() time.Time
	jitter func() float64
}

// RetryOption configures a RetryCoordinator.
type RetryOption func(*RetryCoordinator)

// WithRetryLimit sets the default maximum attempts per step.
func WithRetryLimit(n int) RetryOption {
	return func(c *RetryCoordinator) {
		c.maxRetries = n
	}
}

// WithRetryBaseDelay sets the first-attempt backoff delay.
func WithRetryBaseDelay(d time.Duration) RetryOption {
	return func(c *RetryCoordinator) {
		c.baseDelay = d
	}
}

// WithRetryMaxDelay caps the backoff delay.
func WithRetryMaxDelay(d time.Duration) RetryOption {
	return func(c *RetryCoordinator) {
		c.maxDelay = d
	}
}

// WithRetryJitter toggles backoff jitter for steps the coordinator tracks.
// With jitter off, the delay is exactly min(base*2^(attempts-1), maxDelay).
func WithRetryJitter(enabled bool) RetryOption {
	return func(c *RetryCoordinator) {
		c.jitterEnabled = enabled
	}
}

// NewRetryCoordinator creates a coordinator with default backoff parameters.
func NewRetryCoordinator(opts ...RetryOption) *RetryCoordinator {
	c := &RetryCoordinator{
		states:        make(map[string]*retryState),
		maxRetries:    DefaultMaxRetries,
		baseDelay:     DefaultBaseDelay,
		maxDelay:      DefaultMaxDelay,
		jitterEnabled: true,
		now:           time.Now,
		// Uniform jitter in [0.75, 1.25) so concurrent steps desynchronize.
		jitter: func() float64 { return 0.75 + rand.Float64()*0.5 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartTracking registers a step for retry tracking. Zero or negative
// parameters fall back to the coordinator defaults. Re-registering an
// already-tracked step is a no-op so state survives re-entrant step logic.
func (c *RetryCoordinator) StartTracking(stepID string, maxRetries int, baseDelay, maxDelay time.Duration) {
	if maxRetries <= 0 {
		maxRetries = c.maxRetries
	}
	if baseDelay <= 0 {
		baseDelay = c.baseDelay
	}
	if maxDelay <= 0 {
		maxDelay = c.maxDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.states[stepID]; exists {
		return
	}
	c.states[stepID] = &retryState{
		stepID:           stepID,
		maxRetries:       maxRetries,
		baseDelay:        baseDelay,
		maxDelay:         maxDelay,
		jitter:           c.jitterEnabled,
		firstAttemptTime: c.now(),
	}
}

// RecordAttempt records one failed attempt for a tracked step and schedules
// the next attempt using exponential backoff with jitter. Untracked steps
// are registered implicitly with defaults.
func (c *RetryCoordinator) RecordAttempt(stepID string, attemptErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[stepID]
	if !ok {
		st = &retryState{
			stepID:           stepID,
			maxRetries:       c.maxRetries,
			baseDelay:        c.baseDelay,
			maxDelay:         c.maxDelay,
			jitter:           c.jitterEnabled,
			firstAttemptTime: c.now(),
		}
		c.states[stepID] = st
	}

	st.attempts++
	st.lastAttemptTime = c.now()

	msg := ""
	if attemptErr != nil {
		msg = attemptErr.Error()
	}
	st.errors = append(st.errors, core.AttemptError{
		Attempt:   st.attempts,
		Timestamp: st.lastAttemptTime,
		Error:     msg,
	})

	st.nextAttemptTime = st.lastAttemptTime.Add(c.delayForAttempt(st))
}

// delayForAttempt computes min(base * 2^(attempts-1), maxDelay), scaled by
// the jitter factor when the state has jitter enabled. Caller holds the lock.
func (c *RetryCoordinator) delayForAttempt(st *retryState) time.Duration {
	exp := float64(st.baseDelay) * math.Pow(2, float64(st.attempts-1))
	if exp > float64(st.maxDelay) {
		exp = float64(st.maxDelay)
	}
	if !st.jitter {
		return time.Duration(exp)
	}
	return time.Duration(exp * c.jitter())
}

// ShouldRetry reports whether the step has attempts remaining. Untracked
// steps report false.
func (c *RetryCoordinator) ShouldRetry(stepID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[stepID]
	if !ok {
		return false
	}
	return st.attempts < st.maxRetries
}

// CanRetryNow reports whether the step's backoff delay has elapsed. A step
// with attempts remaining but inside its backoff window returns false.
func (c *RetryCoordinator) CanRetryNow(stepID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[stepID]
	if !ok {
		return false
	}
	if st.attempts >= st.maxRetries {
		return false
	}
	return !c.now().Before(st.nextAttemptTime)
}

// Info returns a serializable snapshot of the step's retry state, or nil
// if the step is untracked.
func (c *RetryCoordinator) Info(stepID string) *core.RetrySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[stepID]
	if !ok {
		return nil
	}
	errs := make([]core.AttemptError, len(st.errors))
	copy(errs, st.errors)
	return &core.RetrySnapshot{
		StepID:           st.stepID,
		Attempts:         st.attempts,
		MaxRetries:       st.maxRetries,
		Jitter:           st.jitter,
		FirstAttemptTime: st.firstAttemptTime,
		LastAttemptTime:  st.lastAttemptTime,
		NextAttemptTime:  st.nextAttemptTime,
		Errors:           errs,
		CanRetry:         st.attempts < st.maxRetries,
	}
}

// StopTracking drops the step's state, typically after a success.
func (c *RetryCoordinator) StopTracking(stepID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, stepID)
}

// Cleanup removes state for steps whose first attempt is older than maxAge
// and returns the number of entries removed.
func (c *RetryCoordinator) Cleanup(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxAge)
	removed := 0
	for id, st := range c.states {
		if st.firstAttemptTime.Before(cutoff) {
			delete(c.states, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of steps currently tracked.
func (c *RetryCoordinator) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}
