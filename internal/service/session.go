package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/events"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
	"github.com/hugo-lorenzo-mato/pilot/internal/snapshot"
)

// SessionStatus tracks the lifecycle of a background run.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// DefaultSessionIterations applies when a session request omits the budget.
const DefaultSessionIterations = 5

// SessionRequest describes a new agent session.
type SessionRequest struct {
	Goal           string `json:"goal"`
	InitialContext string `json:"initial_context,omitempty"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
}

// Session is the observable state of one agent run. State holds a
// point-in-time deep copy of the run's blackboard, refreshed after every
// loop pass, so partial progress stays visible while the run is live and
// after a failure without readers touching the record the run mutates.
type Session struct {
	ID                  uuid.UUID        `json:"session_id"`
	Goal                string           `json:"goal"`
	Status              SessionStatus    `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	IterationsCompleted int              `json:"iterations_completed"`
	IterationsMax       int              `json:"iterations_max"`
	Error               string           `json:"error,omitempty"`
	State               *core.Blackboard `json:"current_state,omitempty"`
}

// AgentStatus summarizes the most recent session.
type AgentStatus struct {
	Active              bool         `json:"active"`
	SessionID           string       `json:"active_session_id,omitempty"`
	Goal                string       `json:"active_goal,omitempty"`
	IterationsCompleted int          `json:"iterations_completed"`
	IterationsMax       int          `json:"iterations_max"`
	LastAction          *core.Action `json:"last_action,omitempty"`
	Status              string       `json:"status"`
	Error               string       `json:"error,omitempty"`
}

// SessionManager starts agent runs as background goroutines and tracks
// their status. Snapshot export/import and session wipes are exposed here
// so the HTTP layer has a single collaborator.
type SessionManager struct {
	orchestrator *Orchestrator
	store        core.GoalStore
	snapshots    MemorySnapshotter
	bus          *events.EventBus
	logger       *logging.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	group  *errgroup.Group
	runCtx context.Context
	cancel context.CancelFunc
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionStore sets goal and event persistence.
func WithSessionStore(store core.GoalStore) SessionManagerOption {
	return func(m *SessionManager) { m.store = store }
}

// WithSessionSnapshotter sets the memory snapshot handler.
func WithSessionSnapshotter(s MemorySnapshotter) SessionManagerOption {
	return func(m *SessionManager) { m.snapshots = s }
}

// WithSessionBus sets the event bus runs publish to.
func WithSessionBus(bus *events.EventBus) SessionManagerOption {
	return func(m *SessionManager) { m.bus = bus }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *logging.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSessionManager creates a manager driving runs through the given
// orchestrator.
func NewSessionManager(orchestrator *Orchestrator, opts ...SessionManagerOption) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &SessionManager{
		orchestrator: orchestrator,
		logger:       logging.NewNop(),
		sessions:     make(map[uuid.UUID]*Session),
		runCtx:       ctx,
		cancel:       cancel,
	}
	m.group, m.runCtx = errgroup.WithContext(ctx)
	for _, opt := range opts {
		opt(m)
	}
	if m.orchestrator == nil {
		m.orchestrator = NewOrchestrator(
			WithGoalStore(m.store),
			WithOrchestratorLogger(m.logger),
		)
	}
	m.orchestrator.SetRunObserver(m.recordProgress)
	return m
}

// recordProgress stores the latest blackboard snapshot for its session.
// Runs the manager no longer tracks (cleared sessions) are ignored.
func (m *SessionManager) recordProgress(snap *core.Blackboard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[snap.SessionID]
	if !ok || session.Status != SessionStatusRunning {
		return
	}
	session.State = snap
	session.IterationsCompleted = snap.LoopCounter
}

// StartSession validates the request, registers a running session, and
// launches the agent loop in the background.
func (m *SessionManager) StartSession(req SessionRequest) (*Session, error) {
	if req.Goal == "" {
		return nil, core.ErrValidation("GOAL_REQUIRED", "session goal cannot be empty")
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultSessionIterations
	}

	sessionID := uuid.New()
	bb := core.NewBlackboard(sessionID, req.Goal, maxIterations)
	bb.UserContext = req.InitialContext

	session := &Session{
		ID:            sessionID,
		Goal:          req.Goal,
		Status:        SessionStatusRunning,
		CreatedAt:     time.Now(),
		IterationsMax: maxIterations,
		State:         bb.Clone(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	m.publish(events.NewRunStartedEvent(sessionID.String(), req.Goal, maxIterations))
	m.logger.Info("session started",
		"session_id", sessionID.String(),
		"goal", req.Goal,
		"max_iterations", maxIterations)

	m.group.Go(func() error {
		m.runSession(session, bb)
		return nil
	})

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotSession(session), nil
}

// runSession drives one run to completion and records the outcome.
func (m *SessionManager) runSession(session *Session, bb *core.Blackboard) {
	final, err := m.orchestrator.Run(m.runCtx, bb)
	now := time.Now()

	// Run has returned, so bb is quiescent and safe to copy here.
	m.mu.Lock()
	session.CompletedAt = &now
	session.State = bb.Clone()
	if err != nil {
		session.Status = SessionStatusError
		session.Error = err.Error()
		session.IterationsCompleted = bb.LoopCounter
	} else {
		session.Status = SessionStatusCompleted
		session.IterationsCompleted = final.LoopCounter
	}
	m.mu.Unlock()

	if err != nil {
		m.publish(events.NewRunFailedEvent(session.ID.String(), err.Error()))
		m.logger.Error("session failed",
			"session_id", session.ID.String(),
			"error", err)
		return
	}
	m.publish(events.NewRunCompletedEvent(
		session.ID.String(), final.Goal, final.LoopCounter, final.GoalComplete, final.StatusMessage))
	m.logger.Info("session completed",
		"session_id", session.ID.String(),
		"iterations", final.LoopCounter,
		"goal_complete", final.GoalComplete)
}

// GetSession returns a point-in-time copy of one session.
func (m *SessionManager) GetSession(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound("session", id.String())
	}
	return m.snapshotSession(session), nil
}

// ListSessions returns all sessions, newest first.
func (m *SessionManager) ListSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, m.snapshotSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Status reports on the most recent session, or an idle status when no
// session has been started.
func (m *SessionManager) Status() AgentStatus {
	sessions := m.ListSessions()
	if len(sessions) == 0 {
		return AgentStatus{Status: "idle"}
	}

	latest := sessions[0]
	status := AgentStatus{
		Active:              latest.Status == SessionStatusRunning,
		SessionID:           latest.ID.String(),
		Goal:                latest.Goal,
		IterationsMax:       latest.IterationsMax,
		IterationsCompleted: latest.IterationsCompleted,
		Status:              string(latest.Status),
		Error:               latest.Error,
	}
	if latest.State != nil {
		if latest.Status == SessionStatusRunning {
			status.IterationsCompleted = latest.State.LoopCounter
		}
		status.LastAction = latest.State.Action.Request
	}
	return status
}

// ExportMemory writes a memory snapshot for a session and returns the path.
func (m *SessionManager) ExportMemory(ctx context.Context, sessionID uuid.UUID) (string, error) {
	if m.snapshots == nil {
		return "", core.ErrState("NO_SNAPSHOT_MANAGER", "no snapshot manager configured")
	}
	return m.snapshots.Export(ctx, sessionID)
}

// ImportMemory replays a snapshot file into the store.
func (m *SessionManager) ImportMemory(ctx context.Context, path string) (*snapshot.ImportResult, error) {
	if m.snapshots == nil {
		return nil, core.ErrState("NO_SNAPSHOT_MANAGER", "no snapshot manager configured")
	}
	return m.snapshots.Import(ctx, path)
}

// ClearSession wipes a session's goals and events from the store and
// forgets the in-memory session record.
func (m *SessionManager) ClearSession(ctx context.Context, sessionID uuid.UUID) error {
	if m.store != nil {
		if err := m.store.ClearSession(ctx, sessionID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Wait blocks until every background run has finished.
func (m *SessionManager) Wait() error {
	return m.group.Wait()
}

// Close cancels live runs and waits for them to wind down.
func (m *SessionManager) Close() error {
	m.cancel()
	return m.group.Wait()
}

// snapshotSession copies the session under the caller's lock. State already
// points at an immutable blackboard snapshot, so a shallow copy suffices.
func (m *SessionManager) snapshotSession(s *Session) *Session {
	dup := *s
	return &dup
}

func (m *SessionManager) publish(event events.Event) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(event)
}
