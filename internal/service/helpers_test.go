package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// fakeGoalStore is an in-memory core.GoalStore capturing mutations.
type fakeGoalStore struct {
	mu     sync.Mutex
	goals  map[uuid.UUID]*core.Goal
	events []*core.MemoryEvent

	statusUpdates   map[uuid.UUID]core.StatusUpdate
	priorityUpdates map[uuid.UUID]int
	priorityAudits  map[uuid.UUID]map[string]interface{}

	failNext error
}

func newFakeGoalStore() *fakeGoalStore {
	return &fakeGoalStore{
		goals:           make(map[uuid.UUID]*core.Goal),
		statusUpdates:   make(map[uuid.UUID]core.StatusUpdate),
		priorityUpdates: make(map[uuid.UUID]int),
		priorityAudits:  make(map[uuid.UUID]map[string]interface{}),
	}
}

func (f *fakeGoalStore) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeGoalStore) SaveGoal(_ context.Context, goal *core.Goal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	f.goals[goal.ID] = goal
	return nil
}

func (f *fakeGoalStore) GetGoal(_ context.Context, id uuid.UUID) (*core.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	g, ok := f.goals[id]
	if !ok {
		return nil, core.ErrNotFound("goal", id.String())
	}
	return g, nil
}

func (f *fakeGoalStore) UpdateGoalStatus(_ context.Context, id uuid.UUID, update core.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	f.statusUpdates[id] = update
	if g, ok := f.goals[id]; ok {
		g.Status = update.Status
		if update.SuccessScore != nil {
			g.SuccessScore = update.SuccessScore
		}
	}
	return nil
}

func (f *fakeGoalStore) UpdateGoalPriority(_ context.Context, id uuid.UUID, priority int, audit map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	f.priorityUpdates[id] = priority
	f.priorityAudits[id] = audit
	if g, ok := f.goals[id]; ok {
		g.Priority = priority
	}
	return nil
}

func (f *fakeGoalStore) GetActiveGoals(_ context.Context, sessionID uuid.UUID, limit int) ([]*core.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var out []*core.Goal
	for _, g := range f.goals {
		if !g.IsActive {
			continue
		}
		if sessionID != uuid.Nil && g.SessionID != sessionID {
			continue
		}
		out = append(out, g)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeGoalStore) AppendEvent(_ context.Context, event *core.MemoryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeGoalStore) QueryEvents(_ context.Context, q core.EventQuery) ([]*core.MemoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	var out []*core.MemoryEvent
	for _, ev := range f.events {
		if q.SessionID != uuid.Nil && ev.SessionID != q.SessionID {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeGoalStore) ClearSession(_ context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeErr(); err != nil {
		return err
	}
	for id, g := range f.goals {
		if g.SessionID == sessionID {
			delete(f.goals, id)
		}
	}
	kept := f.events[:0]
	for _, ev := range f.events {
		if ev.SessionID != sessionID {
			kept = append(kept, ev)
		}
	}
	f.events = kept
	return nil
}
