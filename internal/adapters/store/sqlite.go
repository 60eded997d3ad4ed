// Package store persists goal history and memory events in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteGoalStore implements core.GoalStore with SQLite storage.
type SQLiteGoalStore struct {
	dbPath     string
	backupPath string
	db         *sql.DB
	mu         sync.RWMutex
}

// SQLiteGoalStoreOption configures the store.
type SQLiteGoalStoreOption func(*SQLiteGoalStore)

// WithBackupPath sets the backup file path.
func WithBackupPath(path string) SQLiteGoalStoreOption {
	return func(s *SQLiteGoalStore) {
		s.backupPath = path
	}
}

// NewSQLiteGoalStore opens (or creates) the database at dbPath and runs
// pending migrations. WAL mode keeps writers from blocking the API readers.
func NewSQLiteGoalStore(dbPath string, opts ...SQLiteGoalStoreOption) (*SQLiteGoalStore, error) {
	s := &SQLiteGoalStore{
		dbPath:     dbPath,
		backupPath: dbPath + ".bak",
	}
	for _, opt := range opts {
		opt(s)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteGoalStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs pending migrations.
func (s *SQLiteGoalStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}

	return nil
}

// SaveGoal upserts a goal row.
func (s *SQLiteGoalStore) SaveGoal(ctx context.Context, goal *core.Goal) error {
	if goal == nil {
		return core.ErrValidation("NIL_GOAL", "goal cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON, err := marshalMeta(goal.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling goal metadata: %w", err)
	}

	activeInt := 0
	if goal.IsActive {
		activeInt = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goal_history (
			id, session_id, goal_text, status, priority, created_at,
			completed_at, is_active, meta_info, success_score, parent_goal_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			goal_text = excluded.goal_text,
			status = excluded.status,
			priority = excluded.priority,
			completed_at = excluded.completed_at,
			is_active = excluded.is_active,
			meta_info = excluded.meta_info,
			success_score = excluded.success_score,
			parent_goal_id = excluded.parent_goal_id
	`,
		goal.ID.String(), nullableUUID(goal.SessionID), goal.Text,
		string(goal.Status), goal.Priority, goal.CreatedAt,
		nullableTime(goal.CompletedAt), activeInt, nullableString(metaJSON),
		nullableFloat(goal.SuccessScore), nullableUUIDPtr(goal.ParentGoalID),
	)
	if err != nil {
		return core.ErrStore(fmt.Sprintf("saving goal: %v", err))
	}
	return nil
}

// GetGoal loads one goal by ID.
func (s *SQLiteGoalStore) GetGoal(ctx context.Context, id uuid.UUID) (*core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, goal_text, status, priority, created_at,
		       completed_at, is_active, meta_info, success_score, parent_goal_id
		FROM goal_history WHERE id = ?
	`, id.String())

	goal, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("goal", id.String())
	}
	if err != nil {
		return nil, core.ErrStore(fmt.Sprintf("loading goal: %v", err))
	}
	return goal, nil
}

// UpdateGoalStatus transitions a goal. Terminal statuses stamp the
// completion time and deactivate the goal; metadata merges over what the
// row already carries.
func (s *SQLiteGoalStore) UpdateGoalStatus(ctx context.Context, id uuid.UUID, update core.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrStore(fmt.Sprintf("beginning transaction: %v", err))
	}
	defer func() { _ = tx.Rollback() }()

	goal, err := scanGoal(tx.QueryRowContext(ctx, `
		SELECT id, session_id, goal_text, status, priority, created_at,
		       completed_at, is_active, meta_info, success_score, parent_goal_id
		FROM goal_history WHERE id = ?
	`, id.String()))
	if err == sql.ErrNoRows {
		return core.ErrNotFound("goal", id.String())
	}
	if err != nil {
		return core.ErrStore(fmt.Sprintf("loading goal: %v", err))
	}

	goal.Status = update.Status
	if goal.IsTerminal() {
		now := time.Now()
		goal.CompletedAt = &now
		goal.IsActive = false
	}
	if update.SuccessScore != nil {
		goal.SuccessScore = update.SuccessScore
	}
	if len(update.Metadata) > 0 {
		if goal.Metadata == nil {
			goal.Metadata = make(map[string]interface{}, len(update.Metadata))
		}
		for k, v := range update.Metadata {
			goal.Metadata[k] = v
		}
	}

	metaJSON, err := marshalMeta(goal.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling goal metadata: %w", err)
	}
	activeInt := 0
	if goal.IsActive {
		activeInt = 1
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE goal_history
		SET status = ?, completed_at = ?, is_active = ?, meta_info = ?, success_score = ?
		WHERE id = ?
	`,
		string(goal.Status), nullableTime(goal.CompletedAt), activeInt,
		nullableString(metaJSON), nullableFloat(goal.SuccessScore), id.String(),
	)
	if err != nil {
		return core.ErrStore(fmt.Sprintf("updating goal status: %v", err))
	}

	if err := tx.Commit(); err != nil {
		return core.ErrStore(fmt.Sprintf("committing transaction: %v", err))
	}
	return nil
}

// UpdateGoalPriority sets a goal's priority and merges the audit entry
// into the goal's metadata.
func (s *SQLiteGoalStore) UpdateGoalPriority(ctx context.Context, id uuid.UUID, priority int, audit map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrStore(fmt.Sprintf("beginning transaction: %v", err))
	}
	defer func() { _ = tx.Rollback() }()

	var metaStr sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT meta_info FROM goal_history WHERE id = ?", id.String()).Scan(&metaStr)
	if err == sql.ErrNoRows {
		return core.ErrNotFound("goal", id.String())
	}
	if err != nil {
		return core.ErrStore(fmt.Sprintf("loading goal metadata: %v", err))
	}

	meta := map[string]interface{}{}
	if metaStr.Valid && metaStr.String != "" {
		if err := json.Unmarshal([]byte(metaStr.String), &meta); err != nil {
			return fmt.Errorf("unmarshaling goal metadata: %w", err)
		}
	}
	if len(audit) > 0 {
		meta["priority_audit"] = audit
	}
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return fmt.Errorf("marshaling goal metadata: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE goal_history SET priority = ?, meta_info = ? WHERE id = ?",
		priority, nullableString(metaJSON), id.String())
	if err != nil {
		return core.ErrStore(fmt.Sprintf("updating goal priority: %v", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound("goal", id.String())
	}

	if err := tx.Commit(); err != nil {
		return core.ErrStore(fmt.Sprintf("committing transaction: %v", err))
	}
	return nil
}

// GetActiveGoals lists active goals, highest priority first and oldest
// first within a priority band. A limit of zero or less means no limit.
func (s *SQLiteGoalStore) GetActiveGoals(ctx context.Context, sessionID uuid.UUID, limit int) ([]*core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, session_id, goal_text, status, priority, created_at,
		       completed_at, is_active, meta_info, success_score, parent_goal_id
		FROM goal_history WHERE is_active = 1
	`
	args := []interface{}{}
	if sessionID != uuid.Nil {
		query += " AND session_id = ?"
		args = append(args, sessionID.String())
	}
	query += " ORDER BY priority DESC, created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.ErrStore(fmt.Sprintf("listing active goals: %v", err))
	}
	defer rows.Close()

	var goals []*core.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, core.ErrStore(fmt.Sprintf("scanning goal: %v", err))
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrStore(fmt.Sprintf("iterating goals: %v", err))
	}
	return goals, nil
}

// AppendEvent inserts one memory event.
func (s *SQLiteGoalStore) AppendEvent(ctx context.Context, event *core.MemoryEvent) error {
	if event == nil {
		return core.ErrValidation("NIL_EVENT", "memory event cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON, err := marshalMeta(event.Meta)
	if err != nil {
		return fmt.Errorf("marshaling event meta: %w", err)
	}
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_events (
			id, session_id, goal_id, step_id, agent_action, action_result,
			vision_state, terminal_output, notes, meta, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID.String(), nullableUUID(event.SessionID), nullableUUID(event.GoalID),
		nullableUUID(event.StepID), event.Action,
		nullableString([]byte(event.ActionResult)), nullableString([]byte(event.VisionState)),
		nullableString([]byte(event.TerminalOutput)), nullableString([]byte(event.Notes)),
		nullableString(metaJSON), timestamp,
	)
	if err != nil {
		return core.ErrStore(fmt.Sprintf("appending event: %v", err))
	}
	return nil
}

// QueryEvents returns memory events matching the query, newest first.
// A limit of zero or less means no limit.
func (s *SQLiteGoalStore) QueryEvents(ctx context.Context, q core.EventQuery) ([]*core.MemoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, session_id, goal_id, step_id, agent_action, action_result,
		       vision_state, terminal_output, notes, meta, timestamp
		FROM memory_events WHERE 1=1
	`
	args := []interface{}{}
	if q.SessionID != uuid.Nil {
		query += " AND session_id = ?"
		args = append(args, q.SessionID.String())
	}
	if q.GoalID != uuid.Nil {
		query += " AND goal_id = ?"
		args = append(args, q.GoalID.String())
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since)
	}
	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.ErrStore(fmt.Sprintf("querying events: %v", err))
	}
	defer rows.Close()

	var events []*core.MemoryEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, core.ErrStore(fmt.Sprintf("scanning event: %v", err))
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrStore(fmt.Sprintf("iterating events: %v", err))
	}
	return events, nil
}

// ClearSession deletes a session's goals and events in one transaction.
func (s *SQLiteGoalStore) ClearSession(ctx context.Context, sessionID uuid.UUID) error {
	if sessionID == uuid.Nil {
		return core.ErrValidation("SESSION_ID_REQUIRED", "session ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrStore(fmt.Sprintf("beginning transaction: %v", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM memory_events WHERE session_id = ?", sessionID.String()); err != nil {
		return core.ErrStore(fmt.Sprintf("deleting session events: %v", err))
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM goal_history WHERE session_id = ?", sessionID.String()); err != nil {
		return core.ErrStore(fmt.Sprintf("deleting session goals: %v", err))
	}

	if err := tx.Commit(); err != nil {
		return core.ErrStore(fmt.Sprintf("committing transaction: %v", err))
	}
	return nil
}

// Exists checks if the database file exists and has data.
func (s *SQLiteGoalStore) Exists() bool {
	info, err := os.Stat(s.dbPath)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// Backup writes a compacted copy of the database to the backup path.
func (s *SQLiteGoalStore) Backup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", s.backupPath))
	if err != nil {
		return core.ErrStore(fmt.Sprintf("backing up database: %v", err))
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(row scanner) (*core.Goal, error) {
	var goal core.Goal
	var idStr string
	var sessionID, metaStr, parentID sql.NullString
	var completedAt sql.NullTime
	var successScore sql.NullFloat64
	var status string
	var activeInt int

	err := row.Scan(
		&idStr, &sessionID, &goal.Text, &status, &goal.Priority,
		&goal.CreatedAt, &completedAt, &activeInt, &metaStr,
		&successScore, &parentID,
	)
	if err != nil {
		return nil, err
	}

	goal.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing goal ID: %w", err)
	}
	goal.Status = core.GoalStatus(status)
	goal.IsActive = activeInt != 0
	if sessionID.Valid {
		if goal.SessionID, err = uuid.Parse(sessionID.String); err != nil {
			return nil, fmt.Errorf("parsing session ID: %w", err)
		}
	}
	if completedAt.Valid {
		goal.CompletedAt = &completedAt.Time
	}
	if successScore.Valid {
		goal.SuccessScore = &successScore.Float64
	}
	if parentID.Valid {
		parsed, err := uuid.Parse(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("parsing parent goal ID: %w", err)
		}
		goal.ParentGoalID = &parsed
	}
	if metaStr.Valid && metaStr.String != "" {
		if err := json.Unmarshal([]byte(metaStr.String), &goal.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling goal metadata: %w", err)
		}
	}

	return &goal, nil
}

func scanEvent(row scanner) (*core.MemoryEvent, error) {
	var event core.MemoryEvent
	var idStr string
	var sessionID, goalID, stepID sql.NullString
	var actionResult, visionState, terminalOutput, notes, metaStr sql.NullString

	err := row.Scan(
		&idStr, &sessionID, &goalID, &stepID, &event.Action,
		&actionResult, &visionState, &terminalOutput, &notes, &metaStr,
		&event.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	event.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing event ID: %w", err)
	}
	if sessionID.Valid {
		if event.SessionID, err = uuid.Parse(sessionID.String); err != nil {
			return nil, fmt.Errorf("parsing session ID: %w", err)
		}
	}
	if goalID.Valid {
		if event.GoalID, err = uuid.Parse(goalID.String); err != nil {
			return nil, fmt.Errorf("parsing goal ID: %w", err)
		}
	}
	if stepID.Valid {
		if event.StepID, err = uuid.Parse(stepID.String); err != nil {
			return nil, fmt.Errorf("parsing step ID: %w", err)
		}
	}
	if actionResult.Valid {
		event.ActionResult = actionResult.String
	}
	if visionState.Valid {
		event.VisionState = visionState.String
	}
	if terminalOutput.Valid {
		event.TerminalOutput = terminalOutput.String
	}
	if notes.Valid {
		event.Notes = notes.String
	}
	if metaStr.Valid && metaStr.String != "" {
		if err := json.Unmarshal([]byte(metaStr.String), &event.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling event meta: %w", err)
		}
	}

	return &event, nil
}

// Helper functions for nullable values

func marshalMeta(meta map[string]interface{}) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	return json.Marshal(meta)
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullableUUIDPtr(id *uuid.UUID) sql.NullString {
	if id == nil || *id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// Verify that SQLiteGoalStore implements core.GoalStore.
var _ core.GoalStore = (*SQLiteGoalStore)(nil)
