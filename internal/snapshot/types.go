// Package snapshot exports and imports per-session memory snapshots:
// the goals and memory events of one agent session serialized as a
// single JSON document, optionally gzip-compressed per section.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// FormatVersion is the current snapshot format version.
const FormatVersion = "1.0"

// sectionEncoding marks a compressed snapshot section.
const sectionEncoding = "gzip+base64"

// Meta describes a snapshot: when it was taken and for which session.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID uuid.UUID `json:"session_id"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum,omitempty"`
}

// Snapshot is the full exported state of one session.
type Snapshot struct {
	Meta   Meta                `json:"meta"`
	Goals  []*core.Goal        `json:"goals"`
	Events []*core.MemoryEvent `json:"events"`
}

// envelope is the on-disk form. Goals and events are stored either as
// plain JSON arrays or as compressed sections, decided at export time.
type envelope struct {
	Meta   Meta    `json:"meta"`
	Goals  section `json:"goals"`
	Events section `json:"events"`
}

// ExportOptions controls what Export includes and how it is written.
type ExportOptions struct {
	// Dir is the snapshots directory. Created if missing.
	Dir string
	// Compress gzips the goals and events sections.
	Compress bool
	// EventLimit caps how many events are exported, newest first.
	// Zero means no cap.
	EventLimit int
}

// ImportOptions controls how Import applies a snapshot to a store.
type ImportOptions struct {
	// Goals replays the goal records into the store.
	Goals bool
	// Events replays the memory events into the store.
	Events bool
}

// ImportResult reports what an import applied.
type ImportResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Goals     int       `json:"goals"`
	Events    int       `json:"events"`
}
