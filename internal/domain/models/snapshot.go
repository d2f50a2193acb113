package models

import (
	"time"
)

// Snapshot is an immutable, fully self-contained code buffer plus its
// provenance metadata. Within a session the sequence numbers of active
// snapshots are dense 0..N-1 and strictly increasing; a snapshot is only
// ever removed when it lies beyond the history cursor at the moment a new
// snapshot is saved (redo truncation) or when the session is discarded.
type Snapshot struct {
	ID             string    `json:"id" db:"id"`
	SessionID      string    `json:"session_id" db:"session_id"`
	Code           string    `json:"code" db:"code"`
	Prompt         *string   `json:"prompt,omitempty" db:"prompt"`
	Summary        *string   `json:"summary,omitempty" db:"summary"`
	Skills         []string  `json:"skills" db:"skills"` // unordered tag set
	SequenceNumber int       `json:"sequence_number" db:"sequence_number"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
