package repositories

import (
	"context"

	"cadence/internal/domain/models"
)

// SnapshotRepository persists immutable code snapshots. Records are never
// updated: they are inserted by successful turns and deleted only when redo
// history is truncated or the owning session is discarded.
type SnapshotRepository interface {
	// ListBySession returns all snapshots for a session ordered by
	// sequence_number ascending. A fresh session yields an empty slice,
	// not an error.
	ListBySession(ctx context.Context, sessionID string) ([]models.Snapshot, error)
	// Insert stores a snapshot and fills in the server-assigned ID and
	// CreatedAt on the passed record.
	Insert(ctx context.Context, snapshot *models.Snapshot) error
	// DeleteByIDs removes the given snapshots by explicit id list, scoped
	// to the session. Deleting by id rather than by sequence range keeps
	// concurrently-created records safe.
	DeleteByIDs(ctx context.Context, sessionID string, ids []string) error
	// DeleteBySession removes all snapshots for a discarded session.
	DeleteBySession(ctx context.Context, sessionID string) error
}
