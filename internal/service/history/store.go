package history

import (
	"context"
	"fmt"
	"log/slog"

	"cadence/internal/domain/models"
	"cadence/internal/domain/repositories"
)

// Store is the single history surface for one session: an in-memory undo
// stack backed by the snapshot table. The cursor tracks the snapshot the
// user currently sees; saving while the cursor sits behind the tail
// truncates the redo range in the same transaction that persists the new
// snapshot, so the database never disagrees with memory about which
// snapshots are live.
//
// Store is not safe for concurrent use; the session runtime serializes
// access to it.
type Store struct {
	repo      repositories.SnapshotRepository
	tx        repositories.TransactionManager
	logger    *slog.Logger
	sessionID string

	snapshots []models.Snapshot
	current   int  // index into snapshots, -1 when empty
	loaded    bool // Load completed
	dirty     bool // last Save failed after mutating nothing in memory
}

// NewStore creates an unloaded store for the given session.
func NewStore(repo repositories.SnapshotRepository, tx repositories.TransactionManager, logger *slog.Logger, sessionID string) *Store {
	return &Store{
		repo:      repo,
		tx:        tx,
		logger:    logger,
		sessionID: sessionID,
		current:   -1,
	}
}

// Load hydrates the stack from storage and places the cursor on the most
// recent snapshot. Loading an already-loaded store is a no-op.
func (s *Store) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	snapshots, err := s.repo.ListBySession(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot history: %w", err)
	}

	s.snapshots = snapshots
	s.current = len(snapshots) - 1
	s.loaded = true
	return nil
}

// Save persists a new snapshot at the cursor and discards any redo range
// beyond it. Insert and truncation commit atomically; on failure the
// in-memory stack and cursor are unchanged and the store is marked dirty.
func (s *Store) Save(ctx context.Context, code string, prompt, summary *string, skillTags []string) (*models.Snapshot, error) {
	if !s.loaded {
		return nil, fmt.Errorf("snapshot history not loaded")
	}

	active := s.snapshots[:s.current+1]
	truncated := s.snapshots[s.current+1:]

	snapshot := &models.Snapshot{
		SessionID:      s.sessionID,
		Code:           code,
		Prompt:         prompt,
		Summary:        summary,
		Skills:         skillTags,
		SequenceNumber: len(active),
	}

	err := s.tx.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Insert(txCtx, snapshot); err != nil {
			return err
		}
		if len(truncated) == 0 {
			return nil
		}
		ids := make([]string, 0, len(truncated))
		for _, t := range truncated {
			ids = append(ids, t.ID)
		}
		return s.repo.DeleteByIDs(txCtx, s.sessionID, ids)
	})
	if err != nil {
		s.dirty = true
		s.logger.Error("snapshot save failed",
			"session_id", s.sessionID,
			"sequence_number", snapshot.SequenceNumber,
			"error", err,
		)
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.snapshots = append(append([]models.Snapshot{}, active...), *snapshot)
	s.current = len(s.snapshots) - 1
	s.dirty = false
	return snapshot, nil
}

// Undo moves the cursor one step back and returns the code now in view.
// At the oldest snapshot it reports false and moves nothing.
func (s *Store) Undo() (string, bool) {
	if s.current <= 0 {
		return "", false
	}
	s.current--
	return s.snapshots[s.current].Code, true
}

// Redo moves the cursor one step forward and returns the code now in
// view. At the newest snapshot it reports false and moves nothing.
func (s *Store) Redo() (string, bool) {
	if s.current >= len(s.snapshots)-1 {
		return "", false
	}
	s.current++
	return s.snapshots[s.current].Code, true
}

// Current returns the snapshot under the cursor, or nil for an empty
// history.
func (s *Store) Current() *models.Snapshot {
	if s.current < 0 {
		return nil
	}
	snap := s.snapshots[s.current]
	return &snap
}

// CanUndo reports whether a step back is possible.
func (s *Store) CanUndo() bool {
	return s.current > 0
}

// CanRedo reports whether a step forward is possible.
func (s *Store) CanRedo() bool {
	return s.current < len(s.snapshots)-1
}

// Snapshots returns a copy of the full stack in sequence order, including
// any redo range beyond the cursor.
func (s *Store) Snapshots() []models.Snapshot {
	out := make([]models.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// CursorIndex returns the cursor position, -1 for an empty history.
func (s *Store) CursorIndex() int {
	return s.current
}

// Dirty reports whether the last Save failed, leaving storage behind the
// in-session working state.
func (s *Store) Dirty() bool {
	return s.dirty
}
