package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cadence/internal/domain"
	"cadence/internal/domain/models"
	"cadence/internal/domain/repositories"
)

// PostgresSnapshotRepository implements the SnapshotRepository interface
// using PostgreSQL. Snapshot rows are immutable; there is no update path.
type PostgresSnapshotRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSnapshotRepository creates a new PostgresSnapshotRepository.
func NewSnapshotRepository(config *RepositoryConfig) repositories.SnapshotRepository {
	return &PostgresSnapshotRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// ListBySession returns all snapshots for a session ordered by
// sequence_number ascending. sequence_number is the sole ordering key;
// created_at is informational.
func (r *PostgresSnapshotRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, code, prompt, summary, skills, sequence_number, created_at
		FROM %s
		WHERE session_id = $1
		ORDER BY sequence_number ASC
	`, r.tables.Snapshots)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		var snap models.Snapshot
		err := rows.Scan(
			&snap.ID,
			&snap.SessionID,
			&snap.Code,
			&snap.Prompt,
			&snap.Summary,
			&snap.Skills,
			&snap.SequenceNumber,
			&snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	// A fresh session has no snapshots; that is not an error.
	if snapshots == nil {
		snapshots = []models.Snapshot{}
	}

	return snapshots, nil
}

// Insert stores a snapshot and fills in the server-assigned id and
// created_at on the passed record.
func (r *PostgresSnapshotRepository) Insert(ctx context.Context, snapshot *models.Snapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, code, prompt, summary, skills, sequence_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, r.tables.Snapshots)

	if snapshot.Skills == nil {
		snapshot.Skills = []string{}
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		snapshot.SessionID,
		snapshot.Code,
		snapshot.Prompt,
		snapshot.Summary,
		snapshot.Skills,
		snapshot.SequenceNumber,
		time.Now(),
	).Scan(&snapshot.ID, &snapshot.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("session %s: %w", snapshot.SessionID, domain.ErrNotFound)
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return nil
}

// DeleteByIDs removes the given snapshots by explicit id list, scoped to the
// session. Truncated redo history is deleted this way rather than by
// sequence range so records created by a concurrent writer are never
// touched.
func (r *PostgresSnapshotRepository) DeleteByIDs(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE session_id = $1 AND id = ANY($2)
	`, r.tables.Snapshots)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, sessionID, ids)
	if err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}

	if int(result.RowsAffected()) != len(ids) {
		r.logger.Warn("snapshot truncation removed fewer rows than requested",
			"session_id", sessionID,
			"requested", len(ids),
			"deleted", result.RowsAffected(),
		)
	}

	return nil
}

// DeleteBySession removes all snapshots for a discarded session.
func (r *PostgresSnapshotRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE session_id = $1
	`, r.tables.Snapshots)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete session snapshots: %w", err)
	}

	return nil
}
