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

// PostgresSessionRepository implements the SessionRepository interface using
// PostgreSQL.
type PostgresSessionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSessionRepository creates a new PostgresSessionRepository.
func NewSessionRepository(config *RepositoryConfig) repositories.SessionRepository {
	return &PostgresSessionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new session.
func (r *PostgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, title, aspect, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		session.UserID,
		session.Title,
		session.Aspect,
		session.CreatedAt,
		session.UpdatedAt,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("session '%s' already exists", session.Title),
				ResourceType: "session",
			}
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// Get retrieves a session by ID.
func (r *PostgresSessionRepository) Get(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, aspect, created_at, updated_at, deleted_at
		FROM %s
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, r.tables.Sessions)

	var session models.Session
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, sessionID, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.Title,
		&session.Aspect,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.DeletedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &session, nil
}

// List retrieves all sessions for a user, most recently updated first.
func (r *PostgresSessionRepository) List(ctx context.Context, userID string) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, aspect, created_at, updated_at, deleted_at
		FROM %s
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Title,
			&session.Aspect,
			&session.CreatedAt,
			&session.UpdatedAt,
			&session.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	// Return empty slice instead of nil
	if sessions == nil {
		sessions = []models.Session{}
	}

	return sessions, nil
}

// Update updates a session's mutable fields.
func (r *PostgresSessionRepository) Update(ctx context.Context, session *models.Session) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, aspect = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5 AND deleted_at IS NULL
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		session.Title,
		session.Aspect,
		session.UpdatedAt,
		session.ID,
		session.UserID,
	)

	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete soft-deletes a session.
func (r *PostgresSessionRepository) Delete(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING id, user_id, title, aspect, created_at, updated_at, deleted_at
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	row := executor.QueryRow(ctx, query, sessionID, userID)

	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Title,
		&session.Aspect,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.DeletedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("delete session: %w", err)
	}

	return &session, nil
}

// Touch bumps updated_at so session lists sort by recent activity.
func (r *PostgresSessionRepository) Touch(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`, r.tables.Sessions)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, time.Now(), sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}
