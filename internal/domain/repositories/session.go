package repositories

import (
	"context"

	"cadence/internal/domain/models"
)

// SessionRepository persists animation sessions. All operations are scoped
// by user id; cross-user access is structurally impossible at this layer.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID, userID string) (*models.Session, error)
	List(ctx context.Context, userID string) ([]models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	// Delete soft-deletes a session and returns the deleted record.
	Delete(ctx context.Context, sessionID, userID string) (*models.Session, error)
	// Touch bumps updated_at, used when a new snapshot lands.
	Touch(ctx context.Context, sessionID string) error
}
