// Package session implements CRUD over animation sessions. Turn
// execution lives in the turn package; this service only manages the
// session records themselves.
package session

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"cadence/internal/config"
	"cadence/internal/domain"
	"cadence/internal/domain/models"
	"cadence/internal/domain/repositories"
)

// Evictor drops in-memory session state on deletion.
type Evictor interface {
	Evict(sessionID string)
}

// CreateSessionRequest carries the fields a client may set on creation.
type CreateSessionRequest struct {
	UserID string `json:"-"`
	Title  string `json:"title"`
	Aspect string `json:"aspect"`
}

// UpdateSessionRequest carries the mutable session fields.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// Service manages session records.
type Service struct {
	sessions  repositories.SessionRepository
	snapshots repositories.SnapshotRepository
	evictor   Evictor
	logger    *slog.Logger
}

// NewService creates a session service.
func NewService(sessions repositories.SessionRepository, snapshots repositories.SnapshotRepository, evictor Evictor, logger *slog.Logger) *Service {
	return &Service{
		sessions:  sessions,
		snapshots: snapshots,
		evictor:   evictor,
		logger:    logger,
	}
}

// CreateSession creates a new session for the user.
func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	if err := s.validateCreateSessionRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	aspect := req.Aspect
	if aspect == "" {
		aspect = "16:9"
	}

	session := &models.Session{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Title:  req.Title,
		Aspect: aspect,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session created", "session_id", session.ID, "user_id", session.UserID)
	return session, nil
}

// GetSession retrieves a session the user owns.
func (s *Service) GetSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return s.sessions.Get(ctx, sessionID, userID)
}

// ListSessions lists the user's sessions, most recently updated first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.List(ctx, userID)
}

// UpdateSession renames a session.
func (s *Service) UpdateSession(ctx context.Context, sessionID, userID string, req *UpdateSessionRequest) (*models.Session, error) {
	if err := s.validateUpdateSessionRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	session, err := s.sessions.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	session.Title = req.Title
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// DeleteSession soft-deletes a session, removes its snapshots, and evicts
// any in-memory runtime.
func (s *Service) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if _, err := s.sessions.Delete(ctx, sessionID, userID); err != nil {
		return err
	}

	if err := s.snapshots.DeleteBySession(ctx, sessionID); err != nil {
		// The session row is already gone; orphaned snapshots are
		// unreachable but worth logging.
		s.logger.Error("failed to delete session snapshots", "session_id", sessionID, "error", err)
	}

	if s.evictor != nil {
		s.evictor.Evict(sessionID)
	}

	s.logger.Info("session deleted", "session_id", sessionID, "user_id", userID)
	return nil
}

// Validation methods

func (s *Service) validateCreateSessionRequest(req *CreateSessionRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxSessionTitleLength),
		),
		validation.Field(&req.Aspect,
			validation.In("", "16:9", "9:16", "1:1", "4:3"),
		),
	)
}

func (s *Service) validateUpdateSessionRequest(req *UpdateSessionRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxSessionTitleLength),
		),
	)
}
