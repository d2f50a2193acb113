package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cadence/internal/domain"
	"cadence/internal/domain/repositories"
	"cadence/internal/service/generation"
	"cadence/internal/service/history"
)

// Manager hands out the single Runtime per open session, loading snapshot
// history on first access and evicting on session deletion.
type Manager struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime

	sessions    repositories.SessionRepository
	snapshots   repositories.SnapshotRepository
	tx          repositories.TransactionManager
	provider    generation.Provider
	maxAttempts int
	logger      *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(
	sessions repositories.SessionRepository,
	snapshots repositories.SnapshotRepository,
	tx repositories.TransactionManager,
	provider generation.Provider,
	maxAttempts int,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		runtimes:    make(map[string]*Runtime),
		sessions:    sessions,
		snapshots:   snapshots,
		tx:          tx,
		provider:    provider,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Get returns the runtime for a session the user owns, creating and
// hydrating it on first access. Ownership is enforced on every call, not
// just on creation.
func (m *Manager) Get(ctx context.Context, sessionID, userID string) (*Runtime, error) {
	m.mu.Lock()
	if rt, ok := m.runtimes[sessionID]; ok {
		m.mu.Unlock()
		if rt.Session().UserID != userID {
			return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
		}
		return rt, nil
	}
	m.mu.Unlock()

	// Hydration happens outside the lock; a concurrent first access for
	// the same session is resolved below in favor of whoever inserted
	// first.
	session, err := m.sessions.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	store := history.NewStore(m.snapshots, m.tx, m.logger, sessionID)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	rt := newRuntime(session, m.sessions, store, m.provider, m.maxAttempts, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.runtimes[sessionID]; ok {
		return existing, nil
	}
	m.runtimes[sessionID] = rt
	return rt, nil
}

// Evict drops a session's runtime, if loaded. Called when the session is
// deleted.
func (m *Manager) Evict(sessionID string) {
	m.mu.Lock()
	delete(m.runtimes, sessionID)
	m.mu.Unlock()
}
