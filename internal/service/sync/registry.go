package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/domain"
	"inkwell/internal/domain/services"
)

// Registry tracks open editing sessions by session ID. Each session owns
// exactly one document's working copy for its lifetime.
type Registry struct {
	docs      services.DocumentService
	idleDelay time.Duration
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewRegistry creates an empty session registry.
func NewRegistry(docs services.DocumentService, idleDelay time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		docs:      docs,
		idleDelay: idleDelay,
		logger:    logger,
		sessions:  make(map[string]*Controller),
	}
}

// Open loads the document and registers a new editing session for it,
// returning the session ID.
func (r *Registry) Open(ctx context.Context, documentID, actorID string, adminMode bool) (string, *Controller, error) {
	ctrl, err := NewController(ctx, r.docs, documentID, actorID, adminMode, r.idleDelay, r.logger)
	if err != nil {
		return "", nil, err
	}

	sessionID := uuid.NewString()

	r.mu.Lock()
	r.sessions[sessionID] = ctrl
	r.mu.Unlock()

	r.logger.Info("editing session opened",
		"session_id", sessionID,
		"document_id", documentID,
		"actor_id", actorID,
		"admin_mode", adminMode,
	)

	return sessionID, ctrl, nil
}

// Get returns the controller for a session ID.
func (r *Registry) Get(sessionID string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctrl, ok := r.sessions[sessionID]
	if !ok {
		return nil, &domain.NotFoundError{Message: "editing session not found"}
	}
	return ctrl, nil
}

// Close unmounts a session: cancels its timers and removes it.
func (r *Registry) Close(sessionID string) error {
	r.mu.Lock()
	ctrl, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return &domain.NotFoundError{Message: "editing session not found"}
	}

	ctrl.Close()
	r.logger.Info("editing session closed", "session_id", sessionID)
	return nil
}

// CloseAll unmounts every open session. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for id, ctrl := range sessions {
		ctrl.Close()
		r.logger.Debug("editing session closed on shutdown", "session_id", id)
	}
}
