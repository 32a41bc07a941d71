package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"inkwell/internal/domain"
	"inkwell/internal/domain/services"
	"inkwell/internal/tuning"
)

// Registry tracks open chat sessions by session ID. Each session owns one
// in-memory transcript bound to at most one persisted conversation.
type Registry struct {
	convs  services.ConversationService
	tuning tuning.SessionTuning
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Manager
}

// NewRegistry creates an empty chat session registry.
func NewRegistry(convs services.ConversationService, tuning tuning.SessionTuning, logger *slog.Logger) *Registry {
	return &Registry{
		convs:    convs,
		tuning:   tuning,
		logger:   logger,
		sessions: make(map[string]*Manager),
	}
}

// Open registers a new chat session and returns its session ID.
func (r *Registry) Open(ownerID string, contextRef *string, contextName string) (string, *Manager) {
	mgr := NewManager(r.convs, ownerID, contextRef, contextName, r.tuning, r.logger)
	sessionID := uuid.NewString()

	r.mu.Lock()
	r.sessions[sessionID] = mgr
	r.mu.Unlock()

	r.logger.Info("chat session opened",
		"session_id", sessionID,
		"owner_id", ownerID,
	)

	return sessionID, mgr
}

// Get returns the manager for a session ID.
func (r *Registry) Get(sessionID string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mgr, ok := r.sessions[sessionID]
	if !ok {
		return nil, &domain.NotFoundError{Message: "chat session not found"}
	}
	return mgr, nil
}

// Close removes a chat session. The bound conversation, if any, stays
// persisted; only the in-memory session state is discarded.
func (r *Registry) Close(sessionID string) error {
	r.mu.Lock()
	_, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return &domain.NotFoundError{Message: "chat session not found"}
	}

	r.logger.Info("chat session closed", "session_id", sessionID)
	return nil
}
