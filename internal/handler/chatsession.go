package handler

import (
	"log/slog"
	"net/http"

	"inkwell/internal/domain/models"
	"inkwell/internal/httputil"
	"inkwell/internal/service/session"
)

// ChatSessionHandler handles chat session HTTP requests. A session wraps
// one conversation session manager: observed messages drive conversation
// creation and idempotent persistence, history loads replace the
// transcript.
type ChatSessionHandler struct {
	sessions *session.Registry
	logger   *slog.Logger
}

// NewChatSessionHandler creates a new chat session handler
func NewChatSessionHandler(sessions *session.Registry, logger *slog.Logger) *ChatSessionHandler {
	return &ChatSessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type openChatSessionRequest struct {
	ContextRef  *string `json:"context_ref,omitempty"`
	ContextName string  `json:"context_name,omitempty"`
}

type openChatSessionResponse struct {
	SessionID string `json:"session_id"`
}

type observeMessageRequest struct {
	LocalID  string                 `json:"local_id"`
	Role     string                 `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type loadHistoryRequest struct {
	ConversationID string `json:"conversation_id"`
}

type chatSessionState struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	Messages       []models.Message `json:"messages"`
}

// OpenSession registers a new chat session
// POST /api/chat-sessions
func (h *ChatSessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req openChatSessionRequest
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sessionID, _ := h.sessions.Open(actorID, req.ContextRef, req.ContextName)

	httputil.RespondJSON(w, http.StatusCreated, openChatSessionResponse{SessionID: sessionID})
}

// ObserveMessage feeds one new message into the session manager
// POST /api/chat-sessions/{id}/messages
func (h *ChatSessionHandler) ObserveMessage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	mgr, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	var req observeMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := models.Message{
		LocalID:  req.LocalID,
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	}

	if err := mgr.ObserveMessage(r.Context(), msg); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, chatSessionState{
		ConversationID: mgr.ConversationID(),
		Messages:       mgr.Messages(),
	})
}

// GetMessages returns the session's in-memory transcript
// GET /api/chat-sessions/{id}/messages
func (h *ChatSessionHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	mgr, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chatSessionState{
		ConversationID: mgr.ConversationID(),
		Messages:       mgr.Messages(),
	})
}

// LoadHistory binds the session to a past conversation and replaces its
// transcript
// POST /api/chat-sessions/{id}/history
func (h *ChatSessionHandler) LoadHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	mgr, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	var req loadHistoryRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := mgr.LoadHistory(r.Context(), req.ConversationID); err != nil {
		// The previous transcript is untouched on failure.
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, chatSessionState{
		ConversationID: mgr.ConversationID(),
		Messages:       mgr.Messages(),
	})
}

// CloseSession discards the in-memory session state
// DELETE /api/chat-sessions/{id}
func (h *ChatSessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	if err := h.sessions.Close(r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
