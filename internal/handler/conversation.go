package handler

import (
	"log/slog"
	"net/http"

	"inkwell/internal/domain/services"
	"inkwell/internal/httputil"
)

// ConversationHandler handles conversation HTTP requests
type ConversationHandler struct {
	convService services.ConversationService
	logger      *slog.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(convService services.ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		convService: convService,
		logger:      logger,
	}
}

// ListConversations returns the actor's active conversations, newest first
// GET /api/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	convs, err := h.convService.List(r.Context(), actorID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, convs)
}

// ArchiveConversation soft-deletes a conversation
// DELETE /api/conversations/{id}
func (h *ConversationHandler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "conversation ID is required")
		return
	}

	if err := h.convService.Archive(r.Context(), id, actorID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetMessages returns a conversation's messages in creation order
// GET /api/conversations/{id}/messages
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "conversation ID is required")
		return
	}

	msgs, err := h.convService.Messages(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msgs)
}
