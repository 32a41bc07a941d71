package handler

import (
	"log/slog"
	"net/http"

	"inkwell/internal/domain/models"
	"inkwell/internal/httputil"
	"inkwell/internal/service/sync"
)

// EditSessionHandler handles editing session HTTP requests. A session
// wraps one document's sync controller: edits feed the debounced
// scheduler, manual save bypasses it, closing unmounts it.
type EditSessionHandler struct {
	sessions *sync.Registry
	logger   *slog.Logger
}

// NewEditSessionHandler creates a new edit session handler
func NewEditSessionHandler(sessions *sync.Registry, logger *slog.Logger) *EditSessionHandler {
	return &EditSessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type openEditSessionRequest struct {
	AdminMode bool `json:"admin_mode"`
}

type openEditSessionResponse struct {
	SessionID string        `json:"session_id"`
	Snapshot  sync.Snapshot `json:"snapshot"`
}

type editRequest struct {
	Content string `json:"content"`
}

type manualSaveRequest struct {
	Status *models.EditingStatus `json:"status,omitempty"`
}

// OpenSession loads a document and opens an editing session for it
// POST /api/documents/{id}/sessions
func (h *EditSessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	documentID := r.PathValue("id")
	if documentID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "document ID is required")
		return
	}

	var req openEditSessionRequest
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.AdminMode && !httputil.IsAdmin(r) {
		httputil.RespondError(w, http.StatusForbidden, "admin mode requires the admin claim")
		return
	}

	sessionID, ctrl, err := h.sessions.Open(r.Context(), documentID, actorID, req.AdminMode)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, openEditSessionResponse{
		SessionID: sessionID,
		Snapshot:  ctrl.Snapshot(),
	})
}

// Edit applies a local edit to the session's working copy
// POST /api/edit-sessions/{id}/edits
func (h *EditSessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	ctrl, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	var req editRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := ctrl.Edit(req.Content); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, ctrl.Snapshot())
}

// Save performs an immediate manual save, cancelling any pending debounce
// POST /api/edit-sessions/{id}/save
func (h *EditSessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	ctrl, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	var req manualSaveRequest
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := ctrl.Save(r.Context(), req.Status); err != nil {
		// The working copy was rolled back; the snapshot carries the
		// last-confirmed content and the error for the UI to display.
		httputil.RespondErrorWithExtras(w, http.StatusServiceUnavailable, "save failed", map[string]interface{}{
			"snapshot": ctrl.Snapshot(),
		})
		return
	}

	httputil.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// GetSession returns the session's current sync snapshot
// GET /api/edit-sessions/{id}
func (h *EditSessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	ctrl, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// CloseSession unmounts the session, clearing timers and discarding late
// save completions
// DELETE /api/edit-sessions/{id}
func (h *EditSessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	if err := h.sessions.Close(r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
