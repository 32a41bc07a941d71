package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/services"
)

// State is the sync state of one open document.
type State string

const (
	// StateClean means the working copy equals the last confirmed save.
	StateClean State = "clean"
	// StateDirty means local edits exist and a save is scheduled.
	StateDirty State = "dirty"
	// StateSaving means a save is in flight. Further edits are accepted
	// but do not start a second save.
	StateSaving State = "saving"
	// StateFailed means the last save failed and the working copy was
	// rolled back. Only a manual save leaves this state.
	StateFailed State = "failed"
)

// confirmed is the last server-confirmed baseline. Rollback restores the
// working copy to exactly this content.
type confirmed struct {
	content string
	version int
	status  models.EditingStatus
	savedAt time.Time
}

// Snapshot is a point-in-time view of a controller for status endpoints.
type Snapshot struct {
	DocumentID  string               `json:"document_id"`
	State       State                `json:"state"`
	Content     string               `json:"content"`
	Version     int                  `json:"version"`
	Status      models.EditingStatus `json:"status"`
	LastSavedAt time.Time            `json:"last_saved_at"`
	LastError   string               `json:"last_error,omitempty"`
}

// Controller owns the local working copy of one open document and drives
// its sync state machine: clean → dirty → saving → {clean | dirty | failed}.
// A mutex plus the explicit State enum serialize all transitions, so an
// in-flight save can never overlap another one.
type Controller struct {
	docs      services.DocumentService
	scheduler *SaveScheduler
	logger    *slog.Logger

	documentID string
	actorID    string

	// adminMode attributes saves to an acting admin and turns debounced
	// autosaves into version-less draft heartbeats.
	adminMode bool

	mu           sync.Mutex
	state        State
	working      string
	status       models.EditingStatus
	baseline     confirmed
	pendingEdits bool
	// pendingExplicit marks a manual save that arrived mid-flight; the
	// follow-up must run as explicit, or an admin's committed save would
	// silently degrade to a heartbeat.
	pendingExplicit bool
	closed          bool
	lastErr         error
}

// NewController loads the document and returns a controller holding it as
// the confirmed baseline.
func NewController(
	ctx context.Context,
	docs services.DocumentService,
	documentID, actorID string,
	adminMode bool,
	idleDelay time.Duration,
	logger *slog.Logger,
) (*Controller, error) {
	doc, err := docs.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		docs:       docs,
		logger:     logger,
		documentID: documentID,
		actorID:    actorID,
		adminMode:  adminMode,
		state:      StateClean,
		working:    doc.Content,
		status:     doc.Status,
		baseline: confirmed{
			content: doc.Content,
			version: doc.Version,
			status:  doc.Status,
			savedAt: doc.LastEditedAt,
		},
	}
	c.scheduler = NewSaveScheduler(idleDelay, c.autoSave)

	return c, nil
}

// Edit applies a local edit to the working copy. Edits only mutate local
// state; persistence happens after the debounce window. During an
// in-flight save the edit is accepted and remembered, but no second save
// starts until the flight completes.
func (c *Controller) Edit(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &domain.NotFoundError{Message: "editing session is closed"}
	}

	c.working = content
	if c.status == models.StatusDraft {
		c.status = models.StatusEditing
	}

	switch c.state {
	case StateSaving:
		c.pendingEdits = true
	case StateFailed:
		// Stay failed; the user must retry manually. The edit is kept in
		// the working copy so nothing typed is lost.
		c.pendingEdits = true
	default:
		c.state = StateDirty
		c.scheduler.Touch()
	}

	return nil
}

// Save performs an immediate manual save, bypassing and cancelling the
// debounce so the same content is not saved again seconds later. Manual
// save is also the only way out of the failed state.
func (c *Controller) Save(ctx context.Context, status *models.EditingStatus) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &domain.NotFoundError{Message: "editing session is closed"}
	}
	if status != nil && !status.IsValid() {
		c.mu.Unlock()
		return &domain.ValidationError{Message: fmt.Sprintf("unknown status %q", *status)}
	}
	if status != nil {
		c.status = *status
	}
	if c.state == StateSaving {
		// A flight is already out; queue an explicit follow-up instead of
		// racing it.
		c.pendingEdits = true
		c.pendingExplicit = true
		c.mu.Unlock()
		return nil
	}
	c.scheduler.Cancel()
	c.mu.Unlock()

	return c.performSave(ctx, true)
}

// autoSave is the scheduler callback for debounced saves.
func (c *Controller) autoSave() {
	// Scheduler fires on a timer goroutine; bound the store call.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.performSave(ctx, false); err != nil {
		c.logger.Warn("debounced save failed",
			"document_id", c.documentID,
			"error", err,
		)
	}
}

// performSave runs one save flight. explicit marks manual saves: in admin
// mode only explicit saves bump the version, debounced ones are draft
// heartbeats.
func (c *Controller) performSave(ctx context.Context, explicit bool) error {
	c.mu.Lock()
	if c.closed || c.state == StateSaving {
		c.mu.Unlock()
		return nil
	}
	content := c.working
	status := c.status
	expected := c.baseline.version
	c.state = StateSaving
	c.pendingEdits = false
	c.pendingExplicit = false
	c.mu.Unlock()

	req := &services.SaveDocumentRequest{
		DocumentID:      c.documentID,
		ActorID:         c.actorID,
		Content:         content,
		Status:          status,
		ExpectedVersion: expected,
		Heartbeat:       c.adminMode && !explicit,
	}
	if c.adminMode {
		req.AdminActorID = c.actorID
	}

	doc, err := c.docs.Save(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		// Late completion after unmount: drop it, the session state is
		// gone and must not be resurrected.
		return nil
	}

	if err != nil {
		// Roll the display back to the last confirmed content and hold in
		// failed until a manual retry. No automatic retry: repeated silent
		// failures would mask data loss.
		c.working = c.baseline.content
		c.status = c.baseline.status
		c.state = StateFailed
		c.pendingExplicit = false
		c.lastErr = err
		return err
	}

	c.baseline = confirmed{
		content: content,
		version: doc.Version,
		status:  doc.Status,
		savedAt: doc.LastEditedAt,
	}
	c.status = doc.Status
	c.lastErr = nil

	if c.pendingEdits {
		c.pendingEdits = false
		c.state = StateDirty
		if c.pendingExplicit {
			// A manual save arrived mid-flight; honor it now instead of
			// waiting out another idle window.
			c.pendingExplicit = false
			go c.followUpSave()
		} else {
			// Edits landed while the flight was out; schedule the next one.
			c.scheduler.Touch()
		}
	} else {
		c.state = StateClean
	}

	return nil
}

// followUpSave runs the explicit save queued by a manual Save that arrived
// while a flight was out.
func (c *Controller) followUpSave() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.performSave(ctx, true); err != nil {
		c.logger.Warn("queued manual save failed",
			"document_id", c.documentID,
			"error", err,
		)
	}
}

// Snapshot returns a point-in-time view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		DocumentID:  c.documentID,
		State:       c.state,
		Content:     c.working,
		Version:     c.baseline.version,
		Status:      c.status,
		LastSavedAt: c.baseline.savedAt,
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

// Close unmounts the session: clears the debounce timer and discards any
// save completion that arrives afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.scheduler.Stop()
}
