package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/services"
)

// stubDocService is an in-memory DocumentService that records saves and can
// block flights or fail on demand.
type stubDocService struct {
	mu      sync.Mutex
	doc     models.Document
	saves   []services.SaveDocumentRequest
	failErr error

	// When set, Save blocks until the channel is closed, letting tests
	// inject edits while a flight is out.
	block chan struct{}
}

func newStubDocService(content string, version int) *stubDocService {
	return &stubDocService{
		doc: models.Document{
			ID:           "doc-1",
			OwnerID:      "owner-1",
			Content:      content,
			Version:      version,
			Status:       models.StatusDraft,
			LastEditedAt: time.Now(),
		},
	}
}

func (s *stubDocService) Load(ctx context.Context, documentID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	return &doc, nil
}

func (s *stubDocService) Save(ctx context.Context, req *services.SaveDocumentRequest) (*models.Document, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves = append(s.saves, *req)
	if s.failErr != nil {
		return nil, s.failErr
	}

	s.doc.Content = req.Content
	s.doc.Status = req.Status
	s.doc.LastEditedAt = time.Now()
	if !req.Heartbeat {
		s.doc.Version++
	}
	doc := s.doc
	return &doc, nil
}

func (s *stubDocService) Status(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.DocumentStatus{
		ID:           s.doc.ID,
		Version:      s.doc.Version,
		Status:       s.doc.Status,
		LastEditedAt: s.doc.LastEditedAt,
	}, nil
}

func (s *stubDocService) Reset(ctx context.Context, documentID, actorID string) error {
	return nil
}

func (s *stubDocService) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *stubDocService) lastSave() services.SaveDocumentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[len(s.saves)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestController_DebouncedSaveCoalescesEdits verifies that a burst of edits
// produces a single save carrying the final content, and versions advance
// one per committed save.
func TestController_DebouncedSaveCoalescesEdits(t *testing.T) {
	store := newStubDocService("hello", 0)
	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, 40*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	for _, content := range []string{"h", "he", "hel", "hello world"} {
		if err := c.Edit(content); err != nil {
			t.Fatalf("Edit: %v", err)
		}
	}

	if snap := c.Snapshot(); snap.State != StateDirty {
		t.Fatalf("expected dirty state during burst, got %s", snap.State)
	}

	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 1 })

	save := store.lastSave()
	if save.Content != "hello world" {
		t.Errorf("expected final content saved, got %q", save.Content)
	}
	if save.ExpectedVersion != 0 {
		t.Errorf("expected version 0 sent, got %d", save.ExpectedVersion)
	}

	waitFor(t, time.Second, func() bool { return c.Snapshot().State == StateClean })
	if snap := c.Snapshot(); snap.Version != 1 {
		t.Errorf("expected confirmed version 1, got %d", snap.Version)
	}

	// A second burst saves again with the advanced version.
	if err := c.Edit("hello world!"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 2 })
	save = store.lastSave()
	if save.ExpectedVersion != 1 {
		t.Errorf("expected version 1 sent on second save, got %d", save.ExpectedVersion)
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().Version == 2 })
}

// TestController_EditDuringFlightQueuesFollowUp verifies that an edit landing
// while a save is in flight does not start a concurrent save, and a follow-up
// save runs after the flight confirms.
func TestController_EditDuringFlightQueuesFollowUp(t *testing.T) {
	store := newStubDocService("base", 3)
	release := make(chan struct{})
	store.block = release

	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.Edit("first"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	// Wait until the flight is out (blocked inside Save).
	waitFor(t, 2*time.Second, func() bool { return c.Snapshot().State == StateSaving })

	if err := c.Edit("second"); err != nil {
		t.Fatalf("Edit during flight: %v", err)
	}
	if got := c.Snapshot().State; got != StateSaving {
		t.Fatalf("edit during flight must not leave saving state, got %s", got)
	}

	store.mu.Lock()
	store.block = nil
	store.mu.Unlock()
	close(release)

	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 2 })
	if save := store.lastSave(); save.Content != "second" {
		t.Errorf("follow-up save should carry latest content, got %q", save.Content)
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().State == StateClean })
	if snap := c.Snapshot(); snap.Version != 5 {
		t.Errorf("expected version 5 after two saves from 3, got %d", snap.Version)
	}
}

// TestController_FailedSaveRollsBackAndHolds verifies the failure contract:
// working copy rolls back to the confirmed baseline, state holds at failed
// with no automatic retry, and a manual save is the way out.
func TestController_FailedSaveRollsBackAndHolds(t *testing.T) {
	store := newStubDocService("stable", 7)
	store.failErr = errors.New("store unavailable")

	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.Edit("doomed edit"); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return c.Snapshot().State == StateFailed })

	snap := c.Snapshot()
	if snap.Content != "stable" {
		t.Errorf("expected rollback to baseline content, got %q", snap.Content)
	}
	if snap.Version != 7 {
		t.Errorf("expected baseline version preserved, got %d", snap.Version)
	}
	if snap.LastError == "" {
		t.Error("expected last error to be surfaced")
	}

	saved := store.saveCount()
	time.Sleep(150 * time.Millisecond)
	if store.saveCount() != saved {
		t.Fatal("failed state must not retry automatically")
	}

	// Edits while failed are kept locally but do not reschedule.
	if err := c.Edit("retry text"); err != nil {
		t.Fatalf("Edit while failed: %v", err)
	}
	if got := c.Snapshot().State; got != StateFailed {
		t.Fatalf("edit must not leave failed state, got %s", got)
	}

	// Manual save recovers.
	store.mu.Lock()
	store.failErr = nil
	store.mu.Unlock()

	if err := c.Save(context.Background(), nil); err != nil {
		t.Fatalf("manual Save: %v", err)
	}
	snap = c.Snapshot()
	if snap.State != StateClean {
		t.Errorf("expected clean after manual retry, got %s", snap.State)
	}
	if snap.Version != 8 {
		t.Errorf("expected version 8 after recovery, got %d", snap.Version)
	}
	if save := store.lastSave(); save.Content != "retry text" {
		t.Errorf("manual retry should save the kept edit, got %q", save.Content)
	}
}

// TestController_ManualSaveCancelsDebounce verifies that a manual save
// bypasses the debounce and the scheduled save does not fire afterwards.
func TestController_ManualSaveCancelsDebounce(t *testing.T) {
	store := newStubDocService("", 0)
	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, 60*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.Edit("typed"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	status := models.StatusReview
	if err := c.Save(context.Background(), &status); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := store.saveCount(); got != 1 {
		t.Fatalf("expected 1 save immediately, got %d", got)
	}
	if save := store.lastSave(); save.Status != models.StatusReview {
		t.Errorf("manual save should carry requested status, got %s", save.Status)
	}

	// The debounced save must not follow with a duplicate.
	time.Sleep(200 * time.Millisecond)
	if got := store.saveCount(); got != 1 {
		t.Fatalf("debounced duplicate fired after manual save: %d saves", got)
	}
}

// TestController_CloseDiscardsLateCompletion verifies that a save completing
// after Close does not resurrect session state or reschedule anything.
func TestController_CloseDiscardsLateCompletion(t *testing.T) {
	store := newStubDocService("base", 1)
	release := make(chan struct{})
	store.block = release

	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, 10*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	if err := c.Edit("in flight"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return c.Snapshot().State == StateSaving })

	c.Close()
	close(release)

	// The flight completes against the store, but the controller stays
	// closed and never transitions out of its final state.
	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 1 })
	time.Sleep(50 * time.Millisecond)

	if err := c.Edit("after close"); err == nil {
		t.Fatal("expected error editing a closed session")
	}
	if err := c.Save(context.Background(), nil); err == nil {
		t.Fatal("expected error saving a closed session")
	}
}

// TestController_AdminAutosaveIsHeartbeat verifies that in admin mode the
// debounced save is a version-less heartbeat and the explicit save bumps
// the version, both attributed to the acting admin.
func TestController_AdminAutosaveIsHeartbeat(t *testing.T) {
	store := newStubDocService("owner draft", 4)
	c, err := NewController(context.Background(), store, "doc-1", "admin-9", true, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.Edit("admin touch-up"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 1 })

	save := store.lastSave()
	if !save.Heartbeat {
		t.Error("admin debounced save should be a heartbeat")
	}
	if save.AdminActorID != "admin-9" {
		t.Errorf("expected admin attribution, got %q", save.AdminActorID)
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().State == StateClean })
	if got := c.Snapshot().Version; got != 4 {
		t.Errorf("heartbeat must not bump version, got %d", got)
	}

	// Explicit save commits a version.
	if err := c.Edit("admin final"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := c.Save(context.Background(), nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	save = store.lastSave()
	if save.Heartbeat {
		t.Error("explicit admin save must not be a heartbeat")
	}
	if got := c.Snapshot().Version; got != 5 {
		t.Errorf("expected version 5 after explicit admin save, got %d", got)
	}
}

// TestController_ManualSaveDuringHeartbeatFlightStaysExplicit verifies that
// an admin's manual save issued while a debounced heartbeat is in flight
// runs as an explicit follow-up and commits a version, instead of degrading
// to another heartbeat.
func TestController_ManualSaveDuringHeartbeatFlightStaysExplicit(t *testing.T) {
	store := newStubDocService("owner draft", 4)
	release := make(chan struct{})
	store.block = release

	c, err := NewController(context.Background(), store, "doc-1", "admin-9", true, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.Edit("admin touch-up"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	// The debounced heartbeat flight is now out (blocked in the store).
	waitFor(t, 2*time.Second, func() bool { return c.Snapshot().State == StateSaving })

	if err := c.Save(context.Background(), nil); err != nil {
		t.Fatalf("Save during flight: %v", err)
	}

	store.mu.Lock()
	store.block = nil
	store.mu.Unlock()
	close(release)

	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 2 })
	if save := store.lastSave(); save.Heartbeat {
		t.Error("queued manual save must not run as a heartbeat")
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().Version == 5 })
	waitFor(t, time.Second, func() bool { return c.Snapshot().State == StateClean })
}

// TestController_QueuedManualSaveRunsWithoutIdleWait verifies that the
// follow-up for a manual save queued behind a flight fires on flight
// completion, not after another debounce window.
func TestController_QueuedManualSaveRunsWithoutIdleWait(t *testing.T) {
	store := newStubDocService("base", 0)
	release := make(chan struct{})
	store.block = release

	// The idle delay is far beyond the test timeout; only an immediate
	// follow-up can produce the second save in time.
	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	saveDone := make(chan error, 1)
	go func() {
		saveDone <- c.Save(context.Background(), nil)
	}()
	waitFor(t, 2*time.Second, func() bool { return c.Snapshot().State == StateSaving })

	if err := c.Edit("typed during flight"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := c.Save(context.Background(), nil); err != nil {
		t.Fatalf("Save during flight: %v", err)
	}

	store.mu.Lock()
	store.block = nil
	store.mu.Unlock()
	close(release)

	if err := <-saveDone; err != nil {
		t.Fatalf("first Save: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return store.saveCount() == 2 })
	if save := store.lastSave(); save.Content != "typed during flight" {
		t.Errorf("follow-up should carry the latest content, got %q", save.Content)
	}
	waitFor(t, time.Second, func() bool { return c.Snapshot().Version == 2 })
}

// TestController_SaveRejectsUnknownStatus verifies manual save validates the
// requested status before touching session state.
func TestController_SaveRejectsUnknownStatus(t *testing.T) {
	store := newStubDocService("", 0)
	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	bad := models.EditingStatus("archived")
	if err := c.Save(context.Background(), &bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := c.Snapshot().Status; got != models.StatusDraft {
		t.Errorf("rejected status must not stick, got %s", got)
	}
	if store.saveCount() != 0 {
		t.Fatal("rejected save must not reach the store")
	}
}

// TestController_DraftPromotesToEditingOnFirstEdit verifies the implicit
// draft → editing promotion.
func TestController_DraftPromotesToEditingOnFirstEdit(t *testing.T) {
	store := newStubDocService("", 0)
	c, err := NewController(context.Background(), store, "doc-1", "owner-1", false, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if got := c.Snapshot().Status; got != models.StatusDraft {
		t.Fatalf("expected draft before edits, got %s", got)
	}
	if err := c.Edit("first keystroke"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got := c.Snapshot().Status; got != models.StatusEditing {
		t.Errorf("expected editing after first edit, got %s", got)
	}
}
