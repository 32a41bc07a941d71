package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/services"
	"inkwell/internal/tuning"
)

// stubConvService is an in-memory ConversationService recording creates and
// appends. Messages calls can be made to block per conversation so load
// races are reproducible.
type stubConvService struct {
	mu        sync.Mutex
	creates   []services.CreateConversationRequest
	appends   []services.AppendMessageRequest
	history   map[string][]models.Message
	createErr error
	appendErr error
	nextMsgID int

	// blockLoads maps conversation ID to a channel the Messages call waits
	// on before returning.
	blockLoads map[string]chan struct{}

	// blockCreate, when non-nil, blocks Create until the channel is closed.
	blockCreate chan struct{}
}

func newStubConvService() *stubConvService {
	return &stubConvService{
		history:    make(map[string][]models.Message),
		blockLoads: make(map[string]chan struct{}),
	}
}

func (s *stubConvService) Create(ctx context.Context, req *services.CreateConversationRequest) (*models.Conversation, error) {
	s.mu.Lock()
	block := s.blockCreate
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}
	s.creates = append(s.creates, *req)
	return &models.Conversation{
		ID:        fmt.Sprintf("conv-%d", len(s.creates)),
		OwnerID:   req.OwnerID,
		Title:     req.Title,
		CreatedAt: time.Now(),
	}, nil
}

func (s *stubConvService) List(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	return nil, nil
}

func (s *stubConvService) Archive(ctx context.Context, conversationID, actorID string) error {
	return nil
}

func (s *stubConvService) Append(ctx context.Context, req *services.AppendMessageRequest) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appendErr != nil {
		return nil, s.appendErr
	}
	s.appends = append(s.appends, *req)
	s.nextMsgID++
	return &models.Message{
		ID:             fmt.Sprintf("msg-%d", s.nextMsgID),
		ConversationID: req.ConversationID,
		LocalID:        req.LocalID,
		Role:           req.Role,
		Content:        req.Content,
		CreatedAt:      time.Now(),
	}, nil
}

func (s *stubConvService) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	block := s.blockLoads[conversationID]
	msgs, ok := s.history[conversationID]
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if !ok {
		return nil, &domain.NotFoundError{Message: "conversation not found"}
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *stubConvService) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates)
}

func (s *stubConvService) appendedContents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.appends))
	for i, a := range s.appends {
		out[i] = a.Content
	}
	return out
}

func testTuning() tuning.SessionTuning {
	return tuning.SessionTuning{TitleMaxRunes: 60, ContextSeparator: " — "}
}

func testManager(convs services.ConversationService, contextRef *string, contextName string) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(convs, "owner-1", contextRef, contextName, testTuning(), logger)
}

// TestManager_FirstMessageCreatesConversationOnce verifies the single-shot
// creation contract: a burst of messages on a fresh session produces exactly
// one conversation and persists every message in order.
func TestManager_FirstMessageCreatesConversationOnce(t *testing.T) {
	store := newStubConvService()
	m := testManager(store, nil, "")
	ctx := context.Background()

	burst := []models.Message{
		{LocalID: "l-1", Role: models.RoleUser, Content: "Draft an intro about tidal power"},
		{LocalID: "l-2", Role: models.RoleAssistant, Content: "Tidal power harnesses..."},
		{LocalID: "l-3", Role: models.RoleUser, Content: "Make it shorter"},
	}
	for _, msg := range burst {
		if err := m.ObserveMessage(ctx, msg); err != nil {
			t.Fatalf("ObserveMessage: %v", err)
		}
	}

	if got := store.createCount(); got != 1 {
		t.Fatalf("expected exactly 1 conversation created, got %d", got)
	}
	if m.ConversationID() != "conv-1" {
		t.Errorf("expected bound conversation conv-1, got %q", m.ConversationID())
	}

	want := []string{"Draft an intro about tidal power", "Tidal power harnesses...", "Make it shorter"}
	got := store.appendedContents()
	if len(got) != len(want) {
		t.Fatalf("expected %d appends, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("append %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	// The in-memory list adopted server identities.
	for i, msg := range m.Messages() {
		if msg.ID == "" {
			t.Errorf("message %d did not adopt a server ID", i)
		}
	}
}

// TestManager_DuplicateLocalIDPersistedOnce verifies duplicate suppression:
// observing the same client message twice appends it exactly once.
func TestManager_DuplicateLocalIDPersistedOnce(t *testing.T) {
	store := newStubConvService()
	m := testManager(store, nil, "")
	ctx := context.Background()

	msg := models.Message{LocalID: "dup-1", Role: models.RoleUser, Content: "hello"}
	if err := m.ObserveMessage(ctx, msg); err != nil {
		t.Fatalf("ObserveMessage: %v", err)
	}
	if err := m.ObserveMessage(ctx, msg); err != nil {
		t.Fatalf("ObserveMessage (repeat): %v", err)
	}

	if got := len(store.appendedContents()); got != 1 {
		t.Fatalf("expected 1 append for duplicated local ID, got %d", got)
	}
}

// TestManager_ServerMessagesNotRePersisted verifies that messages carrying a
// server ID (echoes, history rows) are never written back.
func TestManager_ServerMessagesNotRePersisted(t *testing.T) {
	store := newStubConvService()
	m := testManager(store, nil, "")
	ctx := context.Background()

	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "first"}); err != nil {
		t.Fatalf("ObserveMessage: %v", err)
	}
	echoed := models.Message{ID: "msg-echo", Role: models.RoleAssistant, Content: "from server"}
	if err := m.ObserveMessage(ctx, echoed); err != nil {
		t.Fatalf("ObserveMessage (echo): %v", err)
	}

	if got := len(store.appendedContents()); got != 1 {
		t.Fatalf("expected only the client message appended, got %d", got)
	}
}

// TestManager_HistoryLoadReseedsIdempotency verifies that after loading a
// conversation, re-observing a message already present in the history does
// not append it again.
func TestManager_HistoryLoadReseedsIdempotency(t *testing.T) {
	store := newStubConvService()
	store.history["conv-old"] = []models.Message{
		{ID: "msg-a", ConversationID: "conv-old", LocalID: "l-old-1", Role: models.RoleUser, Content: "old question"},
		{ID: "msg-b", ConversationID: "conv-old", Role: models.RoleAssistant, Content: "old answer"},
	}
	m := testManager(store, nil, "")
	ctx := context.Background()

	if err := m.LoadHistory(ctx, "conv-old"); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if m.ConversationID() != "conv-old" {
		t.Fatalf("expected bound conversation conv-old, got %q", m.ConversationID())
	}
	if got := len(m.Messages()); got != 2 {
		t.Fatalf("expected 2 loaded messages, got %d", got)
	}

	// Re-observing a loaded message must be a no-op append-wise.
	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-old-1", Role: models.RoleUser, Content: "old question"}); err != nil {
		t.Fatalf("ObserveMessage: %v", err)
	}
	if got := len(store.appendedContents()); got != 0 {
		t.Fatalf("re-observed history message was appended %d times", got)
	}

	// A genuinely new message persists into the loaded conversation with
	// no new conversation created.
	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-new", Role: models.RoleUser, Content: "follow-up"}); err != nil {
		t.Fatalf("ObserveMessage: %v", err)
	}
	if got := store.createCount(); got != 0 {
		t.Fatalf("loading history must not create conversations, got %d", got)
	}
	if got := store.appendedContents(); len(got) != 1 || got[0] != "follow-up" {
		t.Fatalf("expected exactly the follow-up appended, got %v", got)
	}
}

// TestManager_RepeatLoadIsNoOp verifies that loading the conversation
// already loaded does not refetch.
func TestManager_RepeatLoadIsNoOp(t *testing.T) {
	store := newStubConvService()
	store.history["conv-1"] = []models.Message{
		{ID: "msg-1", ConversationID: "conv-1", Role: models.RoleUser, Content: "hi"},
	}
	m := testManager(store, nil, "")
	ctx := context.Background()

	if err := m.LoadHistory(ctx, "conv-1"); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}

	// Break the stub's history; a refetch would now fail.
	store.mu.Lock()
	delete(store.history, "conv-1")
	store.mu.Unlock()

	if err := m.LoadHistory(ctx, "conv-1"); err != nil {
		t.Fatalf("repeat LoadHistory should be a no-op, got %v", err)
	}
	if got := len(m.Messages()); got != 1 {
		t.Fatalf("repeat load disturbed the transcript: %d messages", got)
	}
}

// TestManager_StaleLoadResultDropped verifies that when a second load
// supersedes a slow first one, the first load's result is discarded and the
// transcript reflects the newer conversation.
func TestManager_StaleLoadResultDropped(t *testing.T) {
	store := newStubConvService()
	store.history["conv-slow"] = []models.Message{
		{ID: "s-1", ConversationID: "conv-slow", Role: models.RoleUser, Content: "slow history"},
	}
	store.history["conv-fast"] = []models.Message{
		{ID: "f-1", ConversationID: "conv-fast", Role: models.RoleUser, Content: "fast history"},
		{ID: "f-2", ConversationID: "conv-fast", Role: models.RoleAssistant, Content: "fast answer"},
	}
	releaseSlow := make(chan struct{})
	store.blockLoads["conv-slow"] = releaseSlow

	m := testManager(store, nil, "")
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- m.LoadHistory(ctx, "conv-slow")
	}()

	// Let the slow load get in flight before superseding it.
	time.Sleep(20 * time.Millisecond)
	if err := m.LoadHistory(ctx, "conv-fast"); err != nil {
		t.Fatalf("LoadHistory (fast): %v", err)
	}

	close(releaseSlow)
	if err := <-slowDone; err != nil {
		t.Fatalf("superseded load should drop silently, got %v", err)
	}

	if m.ConversationID() != "conv-fast" {
		t.Errorf("expected the newer load to win, bound to %q", m.ConversationID())
	}
	msgs := m.Messages()
	if len(msgs) != 2 || msgs[0].Content != "fast history" {
		t.Errorf("stale result overwrote the transcript: %+v", msgs)
	}
}

// TestManager_LoadRejectedDuringCreation verifies that a history load
// cannot interleave with an in-flight conversation creation: the load is
// refused, and the creation binds its own conversation when it completes.
func TestManager_LoadRejectedDuringCreation(t *testing.T) {
	store := newStubConvService()
	store.history["conv-old"] = []models.Message{
		{ID: "msg-a", ConversationID: "conv-old", Role: models.RoleUser, Content: "old question"},
	}
	release := make(chan struct{})
	store.blockCreate = release

	m := testManager(store, nil, "")
	ctx := context.Background()

	createDone := make(chan error, 1)
	go func() {
		createDone <- m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "fresh start"})
	}()

	// Let the creation flight get out before trying to load over it.
	time.Sleep(20 * time.Millisecond)
	err := m.LoadHistory(ctx, "conv-old")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict loading during creation, got %v", err)
	}

	close(release)
	if err := <-createDone; err != nil {
		t.Fatalf("ObserveMessage: %v", err)
	}

	if m.ConversationID() != "conv-1" {
		t.Fatalf("expected creation to bind its conversation, got %q", m.ConversationID())
	}
	if got := store.appendedContents(); len(got) != 1 || got[0] != "fresh start" {
		t.Fatalf("expected the observed message persisted into the new conversation, got %v", got)
	}

	// With the flight settled, the load goes through normally.
	store.mu.Lock()
	store.blockCreate = nil
	store.mu.Unlock()
	if err := m.LoadHistory(ctx, "conv-old"); err != nil {
		t.Fatalf("LoadHistory after creation: %v", err)
	}
	if m.ConversationID() != "conv-old" {
		t.Fatalf("expected conv-old bound after load, got %q", m.ConversationID())
	}
}

// TestManager_ObserveRejectedDuringLoad verifies that a message observed
// while a history load is in flight is refused rather than silently erased
// when the load replaces the transcript.
func TestManager_ObserveRejectedDuringLoad(t *testing.T) {
	store := newStubConvService()
	store.history["conv-1"] = []models.Message{
		{ID: "msg-1", ConversationID: "conv-1", Role: models.RoleUser, Content: "history"},
	}
	release := make(chan struct{})
	store.blockLoads["conv-1"] = release

	m := testManager(store, nil, "")
	ctx := context.Background()

	loadDone := make(chan error, 1)
	go func() {
		loadDone <- m.LoadHistory(ctx, "conv-1")
	}()

	time.Sleep(20 * time.Millisecond)
	err := m.ObserveMessage(ctx, models.Message{LocalID: "l-live", Role: models.RoleUser, Content: "typed mid-load"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict observing during load, got %v", err)
	}

	close(release)
	if err := <-loadDone; err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}

	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Content != "history" {
		t.Fatalf("expected only the loaded transcript, got %+v", msgs)
	}
	if got := store.appendedContents(); len(got) != 0 {
		t.Fatalf("rejected message must not be persisted, got %v", got)
	}

	// After the load settles, observes flow into the loaded conversation.
	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-after", Role: models.RoleUser, Content: "after load"}); err != nil {
		t.Fatalf("ObserveMessage after load: %v", err)
	}
	if got := store.appendedContents(); len(got) != 1 || got[0] != "after load" {
		t.Fatalf("expected the post-load message persisted, got %v", got)
	}
}

// TestManager_LoadFailureLeavesTranscript verifies that a failed load
// surfaces the error without clearing the current transcript.
func TestManager_LoadFailureLeavesTranscript(t *testing.T) {
	store := newStubConvService()
	m := testManager(store, nil, "")
	ctx := context.Background()

	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "keep me"}); err != nil {
		t.Fatalf("ObserveMessage: %v", err)
	}

	err := m.LoadHistory(ctx, "conv-missing")
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Content != "keep me" {
		t.Fatalf("failed load disturbed the transcript: %+v", msgs)
	}

	// The guard released; a later valid load works.
	store.mu.Lock()
	store.history["conv-ok"] = []models.Message{{ID: "ok-1", ConversationID: "conv-ok", Role: models.RoleUser, Content: "ok"}}
	store.mu.Unlock()
	if err := m.LoadHistory(ctx, "conv-ok"); err != nil {
		t.Fatalf("LoadHistory after failure: %v", err)
	}
}

// TestManager_CreateFailureReleasesGuard verifies that a failed conversation
// creation resets the guard so the next message retries.
func TestManager_CreateFailureReleasesGuard(t *testing.T) {
	store := newStubConvService()
	store.createErr = errors.New("store unavailable")
	m := testManager(store, nil, "")
	ctx := context.Background()

	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "first try"}); err == nil {
		t.Fatal("expected creation error to surface")
	}
	if m.ConversationID() != "" {
		t.Fatalf("failed creation must not bind a conversation, got %q", m.ConversationID())
	}

	store.mu.Lock()
	store.createErr = nil
	store.mu.Unlock()

	if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-2", Role: models.RoleUser, Content: "second try"}); err != nil {
		t.Fatalf("ObserveMessage (retry): %v", err)
	}
	if got := store.createCount(); got != 1 {
		t.Fatalf("expected 1 successful creation after retry, got %d", got)
	}
	// Both messages drained once the conversation existed.
	if got := store.appendedContents(); len(got) != 2 {
		t.Fatalf("expected both messages persisted after retry, got %v", got)
	}
}

// TestManager_ArchivePlaceholderRejected verifies that a session with no
// persisted conversation cannot be archived.
func TestManager_ArchivePlaceholderRejected(t *testing.T) {
	store := newStubConvService()
	m := testManager(store, nil, "")

	err := m.Archive(context.Background())
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for placeholder archive, got %v", err)
	}
}

// TestManager_DerivedTitle verifies title derivation: whitespace collapsing,
// rune-safe truncation and the context-name prefix.
func TestManager_DerivedTitle(t *testing.T) {
	ctx := context.Background()

	t.Run("collapses whitespace", func(t *testing.T) {
		store := newStubConvService()
		m := testManager(store, nil, "")
		if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "  write   an\nintro  "}); err != nil {
			t.Fatalf("ObserveMessage: %v", err)
		}
		if got := store.creates[0].Title; got != "write an intro" {
			t.Errorf("expected collapsed title, got %q", got)
		}
	})

	t.Run("truncates by runes", func(t *testing.T) {
		store := newStubConvService()
		m := testManager(store, nil, "")
		long := ""
		for i := 0; i < 80; i++ {
			long += "ä"
		}
		if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: long}); err != nil {
			t.Fatalf("ObserveMessage: %v", err)
		}
		title := store.creates[0].Title
		if got := len([]rune(title)); got != 60 {
			t.Errorf("expected 60-rune title, got %d runes (%q)", got, title)
		}
	})

	t.Run("prefixes context name", func(t *testing.T) {
		store := newStubConvService()
		ref := "doc-42"
		m := testManager(store, &ref, "Tidal article")
		if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "help"}); err != nil {
			t.Fatalf("ObserveMessage: %v", err)
		}
		if got := store.creates[0].Title; got != "Tidal article — help" {
			t.Errorf("unexpected title %q", got)
		}
		if store.creates[0].ContextRef == nil || *store.creates[0].ContextRef != "doc-42" {
			t.Error("expected context ref forwarded on creation")
		}
	})

	t.Run("falls back for empty message", func(t *testing.T) {
		store := newStubConvService()
		m := testManager(store, nil, "")
		if err := m.ObserveMessage(ctx, models.Message{LocalID: "l-1", Role: models.RoleUser, Content: "   "}); err != nil {
			t.Fatalf("ObserveMessage: %v", err)
		}
		if got := store.creates[0].Title; got != "New conversation" {
			t.Errorf("expected fallback title, got %q", got)
		}
	})
}
