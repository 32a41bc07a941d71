package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/services"
	"inkwell/internal/tuning"
)

// phase is the session manager's reentrancy guard. It is an explicit
// single-owner state machine instead of separate booleans, so "creating
// while loading" is unrepresentable.
type phase int

const (
	phaseIdle phase = iota
	phaseCreating
	phaseLoading
)

// Manager owns the mapping from one chat session's in-memory message list
// to its persisted conversation. It decides, for every observed message,
// whether a conversation must be created, whether the message must be
// persisted, and suppresses duplicate persistence when history loads and
// live messages interleave.
type Manager struct {
	convs  services.ConversationService
	tuning tuning.SessionTuning
	logger *slog.Logger

	ownerID     string
	contextRef  *string
	contextName string

	mu             sync.Mutex
	phase          phase
	conversationID string
	lastLoadedID   string
	inflightLoadID string
	loadSeq        uint64
	persisted      map[string]struct{}
	messages       []models.Message
}

// NewManager creates a session manager with no bound conversation yet.
// contextRef optionally links the conversation to a domain object (e.g. a
// product); contextName prefixes derived titles.
func NewManager(
	convs services.ConversationService,
	ownerID string,
	contextRef *string,
	contextName string,
	tuning tuning.SessionTuning,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		convs:       convs,
		tuning:      tuning,
		logger:      logger,
		ownerID:     ownerID,
		contextRef:  contextRef,
		contextName: contextName,
		persisted:   make(map[string]struct{}),
	}
}

// ConversationID returns the bound conversation ID, or "" while the
// session is still an unsaved placeholder.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Messages returns a copy of the in-memory message list.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ObserveMessage appends one message to the in-memory list and runs the
// persistence decision: create-conversation-then-persist-backlog for a
// session with no conversation yet, or persist just the newest message if
// it is client-generated and not yet persisted. Messages observed while a
// creation flight is in progress are kept in memory and picked up by the
// flight's backlog drain; they are never persisted twice. Messages observed
// while a history load is in flight are rejected: the transcript is about
// to be replaced and the target conversation is ambiguous until the load
// applies.
func (m *Manager) ObserveMessage(ctx context.Context, msg models.Message) error {
	m.mu.Lock()

	if m.phase == phaseLoading {
		m.mu.Unlock()
		return &domain.ConflictError{Message: "history load in progress"}
	}

	m.messages = append(m.messages, msg)

	if m.phase == phaseCreating {
		// The creation flight's backlog drain picks this up.
		m.mu.Unlock()
		return nil
	}

	if m.conversationID == "" {
		return m.createConversationLocked(ctx)
	}

	return m.persistNewestLocked(ctx)
}

// createConversationLocked creates the conversation (exactly once per
// session, guarded by phaseCreating) and then drains the message backlog.
// Called with m.mu held; releases it.
func (m *Manager) createConversationLocked(ctx context.Context) error {
	m.phase = phaseCreating
	title := m.deriveTitle(m.messages[0].Content)
	m.mu.Unlock()

	conv, err := m.convs.Create(ctx, &services.CreateConversationRequest{
		OwnerID:    m.ownerID,
		Title:      title,
		ContextRef: m.contextRef,
	})
	if err != nil {
		m.mu.Lock()
		if m.phase == phaseCreating {
			m.phase = phaseIdle
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.phase != phaseCreating {
		// Something superseded this flight while the store call was out.
		// Binding now would clobber the newer state, so the result is
		// dropped the same way a stale history load is.
		m.mu.Unlock()
		m.logger.Warn("conversation creation superseded, result dropped",
			"conversation_id", conv.ID,
		)
		return nil
	}
	m.conversationID = conv.ID
	m.mu.Unlock()

	m.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"title", title,
	)

	// Persist everything observed so far, plus anything that arrives
	// while the drain itself is out. The guard is released synchronously
	// once the backlog is empty; no settle delay is needed because state
	// mutation here is not deferred.
	return m.drainBacklog(ctx)
}

// drainBacklog persists unpersisted client-generated messages in list
// order until none remain, then releases the guard phase. Messages
// appended during a store call are picked up by the next scan, preserving
// transcript order.
func (m *Manager) drainBacklog(ctx context.Context) error {
	for {
		m.mu.Lock()
		next, ok := m.nextUnpersisted()
		if !ok {
			m.phase = phaseIdle
			m.mu.Unlock()
			return nil
		}
		conversationID := m.conversationID
		m.mu.Unlock()

		persisted, err := m.convs.Append(ctx, &services.AppendMessageRequest{
			ConversationID: conversationID,
			LocalID:        next.LocalID,
			Role:           next.Role,
			Content:        next.Content,
			Metadata:       next.Metadata,
		})
		if err != nil {
			m.mu.Lock()
			m.phase = phaseIdle
			m.mu.Unlock()
			m.logger.Warn("backlog persistence incomplete",
				"conversation_id", conversationID,
				"local_id", next.LocalID,
				"error", err,
			)
			return err
		}

		m.mu.Lock()
		m.markPersisted(next.LocalID, persisted)
		m.mu.Unlock()
	}
}

// nextUnpersisted returns the oldest client-generated message not yet
// persisted. Caller holds m.mu.
func (m *Manager) nextUnpersisted() (models.Message, bool) {
	for _, msg := range m.messages {
		if msg.ID != "" || msg.LocalID == "" {
			continue
		}
		if _, done := m.persisted[msg.LocalID]; done {
			continue
		}
		return msg, true
	}
	return models.Message{}, false
}

// markPersisted records a local identity as persisted and adopts the
// server identity in the in-memory list. Caller holds m.mu.
func (m *Manager) markPersisted(localID string, persisted *models.Message) {
	m.persisted[localID] = struct{}{}
	for i := range m.messages {
		if m.messages[i].LocalID == localID && m.messages[i].ID == "" {
			m.messages[i].ID = persisted.ID
			m.messages[i].CreatedAt = persisted.CreatedAt
		}
	}
}

// persistNewestLocked inspects only the newest message and persists it if
// it is client-generated and not already persisted. Called with m.mu held;
// releases it.
func (m *Manager) persistNewestLocked(ctx context.Context) error {
	newest := m.messages[len(m.messages)-1]

	// Server-assigned IDs mean the message came back from the store (a
	// history load or an echo); only short-lived local IDs mark new
	// client content.
	if newest.ID != "" || newest.LocalID == "" {
		m.mu.Unlock()
		return nil
	}
	if _, done := m.persisted[newest.LocalID]; done {
		m.mu.Unlock()
		return nil
	}

	conversationID := m.conversationID
	m.mu.Unlock()

	persisted, err := m.convs.Append(ctx, &services.AppendMessageRequest{
		ConversationID: conversationID,
		LocalID:        newest.LocalID,
		Role:           newest.Role,
		Content:        newest.Content,
		Metadata:       newest.Metadata,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.markPersisted(newest.LocalID, persisted)
	m.mu.Unlock()

	return nil
}

// LoadHistory replaces the session's transcript with a past conversation.
// Repeat requests for the conversation already loaded, and repeat requests
// for a load already in flight, are idempotent no-ops (rapid repeated
// clicks never cause fetch storms). A load for a different conversation
// supersedes an in-flight one: the underlying fetch is not cancelled, but
// the stale result is dropped by a generation check before apply. A load
// while a creation flight is out is rejected with a conflict.
func (m *Manager) LoadHistory(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return &domain.ValidationError{Message: "conversation ID is required"}
	}

	m.mu.Lock()
	if m.phase == phaseCreating {
		// A creation flight owns the binding right now; loading over it
		// would leave the session bound to one conversation while showing
		// another's transcript.
		m.mu.Unlock()
		return &domain.ConflictError{Message: "conversation creation in progress"}
	}
	if conversationID == m.lastLoadedID ||
		(m.phase == phaseLoading && conversationID == m.inflightLoadID) {
		m.mu.Unlock()
		return nil
	}
	m.phase = phaseLoading
	m.inflightLoadID = conversationID
	m.loadSeq++
	seq := m.loadSeq
	m.mu.Unlock()

	msgs, err := m.convs.Messages(ctx, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.loadSeq {
		// A newer load superseded this one; applying its result now
		// would overwrite fresher state. The newer flight owns the
		// guard, so leave it alone.
		m.logger.Debug("stale history load dropped",
			"conversation_id", conversationID,
		)
		return nil
	}

	m.phase = phaseIdle

	if err != nil {
		// Leave the previous transcript untouched; the caller surfaces
		// the error instead of clearing the session.
		return err
	}

	// The loaded messages are persisted by definition; re-seed the
	// idempotency set from their local identities so a re-observed
	// message is never appended twice.
	m.persisted = make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if msg.LocalID != "" {
			m.persisted[msg.LocalID] = struct{}{}
		}
	}

	m.messages = msgs
	m.conversationID = conversationID
	m.lastLoadedID = conversationID

	m.logger.Info("history loaded",
		"conversation_id", conversationID,
		"messages", len(msgs),
	)
	return nil
}

// Archive soft-deletes the bound conversation. The unsaved placeholder
// (no persisted conversation yet) is never archivable.
func (m *Manager) Archive(ctx context.Context) error {
	m.mu.Lock()
	conversationID := m.conversationID
	m.mu.Unlock()

	if conversationID == "" {
		return &domain.ValidationError{Message: "session has no persisted conversation to archive"}
	}

	return m.convs.Archive(ctx, conversationID, m.ownerID)
}

// deriveTitle builds a conversation title from the first message,
// truncated to a bounded rune length, optionally prefixed with the
// context name.
func (m *Manager) deriveTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		title = "New conversation"
	}

	runes := []rune(title)
	if len(runes) > m.tuning.TitleMaxRunes {
		title = string(runes[:m.tuning.TitleMaxRunes])
	}

	if m.contextName != "" {
		title = m.contextName + m.tuning.ContextSeparator + title
	}
	return title
}
