package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"inkwell/internal/config"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

// writeTimeout bounds a single audit write so a slow store can never back
// up the queue indefinitely.
const writeTimeout = 5 * time.Second

// Emitter is a fire-and-forget audit log writer. Emit never blocks and
// never fails the operation it describes: records go through a buffered
// queue to a single writer goroutine, and write failures or overflow are
// logged locally and dropped.
type Emitter struct {
	repo   repositories.AuditRepository
	logger *slog.Logger
	queue  chan *models.AuditRecord
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewEmitter creates an Emitter with the given queue depth and starts its
// writer goroutine.
func NewEmitter(repo repositories.AuditRepository, bufferSize int, logger *slog.Logger) *Emitter {
	e := &Emitter{
		repo:   repo,
		logger: logger,
		queue:  make(chan *models.AuditRecord, bufferSize),
	}

	e.wg.Add(1)
	go e.run()

	return e
}

// Emit enqueues one audit record. Best-effort: if the emitter is closed or
// the queue is full the record is dropped with a log line. Details longer
// than the column cap are truncated rather than rejected.
func (e *Emitter) Emit(subjectID, actorID, action, detail string) {
	if len(detail) > config.MaxAuditDetailLength {
		cut := config.MaxAuditDetailLength
		// Back off to a rune boundary so the cut never splits a sequence.
		for cut > 0 && !utf8.RuneStart(detail[cut]) {
			cut--
		}
		detail = detail[:cut]
	}

	rec := &models.AuditRecord{
		SubjectID: subjectID,
		ActorID:   actorID,
		Action:    action,
		Detail:    detail,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.logger.Warn("audit record dropped: emitter closed",
			"subject_id", subjectID, "action", action)
		return
	}

	select {
	case e.queue <- rec:
	default:
		e.logger.Warn("audit record dropped: queue full",
			"subject_id", subjectID, "action", action)
	}
}

// Close stops accepting records, drains the queue and waits for the writer
// to finish.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for rec := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := e.repo.Append(ctx, rec)
		cancel()

		if err != nil {
			e.logger.Warn("audit write failed",
				"subject_id", rec.SubjectID,
				"actor_id", rec.ActorID,
				"action", rec.Action,
				"error", err,
			)
		}
	}
}
