package sync

import (
	"sync"
	"time"
)

// SaveScheduler coalesces bursts of edits into a single save callback.
// Each Touch resets the idle timer; the callback fires exactly once after
// a full quiet period. Cancellation is first-class so unmount can clear
// any pending invocation.
type SaveScheduler struct {
	idleDelay time.Duration
	fire      func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewSaveScheduler creates a scheduler that invokes fire after idleDelay
// of quiet following the last Touch.
func NewSaveScheduler(idleDelay time.Duration, fire func()) *SaveScheduler {
	return &SaveScheduler{
		idleDelay: idleDelay,
		fire:      fire,
	}
}

// Touch restarts the idle timer. Rapid successive touches collapse into
// one eventual callback.
func (s *SaveScheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.idleDelay, s.fire)
}

// Cancel drops any pending callback without stopping the scheduler.
// Used by manual save so the bypassed save is not duplicated later.
func (s *SaveScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a callback is currently scheduled.
func (s *SaveScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil && !s.stopped
}

// Stop cancels any pending callback and refuses further touches.
// Called on session unmount.
func (s *SaveScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
