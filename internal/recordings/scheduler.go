package recordings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// maxRetryAttempts bounds the scheduled attempts after the
	// immediate one.
	maxRetryAttempts = 6
	// retryBaseDelay grows linearly with the attempt number: 30s, 60s, 90s...
	retryBaseDelay = 30 * time.Second
)

// Clock abstracts timer creation so tests can drive the schedule with a
// fake clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// DiscoverFunc runs discovery for a session and reports how many
// artifacts it yielded.
type DiscoverFunc func(ctx context.Context, sessionID uuid.UUID) (int, error)

type retryState struct {
	attempt int
	timer   Timer
}

// Scheduler retries recording discovery after a session ends. Zoom
// processes cloud recordings asynchronously, so the first attempts
// commonly find nothing. Attempt state lives in an explicit map keyed by
// session id; timers are fire-and-forget callbacks that stop
// rescheduling on success or budget exhaustion. Single-instance only:
// no distributed coordination exists across processes.
type Scheduler struct {
	discover DiscoverFunc
	clock    Clock
	logger   *zap.Logger

	mu     sync.Mutex
	states map[uuid.UUID]*retryState
}

// NewScheduler creates a retry scheduler using the wall clock.
func NewScheduler(discover DiscoverFunc, logger *zap.Logger) *Scheduler {
	return NewSchedulerWithClock(discover, realClock{}, logger)
}

// NewSchedulerWithClock creates a retry scheduler with an injected clock.
func NewSchedulerWithClock(discover DiscoverFunc, clock Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		discover: discover,
		clock:    clock,
		logger:   logger,
		states:   make(map[uuid.UUID]*retryState),
	}
}

// Schedule kicks off the retry chain for a session that just ended: one
// immediate attempt, then up to 6 scheduled attempts at 30s × N. A
// second Schedule for a session already in flight is a no-op.
func (s *Scheduler) Schedule(sessionID uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.states[sessionID]; ok {
		s.mu.Unlock()
		return
	}
	s.states[sessionID] = &retryState{}
	s.mu.Unlock()

	s.runAttempt(sessionID)
}

// Cancel drops any pending retries for a session, e.g. when it is
// administratively cancelled.
func (s *Scheduler) Cancel(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[sessionID]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(s.states, sessionID)
	}
}

// Pending reports whether a retry chain is active for the session.
func (s *Scheduler) Pending(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[sessionID]
	return ok
}

func (s *Scheduler) runAttempt(sessionID uuid.UUID) {
	s.mu.Lock()
	st, ok := s.states[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	attempt := st.attempt
	s.mu.Unlock()

	count, err := s.discover(context.Background(), sessionID)
	if err != nil {
		// An attempt error means "no artifacts yet"; the schedule
		// continues rather than aborting.
		s.logger.Warn("recording discovery attempt failed",
			zap.String("session_id", sessionID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		count = 0
	}

	if count > 0 {
		s.logger.Info("recording discovery succeeded",
			zap.String("session_id", sessionID.String()),
			zap.Int("attempt", attempt),
			zap.Int("artifacts", count))
		s.Cancel(sessionID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok = s.states[sessionID]
	if !ok {
		return
	}
	if st.attempt >= maxRetryAttempts {
		s.logger.Info("recording discovery retries exhausted",
			zap.String("session_id", sessionID.String()),
			zap.Int("attempts", st.attempt))
		delete(s.states, sessionID)
		return
	}
	st.attempt++
	delay := time.Duration(st.attempt) * retryBaseDelay
	st.timer = s.clock.AfterFunc(delay, func() { s.runAttempt(sessionID) })
	s.logger.Debug("recording discovery rescheduled",
		zap.String("session_id", sessionID.String()),
		zap.Int("attempt", st.attempt),
		zap.Duration("delay", delay))
}
