package recordings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	fireAt  time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

// fakeClock runs AfterFunc callbacks synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fireAt: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires all due timers, including ones
// scheduled by the callbacks themselves.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fireAt.After(c.now) {
				due = t
				break
			}
		}
		if due != nil {
			due.stopped = true
		}
		c.mu.Unlock()
		if due == nil {
			return
		}
		due.f()
	}
}

type countingDiscover struct {
	mu      sync.Mutex
	calls   int
	results []int // per-call artifact counts; last value repeats
	err     error
}

func (c *countingDiscover) fn(ctx context.Context, sessionID uuid.UUID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	if len(c.results) == 0 {
		return 0, nil
	}
	i := c.calls - 1
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	return c.results[i], nil
}

func (c *countingDiscover) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSchedulerStopsAfterSixScheduledAttempts(t *testing.T) {
	clock := newFakeClock()
	disc := &countingDiscover{}
	s := NewSchedulerWithClock(disc.fn, clock, nil)
	id := uuid.New()

	s.Schedule(id)
	require.Equal(t, 1, disc.count(), "one immediate attempt")

	// Escalating delays: 30s, 60s, 90s, 120s, 150s, 180s.
	for i := 1; i <= 6; i++ {
		clock.Advance(time.Duration(i) * 30 * time.Second)
		assert.Equal(t, 1+i, disc.count())
	}
	assert.False(t, s.Pending(id), "state destroyed after budget exhaustion")

	clock.Advance(time.Hour)
	assert.Equal(t, 7, disc.count(), "no attempts beyond the budget")
}

func TestSchedulerStopsOnFirstSuccess(t *testing.T) {
	clock := newFakeClock()
	disc := &countingDiscover{results: []int{0, 1}}
	s := NewSchedulerWithClock(disc.fn, clock, nil)
	id := uuid.New()

	s.Schedule(id)
	require.Equal(t, 1, disc.count())
	require.True(t, s.Pending(id))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, disc.count())
	assert.False(t, s.Pending(id))

	clock.Advance(time.Hour)
	assert.Equal(t, 2, disc.count(), "no attempts after success")
}

func TestSchedulerTreatsErrorsAsNoArtifactsYet(t *testing.T) {
	clock := newFakeClock()
	disc := &countingDiscover{err: errors.New("provider unavailable")}
	s := NewSchedulerWithClock(disc.fn, clock, nil)
	id := uuid.New()

	s.Schedule(id)
	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, disc.count(), "errors continue the schedule instead of aborting")
	assert.True(t, s.Pending(id))
}

func TestSchedulerCancelSuppressesRetries(t *testing.T) {
	clock := newFakeClock()
	disc := &countingDiscover{}
	s := NewSchedulerWithClock(disc.fn, clock, nil)
	id := uuid.New()

	s.Schedule(id)
	require.Equal(t, 1, disc.count())
	s.Cancel(id)

	clock.Advance(time.Hour)
	assert.Equal(t, 1, disc.count())
	assert.False(t, s.Pending(id))
}

func TestSchedulerDuplicateScheduleIsNoOp(t *testing.T) {
	clock := newFakeClock()
	disc := &countingDiscover{}
	s := NewSchedulerWithClock(disc.fn, clock, nil)
	id := uuid.New()

	s.Schedule(id)
	s.Schedule(id)
	assert.Equal(t, 1, disc.count(), "a chain already in flight is not restarted")
}
