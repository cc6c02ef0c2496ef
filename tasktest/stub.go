// Package tasktest provides an in-memory tasks.QueueAdapter and a
// manually-advanced tasks.Clock for driving a Consumer in tests without a
// real queue or a slow 1-second-per-tick wall clock. Generalized from
// qhenkart-gosqs/sqstesting's StubConsumer/StubPublisher (there a
// record-what-was-sent double for its Consumer/Publisher interfaces; here an
// actual queue simulation since tasks.QueueAdapter is a smaller, receive-
// capable contract).
package tasktest

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sambatech/gotasks"
)

const whenLayout = "02/01/06 15:04:05"

// FakeClock is a tasks.Clock driven entirely by Advance, for deterministic
// tests of the Consumer's deadline/postpone/when-window logic.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts the clock at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storedMessage struct {
	mu           sync.Mutex
	attrs        map[string]string
	body         []byte
	visibleAt    time.Time
	receiveCount int
	deleted      bool
}

// SentCommand records one call to StubAdapter.Send, for assertions.
type SentCommand struct {
	TaskName string
	Body     []byte
	ExecID   string
	When     time.Time
	Delay    time.Duration
}

// VisibilityChange records one call to StubAdapter.ChangeVisibility, for
// assertions against the exact backoff/defer/postpone durations the
// Consumer requests.
type VisibilityChange struct {
	ExecID     string
	NewTimeout time.Duration
	At         time.Time
}

// StubAdapter is an in-memory tasks.QueueAdapter: Send enqueues, Receive
// dequeues visible messages, Delete/ChangeVisibility mutate a message's
// stored state via its Handle.
type StubAdapter struct {
	clock *FakeClock

	mu             sync.Mutex
	queue          []*storedMessage
	Sent           []SentCommand
	Deleted        []*tasks.Message
	Visibility     []VisibilityChange
	failVisibility bool
}

// NewStubAdapter builds an empty StubAdapter driven by clock.
func NewStubAdapter(clock *FakeClock) *StubAdapter {
	return &StubAdapter{clock: clock}
}

func (a *StubAdapter) Send(ctx context.Context, taskName string, attrs interface{}, delay time.Duration, execID string, when time.Time) error {
	body, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	if execID == "" {
		execID = uuid.NewString()
	}
	now := a.clock.Now()
	if when.IsZero() {
		when = now
	}

	sm := &storedMessage{
		attrs: map[string]string{
			"task_name": taskName,
			"exec_id":   execID,
			"when":      when.UTC().Format(whenLayout),
		},
		body:      body,
		visibleAt: now.Add(delay),
	}

	a.mu.Lock()
	a.queue = append(a.queue, sm)
	a.Sent = append(a.Sent, SentCommand{TaskName: taskName, Body: body, ExecID: execID, When: when, Delay: delay})
	a.mu.Unlock()
	return nil
}

func (a *StubAdapter) Receive(ctx context.Context, max int) ([]*tasks.Message, error) {
	if max > tasks.MaxReceiveBatch {
		max = tasks.MaxReceiveBatch
	}
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*tasks.Message
	for _, sm := range a.queue {
		if len(out) >= max {
			break
		}
		sm.mu.Lock()
		ready := !sm.deleted && !sm.visibleAt.After(now)
		if ready {
			sm.receiveCount++
			sysAttrs := map[string]string{"ApproximateReceiveCount": strconv.Itoa(sm.receiveCount)}
			out = append(out, &tasks.Message{
				Body:             sm.body,
				Attributes:       sm.attrs,
				SystemAttributes: sysAttrs,
				Handle:           sm,
			})
			// Simulate the queue's own default invisibility window until the
			// consumer explicitly postpones or deletes.
			sm.visibleAt = now.Add(30 * time.Second)
		}
		sm.mu.Unlock()
	}
	return out, nil
}

func (a *StubAdapter) Delete(ctx context.Context, m *tasks.Message) error {
	sm, ok := m.Handle.(*storedMessage)
	if !ok {
		return nil
	}
	sm.mu.Lock()
	sm.deleted = true
	sm.mu.Unlock()

	a.mu.Lock()
	a.Deleted = append(a.Deleted, m)
	a.mu.Unlock()
	return nil
}

func (a *StubAdapter) ChangeVisibility(ctx context.Context, m *tasks.Message, newTimeout time.Duration) bool {
	a.mu.Lock()
	fail := a.failVisibility
	a.mu.Unlock()
	if fail {
		return false
	}

	sm, ok := m.Handle.(*storedMessage)
	if !ok {
		return false
	}
	sm.mu.Lock()
	sm.visibleAt = a.clock.Now().Add(newTimeout)
	sm.mu.Unlock()

	a.mu.Lock()
	a.Visibility = append(a.Visibility, VisibilityChange{ExecID: m.ExecID(), NewTimeout: newTimeout, At: a.clock.Now()})
	a.mu.Unlock()
	return true
}

// FailChangeVisibility makes every subsequent ChangeVisibility call fail
// (return false without mutating the message), for exercising the
// postpone-failure re-issue path (SPEC_FULL.md §4.4 S5).
func (a *StubAdapter) FailChangeVisibility(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failVisibility = fail
}

// DeleteByExecID marks the stored message carrying execID as deleted,
// without requiring the caller to hold the *tasks.Message handle a Receive
// call would have produced. Useful for tests that seed depth-only messages
// never meant to be received (e.g. scaling-controller fixtures).
func (a *StubAdapter) DeleteByExecID(execID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, sm := range a.queue {
		sm.mu.Lock()
		if sm.attrs["exec_id"] == execID {
			sm.deleted = true
		}
		sm.mu.Unlock()
	}
	return nil
}

func (a *StubAdapter) ApproximateDepth(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, sm := range a.queue {
		sm.mu.Lock()
		if !sm.deleted {
			n++
		}
		sm.mu.Unlock()
	}
	return n, nil
}
