package tasks

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"
)

// TaskExecution is the per-in-flight record for a command currently being
// processed, per SPEC_FULL.md §3. It is mutated only by the Consumer's
// scheduling goroutine, except Results, which a worker goroutine writes
// exactly once when its handler returns.
type TaskExecution struct {
	ExecID    string
	Task      *Task
	Attr      json.RawMessage
	Attempts  int
	CreatedAt time.Time
	Message   *Message
	Timeout   time.Duration
	JobID     string
	JobName   string

	clock Clock

	mu          sync.Mutex
	results     *bool
	disabled    bool
	postponeNum int
	done        chan struct{}
}

// NewTaskExecution builds a TaskExecution ready to run on its own worker.
func NewTaskExecution(execID string, task *Task, attr json.RawMessage, attempts int, createdAt time.Time, message *Message, timeout time.Duration, jobID, jobName string) *TaskExecution {
	return &TaskExecution{
		ExecID:    execID,
		Task:      task,
		Attr:      attr,
		Attempts:  attempts,
		CreatedAt: createdAt,
		Message:   message,
		Timeout:   timeout,
		JobID:     jobID,
		JobName:   jobName,
		clock:     realClock{},
		done:      make(chan struct{}),
	}
}

// Execute runs the handler via Task.Run(attr, attempts-1) and, unless the
// execution was disabled while the handler was running, records the result.
// It is meant to be run on its own goroutine by the Consumer and closes Done()
// when finished so the scheduling loop can detect a dead worker.
func (e *TaskExecution) Execute(ctx context.Context) {
	defer close(e.done)

	result := e.Task.Run(ctx, e.Attr, e.Attempts-1, e.JobID, e.JobName)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.disabled {
		e.results = &result
	}
}

// Done reports whether the worker goroutine has finished.
func (e *TaskExecution) Done() <-chan struct{} {
	return e.done
}

// Alive reports whether the worker goroutine is still running.
func (e *TaskExecution) Alive() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Results returns the handler's outcome, or nil if still pending.
func (e *TaskExecution) Results() *bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results
}

// Disabled reports whether this execution's result has been marked to be
// ignored (its message has already been re-issued).
func (e *TaskExecution) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}

// Disable marks this execution's eventual result to be ignored.
func (e *TaskExecution) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = true
}

// SetClock overrides the Clock used by Postpone's "now" reading. The
// Consumer calls this right after constructing each TaskExecution so
// Postpone's deadline math stays consistent with the same injected Clock
// the scheduling loop uses for its own deadline check, e.g. a
// tasktest.FakeClock in tests.
func (e *TaskExecution) SetClock(clk Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = clk
}

// GetDeadline returns created_at + (timeout/2)*(postpone_num+1), per
// SPEC_FULL.md §3 invariant 4 and §8 property 5.
func (e *TaskExecution) GetDeadline() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deadlineLocked()
}

func (e *TaskExecution) deadlineLocked() time.Time {
	half := time.Duration(int64(e.Timeout) / 2 * int64(e.postponeNum+1))
	return e.CreatedAt.Add(half)
}

// Postpone increments postpone_num and requests a visibility extension of
// ceil(deadline-now) + timeout seconds, returning the adapter's success bool.
// This "half-timeout ratchet" grows the requested window on every postpone
// rather than resetting it — preserved from the source per SPEC_FULL.md §9.
func (e *TaskExecution) Postpone(ctx context.Context, adapter QueueAdapter) bool {
	e.mu.Lock()
	e.postponeNum++
	deadline := e.deadlineLocked()
	clk := e.clock
	e.mu.Unlock()

	now := clk.Now()
	extra := deadline.Sub(now).Seconds()
	newTimeout := time.Duration(math.Ceil(extra))*time.Second + e.Timeout

	return adapter.ChangeVisibility(ctx, e.Message, newTimeout)
}
