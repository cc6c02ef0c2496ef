package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Handler is the function signature for a registered task. It receives the
// decoded attribute object and returns a success flag along with an error.
// A non-nil error models a raised exception in the original Python task
// runner (original_source/tasks/__init__.py:Task.run's bare `except`); a
// false result with a nil error models an explicit "not done yet" signal.
// Both count as a failed attempt (SPEC_FULL.md §4.2).
type Handler func(ctx context.Context, attr json.RawMessage) (bool, error)

// WaitProgression selects the backoff formula a Task uses between retries,
// per SPEC_FULL.md §4.2.
type WaitProgression string

const (
	// ProgressionNone: 0 on the first retry, wait_time afterward.
	ProgressionNone WaitProgression = "NONE"
	// ProgressionArithmetic: wait_time * retries.
	ProgressionArithmetic WaitProgression = "ARITHMETIC"
	// ProgressionGeometric: wait_time * retries^2.
	ProgressionGeometric WaitProgression = "GEOMETRIC"
	// ProgressionRandom: 0 on the first retry, wait_time * U(0.5, 2.0) afterward.
	ProgressionRandom WaitProgression = "RANDOM"
)

// OnFail names the fallback task to run when a Task's retries are exhausted.
// If Adapter is nil, the fallback is sent on the owning Task's own adapter
// (same pool); a non-nil Adapter sends it to a different pool, mirroring the
// original's `isinstance(self.on_fail, tuple)` branch.
type OnFail struct {
	TaskName string
	Adapter  QueueAdapter
}

// Task maps a task name to its handler and retry policy, per SPEC_FULL.md §4.2.
type Task struct {
	Name            string
	Handler         Handler
	Adapter         QueueAdapter
	MaxRetries      int
	OnFail          *OnFail
	WaitTime        time.Duration
	WaitProgression WaitProgression

	logger Logger
}

// TaskOption customizes Task construction.
type TaskOption func(*Task)

// WithMaxRetries sets the maximum ApproximateReceiveCount at which the task
// is considered permanently failed. Default 10.
func WithMaxRetries(n int) TaskOption {
	return func(t *Task) { t.MaxRetries = n }
}

// WithOnFail registers the fallback task run when retries are exhausted.
func WithOnFail(onFail OnFail) TaskOption {
	return func(t *Task) { t.OnFail = &onFail }
}

// WithBackoff sets the wait time and progression used between retries.
func WithBackoff(wait time.Duration, progression WaitProgression) TaskOption {
	return func(t *Task) {
		t.WaitTime = wait
		t.WaitProgression = progression
	}
}

// WithTaskLogger attaches a Logger to the task, used when it logs terminal
// failures and handler errors.
func WithTaskLogger(l Logger) TaskOption {
	return func(t *Task) { t.logger = l }
}

// NewTask constructs a Task. It fails loudly (ErrInvalidProgression) if
// WaitProgression names an unknown progression, per SPEC_FULL.md §4.2.
func NewTask(name string, handler Handler, adapter QueueAdapter, opts ...TaskOption) (*Task, error) {
	t := &Task{
		Name:            name,
		Handler:         handler,
		Adapter:         adapter,
		MaxRetries:      10,
		WaitProgression: ProgressionNone,
		logger:          NewZerologLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if !validProgression(t.WaitProgression) {
		return nil, ErrInvalidProgression.Context(fmt.Errorf("%s", t.WaitProgression))
	}
	return t, nil
}

func validProgression(p WaitProgression) bool {
	switch p {
	case ProgressionNone, ProgressionArithmetic, ProgressionGeometric, ProgressionRandom:
		return true
	}
	return false
}

// GetDelay returns the backoff delay before the next retry, given the number
// of retries already performed. Matches the formula table in SPEC_FULL.md §4.2.
func (t *Task) GetDelay(retries int) time.Duration {
	w := t.WaitTime
	switch t.WaitProgression {
	case ProgressionNone:
		if retries == 0 {
			return 0
		}
		return w
	case ProgressionArithmetic:
		return w * time.Duration(retries)
	case ProgressionGeometric:
		return w * time.Duration(retries*retries)
	case ProgressionRandom:
		if retries == 0 {
			return 0
		}
		factor := 0.5 + rand.Float64()*1.5 // U(0.5, 2.0)
		return time.Duration(math.Round(float64(w) * factor))
	}
	return 0
}

// Send issues a task execution command to the queue, filling defaults
// (new exec_id, now) as described in SPEC_FULL.md §3.
func (t *Task) Send(ctx context.Context, adapter QueueAdapter, attr interface{}, delay time.Duration, execID string, when time.Time) error {
	return adapter.Send(ctx, t.Name, attr, delay, execID, when)
}

// Issue re-issues this task's own execution command, e.g. for retries or
// re-issue-after-postpone-failure.
func (t *Task) Issue(ctx context.Context, attr interface{}, delay time.Duration, execID string) error {
	return t.Send(ctx, t.Adapter, attr, delay, execID, time.Time{})
}

// IssueFail dispatches the on_fail task, per SPEC_FULL.md §4.2.
func (t *Task) IssueFail(ctx context.Context, attr interface{}) error {
	if t.OnFail == nil {
		return nil
	}
	adapter := t.OnFail.Adapter
	if adapter == nil {
		adapter = t.Adapter
	}
	return adapter.Send(ctx, t.OnFail.TaskName, attr, 0, "", time.Time{})
}

// Run executes the task for the given number of already-performed retries.
// It returns true when the message should be considered done (deleted from
// the queue) and false when it should be retried with backoff, per
// SPEC_FULL.md §4.2. jobID/jobName are used only for log correlation.
func (t *Task) Run(ctx context.Context, attr json.RawMessage, retries int, jobID, jobName string) bool {
	if retries >= t.MaxRetries {
		t.logger.Error(jobID, jobName, fmt.Sprintf("task failed permanently: %s (%d/%d retries)", t.Name, retries, t.MaxRetries), nil)
		if err := t.IssueFail(ctx, attr); err != nil {
			t.logger.Error(jobID, jobName, "unable to issue fallback task", err)
		}
		// Terminal: the command is done regardless of fallback dispatch outcome.
		return true
	}

	ok, err := t.invoke(ctx, attr)
	if err != nil {
		t.logger.Error(jobID, jobName, fmt.Sprintf("error running task %s", t.Name), err)
		return false
	}
	return ok
}

// invoke calls the handler, converting a panic into a failure so nothing in
// user code can crash the scheduling goroutine (SPEC_FULL.md §4.4/§7).
func (t *Task) invoke(ctx context.Context, attr json.RawMessage) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return t.Handler(ctx, attr)
}
