package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is the Consumer's lifecycle state, per SPEC_FULL.md §5.
type Status int32

const (
	StatusStopped Status = iota
	StatusStopping
	StatusRunning
	// StatusError is never stored; GetStatus computes it when the scheduling
	// goroutine has died while the stored status is not StatusStopped.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "STOPPED"
	case StatusStopping:
		return "STOPPING"
	case StatusRunning:
		return "RUNNING"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// tick is how often the scheduling loop reassesses in-flight work, the
// drain condition, scaling and intake, per SPEC_FULL.md §4.4.
const tick = 1 * time.Second

// ExecutionFactory builds the TaskExecution for a newly-admitted message.
// Consumers rarely need to override this; it exists so tests can swap in an
// instrumented TaskExecution (SPEC_FULL.md SUPPLEMENTED FEATURES). The
// Consumer keys the in-flight map by the execID it passes in, and sets the
// returned execution's Clock to its own right after the factory returns.
type ExecutionFactory func(execID string, task *Task, attr json.RawMessage, attempts int, createdAt time.Time, message *Message, timeout time.Duration, jobID, jobName string) *TaskExecution

// ConsumerOption customizes Consumer construction.
type ConsumerOption func(*Consumer)

// WithConsumerLogger attaches a Logger used for scheduling-loop diagnostics.
func WithConsumerLogger(l Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(clk Clock) ConsumerOption {
	return func(c *Consumer) { c.clock = clk }
}

// WithTaskExecutionFactory overrides how in-flight TaskExecutions are
// built, mirroring original_source/tasks/consumers.py:__init__'s
// task_execution_class parameter (SPEC_FULL.md SUPPLEMENTED FEATURES).
func WithTaskExecutionFactory(f ExecutionFactory) ConsumerOption {
	return func(c *Consumer) { c.execFactory = f }
}

// WithMetrics attaches a MetricsSink; the default is a no-op.
func WithMetrics(sink MetricsSink) ConsumerOption {
	return func(c *Consumer) { c.metrics = sink }
}

// WithConsumerContext sets the base context used for adapter calls made from
// the scheduling loop. Handlers always run with context.Background(), per
// SPEC_FULL.md §4.2 (no cancellation token is threaded to user code).
func WithConsumerContext(ctx context.Context) ConsumerOption {
	return func(c *Consumer) { c.ctx = ctx }
}

// Consumer is the TaskConsumer: a single scheduling goroutine owning an
// in-flight map of TaskExecutions, each running on its own worker goroutine,
// per SPEC_FULL.md §2/§4.4.
type Consumer struct {
	adapter  QueueAdapter
	registry *Registry
	config   Config
	logger   Logger
	clock    Clock
	metrics  MetricsSink
	ctx      context.Context

	execFactory ExecutionFactory

	status   int32 // atomic Status
	startMu  sync.Mutex
	loopDone chan struct{}

	inFlightMu sync.Mutex
	inFlight   map[string]*TaskExecution
	workers    int
	floor      int
}

// NewConsumer builds a Consumer bound to one QueueAdapter/Registry pair.
func NewConsumer(adapter QueueAdapter, registry *Registry, config Config, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		adapter:     adapter,
		registry:    registry,
		config:      config,
		logger:      NewZerologLogger(),
		clock:       realClock{},
		metrics:     noopMetrics{},
		ctx:         context.Background(),
		execFactory: NewTaskExecution,
		inFlight:    make(map[string]*TaskExecution),
		workers:     config.Workers,
		floor:       config.Workers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetStatus reports the Consumer's effective status, computing StatusError
// when the scheduling goroutine has died while the stored status is not
// StatusStopped, per SPEC_FULL.md §5.
func (c *Consumer) GetStatus() Status {
	c.startMu.Lock()
	done := c.loopDone
	c.startMu.Unlock()

	s := Status(atomic.LoadInt32(&c.status))
	if s == StatusStopped {
		return StatusStopped
	}
	if done == nil {
		return StatusError
	}
	select {
	case <-done:
		return StatusError
	default:
		return s
	}
}

// IsRunning reports whether the Consumer is anything other than STOPPED,
// a convenience carried over from original_source/tasks/consumer.py's
// is_consumer_running (SPEC_FULL.md SUPPLEMENTED FEATURES).
func (c *Consumer) IsRunning() bool {
	return c.GetStatus() != StatusStopped
}

// Start launches the scheduling goroutine if stopped, or cancels a pending
// drain (STOPPING -> RUNNING) if one is in progress. Calling Start while
// already RUNNING is a no-op. Start blocks until any prior scheduling
// goroutine (from an earlier forced Stop) has fully exited before spinning
// up a new one, per SPEC_FULL.md §5.
func (c *Consumer) Start() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	switch Status(atomic.LoadInt32(&c.status)) {
	case StatusStopped:
		if c.loopDone != nil {
			prev := c.loopDone
			c.startMu.Unlock()
			<-prev
			c.startMu.Lock()
		}
		atomic.StoreInt32(&c.status, int32(StatusRunning))
		done := make(chan struct{})
		c.loopDone = done
		go c.loop(done)
	case StatusStopping:
		atomic.StoreInt32(&c.status, int32(StatusRunning))
	case StatusRunning:
		// idempotent
	}
}

// Stop requests the Consumer to shut down. force=false requests a drain:
// the Consumer finishes its current in-flight commands and stops accepting
// new ones, transitioning to STOPPED once the in-flight map is empty.
// force=true stops immediately, abandoning in-flight commands to the
// queue's own visibility timeout. Per SPEC_FULL.md §5.
func (c *Consumer) Stop(force bool) {
	if force {
		atomic.StoreInt32(&c.status, int32(StatusStopped))
		return
	}
	atomic.StoreInt32(&c.status, int32(StatusStopping))
}

// Ready reports the TASK_CONSUMER health key: OK iff status is RUNNING or
// STOPPING and the scheduling goroutine is alive, grounded on
// original_source/tasks/__init__.py:ready (a STOPPED consumer reports
// ERROR here, same as the original -- it is not serving).
func (c *Consumer) Ready() string {
	switch c.GetStatus() {
	case StatusRunning, StatusStopping:
		return "OK"
	default:
		return "ERROR"
	}
}

// Workers reports the scaling controller's current worker-slot count.
func (c *Consumer) Workers() int {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	return c.workers
}

// InFlight reports the number of executions currently in the in-flight set.
func (c *Consumer) InFlight() int {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	return len(c.inFlight)
}

// Tick runs one pass of the scheduling loop synchronously, bypassing the
// Start loop's real 1-second cadence. Exposed so tests can drive the
// Consumer deterministically against a tasktest.FakeClock instead of
// sleeping in real time; production callers should use Start. On a STOPPED
// consumer the pass runs as a RUNNING one would, intake included, and the
// status is STOPPED again when Tick returns.
func (c *Consumer) Tick() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if atomic.CompareAndSwapInt32(&c.status, int32(StatusStopped), int32(StatusRunning)) {
		defer atomic.StoreInt32(&c.status, int32(StatusStopped))
	}
	c.runTick()
}

func (c *Consumer) loop(done chan struct{}) {
	defer close(done)
	for Status(atomic.LoadInt32(&c.status)) != StatusStopped {
		c.runTick()
		time.Sleep(tick)
	}
}

// runTick executes one pass of the scheduling loop: process in-flight,
// drain check, scale, intake -- all under the in-flight lock, per
// SPEC_FULL.md §4.4. Each phase is isolated behind a recover so a panic
// anywhere in our own bookkeeping cannot kill the scheduling goroutine
// (handler panics are already converted to errors inside Task.invoke).
func (c *Consumer) runTick() {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	c.safely("process in-flight", c.processInFlight)
	c.safely("drain check", c.drainCheck)
	c.safely("scale", c.scale)
	c.safely("intake", c.intake)

	c.metrics.SetInFlight(len(c.inFlight))
	c.metrics.SetWorkers(c.workers)
}

func (c *Consumer) safely(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unknown", "unknown", "scheduling loop phase panicked: "+phase, errFromPanic(r))
		}
	}()
	fn()
}

func errFromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errMsg("panic")
}

// processInFlight iterates a snapshot of in-flight executions (never the
// live map) so completions observed mid-iteration cannot race a concurrent
// mutation, per SPEC_FULL.md §9 open question on map iteration safety.
func (c *Consumer) processInFlight() {
	ids := make([]string, 0, len(c.inFlight))
	for id := range c.inFlight {
		ids = append(ids, id)
	}

	var toRemove []string
	for _, id := range ids {
		exec := c.inFlight[id]
		if c.settleOne(exec) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(c.inFlight, id)
	}
}

// settleOne resolves one in-flight execution and reports whether it should
// be removed from the in-flight map.
func (c *Consumer) settleOne(exec *TaskExecution) bool {
	// Liveness is read before the result: Execute records its result before
	// closing done, so a worker seen as finished here has already written
	// any result it will write.
	alive := exec.Alive()
	if res := exec.Results(); res != nil {
		if *res {
			if err := c.adapter.Delete(c.ctx, exec.Message); err != nil {
				c.logger.Error(exec.JobID, exec.JobName, "unable to delete completed message", ErrUnableToDelete.Context(err))
			}
			c.metrics.IncDisposition(exec.Task.Name, DispositionDone)
		} else {
			elapsed := c.clock.Now().Sub(exec.CreatedAt)
			delay := elapsed + exec.Task.GetDelay(exec.Attempts)
			if !c.adapter.ChangeVisibility(c.ctx, exec.Message, delay) {
				c.logger.Error(exec.JobID, exec.JobName, "unable to extend visibility for retry", ErrUnableToExtend)
			}
			c.metrics.IncDisposition(exec.Task.Name, DispositionRetry)
		}
		return true
	}

	if !alive {
		// The worker goroutine exited without ever writing a result: a bug
		// in our own Execute bookkeeping, not user code (handler panics are
		// already converted to a recorded false result). Treat it the same
		// as a failed attempt -- reschedule with the same backoff formula a
		// false result would get -- unless it was already disabled by the
		// postpone-failure re-issue path, in which case the replacement
		// command is the one that matters now and this delivery is just
		// cleaned up, per original_source/tasks/consumers.py:_process_dead_thread.
		if exec.Disabled() {
			if err := c.adapter.Delete(c.ctx, exec.Message); err != nil {
				c.logger.Error(exec.JobID, exec.JobName, "unable to delete message for dead worker", ErrUnableToDelete.Context(err))
			}
		} else {
			elapsed := c.clock.Now().Sub(exec.CreatedAt)
			delay := elapsed + exec.Task.GetDelay(exec.Attempts)
			if !c.adapter.ChangeVisibility(c.ctx, exec.Message, delay) {
				c.logger.Error(exec.JobID, exec.JobName, "unable to extend visibility for dead worker", ErrUnableToExtend)
			}
		}
		c.metrics.IncDisposition(exec.Task.Name, DispositionAbandoned)
		return true
	}

	if c.clock.Now().After(exec.GetDeadline()) {
		if exec.Postpone(c.ctx, c.adapter) {
			return false
		}
		// Visibility extension failed (likely already past the queue's own
		// receive-count ceiling): re-issue as a fresh command and abandon
		// this delivery, matching the original's re-issue-on-postpone-
		// failure behavior (SPEC_FULL.md §4.4).
		if err := exec.Task.Issue(c.ctx, exec.Attr, 0, exec.ExecID); err != nil {
			c.logger.Error(exec.JobID, exec.JobName, "unable to re-issue postponed task", ErrPublish.Context(err))
		}
		exec.Disable()
		if err := c.adapter.Delete(c.ctx, exec.Message); err != nil {
			c.logger.Error(exec.JobID, exec.JobName, "unable to delete postponed message", ErrUnableToDelete.Context(err))
		}
		return true
	}

	return false
}

// drainCheck completes a non-forced Stop once the in-flight map empties.
func (c *Consumer) drainCheck() {
	if Status(atomic.LoadInt32(&c.status)) == StatusStopping && len(c.inFlight) == 0 {
		atomic.StoreInt32(&c.status, int32(StatusStopped))
	}
}

// scale runs the proportional worker-count controller described in
// SPEC_FULL.md §4.5: grow toward MaxWorkers when the queue is deeper than
// workers*ScaleFactor, shrink toward the floor when it is shallower, with a
// ScaleFactor/2 hysteresis band on both sides to avoid thrashing.
func (c *Consumer) scale() {
	if !c.config.scalingEnabled() {
		return
	}
	depth, err := c.adapter.ApproximateDepth(c.ctx)
	if err != nil {
		c.logger.Error("unknown", "unknown", "unable to query queue depth for scaling", ErrScaling.Context(err))
		return
	}
	c.metrics.SetQueueDepth(depth)

	band := c.config.ScaleFactor / 2
	upper := c.workers*c.config.ScaleFactor + band
	lower := c.workers*c.config.ScaleFactor - band

	switch {
	case depth > upper && c.workers < c.config.MaxWorkers:
		c.workers++
	case depth < lower && c.workers > c.floor:
		c.workers--
	}
}

// intake admits new commands up to the current worker budget. Unregistered
// or malformed commands are parked (visibility extended) rather than
// deleted, up to UnknownTasksRetries; commands whose `when` has not yet
// entered the WhenWindow admission gate are deferred, not handed to a
// worker, per SPEC_FULL.md §4.4/§4.6.
func (c *Consumer) intake() {
	if Status(atomic.LoadInt32(&c.status)) != StatusRunning {
		return
	}
	room := c.workers - len(c.inFlight)
	if room <= 0 {
		return
	}
	if room > MaxReceiveBatch {
		c.logger.Warn("unknown", "unknown", fmt.Sprintf("clamping receive batch of %d to %d", room, MaxReceiveBatch))
		room = MaxReceiveBatch
	}

	msgs, err := c.adapter.Receive(c.ctx, room)
	if err != nil {
		c.logger.Error("unknown", "unknown", "unable to receive messages", ErrGetMessage.Context(err))
		return
	}

	for _, m := range msgs {
		c.admit(m)
	}
}

func (c *Consumer) admit(m *Message) {
	name := m.TaskName()
	if name == "" {
		c.logger.Warn(m.ExecID(), "unknown", ErrMalformedCommand.Context(fmt.Errorf("missing task_name attribute")).Error())
		c.parkUnknown(m)
		return
	}
	task, ok := c.registry.Lookup(name)
	if !ok {
		c.parkUnknown(m)
		return
	}

	if when, perr := m.ParseWhen(); perr == nil {
		now := c.clock.Now()
		boundary := when.Add(-time.Duration(c.config.WhenWindow) * time.Second)
		if now.After(when) {
			c.logger.Warn(m.ExecID(), name, "command's when timestamp has already passed")
		}
		if now.Before(boundary) {
			delaySecs := math.Ceil(boundary.Sub(now).Seconds())
			if delaySecs > maxDeferSeconds {
				delaySecs = maxDeferSeconds
			}
			c.adapter.ChangeVisibility(c.ctx, m, time.Duration(delaySecs)*time.Second)
			c.metrics.IncDisposition(name, DispositionDeferred)
			return
		}
	}

	execID := m.ExecID()
	if execID == "" {
		execID = uuid.NewString()
	}
	attempts := m.ReceiveCount()
	exec := c.execFactory(execID, task, m.Body, attempts, c.clock.Now(), m, time.Duration(c.config.TaskTimeout)*time.Second, execID, name)
	exec.SetClock(c.clock)
	c.inFlight[execID] = exec
	go exec.Execute(context.Background())
}

func (c *Consumer) parkUnknown(m *Message) {
	rc := m.ReceiveCount()
	if rc > c.config.UnknownTasksRetries {
		if err := c.adapter.Delete(c.ctx, m); err != nil {
			c.logger.Error("unknown", "unknown", "unable to delete abandoned unknown command", ErrUnableToDelete.Context(err))
		}
	} else {
		c.adapter.ChangeVisibility(c.ctx, m, time.Duration(c.config.UnknownTasksDelay)*time.Second)
	}
	c.metrics.IncDisposition("unknown", DispositionUnknown)
}
