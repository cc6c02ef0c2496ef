package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Producer is the module's send-side facade: resolve a pool's adapter,
// optionally enforce local registration, and enqueue a command. Grounded on
// the teacher's Publisher (qhenkart-gosqs/publisher.go) for the
// pool/adapter-map shape, generalized to SPEC_FULL.md §4.6 semantics
// (original_source/tasks/__init__.py:run).
type Producer struct {
	pools      map[string]QueueAdapter
	localPool  string
	registry   *Registry
	strict     bool
	logger     Logger
}

// ProducerOption customizes Producer construction.
type ProducerOption func(*Producer)

// WithStrict requires task_name to be registered locally whenever the
// target pool is the producer's own configured pool (cross-pool sends skip
// this check, per SPEC_FULL.md §4.6).
func WithStrict(strict bool) ProducerOption {
	return func(p *Producer) { p.strict = strict }
}

// WithProducerLogger attaches a Logger used for dispatch diagnostics.
func WithProducerLogger(l Logger) ProducerOption {
	return func(p *Producer) { p.logger = l }
}

// NewProducer builds a Producer bound to localPool (the pool used when no
// explicit pool is given to Run) and a registry used for the strictness
// check.
func NewProducer(localPool string, registry *Registry, opts ...ProducerOption) *Producer {
	p := &Producer{
		pools:     make(map[string]QueueAdapter),
		localPool: localPool,
		registry:  registry,
		logger:    NewZerologLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterPool binds a pool name to the QueueAdapter used to reach it. The
// local pool and every cross-pool target a caller intends to use with Run
// must be registered first.
func (p *Producer) RegisterPool(name string, adapter QueueAdapter) {
	p.pools[name] = adapter
}

// Ready reports the TASK_QUEUES health key: OK iff at least one pool is
// registered, grounded on original_source/tasks/__init__.py:ready.
func (p *Producer) Ready() string {
	if len(p.pools) == 0 {
		return "ERROR"
	}
	return "OK"
}

// RunOption customizes a single Run call.
type RunOption func(*runParams)

type runParams struct {
	pool   string
	when   time.Time
	execID string
	delay  time.Duration
}

// WithPool targets a pool other than the producer's local one. Cross-pool
// sends skip the strictness check, per SPEC_FULL.md §4.6.
func WithPool(pool string) RunOption {
	return func(r *runParams) { r.pool = pool }
}

// WithWhen schedules the command for no earlier than when, instead of now.
func WithWhen(when time.Time) RunOption {
	return func(r *runParams) { r.when = when }
}

// WithExecID pins the command's exec_id instead of generating a new UUIDv4,
// e.g. to make a re-issue share identity with the command it replaces.
func WithExecID(execID string) RunOption {
	return func(r *runParams) { r.execID = execID }
}

// WithDelay requests a server-side visibility delay before the command
// becomes receivable.
func WithDelay(d time.Duration) RunOption {
	return func(r *runParams) { r.delay = d }
}

// Run dispatches a task execution command, per SPEC_FULL.md §4.6:
// task_pool defaults to the producer's local pool; if overridden to a
// different pool, the strictness check is skipped (cross-pool tasks need
// not be locally registered). If strict and task_name is not registered
// locally, Run fails with ErrStrictTaskNotRegistered. Otherwise it resolves
// the target pool's adapter and enqueues the command.
func (p *Producer) Run(ctx context.Context, taskName string, attrs interface{}, opts ...RunOption) error {
	r := &runParams{pool: p.localPool}
	for _, opt := range opts {
		opt(r)
	}

	if r.pool == p.localPool && p.strict && !p.registry.Has(taskName) {
		return ErrStrictTaskNotRegistered.Context(errMsg(taskName))
	}

	adapter, ok := p.pools[r.pool]
	if !ok {
		return ErrUndefinedPool.Context(errMsg(r.pool))
	}

	execID := r.execID
	if execID == "" {
		execID = uuid.NewString()
	}

	if err := adapter.Send(ctx, taskName, attrs, r.delay, execID, r.when); err != nil {
		p.logger.Error(execID, taskName, "unable to publish task command", err)
		return ErrPublish.Context(err)
	}
	return nil
}
