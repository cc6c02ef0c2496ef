package tasks

import "context"

// Middleware wraps a Handler with cross-cutting behavior (logging, metrics,
// tracing) without changing its signature. Adapted from the teacher's
// Adapter/Handler composition (qhenkart-gosqs/adapters.go), generalized to
// this package's Handler shape.
type Middleware func(Handler) Handler

// Compose applies middlewares to h in order, so mws[0] runs outermost.
func Compose(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WithHandlerMiddleware wraps a Task's handler with the given middlewares at
// construction time.
func WithHandlerMiddleware(mws ...Middleware) TaskOption {
	return func(t *Task) { t.Handler = Compose(t.Handler, mws...) }
}

type producerContextKey struct{}

// WithProducer attaches a Producer to ctx so handler code can issue further
// task commands (e.g. chaining a follow-up task) without reaching for
// package-level state. Adapted from the teacher's WithDispatcher
// (qhenkart-gosqs/adapters.go), repurposed from a generic Publisher to this
// package's own Producer.
func WithProducer(ctx context.Context, p *Producer) context.Context {
	return context.WithValue(ctx, producerContextKey{}, p)
}

// ProducerFromContext retrieves the Producer attached by WithProducer.
func ProducerFromContext(ctx context.Context) (*Producer, error) {
	if p, ok := ctx.Value(producerContextKey{}).(*Producer); ok {
		return p, nil
	}
	return nil, ErrUndefinedPool.Context(errMsg("no producer in context"))
}

// MustProducerFromContext retrieves the Producer attached by WithProducer,
// panicking if none is present. A Task.invoke recover() catches this panic
// just like any other handler failure, so a handler using this is never
// worse-behaved than one that returns an error.
func MustProducerFromContext(ctx context.Context) *Producer {
	p, err := ProducerFromContext(ctx)
	if err != nil {
		panic(err)
	}
	return p
}
