package tasks

// MetricsSink receives the Consumer's operational counters. The default is a
// no-op; github.com/sambatech/gotasks/metrics provides a Prometheus-backed
// implementation (SPEC_FULL.md DOMAIN STACK).
type MetricsSink interface {
	SetInFlight(n int)
	SetWorkers(n int)
	SetQueueDepth(n int)
	IncDisposition(taskName, outcome string)
}

// Disposition labels used with MetricsSink.IncDisposition.
const (
	DispositionDone      = "done"
	DispositionRetry     = "retry"
	DispositionDeferred  = "deferred"
	DispositionAbandoned = "abandoned"
	DispositionUnknown   = "unknown"
)

type noopMetrics struct{}

func (noopMetrics) SetInFlight(int)                  {}
func (noopMetrics) SetWorkers(int)                   {}
func (noopMetrics) SetQueueDepth(int)                {}
func (noopMetrics) IncDisposition(string, string)    {}
