// Package metrics provides a Prometheus-backed tasks.MetricsSink, grounded
// on the client_golang usage in ehsanshojaeiiii-sms-gateway and
// g-cesar-DistributedQ (SPEC_FULL.md DOMAIN STACK).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink implements tasks.MetricsSink by registering its gauges/counter vec
// with the given prometheus.Registerer.
type Sink struct {
	inFlight     prometheus.Gauge
	workers      prometheus.Gauge
	queueDepth   prometheus.Gauge
	dispositions *prometheus.CounterVec
}

// New builds a Sink and registers its collectors with reg. namespace/
// subsystem follow the caller's own naming convention, e.g. "myapp"/"tasks".
func New(reg prometheus.Registerer, namespace, subsystem string) *Sink {
	s := &Sink{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "in_flight", Help: "Number of task executions currently in flight.",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "workers", Help: "Current worker slot count.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "queue_depth", Help: "Last observed approximate queue depth.",
		}),
		dispositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "dispositions_total", Help: "Task command dispositions by task name and outcome.",
		}, []string{"task_name", "outcome"}),
	}

	reg.MustRegister(s.inFlight, s.workers, s.queueDepth, s.dispositions)
	return s
}

func (s *Sink) SetInFlight(n int) { s.inFlight.Set(float64(n)) }
func (s *Sink) SetWorkers(n int)  { s.workers.Set(float64(n)) }
func (s *Sink) SetQueueDepth(n int) { s.queueDepth.Set(float64(n)) }
func (s *Sink) IncDisposition(taskName, outcome string) {
	s.dispositions.WithLabelValues(taskName, outcome).Inc()
}
