// Package metrics exposes broker, lifecycle and storage observations as
// Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/registry"
)

const namespace = "tracebus"

// Metrics implements broker.MetricsHook and pebblestore.MetricsHook.
type Metrics struct {
	reg *prometheus.Registry

	dispatches   *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	dispatchTime prometheus.Histogram
	ops          *prometheus.CounterVec
	storeOps     *prometheus.HistogramVec
	storeBytes   *prometheus.CounterVec
	samples      *prometheus.CounterVec
}

// New registers the tracebus collectors plus Go and process collectors on a
// fresh registry. queues, when non-nil, backs the per-consumer gauges.
func New(queues *registry.Registry) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_total",
			Help: "Events dispatched, by event type.",
		}, []string{"type"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "admission_total",
			Help: "Per-queue admission outcomes.",
		}, []string{"outcome"}),
		dispatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "dispatch_duration_seconds",
			Help:    "Time to offer one event to every queue.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "consumer_ops_total",
			Help: "Consumer lifecycle operations, by op and result.",
		}, []string{"op", "result"}),
		storeOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ledger_op_duration_seconds",
			Help:    "Ledger storage latency.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"op"}),
		storeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ledger_bytes_total",
			Help: "Bytes moved through ledger storage.",
		}, []string{"op"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "producer_samples_total",
			Help: "Samples read by producer sources, by source and result.",
		}, []string{"source", "result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatches, m.outcomes, m.dispatchTime, m.ops, m.storeOps, m.storeBytes, m.samples,
	)
	if queues != nil {
		m.reg.MustRegister(&queueCollector{queues: queues})
	}
	return m
}

// Registry returns the registry to serve, e.g. with promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveDispatch(t eventqueue.Type, res broker.Result, elapsed time.Duration) {
	m.dispatches.WithLabelValues(t.String()).Inc()
	if res.Admitted > 0 {
		m.outcomes.WithLabelValues("admitted").Add(float64(res.Admitted))
	}
	if res.Ignored > 0 {
		m.outcomes.WithLabelValues("ignored").Add(float64(res.Ignored))
	}
	if res.Dropped > 0 {
		m.outcomes.WithLabelValues("dropped").Add(float64(res.Dropped))
	}
	if res.Closed > 0 {
		m.outcomes.WithLabelValues("closed").Add(float64(res.Closed))
	}
	m.dispatchTime.Observe(elapsed.Seconds())
}

// ObserveOp counts a lifecycle operation. result is "ok" or an error code.
func (m *Metrics) ObserveOp(op, result string) {
	m.ops.WithLabelValues(op, result).Inc()
}

// ObserveSample counts one sample read by a producer source.
func (m *Metrics) ObserveSample(source string, ok bool) {
	result := "ok"
	if !ok {
		result = "malformed"
	}
	m.samples.WithLabelValues(source, result).Inc()
}

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storeOps.WithLabelValues("write").Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storeOps.WithLabelValues("read").Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.storeOps.WithLabelValues("commit").Observe(elapsed.Seconds())
	m.storeBytes.WithLabelValues("commit").Add(float64(bytes))
}

var (
	queueLenDesc = prometheus.NewDesc(namespace+"_queue_length",
		"Pending events per consumer queue.", []string{"pid"}, nil)
	queueDropsDesc = prometheus.NewDesc(namespace+"_queue_drops_total",
		"Events dropped because the consumer queue was full.", []string{"pid"}, nil)
	queueAdmittedDesc = prometheus.NewDesc(namespace+"_queue_admitted_total",
		"Events admitted per consumer queue.", []string{"pid"}, nil)
	consumersDesc = prometheus.NewDesc(namespace+"_consumers",
		"Open consumer queues.", nil, nil)
)

// queueCollector reads per-queue counters at scrape time.
type queueCollector struct {
	queues *registry.Registry
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueLenDesc
	ch <- queueDropsDesc
	ch <- queueAdmittedDesc
	ch <- consumersDesc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	qs := c.queues.Snapshot()
	ch <- prometheus.MustNewConstMetric(consumersDesc, prometheus.GaugeValue, float64(len(qs)))
	for _, q := range qs {
		st := q.Stats()
		pid := strconv.Itoa(st.Owner)
		ch <- prometheus.MustNewConstMetric(queueLenDesc, prometheus.GaugeValue, float64(st.Len), pid)
		ch <- prometheus.MustNewConstMetric(queueDropsDesc, prometheus.CounterValue, float64(st.Drops), pid)
		ch <- prometheus.MustNewConstMetric(queueAdmittedDesc, prometheus.CounterValue, float64(st.Admitted), pid)
	}
}
