// Package broker fans producer events out to every registered consumer queue.
//
// Dispatch runs on the producer's goroutine and returns once every queue
// registered when it started has been offered the event. It never blocks on a
// consumer: a full queue records a drop and Dispatch moves on.
package broker

import (
	"sync/atomic"
	"time"

	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/registry"
	logpkg "github.com/rzbill/tracebus/pkg/log"
)

// Result tallies the per-queue outcomes of one Dispatch.
type Result struct {
	Queues   int `json:"queues"`
	Admitted int `json:"admitted"`
	Ignored  int `json:"ignored"`
	Dropped  int `json:"dropped"`
	Closed   int `json:"closed"`
}

func (r *Result) add(o eventqueue.Outcome) {
	r.Queues++
	switch o {
	case eventqueue.Admitted:
		r.Admitted++
	case eventqueue.Ignored:
		r.Ignored++
	case eventqueue.Dropped:
		r.Dropped++
	case eventqueue.Closed:
		r.Closed++
	}
}

// Dispatcher is what event producers need from the broker.
type Dispatcher interface {
	Dispatch(r eventqueue.Record) Result
}

// MetricsHook observes dispatches.
type MetricsHook interface {
	ObserveDispatch(t eventqueue.Type, res Result, elapsed time.Duration)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveDispatch(eventqueue.Type, Result, time.Duration) {}

// Option configures a Broker.
type Option func(*Broker)

func WithMetrics(m MetricsHook) Option {
	return func(b *Broker) {
		if m != nil {
			b.metrics = m
		}
	}
}

func WithLogger(l logpkg.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDropWarnEvery logs a warning on every n-th drop across all queues.
// Zero disables the warning.
func WithDropWarnEvery(n uint64) Option {
	return func(b *Broker) { b.warnEvery = n }
}

// Broker holds no queued state of its own.
type Broker struct {
	reg       *registry.Registry
	metrics   MetricsHook
	logger    logpkg.Logger
	warnEvery uint64
	drops     atomic.Uint64
}

// New returns a broker delivering to the queues in reg.
func New(reg *registry.Registry, opts ...Option) *Broker {
	b := &Broker{
		reg:       reg,
		metrics:   NoopMetrics{},
		logger:    logpkg.NewNop(),
		warnEvery: 1000,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dispatch offers r to every registered queue. r is not retained; queues
// that admit it store their own copy.
func (b *Broker) Dispatch(r eventqueue.Record) Result {
	start := time.Now()
	var res Result
	b.reg.ForEach(func(q *eventqueue.Queue) {
		res.add(q.Admit(r))
	})
	if res.Dropped > 0 {
		total := b.drops.Add(uint64(res.Dropped))
		if b.warnEvery > 0 && total/b.warnEvery != (total-uint64(res.Dropped))/b.warnEvery {
			b.logger.Warn("consumer queues full, dropping events",
				logpkg.Uint64("total_drops", total),
				logpkg.Str("type", r.Type.String()))
		}
	}
	b.metrics.ObserveDispatch(r.Type, res, time.Since(start))
	return res
}

// Drops returns the number of drops recorded across all queues since start.
func (b *Broker) Drops() uint64 { return b.drops.Load() }
