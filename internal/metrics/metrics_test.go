package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchCounters(t *testing.T) {
	reg := registry.New()
	q, _ := reg.Register(9)
	require.NoError(t, q.Configure(eventqueue.Settings{Capacity: 1}))
	m := New(reg)
	b := broker.New(reg, broker.WithMetrics(m))

	b.Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire})
	b.Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("probe_fire")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("dropped")))

	expected := `
# HELP tracebus_queue_drops_total Events dropped because the consumer queue was full.
# TYPE tracebus_queue_drops_total counter
tracebus_queue_drops_total{pid="9"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "tracebus_queue_drops_total"))
}

func TestOpAndStorageCounters(t *testing.T) {
	m := New(nil)
	m.ObserveOp("open", "ok")
	m.ObserveOp("open", "busy")
	m.ObserveBatchCommit(time.Millisecond, 1, 128)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("open", "busy")))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.storeBytes.WithLabelValues("commit")))
	m.ObserveSample("ringbuf", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.samples.WithLabelValues("ringbuf", "malformed")))
}
