package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	samples chan []byte
	errs    chan error
	once    sync.Once
	closed  chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{samples: make(chan []byte, 8), errs: make(chan error, 1), closed: make(chan struct{})}
}

func (f *fakeReader) Read() (ringbuf.Record, error) {
	select {
	case <-f.closed:
		return ringbuf.Record{}, ringbuf.ErrClosed
	case err := <-f.errs:
		return ringbuf.Record{}, err
	case b := <-f.samples:
		return ringbuf.Record{RawSample: b}, nil
	}
}

func (f *fakeReader) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type collector struct {
	mu   sync.Mutex
	recs []eventqueue.Record
}

func (c *collector) Dispatch(r eventqueue.Record) broker.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, r)
	return broker.Result{}
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

type countingMetrics struct {
	mu  sync.Mutex
	bad int
}

func (m *countingMetrics) ObserveSample(_ string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		m.bad++
	}
}

func TestRingbufSourceDispatchesFrames(t *testing.T) {
	rd := newFakeReader()
	out := &collector{}
	m := &countingMetrics{}
	src := NewRingbufSource(rd, out, WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	rd.samples <- eventqueue.EncodeFrames([]eventqueue.Record{
		{Type: eventqueue.TraceStart, Guest: 1},
		{Type: eventqueue.ProbeFire, Guest: 1, Thread: 7, Payload: []byte("x")},
	})
	good := eventqueue.AppendFrame(nil, eventqueue.Record{Type: eventqueue.TraceStop})
	rd.samples <- append(good, 0xff)
	rd.errs <- errors.New("transient")

	require.Eventually(t, func() bool { return out.len() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return src.Malformed() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}

	assert.EqualValues(t, 3, src.Records())
	assert.Equal(t, 1, m.bad)
	assert.Equal(t, eventqueue.ProbeFire, out.recs[1].Type)
	assert.EqualValues(t, 7, out.recs[1].Thread)
	assert.Equal(t, eventqueue.TraceStop, out.recs[2].Type)
}

// failingReader fails every read until closed.
type failingReader struct {
	reads  atomic.Int64
	closed atomic.Bool
}

func (f *failingReader) Read() (ringbuf.Record, error) {
	if f.closed.Load() {
		return ringbuf.Record{}, ringbuf.ErrClosed
	}
	f.reads.Add(1)
	return ringbuf.Record{}, errors.New("persistent")
}

func (f *failingReader) Close() error {
	f.closed.Store(true)
	return nil
}

type countingBackOff struct {
	next   atomic.Int64
	resets atomic.Int64
}

func (b *countingBackOff) NextBackOff() time.Duration {
	b.next.Add(1)
	return 20 * time.Millisecond
}

func (b *countingBackOff) Reset() { b.resets.Add(1) }

var _ backoff.BackOff = (*countingBackOff)(nil)

func TestRingbufSourceBacksOffOnPersistentErrors(t *testing.T) {
	rd := &failingReader{}
	bo := &countingBackOff{}
	src := NewRingbufSource(rd, &collector{}, WithRetryBackOff(bo))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, src.Run(ctx))

	// 200ms at a 20ms wait allows about ten reads, not a hot loop
	assert.LessOrEqual(t, rd.reads.Load(), int64(15))
	assert.GreaterOrEqual(t, rd.reads.Load(), int64(2))
	assert.Equal(t, rd.reads.Load(), bo.next.Load(), "every failure consults the backoff")
}

func TestRingbufSourceStopsWhenReaderClosed(t *testing.T) {
	rd := newFakeReader()
	src := NewRingbufSource(rd, &collector{})
	require.NoError(t, rd.Close())
	assert.NoError(t, src.Run(context.Background()))
}

func TestOpenPinnedRingbufMissingPin(t *testing.T) {
	_, err := OpenPinnedRingbuf(t.TempDir()+"/nope", &collector{})
	assert.Error(t, err)
}
