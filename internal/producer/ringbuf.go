package producer

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	logpkg "github.com/rzbill/tracebus/pkg/log"
)

const ringbufSource = "ringbuf"

// SampleReader is the part of *ringbuf.Reader a RingbufSource uses.
// Close must unblock a pending Read, which then returns ringbuf.ErrClosed.
type SampleReader interface {
	Read() (ringbuf.Record, error)
	Close() error
}

// MetricsHook observes samples read from a source.
type MetricsHook interface {
	ObserveSample(source string, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSample(string, bool) {}

// Option configures a RingbufSource.
type Option func(*RingbufSource)

func WithLogger(l logpkg.Logger) Option {
	return func(s *RingbufSource) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m MetricsHook) Option {
	return func(s *RingbufSource) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRetryBackOff sets the wait policy after a failed read. The default
// grows from 50ms to 5s and resets on the next successful read.
func WithRetryBackOff(b backoff.BackOff) Option {
	return func(s *RingbufSource) {
		if b != nil {
			s.retry = b
		}
	}
}

// RingbufSource reads framed records from a BPF ring buffer. One sample
// carries one or more frames back to back.
type RingbufSource struct {
	reader  SampleReader
	m       *ebpf.Map
	out     broker.Dispatcher
	logger  logpkg.Logger
	metrics MetricsHook
	retry   backoff.BackOff

	records   atomic.Uint64
	malformed atomic.Uint64
}

// NewRingbufSource wraps an already open reader.
func NewRingbufSource(r SampleReader, out broker.Dispatcher, opts ...Option) *RingbufSource {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	s := &RingbufSource{reader: r, out: out, logger: logpkg.NewNop(), metrics: noopMetrics{}, retry: bo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenPinnedRingbuf opens the BPF_MAP_TYPE_RINGBUF map pinned at path.
func OpenPinnedRingbuf(path string, out broker.Dispatcher, opts ...Option) (*RingbufSource, error) {
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		return nil, fmt.Errorf("load pinned map %s: %w", path, err)
	}
	if m.Type() != ebpf.RingBuf {
		_ = m.Close()
		return nil, fmt.Errorf("pinned map %s is %s, not a ring buffer", path, m.Type())
	}
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("opening ring buffer: %w", err)
	}
	s := NewRingbufSource(rd, out, opts...)
	s.m = m
	return s, nil
}

// Run dispatches records until ctx is done or the reader is closed. It
// closes the reader on return.
func (s *RingbufSource) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.reader.Close() })
	defer func() {
		if stop() {
			_ = s.reader.Close()
		}
		if s.m != nil {
			_ = s.m.Close()
		}
	}()

	s.logger.Info("ring buffer source started")
	s.retry.Reset()
	failures := uint64(0)
	for {
		sample, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				s.logger.Info("ring buffer source stopped",
					logpkg.Uint64("records", s.records.Load()),
					logpkg.Uint64("malformed", s.malformed.Load()))
				return nil
			}
			failures++
			wait := s.retry.NextBackOff()
			// log the 1st, 2nd, 4th, 8th... failure of a streak
			if bits.OnesCount64(failures) == 1 {
				s.logger.Warn("reading from ring buffer",
					logpkg.Err(err),
					logpkg.Uint64("consecutive_failures", failures),
					logpkg.Dur("retry_in", wait))
			}
			s.pause(ctx, wait)
			continue
		}
		if failures > 0 {
			failures = 0
			s.retry.Reset()
		}
		s.handle(sample.RawSample)
	}
}

// pause waits d or until ctx is done. A stop means the reader has been
// closed and the next Read returns ringbuf.ErrClosed.
func (s *RingbufSource) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *RingbufSource) handle(raw []byte) {
	recs, err := eventqueue.DecodeFrames(raw)
	for _, r := range recs {
		s.out.Dispatch(r)
	}
	s.records.Add(uint64(len(recs)))
	s.metrics.ObserveSample(ringbufSource, err == nil)
	if err != nil {
		s.malformed.Add(1)
		s.logger.Debug("malformed ring buffer sample",
			logpkg.Int("bytes", len(raw)),
			logpkg.Int("decoded", len(recs)),
			logpkg.Err(err))
	}
}

// Records returns the number of records dispatched so far.
func (s *RingbufSource) Records() uint64 { return s.records.Load() }

// Malformed returns the number of samples that failed to decode.
func (s *RingbufSource) Malformed() uint64 { return s.malformed.Load() }
