package registry

import (
	"sync"
	"testing"

	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLookupUnregister(t *testing.T) {
	r := New()
	q, err := r.Register(100)
	require.NoError(t, err)
	assert.Equal(t, 100, q.Owner())

	_, err = r.Register(100)
	require.ErrorIs(t, err, ErrExists)

	got, err := r.Lookup(100)
	require.NoError(t, err)
	assert.Same(t, q, got)

	removed, err := r.Unregister(100)
	require.NoError(t, err)
	assert.Same(t, q, removed)

	_, err = r.Lookup(100)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Unregister(100)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Register(100)
	require.NoError(t, err, "identity is reusable after unregister")
}

func TestRegistryAppliesQueueOptions(t *testing.T) {
	r := New(eventqueue.WithCapacity(3), eventqueue.WithMask(eventqueue.MaskOf(eventqueue.TraceStart)))
	q, err := r.Register(1)
	require.NoError(t, err)
	st := q.Stats()
	assert.Equal(t, 3, st.Capacity)
	assert.Equal(t, eventqueue.MaskOf(eventqueue.TraceStart), st.Mask)
}

func TestForEachMayReenter(t *testing.T) {
	r := New()
	for id := 1; id <= 3; id++ {
		_, err := r.Register(id)
		require.NoError(t, err)
	}
	seen := 0
	r.ForEach(func(q *eventqueue.Queue) {
		seen++
		// callbacks run outside the registry lock
		_, err := r.Unregister(q.Owner())
		require.NoError(t, err)
	})
	assert.Equal(t, 3, seen)
	assert.Zero(t, r.Len())
}

func TestUnregisterAll(t *testing.T) {
	r := New()
	for id := 1; id <= 4; id++ {
		_, _ = r.Register(id)
	}
	qs := r.UnregisterAll()
	assert.Len(t, qs, 4)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestConcurrentRegisterSameIdentity(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Register(7); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "at most one queue per identity")
	assert.Equal(t, 1, r.Len())
}

func TestRegisterExtraOptionsAndUnregisterIf(t *testing.T) {
	r := New(eventqueue.WithCapacity(3))
	q, err := r.Register(7, eventqueue.WithOrigin(eventqueue.Origin{Session: "s1", UID: 1000}))
	require.NoError(t, err)
	assert.Equal(t, 3, q.Stats().Capacity)
	assert.Equal(t, "s1", q.Origin().Session)

	other, err := r.Register(8)
	require.NoError(t, err)
	assert.Empty(t, other.Origin().Session, "extra options do not leak into later queues")

	_, err = r.UnregisterIf(7, func(q *eventqueue.Queue) bool { return q.Origin().UID == 0 })
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Lookup(7)
	require.NoError(t, err, "rejected queue stays registered")

	removed, err := r.UnregisterIf(7, func(q *eventqueue.Queue) bool { return q.Origin().UID == 1000 })
	require.NoError(t, err)
	assert.Same(t, q, removed)
	_, err = r.UnregisterIf(7, func(*eventqueue.Queue) bool { return true })
	require.ErrorIs(t, err, ErrNotFound)
}
