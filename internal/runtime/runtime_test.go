package runtime

import (
	"context"
	"testing"

	"github.com/rzbill/tracebus/internal/auth"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.Ledger.DataDir = t.TempDir()
	cfg.Ledger.Fsync = "always"
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	require.NoError(t, err)
	require.NotNil(t, rt.Ledger())
	require.NoError(t, rt.CheckHealth(context.Background()))
	require.NoError(t, rt.Close())
	assert.Error(t, rt.CheckHealth(context.Background()))
}

func TestLedgerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Enabled = false
	rt, err := Open(Options{Config: cfg})
	require.NoError(t, err)
	defer rt.Close()
	assert.Nil(t, rt.Ledger())
	assert.NoError(t, rt.CheckHealth(context.Background()))
}

func TestQueueDefaultsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Enabled = false
	cfg.Queue.DefaultCapacity = 8
	cfg.Queue.DefaultMask = "0x20"
	cfg.Queue.ConfigurePolicy = cfgpkg.ConfigurePolicyOnce
	rt, err := Open(Options{Config: cfg})
	require.NoError(t, err)
	defer rt.Close()

	q, err := rt.Registry().Register(5)
	require.NoError(t, err)
	st := q.Stats()
	assert.Equal(t, 8, st.Capacity)
	assert.Equal(t, eventqueue.MaskOf(eventqueue.ProbeFire), st.Mask)
	require.NoError(t, q.Configure(eventqueue.Settings{Capacity: 4}))
	assert.ErrorIs(t, q.Configure(eventqueue.Settings{Capacity: 2}), eventqueue.ErrAlreadyConfigured)
}

func TestOpenRejectsBadQueueConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Enabled = false
	cfg.Queue.DefaultMask = "nope"
	_, err := Open(Options{Config: cfg})
	assert.Error(t, err)

	cfg.Queue.DefaultMask = ""
	cfg.Queue.ConfigurePolicy = "sometimes"
	_, err = Open(Options{Config: cfg})
	assert.Error(t, err)
}

func TestAuthorizerFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Enabled = false
	cfg.Auth = cfgpkg.AuthConfig{AllowRoot: false, AllowUIDs: []uint32{1000}, AllowAnonymous: true}
	rt, err := Open(Options{Config: cfg})
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	a := rt.Authorizer()
	assert.NoError(t, a.Authorize(ctx, auth.Identity{PID: 3, UID: 1000}))
	assert.ErrorIs(t, a.Authorize(ctx, auth.Identity{PID: 3, UID: 0}), auth.ErrDenied)
	assert.NoError(t, a.Authorize(ctx, auth.Identity{PID: 3, Anonymous: true}))
}

func TestCloseTearsDownQueues(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Enabled = false
	rt, err := Open(Options{Config: cfg})
	require.NoError(t, err)

	q, _ := rt.Registry().Register(1)
	rt.Broker().Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire, Payload: []byte("x")})
	require.Equal(t, 1, q.Len())

	require.NoError(t, rt.Close())
	assert.Zero(t, rt.Registry().Len())
	st := q.Stats()
	assert.True(t, st.Closed)
	assert.EqualValues(t, 1, st.Discarded)
}
