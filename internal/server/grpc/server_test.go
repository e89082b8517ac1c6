package grpcserver

import (
	"context"
	"net"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"testing"
	"time"

	tracebusv1 "github.com/rzbill/tracebus/api/tracebus/v1"
	"github.com/rzbill/tracebus/internal/auth"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/runtime"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config)) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Ledger.DataDir = t.TempDir()
	cfg.Ledger.Fsync = "always"
	cfg.Auth.AllowAnonymous = true
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	logger := logpkg.NewNop()
	return New(rt, consumersvc.NewWithLogger(rt, logger), logger), rt
}

func dialBuf(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx, lis)
		close(done)
	}()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func asPID(ctx context.Context, pid int) context.Context {
	return metadata.AppendToOutgoingContext(ctx, auth.PIDHeader, strconv.Itoa(pid))
}

func TestHealthOverGRPC(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn := dialBuf(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: tracebusv1.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.GetStatus())
}

func TestConsumerLifecycleOverGRPC(t *testing.T) {
	s, rt := newTestServer(t, nil)
	c := tracebusv1.NewConsumerClient(dialBuf(t, s))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	me := asPID(ctx, 900)

	open, err := c.Open(me, &tracebusv1.OpenRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 900, open.Pid)
	assert.NotEmpty(t, open.Session)

	_, err = c.Open(me, &tracebusv1.OpenRequest{})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = c.Configure(me, &tracebusv1.ConfigureRequest{Capacity: 2, Mask: eventqueue.MaskOf(eventqueue.ProbeFire)})
	require.NoError(t, err)

	for _, p := range []string{"1", "2", "3"} {
		rt.Broker().Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire, Guest: 4, Payload: []byte(p)})
	}

	st, err := c.Stats(me, &tracebusv1.StatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Stats.Len)
	assert.EqualValues(t, 1, st.Stats.Drops)

	dr, err := c.Drain(me, &tracebusv1.DrainRequest{})
	require.NoError(t, err)
	require.Len(t, dr.Records, 2)
	assert.Equal(t, "1", string(dr.Records[0].Payload))
	assert.EqualValues(t, 4, dr.Records[1].Guest)

	list, err := c.List(ctx, &tracebusv1.ListRequest{})
	require.NoError(t, err)
	require.Len(t, list.Consumers, 1)
	assert.Equal(t, open.Session, list.Consumers[0].Session)

	cl, err := c.Close(me, &tracebusv1.CloseRequest{})
	require.NoError(t, err)
	assert.True(t, cl.Stats.Closed)

	_, err = c.Drain(me, &tracebusv1.DrainRequest{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	led, err := c.ReadLedger(ctx, &tracebusv1.ReadLedgerRequest{Reverse: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, led.Entries, 1)
	assert.Equal(t, "closed", string(led.Entries[0].Kind))
}

func TestErrorsOverGRPC(t *testing.T) {
	s, _ := newTestServer(t, func(c *cfgpkg.Config) { c.Queue.ConfigurePolicy = cfgpkg.ConfigurePolicyOnce })
	c := tracebusv1.NewConsumerClient(dialBuf(t, s))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Open(ctx, &tracebusv1.OpenRequest{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err), "no identity")

	me := asPID(ctx, 901)
	_, err = c.Configure(me, &tracebusv1.ConfigureRequest{Capacity: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Open(me, &tracebusv1.OpenRequest{})
	require.NoError(t, err)
	_, err = c.Configure(me, &tracebusv1.ConfigureRequest{Filter: "type +"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = c.Configure(me, &tracebusv1.ConfigureRequest{Capacity: 3})
	require.NoError(t, err)
	_, err = c.Configure(me, &tracebusv1.ConfigureRequest{Capacity: 4})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestEmitOverGRPC(t *testing.T) {
	s, _ := newTestServer(t, nil)
	c := tracebusv1.NewConsumerClient(dialBuf(t, s))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Open(asPID(ctx, 902), &tracebusv1.OpenRequest{})
	require.NoError(t, err)
	res, err := c.Emit(asPID(ctx, 1), &tracebusv1.EmitRequest{Record: eventqueue.Record{Type: eventqueue.TraceStart}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Result.Admitted)

	_, err = c.Emit(ctx, &tracebusv1.EmitRequest{Record: eventqueue.Record{Type: eventqueue.TraceStart}})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestPeerCredentialsOverUnixSocket(t *testing.T) {
	if goruntime.GOOS != "linux" {
		t.Skip("peer credentials need linux")
	}
	s, _ := newTestServer(t, func(c *cfgpkg.Config) {
		c.Auth.AllowAnonymous = false
		c.Auth.AllowUIDs = []uint32{uint32(os.Getuid())}
	})
	path := filepath.Join(t.TempDir(), "tb-grpc.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServeUnix(ctx, path, 0o600) }()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := grpc.NewClient("unix://"+path, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ccancel()
	open, err := tracebusv1.NewConsumerClient(conn).Open(cctx, &tracebusv1.OpenRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, os.Getpid(), open.Pid)
}
