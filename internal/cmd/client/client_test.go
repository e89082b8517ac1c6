package client

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/tracebus/internal/auth"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/runtime"
	grpcserver "github.com/rzbill/tracebus/internal/server/grpc"
	httpserver "github.com/rzbill/tracebus/internal/server/http"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMask(t *testing.T) {
	tests := []struct {
		in      string
		want    eventqueue.Mask
		wantErr bool
	}{
		{in: "trace_start", want: eventqueue.MaskOf(eventqueue.TraceStart)},
		{in: "probe_fire, 2", want: eventqueue.MaskOf(eventqueue.ProbeFire, eventqueue.TraceStart)},
		{in: "0x3", want: eventqueue.MaskOf(eventqueue.ProbeInstall, eventqueue.ProbeUninstall)},
		{in: "0b100000", want: eventqueue.MaskOf(eventqueue.ProbeFire)},
		{in: "nonsense", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMask(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodedRecord(t *testing.T) {
	base := eventqueue.Record{Type: eventqueue.ProbeFire, Guest: 2, Thread: 9}

	r := base
	r.Payload = []byte(`{"probe":"syscall"}`)
	assert.Equal(t, map[string]any{"probe": "syscall"}, decodedRecord(r)["payload_json"])

	r.Payload = []byte("plain")
	assert.Equal(t, "plain", decodedRecord(r)["payload_text"])

	r.Payload = []byte{0xff, 0xfe}
	assert.Equal(t, "//4=", decodedRecord(r)["payload_b64"])

	out := decodedRecord(base)
	assert.Equal(t, "probe_fire", out["type"])
	assert.NotContains(t, out, "payload_text")
}

func TestUnknownTransport(t *testing.T) {
	root := NewRoot()
	root.SetArgs([]string{"consumers", "--transport", "carrier-pigeon"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

// startDaemon serves both surfaces on Unix sockets and points the client
// environment at them.
func startDaemon(t *testing.T) *consumersvc.Service {
	t.Helper()
	if goruntime.GOOS != "linux" {
		t.Skip("peer credentials need linux")
	}
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.Ledger.DataDir = filepath.Join(dir, "ledger")
	cfg.Auth.AllowUIDs = []uint32{uint32(os.Getuid())}
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	logger := logpkg.NewNop()
	svc := consumersvc.NewWithLogger(rt, logger)
	gsrv := grpcserver.New(rt, svc, logger)
	hsrv := httpserver.New(rt, svc, logger)

	grpcSock := filepath.Join(dir, "g.sock")
	httpSock := filepath.Join(dir, "h.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = gsrv.ListenAndServeUnix(ctx, grpcSock, 0o600); done <- struct{}{} }()
	go func() { _ = hsrv.ListenAndServeUnix(ctx, httpSock, 0o600); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
		_ = rt.Close()
	})
	require.Eventually(t, func() bool {
		_, e1 := os.Stat(grpcSock)
		_, e2 := os.Stat(httpSock)
		return e1 == nil && e2 == nil
	}, 2*time.Second, 10*time.Millisecond)

	t.Setenv(envGRPC, "unix://"+grpcSock)
	t.Setenv(envHTTP, "unix://"+httpSock)
	return svc
}

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestWatchAndEmit(t *testing.T) {
	for _, transport := range []string{"grpc", "http"} {
		t.Run(transport, func(t *testing.T) {
			svc := startDaemon(t)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			type result struct {
				out string
				err error
			}
			watched := make(chan result, 1)
			go func() {
				out, err := run(t, ctx, "watch", "--transport", transport,
					"--types", "probe_fire", "--limit", "2", "--interval", "10ms")
				watched <- result{out, err}
			}()
			require.Eventually(t, func() bool {
				list := svc.List(ctx)
				return len(list) == 1 && list[0].Stats.Configured
			}, 5*time.Second, 10*time.Millisecond)

			out, err := run(t, ctx, "emit", "--transport", transport, "--type", "trace_start")
			require.NoError(t, err)
			assert.Contains(t, out, `"ignored":1`)
			for _, data := range []string{"one", `{"n":2}`} {
				_, err = run(t, ctx, "emit", "--transport", transport, "--guest", "3", "--data", data)
				require.NoError(t, err)
			}

			var res result
			select {
			case res = <-watched:
			case <-ctx.Done():
				t.Fatal("watch did not finish")
			}
			require.NoError(t, res.err)
			lines := strings.Split(strings.TrimSpace(res.out), "\n")
			require.Len(t, lines, 2)
			assert.Contains(t, lines[0], `"payload_text":"one"`)
			assert.Contains(t, lines[1], `"payload_json":{"n":2}`)

			require.Eventually(t, func() bool { return len(svc.List(ctx)) == 0 }, 2*time.Second, 10*time.Millisecond)

			out, err = run(t, ctx, "ledger", "--transport", transport, "--all", "--limit", "1")
			require.NoError(t, err)
			assert.Contains(t, out, `"kind":"opened"`)
			assert.Contains(t, out, `"kind":"configured"`)
			assert.Contains(t, out, `"kind":"closed"`)
		})
	}
}

func TestConsumersAndStats(t *testing.T) {
	svc := startDaemon(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, auth.Identity{PID: 4321, UID: 0})
	require.NoError(t, err)

	out, err := run(t, ctx, "consumers")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "4321")

	for _, tr := range []string{"grpc", "http"} {
		out, err = run(t, ctx, "stats", "--transport", tr, "--pid", "4321")
		require.NoError(t, err, tr)
		assert.Contains(t, out, `"owner": 4321`, tr)
		assert.Contains(t, out, `"session"`, tr)
	}

	_, err = run(t, ctx, "stats", "--pid", "9999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no consumer queue for pid 9999")
}
