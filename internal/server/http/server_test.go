package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/tracebus/internal/auth"
	cfgpkg "github.com/rzbill/tracebus/internal/config"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"github.com/rzbill/tracebus/internal/runtime"
	"github.com/rzbill/tracebus/internal/server/http/controllers"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	logpkg "github.com/rzbill/tracebus/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rootID = auth.Identity{PID: 4242, UID: 0, GID: 0}

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config), opts ...func(*runtime.Options)) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Ledger.DataDir = t.TempDir()
	cfg.Ledger.Fsync = "always"
	if mutate != nil {
		mutate(&cfg)
	}
	o := runtime.Options{Config: cfg, ProcessAlive: func(int, uint64) bool { return true }}
	for _, fn := range opts {
		fn(&o)
	}
	rt, err := runtime.Open(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	logger := logpkg.NewNop()
	return New(rt, consumersvc.NewWithLogger(rt, logger), logger), rt
}

func do(t *testing.T, s *Server, id *auth.Identity, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s, nil, http.MethodGet, "/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestConsumerLifecycle(t *testing.T) {
	s, rt := newTestServer(t, nil)

	w := do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var h consumersvc.Handle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, rootID.PID, h.PID)
	assert.NotEmpty(t, h.Session)

	w = do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, &rootID, http.MethodPost, "/v1/consumer/configure", `{"capacity":2,"mask":"0x1"}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	for _, ev := range []eventqueue.Record{
		{Type: eventqueue.ProbeInstall, Payload: []byte("A1")},
		{Type: eventqueue.ProbeFire, Payload: []byte("B1")},
		{Type: eventqueue.ProbeInstall, Payload: []byte("A2")},
		{Type: eventqueue.ProbeInstall, Payload: []byte("A3")},
	} {
		rt.Broker().Dispatch(ev)
	}

	w = do(t, s, &rootID, http.MethodGet, "/v1/consumer/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st eventqueue.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Len)
	assert.EqualValues(t, 1, st.Drops)

	w = do(t, s, &rootID, http.MethodGet, "/v1/consumer/drain?max=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Records []eventqueue.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "A1", string(resp.Records[0].Payload))
	assert.Equal(t, eventqueue.ProbeInstall, resp.Records[0].Type)

	w = do(t, s, &rootID, http.MethodGet, "/v1/consumer/drain?format=frames", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, controllers.FramesContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "1", w.Header().Get(controllers.CountHeader))
	recs, err := eventqueue.DecodeFrames(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A2", string(recs[0].Payload))

	w = do(t, s, &rootID, http.MethodGet, "/v1/consumer/drain", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"records":[]}`, w.Body.String())

	w = do(t, s, &rootID, http.MethodPost, "/v1/consumer/close", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, &rootID, http.MethodPost, "/v1/consumer/close", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, &rootID, http.MethodGet, "/v1/consumer/drain", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConsumerErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	stranger := auth.Identity{PID: 77, UID: 1000, GID: 1000}

	assert.Equal(t, http.StatusForbidden, do(t, s, nil, http.MethodPost, "/v1/consumer/open", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, s, &stranger, http.MethodPost, "/v1/consumer/open", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, &rootID, http.MethodPost, "/v1/consumer/rewind", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, &rootID, http.MethodGet, "/v1/consumer/open", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, &rootID, http.MethodPost, "/v1/consumer/configure", `{"capacity":1}`).Code)

	require.Equal(t, http.StatusCreated, do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, &rootID, http.MethodPost, "/v1/consumer/configure", `{"filter":"type +"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, &rootID, http.MethodPost, "/v1/consumer/configure", `{"mask":"zz"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, &rootID, http.MethodGet, "/v1/consumer/drain?format=xml", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, &rootID, http.MethodGet, "/v1/consumer/drain?max=lots", "").Code)
}

func TestConfigureOnceIsConflict(t *testing.T) {
	s, _ := newTestServer(t, func(c *cfgpkg.Config) { c.Queue.ConfigurePolicy = cfgpkg.ConfigurePolicyOnce })
	require.Equal(t, http.StatusCreated, do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, &rootID, http.MethodPost, "/v1/consumer/configure", `{"capacity":8}`).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, &rootID, http.MethodPost, "/v1/consumer/configure", `{"capacity":9}`).Code)
}

func TestEmitAndList(t *testing.T) {
	s, _ := newTestServer(t, nil)
	other := auth.Identity{PID: 5000, UID: 0}
	require.Equal(t, http.StatusCreated, do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "").Code)
	require.Equal(t, http.StatusCreated, do(t, s, &other, http.MethodPost, "/v1/consumer/open", "").Code)

	w := do(t, s, &rootID, http.MethodPost, "/v1/events/emit", `{"type":"probe_fire","guest":1,"payload":"aGk="}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"queues":2,"admitted":2,"ignored":0,"dropped":0,"closed":0}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, do(t, s, nil, http.MethodPost, "/v1/events/emit", `{"type":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, &rootID, http.MethodPost, "/v1/events/emit", `{"type":"nope"}`).Code)

	w = do(t, s, nil, http.MethodGet, "/v1/consumers", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []consumersvc.Consumer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, rootID.PID, list[0].Stats.Owner)
	assert.Equal(t, 1, list[0].Stats.Len)
}

func TestAnonymousHeader(t *testing.T) {
	s, _ := newTestServer(t, func(c *cfgpkg.Config) { c.Auth.AllowAnonymous = true })
	req := httptest.NewRequest(http.MethodPost, "/v1/consumer/open", nil)
	req.Header.Set(auth.PIDHeader, "31337")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"pid":31337`)

	// without allowAnonymous the header is ignored
	s2, _ := newTestServer(t, nil)
	w = httptest.NewRecorder()
	s2.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAnonymousHeaderCannotReachCredentialedQueue(t *testing.T) {
	s, rt := newTestServer(t, func(c *cfgpkg.Config) { c.Auth.AllowAnonymous = true })
	require.Equal(t, http.StatusCreated, do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "").Code)
	rt.Broker().Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire, Payload: []byte("secret")})

	for op, method := range map[string]string{"drain": http.MethodGet, "stats": http.MethodGet, "close": http.MethodPost} {
		req := httptest.NewRequest(method, "/v1/consumer/"+op, nil)
		req.Header.Set(auth.PIDHeader, strconv.Itoa(rootID.PID))
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, op)
	}

	q, err := rt.Registry().Lookup(rootID.PID)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len(), "the owner's records are untouched")
}

func TestLedgerEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "").Code)
	require.Equal(t, http.StatusNoContent, do(t, s, &rootID, http.MethodPost, "/v1/consumer/close", "").Code)

	w := do(t, s, nil, http.MethodGet, "/v1/ledger?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Entries []struct {
			Seq  uint64 `json:"seq"`
			Kind string `json:"kind"`
		} `json:"entries"`
		Next uint64 `json:"next"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "opened", page.Entries[0].Kind)
	assert.Equal(t, uint64(2), page.Next)

	assert.Equal(t, http.StatusBadRequest, do(t, s, nil, http.MethodGet, "/v1/ledger?start=x", "").Code)

	s2, _ := newTestServer(t, func(c *cfgpkg.Config) { c.Ledger.Enabled = false })
	assert.Equal(t, http.StatusNotFound, do(t, s2, nil, http.MethodGet, "/v1/ledger", "").Code)
}

func TestLedgerTailSSE(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/ledger/tail?start=1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the test server has no peer credentials; open through the handler
	require.Equal(t, http.StatusCreated, do(t, s, &rootID, http.MethodPost, "/v1/consumer/open", "").Code)

	buf := make([]byte, 4096)
	var got bytes.Buffer
	for !strings.Contains(got.String(), "\n\n") {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}
	assert.True(t, strings.HasPrefix(got.String(), "id: 1\ndata: "))
	assert.Contains(t, got.String(), `"kind":"opened"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, rt := newTestServer(t, nil)
	_, _ = rt.Registry().Register(9)
	rt.Broker().Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire})
	w := do(t, s, nil, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tracebus_dispatch_total")
	assert.Contains(t, w.Body.String(), "tracebus_queue_length")
}

func TestUnixSocketPeerCredentials(t *testing.T) {
	if goruntime.GOOS != "linux" {
		t.Skip("peer credentials need linux")
	}
	s, _ := newTestServer(t, nil, func(o *runtime.Options) { o.Authorizer = auth.Static(true) })
	path := filepath.Join(t.TempDir(), "tb.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServeUnix(ctx, path, 0o600) }()
	defer func() {
		cancel()
		<-done
	}()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}}
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := client.Post("http://tracebus/v1/consumer/open", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var h consumersvc.Handle
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, os.Getpid(), h.PID)
}
