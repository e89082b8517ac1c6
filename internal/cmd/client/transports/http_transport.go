package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// HTTPTransport implements ConsumerTransport over the HTTP API.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport accepts either an http(s):// base URL or unix:///path to
// the daemon's socket.
func NewHTTPTransport(addr string) (*HTTPTransport, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "http", "https":
		return &HTTPTransport{base: strings.TrimRight(addr, "/"), client: &http.Client{}}, nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		tr := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		}
		return &HTTPTransport{base: "http://tracebus", client: &http.Client{Transport: tr}}, nil
	}
	return nil, fmt.Errorf("unsupported scheme %q; use http, https or unix", u.Scheme)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (t *HTTPTransport) Open(ctx context.Context) (Handle, error) {
	var h Handle
	err := t.do(ctx, http.MethodPost, "/v1/consumer/open", nil, &h)
	return h, err
}

func (t *HTTPTransport) Configure(ctx context.Context, s Settings) error {
	return t.do(ctx, http.MethodPost, "/v1/consumer/configure", s, nil)
}

func (t *HTTPTransport) Drain(ctx context.Context, max int) ([]eventqueue.Record, error) {
	if max < 0 {
		max = 0
	}
	var resp struct {
		Records []eventqueue.Record `json:"records"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/consumer/drain?max="+strconv.Itoa(max), nil, &resp)
	return resp.Records, err
}

// Close returns the queue's counters read just before closing, since the
// HTTP close call itself answers 204.
func (t *HTTPTransport) Close(ctx context.Context) (eventqueue.Stats, error) {
	st, err := t.Stats(ctx)
	if err != nil {
		return eventqueue.Stats{}, err
	}
	if err := t.do(ctx, http.MethodPost, "/v1/consumer/close", nil, nil); err != nil {
		return eventqueue.Stats{}, err
	}
	st.Closed = true
	return st, nil
}

func (t *HTTPTransport) Stats(ctx context.Context) (eventqueue.Stats, error) {
	var st eventqueue.Stats
	err := t.do(ctx, http.MethodGet, "/v1/consumer/stats", nil, &st)
	return st, err
}

func (t *HTTPTransport) List(ctx context.Context) ([]Consumer, error) {
	var out []Consumer
	err := t.do(ctx, http.MethodGet, "/v1/consumers", nil, &out)
	return out, err
}

func (t *HTTPTransport) Emit(ctx context.Context, r eventqueue.Record) (broker.Result, error) {
	var res broker.Result
	err := t.do(ctx, http.MethodPost, "/v1/events/emit", r, &res)
	return res, err
}

func (t *HTTPTransport) ReadLedger(ctx context.Context, q LedgerQuery) (LedgerPage, error) {
	v := url.Values{}
	if q.Start > 0 {
		v.Set("start", strconv.FormatUint(q.Start, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Reverse {
		v.Set("reverse", "true")
	}
	var page LedgerPage
	err := t.do(ctx, http.MethodGet, "/v1/ledger?"+v.Encode(), nil, &page)
	return page, err
}
