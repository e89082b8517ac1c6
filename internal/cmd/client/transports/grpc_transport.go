// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"

	tracebusv1 "github.com/rzbill/tracebus/api/tracebus/v1"
	"github.com/rzbill/tracebus/internal/broker"
	"github.com/rzbill/tracebus/internal/eventqueue"
	"google.golang.org/grpc"
)

// GrpcTransport implements ConsumerTransport over gRPC.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

func (t *GrpcTransport) withClient(ctx context.Context, fn func(cli tracebusv1.ConsumerClient) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(tracebusv1.NewConsumerClient(conn))
}

func (t *GrpcTransport) Open(ctx context.Context) (Handle, error) {
	var h Handle
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.Open(ctx, &tracebusv1.OpenRequest{})
		if err != nil {
			return err
		}
		h = Handle{PID: int(resp.Pid), Session: resp.Session}
		return nil
	})
	return h, err
}

func (t *GrpcTransport) Configure(ctx context.Context, s Settings) error {
	return t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		_, err := cli.Configure(ctx, &tracebusv1.ConfigureRequest{Capacity: int64(s.Capacity), Mask: s.Mask, Filter: s.Filter})
		return err
	})
}

func (t *GrpcTransport) Drain(ctx context.Context, max int) ([]eventqueue.Record, error) {
	var out []eventqueue.Record
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.Drain(ctx, &tracebusv1.DrainRequest{Max: int32(max)})
		if err != nil {
			return err
		}
		out = resp.Records
		return nil
	})
	return out, err
}

func (t *GrpcTransport) Close(ctx context.Context) (eventqueue.Stats, error) {
	var st eventqueue.Stats
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.Close(ctx, &tracebusv1.CloseRequest{})
		if err != nil {
			return err
		}
		st = resp.Stats
		return nil
	})
	return st, err
}

func (t *GrpcTransport) Stats(ctx context.Context) (eventqueue.Stats, error) {
	var st eventqueue.Stats
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.Stats(ctx, &tracebusv1.StatsRequest{})
		if err != nil {
			return err
		}
		st = resp.Stats
		return nil
	})
	return st, err
}

func (t *GrpcTransport) List(ctx context.Context) ([]Consumer, error) {
	var out []Consumer
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.List(ctx, &tracebusv1.ListRequest{})
		if err != nil {
			return err
		}
		for _, c := range resp.Consumers {
			out = append(out, Consumer{Session: c.Session, Stats: c.Stats})
		}
		return nil
	})
	return out, err
}

func (t *GrpcTransport) Emit(ctx context.Context, r eventqueue.Record) (broker.Result, error) {
	var res broker.Result
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.Emit(ctx, &tracebusv1.EmitRequest{Record: r})
		if err != nil {
			return err
		}
		res = resp.Result
		return nil
	})
	return res, err
}

func (t *GrpcTransport) ReadLedger(ctx context.Context, q LedgerQuery) (LedgerPage, error) {
	var page LedgerPage
	err := t.withClient(ctx, func(cli tracebusv1.ConsumerClient) error {
		resp, err := cli.ReadLedger(ctx, &tracebusv1.ReadLedgerRequest{Start: q.Start, Limit: int32(q.Limit), Reverse: q.Reverse})
		if err != nil {
			return err
		}
		page = LedgerPage{Entries: resp.Entries, Next: resp.Next}
		return nil
	})
	return page, err
}
