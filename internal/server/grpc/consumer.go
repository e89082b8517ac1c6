package grpcserver

import (
	"context"
	"errors"

	tracebusv1 "github.com/rzbill/tracebus/api/tracebus/v1"
	"github.com/rzbill/tracebus/internal/auth"
	"github.com/rzbill/tracebus/internal/ledger"
	"github.com/rzbill/tracebus/internal/registry"
	"github.com/rzbill/tracebus/internal/runtime"
	consumersvc "github.com/rzbill/tracebus/internal/services/consumers"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type consumerSvc struct {
	tracebusv1.UnimplementedConsumerServer
	rt  *runtime.Runtime
	svc *consumersvc.Service
}

func identity(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Identity{}, status.Error(codes.PermissionDenied, "caller identity unavailable on this connection")
	}
	return id, nil
}

func (s *consumerSvc) Open(ctx context.Context, _ *tracebusv1.OpenRequest) (*tracebusv1.OpenResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	h, err := s.svc.Open(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &tracebusv1.OpenResponse{Pid: int32(h.PID), Session: h.Session}, nil
}

func (s *consumerSvc) Configure(ctx context.Context, req *tracebusv1.ConfigureRequest) (*tracebusv1.ConfigureResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	set := consumersvc.Settings{Capacity: int(req.Capacity), Mask: req.Mask, Filter: req.Filter}
	if err := s.svc.Configure(ctx, id, set); err != nil {
		return nil, statusFromError(err)
	}
	return &tracebusv1.ConfigureResponse{}, nil
}

func (s *consumerSvc) Drain(ctx context.Context, req *tracebusv1.DrainRequest) (*tracebusv1.DrainResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.svc.Drain(ctx, id, int(req.Max))
	if err != nil {
		return nil, statusFromError(err)
	}
	return &tracebusv1.DrainResponse{Records: records}, nil
}

func (s *consumerSvc) Close(ctx context.Context, _ *tracebusv1.CloseRequest) (*tracebusv1.CloseResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.svc.Close(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &tracebusv1.CloseResponse{Stats: st}, nil
}

func (s *consumerSvc) Stats(ctx context.Context, _ *tracebusv1.StatsRequest) (*tracebusv1.StatsResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.svc.Stats(ctx, id)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &tracebusv1.StatsResponse{Stats: st}, nil
}

func (s *consumerSvc) List(ctx context.Context, _ *tracebusv1.ListRequest) (*tracebusv1.ListResponse, error) {
	list := s.svc.List(ctx)
	out := make([]tracebusv1.ConsumerInfo, 0, len(list))
	for _, c := range list {
		out = append(out, tracebusv1.ConsumerInfo{Session: c.Session, Stats: c.Stats})
	}
	return &tracebusv1.ListResponse{Consumers: out}, nil
}

func (s *consumerSvc) Emit(ctx context.Context, req *tracebusv1.EmitRequest) (*tracebusv1.EmitResponse, error) {
	id, _ := auth.FromContext(ctx)
	res, err := s.svc.Emit(ctx, id, req.Record)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &tracebusv1.EmitResponse{Result: res}, nil
}

func (s *consumerSvc) ReadLedger(_ context.Context, req *tracebusv1.ReadLedgerRequest) (*tracebusv1.ReadLedgerResponse, error) {
	l := s.rt.Ledger()
	if l == nil {
		return nil, status.Error(codes.FailedPrecondition, "ledger disabled")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative limit")
	}
	entries, next, err := l.Read(ledger.ReadOptions{Start: req.Start, Limit: int(req.Limit), Reverse: req.Reverse})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &tracebusv1.ReadLedgerResponse{Entries: entries, Next: next}, nil
}

// statusFromError is the one place service errors become gRPC statuses.
func statusFromError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, consumersvc.ErrPermissionDenied):
		code = codes.PermissionDenied
	case errors.Is(err, registry.ErrExists):
		code = codes.AlreadyExists
	case errors.Is(err, consumersvc.ErrBusy):
		code = codes.FailedPrecondition
	case errors.Is(err, consumersvc.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, consumersvc.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, consumersvc.ErrUnsupported):
		code = codes.Unimplemented
	}
	return status.Error(code, err.Error())
}
