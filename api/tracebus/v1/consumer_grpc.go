package tracebusv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tracebus.v1.Consumer"

const (
	Consumer_Open_FullMethodName       = "/" + ServiceName + "/Open"
	Consumer_Configure_FullMethodName  = "/" + ServiceName + "/Configure"
	Consumer_Drain_FullMethodName      = "/" + ServiceName + "/Drain"
	Consumer_Close_FullMethodName      = "/" + ServiceName + "/Close"
	Consumer_Stats_FullMethodName      = "/" + ServiceName + "/Stats"
	Consumer_List_FullMethodName       = "/" + ServiceName + "/List"
	Consumer_Emit_FullMethodName       = "/" + ServiceName + "/Emit"
	Consumer_ReadLedger_FullMethodName = "/" + ServiceName + "/ReadLedger"
)

// ConsumerClient is the client API for the Consumer service.
type ConsumerClient interface {
	Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error)
	Configure(ctx context.Context, in *ConfigureRequest, opts ...grpc.CallOption) (*ConfigureResponse, error)
	Drain(ctx context.Context, in *DrainRequest, opts ...grpc.CallOption) (*DrainResponse, error)
	Close(ctx context.Context, in *CloseRequest, opts ...grpc.CallOption) (*CloseResponse, error)
	Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
	List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error)
	Emit(ctx context.Context, in *EmitRequest, opts ...grpc.CallOption) (*EmitResponse, error)
	ReadLedger(ctx context.Context, in *ReadLedgerRequest, opts ...grpc.CallOption) (*ReadLedgerResponse, error)
}

type consumerClient struct {
	cc grpc.ClientConnInterface
}

// NewConsumerClient returns a client that sends every call with the json
// content subtype.
func NewConsumerClient(cc grpc.ClientConnInterface) ConsumerClient {
	return &consumerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consumerClient) Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error) {
	return invoke[OpenResponse](ctx, c.cc, Consumer_Open_FullMethodName, in, opts)
}

func (c *consumerClient) Configure(ctx context.Context, in *ConfigureRequest, opts ...grpc.CallOption) (*ConfigureResponse, error) {
	return invoke[ConfigureResponse](ctx, c.cc, Consumer_Configure_FullMethodName, in, opts)
}

func (c *consumerClient) Drain(ctx context.Context, in *DrainRequest, opts ...grpc.CallOption) (*DrainResponse, error) {
	return invoke[DrainResponse](ctx, c.cc, Consumer_Drain_FullMethodName, in, opts)
}

func (c *consumerClient) Close(ctx context.Context, in *CloseRequest, opts ...grpc.CallOption) (*CloseResponse, error) {
	return invoke[CloseResponse](ctx, c.cc, Consumer_Close_FullMethodName, in, opts)
}

func (c *consumerClient) Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.cc, Consumer_Stats_FullMethodName, in, opts)
}

func (c *consumerClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	return invoke[ListResponse](ctx, c.cc, Consumer_List_FullMethodName, in, opts)
}

func (c *consumerClient) Emit(ctx context.Context, in *EmitRequest, opts ...grpc.CallOption) (*EmitResponse, error) {
	return invoke[EmitResponse](ctx, c.cc, Consumer_Emit_FullMethodName, in, opts)
}

func (c *consumerClient) ReadLedger(ctx context.Context, in *ReadLedgerRequest, opts ...grpc.CallOption) (*ReadLedgerResponse, error) {
	return invoke[ReadLedgerResponse](ctx, c.cc, Consumer_ReadLedger_FullMethodName, in, opts)
}

// ConsumerServer is the server API for the Consumer service.
type ConsumerServer interface {
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	Configure(context.Context, *ConfigureRequest) (*ConfigureResponse, error)
	Drain(context.Context, *DrainRequest) (*DrainResponse, error)
	Close(context.Context, *CloseRequest) (*CloseResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Emit(context.Context, *EmitRequest) (*EmitResponse, error)
	ReadLedger(context.Context, *ReadLedgerRequest) (*ReadLedgerResponse, error)
}

// UnimplementedConsumerServer can be embedded for forward compatibility.
type UnimplementedConsumerServer struct{}

func (UnimplementedConsumerServer) Open(context.Context, *OpenRequest) (*OpenResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Open not implemented")
}
func (UnimplementedConsumerServer) Configure(context.Context, *ConfigureRequest) (*ConfigureResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Configure not implemented")
}
func (UnimplementedConsumerServer) Drain(context.Context, *DrainRequest) (*DrainResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Drain not implemented")
}
func (UnimplementedConsumerServer) Close(context.Context, *CloseRequest) (*CloseResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Close not implemented")
}
func (UnimplementedConsumerServer) Stats(context.Context, *StatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Stats not implemented")
}
func (UnimplementedConsumerServer) List(context.Context, *ListRequest) (*ListResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}
func (UnimplementedConsumerServer) Emit(context.Context, *EmitRequest) (*EmitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Emit not implemented")
}
func (UnimplementedConsumerServer) ReadLedger(context.Context, *ReadLedgerRequest) (*ReadLedgerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ReadLedger not implemented")
}

// RegisterConsumerServer registers srv on s.
func RegisterConsumerServer(s grpc.ServiceRegistrar, srv ConsumerServer) {
	s.RegisterService(&Consumer_ServiceDesc, srv)
}

func unary[Req any, Resp any](name string, call func(ConsumerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConsumerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ConsumerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Consumer_ServiceDesc is the grpc.ServiceDesc for the Consumer service.
var Consumer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConsumerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Open", ConsumerServer.Open),
		unary("Configure", ConsumerServer.Configure),
		unary("Drain", ConsumerServer.Drain),
		unary("Close", ConsumerServer.Close),
		unary("Stats", ConsumerServer.Stats),
		unary("List", ConsumerServer.List),
		unary("Emit", ConsumerServer.Emit),
		unary("ReadLedger", ConsumerServer.ReadLedger),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tracebus/v1/consumer",
}
