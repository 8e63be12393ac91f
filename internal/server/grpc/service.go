package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// protobuf well-known types, so no generated code is needed.
const ServiceName = "stagekeeper.v1.Staging"

// StagingServer is the server API for the staging service.
type StagingServer interface {
	StageBytes(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	StageStream(StageStreamServer) error
	ReserveEmpty(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Load(*wrapperspb.StringValue, LoadServer) error
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Relay(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Archive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sweep(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	List(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// StageStreamServer is the server side of the client-streaming StageStream call.
type StageStreamServer interface {
	Recv() (*wrapperspb.BytesValue, error)
	SendAndClose(*wrapperspb.StringValue) error
	Context() context.Context
}

// LoadServer is the server side of the server-streaming Load call.
type LoadServer interface {
	Send(*wrapperspb.BytesValue) error
	Context() context.Context
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

func unaryHandler[Req, Resp any](name string, call func(StagingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StagingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StagingServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type stageStreamServer struct{ grpc.ServerStream }

func (x *stageStreamServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *stageStreamServer) SendAndClose(m *wrapperspb.StringValue) error {
	return x.ServerStream.SendMsg(m)
}

type loadServer struct{ grpc.ServerStream }

func (x *loadServer) Send(m *wrapperspb.BytesValue) error { return x.ServerStream.SendMsg(m) }

// StagingServiceDesc describes the staging service for grpc.Server.RegisterService.
var StagingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("StageBytes", StagingServer.StageBytes),
		unaryHandler("ReserveEmpty", StagingServer.ReserveEmpty),
		unaryHandler("Describe", StagingServer.Describe),
		unaryHandler("Delete", StagingServer.Delete),
		unaryHandler("Relay", StagingServer.Relay),
		unaryHandler("Archive", StagingServer.Archive),
		unaryHandler("Sweep", StagingServer.Sweep),
		unaryHandler("List", StagingServer.List),
		unaryHandler("Ping", StagingServer.Ping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "StageStream",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(StagingServer).StageStream(&stageStreamServer{stream})
			},
			ClientStreams: true,
		},
		{
			StreamName: "Load",
			Handler: func(srv any, stream grpc.ServerStream) error {
				m := new(wrapperspb.StringValue)
				if err := stream.RecvMsg(m); err != nil {
					return err
				}
				return srv.(StagingServer).Load(m, &loadServer{stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "stagekeeper/v1/staging.proto",
}

// RegisterStagingServer registers srv on s.
func RegisterStagingServer(s grpc.ServiceRegistrar, srv StagingServer) {
	s.RegisterService(&StagingServiceDesc, srv)
}
