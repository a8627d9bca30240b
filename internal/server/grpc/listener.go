package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the listener service
const ServiceName = "hark.v1.Listener"

const (
	methodStart           = "/" + ServiceName + "/Start"
	methodStop            = "/" + ServiceName + "/Stop"
	methodSetTriggerWords = "/" + ServiceName + "/SetTriggerWords"
	methodStatus          = "/" + ServiceName + "/Status"
	methodEvents          = "/" + ServiceName + "/Events"
)

// ListenerServer is the server API of hark.v1.Listener. Messages are
// protobuf well-known types so no generated code is needed:
//
//	Start(Empty) Empty
//	Stop(Empty) Empty
//	SetTriggerWords(ListValue of strings) Empty
//	Status(Empty) Struct
//	Events(Empty) stream Struct
type ListenerServer interface {
	Start(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SetTriggerWords(context.Context, *structpb.ListValue) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Events(*emptypb.Empty, ListenerEventsServer) error
}

// ListenerEventsServer is the server side of the Events stream
type ListenerEventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type listenerEventsServer struct {
	grpc.ServerStream
}

func (x *listenerEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterListenerServer registers srv on s
func RegisterListenerServer(s grpc.ServiceRegistrar, srv ListenerServer) {
	s.RegisterService(&ListenerServiceDesc, srv)
}

func unaryHandler[In any, Out any](method string, call func(ListenerServer, context.Context, *In) (Out, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ListenerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ListenerServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ListenerServer).Events(m, &listenerEventsServer{stream})
}

// ListenerServiceDesc describes hark.v1.Listener
var ListenerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ListenerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Start",
			Handler: unaryHandler(methodStart, func(s ListenerServer, ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error) {
				return s.Start(ctx, in)
			}),
		},
		{
			MethodName: "Stop",
			Handler: unaryHandler(methodStop, func(s ListenerServer, ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error) {
				return s.Stop(ctx, in)
			}),
		},
		{
			MethodName: "SetTriggerWords",
			Handler: unaryHandler(methodSetTriggerWords, func(s ListenerServer, ctx context.Context, in *structpb.ListValue) (*emptypb.Empty, error) {
				return s.SetTriggerWords(ctx, in)
			}),
		},
		{
			MethodName: "Status",
			Handler: unaryHandler(methodStatus, func(s ListenerServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.Status(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "hark/v1/listener.proto",
}
