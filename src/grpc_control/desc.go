package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Messages are well-known protobuf types, so no generated code is required.

const (
	ServiceName = "regatta.control.v1.RaceControl"

	listRacesMethod   = "/" + ServiceName + "/ListRaces"
	getSnapshotMethod = "/" + ServiceName + "/GetSnapshot"
	evictRaceMethod   = "/" + ServiceName + "/EvictRace"
)

// RaceControlServer is the operator control surface.
type RaceControlServer interface {
	ListRaces(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSnapshot(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	EvictRace(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// -----------------------------------------------------------------------------

func RegisterRaceControlServer(s grpc.ServiceRegistrar, srv RaceControlServer) {
	s.RegisterService(&RaceControl_ServiceDesc, srv)
}

var RaceControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RaceControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRaces", Handler: listRacesHandler},
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "EvictRace", Handler: evictRaceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "regatta/control/v1/control.proto",
}

// -----------------------------------------------------------------------------

func listRacesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaceControlServer).ListRaces(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRacesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaceControlServer).ListRaces(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaceControlServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaceControlServer).GetSnapshot(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func evictRaceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaceControlServer).EvictRace(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evictRaceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaceControlServer).EvictRace(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

type RaceControlClient struct {
	cc grpc.ClientConnInterface
}

func NewRaceControlClient(cc grpc.ClientConnInterface) *RaceControlClient {
	return &RaceControlClient{cc: cc}
}

func (c *RaceControlClient) ListRaces(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listRacesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RaceControlClient) GetSnapshot(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RaceControlClient) EvictRace(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, evictRaceMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
