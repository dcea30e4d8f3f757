package dataapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service identity on the wire. Messages are google.protobuf.Struct, so
// clients in any language can call it with the well-known types alone.
const (
	ServiceName    = "discountrules.v1.RequirementService"
	CheckMethod    = "/" + ServiceName + "/Check"
	EvaluateMethod = "/" + ServiceName + "/Evaluate"
)

// RequirementServer is the server side of RequirementService.
type RequirementServer interface {
	// Check evaluates one requirement.
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Evaluate evaluates every requirement of a discount (AND semantics).
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc registers a RequirementServer on a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RequirementServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: unaryHandler(CheckMethod, RequirementServer.Check)},
		{MethodName: "Evaluate", Handler: unaryHandler(EvaluateMethod, RequirementServer.Evaluate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "discountrules/v1/requirement.proto",
}

type unaryMethod func(RequirementServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts call to grpc.MethodDesc.Handler, whose named type is
// unexported; the unnamed func type below is assignable to it.
func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RequirementServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RequirementServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client is a thin RequirementService client.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Check(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Evaluate(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
