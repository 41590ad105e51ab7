package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Register registers srv on s under ServiceName.
func Register(s grpc.ServiceRegistrar, srv OTPAuthServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes OTPAuthService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OTPAuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestOTP", Handler: unary("RequestOTP", OTPAuthServer.RequestOTP)},
		{MethodName: "SubmitOTP", Handler: unary("SubmitOTP", OTPAuthServer.SubmitOTP)},
		{MethodName: "CompleteSignup", Handler: unary("CompleteSignup", OTPAuthServer.CompleteSignup)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "haritsetu/otp/v1/otp.proto",
}

type structMethod func(OTPAuthServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call structMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OTPAuthServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OTPAuthServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
