// Package rpc exposes the child command dispatcher as a gRPC service.
//
// Messages are the JSON forms of app.Command and app.Reply carried by a
// registered "json" codec, so the service is described by hand instead of
// through generated stubs. Every operation is a unary method:
//
//	/picocrud.v1.ChildService/Save
//	/picocrud.v1.ChildService/UpdateByRelatedId
//	...
package rpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/domain"
)

const ServiceName = "picocrud.v1.ChildService"

// ChildServiceServer handles every method; the operation is taken from the
// method name, not from the request body.
type ChildServiceServer interface {
	Execute(ctx context.Context, cmd *app.Command) (*app.Reply, error)
}

// MethodName turns "update-by-related-id" into "UpdateByRelatedId".
func MethodName(op domain.Operation) string {
	parts := strings.Split(string(op), "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

// FullMethod returns the invocation path for op.
func FullMethod(op domain.Operation) string {
	return "/" + ServiceName + "/" + MethodName(op)
}

func methodHandler(op domain.Operation) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(app.Command)
		if err := dec(in); err != nil {
			return nil, err
		}
		in.Operation = op
		s := srv.(ChildServiceServer)
		if interceptor == nil {
			return s.Execute(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(op)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.Execute(ctx, req.(*app.Command))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes picocrud.v1.ChildService.
var ServiceDesc = func() grpc.ServiceDesc {
	ops := domain.AllOperations()
	methods := make([]grpc.MethodDesc, 0, len(ops))
	for _, op := range ops {
		methods = append(methods, grpc.MethodDesc{
			MethodName: MethodName(op),
			Handler:    methodHandler(op),
		})
	}
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*ChildServiceServer)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "picocrud/v1/child.proto",
	}
}()
