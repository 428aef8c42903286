// Package api serves the daemon's gRPC surface. Service descriptors are
// written by hand over protobuf well-known types: structured values travel as
// google.protobuf.Struct / ListValue holding the same JSON documents the REST
// gateway serves, and scalar arguments as wrapper types.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ProductServiceName = "inventario.v1.ProductService"
	SyncServiceName    = "inventario.v1.SyncService"
)

// Full method names.
const (
	ProductCreateMethod = "/" + ProductServiceName + "/Create"
	ProductUpdateMethod = "/" + ProductServiceName + "/Update"
	ProductDeleteMethod = "/" + ProductServiceName + "/Delete"
	ProductGetMethod    = "/" + ProductServiceName + "/Get"
	ProductListMethod   = "/" + ProductServiceName + "/List"

	SyncDrainPendingMethod = "/" + SyncServiceName + "/DrainPending"
	SyncAcknowledgeMethod  = "/" + SyncServiceName + "/Acknowledge"
	SyncReportMethod       = "/" + SyncServiceName + "/Report"
	SyncListOutboxMethod   = "/" + SyncServiceName + "/ListOutbox"
	SyncGetStatusMethod    = "/" + SyncServiceName + "/GetStatus"
	SyncWatchEventsMethod  = "/" + SyncServiceName + "/WatchEvents"
)

// ProductServer is the server API for inventario.v1.ProductService.
type ProductServer interface {
	// Create takes a product document and returns the stored product.
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Update takes {"id": n, "patch": {...}} and returns the changed count.
	Update(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
	// Delete takes a product id and returns the changed count.
	Delete(context.Context, *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error)
	Get(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	List(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// SyncServer is the server API for inventario.v1.SyncService.
type SyncServer interface {
	// DrainPending takes a batch limit (<= 0 for all) and returns pending
	// outbox entries oldest first.
	DrainPending(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
	Acknowledge(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
	// Report takes a list of delivery results and returns a summary.
	Report(context.Context, *structpb.ListValue) (*structpb.Struct, error)
	// ListOutbox takes {"after_id": n, "limit": n} and returns entries of any status.
	ListOutbox(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// WatchEvents streams bus events whose kind starts with the given prefix.
	WatchEvents(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterProductServer registers srv on s.
func RegisterProductServer(s grpc.ServiceRegistrar, srv ProductServer) {
	s.RegisterService(&ProductServiceDesc, srv)
}

// RegisterSyncServer registers srv on s.
func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}

// ProductServiceDesc is the grpc.ServiceDesc for inventario.v1.ProductService.
var ProductServiceDesc = grpc.ServiceDesc{
	ServiceName: ProductServiceName,
	HandlerType: (*ProductServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: unary(ProductCreateMethod, ProductServer.Create)},
		{MethodName: "Update", Handler: unary(ProductUpdateMethod, ProductServer.Update)},
		{MethodName: "Delete", Handler: unary(ProductDeleteMethod, ProductServer.Delete)},
		{MethodName: "Get", Handler: unary(ProductGetMethod, ProductServer.Get)},
		{MethodName: "List", Handler: unary(ProductListMethod, ProductServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventario/v1/inventario.proto",
}

// SyncServiceDesc is the grpc.ServiceDesc for inventario.v1.SyncService.
var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DrainPending", Handler: unary(SyncDrainPendingMethod, SyncServer.DrainPending)},
		{MethodName: "Acknowledge", Handler: unary(SyncAcknowledgeMethod, SyncServer.Acknowledge)},
		{MethodName: "Report", Handler: unary(SyncReportMethod, SyncServer.Report)},
		{MethodName: "ListOutbox", Handler: unary(SyncListOutboxMethod, SyncServer.ListOutbox)},
		{MethodName: "GetStatus", Handler: unary(SyncGetStatusMethod, SyncServer.GetStatus)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "inventario/v1/inventario.proto",
}

// unary adapts a typed method expression to a grpc.MethodHandler, running
// the server's interceptor chain when one is installed.
func unary[S, Req, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SyncServer).WatchEvents(m, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}
