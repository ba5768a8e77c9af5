package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ControlServiceName is the fully qualified gRPC service name.
const ControlServiceName = "rclonetray.Control"

// ControlServer is the server side of the control API.
type ControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*DaemonStatus, error)
	ListBookmarks(context.Context, *emptypb.Empty) (*BookmarkList, error)
	RunAction(context.Context, *ActionRequest) (*ActionResult, error)
	ListProviders(context.Context, *emptypb.Empty) (*ProviderList, error)
	GetBookmark(context.Context, *BookmarkRef) (*BookmarkConfig, error)
	CreateBookmark(context.Context, *BookmarkConfigRequest) (*emptypb.Empty, error)
	UpdateBookmark(context.Context, *BookmarkConfigRequest) (*emptypb.Empty, error)
	DeleteBookmark(context.Context, *BookmarkRef) (*emptypb.Empty, error)
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// ControlServiceDesc describes rclonetray.Control for grpc.Server.RegisterService.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "ListBookmarks", Handler: listBookmarksHandler},
		{MethodName: "RunAction", Handler: runActionHandler},
		{MethodName: "ListProviders", Handler: listProvidersHandler},
		{MethodName: "GetBookmark", Handler: getBookmarkHandler},
		{MethodName: "CreateBookmark", Handler: createBookmarkHandler},
		{MethodName: "UpdateBookmark", Handler: updateBookmarkHandler},
		{MethodName: "DeleteBookmark", Handler: deleteBookmarkHandler},
		{MethodName: "Shutdown", Handler: shutdownHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rclonetray/control",
}

// RegisterControlServer registers srv with s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ControlServiceName + "/" + name
}

// unary decodes the request into a new req and calls fn, through the
// interceptor when one is installed.
func unary[Req any, Resp any](
	name string,
	fn func(ControlServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(ControlServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	getStatusHandler      = unary("GetStatus", ControlServer.GetStatus)
	listBookmarksHandler  = unary("ListBookmarks", ControlServer.ListBookmarks)
	runActionHandler      = unary("RunAction", ControlServer.RunAction)
	listProvidersHandler  = unary("ListProviders", ControlServer.ListProviders)
	getBookmarkHandler    = unary("GetBookmark", ControlServer.GetBookmark)
	createBookmarkHandler = unary("CreateBookmark", ControlServer.CreateBookmark)
	updateBookmarkHandler = unary("UpdateBookmark", ControlServer.UpdateBookmark)
	deleteBookmarkHandler = unary("DeleteBookmark", ControlServer.DeleteBookmark)
	shutdownHandler       = unary("Shutdown", ControlServer.Shutdown)
)
