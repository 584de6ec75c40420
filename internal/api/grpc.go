package relayapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/aegis-sign/custody/internal/credential"
	"github.com/aegis-sign/custody/internal/signing"
	"github.com/aegis-sign/custody/internal/wire/platformv1"
	"github.com/aegis-sign/custody/pkg/apierrors"
)

// platformServer 是中继对外暴露的 PlatformAPI 服务形状。
type platformServer interface {
	CreateSigningRequest(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error)
	GetSigningRequestDetails(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error)
}

// GRPCServer 在本地实现 PlatformAPI，校验后转发到 Backend；x-mtoken 元数据原样透传。
type GRPCServer struct {
	backend Backend
}

var _ platformServer = (*GRPCServer)(nil)

// NewGRPCServer 构造 gRPC server。
func NewGRPCServer(backend Backend) *GRPCServer {
	if backend == nil {
		panic("relay backend is required")
	}
	return &GRPCServer{backend: backend}
}

// Register 将服务注册到 grpc.Server。
func (s *GRPCServer) Register(srv *grpc.Server) {
	srv.RegisterService(&serviceDesc, s)
}

// CreateSigningRequest 在本地完成组装校验后转发。
func (s *GRPCServer) CreateSigningRequest(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	envelope, err := signing.AssembleFields(platformv1.Fields(req))
	if err != nil {
		return nil, s.grpcError(err)
	}
	token, _ := credential.FromIncoming(ctx)
	rec, err := s.backend.Create(ctx, envelope, token)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return platformv1.EncodeSigningRequestResponse(platformv1.MsgCreateSigningRequestResponse, rec), nil
}

// GetSigningRequestDetails 转发详情查询。
func (s *GRPCServer) GetSigningRequestDetails(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	uuid := req.Get(req.Descriptor().Fields().ByName("uuid")).String()
	token, _ := credential.FromIncoming(ctx)
	rec, err := s.backend.Details(ctx, uuid, token)
	if err != nil {
		return nil, s.grpcError(err)
	}
	return platformv1.EncodeSigningRequestResponse(platformv1.MsgGetSigningRequestDetailsResponse, rec), nil
}

func (s *GRPCServer) grpcError(err error) error {
	if apiErr, ok := apierrors.FromError(err); ok {
		return status.Error(apierrors.GRPCStatus(apiErr.Code), apiErr.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func unaryHandler(
	method, requestName string,
	call func(platformServer, context.Context, *dynamicpb.Message) (*dynamicpb.Message, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := platformv1.New(requestName)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(platformServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(platformServer), ctx, req.(*dynamicpb.Message))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: platformv1.ServiceName,
	HandlerType: (*platformServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateSigningRequest",
			Handler: unaryHandler(platformv1.MethodCreateSigningRequest, platformv1.MsgCreateSigningRequestRequest,
				platformServer.CreateSigningRequest),
		},
		{
			MethodName: "GetSigningRequestDetails",
			Handler: unaryHandler(platformv1.MethodGetSigningRequestDetails, platformv1.MsgGetSigningRequestDetailsRequest,
				platformServer.GetSigningRequestDetails),
		},
	},
	Metadata: platformv1.FileName,
}
