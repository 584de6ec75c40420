package client

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/aegis-sign/custody/internal/infra/platformconn"
	"github.com/aegis-sign/custody/internal/wire/platformv1"
)

const bufSize = 1024 * 1024

type recordedCall struct {
	method string
	tokens []string
	req    *dynamicpb.Message
}

type handlerFunc func(ctx context.Context, method string, req *dynamicpb.Message) (*dynamicpb.Message, error)

// fakePlatform 以 UnknownServiceHandler 接收任意方法，按描述解码请求并记录每次调用。
type fakePlatform struct {
	handle handlerFunc

	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakePlatform) serve(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	var reqName string
	switch method {
	case platformv1.MethodCreateSigningRequest:
		reqName = platformv1.MsgCreateSigningRequestRequest
	case platformv1.MethodGetSigningRequestDetails:
		reqName = platformv1.MsgGetSigningRequestDetailsRequest
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	req := platformv1.New(reqName)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	md, _ := metadata.FromIncomingContext(stream.Context())
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: method, tokens: md.Get("x-mtoken"), req: req})
	f.mu.Unlock()

	resp, err := f.handle(stream.Context(), method, req)
	if err != nil {
		return err
	}
	return stream.SendMsg(resp)
}

func (f *fakePlatform) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func setupBufConn(t *testing.T, handle handlerFunc) (*fakePlatform, *bufconn.Listener) {
	t.Helper()
	fake := &fakePlatform{handle: handle}
	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(fake.serve))
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	return fake, lis
}

func bufDialer(lis *bufconn.Listener) platformconn.Dialer {
	return func(ctx context.Context, target platformconn.Target, cfg platformconn.Config) (*grpc.ClientConn, error) {
		opts := []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		}
		if cfg.PerRPC != nil {
			opts = append(opts, grpc.WithPerRPCCredentials(cfg.PerRPC))
		}
		return grpc.DialContext(ctx, target.Endpoint, opts...)
	}
}

func newTestClient(t *testing.T, lis *bufconn.Listener, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Conn.Endpoint = "buf"
	cfg.Conn.Insecure = true
	cfg.Token = "test-token"
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, WithRegisterer(prometheus.NewRegistry()), WithDialer(bufDialer(lis)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// recordResponse 构造带 signing_request 的成功响应。
func recordResponse(method, uuid, notes string) *dynamicpb.Message {
	name := platformv1.MsgCreateSigningRequestResponse
	if method == platformv1.MethodGetSigningRequestDetails {
		name = platformv1.MsgGetSigningRequestDetailsResponse
	}
	resp := platformv1.New(name)
	sr := resp.Mutable(resp.Descriptor().Fields().ByName("signing_request")).Message()
	sr.Set(sr.Descriptor().Fields().ByName("uuid"), protoreflect.ValueOfString(uuid))
	sr.Set(sr.Descriptor().Fields().ByName("status"), protoreflect.ValueOfString("PENDING"))
	if notes != "" {
		n := sr.Mutable(sr.Descriptor().Fields().ByName("notes")).Message()
		n.Set(n.Descriptor().Fields().ByName("value"), protoreflect.ValueOfString(notes))
	}
	return resp
}

func errorResponse(code int32, message string) *dynamicpb.Message {
	resp := platformv1.New(platformv1.MsgCreateSigningRequestResponse)
	e := resp.Mutable(resp.Descriptor().Fields().ByName("error")).Message()
	e.Set(e.Descriptor().Fields().ByName("code"), protoreflect.ValueOfInt32(code))
	e.Set(e.Descriptor().Fields().ByName("message"), protoreflect.ValueOfString(message))
	return resp
}
