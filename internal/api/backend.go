package relayapi

import (
	"context"
	"errors"
	"time"

	"github.com/aegis-sign/custody/internal/client"
	"github.com/aegis-sign/custody/internal/signing"
)

// Backend 定义中继层接口，HTTP/gRPC handler 通过它把请求转发到托管平台。
// token 为空时使用客户端配置的默认凭证。
type Backend interface {
	Create(ctx context.Context, req signing.SigningRequest, token string) (*signing.Record, error)
	Details(ctx context.Context, uuid, token string) (*signing.Record, error)
}

// 默认 RPC 超时时间，覆盖 handler 级别 deadline。
const defaultCallTimeout = 30 * time.Second

// ClientBackend 通过共享的 client.Client 转发请求，连接在所有请求间复用。
type ClientBackend struct {
	client      *client.Client
	callTimeout time.Duration
}

// ClientBackendOption 定义可选参数。
type ClientBackendOption func(*ClientBackend)

// WithCallTimeout 自定义单次调用超时时间。
func WithCallTimeout(d time.Duration) ClientBackendOption {
	return func(b *ClientBackend) {
		if d > 0 {
			b.callTimeout = d
		}
	}
}

// NewClientBackend 构造依赖 client.Client 的 Backend 实现。
func NewClientBackend(c *client.Client, opts ...ClientBackendOption) (*ClientBackend, error) {
	if c == nil {
		return nil, errors.New("custody client is required")
	}
	backend := &ClientBackend{client: c, callTimeout: defaultCallTimeout}
	for _, opt := range opts {
		opt(backend)
	}
	return backend, nil
}

func (b *ClientBackend) callOptions(token string) []client.CallOption {
	opts := []client.CallOption{client.WithTimeout(b.callTimeout)}
	if token != "" {
		opts = append(opts, client.WithCredential(token))
	}
	return opts
}

// Create 发出 CreateSigningRequest。
func (b *ClientBackend) Create(ctx context.Context, req signing.SigningRequest, token string) (*signing.Record, error) {
	return b.client.Invoke(ctx, req, b.callOptions(token)...).Unwrap()
}

// Details 查询签名请求详情。
func (b *ClientBackend) Details(ctx context.Context, uuid, token string) (*signing.Record, error) {
	return b.client.GetSigningRequestDetails(ctx, uuid, b.callOptions(token)...).Unwrap()
}

// Snapshot 返回客户端状态，供 /debug/client 使用。
func (b *ClientBackend) Snapshot() client.Snapshot {
	return b.client.Snapshot()
}
