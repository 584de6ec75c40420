// Package credential 负责将 API token 附加到调用上下文，token 不会被记录或持久化。
package credential

import (
	"context"
	"strings"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	"github.com/aegis-sign/custody/pkg/apierrors"
)

// HeaderKey 是服务端识别的凭证元数据键（gRPC 元数据键均为小写）。
const HeaderKey = "x-mtoken"

// HTTPHeader 是 HTTP 传输下的同名请求头。
const HTTPHeader = "X-Mtoken"

const redacted = "[REDACTED]"

func checkToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return apierrors.New(apierrors.CodeConfig, "api token is empty")
	}
	return nil
}

// Attach 派生携带 x-mtoken 的调用上下文，不修改请求负载。上下文中已有的 x-mtoken 会被替换，出站元数据中始终只有一个值。
func Attach(ctx context.Context, token string) (context.Context, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}
	md := outgoingCopy(ctx)
	md.Set(HeaderKey, token)
	return metadata.NewOutgoingContext(ctx, md), nil
}

// Detach 派生不含 x-mtoken 的调用上下文，供通道级凭证模式使用。
func Detach(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok || len(md.Get(HeaderKey)) == 0 {
		return ctx
	}
	md = md.Copy()
	md.Delete(HeaderKey)
	return metadata.NewOutgoingContext(ctx, md)
}

func outgoingCopy(ctx context.Context) metadata.MD {
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		return md.Copy()
	}
	return metadata.MD{}
}

// FromOutgoing 取回上下文中最后一次附加的 token，供非 gRPC 传输转写请求头。
func FromOutgoing(ctx context.Context) (string, bool) {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(HeaderKey)
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// FromIncoming 读取入站请求携带的 token，供本地中继透传。
func FromIncoming(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(HeaderKey)
	if len(vals) == 0 || strings.TrimSpace(vals[len(vals)-1]) == "" {
		return "", false
	}
	return vals[len(vals)-1], true
}

// Token 是通道级凭证，实现 credentials.PerRPCCredentials。
type Token struct {
	value      string
	requireTLS bool
}

var _ credentials.PerRPCCredentials = (*Token)(nil)

// PerRPC 创建通道级凭证；默认要求传输层安全。
func PerRPC(token string) (*Token, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}
	return &Token{value: token, requireTLS: true}, nil
}

// AllowInsecure 允许在明文连接上发送凭证，仅用于本地代理与测试。
func (t *Token) AllowInsecure() *Token {
	t.requireTLS = false
	return t
}

func (t *Token) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{HeaderKey: t.value}, nil
}

func (t *Token) RequireTransportSecurity() bool { return t.requireTLS }

// String 永远不输出 token 明文。
func (t *Token) String() string { return redacted }

// GoString 防止 %#v 泄露 token。
func (t *Token) GoString() string { return "credential.Token{" + redacted + "}" }
