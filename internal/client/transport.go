package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/aegis-sign/custody/internal/credential"
	"github.com/aegis-sign/custody/internal/infra/platformconn"
)

// Transport 发出一次远端调用；实现不得自行重试。
type Transport interface {
	Invoke(ctx context.Context, method string, req, resp proto.Message) error
	Close() error
}

// grpcTransport 通过缓存的 *grpc.ClientConn 调用。
type grpcTransport struct {
	mgr *platformconn.Manager
}

func (t *grpcTransport) Invoke(ctx context.Context, method string, req, resp proto.Message) error {
	conn, err := t.mgr.Conn(ctx)
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, method, req, resp)
}

func (t *grpcTransport) Close() error { return t.mgr.Close() }

// maxResponseBytes 限制 HTTP 响应体大小。
const maxResponseBytes = 4 << 20

// httpTransport 以 protojson 调用 {endpoint}/{lowerCamelMethod}。
type httpTransport struct {
	endpoint string
	client   *http.Client
}

func newHTTPTransport(endpoint string, client *http.Client) *httpTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &httpTransport{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

var (
	marshalJSON   = protojson.MarshalOptions{UseProtoNames: true}
	unmarshalJSON = protojson.UnmarshalOptions{DiscardUnknown: true}
)

// HTTPPath 将 "/pkg.Service/CreateSigningRequest" 转换为 "/createSigningRequest"。
func HTTPPath(method string) string {
	name := path.Base(method)
	if name == "" || name == "." || name == "/" {
		return "/"
	}
	return "/" + strings.ToLower(name[:1]) + name[1:]
}

func (t *httpTransport) Invoke(ctx context.Context, method string, req, resp proto.Message) error {
	body, err := marshalJSON.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+HTTPPath(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token, ok := credential.FromOutgoing(ctx); ok {
		httpReq.Header.Set(credential.HTTPHeader, token)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return &HTTPStatusError{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := unmarshalJSON.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
