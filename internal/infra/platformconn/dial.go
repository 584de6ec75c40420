package platformconn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mdlayher/vsock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// TransportCredentials 根据配置返回 TLS（系统根证书）或明文凭证。
func TransportCredentials(cfg Config) credentials.TransportCredentials {
	if cfg.Insecure {
		return insecure.NewCredentials()
	}
	return credentials.NewClientTLSFromCert(nil, cfg.ServerName)
}

// DialTarget 返回交给 gRPC 的目标串；passthrough 使 unix:/vsock: 端点原样到达 dialEndpoint。
func DialTarget(endpoint string) string {
	return "passthrough:///" + endpoint
}

// defaultDialer 使用 keepalive 与方法级超时建立阻塞连接。
func defaultDialer(ctx context.Context, target Target, cfg Config) (*grpc.ClientConn, error) {
	params := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: true,
	}
	dopts := []grpc.DialOption{
		grpc.WithTransportCredentials(TransportCredentials(cfg)),
		grpc.WithKeepaliveParams(params),
		grpc.WithContextDialer(dialEndpoint),
		grpc.WithBlock(),
	}
	if cfg.PerRPC != nil {
		dopts = append(dopts, grpc.WithPerRPCCredentials(cfg.PerRPC))
	}
	if sc := serviceConfig(cfg); sc != "" {
		dopts = append(dopts, grpc.WithDefaultServiceConfig(sc))
	}
	return grpc.DialContext(ctx, DialTarget(target.Endpoint), dopts...)
}

func serviceConfig(cfg Config) string {
	if cfg.CallTimeout <= 0 || cfg.ServiceName == "" {
		return ""
	}
	return fmt.Sprintf(`{"methodConfig":[{"name":[{"service":"%s"}],"timeout":"%s"}]}`,
		cfg.ServiceName, durationJSON(cfg.CallTimeout))
}

// durationJSON 输出 service config 要求的 "1.5s" 形式。
func durationJSON(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

func dialEndpoint(ctx context.Context, endpoint string) (net.Conn, error) {
	switch {
	case strings.HasPrefix(endpoint, "unix://"):
		return (&net.Dialer{}).DialContext(ctx, "unix", strings.TrimPrefix(endpoint, "unix://"))
	case strings.HasPrefix(endpoint, "unix:"):
		return (&net.Dialer{}).DialContext(ctx, "unix", strings.TrimPrefix(endpoint, "unix:"))
	case strings.HasPrefix(endpoint, "vsock://"):
		return dialVsock(ctx, strings.TrimPrefix(endpoint, "vsock://"))
	case strings.HasPrefix(endpoint, "vsock:"):
		return dialVsock(ctx, strings.TrimPrefix(endpoint, "vsock:"))
	default:
		return (&net.Dialer{}).DialContext(ctx, "tcp", endpoint)
	}
}

// ParseVsock 解析 "cid:port"。
func ParseVsock(target string) (cid, port uint32, err error) {
	parts := strings.Split(target, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid vsock endpoint: %s", target)
	}
	c, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vsock cid: %w", err)
	}
	p, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vsock port: %w", err)
	}
	return uint32(c), uint32(p), nil
}

func dialVsock(ctx context.Context, target string) (net.Conn, error) {
	cid, port, err := ParseVsock(target)
	if err != nil {
		return nil, err
	}
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, dialErr := vsock.Dial(cid, port, nil)
		resultCh <- dialResult{conn: conn, err: dialErr}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if res := <-resultCh; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.conn, res.err
	}
}
