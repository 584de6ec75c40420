// Package client 对托管平台 API 发起类型化调用：每次调用恰好一次远端请求，结果以 Outcome 返回。
package client

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/aegis-sign/custody/internal/credential"
	"github.com/aegis-sign/custody/internal/infra/platformconn"
	"github.com/aegis-sign/custody/internal/signing"
	"github.com/aegis-sign/custody/internal/wire/platformv1"
	"github.com/aegis-sign/custody/pkg/apierrors"
)

const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// CredentialMode 决定默认 token 的附加位置。
type CredentialMode string

const (
	// CredentialPerCall 每次调用写入出站元数据（默认）。
	CredentialPerCall CredentialMode = "call"
	// CredentialChannel 由 gRPC 通道级 PerRPCCredentials 附加，仅适用于 gRPC 传输。
	CredentialChannel CredentialMode = "channel"
)

// Config 是构造 Client 所需的全部显式配置，不读取任何全局状态。
type Config struct {
	Transport      string
	Conn           platformconn.Config
	HTTPEndpoint   string
	HTTPTimeout    time.Duration
	Token          string
	CredentialMode CredentialMode
	RateLimit      float64
	RateBurst      int
}

// DefaultConfig 返回 gRPC + TLS 的默认配置。
func DefaultConfig() Config {
	return Config{
		Transport:      TransportGRPC,
		Conn:           platformconn.DefaultConfig(),
		HTTPEndpoint:   "https://api.mpcvault.com/v1",
		HTTPTimeout:    30 * time.Second,
		CredentialMode: CredentialPerCall,
	}
}

// Client 拥有连接/传输，可被多个 goroutine 并发使用。
type Client struct {
	cfg       Config
	transport Transport
	conn      *platformconn.Manager
	limiter   atomic.Pointer[rate.Limiter]
	metrics   *Metrics
	logger    *slog.Logger
	closed    atomic.Bool
}

// Option 自定义 Client。
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	dialer     platformconn.Dialer
	httpClient *http.Client
}

// WithLogger 注入 slog Logger。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer 指定 Prometheus 注册器，连接指标与调用指标共用。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithDialer 替换 gRPC 拨号器。
func WithDialer(d platformconn.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHTTPClient 替换 HTTP 传输使用的 *http.Client。
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New 校验配置并创建 Client；连接延迟到首次调用时建立。
func New(cfg Config, opts ...Option) (*Client, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg.CredentialMode == "" {
		cfg.CredentialMode = CredentialPerCall
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportGRPC
	}

	c := &Client{
		cfg:     cfg,
		metrics: NewMetrics(o.registerer),
		logger:  o.logger.With("component", "custody_client"),
	}
	c.SetRateLimit(cfg.RateLimit, cfg.RateBurst)

	switch cfg.Transport {
	case TransportGRPC:
		connCfg := cfg.Conn
		if cfg.CredentialMode == CredentialChannel {
			tok, err := credential.PerRPC(cfg.Token)
			if err != nil {
				return nil, err
			}
			if connCfg.Insecure {
				tok.AllowInsecure()
			}
			connCfg.PerRPC = tok
		}
		connOpts := []platformconn.Option{
			platformconn.WithLogger(c.logger),
			platformconn.WithMetrics(platformconn.NewMetrics(o.registerer)),
		}
		if o.dialer != nil {
			connOpts = append(connOpts, platformconn.WithDialer(o.dialer))
		}
		mgr, err := platformconn.New(connCfg, connOpts...)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeConfig, "invalid connection config", err)
		}
		c.conn = mgr
		c.transport = &grpcTransport{mgr: mgr}
	case TransportHTTP:
		if cfg.CredentialMode == CredentialChannel {
			return nil, apierrors.New(apierrors.CodeConfig, "channel credentials require the grpc transport")
		}
		if strings.TrimSpace(cfg.HTTPEndpoint) == "" {
			return nil, apierrors.New(apierrors.CodeConfig, "http endpoint is empty")
		}
		hc := o.httpClient
		if hc == nil {
			hc = &http.Client{Timeout: cfg.HTTPTimeout}
		}
		c.transport = newHTTPTransport(cfg.HTTPEndpoint, hc)
	default:
		return nil, apierrors.Newf(apierrors.CodeConfig, "unknown transport %q", cfg.Transport)
	}
	return c, nil
}

// SetRateLimit 热更新客户端限流；perSecond<=0 关闭限流。
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter.Store(nil)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter.Store(rate.NewLimiter(rate.Limit(perSecond), burst))
}

// CallOption 调整单次调用。
type CallOption func(*callOptions)

type callOptions struct {
	token   string
	timeout time.Duration
}

// WithCredential 为本次调用指定 token，覆盖配置中的默认值。
func WithCredential(token string) CallOption {
	return func(o *callOptions) { o.token = token }
}

// WithTimeout 为本次调用设置截止时间。
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Invoke 发出 CreateSigningRequest。
func (c *Client) Invoke(ctx context.Context, req signing.SigningRequest, opts ...CallOption) Outcome[*signing.Record] {
	if req.IsZero() {
		return failed[*signing.Record](apierrors.New(apierrors.CodeSchema, "signing request was not assembled"))
	}
	msg, err := platformv1.EncodeCreateSigningRequest(req)
	if err != nil {
		return failed[*signing.Record](apierrors.Wrap(apierrors.CodeSchema, "encode signing request", err))
	}
	resp := platformv1.New(platformv1.MsgCreateSigningRequestResponse)
	return call(ctx, c, platformv1.MethodCreateSigningRequest, msg, resp, decodeRecord, opts)
}

// GetSigningRequestDetails 查询已创建的签名请求。
func (c *Client) GetSigningRequestDetails(ctx context.Context, uuid string, opts ...CallOption) Outcome[*signing.Record] {
	if strings.TrimSpace(uuid) == "" {
		return failed[*signing.Record](apierrors.New(apierrors.CodeValidation, "uuid is required"))
	}
	msg := platformv1.EncodeGetSigningRequestDetails(uuid)
	resp := platformv1.New(platformv1.MsgGetSigningRequestDetailsResponse)
	return call(ctx, c, platformv1.MethodGetSigningRequestDetails, msg, resp, decodeRecord, opts)
}

// CreateSigningRequestFromFields 依次执行 builder → assembler → Invoke；token 为空时使用配置的默认凭证。
func (c *Client) CreateSigningRequestFromFields(ctx context.Context, fields map[string]any, token string) (*signing.Record, error) {
	req, err := signing.AssembleFields(fields)
	if err != nil {
		return nil, err
	}
	var opts []CallOption
	if token != "" {
		opts = append(opts, WithCredential(token))
	}
	return c.Invoke(ctx, req, opts...).Unwrap()
}

func decodeRecord(resp *dynamicpb.Message) (*signing.Record, *apierrors.Error) {
	rec, remote := platformv1.DecodeSigningRequestResponse(resp)
	if remote != nil {
		return nil, remoteBodyError(remote)
	}
	return rec, nil
}

// call 是所有远端方法共用的路径：附加凭证、限流、调用、错误映射、指标与日志。
func call[T any](
	ctx context.Context,
	c *Client,
	method string,
	req proto.Message,
	resp *dynamicpb.Message,
	decode func(*dynamicpb.Message) (T, *apierrors.Error),
	opts []CallOption,
) Outcome[T] {
	name := methodName(method)
	start := time.Now()
	finish := func(out Outcome[T]) Outcome[T] {
		elapsed := time.Since(start)
		c.metrics.observe(name, out.Err, elapsed)
		if out.Err != nil {
			c.logger.Warn("platform call failed",
				"method", name,
				"code", out.Err.Code,
				"remote_code", out.Err.RemoteCode,
				"elapsed_ms", elapsed.Milliseconds(),
				"err", out.Err.Error())
		} else {
			c.logger.Debug("platform call succeeded", "method", name, "elapsed_ms", elapsed.Milliseconds())
		}
		return out
	}

	if c.closed.Load() {
		return finish(failed[T](classify(errClientClosed, false)))
	}

	var co callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	callCtx, err := c.attachCredential(ctx, co.token)
	if err != nil {
		return finish(failed[T](classify(err, false)))
	}
	if co.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, co.timeout)
		defer cancel()
	}

	if limiter := c.limiter.Load(); limiter != nil {
		waitStart := time.Now()
		if err := limiter.Wait(callCtx); err != nil {
			return finish(failed[T](apierrors.Wrap(apierrors.CodeCancelled, "rate limiter wait cancelled", err)))
		}
		c.metrics.observeLimiter(name, time.Since(waitStart))
	}

	if err := c.transport.Invoke(callCtx, method, req, resp); err != nil {
		mapped := classify(err, callCtx.Err() != nil)
		if c.conn != nil && mapped.Code != apierrors.CodeCancelled {
			c.conn.ReportResult(mapped.Code == apierrors.CodeTransport)
		}
		return finish(failed[T](mapped))
	}
	if c.conn != nil {
		c.conn.ReportResult(false)
	}
	value, remote := decode(resp)
	if remote != nil {
		return finish(failed[T](remote))
	}
	return finish(succeeded(value))
}

// attachCredential 根据凭证模式派生调用上下文；调用方的 ctx 不会被修改。
func (c *Client) attachCredential(ctx context.Context, override string) (context.Context, error) {
	if c.cfg.CredentialMode == CredentialChannel {
		if override != "" {
			return nil, apierrors.New(apierrors.CodeConfig, "per-call credentials are not allowed with channel credentials")
		}
		return credential.Detach(ctx), nil
	}
	token := override
	if token == "" {
		token = c.cfg.Token
	}
	if strings.TrimSpace(token) == "" {
		return nil, apierrors.New(apierrors.CodeConfig, "no api token configured")
	}
	return credential.Attach(ctx, token)
}

func methodName(method string) string {
	if i := strings.LastIndex(method, "/"); i >= 0 {
		return method[i+1:]
	}
	return method
}

// Close 释放连接；之后的调用以 Transport("client closed") 失败。重复调用安全。
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.transport.Close()
}

// Snapshot 是 Client 状态的只读快照。
type Snapshot struct {
	Transport      string                 `json:"transport"`
	Closed         bool                   `json:"closed"`
	CredentialMode CredentialMode         `json:"credential_mode"`
	HasToken       bool                   `json:"has_default_token"`
	RateLimit      float64                `json:"rate_limit,omitempty"`
	RateBurst      int                    `json:"rate_burst,omitempty"`
	RateTokens     float64                `json:"rate_tokens_available,omitempty"`
	Conn           *platformconn.Snapshot `json:"connection,omitempty"`
	HTTPEndpoint   string                 `json:"http_endpoint,omitempty"`
}

// Snapshot 返回当前状态，不含任何凭证内容。
func (c *Client) Snapshot() Snapshot {
	snap := Snapshot{
		Transport:      c.cfg.Transport,
		Closed:         c.closed.Load(),
		CredentialMode: c.cfg.CredentialMode,
		HasToken:       strings.TrimSpace(c.cfg.Token) != "",
	}
	if limiter := c.limiter.Load(); limiter != nil {
		snap.RateLimit = float64(limiter.Limit())
		snap.RateBurst = limiter.Burst()
		snap.RateTokens = limiter.Tokens()
	}
	if c.conn != nil {
		cs := c.conn.Snapshot()
		snap.Conn = &cs
	}
	if c.cfg.Transport == TransportHTTP {
		snap.HTTPEndpoint = c.cfg.HTTPEndpoint
	}
	return snap
}
