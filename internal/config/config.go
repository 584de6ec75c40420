// Package config 加载 signing-relay 的 YAML 配置，并应用 CUSTODY_* 环境变量覆盖。
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegis-sign/custody/internal/client"
	"github.com/aegis-sign/custody/internal/infra/platformconn"
	"github.com/aegis-sign/custody/pkg/apierrors"
)

// Config 是进程级配置；token 明文只从环境变量或 token_file 读取，不出现在 YAML 中。
type Config struct {
	Transport      string      `yaml:"transport"`
	CredentialMode string      `yaml:"credential_mode"`
	TokenFile      string      `yaml:"token_file"`
	RateLimit      float64     `yaml:"rate_limit"`
	RateBurst      int         `yaml:"rate_burst"`
	GRPC           GRPCConfig  `yaml:"grpc"`
	HTTP           HTTPConfig  `yaml:"http"`
	Relay          RelayConfig `yaml:"relay"`

	token string
}

// GRPCConfig 对应 platformconn.Config 的可配置部分。
type GRPCConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Insecure         bool          `yaml:"insecure"`
	ServerName       string        `yaml:"server_name"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	KeepaliveTime    time.Duration `yaml:"keepalive_time"`
	KeepaliveTimeout time.Duration `yaml:"keepalive_timeout"`
	HealthInterval   time.Duration `yaml:"health_interval"`
}

// HTTPConfig 是 HTTP/JSON 传输的端点。
type HTTPConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RelayConfig 控制本地 HTTP 中继服务。
type RelayConfig struct {
	Listen          string        `yaml:"listen"`
	GRPCListen      string        `yaml:"grpc_listen"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Default 返回与 client.DefaultConfig 一致的默认值。
func Default() Config {
	cc := client.DefaultConfig()
	return Config{
		Transport:      cc.Transport,
		CredentialMode: string(cc.CredentialMode),
		GRPC: GRPCConfig{
			Endpoint:         cc.Conn.Endpoint,
			DialTimeout:      cc.Conn.DialTimeout,
			CallTimeout:      cc.Conn.CallTimeout,
			KeepaliveTime:    cc.Conn.KeepaliveTime,
			KeepaliveTimeout: cc.Conn.KeepaliveTimeout,
			HealthInterval:   cc.Conn.HealthCheckInterval,
		},
		HTTP: HTTPConfig{
			Endpoint: cc.HTTPEndpoint,
			Timeout:  cc.HTTPTimeout,
		},
		Relay: RelayConfig{
			Listen:          ":8080",
			GRPCListen:      ":9090",
			LogLevel:        "info",
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
	}
}

// Load 读取 path（为空则只用默认值），再依次应用环境变量与 token 解析。
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, apierrors.Wrap(apierrors.CodeConfig, "read config file", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.resolveToken(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return apierrors.Wrap(apierrors.CodeConfig, "parse config file: "+err.Error(), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Transport, "CUSTODY_TRANSPORT")
	setString(&c.CredentialMode, "CUSTODY_CREDENTIAL_MODE")
	setString(&c.TokenFile, "CUSTODY_TOKEN_FILE")
	setString(&c.HTTP.Endpoint, "CUSTODY_HTTP_ENDPOINT")
	setString(&c.Relay.Listen, "CUSTODY_RELAY_ADDR")
	setString(&c.Relay.GRPCListen, "CUSTODY_RELAY_GRPC_ADDR")
	setString(&c.Relay.LogLevel, "CUSTODY_LOG_LEVEL")
	if v, err := strconv.ParseFloat(os.Getenv("CUSTODY_RATE_LIMIT"), 64); err == nil {
		c.RateLimit = v
	}
	if v, err := strconv.Atoi(os.Getenv("CUSTODY_RATE_BURST")); err == nil {
		c.RateBurst = v
	}
	if d, err := time.ParseDuration(os.Getenv("CUSTODY_HTTP_TIMEOUT")); err == nil && d > 0 {
		c.HTTP.Timeout = d
	}

	conn := platformconn.ApplyEnv(c.connConfig())
	c.GRPC = GRPCConfig{
		Endpoint:         conn.Endpoint,
		Insecure:         conn.Insecure,
		ServerName:       conn.ServerName,
		DialTimeout:      conn.DialTimeout,
		CallTimeout:      conn.CallTimeout,
		KeepaliveTime:    conn.KeepaliveTime,
		KeepaliveTimeout: conn.KeepaliveTimeout,
		HealthInterval:   conn.HealthCheckInterval,
	}
}

// normalize 为被显式置零的时长与上限恢复默认值。
func (c *Config) normalize() {
	def := Default()
	if c.Relay.ShutdownTimeout <= 0 {
		c.Relay.ShutdownTimeout = def.Relay.ShutdownTimeout
	}
	if c.Relay.MaxBodyBytes <= 0 {
		c.Relay.MaxBodyBytes = def.Relay.MaxBodyBytes
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// resolveToken 优先使用 CUSTODY_API_TOKEN，其次 token_file。
func (c *Config) resolveToken() error {
	if v := strings.TrimSpace(os.Getenv("CUSTODY_API_TOKEN")); v != "" {
		c.token = v
		return nil
	}
	if c.TokenFile == "" {
		return nil
	}
	raw, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeConfig, "read token file", err)
	}
	c.token = strings.TrimSpace(string(raw))
	if c.token == "" {
		return apierrors.New(apierrors.CodeConfig, "token file is empty")
	}
	return nil
}

// Validate 检查枚举取值与必填项。
func (c Config) Validate() error {
	switch c.Transport {
	case client.TransportGRPC:
		if c.GRPC.Endpoint == "" {
			return apierrors.New(apierrors.CodeConfig, "grpc.endpoint is required")
		}
	case client.TransportHTTP:
		if c.HTTP.Endpoint == "" {
			return apierrors.New(apierrors.CodeConfig, "http.endpoint is required")
		}
	default:
		return apierrors.Newf(apierrors.CodeConfig, "transport must be grpc or http, got %q", c.Transport)
	}
	switch client.CredentialMode(c.CredentialMode) {
	case client.CredentialPerCall, client.CredentialChannel:
	default:
		return apierrors.Newf(apierrors.CodeConfig, "credential_mode must be call or channel, got %q", c.CredentialMode)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return apierrors.New(apierrors.CodeConfig, "rate_limit and rate_burst must not be negative")
	}
	return nil
}

// HasToken 报告是否解析到默认 token。
func (c Config) HasToken() bool { return c.token != "" }

func (c Config) connConfig() platformconn.Config {
	conn := platformconn.DefaultConfig()
	conn.Endpoint = c.GRPC.Endpoint
	conn.Insecure = c.GRPC.Insecure
	conn.ServerName = c.GRPC.ServerName
	conn.DialTimeout = c.GRPC.DialTimeout
	conn.CallTimeout = c.GRPC.CallTimeout
	conn.KeepaliveTime = c.GRPC.KeepaliveTime
	conn.KeepaliveTimeout = c.GRPC.KeepaliveTimeout
	conn.HealthCheckInterval = c.GRPC.HealthInterval
	return conn
}

// ClientConfig 转换为 client.Config。
func (c Config) ClientConfig() client.Config {
	return client.Config{
		Transport:      c.Transport,
		Conn:           c.connConfig(),
		HTTPEndpoint:   c.HTTP.Endpoint,
		HTTPTimeout:    c.HTTP.Timeout,
		Token:          c.token,
		CredentialMode: client.CredentialMode(c.CredentialMode),
		RateLimit:      c.RateLimit,
		RateBurst:      c.RateBurst,
	}
}
