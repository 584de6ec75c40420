package platformconn

import (
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/credentials"
)

// Config 控制到托管平台 gRPC 端点的单条长连接。
type Config struct {
	Endpoint            string
	Insecure            bool
	ServerName          string
	DialTimeout         time.Duration
	CallTimeout         time.Duration
	KeepaliveTime       time.Duration
	KeepaliveTimeout    time.Duration
	HealthCheckInterval time.Duration
	ServiceName         string
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	Backoff             BackoffConfig

	// PerRPC 非空时在通道级附加凭证，每次调用无需再写入元数据。
	PerRPC credentials.PerRPCCredentials
}

// BackoffConfig 决定连接进入 TransientFailure 后重置拨号退避前的等待。
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// DefaultConfig 返回面向公网 TLS 端点的默认值；健康探测默认关闭。
func DefaultConfig() Config {
	return Config{
		Endpoint:         "api.mpcvault.com:443",
		DialTimeout:      5 * time.Second,
		CallTimeout:      30 * time.Second,
		KeepaliveTime:    30 * time.Second,
		KeepaliveTimeout: 10 * time.Second,
		ServiceName:      "mpcvault.platform.v1.PlatformAPI",
		BreakerThreshold: 3,
		BreakerCooldown:  time.Second,
		Backoff: BackoffConfig{
			Initial: 100 * time.Millisecond,
			Max:     5 * time.Second,
			Jitter:  0.2,
		},
	}
}

// LoadConfigFromEnv 在默认值之上应用 CUSTODY_CONN_* 环境变量。
func LoadConfigFromEnv() Config {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv 将 CUSTODY_CONN_* 覆盖到已有配置上，非法值被忽略。
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("CUSTODY_CONN_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v, ok := readBool("CUSTODY_CONN_INSECURE"); ok {
		cfg.Insecure = v
	}
	if v := os.Getenv("CUSTODY_CONN_SERVER_NAME"); v != "" {
		cfg.ServerName = v
	}
	if d := readDuration("CUSTODY_CONN_DIAL_TIMEOUT"); d > 0 {
		cfg.DialTimeout = d
	}
	if d := readDuration("CUSTODY_CONN_CALL_TIMEOUT"); d > 0 {
		cfg.CallTimeout = d
	}
	if d := readDuration("CUSTODY_CONN_KEEPALIVE_TIME"); d > 0 {
		cfg.KeepaliveTime = d
	}
	if d := readDuration("CUSTODY_CONN_KEEPALIVE_TIMEOUT"); d > 0 {
		cfg.KeepaliveTimeout = d
	}
	if d := readDuration("CUSTODY_CONN_HEALTH_INTERVAL"); d > 0 {
		cfg.HealthCheckInterval = d
	}
	if v := readInt("CUSTODY_CONN_BREAKER_THRESHOLD"); v > 0 {
		cfg.BreakerThreshold = v
	}
	if d := readDuration("CUSTODY_CONN_BREAKER_COOLDOWN"); d > 0 {
		cfg.BreakerCooldown = d
	}
	if d := readDuration("CUSTODY_CONN_RETRY_INITIAL"); d > 0 {
		cfg.Backoff.Initial = d
	}
	if d := readDuration("CUSTODY_CONN_RETRY_MAX"); d > 0 {
		cfg.Backoff.Max = d
	}
	if j := readFloat("CUSTODY_CONN_RETRY_JITTER"); j >= 0 {
		cfg.Backoff.Jitter = j
	}
	if service := os.Getenv("CUSTODY_CONN_SERVICE"); service != "" {
		cfg.ServiceName = service
	}
	if cfg.Backoff.Max < cfg.Backoff.Initial {
		cfg.Backoff.Max = cfg.Backoff.Initial
	}
	return cfg
}

func readInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func readBool(key string) (bool, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false, false
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return v, true
}

func readDuration(key string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return d
}

func readFloat(key string) float64 {
	value := os.Getenv(key)
	if value == "" {
		return -1
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return -1
	}
	return v
}
