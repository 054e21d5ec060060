package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的持久化后端。
const (
	BackendFS       = "fs"
	BackendRedis    = "redis"
	BackendMinIO    = "minio"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// GlobalConfig 描述服务级运行参数，所有播放器实例共享同一份。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	PublicBaseURL string `mapstructure:"PublicBaseURL"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// StoreConfig 决定视频 blob 的持久化位置；StoreName/Collection 对应一个库 + 一个集合。
type StoreConfig struct {
	Backend     string `mapstructure:"StoreBackend"`
	Name        string `mapstructure:"StoreName"`
	Collection  string `mapstructure:"Collection"`
	StoragePath string `mapstructure:"StoragePath"`
}

// FetchConfig 控制后台回源填充。
type FetchConfig struct {
	OriginBaseURL string   `mapstructure:"OriginBaseURL"`
	FetchTimeout  Duration `mapstructure:"FetchTimeout"`
	FillTimeout   Duration `mapstructure:"FillTimeout"`
	MaxBlobSize   int64    `mapstructure:"MaxBlobSize"`
}

// RedisConfig 仅在 StoreBackend = "redis" 时生效。
type RedisConfig struct {
	Addr     string `mapstructure:"Addr"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`
}

// MinIOConfig 仅在 StoreBackend = "minio" 时生效。
type MinIOConfig struct {
	Endpoint  string `mapstructure:"Endpoint"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	Bucket    string `mapstructure:"Bucket"`
	UseSSL    bool   `mapstructure:"UseSSL"`
}

// PostgresConfig 仅在 StoreBackend = "postgres" 时生效。
type PostgresConfig struct {
	DSN      string `mapstructure:"DSN"`
	MaxConns int32  `mapstructure:"MaxConns"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Store    StoreConfig    `mapstructure:",squash"`
	Fetch    FetchConfig    `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:"Redis"`
	MinIO    MinIOConfig    `mapstructure:"MinIO"`
	Postgres PostgresConfig `mapstructure:"Postgres"`
}

// HandleBaseURL 返回本地句柄 URL 的前缀，未配置时退回 http://127.0.0.1:<port>。
func (c *Config) HandleBaseURL() string {
	if base := strings.TrimRight(strings.TrimSpace(c.Global.PublicBaseURL), "/"); base != "" {
		return base
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Global.ListenPort)
}
