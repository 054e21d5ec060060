package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 原前端组件使用的库名与集合名，作为默认值保留。
const (
	DefaultStoreName  = "VideoCache"
	DefaultCollection = "videos"
)

// 回源相关默认值。
const (
	DefaultFetchTimeout = 5 * time.Minute
	DefaultFillTimeout  = 10 * time.Minute
	DefaultMaxBlobSize  = int64(512 * 1024 * 1024)
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Backend == BackendFS {
		absStorage, err := filepath.Abs(cfg.Store.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Store.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoreBackend", BackendFS)
	v.SetDefault("StoreName", DefaultStoreName)
	v.SetDefault("Collection", DefaultCollection)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("FetchTimeout", "5m")
	v.SetDefault("FillTimeout", "10m")
	v.SetDefault("MaxBlobSize", DefaultMaxBlobSize)
	v.SetDefault("Redis.Addr", "127.0.0.1:6379")
	v.SetDefault("Postgres.MaxConns", 10)
}

func applyDefaults(cfg *Config) {
	g := &cfg.Global
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}

	s := &cfg.Store
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = BackendFS
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = DefaultStoreName
	}
	if strings.TrimSpace(s.Collection) == "" {
		s.Collection = DefaultCollection
	}

	f := &cfg.Fetch
	if f.FetchTimeout.DurationValue() == 0 {
		f.FetchTimeout = Duration(DefaultFetchTimeout)
	}
	if f.FillTimeout.DurationValue() == 0 {
		f.FillTimeout = Duration(DefaultFillTimeout)
	}

	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = strings.ToLower(s.Name)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
