package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var supportedBackends = map[string]struct{}{
	BackendFS:       {},
	BackendRedis:    {},
	BackendMinIO:    {},
	BackendPostgres: {},
	BackendMemory:   {},
}

const supportedBackendList = "fs|redis|minio|postgres|memory"

// 集合名会被直接用作目录名 / 表名，限制为安全标识符。
var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.PublicBaseURL != "" {
		if err := validateHTTPURL(g.PublicBaseURL); err != nil {
			return fmt.Errorf("Global.PublicBaseURL: %w", err)
		}
	}

	s := c.Store
	if _, ok := supportedBackends[s.Backend]; !ok {
		return newFieldError("Store.StoreBackend", "仅支持 "+supportedBackendList)
	}
	if strings.TrimSpace(s.Name) == "" {
		return newFieldError("Store.StoreName", "不能为空")
	}
	if !collectionPattern.MatchString(s.Collection) {
		return newFieldError("Store.Collection", "仅允许字母、数字与下划线，且不能以数字开头")
	}

	switch s.Backend {
	case BackendFS:
		if s.StoragePath == "" {
			return newFieldError("Store.StoragePath", "不能为空")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return newFieldError("Redis.Addr", "不能为空")
		}
	case BackendMinIO:
		if c.MinIO.Endpoint == "" {
			return newFieldError("MinIO.Endpoint", "不能为空")
		}
		if c.MinIO.Bucket == "" {
			return newFieldError("MinIO.Bucket", "不能为空")
		}
		if (c.MinIO.AccessKey == "") != (c.MinIO.SecretKey == "") {
			return newFieldError("MinIO.AccessKey/SecretKey", "必须同时提供或同时留空")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return newFieldError("Postgres.DSN", "不能为空")
		}
		if c.Postgres.MaxConns < 0 {
			return newFieldError("Postgres.MaxConns", "不能为负数")
		}
	}

	f := c.Fetch
	if f.OriginBaseURL != "" {
		if err := validateHTTPURL(f.OriginBaseURL); err != nil {
			return fmt.Errorf("Fetch.OriginBaseURL: %w", err)
		}
	}
	if f.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Fetch.FetchTimeout", "必须大于 0")
	}
	if f.FillTimeout.DurationValue() <= 0 {
		return newFieldError("Fetch.FillTimeout", "必须大于 0")
	}
	if f.MaxBlobSize <= 0 {
		return newFieldError("Fetch.MaxBlobSize", "必须大于 0")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}

// BackendSummary 输出 `fs:VideoCache/videos` 形式的摘要，供启动日志使用。
func (c *Config) BackendSummary() string {
	return fmt.Sprintf("%s:%s/%s", c.Store.Backend, c.Store.Name, c.Store.Collection)
}
