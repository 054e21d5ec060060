package fetch

import (
	"net"
	"net/http"
	"time"

	"github.com/vidcache/vidcache/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 30 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewHTTPClient 返回源站下载使用的 http.Client。视频体积较大，
// 超时取 FetchTimeout 而不是通用的 30s。
func NewHTTPClient(cfg *config.Config) *http.Client {
	timeout := config.DefaultFetchTimeout
	if cfg != nil && cfg.Fetch.FetchTimeout.DurationValue() > 0 {
		timeout = cfg.Fetch.FetchTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}
