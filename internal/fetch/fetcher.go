// Package fetch 负责后台填充时的一次性源站下载：单次 GET、非 2xx 视为失败、
// 不重试、不处理 Range。相同 URL 的并发下载通过 singleflight 合并。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/vidcache/vidcache/internal/metrics"
)

var (
	// ErrFetchFailed 覆盖所有下载失败：网络错误、非 2xx、超出大小限制。
	ErrFetchFailed = errors.New("fetch failed")
)

// Options 描述 Client 的依赖。
type Options struct {
	HTTPClient *http.Client
	// OriginBaseURL 用于解析 /v/a.mp4 这类相对地址，可为空。
	OriginBaseURL string
	MaxBlobSize   int64
	Metrics       *metrics.Metrics
}

// Client 执行源站下载。
type Client struct {
	http    *http.Client
	base    *url.URL
	maxSize int64
	metrics *metrics.Metrics
	group   singleflight.Group
}

// New 构造 Client；OriginBaseURL 非空时必须是绝对 http(s) 地址。
func New(opts Options) (*Client, error) {
	client := &Client{
		http:    opts.HTTPClient,
		maxSize: opts.MaxBlobSize,
		metrics: opts.Metrics,
	}
	if client.http == nil {
		client.http = NewHTTPClient(nil)
	}
	if base := strings.TrimSpace(opts.OriginBaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid origin base url %q", opts.OriginBaseURL)
		}
		client.base = parsed
	}
	return client, nil
}

// Fetch 下载 rawURL 的完整内容。相同 rawURL 的并发调用共享同一次 GET 的结果。
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := c.Resolve(rawURL)
	if err != nil {
		return nil, err
	}

	result, err, shared := c.group.Do(target, func() (any, error) {
		return c.download(ctx, target)
	})
	c.metrics.ObserveSingleflight(shared)
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Resolve 返回实际请求的绝对地址。
func (c *Client) Resolve(rawURL string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %v", ErrFetchFailed, rawURL, err)
	}
	if ref.IsAbs() {
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrFetchFailed, ref.Scheme)
		}
		return ref.String(), nil
	}
	if c.base == nil {
		return "", fmt.Errorf("%w: relative url %q without origin base", ErrFetchFailed, rawURL)
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *Client) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// 丢弃少量响应体以便连接复用
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fmt.Errorf("%w: upstream status %d", ErrFetchFailed, resp.StatusCode)
	}
	if c.maxSize > 0 && resp.ContentLength > c.maxSize {
		return nil, fmt.Errorf("%w: content length %d exceeds limit %d", ErrFetchFailed, resp.ContentLength, c.maxSize)
	}

	reader := io.Reader(resp.Body)
	if c.maxSize > 0 {
		reader = io.LimitReader(resp.Body, c.maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}
	if c.maxSize > 0 && int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("%w: body exceeds limit %d", ErrFetchFailed, c.maxSize)
	}
	if len(body) == 0 {
		// 空内容无法签发句柄，不写入存储，下次挂载仍按未命中重新回源
		return nil, fmt.Errorf("%w: empty body", ErrFetchFailed)
	}
	return body, nil
}
