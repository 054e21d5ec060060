// Package handle 管理进程内可撤销的本地 blob 句柄。句柄 URL 可直接作为
// <video src> 使用，撤销后对应字节立即不可读。
package handle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrEmptyBlob 表示拒绝为空 payload 签发句柄。
var ErrEmptyBlob = errors.New("handle: empty blob")

// Handle 是对已签发 blob 的引用。
type Handle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

// Blob 是句柄背后的内存表示。
type Blob struct {
	Key         string
	Data        []byte
	ContentType string
	IssuedAt    time.Time
}

// Registry 持有所有未撤销的句柄。
type Registry struct {
	baseURL string

	mu      sync.RWMutex
	entries map[string]Blob
}

// NewRegistry 以 baseURL 作为句柄 URL 前缀（例如 http://127.0.0.1:5000）。
func NewRegistry(baseURL string) *Registry {
	return &Registry{
		baseURL: strings.TrimRight(baseURL, "/"),
		entries: make(map[string]Blob),
	}
}

// Issue 为 blob 签发新句柄，内容类型由 mimetype 嗅探。
func (r *Registry) Issue(key string, blob []byte) (Handle, error) {
	if len(blob) == 0 {
		return Handle{}, fmt.Errorf("%w: key %s", ErrEmptyBlob, key)
	}
	id := uuid.NewString()
	entry := Blob{
		Key:         key,
		Data:        blob,
		ContentType: detectContentType(blob),
		IssuedAt:    time.Now().UTC(),
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()

	return Handle{ID: id, URL: r.baseURL + "/blob/" + id}, nil
}

// Revoke 释放句柄；仅第一次调用返回 true。
func (r *Registry) Revoke(h Handle) bool {
	if h.IsZero() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[h.ID]; !ok {
		return false
	}
	delete(r.entries, h.ID)
	return true
}

// Open 读取未撤销句柄的内容。
func (r *Registry) Open(id string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.entries[id]
	return blob, ok
}

// Len 返回当前存活句柄数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func detectContentType(blob []byte) string {
	mtype := mimetype.Detect(blob)
	// 无法识别的片段按二进制处理，避免浏览器当作文本渲染
	if mtype.Is("text/plain") {
		return "application/octet-stream"
	}
	return mtype.String()
}
