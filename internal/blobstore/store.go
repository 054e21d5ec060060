// Package blobstore 提供视频 blob 的持久化适配层：一个命名库 + 一个命名集合，
// 以源 URL 原样作为键，值为完整的视频字节。
package blobstore

import (
	"context"
	"errors"
)

// SchemaVersion 是集合布局版本。Open 只会在缺失时创建集合，不会删除或迁移已有条目；
// 遇到更高版本视为不可用。
const SchemaVersion = 1

var (
	// ErrNotFound 表示键不存在。
	ErrNotFound = errors.New("blob entry not found")
	// ErrStoreUnavailable 表示后端拒绝访问、不可达或版本不兼容。
	ErrStoreUnavailable = errors.New("blob store unavailable")
)

// Store 是进程级共享的持久化库，所有播放器实例通过它竞争访问。
type Store interface {
	// Open 幂等地确保集合存在并返回可用句柄，失败时返回包装了 ErrStoreUnavailable 的错误。
	Open(ctx context.Context) (Collection, error)
	// Backend 返回后端名称，用于日志与指标。
	Backend() string
}

// Collection 是 Open 之后的单个集合句柄。
type Collection interface {
	// Get 精确匹配 key，不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) ([]byte, error)
	// Put 无条件写入或覆盖，最后写入者生效。
	Put(ctx context.Context, key string, blob []byte) error
}

// Closer 由持有外部连接的后端实现（redis/postgres）。
type Closer interface {
	Close() error
}

// Names 描述库名与集合名，所有后端共享。
type Names struct {
	Store      string
	Collection string
}

func (n Names) validate() error {
	if n.Store == "" {
		return errors.New("store name required")
	}
	if n.Collection == "" {
		return errors.New("collection name required")
	}
	return nil
}
