package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vidcache/vidcache/internal/blobstore"
	"github.com/vidcache/vidcache/internal/config"
)

// NewStore 根据 StoreBackend 构建共享的持久化存储。这里只建立客户端，
// 连通性在每次 Open 时检查，后端暂时不可用不会阻止服务启动。
func NewStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	names := blobstore.Names{Store: cfg.Store.Name, Collection: cfg.Store.Collection}

	switch cfg.Store.Backend {
	case config.BackendFS:
		return blobstore.NewFSStore(cfg.Store.StoragePath, names)
	case config.BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store, err := blobstore.NewRedisStore(client, names)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil
	case config.BackendMinIO:
		return blobstore.NewMinIOStore(blobstore.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		}, names)
	case config.BackendPostgres:
		return blobstore.NewPostgresStore(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, names)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

// CloseStore 释放持有外部连接的后端。
func CloseStore(store blobstore.Store) error {
	if closer, ok := store.(blobstore.Closer); ok {
		return closer.Close()
	}
	return nil
}
