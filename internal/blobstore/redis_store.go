package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore 把每个条目存为一个 string 值，键为 <Store>:<Collection>:<url>。
// 各集合的 schema 版本记录在 hash <Store>:schema 中。
type RedisStore struct {
	client *redis.Client
	names  Names
}

// NewRedisStore 基于已有 client 构建存储，不会主动发起连接。
func NewRedisStore(client *redis.Client, names Names) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if err := names.validate(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, names: names}, nil
}

func (s *RedisStore) Backend() string { return "redis" }

// Open 检查连通性并在集合缺失时登记 schema 版本。
func (s *RedisStore) Open(ctx context.Context) (Collection, error) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %v", ErrStoreUnavailable, err)
	}

	schemaKey := s.schemaKey()
	if err := s.client.HSetNX(ctx, schemaKey, s.names.Collection, SchemaVersion).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis hsetnx: %v", ErrStoreUnavailable, err)
	}
	raw, err := s.client.HGet(ctx, schemaKey, s.names.Collection).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis hget: %v", ErrStoreUnavailable, err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt schema version %q", ErrStoreUnavailable, raw)
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d newer than supported %d", ErrStoreUnavailable, version, SchemaVersion)
	}

	return &redisCollection{client: s.client, prefix: s.names.Store + ":" + s.names.Collection + ":"}, nil
}

// Close 关闭底层连接池。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) schemaKey() string {
	return s.names.Store + ":schema"
}

type redisCollection struct {
	client *redis.Client
	prefix string
}

func (c *redisCollection) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (c *redisCollection) Put(ctx context.Context, key string, blob []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, blob, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
