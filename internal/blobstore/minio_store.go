package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectReader abstracts minio.Object for testability.
// *minio.Object satisfies this interface.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// minioClient 是 MinIO 操作的最小子集，便于在测试中注入 mock。
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
}

// minioClientAdapter 把 *minio.Client 的 GetObject 返回值收窄为 objectReader。
type minioClientAdapter struct {
	client *minio.Client
}

func (a *minioClientAdapter) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return a.client.BucketExists(ctx, bucketName)
}

func (a *minioClientAdapter) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return a.client.MakeBucket(ctx, bucketName, opts)
}

func (a *minioClientAdapter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (a *minioClientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return a.client.GetObject(ctx, bucketName, objectName, opts)
}

// MinIOConfig holds connection settings for the MinIO backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore 将库映射为 bucket，集合映射为对象前缀，对象名为键的 sha256。
type MinIOStore struct {
	client minioClient
	bucket string
	names  Names
}

// NewMinIOStore 创建 MinIO 客户端；bucket 的存在性检查延迟到 Open。
func NewMinIOStore(cfg MinIOConfig, names Names) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newMinIOStoreWithClient(&minioClientAdapter{client: client}, cfg.Bucket, names)
}

func newMinIOStoreWithClient(client minioClient, bucket string, names Names) (*MinIOStore, error) {
	if bucket == "" {
		return nil, errors.New("minio bucket required")
	}
	if err := names.validate(); err != nil {
		return nil, err
	}
	return &MinIOStore{client: client, bucket: bucket, names: names}, nil
}

func (s *MinIOStore) Backend() string { return "minio" }

// Open 在 bucket 缺失时创建；已有对象从不删除。
func (s *MinIOStore) Open(ctx context.Context) (Collection, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: check bucket: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			// 并发创建时对方可能已抢先成功。
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return nil, fmt.Errorf("%w: make bucket: %v", ErrStoreUnavailable, err)
			}
		}
	}
	return &minioCollection{store: s}, nil
}

type minioCollection struct {
	store *MinIOStore
}

func (c *minioCollection) objectName(key string) string {
	return c.store.names.Collection + "/" + keyDigest(key)
}

func (c *minioCollection) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.store.client.GetObject(ctx, c.store.bucket, c.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	// GetObject 返回惰性 reader，需要 Stat 才能确认对象存在。
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

func (c *minioCollection) Put(ctx context.Context, key string, blob []byte) error {
	_, err := c.store.client.PutObject(ctx, c.store.bucket, c.objectName(key), bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
		ContentType: mimetype.Detect(blob).String(),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}
