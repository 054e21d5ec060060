package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vmihailenco/msgpack/v5"
)

const versionFile = "VERSION"

// manifest 与正文并排存放，记录原始键用于精确匹配（文件名只是键的哈希）。
type manifest struct {
	Key         string    `msgpack:"key"`
	Size        int64     `msgpack:"size"`
	ContentType string    `msgpack:"content_type"`
	StoredAt    time.Time `msgpack:"stored_at"`
}

// NewFSStore 以 basePath 为根目录构建磁盘存储，整站复用一份实例。磁盘布局：
//
//	<basePath>/<Store>/<Collection>/VERSION
//	<basePath>/<Store>/<Collection>/<sha[0:2]>/<sha>.blob   # 正文
//	<basePath>/<Store>/<Collection>/<sha[0:2]>/<sha>.meta   # msgpack manifest
func NewFSStore(basePath string, names Names) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if err := names.validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	return &fsStore{
		root:  filepath.Join(abs, names.Store, names.Collection),
		locks: make(map[string]*entryLock),
	}, nil
}

// fsStore 通过 entryLock 避免同一 key 并发写入互相踩踏临时文件。
type fsStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fsStore) Backend() string { return "fs" }

func (s *fsStore) Open(ctx context.Context) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create collection: %v", ErrStoreUnavailable, err)
	}
	if err := s.ensureVersion(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *fsStore) ensureVersion() error {
	path := filepath.Join(s.root, versionFile)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		version, parseErr := strconv.Atoi(strings.TrimSpace(string(raw)))
		if parseErr != nil {
			return fmt.Errorf("corrupt schema version %q", string(raw))
		}
		if version > SchemaVersion {
			return fmt.Errorf("schema version %d newer than supported %d", version, SchemaVersion)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return s.writeAtomic(context.Background(), path, strings.NewReader(strconv.Itoa(SchemaVersion)))
	default:
		return err
	}
}

func (s *fsStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	blobPath, metaPath := s.paths(key)

	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var meta manifest
	if err := msgpack.Unmarshal(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if meta.Key != key {
		return nil, ErrNotFound
	}

	info, err := os.Stat(blobPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() || info.Size() != meta.Size {
		return nil, ErrNotFound
	}

	return os.ReadFile(blobPath)
}

func (s *fsStore) Put(ctx context.Context, key string, blob []byte) error {
	unlock := s.lockEntry(key)
	defer unlock()

	blobPath, metaPath := s.paths(key)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return err
	}

	if err := s.writeAtomic(ctx, blobPath, bytes.NewReader(blob)); err != nil {
		return err
	}

	meta := manifest{
		Key:         key,
		Size:        int64(len(blob)),
		ContentType: mimetype.Detect(blob).String(),
		StoredAt:    time.Now().UTC(),
	}
	rawMeta, err := msgpack.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	// manifest 最后落盘，保证读者看到 manifest 时正文已完整。
	return s.writeAtomic(ctx, metaPath, bytes.NewReader(rawMeta))
}

// writeAtomic 通过临时文件 + rename 保证写入原子性，并在失败时清理临时文件。
func (s *fsStore) writeAtomic(ctx context.Context, target string, body io.Reader) error {
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".blob-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fsStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fsStore) paths(key string) (blobPath, metaPath string) {
	digest := keyDigest(key)
	dir := filepath.Join(s.root, digest[:2])
	return filepath.Join(dir, digest+".blob"), filepath.Join(dir, digest+".meta")
}

// keyDigest 把任意 URL 映射为安全的对象名；fs 与 minio 后端共用。
func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
