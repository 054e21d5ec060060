// Package loader 实现单个播放器实例的"缓存或直连"解析协议：
// 先查持久化存储，命中则签发本地句柄，未命中则立即回落到原始地址并在后台回源写入。
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vidcache/vidcache/internal/blobstore"
	"github.com/vidcache/vidcache/internal/handle"
	"github.com/vidcache/vidcache/internal/logging"
	"github.com/vidcache/vidcache/internal/metrics"
)

var (
	// ErrClosed 表示实例已卸载。
	ErrClosed = errors.New("loader closed")
	// ErrLookupFailed 表示存储读取或句柄签发失败，解析降级为远程播放。
	ErrLookupFailed = errors.New("cache lookup failed")
	// ErrWriteFailed 表示后台填充写入失败，缓存对该键保持冷状态。
	ErrWriteFailed = errors.New("cache write failed")
)

const defaultFillTimeout = 10 * time.Minute

// Fetcher 下载完整资源。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Handles 签发与撤销本地句柄。
type Handles interface {
	Issue(key string, blob []byte) (handle.Handle, error)
	Revoke(h handle.Handle) bool
}

// Options 描述 Loader 的依赖；Store/Fetcher/Handles 必填。
type Options struct {
	PlayerID    string
	Store       blobstore.Store
	Fetcher     Fetcher
	Handles     Handles
	Logger      *logrus.Logger
	Metrics     *metrics.Metrics
	FillTimeout time.Duration
	// OnChange 在每次状态迁移后以最新快照回调，回调之间串行。
	OnChange func(State)
}

// Loader 持有一个播放器实例的状态与句柄。
type Loader struct {
	opts Options

	// resolveMu 串行化解析：A 的查找结束后 B 才开始。
	resolveMu sync.Mutex

	mu     sync.Mutex
	state  State
	epoch  uint64
	closed bool

	notifyMu sync.Mutex
	fills    sync.WaitGroup
}

// New 校验依赖并返回处于 Idle 状态的 Loader。
func New(opts Options) (*Loader, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Handles == nil {
		return nil, errors.New("handle registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.FillTimeout <= 0 {
		opts.FillTimeout = defaultFillTimeout
	}
	return &Loader{
		opts:  opts,
		state: State{Fill: FillIdle},
	}, nil
}

// State 返回当前状态快照，可并发调用。
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Resolve 为 url 决定播放源。同一 url 已检查过时直接返回现有状态，
// 不打开存储也不查找；url 改变时先同步释放旧句柄再开始新的解析。
// 未命中时返回的状态已是 Remote，后台填充不会被等待。
func (l *Loader) Resolve(ctx context.Context, url string) (State, error) {
	l.resolveMu.Lock()
	defer l.resolveMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return State{}, ErrClosed
	}
	if l.state.Checked && l.state.Key == url {
		current := l.state
		l.mu.Unlock()
		return current, nil
	}
	l.epoch++
	epoch := l.epoch
	previous := l.state.Source
	l.state = State{Resolving: true, Key: url, Fill: FillIdle}
	l.mu.Unlock()

	l.release(previous)
	l.notify()

	if url == "" {
		return l.finish(epoch, url, PlaybackSource{}, false, nil, metrics.OutcomeEmpty)
	}

	fields := logging.ResolveFields(l.opts.PlayerID, url, l.opts.Store.Backend())

	col, err := l.opts.Store.Open(ctx)
	if err != nil {
		l.observeStore(metrics.StoreOpOpen, metrics.StatusError)
		l.opts.Logger.WithFields(fields).WithError(err).Warn("cache_open_failed")
		return l.finish(epoch, url, Remote(url), false, err, metrics.OutcomeUnavailable)
	}
	l.observeStore(metrics.StoreOpOpen, metrics.StatusSuccess)

	blob, err := col.Get(ctx, url)
	switch {
	case err == nil:
		l.observeStore(metrics.StoreOpGet, metrics.StatusHit)
		h, issueErr := l.opts.Handles.Issue(url, blob)
		if issueErr != nil {
			lookupErr := fmt.Errorf("%w: issue handle: %v", ErrLookupFailed, issueErr)
			l.opts.Logger.WithFields(fields).WithError(lookupErr).Warn("cache_handle_failed")
			return l.finish(epoch, url, Remote(url), false, lookupErr, metrics.OutcomeLookupError)
		}
		l.opts.Logger.WithFields(fields).Debug("cache_hit")
		state, finishErr := l.finish(epoch, url, Local(h), false, nil, metrics.OutcomeLocal)
		if finishErr != nil {
			// 解析期间被卸载，新签发的句柄无人持有
			l.opts.Handles.Revoke(h)
		}
		return state, finishErr
	case errors.Is(err, blobstore.ErrNotFound):
		l.observeStore(metrics.StoreOpGet, metrics.StatusMiss)
		l.opts.Logger.WithFields(fields).Debug("cache_miss")
		l.fills.Add(1)
		state, finishErr := l.finish(epoch, url, Remote(url), true, nil, metrics.OutcomeRemote)
		if finishErr != nil {
			l.fills.Done()
			return state, finishErr
		}
		go l.fill(col, url, epoch)
		return state, nil
	default:
		l.observeStore(metrics.StoreOpGet, metrics.StatusError)
		lookupErr := fmt.Errorf("%w: %v", ErrLookupFailed, err)
		l.opts.Logger.WithFields(fields).WithError(lookupErr).Warn("cache_lookup_failed")
		return l.finish(epoch, url, Remote(url), false, lookupErr, metrics.OutcomeLookupError)
	}
}

// Close 卸载实例：同步释放句柄，之后到达的后台填充结果一律忽略。可重复调用。
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.epoch++
	previous := l.state.Source
	l.state = State{Fill: FillIdle}
	l.mu.Unlock()

	l.release(previous)
	l.notify()
}

// Closed 表示 Close 是否已被调用。
func (l *Loader) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Wait 阻塞直到本实例发起的后台填充全部结束，渲染路径不应调用。
func (l *Loader) Wait() {
	l.fills.Wait()
}

// finish 在 epoch 仍然有效时写入解析结果；实例已卸载时返回 ErrClosed。
func (l *Loader) finish(epoch uint64, url string, source PlaybackSource, filling bool, cause error, outcome string) (State, error) {
	l.mu.Lock()
	if l.closed || l.epoch != epoch {
		l.mu.Unlock()
		return State{}, ErrClosed
	}
	l.state.Source = source
	l.state.Resolving = false
	l.state.Checked = true
	l.state.Key = url
	l.state.BackgroundFilling = filling
	if filling {
		l.state.Fill = FillInProgress
	}
	if cause != nil {
		l.state.LastError = cause.Error()
	}
	current := l.state
	l.mu.Unlock()

	l.opts.Metrics.ObserveResolution(outcome)
	l.notify()
	return current, nil
}

// fill 回源并写入存储。key 与 epoch 在启动时按值捕获，
// 即使实例随后切换了地址，写入的键也不会错位。
func (l *Loader) fill(col blobstore.Collection, key string, epoch uint64) {
	defer l.fills.Done()

	ctx, cancel := context.WithTimeout(context.Background(), l.opts.FillTimeout)
	defer cancel()

	fields := logging.ResolveFields(l.opts.PlayerID, key, l.opts.Store.Backend())
	start := time.Now()
	result := metrics.FillStored

	var fillErr error
	blob, err := l.opts.Fetcher.Fetch(ctx, key)
	if err != nil {
		fillErr = err
		result = metrics.FillFetchFailed
		l.opts.Logger.WithFields(fields).WithError(err).Warn("background_fetch_failed")
	} else if err := col.Put(ctx, key, blob); err != nil {
		l.observeStore(metrics.StoreOpPut, metrics.StatusError)
		fillErr = fmt.Errorf("%w: %v", ErrWriteFailed, err)
		result = metrics.FillWriteFailed
		l.opts.Logger.WithFields(fields).WithError(fillErr).Warn("background_write_failed")
	} else {
		l.observeStore(metrics.StoreOpPut, metrics.StatusSuccess)
		l.opts.Logger.WithFields(fields).WithField("bytes", len(blob)).Info("background_fill_stored")
	}
	l.opts.Metrics.ObserveFill(result, time.Since(start).Seconds())

	l.mu.Lock()
	if l.closed || l.epoch != epoch || l.state.Key != key {
		l.mu.Unlock()
		l.opts.Logger.WithFields(fields).Debug("background_fill_superseded")
		return
	}
	l.state.BackgroundFilling = false
	l.state.Fill = FillDone
	if fillErr != nil {
		l.state.LastError = fillErr.Error()
	}
	l.mu.Unlock()

	l.notify()
}

func (l *Loader) release(source PlaybackSource) {
	if source.Kind != SourceLocal {
		return
	}
	l.opts.Handles.Revoke(source.Handle)
}

func (l *Loader) notify() {
	if l.opts.OnChange == nil {
		return
	}
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	l.opts.OnChange(l.State())
}

func (l *Loader) observeStore(op, status string) {
	l.opts.Metrics.ObserveStoreOp(op, status, l.opts.Store.Backend())
}
