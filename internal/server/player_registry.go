package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vidcache/vidcache/internal/loader"
	"github.com/vidcache/vidcache/internal/logging"
	"github.com/vidcache/vidcache/internal/metrics"
	"github.com/vidcache/vidcache/internal/render"
)

// Player 是一个已挂载的播放器实例：Loader 负责解析，Attributes 原样透传给渲染。
type Player struct {
	ID        string
	CreatedAt time.Time
	Loader    *loader.Loader

	mu    sync.RWMutex
	attrs render.Attributes
}

// Attributes 返回当前透传属性。
func (p *Player) Attributes() render.Attributes {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attrs
}

// SetAttributes 替换透传属性，不会触发重新解析。
func (p *Player) SetAttributes(attrs render.Attributes) {
	p.mu.Lock()
	p.attrs = attrs
	p.mu.Unlock()
}

// Plan 基于最新状态构建渲染计划。
func (p *Player) Plan() render.Plan {
	return render.Build(p.Loader.State(), p.Attributes())
}

// PlayerSnapshot 用于 JSON 输出。
type PlayerSnapshot struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	State     loader.State `json:"state"`
	Plan      render.Plan  `json:"plan"`
}

// Snapshot 返回一致的状态与计划视图。
func (p *Player) Snapshot() PlayerSnapshot {
	state := p.Loader.State()
	return PlayerSnapshot{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		State:     state,
		Plan:      render.Build(state, p.Attributes()),
	}
}

// PlayerRegistry 持有所有已挂载实例。共享的 Store/Fetcher/Handles 来自 base，
// 每个实例获得独立的 Loader。
type PlayerRegistry struct {
	base    loader.Options
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	players map[string]*Player
	closed  bool

	// draining 跟踪已卸载但仍有后台填充的实例。
	draining sync.WaitGroup
}

// ErrRegistryClosed 表示服务正在关闭，不再接受新的挂载。
var ErrRegistryClosed = errors.New("player registry closed")

// NewPlayerRegistry 以 base 作为每个 Loader 的公共依赖。
func NewPlayerRegistry(base loader.Options) *PlayerRegistry {
	logger := base.Logger
	if logger == nil {
		logger = logging.Discard()
		base.Logger = logger
	}
	return &PlayerRegistry{
		base:    base,
		logger:  logger,
		metrics: base.Metrics,
		players: make(map[string]*Player),
	}
}

// Create 挂载新实例，此时尚未解析任何地址。
func (r *PlayerRegistry) Create(attrs render.Attributes) (*Player, error) {
	id := uuid.NewString()
	opts := r.base
	opts.PlayerID = id
	opts.OnChange = func(state loader.State) {
		r.logger.WithFields(logging.ResolveFields(id, state.Key, opts.Store.Backend())).
			WithFields(logrus.Fields{
				"resolving":          state.Resolving,
				"background_filling": state.BackgroundFilling,
				"source":             state.Source.Kind,
			}).Debug("player_state_changed")
	}

	l, err := loader.New(opts)
	if err != nil {
		return nil, err
	}
	player := &Player{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Loader:    l,
		attrs:     attrs,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		l.Close()
		return nil, ErrRegistryClosed
	}
	r.players[id] = player
	count := len(r.players)
	r.mu.Unlock()

	r.metrics.SetActivePlayers(count)
	return player, nil
}

// Lookup 根据 ID 查找实例。
func (r *PlayerRegistry) Lookup(id string) (*Player, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	player, ok := r.players[id]
	return player, ok
}

// Remove 卸载实例：同步释放句柄，未完成的后台填充继续运行但不再影响状态。
func (r *PlayerRegistry) Remove(id string) bool {
	r.mu.Lock()
	player, ok := r.players[id]
	if ok {
		delete(r.players, id)
	}
	count := len(r.players)
	r.mu.Unlock()

	if !ok {
		return false
	}
	player.Loader.Close()
	r.drain(player.Loader)
	r.metrics.SetActivePlayers(count)
	return true
}

// List 返回按创建时间排序的实例快照，用于 /-/players 输出。
func (r *PlayerRegistry) List() []PlayerSnapshot {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool {
		if players[i].CreatedAt.Equal(players[j].CreatedAt) {
			return players[i].ID < players[j].ID
		}
		return players[i].CreatedAt.Before(players[j].CreatedAt)
	})
	result := make([]PlayerSnapshot, 0, len(players))
	for _, p := range players {
		result = append(result, p.Snapshot())
	}
	return result
}

// Len 返回已挂载实例数量。
func (r *PlayerRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Close 卸载全部实例并拒绝新的挂载。
func (r *PlayerRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	players := r.players
	r.players = make(map[string]*Player)
	r.mu.Unlock()

	for _, p := range players {
		p.Loader.Close()
		r.drain(p.Loader)
	}
	r.metrics.SetActivePlayers(0)
}

// Wait 等待所有实例（含已卸载实例）的后台填充结束。
func (r *PlayerRegistry) Wait() {
	r.mu.RLock()
	loaders := make([]*loader.Loader, 0, len(r.players))
	for _, p := range r.players {
		loaders = append(loaders, p.Loader)
	}
	r.mu.RUnlock()

	for _, l := range loaders {
		l.Wait()
	}
	r.draining.Wait()
}

func (r *PlayerRegistry) drain(l *loader.Loader) {
	r.draining.Add(1)
	go func() {
		defer r.draining.Done()
		l.Wait()
	}()
}
