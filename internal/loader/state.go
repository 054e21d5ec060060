package loader

import "github.com/vidcache/vidcache/internal/handle"

// SourceKind 标识播放源类型。
type SourceKind string

const (
	SourceNone   SourceKind = ""
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// PlaybackSource 是 Remote(url) 或 Local(handle) 的标签联合。
type PlaybackSource struct {
	Kind   SourceKind    `json:"kind,omitempty"`
	URL    string        `json:"url,omitempty"`
	Handle handle.Handle `json:"handle,omitempty"`
}

// Remote 返回指向原始地址的播放源。
func Remote(url string) PlaybackSource {
	return PlaybackSource{Kind: SourceRemote, URL: url}
}

// Local 返回指向本地句柄的播放源。
func Local(h handle.Handle) PlaybackSource {
	return PlaybackSource{Kind: SourceLocal, URL: h.URL, Handle: h}
}

// FillPhase 是后台填充子状态。
type FillPhase string

const (
	FillIdle       FillPhase = "idle"
	FillInProgress FillPhase = "in_progress"
	FillDone       FillPhase = "done"
)

// State 是单个播放器实例的可观察状态。Key + Checked 共同构成重入保护：
// Checked 为 true 时同一 Key 的再次解析是空操作。
type State struct {
	Source            PlaybackSource `json:"source"`
	Resolving         bool           `json:"resolving"`
	BackgroundFilling bool           `json:"background_filling"`
	Fill              FillPhase      `json:"fill"`
	Key               string         `json:"key"`
	Checked           bool           `json:"checked"`
	LastError         string         `json:"last_error,omitempty"`
}

// Resolved 表示播放源已经确定（空源也算）。
func (s State) Resolved() bool {
	return s.Checked && !s.Resolving
}
