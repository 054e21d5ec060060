// Package render 把播放器状态映射为渲染计划。Build 是纯函数，所有 I/O 都在 loader 中完成。
package render

import "github.com/vidcache/vidcache/internal/loader"

// Kind 是渲染计划的种类。
type Kind string

const (
	KindEmpty      Kind = "empty"
	KindPlayLocal  Kind = "play_local"
	KindPlayRemote Kind = "play_remote"
)

// 原前端组件的固定外观。
const (
	DefaultClass = "w-full rounded-lg shadow-lg"
	FallbackText = "Your browser does not support the video tag."
)

// Attributes 是透传给 <video> 元素的属性，对解析协议不透明。
type Attributes struct {
	Autoplay    bool   `json:"autoplay"`
	Loop        bool   `json:"loop"`
	Muted       bool   `json:"muted"`
	PlaysInline bool   `json:"playsinline"`
	Controls    bool   `json:"controls"`
	Width       string `json:"width,omitempty"`
	Height      string `json:"height,omitempty"`
	Class       string `json:"class,omitempty"`
	Style       string `json:"style,omitempty"`
	Poster      string `json:"poster,omitempty"`
	// OnEnded 是播放结束时前端调用的回调名，以 data-on-ended 输出。
	OnEnded string `json:"on_ended,omitempty"`
}

// DefaultAttributes 返回挂载时的默认属性：显示控件并使用原组件的样式。
func DefaultAttributes() Attributes {
	return Attributes{
		Controls: true,
		Class:    DefaultClass,
	}
}

// Plan 描述一次渲染。
type Plan struct {
	Kind                 Kind       `json:"kind"`
	Src                  string     `json:"src,omitempty"`
	ShowFillingIndicator bool       `json:"show_filling_indicator"`
	Attributes           Attributes `json:"attributes"`
}

// Build 选择渲染计划：解析中或尚未解析时为空，避免闪现错误的源。
func Build(state loader.State, attrs Attributes) Plan {
	if state.Resolving || !state.Checked {
		return Plan{Kind: KindEmpty}
	}
	switch state.Source.Kind {
	case loader.SourceLocal:
		return Plan{Kind: KindPlayLocal, Src: state.Source.Handle.URL, Attributes: attrs}
	case loader.SourceRemote:
		return Plan{
			Kind:                 KindPlayRemote,
			Src:                  state.Source.URL,
			ShowFillingIndicator: state.BackgroundFilling,
			Attributes:           attrs,
		}
	default:
		return Plan{Kind: KindEmpty}
	}
}
