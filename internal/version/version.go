// Package version 保存构建期注入的版本标识。
package version

import (
	"fmt"
	"runtime/debug"
)

// 构建时通过 -ldflags "-X github.com/vidcache/vidcache/internal/version.Version=..." 注入。
var (
	Version   = "0.1.0"
	Commit    = ""
	BuildDate = ""
)

// Info 汇总版本字段，供 CLI 输出与 /-/status 使用。
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date,omitempty"`
}

// Current 返回当前二进制的版本信息；未注入 Commit 时回退到 go build 记录的 vcs 信息。
func Current() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
	if info.Commit != "" {
		return info
	}
	info.Commit = "dev"
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if len(s.Value) > 12 {
					info.Commit = s.Value[:12]
				} else if s.Value != "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	info := Current()
	if info.BuildDate == "" {
		return fmt.Sprintf("vidcache %s (%s)", info.Version, info.Commit)
	}
	return fmt.Sprintf("vidcache %s (%s, %s)", info.Version, info.Commit, info.BuildDate)
}
