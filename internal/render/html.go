package render

import (
	"bytes"
	"fmt"
	"html/template"
)

var videoTemplate = template.Must(template.New("video").Parse(`<div class="vidcache-player" data-plan="{{.Kind}}">` +
	`<video src="{{.Src}}"` +
	`{{with .Attributes}}` +
	`{{if .Class}} class="{{.Class}}"{{end}}` +
	`{{if .Style}} style="{{.Style}}"{{end}}` +
	`{{if .Width}} width="{{.Width}}"{{end}}` +
	`{{if .Height}} height="{{.Height}}"{{end}}` +
	`{{if .Poster}} poster="{{.Poster}}"{{end}}` +
	`{{if .Controls}} controls{{end}}` +
	`{{if .Autoplay}} autoplay{{end}}` +
	`{{if .Loop}} loop{{end}}` +
	`{{if .Muted}} muted{{end}}` +
	`{{if .PlaysInline}} playsinline{{end}}` +
	`{{if .OnEnded}} data-on-ended="{{.OnEnded}}"{{end}}` +
	`{{end}}>` +
	`{{.Fallback}}</video>` +
	`{{if .ShowFillingIndicator}}<div class="vidcache-filling" role="status" aria-live="polite">Caching for next time…</div>{{end}}` +
	`</div>`))

type templateData struct {
	Plan
	Fallback string
}

// HTML 渲染单个 <video> 元素及后台填充指示；Empty 计划输出空串。
func (p Plan) HTML() (template.HTML, error) {
	if p.Kind == KindEmpty || p.Src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := videoTemplate.Execute(&buf, templateData{Plan: p, Fallback: FallbackText}); err != nil {
		return "", fmt.Errorf("render video element: %w", err)
	}
	return template.HTML(buf.String()), nil
}
