package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidcache/vidcache/internal/handle"
	"github.com/vidcache/vidcache/internal/loader"
)

func TestBuildEmptyWhileResolving(t *testing.T) {
	plan := Build(loader.State{Resolving: true, Key: "/v/a.mp4"}, DefaultAttributes())
	assert.Equal(t, KindEmpty, plan.Kind)
	assert.Empty(t, plan.Src)
}

func TestBuildEmptyBeforeFirstResolution(t *testing.T) {
	assert.Equal(t, KindEmpty, Build(loader.State{Fill: loader.FillIdle}, DefaultAttributes()).Kind)
}

func TestBuildEmptyURLResolution(t *testing.T) {
	plan := Build(loader.State{Checked: true, Fill: loader.FillIdle}, DefaultAttributes())
	assert.Equal(t, KindEmpty, plan.Kind)
}

func TestBuildLocal(t *testing.T) {
	h := handle.Handle{ID: "abc", URL: "http://127.0.0.1:5000/blob/abc"}
	state := loader.State{Checked: true, Key: "/v/a.mp4", Source: loader.Local(h)}

	plan := Build(state, DefaultAttributes())
	assert.Equal(t, KindPlayLocal, plan.Kind)
	assert.Equal(t, h.URL, plan.Src)
	assert.False(t, plan.ShowFillingIndicator)
}

func TestBuildRemoteFollowsFillingFlag(t *testing.T) {
	state := loader.State{
		Checked:           true,
		Key:               "/v/a.mp4",
		Source:            loader.Remote("/v/a.mp4"),
		BackgroundFilling: true,
		Fill:              loader.FillInProgress,
	}
	filling := Build(state, DefaultAttributes())
	assert.Equal(t, KindPlayRemote, filling.Kind)
	assert.Equal(t, "/v/a.mp4", filling.Src)
	assert.True(t, filling.ShowFillingIndicator)

	state.BackgroundFilling = false
	state.Fill = loader.FillDone
	done := Build(state, DefaultAttributes())
	assert.Equal(t, KindPlayRemote, done.Kind)
	assert.Equal(t, "/v/a.mp4", done.Src)
	assert.False(t, done.ShowFillingIndicator)
}

func TestBuildForwardsAttributesVerbatim(t *testing.T) {
	attrs := Attributes{Autoplay: true, Loop: true, Muted: true, Width: "640", OnEnded: "nextPhase"}
	plan := Build(loader.State{Checked: true, Source: loader.Remote("/v/a.mp4")}, attrs)
	assert.Equal(t, attrs, plan.Attributes)
}

func TestHTMLRendersVideoElement(t *testing.T) {
	attrs := DefaultAttributes()
	attrs.Autoplay = true
	attrs.Muted = true
	attrs.OnEnded = "nextPhase"
	plan := Build(loader.State{
		Checked:           true,
		Source:            loader.Remote("/v/a.mp4"),
		BackgroundFilling: true,
	}, attrs)

	out, err := plan.HTML()
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, `<video src="/v/a.mp4"`)
	assert.Contains(t, html, `class="w-full rounded-lg shadow-lg"`)
	assert.Contains(t, html, " controls")
	assert.Contains(t, html, " autoplay")
	assert.Contains(t, html, " muted")
	assert.NotContains(t, html, " loop")
	assert.Contains(t, html, `data-on-ended="nextPhase"`)
	assert.Contains(t, html, FallbackText)
	assert.Contains(t, html, "vidcache-filling")
	assert.Equal(t, 1, strings.Count(html, "<video"))
}

func TestHTMLOmitsIndicatorWhenNotFilling(t *testing.T) {
	h := handle.Handle{ID: "abc", URL: "http://127.0.0.1:5000/blob/abc"}
	plan := Build(loader.State{Checked: true, Source: loader.Local(h)}, DefaultAttributes())

	out, err := plan.HTML()
	require.NoError(t, err)
	assert.Contains(t, string(out), `src="http://127.0.0.1:5000/blob/abc"`)
	assert.NotContains(t, string(out), "vidcache-filling")
}

func TestHTMLEscapesAttributes(t *testing.T) {
	attrs := DefaultAttributes()
	attrs.OnEnded = `"><script>alert(1)</script>`
	plan := Build(loader.State{Checked: true, Source: loader.Remote("/v/a.mp4")}, attrs)

	out, err := plan.HTML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
}

func TestHTMLEmptyPlan(t *testing.T) {
	out, err := Plan{Kind: KindEmpty}.HTML()
	require.NoError(t, err)
	assert.Empty(t, out)
}
