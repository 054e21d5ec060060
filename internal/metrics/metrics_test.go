package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveResolutionCountsByOutcome(t *testing.T) {
	m := New()
	m.ObserveResolution(OutcomeRemote)
	m.ObserveResolution(OutcomeRemote)
	m.ObserveResolution(OutcomeLocal)

	if got := testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeRemote)); got != 2 {
		t.Fatalf("remote resolutions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.resolutions.WithLabelValues(OutcomeLocal)); got != 1 {
		t.Fatalf("local resolutions = %v, want 1", got)
	}
}

func TestSingleflightLabels(t *testing.T) {
	m := New()
	m.ObserveSingleflight(false)
	m.ObserveSingleflight(true)
	m.ObserveSingleflight(true)

	if got := testutil.ToFloat64(m.singleflight.WithLabelValues(SingleflightJoin)); got != 2 {
		t.Fatalf("shared = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.singleflight.WithLabelValues(SingleflightNew)); got != 1 {
		t.Fatalf("initiated = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveResolution(OutcomeLocal)
	m.ObserveStoreOp(StoreOpGet, StatusHit, "memory")
	m.ObserveFill(FillStored, 0.1)
	m.ObserveSingleflight(true)
	m.SetActivePlayers(1)
	m.SetActiveHandles(1)
}

func TestHandlerRefreshesGauges(t *testing.T) {
	m := New()
	m.ObserveFill(FillStored, 0.2)

	handler := m.Handler(func() {
		m.SetActivePlayers(3)
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, "vidcache_active_players 3") {
		t.Fatalf("gauge not refreshed before scrape:\n%s", text)
	}
	if !strings.Contains(text, `vidcache_background_fills_total{result="stored"} 1`) {
		t.Fatalf("fill counter missing:\n%s", text)
	}
}
