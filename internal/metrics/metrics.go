// Package metrics 暴露 vidcache 的 Prometheus 指标。使用私有 registry，
// 多个实例（例如测试中）互不冲突；所有方法对 nil 接收者安全。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidcache"

// Resolution outcome labels.
const (
	OutcomeLocal       = "local"
	OutcomeRemote      = "remote"
	OutcomeEmpty       = "empty"
	OutcomeUnavailable = "store_unavailable"
	OutcomeLookupError = "lookup_failed"
)

// Store operation labels.
const (
	StoreOpOpen = "open"
	StoreOpGet  = "get"
	StoreOpPut  = "put"

	StatusSuccess = "success"
	StatusHit     = "hit"
	StatusMiss    = "miss"
	StatusError   = "error"
)

// Fill result labels.
const (
	FillStored       = "stored"
	FillFetchFailed  = "fetch_failed"
	FillWriteFailed  = "write_failed"
	SingleflightNew  = "initiated"
	SingleflightJoin = "shared"
)

// Metrics 聚合所有计数器与仪表。
type Metrics struct {
	registry      *prometheus.Registry
	resolutions   *prometheus.CounterVec
	storeOps      *prometheus.CounterVec
	fills         *prometheus.CounterVec
	fillDuration  prometheus.Histogram
	singleflight  *prometheus.CounterVec
	activePlayers prometheus.Gauge
	activeHandles prometheus.Gauge
}

// New 创建并注册全部指标。
func New() *Metrics {
	registry := prometheus.NewRegistry()

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Total number of source resolutions by outcome",
	}, []string{"outcome"})
	storeOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "Total number of blob store operations",
	}, []string{"operation", "status", "backend"})
	fills := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "background_fills_total",
		Help:      "Total number of background fills by result",
	}, []string{"result"})
	fillDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "background_fill_duration_seconds",
		Help:      "Duration of background fetch and store writes",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	singleflight := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "singleflight_requests_total",
		Help:      "Total number of coalesced origin fetches",
	}, []string{"result"})
	activePlayers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_players",
		Help:      "Number of mounted player instances",
	})
	activeHandles := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_handles",
		Help:      "Number of unreleased local blob handles",
	})

	registry.MustRegister(
		resolutions,
		storeOps,
		fills,
		fillDuration,
		singleflight,
		activePlayers,
		activeHandles,
	)

	return &Metrics{
		registry:      registry,
		resolutions:   resolutions,
		storeOps:      storeOps,
		fills:         fills,
		fillDuration:  fillDuration,
		singleflight:  singleflight,
		activePlayers: activePlayers,
		activeHandles: activeHandles,
	}
}

// ObserveResolution counts one finished resolution.
func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// ObserveStoreOp counts one store call.
func (m *Metrics) ObserveStoreOp(op, status, backend string) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, status, backend).Inc()
}

// ObserveFill counts a finished background fill and its duration in seconds.
func (m *Metrics) ObserveFill(result string, seconds float64) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(result).Inc()
	m.fillDuration.Observe(seconds)
}

// ObserveSingleflight records whether a fetch started a new origin request.
func (m *Metrics) ObserveSingleflight(shared bool) {
	if m == nil {
		return
	}
	if shared {
		m.singleflight.WithLabelValues(SingleflightJoin).Inc()
		return
	}
	m.singleflight.WithLabelValues(SingleflightNew).Inc()
}

func (m *Metrics) SetActivePlayers(n int) {
	if m == nil {
		return
	}
	m.activePlayers.Set(float64(n))
}

func (m *Metrics) SetActiveHandles(n int) {
	if m == nil {
		return
	}
	m.activeHandles.Set(float64(n))
}

// Registry 暴露底层 registry，供测试读取。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus exposition 处理器；updateGauges 在每次抓取前刷新仪表值。
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
