// Package metrics 定义行情获取链路的 Prometheus 指标。
// 所有方法都允许在 nil 接收者上调用，未启用指标时直接传 nil 即可。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 数据源请求结果
const (
	OutcomeOK            = "ok"
	OutcomeUnavailable   = "unavailable"
	OutcomeRegionBlocked = "region_blocked"
	OutcomeMalformed     = "malformed"
)

// Metrics 行情服务指标集合
type Metrics struct {
	ProviderRequests    *prometheus.CounterVec   // labels: provider, outcome
	ProviderLatency     *prometheus.HistogramVec // labels: provider
	ChainExhausted      prometheus.Counter
	CacheLookups        *prometheus.CounterVec // labels: namespace, result
	IndicatorComputeDur prometheus.Histogram
}

// New 创建指标并注册到 reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcfeed_provider_requests_total",
			Help: "Market data provider requests by outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "btcfeed_provider_request_seconds",
			Help:    "Market data provider round trip duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ChainExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcfeed_snapshot_chain_exhausted_total",
			Help: "Snapshot requests where every provider failed",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcfeed_cache_lookups_total",
			Help: "Cache lookups by namespace and result",
		}, []string{"namespace", "result"}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcfeed_indicator_compute_seconds",
			Help:    "Time to annotate a candle series with indicators",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	reg.MustRegister(
		m.ProviderRequests,
		m.ProviderLatency,
		m.ChainExhausted,
		m.CacheLookups,
		m.IndicatorComputeDur,
	)

	return m
}

// ObserveProvider 记录一次数据源请求
func (m *Metrics) ObserveProvider(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// IncExhausted 记录一次回退链全部失败
func (m *Metrics) IncExhausted() {
	if m == nil {
		return
	}
	m.ChainExhausted.Inc()
}

// ObserveCache 记录缓存命中情况
func (m *Metrics) ObserveCache(namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(namespace, result).Inc()
}

// ObserveIndicators 记录指标计算耗时
func (m *Metrics) ObserveIndicators(d time.Duration) {
	if m == nil {
		return
	}
	m.IndicatorComputeDur.Observe(d.Seconds())
}
