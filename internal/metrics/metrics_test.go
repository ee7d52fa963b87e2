package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveProvider("binance", OutcomeOK, time.Millisecond)
	m.IncExhausted()
	m.ObserveCache("snapshot", true)
	m.ObserveIndicators(time.Millisecond)
}

func TestObserveProvider(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProvider("binance", OutcomeRegionBlocked, 20*time.Millisecond)
	m.ObserveProvider("coingecko", OutcomeOK, 10*time.Millisecond)
	m.ObserveProvider("coingecko", OutcomeOK, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ProviderRequests.WithLabelValues("binance", OutcomeRegionBlocked)); got != 1 {
		t.Errorf("binance region_blocked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProviderRequests.WithLabelValues("coingecko", OutcomeOK)); got != 2 {
		t.Errorf("coingecko ok = %v, want 2", got)
	}
}

func TestObserveCache(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCache("series", false)
	m.ObserveCache("series", true)
	m.ObserveCache("series", true)

	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("series", "hit")); got != 2 {
		t.Errorf("series hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("series", "miss")); got != 1 {
		t.Errorf("series misses = %v, want 1", got)
	}
}
