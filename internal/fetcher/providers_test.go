package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"btc-market-feed/pkg/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func jsonHandler(t *testing.T, path, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("unexpected path %s, want %s", r.URL.Path, path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func statusHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(status), status)
	}
}

// ────────────────────────────────────────────────────────────
// Binance
// ────────────────────────────────────────────────────────────

func TestBinanceSnapshot(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q, want BTCUSDT", got)
		}
		jsonHandler(t, "/ticker/24hr", `{
			"symbol":"BTCUSDT","lastPrice":"62000.50","priceChange":"-500.25",
			"priceChangePercent":"-0.80","highPrice":"63000.00","lowPrice":"61000.00","volume":"12345.678"
		}`)(w, r)
	})

	s, err := NewBinance(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if err != nil {
		t.Fatal(err)
	}
	if s.Symbol != "BTCUSD" || s.Source != ProviderBinance {
		t.Errorf("symbol/source = %s/%s", s.Symbol, s.Source)
	}
	if s.Price != 62000.50 || s.High24h != 63000 || s.Low24h != 61000 || s.Volume != 12345.678 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if v, ok := s.Change24h.Get(); !ok || v != -500.25 {
		t.Errorf("change24h = %v", s.Change24h)
	}
	if s.ChangePercent != -0.80 || s.Estimated {
		t.Errorf("changePercent/estimated = %v/%v", s.ChangePercent, s.Estimated)
	}
}

func TestBinanceSnapshotMissingFieldIsMalformed(t *testing.T) {
	srv := newTestServer(t, jsonHandler(t, "/ticker/24hr", `{"symbol":"BTCUSDT","lastPrice":"62000"}`))

	_, err := NewBinance(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func klineRow(openMs int64, o, h, l, c, v string) string {
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","%s",%d,"0",10,"0","0","0"]`, openMs, o, h, l, c, v, openMs+59999)
}

func TestBinanceCandlesSortedAndDeduplicated(t *testing.T) {
	t0 := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC).UnixMilli()
	minute := int64(time.Minute / time.Millisecond)
	body := "[" +
		klineRow(t0+2*minute, "102", "103", "101", "102.5", "3") + "," +
		klineRow(t0, "100", "101", "99", "100.5", "1") + "," +
		klineRow(t0+minute, "101", "102", "100", "101.5", "2") + "," +
		klineRow(t0+minute, "101", "102", "100", "101.8", "2.5") +
		"]"

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("interval") != "1m" || q.Get("limit") != "4" || q.Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		jsonHandler(t, "/klines", body)(w, r)
	})

	series, err := NewBinance(srv.URL, srv.Client()).Candles(context.Background(), types.BTCUSD, types.Minute1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if series.Len() != 3 {
		t.Fatalf("len = %d, want 3 after dedupe", series.Len())
	}
	for i := 1; i < series.Len(); i++ {
		if !series.Candles[i-1].OpenTime.Before(series.Candles[i].OpenTime) {
			t.Errorf("candles not ascending at %d", i)
		}
	}
	c, ok := series.At(time.UnixMilli(t0 + minute))
	if !ok {
		t.Fatal("At: candle missing")
	}
	if c.Close != 101.8 {
		t.Errorf("duplicate resolved to close %v, want last occurrence 101.8", c.Close)
	}
	if series.Source != ProviderBinance || series.Granularity != types.Minute1 {
		t.Errorf("source/granularity = %s/%s", series.Source, series.Granularity)
	}
}

func TestBinanceCandlesInvalidOHLCIsMalformed(t *testing.T) {
	body := "[" + klineRow(1_700_000_000_000, "100", "99", "101", "100", "1") + "]"
	srv := newTestServer(t, jsonHandler(t, "/klines", body))

	_, err := NewBinance(srv.URL, srv.Client()).Candles(context.Background(), types.BTCUSD, types.Minute1, 1)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestBinanceCandlesShortRowIsMalformed(t *testing.T) {
	srv := newTestServer(t, jsonHandler(t, "/klines", `[[1700000000000,"1","2"]]`))

	_, err := NewBinance(srv.URL, srv.Client()).Candles(context.Background(), types.BTCUSD, types.Minute1, 1)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestBinanceRegionBlockedIsDistinctFromTimeout(t *testing.T) {
	blocked := newTestServer(t, statusHandler(http.StatusUnavailableForLegalReasons))
	_, err := NewBinance(blocked.URL, blocked.Client()).Candles(context.Background(), types.BTCUSD, types.Hour1, 10)
	if !errors.Is(err, ErrRegionBlocked) {
		t.Fatalf("451: err = %v, want ErrRegionBlocked", err)
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("451 must not also be ErrProviderUnavailable")
	}

	slow := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := NewHTTPClient(types.NetworkConfig{Timeout: 50 * time.Millisecond})
	_, err = NewBinance(slow.URL, client).Candles(context.Background(), types.BTCUSD, types.Hour1, 10)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("timeout: err = %v, want ErrProviderUnavailable", err)
	}
	if errors.Is(err, ErrRegionBlocked) {
		t.Errorf("timeout must not be ErrRegionBlocked")
	}
}

func TestBinanceServerErrorIsUnavailable(t *testing.T) {
	srv := newTestServer(t, statusHandler(http.StatusBadGateway))

	_, err := NewBinance(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if pe.StatusCode != http.StatusBadGateway || !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("status/kind = %d/%v", pe.StatusCode, pe.Kind)
	}
}

// ────────────────────────────────────────────────────────────
// CoinGecko
// ────────────────────────────────────────────────────────────

func TestCoinGeckoSnapshotEstimatesRange(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("ids") != "bitcoin" || q.Get("vs_currencies") != "usd" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		jsonHandler(t, "/simple/price", `{"bitcoin":{"usd":50000,"usd_24h_change":1.5,"usd_24h_vol":1000000000}}`)(w, r)
	})

	s, err := NewCoinGecko(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if err != nil {
		t.Fatal(err)
	}
	if s.High24h != 51000 || s.Low24h != 49000 {
		t.Errorf("high/low = %v/%v, want 51000/49000", s.High24h, s.Low24h)
	}
	if !s.Estimated {
		t.Error("Estimated should be set")
	}
	if s.Change24h.Valid {
		t.Errorf("change24h = %v, want absent", s.Change24h)
	}
	if s.ChangePercent != 1.5 {
		t.Errorf("changePercent = %v", s.ChangePercent)
	}
	if s.Volume != 20000 {
		t.Errorf("volume = %v, want 20000 BTC", s.Volume)
	}
	if s.Source != ProviderCoinGecko || s.Symbol != "BTCUSD" {
		t.Errorf("source/symbol = %s/%s", s.Source, s.Symbol)
	}
}

func TestCoinGeckoMissingPriceIsMalformed(t *testing.T) {
	srv := newTestServer(t, jsonHandler(t, "/simple/price", `{"bitcoin":{}}`))

	_, err := NewCoinGecko(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

// ────────────────────────────────────────────────────────────
// CryptoCompare
// ────────────────────────────────────────────────────────────

func TestCryptoCompareSnapshot(t *testing.T) {
	srv := newTestServer(t, jsonHandler(t, "/pricemultifull", `{"RAW":{"BTC":{"USD":{
		"PRICE":61000,"CHANGE24HOUR":250,"CHANGEPCT24HOUR":0.41,
		"HIGH24HOUR":61500,"LOW24HOUR":60000,"VOLUME24HOUR":4321.5}}}}`))

	s, err := NewCryptoCompare(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if err != nil {
		t.Fatal(err)
	}
	if s.Price != 61000 || s.High24h != 61500 || s.Low24h != 60000 || s.Volume != 4321.5 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if v, ok := s.Change24h.Get(); !ok || v != 250 {
		t.Errorf("change24h = %v", s.Change24h)
	}
	if s.Estimated {
		t.Error("Estimated should not be set when high/low are reported")
	}
}

func TestCryptoCompareErrorResponseIsMalformed(t *testing.T) {
	srv := newTestServer(t, jsonHandler(t, "/pricemultifull", `{"Response":"Error","Message":"rate limit"}`))

	_, err := NewCryptoCompare(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

// ────────────────────────────────────────────────────────────
// OKX
// ────────────────────────────────────────────────────────────

func TestOKXSnapshot(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instId"); got != "BTC-USDT" {
			t.Errorf("instId = %q", got)
		}
		jsonHandler(t, "/ticker", `{"code":"0","msg":"","data":[{
			"instId":"BTC-USDT","last":"60500","open24h":"60000","high24h":"61000","low24h":"59000","vol24h":"800"}]}`)(w, r)
	})

	s, err := NewOKX(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Change24h.Get(); v != 500 {
		t.Errorf("change24h = %v, want 500", v)
	}
	if s.ChangePercent < 0.8333 || s.ChangePercent > 0.8334 {
		t.Errorf("changePercent = %v", s.ChangePercent)
	}
}

func TestOKXErrorCodeIsMalformed(t *testing.T) {
	srv := newTestServer(t, jsonHandler(t, "/ticker", `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))

	_, err := NewOKX(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestOKXCandlesPagesBackwards(t *testing.T) {
	newest := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC).UnixMilli()
	hour := int64(time.Hour / time.Millisecond)
	var requests int32

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		q := r.URL.Query()
		if q.Get("bar") != "1H" {
			t.Errorf("bar = %q, want 1H", q.Get("bar"))
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		start := newest
		if after := q.Get("after"); after != "" {
			ts, _ := strconv.ParseInt(after, 10, 64)
			start = ts - hour
		}

		body := `{"code":"0","msg":"","data":[`
		for i := 0; i < limit; i++ {
			if i > 0 {
				body += ","
			}
			ts := start - int64(i)*hour
			body += fmt.Sprintf(`["%d","100","101","99","100.5","5","500","500","1"]`, ts)
		}
		body += "]}"
		jsonHandler(t, "/history-candles", body)(w, r)
	})

	okx := NewOKX(srv.URL, srv.Client())
	var waits []time.Duration
	okx.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	series, err := okx.Candles(context.Background(), types.BTCUSD, types.Hour1, 250)
	if err != nil {
		t.Fatal(err)
	}
	if series.Len() != 250 {
		t.Fatalf("len = %d, want 250", series.Len())
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("requests = %d, want 3 pages", got)
	}
	if len(waits) != 2 || waits[0] != okxPageSpacing {
		t.Errorf("waits = %v, want two waits of %v", waits, okxPageSpacing)
	}
	last, _ := series.Latest()
	if last.OpenTime.UnixMilli() != newest {
		t.Errorf("latest = %v, want newest candle", last.OpenTime)
	}
	if series.Candles[0].OpenTime.UnixMilli() != newest-249*hour {
		t.Errorf("oldest = %v", series.Candles[0].OpenTime)
	}
	if series.Source != ProviderOKX {
		t.Errorf("source = %s", series.Source)
	}
}

func TestEstimateRange(t *testing.T) {
	high, low := EstimateRange(50000)
	if high != 51000 || low != 49000 {
		t.Errorf("EstimateRange(50000) = %v/%v", high, low)
	}
}

func TestBinanceOverflowingDecimalIsMalformed(t *testing.T) {
	t.Run("klines", func(t *testing.T) {
		body := "[" + klineRow(1_700_000_000_000, "1e400", "1e400", "1e400", "1e400", "1") + "]"
		srv := newTestServer(t, jsonHandler(t, "/klines", body))

		_, err := NewBinance(srv.URL, srv.Client()).Candles(context.Background(), types.BTCUSD, types.Minute1, 1)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("err = %v, want ErrMalformedResponse", err)
		}
	})
	t.Run("ticker", func(t *testing.T) {
		srv := newTestServer(t, jsonHandler(t, "/ticker/24hr", `{
			"lastPrice":"1e400","priceChange":"0","priceChangePercent":"0",
			"highPrice":"1","lowPrice":"1","volume":"1"}`))

		_, err := NewBinance(srv.URL, srv.Client()).Snapshot(context.Background(), types.BTCUSD)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("err = %v, want ErrMalformedResponse", err)
		}
	})
}

func TestSnapshotNonPositivePriceIsMalformed(t *testing.T) {
	binance := newTestServer(t, jsonHandler(t, "/ticker/24hr", `{
		"lastPrice":"0","priceChange":"0","priceChangePercent":"0",
		"highPrice":"1","lowPrice":"1","volume":"1"}`))
	okx := newTestServer(t, jsonHandler(t, "/ticker", `{"code":"0","msg":"","data":[{
		"instId":"BTC-USDT","last":"-1","open24h":"60000","high24h":"61000","low24h":"59000","vol24h":"800"}]}`))

	providers := []SnapshotProvider{
		NewBinance(binance.URL, binance.Client()),
		NewOKX(okx.URL, okx.Client()),
	}
	for _, p := range providers {
		if _, err := p.Snapshot(context.Background(), types.BTCUSD); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("%s: err = %v, want ErrMalformedResponse", p.Name(), err)
		}
	}
}
