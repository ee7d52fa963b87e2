package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseAssetPair(t *testing.T) {
	cases := []struct {
		in   string
		want AssetPair
	}{
		{"", BTCUSD},
		{"BTCUSD", BTCUSD},
		{"btc-usd", BTCUSD},
		{"BTC/USD", BTCUSD},
		{"ETH_EUR", AssetPair{Base: "ETH", Quote: "EUR"}},
		{"BTCUSDT", AssetPair{Base: "BTC", Quote: "USDT"}},
		{" solusdc ", AssetPair{Base: "SOL", Quote: "USDC"}},
	}
	for _, tc := range cases {
		got, err := ParseAssetPair(tc.in)
		if err != nil {
			t.Errorf("ParseAssetPair(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAssetPair(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"BTC-", "/USD", "BTCJPY", "USD"} {
		if _, err := ParseAssetPair(bad); err == nil {
			t.Errorf("ParseAssetPair(%q) should fail", bad)
		}
	}
}

func TestParseGranularity(t *testing.T) {
	for _, in := range []string{"1m", "5m", "15m", "1H", "4h", "1D"} {
		g, err := ParseGranularity(in)
		if err != nil {
			t.Errorf("ParseGranularity(%q): %v", in, err)
			continue
		}
		if g.Duration() == 0 {
			t.Errorf("%s has no duration", g)
		}
	}
	if _, err := ParseGranularity("2h"); err == nil {
		t.Error("2h should be rejected")
	}
}

func TestNullFloatJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A NullFloat `json:"a"`
		B NullFloat `json:"b"`
	}{A: Some(1.5)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":1.5,"b":null}` {
		t.Errorf("marshal = %s", b)
	}

	var out struct {
		A NullFloat `json:"a"`
		B NullFloat `json:"b"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if v, ok := out.A.Get(); !ok || v != 1.5 {
		t.Errorf("a = %v", out.A)
	}
	if out.B.Valid {
		t.Errorf("b = %v, want absent", out.B)
	}
	if out.B.String() != "-" {
		t.Errorf("absent String() = %q", out.B.String())
	}
}

func candleAt(ts time.Time, close float64) Candle {
	return Candle{OpenTime: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1}
}

func TestNewCandleSeriesOrdersAndIndexes(t *testing.T) {
	base := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		candleAt(base.Add(2*time.Hour), 102),
		candleAt(base, 100),
		candleAt(base.Add(time.Hour), 101),
		candleAt(base.Add(time.Hour), 105),
	}

	s, err := NewCandleSeries("BTCUSD", Hour1, "test", candles)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	closes := s.Closes()
	want := []float64{100, 105, 102}
	for i := range want {
		if closes[i] != want[i] {
			t.Errorf("closes[%d] = %v, want %v", i, closes[i], want[i])
		}
	}

	c, ok := s.At(base.Add(time.Hour).In(time.FixedZone("CST", 8*3600)))
	if !ok || c.Close != 105 {
		t.Errorf("At(1h) = %v/%v", c.Close, ok)
	}
	if _, ok := s.At(base.Add(30 * time.Minute)); ok {
		t.Error("At should miss between candles")
	}
	last, _ := s.Latest()
	if last.Close != 102 {
		t.Errorf("latest close = %v", last.Close)
	}
}

func TestNewCandleSeriesRejectsInvalidCandle(t *testing.T) {
	base := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	bad := []Candle{
		{OpenTime: base, Open: 100, High: 99, Low: 98, Close: 100, Volume: 1},
		{OpenTime: base, Open: 0, High: 1, Low: 0, Close: 1, Volume: 1},
		{OpenTime: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: -1},
		{OpenTime: base, Open: 100, High: math.Inf(1), Low: 99, Close: 100, Volume: 1},
		{OpenTime: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: math.NaN()},
	}
	for i, c := range bad {
		if _, err := NewCandleSeries("BTCUSD", Hour1, "test", []Candle{c}); !errors.Is(err, ErrInvalidCandle) {
			t.Errorf("case %d: err = %v, want ErrInvalidCandle", i, err)
		}
	}
}

func TestCandleSeriesCloneIsDeep(t *testing.T) {
	base := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	s, _ := NewCandleSeries("BTCUSD", Hour1, "test", []Candle{candleAt(base, 100)})
	s.Candles[0].Indicators = &IndicatorSet{RSI: Some(55)}

	clone := s.Clone()
	clone.Candles[0].Close = 1
	clone.Candles[0].Indicators.RSI = Some(10)

	if s.Candles[0].Close != 100 || s.Candles[0].Indicators.RSI.Float64 != 55 {
		t.Error("clone shares memory with the original")
	}
}

func TestCandleSeriesJSONKeepsIndex(t *testing.T) {
	base := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	s, _ := NewCandleSeries("BTCUSD", Hour1, "binance", []Candle{candleAt(base, 100), candleAt(base.Add(time.Hour), 101)})

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var decoded CandleSeries
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Source != "binance" || decoded.Granularity != Hour1 {
		t.Errorf("decoded = %s/%s", decoded.Source, decoded.Granularity)
	}
	if c, ok := decoded.At(base.Add(time.Hour)); !ok || c.Close != 101 {
		t.Errorf("At after decode = %v/%v", c.Close, ok)
	}
}

func TestCandleSeriesTail(t *testing.T) {
	base := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	s, _ := NewCandleSeries("BTCUSD", Hour1, "test", []Candle{
		candleAt(base, 100), candleAt(base.Add(time.Hour), 101), candleAt(base.Add(2*time.Hour), 102),
	})

	tail := s.Tail(2)
	if tail.Len() != 2 || tail.Candles[0].Close != 101 {
		t.Errorf("tail = %v", tail.Closes())
	}
	if _, ok := tail.At(base); ok {
		t.Error("tail index still contains the dropped candle")
	}
	if s.Len() != 3 {
		t.Error("Tail modified the original series")
	}
	if s.Tail(0).Len() != 3 || s.Tail(10).Len() != 3 {
		t.Error("out of range tail should return the full series")
	}
}
