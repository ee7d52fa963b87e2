package indicators

import (
	"math"
	"testing"
	"time"

	"btc-market-feed/pkg/types"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got types.NullFloat, want, tol float64) {
	t.Helper()
	v, ok := got.Get()
	if !ok {
		t.Errorf("%s: got absent, want %.6f", label, want)
		return
	}
	if math.Abs(v-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, v, want, tol)
	}
}

func assertAbsent(t *testing.T, label string, got types.NullFloat) {
	t.Helper()
	if got.Valid {
		t.Errorf("%s: got %.6f, want absent", label, got.Float64)
	}
}

func seriesFromCloses(t *testing.T, closes []float64) *types.CandleSeries {
	t.Helper()
	base := time.Date(2025, 10, 4, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		candles[i] = types.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   float64(10 + i),
		}
	}
	s, err := types.NewCandleSeries("BTCUSD", types.Minute1, "test", candles)
	if err != nil {
		t.Fatalf("NewCandleSeries: %v", err)
	}
	return s
}

func rampCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i%7) - float64(i%3)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Window2(t *testing.T) {
	got := SMA([]float64{100, 102, 101}, 2)

	assertAbsent(t, "SMA[0]", got[0])
	assertClose(t, "SMA[1]", got[1], 101.0, 1e-12)
	assertClose(t, "SMA[2]", got[2], 101.5, 1e-12)
}

func TestSMA_ShorterThanWindow(t *testing.T) {
	got := SMA([]float64{1, 2, 3}, 5)
	for _, v := range got {
		assertAbsent(t, "SMA", v)
	}
}

func TestSMA_NonPositiveWindow(t *testing.T) {
	for _, v := range SMA([]float64{1, 2, 3}, 0) {
		assertAbsent(t, "SMA(0)", v)
	}
}

// ────────────────────────────────────────────────────────────
// EMA / MACD
// ────────────────────────────────────────────────────────────

func TestEMA_SeededByFirstValue(t *testing.T) {
	// span=3 → alpha=0.5
	// 100 → 100
	// 102 → 0.5*102 + 0.5*100 = 101
	// 104 → 0.5*104 + 0.5*101 = 102.5
	// 103 → 0.5*103 + 0.5*102.5 = 102.75
	got := EMA([]float64{100, 102, 104, 103}, 3)
	want := []float64{100, 101, 102.5, 102.75}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-12)
	}
}

func TestEMA_Empty(t *testing.T) {
	if got := EMA(nil, 12); len(got) != 0 {
		t.Errorf("expected empty output, got %d values", len(got))
	}
}

func TestMACD_DefinedFromFirstCandle(t *testing.T) {
	closes := rampCloses(40)
	line, signal := MACD(closes, EMAFast, EMASlow, MACDSignalSpan)

	fast := EMA(closes, EMAFast)
	slow := EMA(closes, EMASlow)
	for i := range closes {
		assertClose(t, "MACD", line[i], fast[i].Float64-slow[i].Float64, 1e-12)
		if !signal[i].Valid {
			t.Fatalf("signal[%d] absent", i)
		}
	}
	// 第一根K线两条 EMA 都等于收盘价
	assertClose(t, "MACD[0]", line[0], 0, 1e-12)
	assertClose(t, "signal[0]", signal[0], 0, 1e-12)
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_ZeroLossIs100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i/2) // 非递减，含持平
	}
	got := RSI(closes, RSIWindow)

	for i := 0; i < RSIWindow-1; i++ {
		assertAbsent(t, "RSI leading", got[i])
	}
	for i := RSIWindow - 1; i < len(closes); i++ {
		v, ok := got[i].Get()
		if !ok || v != 100 || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("RSI[%d] = %v (valid=%v), want 100", i, v, ok)
		}
	}
}

func TestRSI_FlatSeriesIs100(t *testing.T) {
	closes := make([]float64, 14)
	for i := range closes {
		closes[i] = 50
	}
	got := RSI(closes, RSIWindow)
	assertClose(t, "RSI flat", got[13], 100, 0)
}

func TestRSI_KnownValue(t *testing.T) {
	// window=3, closes 10, 11, 10, 12
	// deltas (first counted as 0): 0, +1, -1, +2
	// i=2: gains 0,1,0 → 1/3 ; losses 0,0,1 → 1/3 ; RS=1 → RSI=50
	// i=3: gains 1,0,2 → 1   ; losses 0,1,0 → 1/3 ; RS=3 → RSI=75
	got := RSI([]float64{10, 11, 10, 12}, 3)
	assertAbsent(t, "RSI[0]", got[0])
	assertAbsent(t, "RSI[1]", got[1])
	assertClose(t, "RSI[2]", got[2], 50, 1e-9)
	assertClose(t, "RSI[3]", got[3], 75, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Bollinger
// ────────────────────────────────────────────────────────────

func TestBollinger_PopulationStdDev(t *testing.T) {
	// window=3 over 1,2,3: mean 2, population variance 2/3
	middle, upper, lower := Bollinger([]float64{1, 2, 3}, 3, 2)
	sd := math.Sqrt(2.0 / 3.0)

	assertAbsent(t, "middle[1]", middle[1])
	assertAbsent(t, "upper[1]", upper[1])
	assertClose(t, "middle[2]", middle[2], 2, 1e-12)
	assertClose(t, "upper[2]", upper[2], 2+2*sd, 1e-12)
	assertClose(t, "lower[2]", lower[2], 2-2*sd, 1e-12)
}

func TestBollinger_ConstantSeriesCollapses(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 42
	}
	middle, upper, lower := Bollinger(closes, BollingerWindow, BollingerWidth)
	assertClose(t, "middle", middle[24], 42, 0)
	assertClose(t, "upper", upper[24], 42, 0)
	assertClose(t, "lower", lower[24], 42, 0)
}

// ────────────────────────────────────────────────────────────
// Engine
// ────────────────────────────────────────────────────────────

func TestAnnotate_ShortSeriesLeavesWindowedAbsent(t *testing.T) {
	s := seriesFromCloses(t, rampCloses(19))
	out := NewEngine(nil).Annotate(s)

	for i, c := range out.Candles {
		ind := c.Indicators
		if ind == nil {
			t.Fatalf("candle %d has no indicators", i)
		}
		assertAbsent(t, "SMA20", ind.SMA20)
		assertAbsent(t, "BBUpper", ind.BBUpper)
		assertAbsent(t, "BBLower", ind.BBLower)
		assertAbsent(t, "VolumeSMA", ind.VolumeSMA)
		if !ind.EMA12.Valid || !ind.MACD.Valid || !ind.MACDSignal.Valid {
			t.Errorf("candle %d: EMA/MACD should be defined from the first candle", i)
		}
	}
}

func TestAnnotate_ExactlyTwentyDefinesOnlyLast(t *testing.T) {
	s := seriesFromCloses(t, rampCloses(20))
	out := NewEngine(nil).Annotate(s)

	for i, c := range out.Candles {
		ind := c.Indicators
		defined := i == 19
		if ind.SMA20.Valid != defined || ind.BBUpper.Valid != defined || ind.BBLower.Valid != defined || ind.BBMiddle.Valid != defined {
			t.Errorf("candle %d: SMA20/BB valid=%v/%v/%v, want %v", i, ind.SMA20.Valid, ind.BBUpper.Valid, ind.BBLower.Valid, defined)
		}
		assertAbsent(t, "SMA50", ind.SMA50)
		assertAbsent(t, "SMA200", ind.SMA200)
	}
	last := out.Candles[19].Indicators
	if last.SMA20 != last.BBMiddle {
		t.Errorf("BB middle %v should equal SMA20 %v", last.BBMiddle, last.SMA20)
	}
}

func TestAnnotate_Idempotent(t *testing.T) {
	s := seriesFromCloses(t, rampCloses(250))
	e := NewEngine(nil)

	first := e.Annotate(s)
	second := e.Annotate(s)
	again := e.Annotate(first)

	for i := range first.Candles {
		a, b, c := *first.Candles[i].Indicators, *second.Candles[i].Indicators, *again.Candles[i].Indicators
		if a != b || a != c {
			t.Fatalf("candle %d: indicators differ between runs:\n%+v\n%+v\n%+v", i, a, b, c)
		}
	}
	if !first.Candles[249].Indicators.SMA200.Valid {
		t.Error("SMA200 should be defined on the last candle of a 250-candle series")
	}
}

func TestAnnotate_DoesNotMutateInput(t *testing.T) {
	s := seriesFromCloses(t, rampCloses(30))
	_ = NewEngine(nil).Annotate(s)

	for i, c := range s.Candles {
		if c.Indicators != nil {
			t.Fatalf("input candle %d was annotated in place", i)
		}
	}
}

func TestAnnotate_EmptySeries(t *testing.T) {
	s, err := types.NewCandleSeries("BTCUSD", types.Hour1, "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	out := NewEngine(nil).Annotate(s)
	if out.Len() != 0 {
		t.Errorf("expected empty series, got %d candles", out.Len())
	}
}
