package indicators

import (
	"time"

	"btc-market-feed/internal/metrics"
	"btc-market-feed/pkg/types"
)

// 固定的指标参数
const (
	SMAShort        = 20
	SMAMedium       = 50
	SMALong         = 200
	EMAFast         = 12
	EMASlow         = 26
	MACDSignalSpan  = 9
	RSIWindow       = 14
	BollingerWindow = 20
	BollingerWidth  = 2.0
	VolumeSMAWindow = 20
)

// Engine 技术指标计算引擎，纯计算，不做任何 I/O
type Engine struct {
	metrics *metrics.Metrics
}

// NewEngine 创建指标引擎，m 可以为 nil
func NewEngine(m *metrics.Metrics) *Engine {
	return &Engine{metrics: m}
}

// Annotate 返回附加了指标的序列副本，不修改传入的序列
func (e *Engine) Annotate(series *types.CandleSeries) *types.CandleSeries {
	start := time.Now()
	out := series.Clone()

	closes := out.Closes()
	volumes := out.Volumes()

	sma20 := SMA(closes, SMAShort)
	sma50 := SMA(closes, SMAMedium)
	sma200 := SMA(closes, SMALong)
	ema12 := EMA(closes, EMAFast)
	ema26 := EMA(closes, EMASlow)
	macd, signal := MACD(closes, EMAFast, EMASlow, MACDSignalSpan)
	rsi := RSI(closes, RSIWindow)
	bbMiddle, bbUpper, bbLower := Bollinger(closes, BollingerWindow, BollingerWidth)
	volumeSMA := SMA(volumes, VolumeSMAWindow)

	for i := range out.Candles {
		out.Candles[i].Indicators = &types.IndicatorSet{
			SMA20:      sma20[i],
			SMA50:      sma50[i],
			SMA200:     sma200[i],
			EMA12:      ema12[i],
			EMA26:      ema26[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
			RSI:        rsi[i],
			BBMiddle:   bbMiddle[i],
			BBUpper:    bbUpper[i],
			BBLower:    bbLower[i],
			VolumeSMA:  volumeSMA[i],
		}
	}

	e.metrics.ObserveIndicators(time.Since(start))
	return out
}
