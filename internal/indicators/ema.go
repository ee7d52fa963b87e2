package indicators

import "btc-market-feed/pkg/types"

// EMA 递推指数移动平均（adjust=false）：alpha = 2/(span+1)，以第一个值为种子，从第一根K线起即有值
func EMA(values []float64, span int) []types.NullFloat {
	out := make([]types.NullFloat, len(values))
	if span <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	prev := values[0]
	out[0] = types.Some(prev)
	for i := 1; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = types.Some(prev)
	}
	return out
}

// MACD 返回 MACD 线（EMA(fast) - EMA(slow)）及其信号线（MACD 线的 EMA(signal)）
func MACD(closes []float64, fast, slow, signal int) (line, signalLine []types.NullFloat) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line = make([]types.NullFloat, len(closes))
	raw := make([]float64, 0, len(closes))
	for i := range closes {
		f, okFast := fastEMA[i].Get()
		s, okSlow := slowEMA[i].Get()
		if !okFast || !okSlow {
			continue
		}
		line[i] = types.Some(f - s)
		raw = append(raw, f-s)
	}

	// 两条 EMA 都从第一根K线起有值，因此 raw 与 closes 一一对应
	if len(raw) != len(closes) {
		return line, make([]types.NullFloat, len(closes))
	}
	return line, EMA(raw, signal)
}
