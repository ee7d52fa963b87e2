package indicators

import "btc-market-feed/pkg/types"

// RSI 相对强弱指标：window 内平均涨幅 / 平均跌幅，换算为 100 - 100/(1+RS)。
// 第一根K线没有前值，其涨跌幅按 0 计入窗口，因此从第 window 根K线起有值。
// 平均跌幅为 0 时 RSI 记为 100。
func RSI(closes []float64, window int) []types.NullFloat {
	out := make([]types.NullFloat, len(closes))
	if window <= 0 {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	for i := window - 1; i < len(closes); i++ {
		avgGain := mean(gains[i-window+1 : i+1])
		avgLoss := mean(losses[i-window+1 : i+1])
		if avgLoss == 0 {
			out[i] = types.Some(100)
			continue
		}
		rs := avgGain / avgLoss
		out[i] = types.Some(100 - 100/(1+rs))
	}
	return out
}
