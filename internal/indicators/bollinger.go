package indicators

import "btc-market-feed/pkg/types"

// Bollinger 布林带：中轨为 SMA(window)，上下轨为中轨 ± width 倍滚动总体标准差
func Bollinger(closes []float64, window int, width float64) (middle, upper, lower []types.NullFloat) {
	middle = SMA(closes, window)
	std := RollingStdDev(closes, window)

	upper = make([]types.NullFloat, len(closes))
	lower = make([]types.NullFloat, len(closes))
	for i := range closes {
		m, okMid := middle[i].Get()
		s, okStd := std[i].Get()
		if !okMid || !okStd {
			continue
		}
		upper[i] = types.Some(m + width*s)
		lower[i] = types.Some(m - width*s)
	}
	return middle, upper, lower
}
