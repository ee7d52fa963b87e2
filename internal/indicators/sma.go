package indicators

import (
	"math"

	"btc-market-feed/pkg/types"
)

// SMA 计算简单移动平均，前 window-1 个位置为无效值
func SMA(values []float64, window int) []types.NullFloat {
	out := make([]types.NullFloat, len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		out[i] = types.Some(mean(values[i-window+1 : i+1]))
	}
	return out
}

// RollingStdDev 滚动总体标准差（除以 n），前 window-1 个位置为无效值
func RollingStdDev(values []float64, window int) []types.NullFloat {
	out := make([]types.NullFloat, len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		out[i] = types.Some(stdDev(values[i-window+1 : i+1]))
	}
	return out
}

// 每个窗口重新求和而不是增量更新，保证同一输入得到逐位相同的结果
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	m := mean(values)
	sq := 0.0
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
