package fetcher

import (
	"errors"
	"fmt"
	"math"
	"time"

	"btc-market-feed/pkg/types"
	"github.com/shopspring/decimal"
)

// 没有24小时高低点的数据源按当前价 ±2% 估算
var (
	estimatedHighFactor = decimal.RequireFromString("1.02")
	estimatedLowFactor  = decimal.RequireFromString("0.98")
)

// EstimateRange 按当前价 ±2% 估算24小时最高/最低价
func EstimateRange(price float64) (high, low float64) {
	p := decimal.NewFromFloat(price)
	high, _ = p.Mul(estimatedHighFactor).Float64()
	low, _ = p.Mul(estimatedLowFactor).Float64()
	return high, low
}

// parseDecimal 解析交易所返回的十进制字符串
func parseDecimal(field, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("缺少字段 %s", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("解析%s失败: %v", field, err)
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%s超出数值范围: %s", field, s)
	}
	return f, nil
}

// msToTime 毫秒时间戳转换为 UTC 时间
func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// buildSeries 规范化K线序列，任何不合法的K线都按格式异常处理
func buildSeries(provider string, pair types.AssetPair, g types.Granularity, candles []types.Candle) (*types.CandleSeries, error) {
	series, err := types.NewCandleSeries(pair.Symbol(), g, provider, candles)
	if err != nil {
		if errors.Is(err, types.ErrInvalidCandle) {
			return nil, malformed(provider, "%v", err)
		}
		return nil, err
	}
	return series, nil
}

// usdStable 交易所以 USDT 报价 USD
func usdStable(quote string) string {
	if quote == "USD" {
		return "USDT"
	}
	return quote
}
