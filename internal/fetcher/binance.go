package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"btc-market-feed/pkg/types"
	"go.uber.org/zap"
)

// Binance 单次 klines 请求的最大条数
const binanceMaxKlines = 1000

// Binance 首选数据源，同时提供实时价格与历史K线
type Binance struct {
	endpoint
}

// binanceTicker /ticker/24hr 响应
type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
}

// NewBinance 创建 Binance 数据源
func NewBinance(baseURL string, client *http.Client) *Binance {
	return &Binance{endpoint: newEndpoint(ProviderBinance, baseURL, client)}
}

func (b *Binance) Name() string { return ProviderBinance }

func binanceSymbol(pair types.AssetPair) string {
	return pair.Base + usdStable(pair.Quote)
}

// Snapshot 获取24小时行情
func (b *Binance) Snapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error) {
	var ticker binanceTicker
	query := url.Values{"symbol": {binanceSymbol(pair)}}
	if err := b.get(ctx, "/ticker/24hr", query, &ticker); err != nil {
		return nil, err
	}

	raw := [...]struct{ name, value string }{
		{"lastPrice", ticker.LastPrice},
		{"priceChange", ticker.PriceChange},
		{"priceChangePercent", ticker.PriceChangePercent},
		{"highPrice", ticker.HighPrice},
		{"lowPrice", ticker.LowPrice},
		{"volume", ticker.Volume},
	}
	var values [6]float64
	for i, f := range raw {
		v, err := parseDecimal(f.name, f.value)
		if err != nil {
			return nil, malformed(b.name, "%v", err)
		}
		values[i] = v
	}
	if values[0] <= 0 {
		return nil, malformed(b.name, "lastPrice 非正: %s", ticker.LastPrice)
	}

	return &types.PriceSnapshot{
		Symbol:        pair.Symbol(),
		Price:         values[0],
		Change24h:     types.Some(values[1]),
		ChangePercent: values[2],
		High24h:       values[3],
		Low24h:        values[4],
		Volume:        values[5],
		Timestamp:     b.now(),
		Source:        b.name,
	}, nil
}

// Candles 获取最近 count 根K线，按开盘时间升序返回
func (b *Binance) Candles(ctx context.Context, pair types.AssetPair, g types.Granularity, count int) (*types.CandleSeries, error) {
	if count <= 0 || count > binanceMaxKlines {
		return nil, fmt.Errorf("%w: binance 单次最多 %d 根K线，请求 %d", ErrInvalidRequest, binanceMaxKlines, count)
	}

	query := url.Values{
		"symbol":   {binanceSymbol(pair)},
		"interval": {string(g)},
		"limit":    {strconv.Itoa(count)},
	}

	// 每根K线12个字段: [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := b.get(ctx, "/klines", query, &rows); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseBinanceKline(row)
		if err != nil {
			return nil, malformed(b.name, "第%d根K线: %v", i, err)
		}
		candles = append(candles, candle)
	}

	zap.L().Debug("📊 Binance K线获取完成",
		zap.String("symbol", pair.Symbol()),
		zap.String("interval", string(g)),
		zap.Int("requested", count),
		zap.Int("received", len(candles)))

	return buildSeries(b.name, pair, g, candles)
}

func parseBinanceKline(row []json.RawMessage) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("K线字段数量不足: %d", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return types.Candle{}, fmt.Errorf("解析开盘时间失败: %v", err)
	}

	names := [...]string{"open", "high", "low", "close", "volume"}
	var values [5]float64
	for i, name := range names {
		var raw string
		if err := json.Unmarshal(row[i+1], &raw); err != nil {
			return types.Candle{}, fmt.Errorf("解析%s失败: %v", name, err)
		}
		v, err := parseDecimal(name, raw)
		if err != nil {
			return types.Candle{}, err
		}
		values[i] = v
	}

	return types.Candle{
		OpenTime: msToTime(openTime),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}
