package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"btc-market-feed/pkg/types"
	"go.uber.org/zap"
)

const (
	// okxPageLimit history-candles 单页最大条数
	okxPageLimit = 100
	// okxPageSpacing 限速 10次/2s，所以每页请求间隔200毫秒
	okxPageSpacing = 200 * time.Millisecond
)

// OKX 备用历史K线数据源，也可以加入实时价格回退链
type OKX struct {
	endpoint
	sleep func(ctx context.Context, d time.Duration) error
}

// okxResponse OKX v5 统一响应格式
type okxResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type okxTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	Open24h string `json:"open24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	TS      string `json:"ts"`
}

// OKX 的K线周期写法
var okxBars = map[types.Granularity]string{
	types.Minute1:  "1m",
	types.Minute5:  "5m",
	types.Minute15: "15m",
	types.Hour1:    "1H",
	types.Hour4:    "4H",
	types.Day1:     "1Dutc",
}

// NewOKX 创建 OKX 数据源
func NewOKX(baseURL string, client *http.Client) *OKX {
	return &OKX{
		endpoint: newEndpoint(ProviderOKX, baseURL, client),
		sleep:    sleepCtx,
	}
}

func (o *OKX) Name() string { return ProviderOKX }

func okxInstID(pair types.AssetPair) string {
	return pair.Base + "-" + usdStable(pair.Quote)
}

// fetchOKX 请求并检查 OKX 返回码
func fetchOKX[T any](ctx context.Context, o *OKX, path string, query url.Values) ([]T, error) {
	var resp okxResponse[T]
	if err := o.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, malformed(o.name, "OKX API返回错误: code=%s, msg=%s", resp.Code, resp.Msg)
	}
	return resp.Data, nil
}

// Snapshot 获取单个产品行情
func (o *OKX) Snapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error) {
	data, err := fetchOKX[okxTicker](ctx, o, "/ticker", url.Values{"instId": {okxInstID(pair)}})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, malformed(o.name, "行情数据为空")
	}
	return okxSnapshot(o.name, pair, data[0], o.now())
}

// okxSnapshot 把 OKX 行情转换为实时价格，24小时涨跌按 last - open24h 计算
func okxSnapshot(provider string, pair types.AssetPair, t okxTicker, ts time.Time) (*types.PriceSnapshot, error) {
	raw := [...]struct{ name, value string }{
		{"last", t.Last},
		{"open24h", t.Open24h},
		{"high24h", t.High24h},
		{"low24h", t.Low24h},
		{"vol24h", t.Vol24h},
	}
	var values [5]float64
	for i, f := range raw {
		v, err := parseDecimal(f.name, f.value)
		if err != nil {
			return nil, malformed(provider, "%v", err)
		}
		values[i] = v
	}

	last, open := values[0], values[1]
	if last <= 0 {
		return nil, malformed(provider, "last 非正: %s", t.Last)
	}
	snapshot := &types.PriceSnapshot{
		Symbol:    pair.Symbol(),
		Price:     last,
		Change24h: types.Some(last - open),
		High24h:   values[2],
		Low24h:    values[3],
		Volume:    values[4],
		Timestamp: ts,
		Source:    provider,
	}
	if open != 0 {
		snapshot.ChangePercent = (last - open) / open * 100
	}
	return snapshot, nil
}

// Candles 分页获取最近 count 根K线，OKX 按从新到旧返回，用 after 游标向更早翻页
func (o *OKX) Candles(ctx context.Context, pair types.AssetPair, g types.Granularity, count int) (*types.CandleSeries, error) {
	bar, ok := okxBars[g]
	if !ok {
		return nil, fmt.Errorf("%w: okx 不支持周期 %s", ErrInvalidRequest, g)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: K线数量必须为正数", ErrInvalidRequest)
	}

	instID := okxInstID(pair)
	candles := make([]types.Candle, 0, count)
	after := ""

	for page := 0; len(candles) < count; page++ {
		if page > 0 {
			if err := o.sleep(ctx, okxPageSpacing); err != nil {
				return nil, unavailable(o.name, 0, err)
			}
		}

		limit := count - len(candles)
		if limit > okxPageLimit {
			limit = okxPageLimit
		}
		query := url.Values{
			"instId": {instID},
			"bar":    {bar},
			"limit":  {strconv.Itoa(limit)},
		}
		if after != "" {
			query.Set("after", after)
		}

		// K线格式: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
		rows, err := fetchOKX[[]string](ctx, o, "/history-candles", query)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			candle, err := parseOKXCandle(row)
			if err != nil {
				return nil, malformed(o.name, "第%d页第%d根K线: %v", page, i, err)
			}
			candles = append(candles, candle)
		}

		if len(rows) < limit {
			break
		}
		after = rows[len(rows)-1][0]
	}

	zap.L().Debug("📊 OKX 历史K线获取完成",
		zap.String("instId", instID),
		zap.String("bar", bar),
		zap.Int("requested", count),
		zap.Int("received", len(candles)))

	return buildSeries(o.name, pair, g, candles)
}

func parseOKXCandle(row []string) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("K线字段数量不足: %d", len(row))
	}

	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return types.Candle{}, fmt.Errorf("解析时间戳失败: %v", err)
	}

	names := [...]string{"open", "high", "low", "close", "volume"}
	var values [5]float64
	for i, name := range names {
		v, err := parseDecimal(name, row[i+1])
		if err != nil {
			return types.Candle{}, err
		}
		values[i] = v
	}

	return types.Candle{
		OpenTime: msToTime(ts),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}
