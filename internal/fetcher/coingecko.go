package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"btc-market-feed/pkg/types"
)

// CoinGecko 第二顺位数据源，只提供价格、24小时涨跌幅与成交额
type CoinGecko struct {
	endpoint
}

// CoinGecko 使用币种ID而不是交易代码
var coinGeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// coinGeckoQuote /simple/price 中单个币种的报价，字段可能缺失
type coinGeckoQuote map[string]*float64

// NewCoinGecko 创建 CoinGecko 数据源
func NewCoinGecko(baseURL string, client *http.Client) *CoinGecko {
	return &CoinGecko{endpoint: newEndpoint(ProviderCoinGecko, baseURL, client)}
}

func (c *CoinGecko) Name() string { return ProviderCoinGecko }

// Snapshot 获取简单报价，最高/最低价按 ±2% 估算，24小时涨跌额缺失
func (c *CoinGecko) Snapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error) {
	id, ok := coinGeckoIDs[pair.Base]
	if !ok {
		return nil, unavailable(c.name, 0, &unsupportedAssetError{asset: pair.Base})
	}
	vs := strings.ToLower(pair.Quote)
	if vs == "usdt" || vs == "usdc" {
		vs = "usd"
	}

	query := url.Values{
		"ids":                 {id},
		"vs_currencies":       {vs},
		"include_24hr_change": {"true"},
		"include_24hr_vol":    {"true"},
	}

	var body map[string]coinGeckoQuote
	if err := c.get(ctx, "/simple/price", query, &body); err != nil {
		return nil, err
	}

	quote, ok := body[id]
	if !ok {
		return nil, malformed(c.name, "响应中缺少 %s", id)
	}
	price := quote[vs]
	if price == nil || *price <= 0 {
		return nil, malformed(c.name, "响应中缺少 %s 价格", vs)
	}

	snapshot := &types.PriceSnapshot{
		Symbol:    pair.Symbol(),
		Price:     *price,
		Timestamp: c.now(),
		Source:    c.name,
		Estimated: true,
	}
	snapshot.High24h, snapshot.Low24h = EstimateRange(*price)
	if pct := quote[vs+"_24h_change"]; pct != nil {
		snapshot.ChangePercent = *pct
	}
	// 成交额以计价货币为单位，换算为基础币种数量
	if vol := quote[vs+"_24h_vol"]; vol != nil {
		snapshot.Volume = *vol / *price
	}
	return snapshot, nil
}

type unsupportedAssetError struct {
	asset string
}

func (e *unsupportedAssetError) Error() string {
	return "不支持的币种: " + e.asset
}
