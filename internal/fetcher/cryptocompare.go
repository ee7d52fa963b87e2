package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"btc-market-feed/pkg/types"
)

// CryptoCompare 最后顺位数据源
type CryptoCompare struct {
	endpoint
}

type cryptoCompareRaw struct {
	Price           *float64 `json:"PRICE"`
	Change24Hour    *float64 `json:"CHANGE24HOUR"`
	ChangePct24Hour *float64 `json:"CHANGEPCT24HOUR"`
	High24Hour      *float64 `json:"HIGH24HOUR"`
	Low24Hour       *float64 `json:"LOW24HOUR"`
	Volume24Hour    *float64 `json:"VOLUME24HOUR"`
}

// cryptoCompareResponse /pricemultifull 响应，出错时 Response 为 "Error"
type cryptoCompareResponse struct {
	Response string                                 `json:"Response"`
	Message  string                                 `json:"Message"`
	Raw      map[string]map[string]cryptoCompareRaw `json:"RAW"`
}

// NewCryptoCompare 创建 CryptoCompare 数据源
func NewCryptoCompare(baseURL string, client *http.Client) *CryptoCompare {
	return &CryptoCompare{endpoint: newEndpoint(ProviderCryptoCompare, baseURL, client)}
}

func (c *CryptoCompare) Name() string { return ProviderCryptoCompare }

// Snapshot 获取完整行情
func (c *CryptoCompare) Snapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error) {
	query := url.Values{
		"fsyms": {pair.Base},
		"tsyms": {pair.Quote},
	}

	var body cryptoCompareResponse
	if err := c.get(ctx, "/pricemultifull", query, &body); err != nil {
		return nil, err
	}
	if body.Response == "Error" {
		return nil, malformed(c.name, "接口返回错误: %s", body.Message)
	}

	raw, ok := body.Raw[pair.Base][pair.Quote]
	if !ok {
		return nil, malformed(c.name, "响应中缺少 RAW.%s.%s", pair.Base, pair.Quote)
	}
	if raw.Price == nil || *raw.Price <= 0 {
		return nil, malformed(c.name, "响应中缺少 PRICE")
	}

	snapshot := &types.PriceSnapshot{
		Symbol:    pair.Symbol(),
		Price:     *raw.Price,
		Timestamp: c.now(),
		Source:    c.name,
	}
	if raw.Change24Hour != nil {
		snapshot.Change24h = types.Some(*raw.Change24Hour)
	}
	if raw.ChangePct24Hour != nil {
		snapshot.ChangePercent = *raw.ChangePct24Hour
	}
	if raw.High24Hour != nil && raw.Low24Hour != nil {
		snapshot.High24h = *raw.High24Hour
		snapshot.Low24h = *raw.Low24Hour
	} else {
		snapshot.High24h, snapshot.Low24h = EstimateRange(*raw.Price)
		snapshot.Estimated = true
	}
	if raw.Volume24Hour != nil {
		snapshot.Volume = *raw.Volume24Hour
	}
	return snapshot, nil
}
