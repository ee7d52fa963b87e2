package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"btc-market-feed/pkg/types"
)

// SnapshotProvider 能提供实时价格的数据源
type SnapshotProvider interface {
	Name() string
	Snapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error)
}

// SeriesProvider 能提供历史K线的数据源
type SeriesProvider interface {
	Name() string
	Candles(ctx context.Context, pair types.AssetPair, g types.Granularity, count int) (*types.CandleSeries, error)
}

// 数据源名称
const (
	ProviderBinance       = "binance"
	ProviderCoinGecko     = "coingecko"
	ProviderCryptoCompare = "cryptocompare"
	ProviderOKX           = "okx"
)

// Registry 按名称创建数据源
type Registry struct {
	snapshot map[string]SnapshotProvider
	series   map[string]SeriesProvider
}

// NewRegistry 根据配置创建全部已知数据源，共用同一个HTTP客户端
func NewRegistry(sources types.SourcesConfig, client *http.Client) *Registry {
	binance := NewBinance(sources.BinanceURL, client)
	okx := NewOKX(sources.OKXURL, client)

	return &Registry{
		snapshot: map[string]SnapshotProvider{
			ProviderBinance:       binance,
			ProviderCoinGecko:     NewCoinGecko(sources.CoinGeckoURL, client),
			ProviderCryptoCompare: NewCryptoCompare(sources.CryptoCompareURL, client),
			ProviderOKX:           okx,
		},
		series: map[string]SeriesProvider{
			ProviderBinance: binance,
			ProviderOKX:     okx,
		},
	}
}

// SnapshotChain 按名称顺序组装实时价格回退链
func (r *Registry) SnapshotChain(names []string) ([]SnapshotProvider, error) {
	chain := make([]SnapshotProvider, 0, len(names))
	for _, name := range names {
		p, ok := r.snapshot[name]
		if !ok {
			return nil, fmt.Errorf("未知的实时价格数据源: %q", name)
		}
		chain = append(chain, p)
	}
	return chain, nil
}

// Series 按名称获取历史K线数据源
func (r *Registry) Series(name string) (SeriesProvider, error) {
	p, ok := r.series[name]
	if !ok {
		return nil, fmt.Errorf("未知的K线数据源: %q", name)
	}
	return p, nil
}
