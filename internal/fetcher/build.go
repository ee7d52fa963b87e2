package fetcher

import (
	"btc-market-feed/internal/cache"
	"btc-market-feed/internal/indicators"
	"btc-market-feed/internal/metrics"
	"btc-market-feed/pkg/types"
	"go.uber.org/zap"
)

// BuildResolver 按配置组装数据源与回退链
func BuildResolver(cfg *types.Config, c *cache.Cache, m *metrics.Metrics) (*Resolver, error) {
	registry := NewRegistry(cfg.Sources, NewHTTPClient(cfg.Network))

	chain, err := registry.SnapshotChain(cfg.Sources.SnapshotChain)
	if err != nil {
		return nil, err
	}
	primary, err := registry.Series(ProviderBinance)
	if err != nil {
		return nil, err
	}

	var alternate SeriesProvider
	if cfg.Sources.SeriesAlternate != "" {
		alternate, err = registry.Series(cfg.Sources.SeriesAlternate)
		if err != nil {
			return nil, err
		}
	}

	resolver, err := NewResolver(Options{
		Chain:          chain,
		Series:         primary,
		Alternate:      alternate,
		Engine:         indicators.NewEngine(m),
		Cache:          c,
		Metrics:        m,
		SnapshotTTL:    cfg.Cache.SnapshotTTL,
		SeriesTTL:      cfg.Cache.SeriesTTL,
		MaxCandles:     cfg.Sources.MaxCandles,
		RequestSpacing: cfg.Sources.RequestSpacing,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("✅ 数据源回退链已就绪",
		zap.Strings("chain", resolver.Providers()),
		zap.String("series", primary.Name()),
		zap.String("alternate", cfg.Sources.SeriesAlternate))
	return resolver, nil
}
