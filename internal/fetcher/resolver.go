package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"btc-market-feed/internal/cache"
	"btc-market-feed/internal/indicators"
	"btc-market-feed/internal/metrics"
	"btc-market-feed/pkg/types"
	"go.uber.org/zap"
)

// 缓存命名空间
const (
	NamespaceSnapshot = "snapshot"
	NamespaceSeries   = "series"
)

const (
	// DefaultMaxCandles 首选数据源单次最多返回的K线数量
	DefaultMaxCandles = binanceMaxKlines
	// DefaultRequestSpacing 多周期批量获取时两次请求之间的最小间隔
	DefaultRequestSpacing = 100 * time.Millisecond
)

// DefaultTimeframes 未指定周期时多周期获取使用的周期
var DefaultTimeframes = []types.Granularity{types.Minute1, types.Minute5, types.Minute15, types.Hour1}

// DefaultCandleCount 多周期获取时每个周期的K线数量，日线取一年
func DefaultCandleCount(g types.Granularity) int {
	if g == types.Day1 {
		return 365
	}
	return 500
}

// Options 回退链解析器的依赖与参数
type Options struct {
	Chain     []SnapshotProvider // 实时价格回退链，按优先级排列
	Series    SeriesProvider     // 历史K线首选数据源
	Alternate SeriesProvider     // 备用历史K线数据源，可为空
	Engine    *indicators.Engine
	Cache     *cache.Cache // 为空时不缓存
	Metrics   *metrics.Metrics

	SnapshotTTL    time.Duration
	SeriesTTL      time.Duration
	MaxCandles     int
	RequestSpacing time.Duration
}

// Resolver 按优先级依次尝试数据源，返回第一个成功的结果并标注来源
type Resolver struct {
	chain     []SnapshotProvider
	series    SeriesProvider
	alternate SeriesProvider
	engine    *indicators.Engine
	cache     *cache.Cache
	metrics   *metrics.Metrics

	snapshotTTL time.Duration
	seriesTTL   time.Duration
	maxCandles  int
	spacing     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// TimeframeResult 多周期获取中单个周期的结果，Err 非空表示该周期不可用
type TimeframeResult struct {
	Series *types.CandleSeries
	Err    error
}

// Available 该周期是否获取成功
func (r TimeframeResult) Available() bool {
	return r.Err == nil && r.Series != nil
}

// NewResolver 创建回退链解析器
func NewResolver(opts Options) (*Resolver, error) {
	if len(opts.Chain) == 0 {
		return nil, errors.New("实时价格回退链不能为空")
	}
	if opts.Series == nil {
		return nil, errors.New("未配置历史K线数据源")
	}
	if opts.Engine == nil {
		opts.Engine = indicators.NewEngine(opts.Metrics)
	}
	if opts.MaxCandles <= 0 {
		opts.MaxCandles = DefaultMaxCandles
	}
	if opts.RequestSpacing < 0 {
		opts.RequestSpacing = 0
	}

	return &Resolver{
		chain:       opts.Chain,
		series:      opts.Series,
		alternate:   opts.Alternate,
		engine:      opts.Engine,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		snapshotTTL: opts.SnapshotTTL,
		seriesTTL:   opts.SeriesTTL,
		maxCandles:  opts.MaxCandles,
		spacing:     opts.RequestSpacing,
		sleep:       sleepCtx,
	}, nil
}

// Providers 实时价格回退链上的数据源名称
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.chain))
	for i, p := range r.chain {
		names[i] = p.Name()
	}
	return names
}

// FetchSnapshot 依次尝试回退链上的数据源，第一个成功的结果即返回，后续数据源不会被请求。
// 全部失败时返回 *ExhaustedError。
func (r *Resolver) FetchSnapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error) {
	return cache.Remember(ctx, r.cache, NamespaceSnapshot, pair.Symbol(), r.snapshotTTL,
		func(ctx context.Context) (*types.PriceSnapshot, error) {
			return r.resolveSnapshot(ctx, pair)
		})
}

func (r *Resolver) resolveSnapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error) {
	attempts := make([]Attempt, 0, len(r.chain))
	for _, p := range r.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var snapshot *types.PriceSnapshot
		err := r.observe(p.Name(), func() error {
			var err error
			snapshot, err = p.Snapshot(ctx, pair)
			return err
		})
		if err == nil {
			if len(attempts) > 0 {
				zap.L().Info("✅ 已切换到备用数据源",
					zap.String("symbol", pair.Symbol()),
					zap.String("source", p.Name()),
					zap.Int("failed", len(attempts)))
			}
			return snapshot, nil
		}
		attempts = append(attempts, Attempt{Provider: p.Name(), Err: err})
	}

	r.metrics.IncExhausted()
	exhausted := &ExhaustedError{Attempts: attempts}
	zap.L().Error("❌ 所有价格数据源均失败",
		zap.String("symbol", pair.Symbol()),
		zap.Strings("reasons", exhausted.Reasons()))
	return nil, exhausted
}

// FetchSeries 从首选数据源获取历史K线，不做自动回退。
// 首选数据源返回 HTTP 451 时错误满足 errors.Is(err, ErrRegionBlocked)，调用方可改用 FetchAlternateSeries。
func (r *Resolver) FetchSeries(ctx context.Context, pair types.AssetPair, g types.Granularity, count int, withIndicators bool) (*types.CandleSeries, error) {
	return r.fetchSeriesFrom(ctx, r.series, pair, g, count, withIndicators)
}

// FetchAlternateSeries 从备用数据源获取历史K线
func (r *Resolver) FetchAlternateSeries(ctx context.Context, pair types.AssetPair, g types.Granularity, count int, withIndicators bool) (*types.CandleSeries, error) {
	if r.alternate == nil {
		return nil, ErrNoAlternate
	}
	return r.fetchSeriesFrom(ctx, r.alternate, pair, g, count, withIndicators)
}

func (r *Resolver) fetchSeriesFrom(ctx context.Context, p SeriesProvider, pair types.AssetPair, g types.Granularity, count int, withIndicators bool) (*types.CandleSeries, error) {
	if err := r.validateSeriesRequest(g, count); err != nil {
		return nil, err
	}

	key := seriesKey(p.Name(), pair, g, count, withIndicators)
	return cache.Remember(ctx, r.cache, NamespaceSeries, key, r.seriesTTL,
		func(ctx context.Context) (*types.CandleSeries, error) {
			series, err := r.candles(ctx, p, pair, g, count)
			if err != nil {
				return nil, err
			}
			if withIndicators {
				series = r.engine.Annotate(series)
			}
			return series, nil
		})
}

// FetchMultiTimeframe 依次获取多个周期的K线，每次请求之间至少间隔 RequestSpacing。
// 单个周期失败不影响其他周期，结果中包含每个请求的周期。
func (r *Resolver) FetchMultiTimeframe(ctx context.Context, pair types.AssetPair, granularities []types.Granularity) map[types.Granularity]TimeframeResult {
	if len(granularities) == 0 {
		granularities = DefaultTimeframes
	}

	results := make(map[types.Granularity]TimeframeResult, len(granularities))
	requested := 0
	for _, g := range granularities {
		if _, done := results[g]; done {
			continue
		}

		count := DefaultCandleCount(g)
		if count > r.maxCandles {
			count = r.maxCandles
		}
		if err := r.validateSeriesRequest(g, count); err != nil {
			results[g] = TimeframeResult{Err: err}
			continue
		}

		if requested > 0 {
			if err := r.sleep(ctx, r.spacing); err != nil {
				results[g] = TimeframeResult{Err: unavailable(r.series.Name(), 0, err)}
				continue
			}
		}
		requested++

		series, err := r.candles(ctx, r.series, pair, g, count)
		if err != nil {
			zap.L().Warn("⚠️ 周期K线获取失败",
				zap.String("symbol", pair.Symbol()),
				zap.String("granularity", string(g)),
				zap.Error(err))
			results[g] = TimeframeResult{Err: err}
			continue
		}
		results[g] = TimeframeResult{Series: series}
	}
	return results
}

// CurrentBitcoinPrice 获取 BTC/USD 实时价格
func (r *Resolver) CurrentBitcoinPrice(ctx context.Context) (*types.PriceSnapshot, error) {
	return r.FetchSnapshot(ctx, types.BTCUSD)
}

// BitcoinSeries 获取 BTC/USD 历史K线
func (r *Resolver) BitcoinSeries(ctx context.Context, g types.Granularity, count int, withIndicators bool) (*types.CandleSeries, error) {
	return r.FetchSeries(ctx, types.BTCUSD, g, count, withIndicators)
}

func (r *Resolver) validateSeriesRequest(g types.Granularity, count int) error {
	if _, err := types.ParseGranularity(string(g)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if count < 1 || count > r.maxCandles {
		return fmt.Errorf("%w: K线数量必须在 1 到 %d 之间，当前为 %d", ErrInvalidRequest, r.maxCandles, count)
	}
	return nil
}

func (r *Resolver) candles(ctx context.Context, p SeriesProvider, pair types.AssetPair, g types.Granularity, count int) (*types.CandleSeries, error) {
	var series *types.CandleSeries
	err := r.observe(p.Name(), func() error {
		var err error
		series, err = p.Candles(ctx, pair, g, count)
		return err
	})
	return series, err
}

// observe 记录单次数据源请求的耗时与结果，并把错误归一为 ProviderError
func (r *Resolver) observe(provider string, call func() error) error {
	start := time.Now()
	err := call()
	elapsed := time.Since(start)

	if err == nil {
		r.metrics.ObserveProvider(provider, metrics.OutcomeOK, elapsed)
		return nil
	}
	if errors.Is(err, ErrInvalidRequest) {
		return err
	}

	pe := asProviderError(provider, err)
	switch {
	case errors.Is(pe, ErrRegionBlocked):
		r.metrics.ObserveProvider(provider, metrics.OutcomeRegionBlocked, elapsed)
		zap.L().Warn("⚠️ 数据源在当前地区不可用",
			zap.String("provider", provider),
			zap.Int("status", pe.StatusCode))
	case errors.Is(pe, ErrMalformedResponse):
		// 格式异常通常意味着上游接口变更，单独记录以便告警
		r.metrics.ObserveProvider(provider, metrics.OutcomeMalformed, elapsed)
		zap.L().Error("❌ 数据源返回格式异常",
			zap.String("provider", provider),
			zap.String("kind", "malformed_response"),
			zap.Error(pe))
	default:
		r.metrics.ObserveProvider(provider, metrics.OutcomeUnavailable, elapsed)
		zap.L().Warn("⚠️ 数据源请求失败",
			zap.String("provider", provider),
			zap.Int("status", pe.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.Error(pe))
	}
	return pe
}

func seriesKey(provider string, pair types.AssetPair, g types.Granularity, count int, withIndicators bool) string {
	return provider + ":" + pair.Symbol() + ":" + string(g) + ":" + strconv.Itoa(count) + ":" + strconv.FormatBool(withIndicators)
}

// sleepCtx 等待 d，ctx 取消时提前返回
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
