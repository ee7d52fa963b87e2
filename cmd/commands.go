package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btc-market-feed/internal/analyzer"
	"btc-market-feed/internal/archive"
	"btc-market-feed/internal/fetcher"
	"btc-market-feed/internal/forecast"
	"btc-market-feed/internal/indicators"
	"btc-market-feed/internal/metrics"
	"btc-market-feed/internal/scheduler"
	"btc-market-feed/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errReported 错误已经在控制台展示过，只需要以非零状态退出
var errReported = errors.New("已输出错误")

var (
	symbol         string
	granularity    string
	count          int
	withIndicators bool
	useAlternate   bool
	tail           int
	granularities  []string
	wake           bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "获取实时价格，首选数据源失败时按回退链依次尝试",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair, err := types.ParseAssetPair(symbol)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *App) error {
			s, err := app.resolver.FetchSnapshot(ctx, pair)
			if err != nil {
				app.console.Failure(err)
				return errReported
			}
			app.console.Snapshot(s, app.Primary())
			return nil
		})
	},
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "获取历史K线，可附带技术指标",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair, err := types.ParseAssetPair(symbol)
		if err != nil {
			return err
		}
		g, err := types.ParseGranularity(granularity)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *App) error {
			series, regionFallback, err := fetchSeries(ctx, app.resolver, pair, g, count, withIndicators, useAlternate)
			if err != nil {
				app.console.Failure(err)
				return errReported
			}
			app.console.Series(series, tail, regionFallback)
			return nil
		})
	},
}

// fetchSeries 首选数据源被地区限制且允许时，改用备用数据源
func fetchSeries(ctx context.Context, r *fetcher.Resolver, pair types.AssetPair, g types.Granularity, n int, indicators, alternate bool) (*types.CandleSeries, bool, error) {
	series, err := r.FetchSeries(ctx, pair, g, n, indicators)
	if err == nil {
		return series, false, nil
	}
	if !alternate || !errors.Is(err, fetcher.ErrRegionBlocked) {
		return nil, false, err
	}

	zap.L().Warn("⚠️ 首选数据源在当前地区不可用，改用备用数据源", zap.Error(err))
	series, altErr := r.FetchAlternateSeries(ctx, pair, g, n, indicators)
	if altErr != nil {
		return nil, false, fmt.Errorf("%v; 备用数据源: %w", err, altErr)
	}
	return series, true, nil
}

var multiCmd = &cobra.Command{
	Use:   "multi",
	Short: "依次获取多个周期的K线，单个周期失败不影响其他周期",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair, err := types.ParseAssetPair(symbol)
		if err != nil {
			return err
		}
		grans, err := parseGranularities(granularities)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *App) error {
			results := app.resolver.FetchMultiTimeframe(ctx, pair, grans)
			app.console.Timeframes(results)
			for _, r := range results {
				if r.Available() {
					return nil
				}
			}
			return errReported
		})
	},
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "查看预测服务状态与模型信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *App) error {
			var (
				health *forecast.HealthStatus
				err    error
			)
			if wake {
				health, err = app.forecast.Wake(ctx)
			} else {
				health, err = app.forecast.Health(ctx)
			}
			if err != nil {
				app.console.Failure(err)
				return errReported
			}

			info, err := app.forecast.ModelInfo(ctx)
			if err != nil {
				zap.L().Warn("⚠️ 获取模型信息失败", zap.Error(err))
			}
			app.console.Model(health, info)
			return nil
		})
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "通过 OKX WebSocket 订阅实时行情，断线自动重连",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair, err := types.ParseAssetPair(symbol)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *App) error {
			stream := fetcher.NewTickerStream(app.config.Stream, app.config.Network)
			err := stream.Run(ctx, pair, app.console.Tick)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "查看 watch 任务归档到 MySQL 的K线",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair, err := types.ParseAssetPair(symbol)
		if err != nil {
			return err
		}
		g, err := types.ParseGranularity(granularity)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, app *App) error {
			if !app.config.Database.MySQL.Enabled {
				return errors.New("未启用 database.mysql，没有归档数据")
			}
			store, err := openArchive(ctx, app.config.Database.MySQL)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := store.Candles(ctx, pair.Symbol(), g, count)
			if err != nil {
				return err
			}
			if s.Len() == 0 {
				zap.L().Warn("⚠️ 没有找到归档K线", zap.String("symbol", pair.Symbol()), zap.String("granularity", string(g)))
				return nil
			}
			app.console.Series(s, tail, false)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "按 cron 表达式定时刷新行情，可选归档到 MySQL 并暴露 Prometheus 指标",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(runWatch)
	},
}

func runWatch(ctx context.Context, app *App) error {
	watch := app.config.Watch
	opts, err := watchOptions(app, watch)
	if err != nil {
		return err
	}

	if app.config.Database.MySQL.Enabled {
		store, err := openArchive(ctx, app.config.Database.MySQL)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Recorder = store
	}

	if app.config.Metrics.Enabled {
		server := metrics.NewServer(app.config.Metrics.Listen, app.registry)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	s := scheduler.NewScheduler(ctx, app.resolver, opts)
	if err := s.Register(watch.Cron); err != nil {
		return err
	}

	s.RunNow()
	s.Start()
	zap.L().Info("✅ BTC Market Feed 已启动", zap.String("cron", watch.Cron))

	<-ctx.Done()
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	s.Stop()
	return nil
}

// watchOptions 按 watch 配置组装周期任务参数，归档由调用方按需添加
func watchOptions(app *App, watch types.WatchConfig) (scheduler.Options, error) {
	pair, err := types.ParseAssetPair(watch.Symbol)
	if err != nil {
		return scheduler.Options{}, err
	}
	grans, err := parseGranularities(watch.Granularities)
	if err != nil {
		return scheduler.Options{}, err
	}

	opts := scheduler.Options{
		Pair:           pair,
		Granularities:  grans,
		ArchiveCandles: watch.Candles,
		WithIndicators: watch.WithIndicators,
		Engine:         indicators.NewEngine(app.metrics),
		Console:        app.console,
		Sweep:          app.Sweep,
	}
	if watch.AlertThreshold > 0 {
		opts.Detector = analyzer.NewMoveDetector(watch.AlertThreshold, watch.AlertWindow, watch.AlertCooldown)
	}
	return opts, nil
}

// openArchive 连接归档库并确认可用，失败时不启动后续任务
func openArchive(ctx context.Context, config types.MySQLConfig) (*archive.Archive, error) {
	store, err := archive.Open(config)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Health(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("归档库不可用: %w", err)
	}
	return store, nil
}

func parseGranularities(in []string) ([]types.Granularity, error) {
	out := make([]types.Granularity, 0, len(in))
	for _, s := range in {
		g, err := types.ParseGranularity(s)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func init() {
	for _, c := range []*cobra.Command{snapshotCmd, seriesCmd, multiCmd, streamCmd, archivedCmd} {
		c.Flags().StringVarP(&symbol, "symbol", "s", "BTCUSD", "交易对，如 BTCUSD、ETH-USD")
	}

	seriesCmd.Flags().StringVarP(&granularity, "granularity", "g", "1h", "K线周期: 1m,5m,15m,1h,4h,1d")
	seriesCmd.Flags().IntVarP(&count, "count", "n", 200, "K线数量")
	seriesCmd.Flags().BoolVar(&withIndicators, "indicators", true, "计算技术指标")
	seriesCmd.Flags().BoolVar(&useAlternate, "alternate", false, "首选数据源被地区限制时改用备用数据源")
	seriesCmd.Flags().IntVar(&tail, "tail", 20, "只显示最新的K线数量，0 表示全部")

	archivedCmd.Flags().StringVarP(&granularity, "granularity", "g", "1h", "K线周期: 1m,5m,15m,1h,4h,1d")
	archivedCmd.Flags().IntVarP(&count, "count", "n", 200, "读取最新的K线数量")
	archivedCmd.Flags().IntVar(&tail, "tail", 20, "只显示最新的K线数量，0 表示全部")

	multiCmd.Flags().StringSliceVarP(&granularities, "granularities", "g", []string{"1m", "5m", "15m", "1h"}, "K线周期列表")

	modelCmd.Flags().BoolVar(&wake, "wake", false, "服务休眠时轮询等待其启动")
}
