package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"btc-market-feed/internal/analyzer"
	"btc-market-feed/internal/fetcher"
	"btc-market-feed/internal/indicators"
	"btc-market-feed/internal/notifier"
	"btc-market-feed/pkg/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MarketSource 周期任务需要的行情接口，由 *fetcher.Resolver 实现
type MarketSource interface {
	FetchSnapshot(ctx context.Context, pair types.AssetPair) (*types.PriceSnapshot, error)
	FetchMultiTimeframe(ctx context.Context, pair types.AssetPair, granularities []types.Granularity) map[types.Granularity]fetcher.TimeframeResult
	Providers() []string
}

// Recorder 行情归档，由 *archive.Archive 实现
type Recorder interface {
	SaveSnapshot(ctx context.Context, s *types.PriceSnapshot) error
	SaveSeries(ctx context.Context, s *types.CandleSeries) error
}

// Options 周期任务参数
type Options struct {
	Pair           types.AssetPair
	Granularities  []types.Granularity
	ArchiveCandles int  // 每个周期归档最新的K线数量，不为正时归档全部
	WithIndicators bool // 归档和展示前计算技术指标

	Engine   *indicators.Engine
	Detector *analyzer.MoveDetector // 为空时不检测价格异动
	Recorder Recorder               // 为空时不归档
	Console  *notifier.Console      // 为空时只写日志
	Sweep    func() int             // 清理过期缓存，可为空
}

// Scheduler 按 cron 表达式定时刷新行情
type Scheduler struct {
	cron   *cron.Cron
	source MarketSource
	opts   Options
	ctx    context.Context

	mu      sync.Mutex // 保证同一时间只有一轮刷新
	lastRun TickReport
}

// TickReport 一轮刷新的结果
type TickReport struct {
	At          time.Time
	Snapshot    *types.PriceSnapshot
	SnapshotErr error
	Alert       *analyzer.Alert
	Available   int
	Unavailable int
	Archived    int
}

// NewScheduler 创建周期任务
func NewScheduler(ctx context.Context, source MarketSource, opts Options) *Scheduler {
	if opts.Engine == nil {
		opts.Engine = indicators.NewEngine(nil)
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		source: source,
		opts:   opts,
		ctx:    ctx,
	}
}

// Register 按带秒的 cron 表达式注册刷新任务
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow() }); err != nil {
		return fmt.Errorf("注册刷新任务失败: %w", err)
	}
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("🚀 调度器已启动",
		zap.String("symbol", s.opts.Pair.Symbol()),
		zap.Int("timeframes", len(s.opts.Granularities)))
}

// Stop 停止调度器并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("📴 调度器已停止")
}

// LastRun 最近一轮刷新的结果
func (s *Scheduler) LastRun() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// RunNow 立即执行一轮刷新：实时价格、多周期K线、可选的指标计算与归档
func (s *Scheduler) RunNow() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.ctx
	report := TickReport{At: time.Now()}
	zap.L().Info("--- 行情刷新任务 ---", zap.String("symbol", s.opts.Pair.Symbol()))

	primary := ""
	if providers := s.source.Providers(); len(providers) > 0 {
		primary = providers[0]
	}

	snapshot, err := s.source.FetchSnapshot(ctx, s.opts.Pair)
	if err != nil {
		report.SnapshotErr = err
		zap.L().Error("❌ 实时价格获取失败", zap.Error(err))
		if s.opts.Console != nil {
			s.opts.Console.Failure(err)
		}
	} else {
		report.Snapshot = snapshot
		zap.L().Info("✅ 实时价格",
			zap.Float64("price", snapshot.Price),
			zap.String("source", snapshot.Source))
		if s.opts.Console != nil {
			s.opts.Console.Snapshot(snapshot, primary)
		}
		if s.opts.Detector != nil {
			if alert := s.opts.Detector.Observe(snapshot); alert != nil {
				report.Alert = alert
				zap.L().Warn("⚠️ 价格异动",
					zap.String("symbol", alert.Symbol),
					zap.Float64("change_percent", alert.ChangePercent),
					zap.Duration("window", alert.Window))
				if s.opts.Console != nil {
					s.opts.Console.Alert(alert)
				}
			}
		}
		if s.opts.Recorder != nil {
			if err := s.opts.Recorder.SaveSnapshot(ctx, snapshot); err != nil {
				zap.L().Error("❌ 归档实时价格失败", zap.Error(err))
			}
		}
	}

	results := s.source.FetchMultiTimeframe(ctx, s.opts.Pair, s.opts.Granularities)
	for g, r := range results {
		if !r.Available() {
			report.Unavailable++
			continue
		}
		report.Available++

		series := r.Series
		if s.opts.WithIndicators {
			series = s.opts.Engine.Annotate(series)
			results[g] = fetcher.TimeframeResult{Series: series}
		}
		if s.opts.Recorder != nil {
			tail := series.Tail(s.opts.ArchiveCandles)
			if err := s.opts.Recorder.SaveSeries(ctx, tail); err != nil {
				zap.L().Error("❌ 归档K线失败", zap.String("granularity", string(g)), zap.Error(err))
				continue
			}
			report.Archived += tail.Len()
		}
	}
	if s.opts.Console != nil {
		s.opts.Console.Timeframes(results)
	}

	if s.opts.Sweep != nil {
		if n := s.opts.Sweep(); n > 0 {
			zap.L().Debug("🧹 已清理过期缓存", zap.Int("count", n))
		}
	}

	zap.L().Info("--- 刷新任务完成 ---",
		zap.Int("available", report.Available),
		zap.Int("unavailable", report.Unavailable),
		zap.Int("archived", report.Archived),
		zap.Duration("elapsed", time.Since(report.At)))

	s.lastRun = report
	return report
}
