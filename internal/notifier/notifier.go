// Package notifier 在终端渲染行情、K线与服务状态。
package notifier

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"btc-market-feed/internal/analyzer"
	"btc-market-feed/internal/fetcher"
	"btc-market-feed/internal/forecast"
	"btc-market-feed/pkg/types"
	"github.com/logrusorgru/aurora"
)

// 面向用户的状态提示
const (
	MsgAllSourcesFailed = "All sources failed: market data is temporarily unavailable."
	msgRegionFallback   = "Primary source unavailable in this region, showing data from %s"
	msgPrimaryFallback  = "Primary source unavailable, showing data from %s"
)

// RegionFallbackMessage 首选数据源被地区限制时的来源说明
func RegionFallbackMessage(source string) string {
	return fmt.Sprintf(msgRegionFallback, source)
}

// Console 控制台渲染器
type Console struct {
	out io.Writer
	au  aurora.Aurora
	now func() time.Time
}

// NewConsole 创建控制台渲染器，out 为空时输出到标准输出
func NewConsole(out io.Writer, colors bool) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{
		out: out,
		au:  aurora.NewAurora(colors),
		now: time.Now,
	}
}

// Snapshot 输出实时价格；primary 为回退链首位数据源，实际来源不同时附带来源说明
func (c *Console) Snapshot(s *types.PriceSnapshot, primary string) {
	b := box{out: c.out}
	b.top()
	b.line(fmt.Sprintf("💰 %s 实时价格", s.Symbol))
	b.blank()
	b.colored(fmt.Sprintf("当前价格: $%.2f", s.Price), c.au.Bold)

	change := fmt.Sprintf("24h涨跌: %s (%+.2f%%)", s.Change24h, s.ChangePercent)
	if s.ChangePercent >= 0 {
		b.colored(change, c.au.Green)
	} else {
		b.colored(change, c.au.Red)
	}

	rangeLabel := "24h区间"
	if s.Estimated {
		rangeLabel = "24h区间(估算)"
	}
	b.line(fmt.Sprintf("%s: $%.2f - $%.2f", rangeLabel, s.Low24h, s.High24h))
	b.line(fmt.Sprintf("24h成交量: %.4f", s.Volume))
	b.line(fmt.Sprintf("更新时间: %s", s.Timestamp.Local().Format("2006-01-02 15:04:05")))
	b.line(fmt.Sprintf("数据来源: %s", s.Source))

	if primary != "" && s.Source != primary {
		b.blank()
		b.colored("⚠️ "+fmt.Sprintf(msgPrimaryFallback, s.Source), c.au.Yellow)
	}
	b.bottom()
}

// Failure 输出获取失败；回退链全部失败时逐个列出数据源的失败原因
func (c *Console) Failure(err error) {
	b := box{out: c.out}
	b.top()

	var exhausted *fetcher.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		b.colored("❌ "+MsgAllSourcesFailed, c.au.Red)
		b.blank()
		for _, reason := range exhausted.Reasons() {
			b.line("  • " + reason)
		}
	case errors.Is(err, fetcher.ErrRegionBlocked):
		b.colored("🚫 Primary source is unavailable in this region.", c.au.Red)
		b.line("  可以使用 --alternate 改用备用数据源")
	default:
		b.colored("❌ 获取数据失败", c.au.Red)
		b.line("  " + err.Error())
	}
	b.bottom()
}

// Series 输出K线序列的最后 tail 根，regionFallback 表示首选数据源被地区限制后改用了备用数据源
func (c *Console) Series(s *types.CandleSeries, tail int, regionFallback bool) {
	b := box{out: c.out}
	b.top()
	b.line(fmt.Sprintf("📊 %s %s K线 (%d根, 来源: %s)", s.Symbol, s.Granularity, s.Len(), s.Source))
	if regionFallback {
		b.colored("⚠️ "+RegionFallbackMessage(s.Source), c.au.Yellow)
	}
	b.blank()

	start := 0
	if tail > 0 && s.Len() > tail {
		start = s.Len() - tail
	}
	for _, candle := range s.Candles[start:] {
		row := fmt.Sprintf("%s  O %.2f  H %.2f  L %.2f  C %.2f  V %.3f",
			candle.OpenTime.Local().Format("01-02 15:04"), candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)
		if candle.Close >= candle.Open {
			b.colored(row, c.au.Green)
		} else {
			b.colored(row, c.au.Red)
		}
	}

	if last, ok := s.Latest(); ok && last.Indicators != nil {
		ind := last.Indicators
		b.blank()
		b.line("📈 最新指标")
		b.line(fmt.Sprintf("  SMA20 %s  SMA50 %s  SMA200 %s", ind.SMA20, ind.SMA50, ind.SMA200))
		b.line(fmt.Sprintf("  EMA12 %s  EMA26 %s", ind.EMA12, ind.EMA26))
		b.line(fmt.Sprintf("  MACD %s  Signal %s", ind.MACD, ind.MACDSignal))
		b.line(fmt.Sprintf("  RSI14 %s", ind.RSI))
		b.line(fmt.Sprintf("  布林带 %s / %s / %s", ind.BBLower, ind.BBMiddle, ind.BBUpper))
		b.line(fmt.Sprintf("  成交量SMA20 %s", ind.VolumeSMA))
	}
	b.bottom()
}

// Timeframes 输出多周期获取结果，不可用的周期单独标注
func (c *Console) Timeframes(results map[types.Granularity]fetcher.TimeframeResult) {
	grans := make([]types.Granularity, 0, len(results))
	for g := range results {
		grans = append(grans, g)
	}
	sort.Slice(grans, func(i, j int) bool {
		return grans[i].Duration() < grans[j].Duration()
	})

	b := box{out: c.out}
	b.top()
	b.line("🕒 多周期行情")
	b.blank()
	for _, g := range grans {
		r := results[g]
		if !r.Available() {
			b.colored(fmt.Sprintf("  %-4s 不可用: %v", g, r.Err), c.au.Red)
			continue
		}
		last, _ := r.Series.Latest()
		b.line(fmt.Sprintf("  %-4s %4d根  最新收盘 $%.2f  (%s)", g, r.Series.Len(), last.Close, last.OpenTime.Local().Format("01-02 15:04")))
	}
	b.bottom()
}

// Model 输出预测服务状态与模型信息，health 或 info 为空时跳过对应部分
func (c *Console) Model(health *forecast.HealthStatus, info *forecast.ModelInfo) {
	b := box{out: c.out}
	b.top()
	b.line("🤖 预测服务")
	b.blank()

	if health != nil {
		status := fmt.Sprintf("服务状态: %s  模型已加载: %v", health.Status, health.ModelLoaded)
		if health.Healthy() {
			b.colored(status, c.au.Green)
		} else {
			b.colored(status, c.au.Yellow)
		}
	}

	if info != nil {
		m := info.Metadata
		b.line(fmt.Sprintf("特征数: %d  序列长度: %d", info.FeatureCount, info.SequenceLength))
		b.line(fmt.Sprintf("训练样本: %d  测试样本: %d", m.TrainSamples, m.TestSamples))
		if m.TestAccuracy != nil {
			b.line(fmt.Sprintf("测试准确率: %.2f%%", *m.TestAccuracy*100))
		}
		if m.CVMeanAccuracy != nil {
			std := 0.0
			if m.CVStdAccuracy != nil {
				std = *m.CVStdAccuracy
			}
			b.line(fmt.Sprintf("交叉验证准确率: %.2f%% ± %.2f%%", *m.CVMeanAccuracy*100, std*100))
		}

		if age, err := forecast.Age(info, c.now()); err == nil {
			b.line(fmt.Sprintf("训练时间: %s (%s前)", m.TrainingDate, formatDuration(c.now().Sub(age.TrainedAt))))
			switch age.Freshness {
			case forecast.FreshnessStale:
				b.colored(age.Message(), c.au.Red)
			case forecast.FreshnessAging:
				b.colored(age.Message(), c.au.Yellow)
			default:
				b.colored(age.Message(), c.au.Green)
			}
		}
	}
	b.bottom()
}

// Tick 单行输出一条实时行情
func (c *Console) Tick(s *types.PriceSnapshot) {
	line := fmt.Sprintf("%s  %s  $%.2f  %+.2f%%  (%s)",
		s.Timestamp.Local().Format("15:04:05"), s.Symbol, s.Price, s.ChangePercent, s.Source)
	if s.ChangePercent >= 0 {
		fmt.Fprintln(c.out, c.au.Green(line))
	} else {
		fmt.Fprintln(c.out, c.au.Red(line))
	}
}

// Alert 输出价格异动预警
func (c *Console) Alert(a *analyzer.Alert) {
	paint := c.au.Green
	arrow := "📈"
	if a.ChangePercent < 0 {
		paint, arrow = c.au.Red, "📉"
	}

	b := box{out: c.out}
	b.top()
	b.colored(fmt.Sprintf("%s %s 价格异动 %+.2f%%", arrow, a.Symbol, a.ChangePercent), paint)
	b.blank()
	b.line(fmt.Sprintf("  $%.2f → $%.2f  (%s 内)", a.PastPrice, a.CurrentPrice, formatDuration(a.Window)))
	b.line("  时间: " + a.At.Local().Format("2006-01-02 15:04:05"))
	b.bottom()
}
