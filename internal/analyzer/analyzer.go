package analyzer

import (
	"math"
	"sync"
	"time"

	"btc-market-feed/pkg/types"
)

// Alert 价格异动预警
type Alert struct {
	Symbol        string        `json:"symbol"`
	CurrentPrice  float64       `json:"current_price"`
	PastPrice     float64       `json:"past_price"`
	ChangePercent float64       `json:"change_percent"`
	Window        time.Duration `json:"window"` // 比较的时间跨度
	At            time.Time     `json:"at"`
}

type observation struct {
	price float64
	at    time.Time
}

// MoveDetector 按时间窗口检测价格异动
type MoveDetector struct {
	threshold float64 // 涨跌幅阈值（百分比）
	window    time.Duration
	cooldown  time.Duration

	mutex        sync.Mutex
	history      map[string][]observation
	alertHistory map[string]time.Time // 防止重复预警
}

func NewMoveDetector(threshold float64, window, cooldown time.Duration) *MoveDetector {
	return &MoveDetector{
		threshold:    threshold,
		window:       window,
		cooldown:     cooldown,
		history:      make(map[string][]observation),
		alertHistory: make(map[string]time.Time),
	}
}

// Observe 记录一次实时价格，窗口内最早价格到当前价格的涨跌幅超过阈值时返回预警，否则返回nil
func (d *MoveDetector) Observe(s *types.PriceSnapshot) *Alert {
	if s == nil || s.Price <= 0 {
		return nil
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := s.Timestamp
	cutoff := now.Add(-d.window)
	points := d.history[s.Symbol]
	kept := points[:0]
	for _, p := range points {
		if !p.at.Before(cutoff) && !p.at.After(now) {
			kept = append(kept, p)
		}
	}
	d.history[s.Symbol] = append(kept, observation{price: s.Price, at: now})

	if len(kept) == 0 {
		return nil // 数据不足，跳过分析
	}
	past := kept[0]
	changePercent := (s.Price - past.price) / past.price * 100
	if math.Abs(changePercent) <= d.threshold {
		return nil
	}
	if last, ok := d.alertHistory[s.Symbol]; ok && now.Sub(last) < d.cooldown {
		return nil
	}

	d.recordAlert(s.Symbol, now)
	return &Alert{
		Symbol:        s.Symbol,
		CurrentPrice:  s.Price,
		PastPrice:     past.price,
		ChangePercent: changePercent,
		Window:        now.Sub(past.at),
		At:            now,
	}
}

// recordAlert 记录预警历史并清理超过1小时的记录
func (d *MoveDetector) recordAlert(symbol string, now time.Time) {
	d.alertHistory[symbol] = now

	cutoff := now.Add(-time.Hour)
	for sym, at := range d.alertHistory {
		if at.Before(cutoff) {
			delete(d.alertHistory, sym)
		}
	}
}
