package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// AssetPair 交易对，如 BTC/USD
type AssetPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// BTCUSD 默认交易对
var BTCUSD = AssetPair{Base: "BTC", Quote: "USD"}

// 无分隔符写法（如 BTCUSDT）按这些计价币后缀拆分，顺序即匹配优先级
var knownQuotes = []string{"USDT", "USDC", "USD", "EUR"}

// ParseAssetPair 解析 "BTCUSD"、"BTC-USD"、"BTC/USD" 等写法，空字符串返回默认交易对
func ParseAssetPair(s string) (AssetPair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return BTCUSD, nil
	}
	for _, sep := range []string{"-", "/", "_"} {
		if base, quote, ok := strings.Cut(s, sep); ok {
			if base == "" || quote == "" {
				return AssetPair{}, fmt.Errorf("交易对格式错误: %q", s)
			}
			return AssetPair{Base: base, Quote: quote}, nil
		}
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return AssetPair{Base: strings.TrimSuffix(s, quote), Quote: quote}, nil
		}
	}
	return AssetPair{}, fmt.Errorf("无法识别的交易对: %q", s)
}

// Symbol 返回规范化的交易对标识，如 BTCUSD
func (p AssetPair) Symbol() string {
	return p.Base + p.Quote
}

func (p AssetPair) String() string {
	return p.Base + "/" + p.Quote
}

// Granularity K线周期
type Granularity string

const (
	Minute1  Granularity = "1m"
	Minute5  Granularity = "5m"
	Minute15 Granularity = "15m"
	Hour1    Granularity = "1h"
	Hour4    Granularity = "4h"
	Day1     Granularity = "1d"
)

// AllGranularities 返回支持的全部K线周期（从短到长）
func AllGranularities() []Granularity {
	return []Granularity{Minute1, Minute5, Minute15, Hour1, Hour4, Day1}
}

// ParseGranularity 解析K线周期字符串，兼容 1H/4H/1D 这类大写写法
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllGranularities() {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("不支持的K线周期: %q", s)
}

// Duration 返回单根K线覆盖的时长
func (g Granularity) Duration() time.Duration {
	switch g {
	case Minute1:
		return time.Minute
	case Minute5:
		return 5 * time.Minute
	case Minute15:
		return 15 * time.Minute
	case Hour1:
		return time.Hour
	case Hour4:
		return 4 * time.Hour
	case Day1:
		return 24 * time.Hour
	default:
		return 0
	}
}

// NullFloat 可能缺失的数值，Valid 为 false 时表示"尚无数据"，序列化为 null
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Some 构造一个有效值
func Some(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Get 返回数值以及是否有效
func (n NullFloat) Get() (float64, bool) {
	return n.Float64, n.Valid
}

func (n NullFloat) String() string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", n.Float64)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Candle 一根OHLCV K线，OpenTime 为交易所给出的开盘时间（UTC）
type Candle struct {
	OpenTime   time.Time     `json:"open_time"`
	Open       float64       `json:"open"`
	High       float64       `json:"high"`
	Low        float64       `json:"low"`
	Close      float64       `json:"close"`
	Volume     float64       `json:"volume"`
	Indicators *IndicatorSet `json:"indicators,omitempty"`
}

// ErrInvalidCandle K线数据不满足 low ≤ open,close ≤ high 等约束
var ErrInvalidCandle = errors.New("K线数据不合法")

// Validate 校验数值有限、价格为正、成交量非负且 low ≤ min(open,close) ≤ max(open,close) ≤ high
func (c Candle) Validate() error {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%w: %s 存在非有限数值", ErrInvalidCandle, c.OpenTime.Format(time.RFC3339))
		}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: %s 存在非正价格", ErrInvalidCandle, c.OpenTime.Format(time.RFC3339))
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: %s 成交量为负", ErrInvalidCandle, c.OpenTime.Format(time.RFC3339))
	}
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("%w: %s low=%v open=%v close=%v high=%v",
			ErrInvalidCandle, c.OpenTime.Format(time.RFC3339), c.Low, c.Open, c.Close, c.High)
	}
	return nil
}

// CandleSeries 按时间升序排列、无重复时间点的K线序列
type CandleSeries struct {
	Symbol      string      `json:"symbol"`
	Granularity Granularity `json:"granularity"`
	Source      string      `json:"source"`
	Candles     []Candle    `json:"candles"`

	index map[int64]int
}

// NewCandleSeries 校验、排序并去重（同一时间点保留最后出现的一根），任何一根K线不合法都会返回错误
func NewCandleSeries(symbol string, granularity Granularity, source string, candles []Candle) (*CandleSeries, error) {
	byTime := make(map[int64]Candle, len(candles))
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		c.OpenTime = c.OpenTime.UTC()
		byTime[c.OpenTime.UnixMilli()] = c
	}

	sorted := make([]Candle, 0, len(byTime))
	for _, c := range byTime {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	s := &CandleSeries{
		Symbol:      symbol,
		Granularity: granularity,
		Source:      source,
		Candles:     sorted,
	}
	s.reindex()
	return s, nil
}

func (s *CandleSeries) reindex() {
	s.index = make(map[int64]int, len(s.Candles))
	for i, c := range s.Candles {
		s.index[c.OpenTime.UnixMilli()] = i
	}
}

// Len 返回K线数量
func (s *CandleSeries) Len() int {
	return len(s.Candles)
}

// At 按开盘时间查找K线
func (s *CandleSeries) At(t time.Time) (Candle, bool) {
	if s.index == nil {
		s.reindex()
	}
	i, ok := s.index[t.UnixMilli()]
	if !ok {
		return Candle{}, false
	}
	return s.Candles[i], true
}

// Latest 返回最新一根K线
func (s *CandleSeries) Latest() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Tail 返回只包含最新 n 根K线的副本，n 不为正或超过长度时返回完整副本
func (s *CandleSeries) Tail(n int) *CandleSeries {
	clone := s.Clone()
	if n > 0 && n < len(clone.Candles) {
		clone.Candles = clone.Candles[len(clone.Candles)-n:]
		clone.reindex()
	}
	return clone
}

// Closes 收盘价序列
func (s *CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Volumes 成交量序列
func (s *CandleSeries) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// Clone 深拷贝，包括已附加的指标
func (s *CandleSeries) Clone() *CandleSeries {
	candles := make([]Candle, len(s.Candles))
	for i, c := range s.Candles {
		if c.Indicators != nil {
			set := *c.Indicators
			c.Indicators = &set
		}
		candles[i] = c
	}
	clone := &CandleSeries{
		Symbol:      s.Symbol,
		Granularity: s.Granularity,
		Source:      s.Source,
		Candles:     candles,
	}
	clone.reindex()
	return clone
}

func (s *CandleSeries) UnmarshalJSON(data []byte) error {
	type plain CandleSeries
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = CandleSeries(p)
	s.reindex()
	return nil
}

// PriceSnapshot 实时价格及24小时统计
type PriceSnapshot struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change24h     NullFloat `json:"change_24h"` // 部分数据源不提供绝对涨跌额
	ChangePercent float64   `json:"change_percent"`
	High24h       float64   `json:"high_24h"`
	Low24h        float64   `json:"low_24h"`
	Volume        float64   `json:"volume"` // 基础币计价
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`    // 实际返回数据的数据源
	Estimated     bool      `json:"estimated"` // High24h/Low24h 为估算值
}
