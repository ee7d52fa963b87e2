package archive

import (
	"time"

	"btc-market-feed/pkg/types"
)

// CandleRow K线归档表，(symbol, granularity, open_time) 唯一
type CandleRow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_gran_time" json:"symbol"`
	Granularity string    `gorm:"type:varchar(10);not null;uniqueIndex:uk_symbol_gran_time" json:"granularity"`
	OpenTime    int64     `gorm:"not null;uniqueIndex:uk_symbol_gran_time" json:"open_time"` // 毫秒
	Source      string    `gorm:"type:varchar(20);not null" json:"source"`
	Open        float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High        float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low         float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close       float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume      float64   `gorm:"type:decimal(28,8);not null" json:"volume"`
	SMA20       *float64  `gorm:"type:decimal(20,8)" json:"sma20"`
	SMA50       *float64  `gorm:"type:decimal(20,8)" json:"sma50"`
	SMA200      *float64  `gorm:"type:decimal(20,8)" json:"sma200"`
	EMA12       *float64  `gorm:"type:decimal(20,8)" json:"ema12"`
	EMA26       *float64  `gorm:"type:decimal(20,8)" json:"ema26"`
	MACD        *float64  `gorm:"type:decimal(20,8)" json:"macd"`
	MACDSignal  *float64  `gorm:"type:decimal(20,8)" json:"macd_signal"`
	RSI         *float64  `gorm:"type:decimal(10,4)" json:"rsi"`
	BBMiddle    *float64  `gorm:"type:decimal(20,8)" json:"bb_middle"`
	BBUpper     *float64  `gorm:"type:decimal(20,8)" json:"bb_upper"`
	BBLower     *float64  `gorm:"type:decimal(20,8)" json:"bb_lower"`
	VolumeSMA   *float64  `gorm:"type:decimal(28,8)" json:"volume_sma"`
	CreatedAt   time.Time `json:"created_at"`
}

func (CandleRow) TableName() string { return "candles" }

// SnapshotRow 实时价格归档表
type SnapshotRow struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Symbol        string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	Price         float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	Change24h     *float64  `gorm:"type:decimal(20,8)" json:"change_24h"`
	ChangePercent float64   `gorm:"type:decimal(10,4)" json:"change_percent"`
	High24h       float64   `gorm:"type:decimal(20,8)" json:"high_24h"`
	Low24h        float64   `gorm:"type:decimal(20,8)" json:"low_24h"`
	Volume        float64   `gorm:"type:decimal(28,8)" json:"volume"`
	Source        string    `gorm:"type:varchar(20);not null" json:"source"`
	Estimated     bool      `gorm:"default:false" json:"estimated"`
	FetchedAt     time.Time `gorm:"not null;index:idx_symbol_time" json:"fetched_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (SnapshotRow) TableName() string { return "price_snapshots" }

func nullable(n types.NullFloat) *float64 {
	if v, ok := n.Get(); ok {
		return &v
	}
	return nil
}

func fromNullable(p *float64) types.NullFloat {
	if p == nil {
		return types.NullFloat{}
	}
	return types.Some(*p)
}

// CandleRows 把K线序列转换为归档行，缺失的指标保存为 NULL
func CandleRows(s *types.CandleSeries, now time.Time) []CandleRow {
	rows := make([]CandleRow, 0, s.Len())
	for _, c := range s.Candles {
		row := CandleRow{
			Symbol:      s.Symbol,
			Granularity: string(s.Granularity),
			OpenTime:    c.OpenTime.UnixMilli(),
			Source:      s.Source,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
			CreatedAt:   now,
		}
		if ind := c.Indicators; ind != nil {
			row.SMA20 = nullable(ind.SMA20)
			row.SMA50 = nullable(ind.SMA50)
			row.SMA200 = nullable(ind.SMA200)
			row.EMA12 = nullable(ind.EMA12)
			row.EMA26 = nullable(ind.EMA26)
			row.MACD = nullable(ind.MACD)
			row.MACDSignal = nullable(ind.MACDSignal)
			row.RSI = nullable(ind.RSI)
			row.BBMiddle = nullable(ind.BBMiddle)
			row.BBUpper = nullable(ind.BBUpper)
			row.BBLower = nullable(ind.BBLower)
			row.VolumeSMA = nullable(ind.VolumeSMA)
		}
		rows = append(rows, row)
	}
	return rows
}

// Candle 还原为K线，只要有一列指标非空就附带指标
func (r CandleRow) Candle() types.Candle {
	c := types.Candle{
		OpenTime: time.UnixMilli(r.OpenTime).UTC(),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		Volume:   r.Volume,
	}
	set := types.IndicatorSet{
		SMA20:      fromNullable(r.SMA20),
		SMA50:      fromNullable(r.SMA50),
		SMA200:     fromNullable(r.SMA200),
		EMA12:      fromNullable(r.EMA12),
		EMA26:      fromNullable(r.EMA26),
		MACD:       fromNullable(r.MACD),
		MACDSignal: fromNullable(r.MACDSignal),
		RSI:        fromNullable(r.RSI),
		BBMiddle:   fromNullable(r.BBMiddle),
		BBUpper:    fromNullable(r.BBUpper),
		BBLower:    fromNullable(r.BBLower),
		VolumeSMA:  fromNullable(r.VolumeSMA),
	}
	if set != (types.IndicatorSet{}) {
		c.Indicators = &set
	}
	return c
}

// NewSnapshotRow 把实时价格转换为归档行
func NewSnapshotRow(s *types.PriceSnapshot, now time.Time) SnapshotRow {
	return SnapshotRow{
		Symbol:        s.Symbol,
		Price:         s.Price,
		Change24h:     nullable(s.Change24h),
		ChangePercent: s.ChangePercent,
		High24h:       s.High24h,
		Low24h:        s.Low24h,
		Volume:        s.Volume,
		Source:        s.Source,
		Estimated:     s.Estimated,
		FetchedAt:     s.Timestamp,
		CreatedAt:     now,
	}
}
