package types

// IndicatorSet 附加在每根K线上的技术指标，窗口不足时对应字段为无效值
type IndicatorSet struct {
	SMA20      NullFloat `json:"sma_20"`
	SMA50      NullFloat `json:"sma_50"`
	SMA200     NullFloat `json:"sma_200"`
	EMA12      NullFloat `json:"ema_12"`
	EMA26      NullFloat `json:"ema_26"`
	MACD       NullFloat `json:"macd"`
	MACDSignal NullFloat `json:"macd_signal"`
	RSI        NullFloat `json:"rsi"`
	BBMiddle   NullFloat `json:"bb_middle"`
	BBUpper    NullFloat `json:"bb_upper"`
	BBLower    NullFloat `json:"bb_lower"`
	VolumeSMA  NullFloat `json:"volume_sma"`
}
