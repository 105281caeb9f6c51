package signal

import (
	"channel-breakout/internal/exchange"
	"channel-breakout/internal/indicator"
)

// Signal 表示一次决策周期的交易信号。
type Signal string

const (
	SignalBuy              Signal = "BUY"
	SignalSell             Signal = "SELL"
	SignalHold             Signal = "HOLD"
	SignalInsufficientData Signal = "INSUFFICIENT_DATA"
)

// Generate 依据通道突破规则计算信号。
// 输入必须是按时间升序、且已剔除未收盘K线的序列：最后一根即被评估的K线，
// 通道取其之前 length 根K线的最高高点与最低低点，模拟挂在前期极值上的止损单。
// 上破与下破同时发生时 BUY 优先。纯函数，不修改输入。
func Generate(bars []exchange.Candle, length int) Signal {
	if length < 1 || len(bars) < length+1 {
		return SignalInsufficientData
	}

	series := indicator.NewSeries(bars)
	bounds, ok := indicator.Channel(series, length)
	if !ok {
		return SignalInsufficientData
	}

	evaluated := bars[len(bars)-1]

	if evaluated.High > bounds.Upper {
		return SignalBuy
	}
	if evaluated.Low < bounds.Lower {
		return SignalSell
	}

	return SignalHold
}
