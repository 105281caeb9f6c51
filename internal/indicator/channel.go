package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// ChannelBounds 描述回看窗口内的最高高点与最低低点。
type ChannelBounds struct {
	Upper float64
	Lower float64
}

// Channel 计算序列中最后一根K线之前 length 根K线构成的通道上下界。
// 被评估的最后一根K线永远不参与通道计算。窗口不足时返回 false。
func Channel(s Series, length int) (ChannelBounds, bool) {
	n := s.Len()
	if length < 1 || n < length+1 {
		return ChannelBounds{}, false
	}

	highs := s.High[:n-1]
	lows := s.Low[:n-1]

	// TA-Lib 的滚动窗口参数要求不小于2，length=1 时直接取前一根。
	if length == 1 {
		return ChannelBounds{
			Upper: highs[len(highs)-1],
			Lower: lows[len(lows)-1],
		}, true
	}

	upper := Last(talib.Max(highs, length))
	lower := Last(talib.Min(lows, length))
	if math.IsNaN(upper) || math.IsNaN(lower) {
		return ChannelBounds{}, false
	}

	return ChannelBounds{Upper: upper, Lower: lower}, true
}
