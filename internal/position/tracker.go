package position

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"channel-breakout/internal/exchange"
)

// Side 表示持仓方向。现货多头策略只有 FLAT 与 LONG 两种状态。
type Side string

const (
	SideFlat Side = "FLAT"
	SideLong Side = "LONG"
)

// Position 描述交易所上报的当前持仓。每个周期重新查询，本地不做跨周期缓存。
type Position struct {
	Side      Side      `json:"side"`
	Size      float64   `json:"size"`
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
}

// Flat 判断当前是否无持仓。
func (p Position) Flat() bool {
	return p.Side == SideFlat
}

type balanceClient interface {
	FetchAssetBalance(ctx context.Context, asset string) (exchange.BalanceSnapshot, error)
}

// Tracker 把基础资产余额归类为持仓状态。
type Tracker struct {
	client balanceClient
	asset  string
	dust   float64
	logger *zap.Logger
}

// NewTracker 创建持仓跟踪器。dust 为尘埃阈值，低于该余额视为无持仓。
func NewTracker(client balanceClient, asset string, dust float64, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		client: client,
		asset:  asset,
		dust:   dust,
		logger: logger,
	}
}

// Current 查询交易所并返回当前持仓。
// 查询失败不在内部重试：这是每周期开销最小的一次调用，失败直接跳过本周期。
func (t *Tracker) Current(ctx context.Context) (Position, error) {
	snapshot, err := t.client.FetchAssetBalance(ctx, t.asset)
	if err != nil {
		return Position{}, fmt.Errorf("position: 查询余额失败: %w", err)
	}

	pos := Position{
		Side:      SideFlat,
		Size:      0,
		Asset:     t.asset,
		Timestamp: snapshot.Timestamp,
	}

	total := snapshot.Total()
	if total >= t.dust {
		pos.Side = SideLong
		pos.Size = total
	}

	t.logger.Debug("持仓状态已刷新",
		zap.String("asset", t.asset),
		zap.String("side", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Float64("free", snapshot.Free),
		zap.Float64("locked", snapshot.Locked),
	)

	return pos, nil
}
