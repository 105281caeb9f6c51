package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"channel-breakout/internal/exchange"
	"channel-breakout/internal/position"
	"channel-breakout/internal/risk"
	"channel-breakout/internal/signal"
)

// Action 表示一个决策周期内最终采取的修正动作。
type Action string

const (
	ActionNone  Action = "NONE"
	ActionEnter Action = "ENTER"
	ActionExit  Action = "EXIT"
)

// CycleResult 汇总一个决策周期的观测数据，仅用于日志与审计，
// 不参与后续周期的决策。
type CycleResult struct {
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	Skipped        bool               `json:"skipped,omitempty"`
	Signal         signal.Signal      `json:"signal,omitempty"`
	PositionBefore position.Position  `json:"position_before"`
	PositionAfter  *position.Position `json:"position_after,omitempty"`
	Action         Action             `json:"action"`
	Cancelled      int                `json:"cancelled"`
	Quantity       float64            `json:"quantity,omitempty"`
	OrderID        string             `json:"order_id,omitempty"`
	Errors         []string           `json:"errors,omitempty"`
}

// Failed 判断该周期是否带有错误记录。
func (r CycleResult) Failed() bool {
	return len(r.Errors) > 0
}

type marketData interface {
	FetchCandles(ctx context.Context, timeframe string, limit int64) ([]exchange.Candle, error)
}

type accountData interface {
	FetchAssetBalance(ctx context.Context, asset string) (exchange.BalanceSnapshot, error)
}

type positionSource interface {
	Current(ctx context.Context) (position.Position, error)
}

type orderGateway interface {
	CancelAllOpen(ctx context.Context) (int, error)
	MarketEnter(ctx context.Context, quantity float64) (exchange.OrderReceipt, error)
	MarketExit(ctx context.Context, quantity float64) (exchange.OrderReceipt, error)
}

// Options 控制引擎行为。
type Options struct {
	Symbol      string
	Interval    string
	Length      int
	SettleDelay time.Duration
	QuoteAsset  string
}

// Engine 实现每周期的对账决策：
// 查询持仓 → 拉取K线 → 计算信号 → 按 (持仓 × 信号) 表执行至多一个动作。
// 周期之间不保留决策状态，持仓永远以交易所上报为准。
type Engine struct {
	opts    Options
	market  marketData
	account accountData
	tracker positionSource
	gateway orderGateway
	sizer   risk.Sizer
	logger  *zap.Logger

	// 平仓后的结算窗口，窗口内的周期直接跳过，
	// 等余额在交易所侧更新后再信任持仓查询。
	settleUntil time.Time
}

// New 创建对账引擎。
func New(opts Options, market marketData, account accountData, tracker positionSource, gateway orderGateway, sizer risk.Sizer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:    opts,
		market:  market,
		account: account,
		tracker: tracker,
		gateway: gateway,
		sizer:   sizer,
		logger:  logger,
	}
}

// RunCycle 执行一个完整的决策周期并返回观测结果。
// 行情或持仓查询失败只放弃当前周期，错误记入结果后等待下一次调度。
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{
		StartedAt: time.Now().UTC(),
		Action:    ActionNone,
	}
	defer func() {
		result.FinishedAt = time.Now().UTC()
	}()

	if !e.settleUntil.IsZero() && time.Now().Before(e.settleUntil) {
		result.Skipped = true
		e.logger.Debug("处于平仓结算窗口，跳过本周期",
			zap.Time("settle_until", e.settleUntil),
		)
		return result
	}

	pos, err := e.tracker.Current(ctx)
	if err != nil {
		e.fail(&result, "查询持仓失败", err)
		return result
	}
	result.PositionBefore = pos

	limit := int64(e.opts.Length + 2)
	bars, err := e.market.FetchCandles(ctx, e.opts.Interval, limit)
	if err != nil {
		e.fail(&result, "拉取行情失败", err)
		return result
	}

	// ccxt 返回的最后一根是未收盘K线，评估前剔除。
	if len(bars) > 0 {
		bars = bars[:len(bars)-1]
	}

	sig := signal.Generate(bars, e.opts.Length)
	result.Signal = sig

	e.logger.Info("周期决策输入就绪",
		zap.String("symbol", e.opts.Symbol),
		zap.String("signal", string(sig)),
		zap.String("position", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Int("bars", len(bars)),
	)

	switch e.decide(pos, sig) {
	case ActionEnter:
		e.enter(ctx, &result)
	case ActionExit:
		e.exit(ctx, &result, pos.Size)
	default:
		// 其余 (持仓 × 信号) 组合一律不动：空仓观望或继续持有。
	}

	return result
}

// decide 实现 (持仓 × 信号) 对账表。8 种组合各映射到唯一动作：
//
//	FLAT × BUY            → ENTER
//	FLAT × 其他           → NONE
//	LONG × SELL           → EXIT
//	LONG × 其他           → NONE
func (e *Engine) decide(pos position.Position, sig signal.Signal) Action {
	switch {
	case pos.Flat() && sig == signal.SignalBuy:
		return ActionEnter
	case !pos.Flat() && sig == signal.SignalSell:
		return ActionExit
	default:
		return ActionNone
	}
}

func (e *Engine) enter(ctx context.Context, result *CycleResult) {
	result.Action = ActionEnter

	// 入场数量基于决策时刻的账户净值，绝不缓存。
	equity, err := e.account.FetchAssetBalance(ctx, e.opts.QuoteAsset)
	if err != nil {
		e.fail(result, "查询账户净值失败", err)
		return
	}

	quantity := e.sizer.Size(equity.Total())
	result.Quantity = quantity

	e.cancelBeforeOrder(ctx, result)

	receipt, err := e.gateway.MarketEnter(ctx, quantity)
	if err != nil {
		e.fail(result, "市价入场失败", err)
		return
	}
	result.OrderID = receipt.OrderID

	e.refreshPositionAfter(ctx, result)
}

func (e *Engine) exit(ctx context.Context, result *CycleResult, size float64) {
	result.Action = ActionExit
	result.Quantity = size

	e.cancelBeforeOrder(ctx, result)

	receipt, err := e.gateway.MarketExit(ctx, size)
	if err != nil {
		e.fail(result, "市价离场失败", err)
		return
	}
	result.OrderID = receipt.OrderID

	if e.opts.SettleDelay > 0 {
		e.settleUntil = time.Now().Add(e.opts.SettleDelay)
	}

	e.refreshPositionAfter(ctx, result)
}

// cancelBeforeOrder 在新委托之前撤销存量挂单，
// 防止残留挂单与新的市价单重复成交。部分失败不阻塞后续下单。
func (e *Engine) cancelBeforeOrder(ctx context.Context, result *CycleResult) {
	cancelled, err := e.gateway.CancelAllOpen(ctx)
	result.Cancelled = cancelled
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("部分撤单失败: %v", err))
		e.logger.Warn("部分挂单未能撤销，继续执行修正单",
			zap.Int("cancelled", cancelled),
			zap.Error(err),
		)
	}
}

// refreshPositionAfter 尽力刷新动作后的持仓，仅用于记录。
func (e *Engine) refreshPositionAfter(ctx context.Context, result *CycleResult) {
	after, err := e.tracker.Current(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("动作后持仓查询失败: %v", err))
		return
	}
	result.PositionAfter = &after
}

func (e *Engine) fail(result *CycleResult, msg string, err error) {
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", msg, err))
	e.logger.Error(msg,
		zap.String("symbol", e.opts.Symbol),
		zap.Error(err),
	)
}
