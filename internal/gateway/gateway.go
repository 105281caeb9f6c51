package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"channel-breakout/internal/config"
	"channel-breakout/internal/exchange"
)

type orderClient interface {
	FetchOpenOrders(ctx context.Context) ([]exchange.OpenOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
	CreateMarketOrder(ctx context.Context, side string, amount float64, clientOrderID string) (exchange.OrderReceipt, error)
}

// Gateway 封装三个幂等的下单原语：撤销全部挂单、市价入场、市价离场。
// 所有触达交易所的调用都套用分类重试策略，并留下带数量与订单号的审计日志。
type Gateway struct {
	client       orderClient
	symbol       string
	retry        config.RetryConfig
	dust         float64
	lotPrecision int
	logger       *zap.Logger
}

// New 创建订单通道。
func New(client orderClient, symbol string, trading config.TradingConfig, retry config.RetryConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:       client,
		symbol:       symbol,
		retry:        retry,
		dust:         trading.DustThreshold,
		lotPrecision: trading.LotPrecision,
		logger:       logger,
	}
}

// CancelAllOpen 列出并撤销当前交易对的全部挂单，返回实际撤销数量。
// 单笔撤销失败不会中断其余撤销，失败集合聚合后返回，由调用方决定是否继续。
func (g *Gateway) CancelAllOpen(ctx context.Context) (int, error) {
	var orders []exchange.OpenOrder

	err := g.callWithRetry(ctx, "fetch_open_orders", func() error {
		result, err := g.client.FetchOpenOrders(ctx)
		if err != nil {
			return err
		}
		orders = result
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("gateway: 查询挂单失败: %w", err)
	}

	if len(orders) == 0 {
		return 0, nil
	}

	cancelled := 0
	var cancelErrs error

	for _, order := range orders {
		orderID := order.ID
		cancelErr := g.callWithRetry(ctx, "cancel_order", func() error {
			return g.client.CancelOrder(ctx, orderID)
		})
		if cancelErr != nil {
			g.logger.Warn("撤单失败",
				zap.String("symbol", g.symbol),
				zap.String("order_id", orderID),
				zap.Error(cancelErr),
			)
			cancelErrs = multierr.Append(cancelErrs, fmt.Errorf("撤单 %s 失败: %w", orderID, cancelErr))
			continue
		}

		cancelled++
		g.logger.Info("挂单已撤销",
			zap.String("symbol", g.symbol),
			zap.String("order_id", orderID),
			zap.Float64("amount", order.Amount),
		)
	}

	return cancelled, cancelErrs
}

// MarketEnter 以市价买入指定数量建立多头仓位。
func (g *Gateway) MarketEnter(ctx context.Context, quantity float64) (exchange.OrderReceipt, error) {
	if quantity <= 0 {
		return exchange.OrderReceipt{}, fmt.Errorf("%w: 入场数量必须为正，得到 %.8f", exchange.ErrOrderRejected, quantity)
	}

	return g.submitMarketOrder(ctx, "buy", quantity)
}

// MarketExit 以市价卖出平掉多头仓位。
// 数量按 lot 精度向下取整，绝不向上，避免卖出超过实际持仓。
func (g *Gateway) MarketExit(ctx context.Context, quantity float64) (exchange.OrderReceipt, error) {
	if quantity < g.dust {
		return exchange.OrderReceipt{}, fmt.Errorf("%w: 数量 %.8f 低于尘埃阈值", exchange.ErrNoPositionToExit, quantity)
	}

	rounded := FloorToLot(quantity, g.lotPrecision)
	if rounded <= 0 {
		return exchange.OrderReceipt{}, fmt.Errorf("%w: 取整后数量为零", exchange.ErrNoPositionToExit)
	}

	return g.submitMarketOrder(ctx, "sell", rounded)
}

// submitMarketOrder 提交市价单。clientOrderID 在全部重试之间复用，
// 让交易所把重复提交识别为同一笔委托而不是二次成交。
func (g *Gateway) submitMarketOrder(ctx context.Context, side string, quantity float64) (exchange.OrderReceipt, error) {
	clientOrderID := uuid.NewString()
	var receipt exchange.OrderReceipt

	err := g.callWithRetry(ctx, "create_market_"+side, func() error {
		result, err := g.client.CreateMarketOrder(ctx, side, quantity, clientOrderID)
		if err != nil {
			g.logger.Error("市价单提交失败",
				zap.String("symbol", g.symbol),
				zap.String("side", side),
				zap.Float64("quantity", quantity),
				zap.String("client_order_id", clientOrderID),
				zap.Error(err),
			)
			return err
		}
		receipt = result
		return nil
	})
	if err != nil {
		return exchange.OrderReceipt{}, err
	}

	g.logger.Info("市价单已提交",
		zap.String("symbol", g.symbol),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
		zap.String("client_order_id", clientOrderID),
		zap.String("order_id", receipt.OrderID),
		zap.String("status", receipt.Status),
	)

	return receipt, nil
}

// callWithRetry 对瞬态故障做有界指数退避重试。
// ErrOrderRejected 类错误立即返回：同样的参数重试只会再次被拒。
func (g *Gateway) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := g.retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := g.retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := g.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				g.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if !exchange.IsRetryable(err) || attempt >= maxAttempts {
			g.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		g.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// FloorToLot 将数量按交易所 lot 精度向下取整。
// 先加极小的修正量再取整，抵消二进制浮点表示误差（0.02*1e5 可能得到 1999.999…）。
func FloorToLot(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	factor := math.Pow10(precision)
	return math.Floor(v*factor+1e-9) / factor
}
