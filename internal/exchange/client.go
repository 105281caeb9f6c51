package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"channel-breakout/internal/config"
)

// Client 持有唯一的交易所会话并暴露本系统需要的原始调用。
// 会话在启动时构造一次，之后不再重新认证。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binance
	symbol   string
	limiter  *rate.Limiter

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Binance 现货客户端。
func NewClient(cfg config.ExchangeConfig, symbol string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	perSec := cfg.RateLimitPerSec
	if perSec <= 0 {
		perSec = 8
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		symbol:   symbol,
		limiter:  rate.NewLimiter(rate.Limit(perSec), 1),
	}, nil
}

// Symbol 返回交易对符号。
func (c *Client) Symbol() string {
	return c.symbol
}

// EnsureMarketsLoaded 加载市场元数据，只在首次调用时真正发起请求。
func (c *Client) EnsureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.exchange.LoadMarkets(); err != nil {
		return Classify(err)
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("symbol", c.symbol))
	return nil
}

// FetchCandles 获取指定周期的K线数据。
// 单次调用，不在内部重试：行情失败意味着放弃当前周期，等待下一次调度。
func (c *Client) FetchCandles(ctx context.Context, timeframe string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.exchange.FetchOHLCV(
		c.symbol,
		ccxt.WithFetchOHLCVTimeframe(timeframe),
		ccxt.WithFetchOHLCVLimit(limit),
	)
	if err != nil {
		return nil, joinClass(ErrDataUnavailable, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// FetchAssetBalance 查询单一资产的可用与冻结余额。
// 同样不在内部重试，由调用方决定是否跳过当前周期。
func (c *Client) FetchAssetBalance(ctx context.Context, asset string) (BalanceSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return BalanceSnapshot{}, err
	}

	balances, err := c.exchange.FetchBalance()
	if err != nil {
		return BalanceSnapshot{}, Classify(err)
	}

	snapshot := BalanceSnapshot{
		Asset:     asset,
		Timestamp: time.Now().UTC(),
	}

	if balances.Free != nil {
		if v, ok := balances.Free[asset]; ok && v != nil {
			snapshot.Free = *v
		}
	}
	if balances.Used != nil {
		if v, ok := balances.Used[asset]; ok && v != nil {
			snapshot.Locked = *v
		}
	}

	return snapshot, nil
}

// FetchOpenOrders 列出当前交易对的全部未成交挂单。
func (c *Client) FetchOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := c.exchange.FetchOpenOrders(
		ccxt.WithFetchOpenOrdersSymbol(c.symbol),
	)
	if err != nil {
		return nil, Classify(err)
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, item := range raw {
		orders = append(orders, OpenOrder{
			ID:            derefString(item.Id),
			ClientOrderID: derefString(item.ClientOrderId),
			Side:          derefString(item.Side),
			Amount:        derefFloat(item.Amount),
			Price:         derefFloat(item.Price),
		})
	}

	return orders, nil
}

// CancelOrder 撤销指定挂单。
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := c.exchange.CancelOrder(
		orderID,
		ccxt.WithCancelOrderSymbol(c.symbol),
	); err != nil {
		return Classify(err)
	}

	return nil
}

// CreateMarketOrder 提交市价单。clientOrderID 由调用方生成并在重试间保持不变，
// 以便交易所侧把重复提交识别为同一笔委托。
func (c *Client) CreateMarketOrder(ctx context.Context, side string, amount float64, clientOrderID string) (OrderReceipt, error) {
	if amount <= 0 {
		return OrderReceipt{}, fmt.Errorf("%w: 无效下单数量 %.8f", ErrOrderRejected, amount)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return OrderReceipt{}, err
	}

	params := map[string]interface{}{}
	if clientOrderID != "" {
		params["clientOrderId"] = clientOrderID
	}

	order, err := c.exchange.CreateMarketOrder(
		c.symbol,
		side,
		amount,
		ccxt.WithCreateMarketOrderParams(params),
	)
	if err != nil {
		return OrderReceipt{}, Classify(err)
	}

	receipt := OrderReceipt{
		OrderID:       derefString(order.Id),
		ClientOrderID: clientOrderID,
		Symbol:        c.symbol,
		Side:          side,
		Amount:        amount,
		Filled:        derefFloat(order.Filled),
		AvgPrice:      derefFloat(order.Average),
		Status:        derefString(order.Status),
		Timestamp:     time.Now().UTC(),
	}
	if receipt.ClientOrderID == "" {
		receipt.ClientOrderID = derefString(order.ClientOrderId)
	}

	return receipt, nil
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
