package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"channel-breakout/internal/config"
	"channel-breakout/internal/engine"
	"channel-breakout/internal/exchange"
	"channel-breakout/internal/gateway"
	"channel-breakout/internal/monitor"
	"channel-breakout/internal/position"
	"channel-breakout/internal/risk"
	"channel-breakout/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 构建各组件并驱动决策循环直至收到退出信号。
// 周期之间严格串行：下一个 tick 在当前周期完整结束前不会被处理。
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg
	symbol := cfg.Strategy.Symbol

	client, err := exchange.NewClient(cfg.Exchange, symbol, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	tracker := position.NewTracker(client, cfg.Trading.BaseAsset, cfg.Trading.DustThreshold, a.logger)
	sizer := risk.NewEquityScaledSizer(cfg.Sizing, cfg.Trading.LotPrecision, a.logger)
	gw := gateway.New(client, symbol, cfg.Trading, cfg.Exchange.Retry, a.logger)

	eng := engine.New(engine.Options{
		Symbol:      symbol,
		Interval:    cfg.Strategy.Interval,
		Length:      cfg.Strategy.Length,
		SettleDelay: cfg.Trading.SettleDelay,
		QuoteAsset:  cfg.Trading.QuoteAsset,
	}, client, client, tracker, gw, sizer, a.logger)

	// 凭据或市场配置不可用属于不可恢复错误，循环开始前直接终止。
	if err := a.preflight(ctx, client); err != nil {
		return fmt.Errorf("启动自检失败: %w", err)
	}

	a.logger.Info("交易系统已初始化",
		zap.String("environment", cfg.App.Environment),
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("symbol", symbol),
		zap.String("interval", cfg.Strategy.Interval),
		zap.Int("length", cfg.Strategy.Length),
		zap.Bool("sandbox", cfg.Exchange.UseSandbox),
	)

	runCycle := func() {
		// 周期上下文不继承退出信号：收到信号时允许在途订单调用
		// 跑完或超时，避免订单结果处于未知状态。循环在周期结束后退出。
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Trading.CycleTimeout)
		defer cancel()

		result := eng.RunCycle(cycleCtx)
		monitorSvc.RecordCycle(cycleCtx, symbol, result)

		fields := []zap.Field{
			zap.String("signal", string(result.Signal)),
			zap.String("action", string(result.Action)),
			zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
		}
		switch {
		case result.Skipped:
			a.logger.Debug("周期跳过", fields...)
		case result.Failed():
			a.logger.Warn("周期完成但存在错误", append(fields, zap.Strings("errors", result.Errors))...)
		default:
			a.logger.Info("周期完成", fields...)
		}
	}

	runCycle()

	ticker := time.NewTicker(cfg.Trading.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			runCycle()
		}
	}
}

// preflight 并行完成市场元数据加载与账户凭据校验。
func (a *App) preflight(ctx context.Context, client *exchange.Client) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return client.EnsureMarketsLoaded(groupCtx)
	})

	group.Go(func() error {
		if _, err := client.FetchAssetBalance(groupCtx, a.cfg.Trading.QuoteAsset); err != nil {
			return fmt.Errorf("账户余额查询失败，请检查 API 凭据: %w", err)
		}
		return nil
	})

	return group.Wait()
}
