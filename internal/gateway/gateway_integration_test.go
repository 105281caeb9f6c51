//go:build integration
// +build integration

package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"channel-breakout/internal/config"
	"channel-breakout/internal/exchange"
)

func TestGatewayIntegration_SandboxCancelAll(t *testing.T) {
	configPath := os.Getenv("BREAKOUT_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if !cfg.Exchange.UseSandbox {
		t.Skip("exchange.use_sandbox=false，出于安全考虑跳过真实交易所测试")
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		t.Skip("缺少交易所凭据，跳过测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := exchange.NewClient(cfg.Exchange, cfg.Strategy.Symbol, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化交易所客户端失败: %v", err)
	}
	if err := client.EnsureMarketsLoaded(ctx); err != nil {
		t.Fatalf("加载市场元数据失败: %v", err)
	}

	gw := New(client, cfg.Strategy.Symbol, cfg.Trading, cfg.Exchange.Retry, zap.NewNop())

	count, err := gw.CancelAllOpen(ctx)
	if err != nil {
		t.Fatalf("撤销挂单失败: %v", err)
	}
	t.Logf("沙盒环境撤销挂单数量: %d", count)

	balance, err := client.FetchAssetBalance(ctx, cfg.Trading.QuoteAsset)
	if err != nil {
		t.Fatalf("查询账户余额失败: %v", err)
	}
	t.Logf("%s 余额: free=%.4f locked=%.4f", cfg.Trading.QuoteAsset, balance.Free, balance.Locked)
}
