package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"channel-breakout/internal/config"
	"channel-breakout/internal/engine"
	"channel-breakout/internal/store"
)

func newMemoryService(t *testing.T) *Service {
	t.Helper()

	s, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("初始化内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	svc, err := NewService(s, nil)
	if err != nil {
		t.Fatalf("初始化监控服务失败: %v", err)
	}
	return svc
}

func TestRecordCycleAndList(t *testing.T) {
	svc := newMemoryService(t)
	ctx := context.Background()

	result := engine.CycleResult{
		StartedAt:  time.Now().UTC().Add(-time.Second),
		FinishedAt: time.Now().UTC(),
		Signal:     "BUY",
		Action:     engine.ActionEnter,
		Quantity:   0.01,
		OrderID:    "order-1",
	}
	svc.RecordCycle(ctx, "BTC/USDT", result)
	svc.RecordError(ctx, "拉取行情失败", errors.New("timeout"), map[string]interface{}{"symbol": "BTC/USDT"})

	cycles, err := svc.ListEvents(ctx, EventCycle, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle event, got %d", len(cycles))
	}

	raw, ok := cycles[0].Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw payload, got %T", cycles[0].Payload)
	}
	var payload CyclePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if payload.Symbol != "BTC/USDT" || payload.Result.OrderID != "order-1" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events in total, got %d", len(all))
	}
}
