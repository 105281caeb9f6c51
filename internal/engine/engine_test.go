package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"channel-breakout/internal/exchange"
	"channel-breakout/internal/position"
	"channel-breakout/internal/signal"
)

type fakeMarket struct {
	bars  []exchange.Candle
	err   error
	calls int
}

func (f *fakeMarket) FetchCandles(ctx context.Context, timeframe string, limit int64) ([]exchange.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

type fakeAccount struct {
	equity exchange.BalanceSnapshot
	err    error
	calls  int
}

func (f *fakeAccount) FetchAssetBalance(ctx context.Context, asset string) (exchange.BalanceSnapshot, error) {
	f.calls++
	if f.err != nil {
		return exchange.BalanceSnapshot{}, f.err
	}
	return f.equity, nil
}

type fakeTracker struct {
	pos   position.Position
	err   error
	calls int
}

func (f *fakeTracker) Current(ctx context.Context) (position.Position, error) {
	f.calls++
	if f.err != nil {
		return position.Position{}, f.err
	}
	return f.pos, nil
}

type fakeGateway struct {
	cancelCount int
	cancelErr   error
	enterErr    error
	exitErr     error

	cancelCalls int
	enterCalls  int
	exitCalls   int
	enterQty    float64
	exitQty     float64
}

func (f *fakeGateway) CancelAllOpen(ctx context.Context) (int, error) {
	f.cancelCalls++
	return f.cancelCount, f.cancelErr
}

func (f *fakeGateway) MarketEnter(ctx context.Context, quantity float64) (exchange.OrderReceipt, error) {
	f.enterCalls++
	f.enterQty = quantity
	if f.enterErr != nil {
		return exchange.OrderReceipt{}, f.enterErr
	}
	return exchange.OrderReceipt{OrderID: "enter-1", Side: "buy", Amount: quantity, Status: "closed"}, nil
}

func (f *fakeGateway) MarketExit(ctx context.Context, quantity float64) (exchange.OrderReceipt, error) {
	f.exitCalls++
	f.exitQty = quantity
	if f.exitErr != nil {
		return exchange.OrderReceipt{}, f.exitErr
	}
	return exchange.OrderReceipt{OrderID: "exit-1", Side: "sell", Amount: quantity, Status: "closed"}, nil
}

type fakeSizer struct {
	size float64
}

func (f *fakeSizer) Size(equity float64) float64 {
	return f.size
}

// barsForSignal 构造一段K线，使剔除最后一根未收盘K线后的信号为期望值。
// 通道窗口为前3根，评估第4根；第5根是会被引擎丢弃的未收盘K线。
func barsForSignal(sig signal.Signal) []exchange.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	base := [][4]float64{
		{100, 110, 95, 105},
		{105, 112, 100, 108},
		{108, 111, 102, 109},
	}

	var evaluated [4]float64
	switch sig {
	case signal.SignalBuy:
		evaluated = [4]float64{109, 115, 103, 114}
	case signal.SignalSell:
		evaluated = [4]float64{109, 110, 92, 94}
	default:
		evaluated = [4]float64{109, 112, 96, 107}
	}

	rows := append(append([][4]float64{}, base...), evaluated, [4]float64{107, 108, 105, 106})

	bars := make([]exchange.Candle, 0, len(rows))
	for i, v := range rows {
		bars = append(bars, exchange.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      v[0], High: v[1], Low: v[2], Close: v[3], Volume: 1,
		})
	}
	return bars
}

func newTestEngine(tracker *fakeTracker, market *fakeMarket, account *fakeAccount, gw *fakeGateway) *Engine {
	opts := Options{
		Symbol:      "BTC/USDT",
		Interval:    "1m",
		Length:      3,
		SettleDelay: 50 * time.Millisecond,
		QuoteAsset:  "USDT",
	}
	return New(opts, market, account, tracker, gw, &fakeSizer{size: 0.01}, nil)
}

func flatPos() position.Position {
	return position.Position{Side: position.SideFlat, Asset: "BTC"}
}

func longPos(size float64) position.Position {
	return position.Position{Side: position.SideLong, Size: size, Asset: "BTC"}
}

func TestRunCycle_ReconciliationTable(t *testing.T) {
	cases := []struct {
		name       string
		pos        position.Position
		sig        signal.Signal
		wantAction Action
	}{
		{"flat_buy_enters", flatPos(), signal.SignalBuy, ActionEnter},
		{"flat_sell_noop", flatPos(), signal.SignalSell, ActionNone},
		{"flat_hold_noop", flatPos(), signal.SignalHold, ActionNone},
		{"flat_insufficient_noop", flatPos(), signal.SignalInsufficientData, ActionNone},
		{"long_sell_exits", longPos(0.02), signal.SignalSell, ActionExit},
		{"long_buy_holds", longPos(0.02), signal.SignalBuy, ActionNone},
		{"long_hold_holds", longPos(0.02), signal.SignalHold, ActionNone},
		{"long_insufficient_holds", longPos(0.02), signal.SignalInsufficientData, ActionNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := &fakeTracker{pos: tc.pos}
			market := &fakeMarket{bars: barsForSignal(tc.sig)}
			if tc.sig == signal.SignalInsufficientData {
				market.bars = market.bars[:2]
			}
			account := &fakeAccount{equity: exchange.BalanceSnapshot{Asset: "USDT", Free: 10000}}
			gw := &fakeGateway{}

			eng := newTestEngine(tracker, market, account, gw)
			result := eng.RunCycle(context.Background())

			if result.Action != tc.wantAction {
				t.Fatalf("expected action %s, got %s (signal=%s errors=%v)", tc.wantAction, result.Action, result.Signal, result.Errors)
			}

			// NONE 的组合除持仓与行情查询外不得触达交易所。
			if tc.wantAction == ActionNone {
				if gw.cancelCalls != 0 || gw.enterCalls != 0 || gw.exitCalls != 0 {
					t.Errorf("no-op pair issued exchange calls: cancel=%d enter=%d exit=%d", gw.cancelCalls, gw.enterCalls, gw.exitCalls)
				}
				if account.calls != 0 {
					t.Errorf("no-op pair queried equity %d times", account.calls)
				}
			} else {
				if gw.cancelCalls != 1 {
					t.Errorf("expected cancel-all before order, got %d calls", gw.cancelCalls)
				}
			}
		})
	}
}

func TestRunCycle_ScenarioA_FlatBuyEnters(t *testing.T) {
	tracker := &fakeTracker{pos: flatPos()}
	market := &fakeMarket{bars: barsForSignal(signal.SignalBuy)}
	account := &fakeAccount{equity: exchange.BalanceSnapshot{Asset: "USDT", Free: 10000}}
	gw := &fakeGateway{cancelCount: 0}

	eng := newTestEngine(tracker, market, account, gw)
	result := eng.RunCycle(context.Background())

	if result.Action != ActionEnter {
		t.Fatalf("expected ENTER, got %s", result.Action)
	}
	if result.Cancelled != 0 {
		t.Errorf("expected 0 cancelled, got %d", result.Cancelled)
	}
	if gw.enterCalls != 1 {
		t.Fatalf("expected one market buy, got %d", gw.enterCalls)
	}
	if math.Abs(gw.enterQty-0.01) > 1e-12 {
		t.Errorf("expected sizing output 0.01, got %f", gw.enterQty)
	}
	if result.Failed() {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	if result.OrderID != "enter-1" {
		t.Errorf("expected order id recorded, got %q", result.OrderID)
	}
}

func TestRunCycle_ScenarioB_LongSellExitsFullSize(t *testing.T) {
	tracker := &fakeTracker{pos: longPos(0.02)}
	market := &fakeMarket{bars: barsForSignal(signal.SignalSell)}
	account := &fakeAccount{}
	gw := &fakeGateway{cancelCount: 2}

	eng := newTestEngine(tracker, market, account, gw)
	result := eng.RunCycle(context.Background())

	if result.Action != ActionExit {
		t.Fatalf("expected EXIT, got %s", result.Action)
	}
	if result.Cancelled != 2 {
		t.Errorf("expected 2 cancelled, got %d", result.Cancelled)
	}
	if gw.exitCalls != 1 {
		t.Fatalf("expected one market sell, got %d", gw.exitCalls)
	}
	if math.Abs(gw.exitQty-0.02) > 1e-12 {
		t.Errorf("expected exit for exactly 0.02, got %f", gw.exitQty)
	}
	if gw.enterCalls != 0 {
		t.Errorf("exit cycle must not enter, got %d enter calls", gw.enterCalls)
	}
}

func TestRunCycle_ScenarioC_EnterFailureRecordedNextCycleIndependent(t *testing.T) {
	tracker := &fakeTracker{pos: flatPos()}
	market := &fakeMarket{bars: barsForSignal(signal.SignalBuy)}
	account := &fakeAccount{equity: exchange.BalanceSnapshot{Asset: "USDT", Free: 10000}}
	gw := &fakeGateway{enterErr: exchange.ErrExchangeUnavailable}

	eng := newTestEngine(tracker, market, account, gw)
	result := eng.RunCycle(context.Background())

	if !result.Failed() {
		t.Fatalf("expected cycle failure recorded")
	}
	if result.OrderID != "" {
		t.Errorf("no order must be recorded as placed, got %q", result.OrderID)
	}

	// 下一周期独立执行，不受上一周期失败影响。
	gw.enterErr = nil
	second := eng.RunCycle(context.Background())
	if second.Skipped {
		t.Fatalf("next cycle must not be skipped after a failed enter")
	}
	if second.Action != ActionEnter || second.Failed() {
		t.Fatalf("expected clean ENTER on next cycle, got %s errors=%v", second.Action, second.Errors)
	}
}

func TestRunCycle_DataFailureAbortsCycleOnly(t *testing.T) {
	tracker := &fakeTracker{pos: flatPos()}
	market := &fakeMarket{err: exchange.ErrDataUnavailable}
	account := &fakeAccount{}
	gw := &fakeGateway{}

	eng := newTestEngine(tracker, market, account, gw)
	result := eng.RunCycle(context.Background())

	if !result.Failed() {
		t.Fatalf("expected data failure recorded")
	}
	if result.Action != ActionNone {
		t.Errorf("expected no action on aborted cycle, got %s", result.Action)
	}
	if gw.cancelCalls+gw.enterCalls+gw.exitCalls != 0 {
		t.Errorf("aborted cycle must not touch the order gateway")
	}
}

func TestRunCycle_PositionFailureAbortsCycleOnly(t *testing.T) {
	tracker := &fakeTracker{err: exchange.ErrExchangeUnavailable}
	market := &fakeMarket{bars: barsForSignal(signal.SignalBuy)}
	gw := &fakeGateway{}

	eng := newTestEngine(tracker, market, &fakeAccount{}, gw)
	result := eng.RunCycle(context.Background())

	if !result.Failed() {
		t.Fatalf("expected position failure recorded")
	}
	if market.calls != 0 {
		t.Errorf("cycle must abort before fetching bars, got %d fetches", market.calls)
	}
}

func TestRunCycle_SettleWindowSkipsFollowingCycle(t *testing.T) {
	tracker := &fakeTracker{pos: longPos(0.02)}
	market := &fakeMarket{bars: barsForSignal(signal.SignalSell)}
	gw := &fakeGateway{}

	eng := newTestEngine(tracker, market, &fakeAccount{}, gw)

	first := eng.RunCycle(context.Background())
	if first.Action != ActionExit || first.Failed() {
		t.Fatalf("expected clean EXIT, got %s errors=%v", first.Action, first.Errors)
	}

	second := eng.RunCycle(context.Background())
	if !second.Skipped {
		t.Fatalf("expected cycle inside settle window to be skipped")
	}

	time.Sleep(60 * time.Millisecond)
	third := eng.RunCycle(context.Background())
	if third.Skipped {
		t.Fatalf("expected cycle after settle window to run")
	}
}

func TestRunCycle_PartialCancelFailureProceeds(t *testing.T) {
	tracker := &fakeTracker{pos: longPos(0.02)}
	market := &fakeMarket{bars: barsForSignal(signal.SignalSell)}
	gw := &fakeGateway{cancelCount: 1, cancelErr: exchange.ErrExchangeUnavailable}

	eng := newTestEngine(tracker, market, &fakeAccount{}, gw)
	result := eng.RunCycle(context.Background())

	if gw.exitCalls != 1 {
		t.Fatalf("engine must proceed with exit despite partial cancel failure")
	}
	if result.Action != ActionExit {
		t.Errorf("expected EXIT, got %s", result.Action)
	}
	if !result.Failed() {
		t.Errorf("partial cancel failure must be recorded")
	}
}
