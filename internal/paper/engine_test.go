package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/signal"
)

type mockLogger struct {
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

const btc = "BTCUSDT"

func indMarginMarket() *domain.Market {
	return &domain.Market{
		MarketID:            btc,
		Symbol:              btc,
		Base:                "BTC",
		Quote:               "USDT",
		HasMargin:           true,
		IndivisiblePosition: true,
		MarginFactor:        0.1,
		Bid:                 100,
		Ask:                 100,
	}
}

func newTestEngine(t *testing.T, balance float64, markets ...*domain.Market) (*Engine, *signal.Recorder) {
	t.Helper()
	rec := &signal.Recorder{}
	e := NewEngine(Config{Name: "paper", Currency: "USDT", Balance: balance}, rec, &mockLogger{})
	e.SetMarkets(markets)
	return e, rec
}

func tick(e *Engine, marketID string, ts, bid, ask float64) {
	ctx := context.Background()
	e.OnTick(ctx, domain.Tick{MarketID: marketID, Timestamp: ts, Bid: bid, Ask: ask})
	e.Update(ctx)
}

func marketOrder(e *Engine, dir domain.Direction, qty float64) *domain.Order {
	o := domain.NewOrder(btc)
	e.SetRefOrderID(o)
	o.Direction = dir
	o.OrderType = domain.OrderMarket
	o.Quantity = qty
	o.MarginTrade = true
	return o
}

func TestMarketEntry(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())

	o := marketOrder(e, domain.DirectionLong, 1)
	require.Equal(t, domain.OrderResultOK, e.CreateOrder(context.Background(), o))

	assert.NotEmpty(t, o.OrderID)
	assert.True(t, o.FullyFilled)
	assert.Equal(t, []string{"order-opened", "order-traded", "position-opened", "order-deleted"}, rec.Kinds())
	assert.Empty(t, e.Orders())

	p, ok := e.Position(btc)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionLong, p.Direction)
	assert.Equal(t, 1.0, p.Quantity)
	assert.Equal(t, 100.0, p.EntryPrice)
	assert.InDelta(t, 10.0, e.Account().UsedMargin, 1e-9)

	traded := rec.Signals()[1].(*signal.OrderTraded)
	assert.Equal(t, o.RefOrderID, traded.RefOrderID)
	assert.Equal(t, 100.0, traded.ExecPrice)
	assert.Equal(t, 1.0, traded.CumulativeFilled)
}

func TestIndMarginIncrease(t *testing.T) {
	e, _ := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	tick(e, btc, 1, 110, 110)
	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())

	p, ok := e.Position(btc)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Quantity)
	assert.InDelta(t, 105.0, p.EntryPrice, 1e-9)
	assert.InDelta(t, 21.0, e.Account().UsedMargin, 1e-9)
}

func TestIndMarginReduce(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 110, Ask: 110.5})
	rec.Reset()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionShort, 0.4)).OK())

	p, ok := e.Position(btc)
	require.True(t, ok)
	assert.InDelta(t, 0.6, p.Quantity, 1e-9)
	assert.Equal(t, 100.0, p.EntryPrice)

	account := e.Account()
	assert.InDelta(t, 4.0, account.RealizedPnL, 1e-9)
	assert.InDelta(t, 1004.0, account.Balance, 1e-9)
	assert.InDelta(t, 6.0, account.UsedMargin, 1e-9)
	assert.Equal(t, []string{"order-opened", "order-traded", "position-updated", "order-deleted"}, rec.Kinds())
}

func TestIndMarginExactClose(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 95, Ask: 95})
	rec.Reset()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionShort, 1)).OK())

	_, ok := e.Position(btc)
	assert.False(t, ok, "an empty position is deleted")
	assert.InDelta(t, -5.0, e.Account().RealizedPnL, 1e-9)
	assert.Equal(t, 0.0, e.Account().UsedMargin)
	assert.Contains(t, rec.Kinds(), "position-deleted")
}

func TestIndMarginReversal(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 90, Ask: 90.5})
	rec.Reset()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionShort, 1.5)).OK())

	p, ok := e.Position(btc)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionShort, p.Direction)
	assert.InDelta(t, 0.5, p.Quantity, 1e-9)
	assert.Equal(t, 90.0, p.EntryPrice)

	account := e.Account()
	assert.InDelta(t, -10.0, account.RealizedPnL, 1e-9)
	// margin of the new net exposure only: 0.5 * 90 * 0.1
	assert.InDelta(t, 4.5, account.UsedMargin, 1e-9)

	updated := rec.Signals()[2].(*signal.PositionUpdated)
	assert.Equal(t, domain.DirectionShort, updated.Direction)
	assert.InDelta(t, 0.5, updated.Quantity, 1e-9)
}

func TestIndMarginReversalInsufficientMargin(t *testing.T) {
	e, rec := newTestEngine(t, 12, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 90, Ask: 90})
	before := e.Account()
	rec.Reset()

	// free 2 + released 10 cannot back 2 * 90 * 0.1
	o := marketOrder(e, domain.DirectionShort, 3)
	assert.Equal(t, domain.OrderResultInsufficientMargin, e.CreateOrder(ctx, o))

	assert.Equal(t, before, e.Account())
	p, ok := e.Position(btc)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionLong, p.Direction)
	assert.Equal(t, 1.0, p.Quantity)
	assert.Equal(t, []string{"order-rejected"}, rec.Kinds())
}

func TestReduceOnlyClamp(t *testing.T) {
	e, _ := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())

	o := marketOrder(e, domain.DirectionShort, 2)
	o.ReduceOnly = true
	require.True(t, e.CreateOrder(ctx, o).OK())

	assert.Equal(t, 1.0, o.Executed)
	_, ok := e.Position(btc)
	assert.False(t, ok, "a reduce-only order never reverses")

	o = marketOrder(e, domain.DirectionShort, 1)
	o.ReduceOnly = true
	assert.Equal(t, domain.OrderResultInvalidArgs, e.CreateOrder(ctx, o))
}

func TestInsufficientMargin(t *testing.T) {
	e, rec := newTestEngine(t, 5, indMarginMarket())
	ctx := context.Background()
	before := e.Account()

	o := marketOrder(e, domain.DirectionLong, 1)
	assert.Equal(t, domain.OrderResultInsufficientMargin, e.CreateOrder(ctx, o))

	limit := marketOrder(e, domain.DirectionLong, 1)
	limit.OrderType = domain.OrderLimit
	limit.Price = 99
	assert.Equal(t, domain.OrderResultInsufficientMargin, e.CreateOrder(ctx, limit))

	assert.Empty(t, e.Orders())
	assert.Empty(t, e.Positions(""))
	assert.Equal(t, before, e.Account())

	require.Equal(t, []string{"order-rejected", "order-rejected"}, rec.Kinds())
	rejected := rec.Signals()[0].(*signal.OrderRejected)
	assert.Equal(t, o.RefOrderID, rejected.RefOrderID)
	assert.Equal(t, domain.OrderResultInsufficientMargin, rejected.Reason)
}

func TestLimitInclusiveBoundary(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()
	tick(e, btc, 1, 100.5, 100.5)

	o := marketOrder(e, domain.DirectionLong, 1)
	o.OrderType = domain.OrderLimit
	o.Price = 100
	require.True(t, e.CreateOrder(ctx, o).OK())
	assert.Len(t, e.Orders(), 1)

	tick(e, btc, 2, 100.1, 100.1)
	assert.Len(t, e.Orders(), 1)

	tick(e, btc, 3, 100, 100)
	assert.Empty(t, e.Orders())
	assert.Equal(t, []string{"order-opened", "order-traded", "position-opened", "order-deleted"}, rec.Kinds())

	p, ok := e.Position(btc)
	require.True(t, ok)
	assert.Equal(t, 100.0, p.EntryPrice)
}

func TestStopLossOrder(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())

	stop := marketOrder(e, domain.DirectionShort, 1)
	stop.OrderType = domain.OrderStop
	stop.StopPrice = 95
	stop.ReduceOnly = true
	require.True(t, e.CreateOrder(ctx, stop).OK())
	rec.Reset()

	tick(e, btc, 1, 97, 97)
	assert.Len(t, e.Orders(), 1)
	assert.Empty(t, rec.Kinds())

	tick(e, btc, 2, 95, 95)
	assert.Empty(t, e.Orders())
	assert.Equal(t, []string{"order-traded", "position-deleted", "order-deleted"}, rec.Kinds())

	traded := rec.Signals()[0].(*signal.OrderTraded)
	assert.Equal(t, 95.0, traded.ExecPrice)
	assert.Equal(t, stop.RefOrderID, traded.RefOrderID)
	assert.InDelta(t, -5.0, e.Account().RealizedPnL, 1e-9)

	assert.Equal(t, domain.OrderResultError, e.CancelOrder(ctx, stop.OrderID, btc), "filled orders cannot be canceled")
}

func TestCancelPending(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	o := marketOrder(e, domain.DirectionLong, 1)
	o.OrderType = domain.OrderLimit
	o.Price = 90
	require.True(t, e.CreateOrder(ctx, o).OK())

	info, err := e.OrderInfo(ctx, o.OrderID, btc)
	require.NoError(t, err)
	assert.True(t, info.Found())
	assert.Equal(t, o.RefOrderID, info.RefID)

	assert.Equal(t, domain.OrderResultOK, e.CancelOrder(ctx, o.OrderID, btc))
	assert.Equal(t, domain.OrderResultError, e.CancelOrder(ctx, o.OrderID, btc))
	assert.Equal(t, []string{"order-opened", "order-canceled"}, rec.Kinds())

	info, err = e.OrderInfo(ctx, o.OrderID, btc)
	require.NoError(t, err)
	assert.False(t, info.Found())
}

func TestTrigger(t *testing.T) {
	m := &domain.Market{Bid: 99, Ask: 101}

	tests := []struct {
		name  string
		order domain.Order
		price float64
		hit   bool
	}{
		{"long limit below ask", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderLimit, Price: 100}, 0, false},
		{"long limit at ask", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderLimit, Price: 101}, 101, true},
		{"short limit at bid", domain.Order{Direction: domain.DirectionShort, OrderType: domain.OrderLimit, Price: 99}, 99, true},
		{"short limit above bid", domain.Order{Direction: domain.DirectionShort, OrderType: domain.OrderLimit, Price: 100}, 0, false},
		{"long stop", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderStop, StopPrice: 99}, 101, true},
		{"long stop not reached", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderStop, StopPrice: 100}, 0, false},
		{"short stop", domain.Order{Direction: domain.DirectionShort, OrderType: domain.OrderStop, StopPrice: 101}, 99, true},
		{"long stop limit clamped", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderStopLimit, StopPrice: 98, Price: 100}, 100, true},
		{"short stop limit clamped", domain.Order{Direction: domain.DirectionShort, OrderType: domain.OrderStopLimit, StopPrice: 102, Price: 100}, 100, true},
		{"long take profit", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderTakeProfit, StopPrice: 99}, 101, true},
		{"long take profit not reached", domain.Order{Direction: domain.DirectionLong, OrderType: domain.OrderTakeProfit, StopPrice: 98}, 0, false},
		{"short take profit limit", domain.Order{Direction: domain.DirectionShort, OrderType: domain.OrderTakeProfitLimit, StopPrice: 100, Price: 98}, 99, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, hit := trigger(&tt.order, m)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.price, price)
		})
	}
}

// Handlers run after the engine lock is released and only ever observe a
// completely applied fill.
func TestNotifyAfterUnlock(t *testing.T) {
	dispatcher := signal.NewDispatcher()
	e := NewEngine(Config{Name: "paper", Currency: "USDT", Balance: 1000}, dispatcher, &mockLogger{})
	e.SetMarkets([]*domain.Market{indMarginMarket()})
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 90, Ask: 90})

	var seen int
	dispatcher.Subscribe(signal.HandlerFunc(func(s signal.Signal) {
		seen++
		account := e.Account()
		p, ok := e.Position(btc)
		require.True(t, ok)

		assert.Equal(t, domain.DirectionShort, p.Direction)
		assert.InDelta(t, 0.5, p.Quantity, 1e-9)
		assert.InDelta(t, 4.5, account.UsedMargin, 1e-9)
		assert.InDelta(t, -10.0, account.RealizedPnL, 1e-9)
		assert.Empty(t, e.Orders())
	}))

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionShort, 1.5)).OK())
	assert.Equal(t, 4, seen)
}

func TestFees(t *testing.T) {
	m := indMarginMarket()
	m.TakerFee = 0.001
	m.MakerFee = 0.0005
	m.TakerCommission = 0.1
	e, rec := newTestEngine(t, 1000, m)
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())

	account := e.Account()
	assert.InDelta(t, 0.2, account.FeesPaid, 1e-9)
	assert.InDelta(t, 999.8, account.Balance, 1e-9)

	traded := rec.Signals()[1].(*signal.OrderTraded)
	assert.InDelta(t, 0.2, traded.CommissionAmount, 1e-9)
	assert.Equal(t, "USDT", traded.CommissionAsset)

	limit := marketOrder(e, domain.DirectionShort, 1)
	limit.OrderType = domain.OrderLimit
	limit.Price = 110
	require.True(t, e.CreateOrder(ctx, limit).OK())
	tick(e, btc, 1, 110, 110)

	// maker fee on 110, no fixed maker commission
	assert.InDelta(t, 0.255, e.Account().FeesPaid, 1e-9)
}

func TestHedgedPositions(t *testing.T) {
	m := indMarginMarket()
	m.IndivisiblePosition = false
	e, rec := newTestEngine(t, 1000, m)
	ctx := context.Background()

	first := marketOrder(e, domain.DirectionLong, 1)
	second := marketOrder(e, domain.DirectionShort, 2)
	require.True(t, e.CreateOrder(ctx, first).OK())
	require.True(t, e.CreateOrder(ctx, second).OK())

	assert.Len(t, e.Positions(btc), 2)
	assert.Equal(t, first.OrderID, first.PositionID)
	assert.InDelta(t, 30.0, e.Account().UsedMargin, 1e-9)

	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 110, Ask: 110})
	rec.Reset()

	closer := marketOrder(e, domain.DirectionShort, 1)
	closer.PositionID = first.PositionID
	closer.ReduceOnly = true
	require.True(t, e.CreateOrder(ctx, closer).OK())

	_, ok := e.Position(first.PositionID)
	assert.False(t, ok)
	p, ok := e.Position(second.PositionID)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Quantity)
	assert.InDelta(t, 10.0, e.Account().RealizedPnL, 1e-9)
	assert.InDelta(t, 20.0, e.Account().UsedMargin, 1e-9)

	deletedPosition := rec.Signals()[2].(*signal.PositionDeleted)
	assert.Equal(t, first.PositionID, deletedPosition.PositionID)
}

func TestClosePosition(t *testing.T) {
	m := indMarginMarket()
	m.HasPosition = true
	e, rec := newTestEngine(t, 1000, m)
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	e.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1, Bid: 104, Ask: 104.5})
	rec.Reset()

	assert.False(t, e.ClosePosition(ctx, "unknown", btc, 0))
	require.True(t, e.ClosePosition(ctx, btc, btc, 0))

	assert.Equal(t, []string{"position-deleted"}, rec.Kinds())
	closed := rec.Signals()[0].(*signal.PositionDeleted)
	assert.Equal(t, 104.0, closed.ExecPrice)
	assert.InDelta(t, 4.0, e.Account().RealizedPnL, 1e-9)
	assert.Empty(t, e.Positions(btc))
}

func TestClosePositionLimit(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	rec.Reset()

	require.True(t, e.ClosePosition(ctx, btc, btc, 105))
	assert.Len(t, e.Orders(), 1)

	tick(e, btc, 1, 105, 105)
	assert.Empty(t, e.Orders())
	assert.Empty(t, e.Positions(btc))
	assert.Equal(t, []string{"order-opened", "order-traded", "position-deleted", "order-deleted"}, rec.Kinds())
}

func TestPositionProtection(t *testing.T) {
	m := indMarginMarket()
	m.HasPosition = true
	e, rec := newTestEngine(t, 1000, m)
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	rec.Reset()

	require.True(t, e.ModifyPosition(ctx, btc, btc, 95, 110))
	require.Equal(t, []string{"position-amended"}, rec.Kinds())
	amended := rec.Signals()[0].(*signal.PositionAmended)
	assert.Equal(t, 95.0, amended.StopLoss)
	assert.Equal(t, 110.0, amended.TakeProfit)

	tick(e, btc, 1, 109, 109)
	assert.Len(t, e.Positions(btc), 1)

	tick(e, btc, 2, 110, 110)
	assert.Empty(t, e.Positions(btc))
	assert.Equal(t, "position-deleted", rec.Kinds()[1])
	assert.InDelta(t, 10.0, e.Account().RealizedPnL, 1e-9)
}

func spotMarket() *domain.Market {
	return &domain.Market{
		MarketID: btc,
		Symbol:   btc,
		Base:     "BTC",
		Quote:    "USDT",
		HasSpot:  true,
		TakerFee: 0.001,
		Bid:      100,
		Ask:      100,
	}
}

func TestSpot(t *testing.T) {
	e, rec := newTestEngine(t, 1000, spotMarket())
	ctx := context.Background()

	buy := marketOrder(e, domain.DirectionLong, 1)
	buy.MarginTrade = false
	require.True(t, e.CreateOrder(ctx, buy).OK())
	assert.Equal(t, []string{"order-opened", "order-traded", "order-deleted"}, rec.Kinds())

	usdt, _ := e.Asset("USDT")
	base, ok := e.Asset("BTC")
	require.True(t, ok)
	assert.InDelta(t, 899.9, usdt.Free, 1e-9)
	assert.Equal(t, 1.0, base.Free)
	assert.Equal(t, 100.0, base.Price)

	oversell := marketOrder(e, domain.DirectionShort, 2)
	oversell.MarginTrade = false
	assert.Equal(t, domain.OrderResultInsufficientFunds, e.CreateOrder(ctx, oversell))

	sell := marketOrder(e, domain.DirectionShort, 1)
	sell.MarginTrade = false
	require.True(t, e.CreateOrder(ctx, sell).OK())

	usdt, _ = e.Asset("USDT")
	base, _ = e.Asset("BTC")
	assert.InDelta(t, 999.8, usdt.Free, 1e-9)
	assert.Equal(t, 0.0, base.Free)
	assert.InDelta(t, 0.2, e.Account().FeesPaid, 1e-9)

	tooBig := marketOrder(e, domain.DirectionLong, 20)
	tooBig.MarginTrade = false
	assert.Equal(t, domain.OrderResultInsufficientFunds, e.CreateOrder(ctx, tooBig))
}

func TestUpdateAccount(t *testing.T) {
	e, _ := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 2)).OK())
	tick(e, btc, 1, 105, 105)

	account := e.Account()
	assert.InDelta(t, 10.0, account.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 20.0, account.UsedMargin, 1e-9)
	assert.InDelta(t, 1010.0/200.0, account.MarginLevel, 1e-9)
	assert.InDelta(t, 1000.0, account.AssetBalance, 1e-9)
	assert.Equal(t, 1.0, e.Timestamp())
}

func TestUnlimited(t *testing.T) {
	rec := &signal.Recorder{}
	e := NewEngine(Config{Name: "paper", Currency: "USDT", Balance: 1, Unlimited: true}, rec, &mockLogger{})
	e.SetMarkets([]*domain.Market{indMarginMarket()})
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 100)).OK())
	tick(e, btc, 1, 110, 110)

	assert.Equal(t, 0.0, e.Account().UnrealizedPnL)
	assert.Len(t, e.Positions(btc), 1)
}

func TestPausedTrader(t *testing.T) {
	e, rec := newTestEngine(t, 1000, indMarginMarket())
	e.SetActivity(false)

	assert.Equal(t, domain.OrderResultError, e.CreateOrder(context.Background(), marketOrder(e, domain.DirectionLong, 1)))
	assert.Empty(t, rec.Kinds())
}

func TestExportImport(t *testing.T) {
	e, _ := newTestEngine(t, 1000, indMarginMarket())
	ctx := context.Background()

	require.True(t, e.CreateOrder(ctx, marketOrder(e, domain.DirectionLong, 1)).OK())
	for _, price := range []float64{90, 80} {
		o := marketOrder(e, domain.DirectionLong, 0.5)
		o.OrderType = domain.OrderLimit
		o.Price = price
		require.True(t, e.CreateOrder(ctx, o).OK())
	}

	data, err := e.Export()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"activity":true`)

	restored, _ := newTestEngine(t, 0, indMarginMarket())
	require.NoError(t, restored.Import(data))

	assert.Equal(t, e.Account(), restored.Account())
	assert.Equal(t, e.Orders(), restored.Orders())
	assert.Equal(t, e.Positions(""), restored.Positions(""))
	usdt, ok := restored.Asset("USDT")
	require.True(t, ok)
	assert.Equal(t, 1000.0, usdt.Free)

	other := NewEngine(Config{Name: "other"}, nil, &mockLogger{})
	assert.Error(t, other.Import(data))
	assert.Error(t, restored.Import([]byte("{")))
}
