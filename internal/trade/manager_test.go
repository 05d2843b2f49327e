package trade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/paper"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/signal"
)

type mockLogger struct {
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

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

func newTestEngine(t *testing.T, balance float64, m *domain.Market) (*paper.Engine, *domain.Market) {
	t.Helper()
	e := paper.NewEngine(paper.Config{Name: "paper", Currency: "USDT", Balance: balance}, nil, &mockLogger{})
	e.SetMarkets([]*domain.Market{m})
	market, ok := e.Market(m.MarketID)
	require.True(t, ok)
	return e, market
}

type session struct {
	engine  *paper.Engine
	manager *Manager
	logger  *mockLogger
}

func newSession(t *testing.T, balance float64, m *domain.Market, cfg ManagerConfig) *session {
	t.Helper()
	dispatcher := signal.NewDispatcher()
	logger := &mockLogger{}
	e := paper.NewEngine(paper.Config{Name: "paper", Currency: "USDT", Balance: balance}, dispatcher, logger)
	e.SetMarkets([]*domain.Market{m})

	mgr := NewManager(m.MarketID, e, nil, logger, cfg)
	dispatcher.Subscribe(mgr)

	s := &session{engine: e, manager: mgr, logger: logger}
	s.tick(1000, 100, 100)
	return s
}

// tick feeds a price to the engine and runs both update passes.
func (s *session) tick(ts, bid, ask float64) {
	ctx := context.Background()
	s.engine.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: ts, Bid: bid, Ask: ask})
	s.engine.Update(ctx)
	s.manager.Update(ctx, ts)
}

func (s *session) enter(t *testing.T, intent ports.Intent) *Trade {
	t.Helper()
	intent.Kind = ports.IntentEnter
	if intent.Direction == domain.DirectionNone {
		intent.Direction = domain.DirectionLong
	}
	if intent.Quantity == 0 {
		intent.Quantity = 1
	}
	tr, err := s.manager.Enter(context.Background(), intent)
	require.NoError(t, err)
	return tr
}

func TestManagerMarketEntry(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket})

	assert.Equal(t, domain.StateFilled, tr.EntryState())
	assert.Equal(t, 1.0, tr.FilledEntryQuantity())
	assert.Equal(t, 100.0, tr.EntryPrice())
	assert.Equal(t, 1000.0, tr.EntryOpenTime())
	assert.Equal(t, btc, tr.PositionID())
	assert.True(t, tr.IsActive())
	assert.Equal(t, 1, s.manager.ActiveTrades())
}

func TestManagerHardStopLoss(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, StopLoss: 95, Hard: true})
	assert.True(t, tr.IsDirty())

	s.tick(1001, 100, 100)
	require.True(t, tr.HasStopOrder())
	require.Len(t, s.engine.Orders(), 1)
	assert.Equal(t, 95.0, s.engine.Orders()[0].StopPrice)

	s.tick(1002, 97, 97)
	assert.True(t, tr.IsActive())
	assert.Len(t, s.engine.Orders(), 1)

	s.tick(1003, 95, 95)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonStopLossMarket, tr.ExitReason())
	assert.Equal(t, 95.0, tr.ExitPrice())
	assert.InDelta(t, -0.05, tr.ProfitLossRate(), 1e-9)
	assert.Empty(t, s.engine.Orders())
	assert.Empty(t, s.engine.Positions(btc))
	assert.Empty(t, s.manager.Trades(), "closed trades are cleaned up")
}

func TestManagerSoftStopLoss(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, StopLoss: 95})

	s.tick(1001, 96, 96)
	assert.True(t, tr.IsActive())
	assert.Empty(t, s.engine.Orders(), "a soft stop places no order")

	s.tick(1002, 94, 94)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonStopLossMarket, tr.ExitReason())
	assert.Equal(t, 94.0, tr.ExitPrice())
	assert.InDelta(t, -6.0, s.engine.Account().RealizedPnL, 1e-9)
}

func TestManagerSoftTakeProfit(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	tr := s.enter(t, ports.Intent{Direction: domain.DirectionShort, OrderType: domain.OrderMarket, TakeProfit: 90})

	s.tick(1001, 89.5, 90)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonTakeProfitMarket, tr.ExitReason())
	assert.InDelta(t, 0.1, tr.ProfitLossRate(), 1e-9)
}

func TestManagerHardTakeProfit(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, TakeProfit: 110, StopLoss: 90, Hard: true})
	s.tick(1001, 100, 100)
	require.True(t, tr.HasLimitOrder())
	require.True(t, tr.HasStopOrder())

	s.tick(1002, 110, 110)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonTakeProfitLimit, tr.ExitReason())

	assert.Equal(t, 110.0, tr.ExitPrice())
	assert.Empty(t, s.engine.Orders(), "the stop order is canceled with the trade")
	assert.Empty(t, s.manager.Trades())
}

func TestManagerEntryTimeout(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind(), EntryTimeout: 60})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderLimit, Price: 90})
	assert.Equal(t, domain.StateOpened, tr.EntryState())
	assert.Len(t, s.engine.Orders(), 1)

	s.tick(1030, 100, 100)
	assert.Equal(t, domain.StateOpened, tr.EntryState())

	s.tick(1060, 100, 100)
	assert.Equal(t, domain.StateCanceled, tr.EntryState())
	assert.Equal(t, domain.ReasonCanceledTimeout, tr.ExitReason())
	assert.Empty(t, s.engine.Orders())
	assert.Empty(t, s.manager.Trades())
}

func TestManagerExpiry(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind(), Expiry: 60})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket})

	s.tick(1059, 101, 101)
	assert.True(t, tr.IsActive())

	s.tick(1060, 102, 102)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonMarketTimeout, tr.ExitReason())
	assert.Equal(t, 102.0, tr.ExitPrice())
}

func TestManagerExitAndCancel(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	ctx := context.Background()

	filled := s.enter(t, ports.Intent{OrderType: domain.OrderMarket})
	pending := s.enter(t, ports.Intent{OrderType: domain.OrderLimit, Price: 95})

	require.NoError(t, s.manager.Apply(ctx, ports.Intent{Kind: ports.IntentExit, TradeID: filled.ID()}))
	assert.True(t, filled.IsClosed())
	assert.Equal(t, domain.ReasonCloseMarket, filled.ExitReason())

	code, err := s.manager.Cancel(ctx, pending.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.CodeAccepted, code)
	assert.Equal(t, domain.ReasonCanceledTargeted, pending.ExitReason())
	assert.True(t, pending.CanDelete())

	_, err = s.manager.Exit(ctx, 99)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestManagerModifyStopLoss(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	ctx := context.Background()

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket})

	code, err := s.manager.ModifyStopLoss(ctx, tr.ID(), 0, true)
	require.NoError(t, err)
	assert.Equal(t, domain.CodeNothingToDo, code)

	code, err = s.manager.ModifyStopLoss(ctx, tr.ID(), 92, true)
	require.NoError(t, err)
	assert.Equal(t, domain.CodeAccepted, code)
	assert.Len(t, s.engine.Orders(), 1)

	// amendments are throttled while the order is live
	code, _ = s.manager.ModifyStopLoss(ctx, tr.ID(), 93, true)
	assert.Equal(t, domain.CodeRejected, code)

	s.tick(1100, 100, 100)
	code, _ = s.manager.ModifyStopLoss(ctx, tr.ID(), 0, true)
	assert.Equal(t, domain.CodeNothingToDo, code)
	assert.Empty(t, s.engine.Orders())
	assert.False(t, tr.HasStopOrder())
}

func TestManagerInsufficientMargin(t *testing.T) {
	s := newSession(t, 5, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	_, err := s.manager.Enter(context.Background(), ports.Intent{Direction: domain.DirectionLong, OrderType: domain.OrderMarket, Quantity: 1})
	assert.True(t, errors.Is(err, ports.ErrInsufficientMargin))
	assert.Empty(t, s.manager.Trades())
	assert.Equal(t, 5.0, s.engine.Account().Balance)
}

func TestManagerRejectedTradeKept(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	s.engine.SetActivity(false)

	_, err := s.manager.Enter(context.Background(), ports.Intent{Direction: domain.DirectionLong, OrderType: domain.OrderMarket, Quantity: 1})
	require.Error(t, err)

	trades := s.manager.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "rejected", trades[0].StateString())

	s.tick(1001, 100, 100)
	assert.Len(t, s.manager.Trades(), 1, "rejected trades stay listed")

	assert.Equal(t, 1, s.manager.Clean(context.Background()))
	assert.Empty(t, s.manager.Trades())
}

func TestManagerIgnoresOtherMarkets(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	tr := s.enter(t, ports.Intent{OrderType: domain.OrderLimit, Price: 90})

	s.manager.Handle(&signal.OrderCanceled{Header: signal.Header{MarketID: "ETHUSDT"}, OrderID: tr.EntryOrderID()})
	s.manager.ProcessSignals(context.Background())
	assert.Equal(t, domain.StateOpened, tr.EntryState())
}

func TestManagerStepStopLoss(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, StopLoss: 95})
	assert.Error(t, s.manager.AddOperation(tr.ID(), NewStepStopLoss(110, 115)))
	require.NoError(t, s.manager.AddOperation(tr.ID(), NewStepStopLoss(110, 105)))

	s.tick(1001, 110, 110)
	assert.Equal(t, 105.0, tr.StopLoss())
	assert.False(t, tr.HasOperations())

	s.tick(1002, 104, 104)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonStopLossMarket, tr.ExitReason())
}

func TestManagerPositionProtection(t *testing.T) {
	m := indMarginMarket()
	m.HasPosition = true
	s := newSession(t, 1000, m, ManagerConfig{Kind: PositionKind()})

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, StopLoss: 95, TakeProfit: 110, Hard: true})
	positions := s.engine.Positions(btc)
	require.Len(t, positions, 1)
	assert.Equal(t, 110.0, positions[0].TakeProfit)

	s.tick(1001, 105, 105)
	assert.True(t, tr.IsActive())

	code, err := s.manager.ModifyStopLoss(context.Background(), tr.ID(), 100, true)
	require.NoError(t, err)
	assert.Equal(t, domain.CodeAccepted, code)
	assert.Equal(t, 100.0, s.engine.Positions(btc)[0].StopLoss)

	s.tick(1002, 110, 110)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, domain.ReasonTakeProfitMarket, tr.ExitReason())
	assert.InDelta(t, 0.1, tr.ProfitLossRate(), 1e-9)
}

func TestManagerCheck(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	ctx := context.Background()

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, StopLoss: 95, Hard: true})
	s.tick(1001, 100, 100)
	require.True(t, tr.HasStopOrder())
	assert.Equal(t, 0, s.manager.Check(ctx))

	// the stop order disappears behind the manager's back
	require.True(t, s.engine.CancelOrder(ctx, tr.StopOrderID(), btc).OK())
	assert.Equal(t, CheckNeedsRepair, tr.Check(ctx, s.engine, indMarginMarket()))

	assert.Equal(t, 0, s.manager.Check(ctx))
	assert.False(t, tr.HasStopOrder())
	assert.Equal(t, CheckConsistent, tr.Check(ctx, s.engine, indMarginMarket()))
}

func TestManagerRisk(t *testing.T) {
	dispatcher := signal.NewDispatcher()
	logger := &mockLogger{}
	e := paper.NewEngine(paper.Config{Name: "paper", Currency: "USDT", Balance: 1000}, dispatcher, logger)
	e.SetMarkets([]*domain.Market{indMarginMarket()})
	rm := risk.NewRiskManager(risk.RiskConfig{MaxQuantity: 10, MaxLeverage: 20, MaxOpenTrades: 1, MaxDailyTrades: 10})
	mgr := NewManager(btc, e, rm, logger, ManagerConfig{Kind: IndMarginKind()})
	dispatcher.Subscribe(mgr)
	ctx := context.Background()

	tr, err := mgr.Enter(ctx, ports.Intent{Direction: domain.DirectionLong, OrderType: domain.OrderMarket, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, rm.Stats().OpenTrades)

	_, err = mgr.Enter(ctx, ports.Intent{Direction: domain.DirectionLong, OrderType: domain.OrderMarket, Quantity: 1})
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest), "max open trades reached")

	_, err = mgr.Exit(ctx, tr.ID())
	require.NoError(t, err)
	mgr.Update(ctx, 1001)
	assert.Equal(t, 0, rm.Stats().OpenTrades)
}

func TestManagerDumpsLoads(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	ctx := context.Background()

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket, StopLoss: 95, Label: "bracket"})
	require.NoError(t, s.manager.AddOperation(tr.ID(), NewStepStopLoss(110, 105)))
	s.enter(t, ports.Intent{OrderType: domain.OrderLimit, Price: 90})

	records, err := s.manager.Dumps("bracket")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "bracket", records[0].Strategy)
	assert.Equal(t, btc, records[0].MarketID)

	restored := NewManager(btc, s.engine, nil, &mockLogger{}, ManagerConfig{Kind: IndMarginKind()})
	records = append(records, ports.TradeRecord{Strategy: "bracket", MarketID: btc, TradeID: 9, Data: []byte("{")})
	assert.Error(t, restored.Loads(ctx, records))

	trades := restored.Trades()
	require.Len(t, trades, 2)
	want, _ := tr.Dumps()
	got, _ := trades[0].Dumps()
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, "bracket", trades[0].Label())

	next, err := restored.Enter(ctx, ports.Intent{Direction: domain.DirectionLong, OrderType: domain.OrderLimit, Price: 80, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, next.ID())
}

func TestTradeReopen(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	ctx := context.Background()
	m, _ := s.engine.Market(btc)

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderLimit, Price: 90})
	require.Len(t, s.engine.Orders(), 1)

	assert.False(t, tr.Reopen(ctx, s.engine, m, 1), "only a canceled entry can be reopened")

	assert.Equal(t, domain.CodeAccepted, tr.CancelOpen(ctx, s.engine, m))
	assert.Equal(t, domain.StateCanceled, tr.EntryState())
	assert.Empty(t, s.engine.Orders())

	assert.False(t, tr.Reopen(ctx, s.engine, m, 0))
	require.True(t, tr.Reopen(ctx, s.engine, m, 2))
	assert.Equal(t, 2.0, tr.OrderQuantity())
	require.Len(t, s.engine.Orders(), 1)
	assert.Equal(t, 2.0, s.engine.Orders()[0].Quantity)
	assert.Equal(t, 90.0, s.engine.Orders()[0].Price)
}

func TestTradeModifyOCOAndCancelClose(t *testing.T) {
	s := newSession(t, 1000, indMarginMarket(), ManagerConfig{Kind: IndMarginKind()})
	ctx := context.Background()
	m, _ := s.engine.Market(btc)

	tr := s.enter(t, ports.Intent{OrderType: domain.OrderMarket})

	assert.Equal(t, domain.CodeAccepted, tr.ModifyOCO(ctx, s.engine, m, 110, 95, true))
	assert.Len(t, s.engine.Orders(), 2)
	assert.True(t, tr.HasStopOrder())
	assert.Equal(t, 110.0, tr.TakeProfit())
	assert.Equal(t, 95.0, tr.StopLoss())

	assert.Equal(t, domain.CodeAccepted, tr.CancelClose(ctx, s.engine, m))
	assert.Empty(t, s.engine.Orders())
	assert.False(t, tr.HasStopOrder())
	assert.True(t, tr.IsActive())
	assert.Equal(t, domain.CodeNothingToDo, tr.CancelClose(ctx, s.engine, m))
}
