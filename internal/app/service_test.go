package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/paper"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/signal"
	"cryptoPaperTrader/internal/trade"
)

const btc = "BTCUSDT"

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockStrategy enters a single long market order.
type mockStrategy struct {
	stopLoss float64
	calls    int
	entered  bool
}

func (s *mockStrategy) Name() string { return "mock" }

func (s *mockStrategy) Process(ctx context.Context, view ports.TradeView) []ports.Intent {
	s.calls++
	if view.ActiveTrade > 0 || s.entered {
		return nil
	}
	s.entered = true
	return []ports.Intent{{
		Kind:      ports.IntentEnter,
		MarketID:  view.Market.MarketID,
		Direction: domain.DirectionLong,
		OrderType: domain.OrderMarket,
		Quantity:  1,
		StopLoss:  s.stopLoss,
	}}
}

type mockFeed struct {
	markets []*domain.Market
	ticks   []domain.Tick
	err     error
}

func (f *mockFeed) FetchMarkets(ctx context.Context, ids []string) ([]*domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

func (f *mockFeed) StreamTicks(ctx context.Context, ids []string, handler func(domain.Tick), errHandler func(error)) (<-chan struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, t := range f.ticks {
			handler(t)
		}
		<-ctx.Done()
	}()
	return done, nil
}

type memoryRepo struct {
	mu     sync.Mutex
	trades map[string][]ports.TradeRecord
	states map[string]json.RawMessage
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{trades: make(map[string][]ports.TradeRecord), states: make(map[string]json.RawMessage)}
}

func (r *memoryRepo) SaveTrades(ctx context.Context, strategy, marketID string, records []ports.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[strategy+"/"+marketID] = records
	return nil
}

func (r *memoryRepo) LoadTrades(ctx context.Context, strategy, marketID string) ([]ports.TradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trades[strategy+"/"+marketID], nil
}

func (r *memoryRepo) ListMarkets(ctx context.Context, strategy string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for key := range r.trades {
		if name, id, ok := strings.Cut(key, "/"); ok && name == strategy {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) SaveTraderState(ctx context.Context, name string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[name] = data
	return nil
}

func (r *memoryRepo) LoadTraderState(ctx context.Context, name string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[name], nil
}

func btcMarket() *domain.Market {
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

func testConfig() Config {
	return Config{
		Markets: []string{btc},
		Engine:  paper.Config{Name: "paper", Currency: "USDT", Balance: 1000},
		Manager: trade.ManagerConfig{Kind: trade.IndMarginKind()},
	}
}

func newTestSession(t *testing.T, deps Deps) *Session {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = &mockLogger{}
	}
	s, err := NewSession(testConfig(), deps)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background(), []*domain.Market{btcMarket()}))
	return s
}

func TestNewSession(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr bool
	}{
		{name: "valid", cfg: testConfig(), deps: Deps{Logger: &mockLogger{}}},
		{name: "no logger", cfg: testConfig(), wantErr: true},
		{name: "no markets", cfg: Config{}, deps: Deps{Logger: &mockLogger{}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(tt.cfg, tt.deps)
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrConfigurationError)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			_, ok := s.Manager(btc)
			assert.True(t, ok)
		})
	}
}

func TestSessionInit(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown market", func(t *testing.T) {
		s, err := NewSession(testConfig(), Deps{Logger: &mockLogger{}})
		require.NoError(t, err)
		other := btcMarket()
		other.MarketID = "ETHUSDT"
		assert.ErrorIs(t, s.Init(ctx, []*domain.Market{other}), ports.ErrMarketNotFound)
	})

	t.Run("markets from feed", func(t *testing.T) {
		feed := &mockFeed{markets: []*domain.Market{btcMarket()}}
		s, err := NewSession(testConfig(), Deps{Logger: &mockLogger{}, Feed: feed})
		require.NoError(t, err)
		require.NoError(t, s.Init(ctx, nil))
		_, ok := s.Engine().Market(btc)
		assert.True(t, ok)
	})

	t.Run("feed failure", func(t *testing.T) {
		feed := &mockFeed{err: ports.ErrConnectionFailed}
		s, err := NewSession(testConfig(), Deps{Logger: &mockLogger{}, Feed: feed})
		require.NoError(t, err)
		assert.ErrorIs(t, s.Init(ctx, nil), ports.ErrConnectionFailed)
	})

	t.Run("no market source", func(t *testing.T) {
		s, err := NewSession(testConfig(), Deps{Logger: &mockLogger{}})
		require.NoError(t, err)
		assert.ErrorIs(t, s.Init(ctx, nil), ports.ErrConfigurationError)
	})
}

func TestSessionOnTick(t *testing.T) {
	ctx := context.Background()
	strat := &mockStrategy{stopLoss: 95}
	recorder := &signal.Recorder{}
	s := newTestSession(t, Deps{Strategy: strat, Notifiers: []signal.Handler{recorder}})
	mgr, _ := s.Manager(btc)

	s.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1000, Bid: 100, Ask: 100})
	require.Len(t, mgr.Trades(), 1)
	assert.Equal(t, 1, mgr.ActiveTrades())
	assert.Len(t, s.Engine().Positions(btc), 1)
	assert.NotEmpty(t, recorder.Signals())

	s.OnTick(ctx, domain.Tick{MarketID: "ETHUSDT", Timestamp: 1001, Bid: 1, Ask: 1})
	assert.Equal(t, 1, strat.calls, "ticks of unmanaged markets are ignored")

	s.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1002, Bid: 94, Ask: 94})
	assert.Empty(t, s.Engine().Positions(btc))
	assert.InDelta(t, -6.0, s.Engine().Account().RealizedPnL, 1e-9)
}

func TestSessionPersistRestore(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()

	s := newTestSession(t, Deps{Strategy: &mockStrategy{}, Trades: repo, States: repo})
	s.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1000, Bid: 100, Ask: 100})
	require.NoError(t, s.Persist(ctx))

	assert.Contains(t, repo.states, "paper")
	ids, err := repo.ListMarkets(ctx, "mock")
	require.NoError(t, err)
	assert.Equal(t, []string{btc}, ids)

	logger := &mockLogger{}
	restored := newTestSession(t, Deps{Logger: logger, Strategy: &mockStrategy{}, Trades: repo, States: repo})
	mgr, _ := restored.Manager(btc)
	require.Len(t, mgr.Trades(), 1)
	assert.Equal(t, 1, mgr.ActiveTrades())
	assert.Len(t, restored.Engine().Positions(btc), 1)
	assert.Empty(t, logger.warnMsgs)
	assert.Contains(t, logger.infoMsgs, "Session.Restore: Trader state restored")
}

func TestSessionReport(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Deps{Strategy: &mockStrategy{}})
	s.OnTick(ctx, domain.Tick{MarketID: btc, Timestamp: 1000, Bid: 100, Ask: 100})

	lines := s.Report()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "balance 1000 USDT")
	assert.Equal(t, "["+btc+"]", lines[2])
}

func TestSessionRun(t *testing.T) {
	repo := newMemoryRepo()
	feed := &mockFeed{ticks: []domain.Tick{{MarketID: btc, Timestamp: 1000, Bid: 100, Ask: 100}}}
	cfg := testConfig()
	cfg.UpdateInterval = 10 * time.Millisecond

	s, err := NewSession(cfg, Deps{Logger: &mockLogger{}, Feed: feed, Strategy: &mockStrategy{}, Trades: repo, States: repo})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background(), []*domain.Market{btcMarket()}))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(s.Engine().Positions(btc)) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	records, err := repo.LoadTrades(context.Background(), "mock", btc)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSessionRunWithoutFeed(t *testing.T) {
	s := newTestSession(t, Deps{})
	err := s.Run(context.Background())
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}
