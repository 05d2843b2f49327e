package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/paper"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/signal"
	"cryptoPaperTrader/internal/trade"
)

const tickBuffer = 1024

// Config holds the session settings.
type Config struct {
	Markets         []string
	Engine          paper.Config
	Manager         trade.ManagerConfig
	UpdateInterval  time.Duration // periodic update pass without ticks, 0 disables
	PersistInterval time.Duration // periodic save, 0 disables
}

// Deps are the collaborators of a session. Feed, Strategy, Risk, Trades, States and
// Notifiers are optional.
type Deps struct {
	Logger    ports.Logger
	Feed      ports.MarketFeed
	Strategy  ports.Strategy
	Risk      *risk.RiskManager
	Trades    ports.TradeRepository
	States    ports.TraderStateRepository
	Notifiers []signal.Handler
}

// Session runs one paper trader with a trade manager per market.
type Session struct {
	cfg        Config
	deps       Deps
	logger     ports.Logger
	dispatcher *signal.Dispatcher
	engine     *paper.Engine

	mu       sync.Mutex // serializes ticks, update passes and persistence
	managers map[string]*trade.Manager
}

// NewSession creates a session. Markets are installed by Init.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for session", ports.ErrConfigurationError)
	}
	if len(cfg.Markets) == 0 {
		return nil, fmt.Errorf("%w: at least one market is required", ports.ErrConfigurationError)
	}

	dispatcher := signal.NewDispatcher()
	s := &Session{
		cfg:        cfg,
		deps:       deps,
		logger:     deps.Logger,
		dispatcher: dispatcher,
		engine:     paper.NewEngine(cfg.Engine, dispatcher, deps.Logger),
		managers:   make(map[string]*trade.Manager, len(cfg.Markets)),
	}
	for _, id := range cfg.Markets {
		mgr := trade.NewManager(id, s.engine, deps.Risk, deps.Logger, cfg.Manager)
		s.managers[id] = mgr
		dispatcher.Subscribe(mgr)
	}
	for _, h := range deps.Notifiers {
		dispatcher.Subscribe(h)
	}
	return s, nil
}

// Engine returns the paper engine of the session.
func (s *Session) Engine() *paper.Engine { return s.engine }

// Manager returns the trade manager of a market.
func (s *Session) Manager(marketID string) (*trade.Manager, bool) {
	mgr, ok := s.managers[marketID]
	return mgr, ok
}

// Subscribe adds a signal handler.
func (s *Session) Subscribe(h signal.Handler) { s.dispatcher.Subscribe(h) }

func (s *Session) strategyName() string {
	if s.deps.Strategy == nil {
		return "manual"
	}
	return s.deps.Strategy.Name()
}

// Init installs the markets, from the feed when markets is nil, then restores any
// persisted state.
func (s *Session) Init(ctx context.Context, markets []*domain.Market) error {
	const op = "Session.Init"

	if markets == nil {
		if s.deps.Feed == nil {
			return fmt.Errorf("%s: %w: no market source", op, ports.ErrConfigurationError)
		}
		var err error
		markets, err = s.deps.Feed.FetchMarkets(ctx, s.cfg.Markets)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	known := make(map[string]bool, len(markets))
	for _, m := range markets {
		known[m.MarketID] = true
	}
	for _, id := range s.cfg.Markets {
		if !known[id] {
			return fmt.Errorf("%s: %w: %s", op, ports.ErrMarketNotFound, id)
		}
	}
	s.engine.SetMarkets(markets)

	if err := s.Restore(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info(ctx, op+": Session ready", map[string]interface{}{
		"trader": s.engine.Name(), "markets": s.cfg.Markets, "strategy": s.strategyName(),
	})
	return nil
}

// Restore loads the trader snapshot and the trades of every market, then reconciles
// the trades with the restored orders.
func (s *Session) Restore(ctx context.Context) error {
	const op = "Session.Restore"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deps.States != nil {
		data, err := s.deps.States.LoadTraderState(ctx, s.engine.Name())
		if err != nil {
			return err
		}
		if data != nil {
			if err := s.engine.Import(data); err != nil {
				return err
			}
			s.logger.Info(ctx, op+": Trader state restored", map[string]interface{}{"trader": s.engine.Name()})
		}
	}

	if s.deps.Trades == nil {
		return nil
	}
	for _, id := range s.cfg.Markets {
		records, err := s.deps.Trades.LoadTrades(ctx, s.strategyName(), id)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			continue
		}
		mgr := s.managers[id]
		if err := mgr.Loads(ctx, records); err != nil {
			// undecodable trades are skipped, the others are kept
			s.logger.Error(ctx, err, op+": Some trades could not be restored", map[string]interface{}{"marketID": id})
		}
		if failed := mgr.Check(ctx); failed > 0 {
			s.logger.Warn(ctx, op+": Restored trades need manual intervention", map[string]interface{}{"marketID": id, "count": failed})
		}
	}
	return nil
}

// Persist saves the trader snapshot and every trade.
func (s *Session) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx)
}

func (s *Session) persist(ctx context.Context) error {
	var errs []error

	if s.deps.States != nil {
		data, err := s.engine.Export()
		if err == nil {
			err = s.deps.States.SaveTraderState(ctx, s.engine.Name(), data)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.deps.Trades != nil {
		for _, id := range s.cfg.Markets {
			records, err := s.managers[id].Dumps(s.strategyName())
			if err == nil {
				err = s.deps.Trades.SaveTrades(ctx, s.strategyName(), id, records)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error(ctx, err, "Session.Persist: Save failed")
		return err
	}
	s.logger.Debug(ctx, "Session.Persist: Session saved")
	return nil
}

// OnTick applies one tick: engine prices, engine update pass, trade management of the
// market, then the strategy intents.
func (s *Session) OnTick(ctx context.Context, tick domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mgr, ok := s.managers[tick.MarketID]
	if !ok {
		return
	}
	s.engine.OnTick(ctx, tick)
	s.engine.Update(ctx)
	mgr.Update(ctx, tick.Timestamp)
	s.decide(ctx, mgr, tick.Timestamp)
}

// Update runs an update pass over every market at the engine time.
func (s *Session) Update(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.Update(ctx)
	ts := s.engine.Timestamp()
	for _, id := range s.cfg.Markets {
		s.managers[id].Update(ctx, ts)
	}
}

func (s *Session) decide(ctx context.Context, mgr *trade.Manager, ts float64) {
	if s.deps.Strategy == nil {
		return
	}
	m, ok := s.engine.Market(mgr.MarketID())
	if !ok {
		return
	}
	view := ports.TradeView{
		Market:      m,
		Timestamp:   ts,
		ActiveTrade: mgr.ActiveTrades(),
		Balance:     s.engine.Account().Balance,
	}
	for _, intent := range s.deps.Strategy.Process(ctx, view) {
		if err := mgr.Apply(ctx, intent); err != nil {
			s.logger.Warn(ctx, "Session: Intent refused", map[string]interface{}{
				"marketID": mgr.MarketID(), "kind": int(intent.Kind), "error": err.Error(),
			})
		}
	}
}

// Run streams ticks from the feed until ctx is done, running the periodic update and
// persistence passes. The session is saved on exit.
func (s *Session) Run(ctx context.Context) error {
	const op = "Session.Run"
	if s.deps.Feed == nil {
		return fmt.Errorf("%s: %w: no feed", op, ports.ErrConfigurationError)
	}

	ticks := make(chan domain.Tick, tickBuffer)
	done, err := s.deps.Feed.StreamTicks(ctx, s.cfg.Markets,
		func(t domain.Tick) {
			select {
			case ticks <- t:
			default:
				s.logger.Warn(ctx, op+": Tick dropped, session is lagging", map[string]interface{}{"marketID": t.MarketID})
			}
		},
		func(err error) {
			s.logger.Warn(ctx, op+": Feed error reported", map[string]interface{}{"error": err.Error()})
		})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	updateC, stopUpdate := ticker(s.cfg.UpdateInterval)
	defer stopUpdate()
	persistC, stopPersist := ticker(s.cfg.PersistInterval)
	defer stopPersist()

	s.logger.Info(ctx, op+": Streaming started", map[string]interface{}{"markets": s.cfg.Markets})
	for {
		select {
		case t := <-ticks:
			s.OnTick(ctx, t)
		case <-updateC:
			s.Update(ctx)
		case <-persistC:
			s.Persist(ctx)
		case <-done:
			s.Persist(context.Background())
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: %w: feed stopped", op, ports.ErrConnectionFailed)
		case <-ctx.Done():
			s.logger.Info(ctx, op+": Shutting down")
			<-done
			return s.Persist(context.Background())
		}
	}
}

// ticker returns a nil channel when d is not positive.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Report returns the account summary followed by the status lines of every trade.
func (s *Session) Report() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.engine.Account()
	lines := []string{
		fmt.Sprintf("Account %s balance %.8g %s, used margin %.8g, free margin %.8g",
			acc.Name, acc.Balance, acc.Currency, acc.UsedMargin, acc.FreeMargin()),
		fmt.Sprintf("Realized P&L %.8g, unrealized P&L %.8g, fees %.8g",
			acc.RealizedPnL, acc.UnrealizedPnL, acc.FeesPaid),
	}

	ids := append([]string(nil), s.cfg.Markets...)
	sort.Strings(ids)
	for _, id := range ids {
		m, ok := s.engine.Market(id)
		if !ok {
			continue
		}
		for _, t := range s.managers[id].Trades() {
			lines = append(lines, fmt.Sprintf("[%s]", id))
			lines = append(lines, t.InfoReport(m)...)
		}
	}
	return lines
}
