package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/signal"
)

// ManagerConfig holds the defaults applied to the trades of a manager.
type ManagerConfig struct {
	Kind          Kind
	EntryTimeout  float64 // seconds, 0 never
	Expiry        float64 // seconds, 0 never
	ModifyTimeout float64 // seconds between two protective order amendments
	CommentPolicy CommentPolicy
	Context       string
}

// Manager owns the trades of one strategy on one market. Lifecycle signals are queued
// by Handle and applied by ProcessSignals, so the execution layer can notify from
// within an order submission.
type Manager struct {
	marketID string
	trader   ports.Trader
	risk     *risk.RiskManager
	logger   ports.Logger
	cfg      ManagerConfig

	mu       sync.Mutex
	trades   []*Trade
	nextID   int
	exposure map[int]float64 // trade id -> notional registered in the risk manager

	inboxMu sync.Mutex
	inbox   []signal.Signal
}

// NewManager creates a trade manager. rm may be nil.
func NewManager(marketID string, trader ports.Trader, rm *risk.RiskManager, logger ports.Logger, cfg ManagerConfig) *Manager {
	if cfg.Kind.Pricing == nil {
		cfg.Kind = KindFor(cfg.Kind.Type)
	}
	return &Manager{
		marketID: marketID,
		trader:   trader,
		risk:     rm,
		logger:   logger,
		cfg:      cfg,
		exposure: make(map[int]float64),
	}
}

// MarketID returns the managed market id.
func (mgr *Manager) MarketID() string { return mgr.marketID }

// Handle queues a signal of the managed market.
func (mgr *Manager) Handle(s signal.Signal) {
	if s.Market() != mgr.marketID {
		return
	}
	mgr.inboxMu.Lock()
	mgr.inbox = append(mgr.inbox, s)
	mgr.inboxMu.Unlock()
}

func (mgr *Manager) drain() []signal.Signal {
	mgr.inboxMu.Lock()
	defer mgr.inboxMu.Unlock()
	pending := mgr.inbox
	mgr.inbox = nil
	return pending
}

// ProcessSignals applies the queued signals to the targeted trades, in arrival order.
func (mgr *Manager) ProcessSignals(ctx context.Context) {
	const op = "Manager.ProcessSignals"

	for {
		pending := mgr.drain()
		if len(pending) == 0 {
			return
		}

		m, ok := mgr.trader.Market(mgr.marketID)
		if !ok {
			mgr.logger.Warn(ctx, op+": Market not found, signals dropped", map[string]interface{}{
				"marketID": mgr.marketID, "count": len(pending),
			})
			return
		}

		mgr.mu.Lock()
		for _, s := range pending {
			for _, t := range mgr.trades {
				if signal.IsOrder(s) {
					if t.IsTargetOrder(signal.OrderID(s), s.Ref()) {
						mgr.safely(ctx, t, s.Kind(), func() { t.OrderSignal(s, m) })
					}
				} else if t.IsTargetPosition(signal.PositionID(s), s.Ref()) {
					mgr.safely(ctx, t, s.Kind(), func() { t.PositionSignal(s, m) })
				}
			}
		}
		mgr.trackExposure(ctx)
		mgr.mu.Unlock()
	}
}

// safely runs fn for one trade; a panic is logged and does not stop the other trades.
func (mgr *Manager) safely(ctx context.Context, t *Trade, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error(ctx, fmt.Errorf("%w: %v", ports.ErrInvalidTrade, r), "Manager: Trade processing failed",
				map[string]interface{}{"marketID": mgr.marketID, "tradeID": t.id, "step": what})
		}
	}()
	fn()
}

// trackExposure registers filled entries in the risk manager. Must be called with mu held.
func (mgr *Manager) trackExposure(ctx context.Context) {
	if mgr.risk == nil {
		return
	}
	for _, t := range mgr.trades {
		if _, ok := mgr.exposure[t.id]; ok || t.entryQty <= 0 {
			continue
		}
		mgr.exposure[t.id] = t.entryQty * t.entryPrice
		mgr.risk.TradeOpened(ctx, t.entryQty, t.entryPrice)
	}
}

func (mgr *Manager) market(ctx context.Context) (*domain.Market, error) {
	m, ok := mgr.trader.Market(mgr.marketID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrMarketNotFound, mgr.marketID)
	}
	return m, nil
}

// Enter validates and opens a new trade. A validation or funds failure creates no trade.
func (mgr *Manager) Enter(ctx context.Context, intent ports.Intent) (*Trade, error) {
	const op = "Manager.Enter"

	m, err := mgr.market(ctx)
	if err != nil {
		return nil, err
	}

	kind := mgr.cfg.Kind
	quantity := m.AdjustQuantity(intent.Quantity)
	price := intent.Price
	if price > 0 {
		price = m.AdjustPrice(price)
	}
	refPrice := price
	if refPrice <= 0 {
		refPrice = kind.Pricing.EntryPrice(m, intent.Direction)
	}
	leverage := m.Leverage()

	if mgr.risk != nil {
		req := risk.EntryRequest{
			MarketID:   mgr.marketID,
			Direction:  intent.Direction,
			Price:      refPrice,
			Quantity:   quantity,
			StopLoss:   intent.StopLoss,
			TakeProfit: intent.TakeProfit,
			Leverage:   leverage,
		}
		if err := mgr.risk.ValidateEntry(ctx, req, mgr.trader.Account().Balance); err != nil {
			mgr.logger.Warn(ctx, op+": Entry refused by risk validation", map[string]interface{}{
				"marketID": mgr.marketID, "error": err.Error(),
			})
			return nil, err
		}
	} else if quantity <= 0 || !domain.ValidProtections(intent.Direction, refPrice, intent.StopLoss, intent.TakeProfit) {
		return nil, fmt.Errorf("%w: invalid quantity or protections", ports.ErrInvalidRequest)
	}

	if kind.MarginTrade {
		if !mgr.trader.HasMargin(mgr.marketID, quantity, refPrice) {
			return nil, fmt.Errorf("%w: %s requires %f", ports.ErrInsufficientMargin, mgr.marketID,
				kind.Pricing.RequiredFunds(m, quantity, refPrice))
		}
	} else if intent.Direction == domain.DirectionLong {
		if !mgr.trader.HasQuantity(m.Quote, kind.Pricing.RequiredFunds(m, quantity, refPrice)) {
			return nil, fmt.Errorf("%w: %s", ports.ErrInsufficientFunds, m.Quote)
		}
	}

	mgr.mu.Lock()
	mgr.nextID++
	t := New(mgr.nextID, kind, intent.Timeframe)
	t.SetEntryTimeout(mgr.cfg.EntryTimeout)
	t.SetExpiry(mgr.cfg.Expiry)
	t.SetLabel(intent.Label)
	t.SetContext(mgr.cfg.Context)
	t.SetCommentPolicy(mgr.cfg.CommentPolicy)
	t.SetHardExits(intent.Hard)

	opened := t.Open(ctx, mgr.trader, m, intent.Direction, intent.OrderType, price, quantity,
		intent.TakeProfit, intent.StopLoss, leverage)
	if opened || t.entryState == domain.StateRejected {
		// rejected trades stay listed until cleaned up
		mgr.trades = append(mgr.trades, t)
	}
	mgr.mu.Unlock()

	mgr.ProcessSignals(ctx)

	if !opened {
		mgr.logger.Warn(ctx, op+": Entry order refused", map[string]interface{}{
			"marketID": mgr.marketID, "tradeID": t.id, "direction": intent.Direction.String(),
		})
		return nil, fmt.Errorf("%w: entry order refused", ports.ErrInvalidTrade)
	}

	mgr.logger.Info(ctx, op+": Trade opened", map[string]interface{}{
		"marketID":  mgr.marketID,
		"tradeID":   t.id,
		"direction": intent.Direction.String(),
		"orderType": intent.OrderType.String(),
		"price":     m.FormatPrice(refPrice),
		"quantity":  m.FormatQuantity(quantity),
	})
	return t, nil
}

// Assign registers an existing holding as a filled user trade.
func (mgr *Manager) Assign(ctx context.Context, dir domain.Direction, price, quantity, stopLoss, takeProfit float64) (*Trade, error) {
	m, err := mgr.market(ctx)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 || price <= 0 || !domain.ValidProtections(dir, price, stopLoss, takeProfit) {
		return nil, fmt.Errorf("%w: invalid assignment", ports.ErrInvalidRequest)
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.nextID++
	t := New(mgr.nextID, mgr.cfg.Kind, 0)
	t.SetExpiry(mgr.cfg.Expiry)
	t.SetContext(mgr.cfg.Context)
	t.SetCommentPolicy(mgr.cfg.CommentPolicy)
	t.Assign(mgr.trader, m, dir, domain.OrderMarket, price, m.AdjustQuantity(quantity), takeProfit, stopLoss, m.Leverage())
	mgr.trades = append(mgr.trades, t)
	return t, nil
}

func (mgr *Manager) find(tradeID int) *Trade {
	for _, t := range mgr.trades {
		if t.id == tradeID {
			return t
		}
	}
	return nil
}

// withTrade runs fn on a trade, then applies the resulting signals.
func (mgr *Manager) withTrade(ctx context.Context, tradeID int, fn func(t *Trade, m *domain.Market) domain.ReturnCode) (domain.ReturnCode, error) {
	m, err := mgr.market(ctx)
	if err != nil {
		return domain.CodeError, err
	}

	mgr.mu.Lock()
	t := mgr.find(tradeID)
	if t == nil {
		mgr.mu.Unlock()
		return domain.CodeError, fmt.Errorf("%w: trade %d", ports.ErrNotFound, tradeID)
	}
	code := fn(t, m)
	mgr.mu.Unlock()

	mgr.ProcessSignals(ctx)
	return code, nil
}

// Exit closes a trade at market.
func (mgr *Manager) Exit(ctx context.Context, tradeID int) (domain.ReturnCode, error) {
	return mgr.withTrade(ctx, tradeID, func(t *Trade, m *domain.Market) domain.ReturnCode {
		if t.IsOpening() && t.entryQty <= 0 {
			t.SetExitReason(domain.ReasonCanceledTargeted)
			return t.CancelOpen(ctx, mgr.trader, m)
		}
		return t.Close(ctx, mgr.trader, m)
	})
}

// Cancel cancels the entry order of a trade still opening.
func (mgr *Manager) Cancel(ctx context.Context, tradeID int) (domain.ReturnCode, error) {
	return mgr.withTrade(ctx, tradeID, func(t *Trade, m *domain.Market) domain.ReturnCode {
		code := t.CancelOpen(ctx, mgr.trader, m)
		if code == domain.CodeAccepted && t.stats.ExitReason == domain.ReasonNone {
			t.SetExitReason(domain.ReasonCanceledTargeted)
		}
		return code
	})
}

// ModifyStopLoss changes the stop-loss of a trade.
func (mgr *Manager) ModifyStopLoss(ctx context.Context, tradeID int, price float64, hard bool) (domain.ReturnCode, error) {
	return mgr.withTrade(ctx, tradeID, func(t *Trade, m *domain.Market) domain.ReturnCode {
		if hard && !t.CanModifyStopOrder(mgr.trader.Timestamp(), mgr.cfg.ModifyTimeout) {
			return domain.CodeRejected
		}
		return t.ModifyStopLoss(ctx, mgr.trader, m, m.AdjustPrice(price), hard)
	})
}

// ModifyTakeProfit changes the take-profit of a trade.
func (mgr *Manager) ModifyTakeProfit(ctx context.Context, tradeID int, price float64, hard bool) (domain.ReturnCode, error) {
	return mgr.withTrade(ctx, tradeID, func(t *Trade, m *domain.Market) domain.ReturnCode {
		if hard && !t.CanModifyLimitOrder(mgr.trader.Timestamp(), mgr.cfg.ModifyTimeout) {
			return domain.CodeRejected
		}
		return t.ModifyTakeProfit(ctx, mgr.trader, m, m.AdjustPrice(price), hard)
	})
}

// AddOperation attaches a validated operation to a trade.
func (mgr *Manager) AddOperation(tradeID int, op Operation) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	t := mgr.find(tradeID)
	if t == nil {
		return fmt.Errorf("%w: trade %d", ports.ErrNotFound, tradeID)
	}
	if !op.Check(t) {
		return fmt.Errorf("%w: operation %s", ports.ErrInvalidRequest, op.Name())
	}
	t.AddOperation(op)
	return nil
}

// Apply executes a strategy intent.
func (mgr *Manager) Apply(ctx context.Context, intent ports.Intent) error {
	var (
		code domain.ReturnCode
		err  error
	)
	switch intent.Kind {
	case ports.IntentEnter:
		_, err = mgr.Enter(ctx, intent)
		return err
	case ports.IntentExit:
		code, err = mgr.Exit(ctx, intent.TradeID)
	case ports.IntentModifyStopLoss:
		code, err = mgr.ModifyStopLoss(ctx, intent.TradeID, intent.StopLoss, intent.Hard)
	case ports.IntentModifyTakeProfit:
		code, err = mgr.ModifyTakeProfit(ctx, intent.TradeID, intent.TakeProfit, intent.Hard)
	case ports.IntentCancel:
		code, err = mgr.Cancel(ctx, intent.TradeID)
	default:
		return fmt.Errorf("%w: unknown intent %d", ports.ErrInvalidRequest, intent.Kind)
	}
	if err != nil {
		return err
	}
	return codeError(code)
}

func codeError(code domain.ReturnCode) error {
	switch code {
	case domain.CodeAccepted, domain.CodeNothingToDo:
		return nil
	case domain.CodeInsufficientMargin:
		return ports.ErrInsufficientMargin
	case domain.CodeInsufficientFunds:
		return ports.ErrInsufficientFunds
	default:
		return fmt.Errorf("%w: %s", ports.ErrInvalidTrade, code)
	}
}

// Update runs one management pass at timestamp: signals, protective orders, timeouts,
// soft stop-loss and take-profit, operations and cleanup.
func (mgr *Manager) Update(ctx context.Context, timestamp float64) {
	const op = "Manager.Update"

	mgr.ProcessSignals(ctx)

	m, err := mgr.market(ctx)
	if err != nil {
		mgr.logger.Error(ctx, err, op+": Market unavailable")
		return
	}

	mgr.mu.Lock()
	for _, t := range mgr.trades {
		t := t
		mgr.safely(ctx, t, "update", func() { mgr.updateTrade(ctx, t, m, timestamp) })
	}
	mgr.mu.Unlock()

	mgr.ProcessSignals(ctx)
	mgr.cleanup(ctx)
}

func (mgr *Manager) updateTrade(ctx context.Context, t *Trade, m *domain.Market, timestamp float64) {
	const op = "Manager.Update"

	t.UpdateStats(m, timestamp)

	if t.IsEntryTimeout(timestamp, t.entryTimeout) {
		if code := t.CancelOpen(ctx, mgr.trader, m); code == domain.CodeAccepted || code == domain.CodeNothingToDo {
			if t.entryQty <= 0 {
				t.SetExitReason(domain.ReasonCanceledTimeout)
			}
			mgr.logger.Info(ctx, op+": Entry canceled on timeout", map[string]interface{}{"marketID": mgr.marketID, "tradeID": t.id})
		}
		return
	}

	if t.IsClosed() && (t.stopOID != "" || t.limitOID != "") {
		// the other side of a filled exit is still resting
		if !t.Remove(ctx, mgr.trader, m) {
			mgr.logger.Warn(ctx, op+": Leftover exit order not canceled", map[string]interface{}{
				"marketID": mgr.marketID, "tradeID": t.id,
			})
		}
		return
	}

	if !t.IsActive() || t.closing {
		return
	}

	if t.dirty && !t.IsOpening() {
		mgr.placeExits(ctx, t, m)
		t.dirty = false
	}

	if t.IsTradeTimeout(timestamp) {
		if t.stats.ExitReason == domain.ReasonNone {
			t.SetExitReason(domain.ReasonMarketTimeout)
		}
		code := t.Close(ctx, mgr.trader, m)
		mgr.logger.Info(ctx, op+": Trade expired", map[string]interface{}{
			"marketID": mgr.marketID, "tradeID": t.id, "result": code.String(),
		})
		return
	}

	if reason, hit := mgr.softExit(t, m); hit {
		t.SetExitReason(reason)
		code := t.Close(ctx, mgr.trader, m)
		mgr.logger.Info(ctx, op+": Soft exit triggered", map[string]interface{}{
			"marketID": mgr.marketID, "tradeID": t.id, "reason": reason.String(), "result": code.String(),
		})
		if code == domain.CodeAccepted {
			return
		}
		t.SetExitReason(domain.ReasonNone)
	}

	for _, o := range t.Operations() {
		if o.Test(t, m, timestamp) {
			code := o.Execute(ctx, t, mgr.trader, m)
			mgr.logger.Debug(ctx, op+": Operation executed", map[string]interface{}{
				"tradeID": t.id, "operation": o.Name(), "result": code.String(),
			})
		}
	}
	t.CleanupOperations()
}

// placeExits places the hard protective orders on the filled quantity.
func (mgr *Manager) placeExits(ctx context.Context, t *Trade, m *domain.Market) {
	if !t.hardExits || t.kind.PositionProtection {
		return
	}
	var code domain.ReturnCode
	switch {
	case t.stopLoss > 0 && t.takeProfit > 0:
		code = t.ModifyOCO(ctx, mgr.trader, m, t.takeProfit, t.stopLoss, true)
	case t.stopLoss > 0:
		code = t.ModifyStopLoss(ctx, mgr.trader, m, t.stopLoss, true)
	case t.takeProfit > 0:
		code = t.ModifyTakeProfit(ctx, mgr.trader, m, t.takeProfit, true)
	default:
		return
	}
	if code < domain.CodeRejected {
		mgr.logger.Warn(ctx, "Manager: Protective orders not placed", map[string]interface{}{
			"marketID": mgr.marketID, "tradeID": t.id, "result": code.String(),
		})
	}
}

// softExit reports whether a stop-loss or take-profit without a resting order is crossed.
func (mgr *Manager) softExit(t *Trade, m *domain.Market) (domain.ExitReason, bool) {
	if t.kind.PositionProtection && t.hardExits {
		return domain.ReasonNone, false
	}
	price := t.kind.Pricing.ExitPrice(m, t.dir)
	if price <= 0 {
		return domain.ReasonNone, false
	}
	long := t.dir == domain.DirectionLong

	if t.stopLoss > 0 && !t.HasStopOrder() {
		if (long && price <= t.stopLoss) || (!long && price >= t.stopLoss) {
			return domain.ReasonStopLossMarket, true
		}
	}
	if t.takeProfit > 0 && !t.HasLimitOrder() {
		if (long && price >= t.takeProfit) || (!long && price <= t.takeProfit) {
			return domain.ReasonTakeProfitMarket, true
		}
	}
	return domain.ReasonNone, false
}

// cleanup drops the finished trades. Rejected and errored trades are kept for the operator.
func (mgr *Manager) cleanup(ctx context.Context) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	kept := mgr.trades[:0]
	for _, t := range mgr.trades {
		if t.CanDelete() && t.entryState != domain.StateRejected && !t.IsError() {
			mgr.release(ctx, t)
			mgr.logger.Info(ctx, "Manager: Trade removed", map[string]interface{}{
				"marketID": mgr.marketID, "tradeID": t.id, "state": t.StateString(),
				"exitReason": t.ExitReason().String(), "profitLossRate": t.plRate,
			})
			continue
		}
		kept = append(kept, t)
	}
	mgr.trades = kept
}

// Clean drops every deletable trade, the rejected and errored ones included.
func (mgr *Manager) Clean(ctx context.Context) int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	removed := 0
	kept := mgr.trades[:0]
	for _, t := range mgr.trades {
		if t.CanDelete() || (t.IsError() && t.Quantity() <= 0 && !t.IsOpening()) {
			mgr.release(ctx, t)
			removed++
			continue
		}
		kept = append(kept, t)
	}
	mgr.trades = kept
	return removed
}

// release reports a removed trade to the risk manager. Must be called with mu held.
func (mgr *Manager) release(ctx context.Context, t *Trade) {
	notional, ok := mgr.exposure[t.id]
	if !ok || mgr.risk == nil {
		return
	}
	delete(mgr.exposure, t.id)

	pnl := float64(t.dir) * (t.exitPrice - t.entryPrice) * t.exitQty
	pnl -= t.stats.EntryFees + t.stats.ExitFees
	mgr.risk.TradeClosed(ctx, t.entryQty, notional/t.entryQty, pnl, mgr.trader.Account().Balance)
}

// Check reconciles every trade with the trader, repairing those that need it. A trade
// that cannot be repaired is flagged for manual intervention. It returns the number of
// trades left inconsistent.
func (mgr *Manager) Check(ctx context.Context) int {
	const op = "Manager.Check"

	m, err := mgr.market(ctx)
	if err != nil {
		mgr.logger.Error(ctx, err, op+": Market unavailable")
		return 0
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	failed := 0
	for _, t := range mgr.trades {
		t := t
		mgr.safely(ctx, t, "check", func() {
			switch t.Check(ctx, mgr.trader, m) {
			case CheckConsistent:
				return
			case CheckNeedsRepair:
				if t.Repair(ctx, mgr.trader, m, mgr.logger) {
					return
				}
			}
			failed++
			t.Set("manual-intervention", true)
			mgr.logger.Warn(ctx, op+": Trade flagged for manual intervention", map[string]interface{}{
				"marketID": mgr.marketID, "tradeID": t.id, "state": t.StateString(),
			})
		})
	}
	return failed
}

// Trades returns the managed trades ordered by id. The trades must only be read.
func (mgr *Manager) Trades() []*Trade {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	trades := append([]*Trade(nil), mgr.trades...)
	sort.Slice(trades, func(i, j int) bool { return trades[i].id < trades[j].id })
	return trades
}

// ActiveTrades counts the trades not yet closed.
func (mgr *Manager) ActiveTrades() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	n := 0
	for _, t := range mgr.trades {
		if !t.IsClosed() && !t.IsCanceled() {
			n++
		}
	}
	return n
}

// Dumps serializes every trade of the manager.
func (mgr *Manager) Dumps(strategy string) ([]ports.TradeRecord, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	records := make([]ports.TradeRecord, 0, len(mgr.trades))
	for _, t := range mgr.trades {
		data, err := t.Dumps()
		if err != nil {
			return nil, err
		}
		records = append(records, ports.TradeRecord{Strategy: strategy, MarketID: mgr.marketID, TradeID: t.id, Data: data})
	}
	return records, nil
}

// Loads restores trades. Trades failing to decode are skipped and reported in the error.
func (mgr *Manager) Loads(ctx context.Context, records []ports.TradeRecord) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	var errs []error
	for _, rec := range records {
		t, err := Loads(rec.Data)
		if err != nil {
			mgr.logger.Error(ctx, err, "Manager.Loads: Trade skipped", map[string]interface{}{
				"marketID": mgr.marketID, "tradeID": rec.TradeID,
			})
			errs = append(errs, err)
			continue
		}
		if t.id > mgr.nextID {
			mgr.nextID = t.id
		}
		mgr.trades = append(mgr.trades, t)
	}
	return errors.Join(errs...)
}
