// Package paper simulates an exchange: it fills orders against streamed bid/ask
// prices and keeps the positions, assets and account of one trading identity.
package paper

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/signal"
)

// Config holds the settings of a paper engine.
type Config struct {
	Name      string
	Currency  string  // account currency
	Balance   float64 // initial balance, also the initial spot holding of Currency
	Unlimited bool    // bypass margin and funds checks, unrealized profit-loss stays 0
}

// Engine is the paper execution engine. All state is guarded by mu; signals are
// emitted only after mu is released.
type Engine struct {
	name     string
	logger   ports.Logger
	notifier signal.Notifier

	mu        sync.Mutex
	activity  bool
	timestamp float64
	markets   map[string]*domain.Market
	orders    map[string]*domain.Order
	sequence  []string // pending order ids in submission order
	positions map[string]*domain.Position
	assets    map[string]*domain.Asset
	account   *domain.Account
}

// NewEngine creates a paper engine. notifier may be nil.
func NewEngine(cfg Config, notifier signal.Notifier, logger ports.Logger) *Engine {
	if cfg.Name == "" {
		cfg.Name = "papertrader"
	}
	account := domain.NewAccount(cfg.Name, cfg.Currency, cfg.Balance)
	account.Unlimited = cfg.Unlimited

	e := &Engine{
		name:      cfg.Name,
		logger:    logger,
		notifier:  notifier,
		activity:  true,
		markets:   make(map[string]*domain.Market),
		orders:    make(map[string]*domain.Order),
		positions: make(map[string]*domain.Position),
		assets:    make(map[string]*domain.Asset),
		account:   account,
	}
	if cfg.Currency != "" {
		e.assets[cfg.Currency] = &domain.Asset{Symbol: cfg.Currency, Quote: cfg.Currency, Free: cfg.Balance, Price: 1}
	}
	return e
}

// Name returns the trader name.
func (e *Engine) Name() string { return e.name }

// Timestamp returns the time of the last market update, or the wall clock before any.
func (e *Engine) Timestamp() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

func (e *Engine) now() float64 {
	if e.timestamp > 0 {
		return e.timestamp
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// SetTimestamp moves the engine clock, for replays.
func (e *Engine) SetTimestamp(ts float64) {
	e.mu.Lock()
	e.timestamp = ts
	e.mu.Unlock()
}

// SetActivity pauses or resumes order creation.
func (e *Engine) SetActivity(active bool) {
	e.mu.Lock()
	e.activity = active
	e.mu.Unlock()
}

// SetMarkets replaces the market cache. Known prices are kept when the new
// definition carries none.
func (e *Engine) SetMarkets(markets []*domain.Market) {
	next := make(map[string]*domain.Market, len(markets))
	for _, m := range markets {
		next[m.MarketID] = m.Clone()
	}

	e.mu.Lock()
	for id, m := range next {
		if prev, ok := e.markets[id]; ok && m.Bid == 0 && m.Ask == 0 {
			m.Bid, m.Ask, m.LastUpdateTime = prev.Bid, prev.Ask, prev.LastUpdateTime
		}
	}
	e.markets = next
	e.mu.Unlock()
}

// Market returns a copy of a market.
func (e *Engine) Market(marketID string) (*domain.Market, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markets[marketID]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Account returns a copy of the account.
func (e *Engine) Account() domain.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.account.Clone()
}

// HasMargin reports whether the free margin covers quantity at price on a market.
func (e *Engine) HasMargin(marketID string, quantity, price float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.account.Unlimited {
		return true
	}
	m, ok := e.markets[marketID]
	if !ok {
		return false
	}
	return e.account.HasMargin(m.MarginCost(quantity, price))
}

// HasQuantity reports whether an asset holds at least quantity free.
func (e *Engine) HasQuantity(asset string, quantity float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.account.Unlimited {
		return true
	}
	a, ok := e.assets[asset]
	return ok && a.Free >= quantity
}

// SetRefOrderID assigns a fresh client reference id.
func (e *Engine) SetRefOrderID(order *domain.Order) {
	order.RefOrderID = "ref_" + uuid.NewString()
}

func newOrderID() string {
	id := uuid.New()
	return "paper_" + base64.RawStdEncoding.EncodeToString(id[:])
}

// Positions returns copies of the open positions of a market, every market when marketID is empty.
func (e *Engine) Positions(marketID string) []*domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	var positions []*domain.Position
	for _, p := range e.positions {
		if marketID == "" || p.Symbol == marketID {
			positions = append(positions, p.Clone())
		}
	}
	return positions
}

// Position returns a copy of a position.
func (e *Engine) Position(positionID string) (*domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[positionID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Orders returns copies of the pending orders in submission order.
func (e *Engine) Orders() []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	orders := make([]*domain.Order, 0, len(e.sequence))
	for _, id := range e.sequence {
		if o, ok := e.orders[id]; ok {
			orders = append(orders, o.Clone())
		}
	}
	return orders
}

// Asset returns a copy of an asset.
func (e *Engine) Asset(symbol string) (domain.Asset, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.assets[symbol]
	if !ok {
		return domain.Asset{}, false
	}
	return *a, true
}

// SetAsset sets the free quantity and average price of a spot holding.
func (e *Engine) SetAsset(symbol, quote string, quantity, price float64) {
	e.mu.Lock()
	e.assets[symbol] = &domain.Asset{Symbol: symbol, Quote: quote, Free: quantity, Price: price}
	e.mu.Unlock()
}

func (e *Engine) emit(signals []signal.Signal) {
	if e.notifier == nil {
		return
	}
	for _, s := range signals {
		e.notifier.Notify(s)
	}
}

func (e *Engine) asset(symbol, quote string) *domain.Asset {
	a, ok := e.assets[symbol]
	if !ok {
		a = &domain.Asset{Symbol: symbol, Quote: quote}
		e.assets[symbol] = a
	}
	return a
}

func (e *Engine) addPending(order *domain.Order) {
	e.orders[order.OrderID] = order
	e.sequence = append(e.sequence, order.OrderID)
}

func (e *Engine) removePending(orderID string) bool {
	if _, ok := e.orders[orderID]; !ok {
		return false
	}
	delete(e.orders, orderID)
	for i, id := range e.sequence {
		if id == orderID {
			e.sequence = append(e.sequence[:i], e.sequence[i+1:]...)
			break
		}
	}
	return true
}

func rejected(order *domain.Order, reason domain.OrderResult) *signal.OrderRejected {
	return &signal.OrderRejected{
		Header: signal.Header{MarketID: order.Symbol, RefOrderID: order.RefOrderID},
		Reason: reason,
	}
}

func opened(order *domain.Order) *signal.OrderOpened {
	return &signal.OrderOpened{
		Header:      signal.Header{MarketID: order.Symbol, RefOrderID: order.RefOrderID},
		OrderID:     order.OrderID,
		OrderType:   order.OrderType,
		Direction:   order.Direction,
		Timestamp:   order.CreatedTime,
		Quantity:    order.Quantity,
		Price:       order.Price,
		StopPrice:   order.StopPrice,
		StopLoss:    order.StopLoss,
		TakeProfit:  order.TakeProfit,
		TimeInForce: order.TimeInForce,
	}
}

// CreateOrder validates and submits an order. Market orders execute immediately;
// the others are kept pending until triggered by a market update.
func (e *Engine) CreateOrder(ctx context.Context, order *domain.Order) domain.OrderResult {
	e.mu.Lock()
	result, signals := e.createOrder(ctx, order)
	e.mu.Unlock()

	e.emit(signals)
	return result
}

func (e *Engine) createOrder(ctx context.Context, order *domain.Order) (domain.OrderResult, []signal.Signal) {
	const op = "Engine.CreateOrder"

	if order == nil {
		return domain.OrderResultInvalidArgs, nil
	}
	if !e.activity {
		e.logger.Warn(ctx, op+": Trader paused, order refused", map[string]interface{}{"symbol": order.Symbol})
		return domain.OrderResultError, nil
	}

	m, ok := e.markets[order.Symbol]
	if !ok {
		e.logger.Error(ctx, ports.ErrMarketNotFound, op+": Order refused", map[string]interface{}{"symbol": order.Symbol})
		return domain.OrderResultInvalidArgs, nil
	}
	if order.Quantity <= 0 || (m.MinSize > 0 && order.Quantity < m.MinSize) {
		e.logger.Warn(ctx, op+": Order refused, min size not reached", map[string]interface{}{
			"symbol": order.Symbol, "quantity": order.Quantity, "minSize": m.MinSize, "refOrderID": order.RefOrderID,
		})
		return domain.OrderResultInvalidArgs, nil
	}
	if order.Direction != domain.DirectionLong && order.Direction != domain.DirectionShort {
		return domain.OrderResultInvalidArgs, nil
	}

	var price float64
	switch order.OrderType {
	case domain.OrderLimit, domain.OrderStopLimit, domain.OrderTakeProfitLimit:
		price = order.Price
	case domain.OrderMarket:
		price = m.OpenExecPrice(order.Direction)
	case domain.OrderStop, domain.OrderTakeProfit:
		price = order.StopPrice
		if price <= 0 {
			price = m.OpenExecPrice(order.Direction)
		}
	default:
		e.logger.Warn(ctx, op+": Unsupported order type", map[string]interface{}{"type": order.OrderType.String()})
		return domain.OrderResultInvalidArgs, nil
	}
	if price <= 0 {
		e.logger.Warn(ctx, op+": No order execution price", map[string]interface{}{"symbol": order.Symbol})
		return domain.OrderResultInvalidArgs, nil
	}

	if notional := order.Quantity * price; notional < m.MinNotional {
		e.logger.Warn(ctx, op+": Order refused, min notional not reached", map[string]interface{}{
			"symbol": order.Symbol, "notional": notional, "minNotional": m.MinNotional,
		})
		return domain.OrderResultInvalidArgs, nil
	}

	order.OrderID = newOrderID()
	order.CreatedTime = e.now()

	if order.OrderType == domain.OrderMarket {
		return e.execute(ctx, order, m, price, true)
	}

	// resting orders lock nothing but must be affordable when placed
	if reason := e.precheck(order, m, price); reason != domain.OrderResultOK {
		e.logger.Warn(ctx, op+": Order rejected", map[string]interface{}{
			"symbol": order.Symbol, "refOrderID": order.RefOrderID, "reason": reason.String(),
		})
		order.OrderID = ""
		return reason, []signal.Signal{rejected(order, reason)}
	}

	e.addPending(order)
	return domain.OrderResultOK, []signal.Signal{opened(order)}
}

// precheck verifies the funds backing a resting order.
func (e *Engine) precheck(order *domain.Order, m *domain.Market, price float64) domain.OrderResult {
	if e.account.Unlimited {
		return domain.OrderResultOK
	}
	switch {
	case order.MarginTrade && m.HasMargin:
		if order.ReduceOnly || order.CloseOnly || order.PositionID != "" {
			return domain.OrderResultOK
		}
		if m.IndivisiblePosition {
			// orders reducing the net position need no margin
			if p, ok := e.positions[m.MarketID]; ok && p.IsOpened() && p.Direction != order.Direction && order.Quantity <= p.Quantity {
				return domain.OrderResultOK
			}
		}
		if !e.account.HasMargin(m.MarginCost(order.Quantity, price)) {
			return domain.OrderResultInsufficientMargin
		}
	case !order.MarginTrade && m.HasSpot:
		if order.Direction == domain.DirectionLong {
			quote, ok := e.assets[m.Quote]
			rate, fixed := m.Fee(false)
			cost := m.EffectiveCost(order.Quantity, price)
			if !ok || quote.Free < cost*(1+rate)+fixed {
				return domain.OrderResultInsufficientFunds
			}
		} else {
			base, ok := e.assets[m.Base]
			if !ok || base.Free < order.Quantity {
				return domain.OrderResultInsufficientFunds
			}
		}
	}
	return domain.OrderResultOK
}

// execute fills an order at price in the mode of its market. Must be called with mu held.
func (e *Engine) execute(ctx context.Context, order *domain.Order, m *domain.Market, price float64, fresh bool) (domain.OrderResult, []signal.Signal) {
	switch {
	case order.MarginTrade && m.HasMargin && m.IndivisiblePosition:
		return e.execIndMargin(ctx, order, m, price, fresh)
	case order.MarginTrade && m.HasMargin:
		return e.execMargin(ctx, order, m, price, fresh)
	case !order.MarginTrade && m.HasSpot:
		return e.execSpot(ctx, order, m, price, fresh)
	}
	e.logger.Warn(ctx, "Engine: Market does not support the order mode", map[string]interface{}{
		"symbol": order.Symbol, "marginTrade": order.MarginTrade,
	})
	return domain.OrderResultError, []signal.Signal{rejected(order, domain.OrderResultError)}
}

// CancelOrder removes a pending order. It fails when the order is no longer pending.
func (e *Engine) CancelOrder(ctx context.Context, orderID, marketID string) domain.OrderResult {
	if orderID == "" {
		return domain.OrderResultInvalidArgs
	}

	e.mu.Lock()
	order, ok := e.orders[orderID]
	if ok {
		e.removePending(orderID)
	}
	e.mu.Unlock()

	if !ok {
		return domain.OrderResultError
	}

	e.emit([]signal.Signal{&signal.OrderCanceled{
		Header:  signal.Header{MarketID: marketID, RefOrderID: order.RefOrderID},
		OrderID: orderID,
	}})
	return domain.OrderResultOK
}

// OrderInfo looks a pending order up. Orders no longer pending are reported not found.
func (e *Engine) OrderInfo(ctx context.Context, orderID, marketID string) (*domain.OrderInfo, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: empty order id", ports.ErrInvalidRequest)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return &domain.OrderInfo{}, nil
	}

	ts := order.TransactTime
	if ts == 0 {
		ts = order.CreatedTime
	}
	return &domain.OrderInfo{
		ID:               order.OrderID,
		RefID:            order.RefOrderID,
		Symbol:           order.Symbol,
		Status:           domain.OrderStatusOpened,
		Direction:        order.Direction,
		OrderType:        order.OrderType,
		Timestamp:        ts,
		Quantity:         order.Quantity,
		Price:            order.Price,
		StopPrice:        order.StopPrice,
		AvgPrice:         order.AvgPrice,
		CumulativeFilled: order.Executed,
		FullyFilled:      order.FullyFilled,
		TimeInForce:      order.TimeInForce,
		PostOnly:         order.PostOnly,
		CloseOnly:        order.CloseOnly,
		ReduceOnly:       order.ReduceOnly,
	}, nil
}
