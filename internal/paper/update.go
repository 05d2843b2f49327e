package paper

import (
	"context"
	"fmt"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/signal"
)

// MarketUpdate carries the fields of a market data update. Nil fields are left unchanged.
type MarketUpdate struct {
	MarketID         string
	Timestamp        float64
	Bid              *float64
	Ask              *float64
	BaseExchangeRate *float64
	IsOpen           *bool
	Vol24hBase       *float64
	Vol24hQuote      *float64
}

// OnUpdateMarket applies a market data update and refreshes the profit and loss of
// the positions and assets quoted on that market.
func (e *Engine) OnUpdateMarket(ctx context.Context, u MarketUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[u.MarketID]
	if !ok {
		e.logger.Debug(ctx, "Engine.OnUpdateMarket: Unknown market", map[string]interface{}{"market": u.MarketID})
		return
	}

	if u.Bid != nil {
		m.Bid = *u.Bid
	}
	if u.Ask != nil {
		m.Ask = *u.Ask
	}
	if u.BaseExchangeRate != nil {
		m.BaseExchangeRate = *u.BaseExchangeRate
	}
	if u.IsOpen != nil {
		m.IsOpen = *u.IsOpen
	}
	if u.Vol24hBase != nil {
		m.Vol24hBase = *u.Vol24hBase
	}
	if u.Vol24hQuote != nil {
		m.Vol24hQuote = *u.Vol24hQuote
	}
	if u.Timestamp > 0 {
		m.LastUpdateTime = u.Timestamp
		if u.Timestamp > e.timestamp {
			e.timestamp = u.Timestamp
		}
	}

	for _, p := range e.positions {
		if p.Symbol == m.MarketID {
			p.UpdateProfitLoss(m)
		}
	}
	if a, ok := e.assets[m.Base]; ok && a.Quote == m.Quote {
		a.UpdateProfitLoss(m)
	}
}

// OnTick applies a top-of-book tick.
func (e *Engine) OnTick(ctx context.Context, tick domain.Tick) {
	u := MarketUpdate{MarketID: tick.MarketID, Timestamp: tick.Timestamp, Bid: &tick.Bid, Ask: &tick.Ask}
	if tick.Volume > 0 {
		u.Vol24hBase = &tick.Volume
	}
	e.OnUpdateMarket(ctx, u)
}

// Update runs one engine pass: position take-profit and stop-loss for markets carrying
// them, the account recompute, then every pending order in submission order.
func (e *Engine) Update(ctx context.Context) {
	e.mu.Lock()
	signals := e.updatePositions(ctx)
	e.updateAccount()
	signals = append(signals, e.updateOrders(ctx)...)
	e.mu.Unlock()

	e.emit(signals)
}

func (e *Engine) updatePositions(ctx context.Context) []signal.Signal {
	var signals []signal.Signal

	for _, id := range e.positionIDs() {
		p := e.positions[id]
		if p.Quantity <= 0 {
			delete(e.positions, id)
			continue
		}
		m, ok := e.markets[p.Symbol]
		if !ok || !m.HasPosition || (p.TakeProfit <= 0 && p.StopLoss <= 0) {
			continue
		}

		price := m.CloseExecPrice(p.Direction)
		if price <= 0 {
			continue
		}

		var hit bool
		if p.Direction == domain.DirectionLong {
			hit = (p.TakeProfit > 0 && price >= p.TakeProfit) || (p.StopLoss > 0 && price <= p.StopLoss)
		} else {
			hit = (p.TakeProfit > 0 && price <= p.TakeProfit) || (p.StopLoss > 0 && price >= p.StopLoss)
		}
		if hit {
			signals = append(signals, e.closePosition(ctx, p, m, price)...)
		}
	}
	return signals
}

// updateAccount recomputes used margin, unrealized profit and loss and the asset
// valuation. Must be called with mu held.
func (e *Engine) updateAccount() {
	if e.account.Unlimited {
		e.account.SetUnrealizedProfitLoss(0)
		e.account.UnrealizedAssetPnL = 0
		return
	}

	var usedMargin, usedCost, profitLoss float64
	for _, p := range e.positions {
		m, ok := e.markets[p.Symbol]
		if !ok || p.Quantity <= 0 {
			continue
		}
		p.UpdateProfitLoss(m)
		profitLoss += p.ProfitLoss
		usedMargin += p.MarginCost(m)
		usedCost += p.PositionCost(m)
	}
	e.account.SetUsedMargin(usedMargin)
	e.account.SetUnrealizedProfitLoss(profitLoss)
	e.account.UpdateMarginLevel(usedCost)

	var balance, free, assetPnL float64
	for _, a := range e.assets {
		if a.Quantity() <= 0 {
			continue
		}
		price, rate := 0.0, 1.0
		if a.Symbol == e.account.Currency {
			price = 1
		} else if m := e.assetMarket(a); m != nil {
			rate = orOne(m.BaseExchangeRate)
			price = m.Price() / rate
		}
		if price <= 0 {
			continue
		}
		balance += a.Quantity() * price
		free += a.Free * price
		assetPnL += a.ProfitLoss / rate
	}
	e.account.SetAssetBalance(balance, free)
	e.account.UnrealizedAssetPnL = assetPnL
}

// assetMarket finds the market valuing an asset against its quote.
func (e *Engine) assetMarket(a *domain.Asset) *domain.Market {
	if m, ok := e.markets[a.Symbol+a.Quote]; ok {
		return m
	}
	for _, m := range e.markets {
		if m.Base == a.Symbol && m.Quote == a.Quote {
			return m
		}
	}
	return nil
}

// trigger returns the execution price of a pending order when the market crosses it.
func trigger(order *domain.Order, m *domain.Market) (float64, bool) {
	var openPrice, closePrice float64
	switch order.Direction {
	case domain.DirectionLong:
		openPrice, closePrice = m.Ask, m.Bid
	case domain.DirectionShort:
		openPrice, closePrice = m.Bid, m.Ask
	default:
		return 0, false
	}
	if openPrice <= 0 || closePrice <= 0 {
		return 0, false
	}
	long := order.Direction == domain.DirectionLong

	clamp := func(price float64) float64 {
		if long && order.Price > 0 && order.Price < price {
			return order.Price
		}
		if !long && order.Price > price {
			return order.Price
		}
		return price
	}

	switch order.OrderType {
	case domain.OrderLimit:
		if (long && openPrice <= order.Price) || (!long && openPrice >= order.Price) {
			return openPrice, true
		}

	case domain.OrderStop:
		if (long && closePrice >= order.StopPrice) || (!long && closePrice <= order.StopPrice) {
			if m.HasMargin && m.IndivisiblePosition && order.MarginTrade {
				return order.StopPrice, true
			}
			return openPrice, true
		}

	case domain.OrderStopLimit:
		if (long && closePrice >= order.StopPrice) || (!long && closePrice <= order.StopPrice) {
			return clamp(openPrice), true
		}

	case domain.OrderTakeProfit:
		if (long && closePrice <= order.StopPrice) || (!long && closePrice >= order.StopPrice) {
			return openPrice, true
		}

	case domain.OrderTakeProfitLimit:
		if (long && closePrice <= order.StopPrice) || (!long && closePrice >= order.StopPrice) {
			return clamp(openPrice), true
		}
	}
	return 0, false
}

func (e *Engine) updateOrders(ctx context.Context) []signal.Signal {
	var signals []signal.Signal

	pending := append([]string(nil), e.sequence...)
	for _, id := range pending {
		order, ok := e.orders[id]
		if !ok {
			continue
		}
		m, ok := e.markets[order.Symbol]
		if !ok {
			e.logger.Warn(ctx, "Engine.Update: Pending order on unknown market removed", map[string]interface{}{
				"orderID": id, "symbol": order.Symbol,
			})
			e.removePending(id)
			signals = append(signals, deleted(order))
			continue
		}

		price, hit := trigger(order, m)
		if !hit {
			continue
		}

		e.removePending(id)
		signals = append(signals, e.executePending(ctx, order, m, price)...)
	}
	return signals
}

// executePending isolates the execution of one order from the rest of the pass.
func (e *Engine) executePending(ctx context.Context, order *domain.Order, m *domain.Market, price float64) (signals []signal.Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Engine.Update: Order execution failed", map[string]interface{}{
				"orderID": order.OrderID, "symbol": order.Symbol,
			})
			signals = []signal.Signal{deleted(order)}
		}
	}()

	result, signals := e.execute(ctx, order, m, price, false)
	if !result.OK() {
		// the rejection is reported, the order is gone from the book
		signals = append(signals, deleted(order))
	}
	return signals
}
