package paper

import (
	"context"
	"sort"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/signal"
)

// positionIDs returns the position keys in a stable order.
func (e *Engine) positionIDs() []string {
	ids := make([]string, 0, len(e.positions))
	for id := range e.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClosePosition closes a position entirely. With a positive limitPrice a reduce-only
// limit order is left pending instead.
func (e *Engine) ClosePosition(ctx context.Context, positionID, marketID string, limitPrice float64) bool {
	const op = "Engine.ClosePosition"

	e.mu.Lock()
	ok, signals := e.closeRequest(ctx, positionID, marketID, limitPrice)
	e.mu.Unlock()

	if !ok {
		e.logger.Warn(ctx, op+": Position not closed", map[string]interface{}{
			"positionID": positionID, "market": marketID,
		})
	}
	e.emit(signals)
	return ok
}

func (e *Engine) closeRequest(ctx context.Context, positionID, marketID string, limitPrice float64) (bool, []signal.Signal) {
	if positionID == "" {
		return false, nil
	}
	m, ok := e.markets[marketID]
	if !ok {
		return false, nil
	}
	p, ok := e.positions[positionID]
	if !ok || !p.IsOpened() {
		return false, nil
	}

	order := domain.NewOrder(p.Symbol)
	e.SetRefOrderID(order)
	order.PositionID = p.PositionID
	order.Direction = p.CloseDirection()
	order.Quantity = p.Quantity
	order.Leverage = p.Leverage
	order.MarginTrade = true
	order.ReduceOnly = true
	order.CloseOnly = true

	if limitPrice > 0 {
		order.OrderType = domain.OrderLimit
		order.Price = limitPrice
		order.OrderID = newOrderID()
		order.CreatedTime = e.now()
		e.addPending(order)
		return true, []signal.Signal{opened(order)}
	}

	order.OrderType = domain.OrderMarket
	price := m.CloseExecPrice(p.Direction)
	if price <= 0 {
		return false, nil
	}

	if m.HasPosition {
		return true, e.closePosition(ctx, p, m, price)
	}

	order.OrderID = newOrderID()
	order.CreatedTime = e.now()
	result, signals := e.execute(ctx, order, m, price, true)
	return result.OK(), signals
}

// closePosition liquidates a position held by the market itself, at price and as a taker.
// Must be called with mu held.
func (e *Engine) closePosition(ctx context.Context, p *domain.Position, m *domain.Market, price float64) []signal.Signal {
	realized := gain(m, p.DeltaPrice(price), p.Quantity)
	cost := m.EffectiveCost(p.Quantity, price)
	rate, fixed := m.Fee(true)
	fee := cost*rate + fixed

	e.account.ReleaseMargin(p.MarginCost(m))
	e.account.AddRealizedProfitLoss(realized / orOne(m.BaseExchangeRate))
	e.account.UseBalance(fee)
	p.RealizedPnL += realized

	data := positionData(p, m, price, e.now())
	data.Quantity = 0
	data.ProfitLoss = realized
	delete(e.positions, p.PositionID)

	e.logger.Info(ctx, "Engine.closePosition: Position closed", map[string]interface{}{
		"positionID": p.PositionID, "market": m.MarketID, "price": price, "profitLoss": realized,
	})
	return []signal.Signal{&signal.PositionDeleted{Header: signal.Header{MarketID: p.Symbol}, PositionData: data}}
}

// ModifyPosition replaces the protective prices of a position. Zero clears a price.
func (e *Engine) ModifyPosition(ctx context.Context, positionID, marketID string, stopLoss, takeProfit float64) bool {
	e.mu.Lock()
	p, ok := e.positions[positionID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit

	var signals []signal.Signal
	if m, ok := e.markets[marketID]; ok && m.HasPosition {
		signals = append(signals, &signal.PositionAmended{
			Header:       signal.Header{MarketID: marketID},
			PositionData: positionData(p, m, 0, e.now()),
		})
	}
	e.mu.Unlock()

	e.emit(signals)
	return true
}
