package paper

import (
	"context"
	"sort"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/signal"
)

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

// gain converts a price move on quantity into quote currency.
func gain(m *domain.Market, delta, quantity float64) float64 {
	return delta * quantity * orOne(m.LotSize) * orOne(m.ContractSize)
}

// commission is the fee of an execution of cost: taker for market orders, maker otherwise.
func commission(order *domain.Order, m *domain.Market, cost float64) float64 {
	rate, fixed := m.Fee(order.IsMarket())
	return cost*rate + fixed
}

func (e *Engine) reject(ctx context.Context, op string, order *domain.Order, reason domain.OrderResult,
	fields map[string]interface{}) (domain.OrderResult, []signal.Signal) {

	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["symbol"] = order.Symbol
	fields["refOrderID"] = order.RefOrderID
	fields["reason"] = reason.String()
	e.logger.Warn(ctx, op+": Order rejected", fields)
	return reason, []signal.Signal{rejected(order, reason)}
}

func (e *Engine) filled(order *domain.Order, quantity, price float64) {
	order.Executed = quantity
	order.FullyFilled = true
	order.AvgPrice = price
	order.TransactTime = e.now()
}

func traded(order *domain.Order, price, cost, fee float64, feeAsset string) *signal.OrderTraded {
	return &signal.OrderTraded{
		Header:           signal.Header{MarketID: order.Symbol, RefOrderID: order.RefOrderID},
		OrderID:          order.OrderID,
		OrderType:        order.OrderType,
		Direction:        order.Direction,
		Timestamp:        order.TransactTime,
		Quantity:         order.Quantity,
		Price:            order.Price,
		StopPrice:        order.StopPrice,
		ExecPrice:        price,
		AvgPrice:         price,
		Filled:           order.Executed,
		CumulativeFilled: order.Executed,
		QuoteTransacted:  cost,
		CommissionAmount: fee,
		CommissionAsset:  feeAsset,
		FullyFilled:      order.FullyFilled,
	}
}

func deleted(order *domain.Order) *signal.OrderDeleted {
	return &signal.OrderDeleted{
		Header:  signal.Header{MarketID: order.Symbol},
		OrderID: order.OrderID,
	}
}

func positionData(p *domain.Position, m *domain.Market, price, ts float64) signal.PositionData {
	return signal.PositionData{
		PositionID:     p.PositionID,
		Direction:      p.Direction,
		Timestamp:      ts,
		Quantity:       p.Quantity,
		ExecPrice:      price,
		AvgEntryPrice:  p.EntryPrice,
		StopLoss:       p.StopLoss,
		TakeProfit:     p.TakeProfit,
		ProfitLoss:     p.ProfitLoss,
		ProfitCurrency: m.Quote,
	}
}

// positionSignal reports the new state of a position touched by order.
func positionSignal(p *domain.Position, m *domain.Market, order *domain.Order, price float64, created bool) signal.Signal {
	h := signal.Header{MarketID: p.Symbol, RefOrderID: order.RefOrderID}
	data := positionData(p, m, price, order.TransactTime)
	switch {
	case created:
		return &signal.PositionOpened{Header: h, PositionData: data}
	case p.Quantity <= 0:
		return &signal.PositionDeleted{Header: h, PositionData: data}
	default:
		return &signal.PositionUpdated{Header: h, PositionData: data}
	}
}

// fillSignals orders the signals of an execution: opened for immediate orders,
// traded, the position change, deleted.
func fillSignals(order *domain.Order, fresh bool, trade *signal.OrderTraded, position signal.Signal) []signal.Signal {
	signals := make([]signal.Signal, 0, 4)
	if fresh {
		signals = append(signals, opened(order))
	}
	signals = append(signals, trade)
	if position != nil {
		signals = append(signals, position)
	}
	return append(signals, deleted(order))
}

// execIndMargin fills an order on the single net position of its market. Must be called with mu held.
func (e *Engine) execIndMargin(ctx context.Context, order *domain.Order, m *domain.Market, price float64, fresh bool) (domain.OrderResult, []signal.Signal) {
	const op = "Engine.execIndMargin"

	reduceOnly := order.ReduceOnly || order.CloseOnly
	quantity := order.Quantity
	pos := e.positions[m.MarketID]

	var (
		realized   float64
		closedCost float64
		openedCost float64
		created    bool
	)

	if pos != nil && pos.IsOpened() {
		if order.Direction == pos.Direction {
			if reduceOnly {
				return e.reject(ctx, op, order, domain.OrderResultInvalidArgs, map[string]interface{}{"cause": "reduce-only increase"})
			}
			margin := m.MarginCost(quantity, price)
			if !e.account.HasMargin(margin) {
				return e.reject(ctx, op, order, domain.OrderResultInsufficientMargin, map[string]interface{}{
					"required": margin, "freeMargin": e.account.FreeMargin(),
				})
			}

			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*quantity) / (pos.Quantity + quantity)
			pos.Quantity += quantity
			e.account.UseMargin(margin)
			openedCost = m.EffectiveCost(quantity, price)
		} else {
			if reduceOnly && quantity > pos.Quantity {
				quantity = pos.Quantity
			}

			switch {
			case pos.Quantity > quantity:
				// reduce, the entry price does not move
				realized = gain(m, pos.DeltaPrice(price), quantity)
				closedCost = m.EffectiveCost(quantity, price)
				e.account.ReleaseMargin(m.MarginCost(quantity, pos.EntryPrice))
				pos.Quantity -= quantity

			case pos.Quantity == quantity:
				realized = gain(m, pos.DeltaPrice(price), quantity)
				closedCost = m.EffectiveCost(quantity, price)
				e.account.ReleaseMargin(pos.MarginCost(m))
				pos.Quantity = 0

			default:
				// reversal: close the whole position then open the remainder the other way
				prevQty := pos.Quantity
				netQty := quantity - prevQty
				released := m.MarginCost(prevQty, pos.EntryPrice)
				margin := m.MarginCost(netQty, price)
				if !e.account.Unlimited && e.account.FreeMargin()+released < margin {
					return e.reject(ctx, op, order, domain.OrderResultInsufficientMargin, map[string]interface{}{
						"required": margin, "freeMargin": e.account.FreeMargin() + released,
					})
				}

				realized = gain(m, pos.DeltaPrice(price), prevQty)
				closedCost = m.EffectiveCost(prevQty, price)
				openedCost = m.EffectiveCost(netQty, price)

				e.account.ReleaseMargin(released)
				pos.Quantity = netQty
				pos.EntryPrice = price
				pos.Direction = order.Direction
				pos.StopLoss, pos.TakeProfit = order.StopLoss, order.TakeProfit
				e.account.UseMargin(margin)
			}
		}
	} else {
		if reduceOnly {
			return e.reject(ctx, op, order, domain.OrderResultInvalidArgs, map[string]interface{}{"cause": "no position to reduce"})
		}
		margin := m.MarginCost(quantity, price)
		if !e.account.HasMargin(margin) {
			return e.reject(ctx, op, order, domain.OrderResultInsufficientMargin, map[string]interface{}{
				"required": margin, "freeMargin": e.account.FreeMargin(),
			})
		}

		pos = &domain.Position{
			PositionID:  m.MarketID,
			Symbol:      m.MarketID,
			Direction:   order.Direction,
			Quantity:    quantity,
			EntryPrice:  price,
			Leverage:    order.Leverage,
			StopLoss:    order.StopLoss,
			TakeProfit:  order.TakeProfit,
			CreatedTime: e.now(),
		}
		e.positions[m.MarketID] = pos
		e.account.UseMargin(margin)
		openedCost = m.EffectiveCost(quantity, price)
		created = true
	}

	if realized != 0 {
		e.account.AddRealizedProfitLoss(realized / orOne(m.BaseExchangeRate))
		pos.RealizedPnL += realized
	}

	cost := closedCost + openedCost
	fee := commission(order, m, cost)
	e.account.UseBalance(fee)

	e.filled(order, quantity, price)
	pos.UpdateProfitLoss(m)
	if pos.Quantity <= 0 {
		pos.ProfitLoss = realized
		delete(e.positions, m.MarketID)
	}

	order.PositionID = pos.PositionID
	return domain.OrderResultOK, fillSignals(order, fresh,
		traded(order, price, cost, fee, e.account.Currency),
		positionSignal(pos, m, order, price, created))
}

// reducible finds the position a hedged reduce order applies to: the bound one, or the
// oldest opposite position of the market.
func (e *Engine) reducible(order *domain.Order) *domain.Position {
	if order.PositionID != "" {
		return e.positions[order.PositionID]
	}

	var candidates []*domain.Position
	for _, p := range e.positions {
		if p.Symbol == order.Symbol && p.IsOpened() && p.Direction != order.Direction {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedTime == candidates[j].CreatedTime {
			return candidates[i].PositionID < candidates[j].PositionID
		}
		return candidates[i].CreatedTime < candidates[j].CreatedTime
	})
	return candidates[0]
}

// execMargin fills an order in hedged mode: an opening order creates its own position,
// a reduce order reduces the position it is bound to. Must be called with mu held.
func (e *Engine) execMargin(ctx context.Context, order *domain.Order, m *domain.Market, price float64, fresh bool) (domain.OrderResult, []signal.Signal) {
	const op = "Engine.execMargin"

	quantity := order.Quantity

	if order.PositionID != "" || order.ReduceOnly || order.CloseOnly {
		pos := e.reducible(order)
		if pos == nil || !pos.IsOpened() || pos.Direction == order.Direction {
			return e.reject(ctx, op, order, domain.OrderResultInvalidArgs, map[string]interface{}{
				"positionID": order.PositionID, "cause": "no position to reduce",
			})
		}
		if quantity > pos.Quantity {
			quantity = pos.Quantity
		}

		realized := gain(m, pos.DeltaPrice(price), quantity)
		cost := m.EffectiveCost(quantity, price)
		e.account.ReleaseMargin(m.MarginCost(quantity, pos.EntryPrice))
		pos.Quantity -= quantity

		e.account.AddRealizedProfitLoss(realized / orOne(m.BaseExchangeRate))
		pos.RealizedPnL += realized

		fee := commission(order, m, cost)
		e.account.UseBalance(fee)

		e.filled(order, quantity, price)
		pos.UpdateProfitLoss(m)
		if pos.Quantity <= 0 {
			pos.ProfitLoss = realized
			delete(e.positions, pos.PositionID)
		}

		order.PositionID = pos.PositionID
		return domain.OrderResultOK, fillSignals(order, fresh,
			traded(order, price, cost, fee, e.account.Currency),
			positionSignal(pos, m, order, price, false))
	}

	margin := m.MarginCost(quantity, price)
	if !e.account.HasMargin(margin) {
		return e.reject(ctx, op, order, domain.OrderResultInsufficientMargin, map[string]interface{}{
			"required": margin, "freeMargin": e.account.FreeMargin(),
		})
	}

	pos := &domain.Position{
		PositionID:  order.OrderID,
		Symbol:      m.MarketID,
		Direction:   order.Direction,
		Quantity:    quantity,
		EntryPrice:  price,
		Leverage:    order.Leverage,
		StopLoss:    order.StopLoss,
		TakeProfit:  order.TakeProfit,
		CreatedTime: e.now(),
	}
	e.positions[pos.PositionID] = pos
	e.account.UseMargin(margin)

	cost := m.EffectiveCost(quantity, price)
	fee := commission(order, m, cost)
	e.account.UseBalance(fee)

	e.filled(order, quantity, price)
	pos.UpdateProfitLoss(m)

	order.PositionID = pos.PositionID
	return domain.OrderResultOK, fillSignals(order, fresh,
		traded(order, price, cost, fee, e.account.Currency),
		positionSignal(pos, m, order, price, true))
}

// execSpot buys or sells the base asset against the quote asset. Must be called with mu held.
func (e *Engine) execSpot(ctx context.Context, order *domain.Order, m *domain.Market, price float64, fresh bool) (domain.OrderResult, []signal.Signal) {
	const op = "Engine.execSpot"

	quantity := order.Quantity
	cost := m.EffectiveCost(quantity, price)
	fee := commission(order, m, cost)

	quote := e.asset(m.Quote, m.Quote)
	base := e.asset(m.Base, m.Quote)

	if order.Direction == domain.DirectionLong {
		if !e.account.Unlimited && quote.Free < cost+fee {
			return e.reject(ctx, op, order, domain.OrderResultInsufficientFunds, map[string]interface{}{
				"required": cost + fee, "free": quote.Free, "asset": m.Quote,
			})
		}
		quote.Sell(cost + fee)
		if quote.Symbol == e.account.Currency {
			quote.Price = 1
		}
		base.Buy(quantity, price)
	} else {
		if !e.account.Unlimited && base.Free < quantity {
			return e.reject(ctx, op, order, domain.OrderResultInsufficientFunds, map[string]interface{}{
				"required": quantity, "free": base.Free, "asset": m.Base,
			})
		}
		base.Sell(quantity)
		quote.Buy(cost-fee, 0)
		if quote.Symbol == e.account.Currency {
			quote.Price = 1
		}
	}

	e.account.FeesPaid += fee
	base.UpdateProfitLoss(m)

	e.filled(order, quantity, price)
	return domain.OrderResultOK, fillSignals(order, fresh, traded(order, price, cost, fee, m.Quote), nil)
}
