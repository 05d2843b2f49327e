package trade

import (
	"context"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// cancelOrFind cancels a live order. When the cancel fails the order is looked up:
// CodeAccepted means the order was canceled, CodeNothingToDo that it no longer exists,
// CodeError that it still exists or the lookup failed and the caller must retry.
func cancelOrFind(ctx context.Context, trader ports.Trader, marketID, orderID string) domain.ReturnCode {
	if trader.CancelOrder(ctx, orderID, marketID).OK() {
		return domain.CodeAccepted
	}
	info, err := trader.OrderInfo(ctx, orderID, marketID)
	if err != nil {
		return domain.CodeError
	}
	if !info.Found() {
		return domain.CodeNothingToDo
	}
	return domain.CodeError
}

func (t *Trade) entryOrder(m *domain.Market, orderType domain.OrderType, price, quantity float64) *domain.Order {
	order := domain.NewOrder(m.MarketID)
	order.Direction = t.dir
	order.OrderType = orderType
	order.Quantity = quantity
	order.Leverage = t.leverage
	order.MarginTrade = t.kind.MarginTrade
	if t.kind.PositionProtection && t.hardExits {
		order.StopLoss = t.stopLoss
		order.TakeProfit = t.takeProfit
	}

	switch orderType {
	case domain.OrderLimit:
		order.Price = price
	case domain.OrderStop, domain.OrderTakeProfit:
		order.StopPrice = price
	case domain.OrderStopLimit, domain.OrderTakeProfitLimit:
		order.Price = price
		order.StopPrice = price
	}
	return order
}

func (t *Trade) exitOrder(m *domain.Market, orderType domain.OrderType, price, quantity float64) *domain.Order {
	order := domain.NewOrder(m.MarketID)
	order.Direction = t.CloseDirection()
	order.OrderType = orderType
	order.Quantity = quantity
	order.Leverage = t.leverage
	order.MarginTrade = t.kind.MarginTrade
	order.ReduceOnly = t.kind.ReduceOnlyExits
	if t.kind.BindPosition {
		order.PositionID = t.positionID
	}

	switch orderType {
	case domain.OrderLimit:
		order.Price = price
	case domain.OrderStop, domain.OrderTakeProfit:
		order.StopPrice = price
	case domain.OrderStopLimit, domain.OrderTakeProfitLimit:
		order.Price = price
		order.StopPrice = price
	}
	return order
}

// Open submits the entry order. Invalid arguments are refused without touching the trade. The entry stays new until the order is confirmed
// by a signal; a refused order rejects the entry.
func (t *Trade) Open(ctx context.Context, trader ports.Trader, m *domain.Market, dir domain.Direction,
	orderType domain.OrderType, price, quantity, takeProfit, stopLoss, leverage float64) bool {

	if t.entryState != domain.StateNew {
		return false
	}
	if quantity <= 0 || dir == domain.DirectionNone || (dir == domain.DirectionShort && !t.kind.ShortAllowed) {
		return false
	}
	ref := price
	if ref <= 0 {
		ref = t.kind.Pricing.EntryPrice(m, dir)
	}
	if !domain.ValidProtections(dir, ref, stopLoss, takeProfit) {
		return false
	}

	t.dir = dir
	t.orderPrice = price
	t.orderQty = quantity
	t.takeProfit = takeProfit
	t.stopLoss = stopLoss
	if leverage > 0 {
		t.leverage = leverage
	}

	order := t.entryOrder(m, orderType, price, quantity)
	trader.SetRefOrderID(order)
	t.createRefOID = order.RefOrderID

	t.stats.EntryOrderType = orderType
	t.stats.ProfitLossCurrency = m.Quote

	if trader.CreateOrder(ctx, order).OK() {
		t.createOID = order.OrderID
		if t.entryOpenTime == 0 && order.CreatedTime > 0 {
			t.entryOpenTime = order.CreatedTime
		}
		return true
	}

	t.createRefOID = ""
	t.entryState = domain.StateRejected
	return false
}

// Reopen submits a new entry order for a canceled entry.
func (t *Trade) Reopen(ctx context.Context, trader ports.Trader, m *domain.Market, quantity float64) bool {
	if t.entryState != domain.StateCanceled || quantity <= 0 {
		return false
	}

	t.entryState = domain.StateNew
	t.entryOpenTime = 0

	order := t.entryOrder(m, t.stats.EntryOrderType, t.orderPrice, quantity)
	trader.SetRefOrderID(order)
	t.createRefOID = order.RefOrderID
	t.orderQty = quantity

	if trader.CreateOrder(ctx, order).OK() {
		t.createOID = order.OrderID
		if t.entryOpenTime == 0 && order.CreatedTime > 0 {
			t.entryOpenTime = order.CreatedTime
		}
		return true
	}

	t.createRefOID = ""
	t.entryState = domain.StateRejected
	return false
}

// Assign registers an already held position or asset as a filled user trade,
// without placing any order.
func (t *Trade) Assign(trader ports.Trader, m *domain.Market, dir domain.Direction, orderType domain.OrderType,
	price, quantity, takeProfit, stopLoss, leverage float64) bool {

	t.SetUserTrade(true)

	t.entryState = domain.StateFilled
	t.exitState = domain.StateNew

	t.dir = dir
	t.orderPrice = price
	t.orderQty = quantity
	t.takeProfit = takeProfit
	t.stopLoss = stopLoss
	if leverage > 0 {
		t.leverage = leverage
	}

	t.entryOpenTime = trader.Timestamp()
	t.entryPrice = price
	t.entryQty = quantity

	t.stats.EntryOrderType = orderType
	t.stats.ProfitLossCurrency = m.Quote
	return true
}

// Remove cancels every live order of the trade. It reports whether none is left.
func (t *Trade) Remove(ctx context.Context, trader ports.Trader, m *domain.Market) bool {
	ok := true

	if t.createOID != "" {
		switch cancelOrFind(ctx, trader, m.MarketID, t.createOID) {
		case domain.CodeAccepted:
			t.createOID, t.createRefOID = "", ""
			if t.entryQty <= 0 {
				t.entryState = domain.StateCanceled
			} else {
				t.entryState = domain.StateFilled
			}
		case domain.CodeNothingToDo:
			t.createOID, t.createRefOID = "", ""
			t.entryState = domain.StateCanceled
		default:
			ok = false
		}
	}

	if t.stopOID != "" {
		switch cancelOrFind(ctx, trader, m.MarketID, t.stopOID) {
		case domain.CodeAccepted, domain.CodeNothingToDo:
			t.stopOID, t.stopRefOID, t.stopOrderQty = "", "", 0
		default:
			ok = false
		}
	}

	if t.limitOID != "" {
		switch cancelOrFind(ctx, trader, m.MarketID, t.limitOID) {
		case domain.CodeAccepted, domain.CodeNothingToDo:
			t.limitOID, t.limitRefOID, t.limitOrderQty = "", "", 0
		default:
			ok = false
		}
	}

	if ok && t.exitQty <= 0 && t.entryQty <= 0 && t.exitState == domain.StateNew {
		t.exitState = domain.StateCanceled
	}
	return ok
}

// CancelOpen cancels the remaining entry order. A partially filled entry becomes filled.
func (t *Trade) CancelOpen(ctx context.Context, trader ports.Trader, m *domain.Market) domain.ReturnCode {
	if t.createOID == "" {
		return domain.CodeNothingToDo
	}

	switch cancelOrFind(ctx, trader, m.MarketID, t.createOID) {
	case domain.CodeAccepted:
		t.createOID, t.createRefOID = "", ""
		if t.entryQty <= 0 {
			t.entryState = domain.StateCanceled
		} else {
			t.entryState = domain.StateFilled
		}
		return domain.CodeAccepted
	case domain.CodeNothingToDo:
		t.createOID, t.createRefOID = "", ""
		t.entryState = domain.StateCanceled
		return domain.CodeNothingToDo
	default:
		return domain.CodeError
	}
}

// CancelClose cancels the working exit orders, keeping the filled exit quantity.
func (t *Trade) CancelClose(ctx context.Context, trader ports.Trader, m *domain.Market) domain.ReturnCode {
	result := domain.CodeNothingToDo

	if t.stopOID != "" {
		switch cancelOrFind(ctx, trader, m.MarketID, t.stopOID) {
		case domain.CodeAccepted, domain.CodeNothingToDo:
			t.stopOID, t.stopRefOID, t.stopOrderQty = "", "", 0
			result = domain.CodeAccepted
		default:
			return domain.CodeError
		}
	}

	if t.limitOID != "" {
		switch cancelOrFind(ctx, trader, m.MarketID, t.limitOID) {
		case domain.CodeAccepted, domain.CodeNothingToDo:
			t.limitOID, t.limitRefOID, t.limitOrderQty = "", "", 0
			result = domain.CodeAccepted
		default:
			return domain.CodeError
		}
	}

	if result == domain.CodeAccepted {
		t.closing = false
		if t.exitQty <= 0 {
			t.exitState = domain.StateNew
		}
	}
	return result
}

func (t *Trade) cancelStop(ctx context.Context, trader ports.Trader, m *domain.Market) bool {
	if t.stopOID == "" {
		return true
	}
	switch cancelOrFind(ctx, trader, m.MarketID, t.stopOID) {
	case domain.CodeAccepted, domain.CodeNothingToDo:
		t.stopOID, t.stopRefOID, t.stopOrderQty = "", "", 0
		return true
	}
	return false
}

func (t *Trade) cancelLimit(ctx context.Context, trader ports.Trader, m *domain.Market) bool {
	if t.limitOID == "" {
		return true
	}
	switch cancelOrFind(ctx, trader, m.MarketID, t.limitOID) {
	case domain.CodeAccepted, domain.CodeNothingToDo:
		t.limitOID, t.limitRefOID, t.limitOrderQty = "", "", 0
		return true
	}
	return false
}

// ModifyTakeProfit places, replaces or removes the take-profit. A hard take-profit is a
// resting limit order, a soft one is only recorded for the strategy to watch.
// A price of 0 removes it.
func (t *Trade) ModifyTakeProfit(ctx context.Context, trader ports.Trader, m *domain.Market, price float64, hard bool) domain.ReturnCode {
	if t.closing || t.exitState == domain.StateFilled {
		return domain.CodeNothingToDo
	}

	if t.kind.PositionProtection {
		return t.modifyPositionProtection(ctx, trader, m, t.stopLoss, price, hard, false)
	}

	if !t.cancelLimit(ctx, trader, m) {
		return domain.CodeError
	}
	if t.kind.SingleExitOrder && hard && price > 0 {
		if !t.cancelStop(ctx, trader, m) {
			return domain.CodeError
		}
	}

	if t.exitQty >= t.entryQty {
		return domain.CodeNothingToDo
	}

	if price > 0 && hard {
		order := t.exitOrder(m, domain.OrderLimit, price, t.entryQty-t.exitQty)
		trader.SetRefOrderID(order)
		t.limitRefOID = order.RefOrderID
		t.stats.TakeProfitOrderType = order.OrderType

		result := trader.CreateOrder(ctx, order)
		if result.OK() {
			t.limitOID = order.OrderID
			t.limitOrderQty = order.Quantity
			t.lastTakeProfitOrder[0] = order.CreatedTime
			t.lastTakeProfitOrder[1]++
			t.takeProfit = price
			if t.exitOpenTime == 0 {
				t.exitOpenTime = order.CreatedTime
			}
			return domain.CodeAccepted
		}

		t.limitRefOID = ""
		t.limitOrderQty = 0
		return t.exitRefused(result)
	}

	t.takeProfit = price
	return domain.CodeNothingToDo
}

// ModifyStopLoss places, replaces or removes the stop-loss. A hard stop-loss is a
// stop market order, a soft one is only recorded for the strategy to watch.
// A price of 0 removes it.
func (t *Trade) ModifyStopLoss(ctx context.Context, trader ports.Trader, m *domain.Market, price float64, hard bool) domain.ReturnCode {
	if t.closing || t.exitState == domain.StateFilled {
		return domain.CodeNothingToDo
	}

	if t.kind.PositionProtection {
		return t.modifyPositionProtection(ctx, trader, m, price, t.takeProfit, hard, true)
	}

	if !t.cancelStop(ctx, trader, m) {
		return domain.CodeError
	}
	if t.kind.SingleExitOrder && hard && price > 0 {
		if !t.cancelLimit(ctx, trader, m) {
			return domain.CodeError
		}
	}

	if t.exitQty >= t.entryQty {
		return domain.CodeNothingToDo
	}

	if price > 0 && hard {
		order := t.exitOrder(m, domain.OrderStop, price, t.entryQty-t.exitQty)
		trader.SetRefOrderID(order)
		t.stopRefOID = order.RefOrderID
		t.stats.StopOrderType = order.OrderType

		result := trader.CreateOrder(ctx, order)
		if result.OK() {
			t.stopOID = order.OrderID
			t.stopOrderQty = order.Quantity
			t.lastStopLossOrder[0] = order.CreatedTime
			t.lastStopLossOrder[1]++
			t.stopLoss = price
			if t.exitOpenTime == 0 {
				t.exitOpenTime = order.CreatedTime
			}
			return domain.CodeAccepted
		}

		t.stopRefOID = ""
		t.stopOrderQty = 0
		return t.exitRefused(result)
	}

	t.stopLoss = price
	return domain.CodeNothingToDo
}

func (t *Trade) exitRefused(result domain.OrderResult) domain.ReturnCode {
	switch result {
	case domain.OrderResultInsufficientMargin:
		t.exitState = domain.StateError
		return domain.CodeInsufficientMargin
	case domain.OrderResultInsufficientFunds:
		t.exitState = domain.StateError
		return domain.CodeInsufficientFunds
	default:
		return domain.CodeRejected
	}
}

func (t *Trade) modifyPositionProtection(ctx context.Context, trader ports.Trader, m *domain.Market,
	stopLoss, takeProfit float64, hard, isStop bool) domain.ReturnCode {

	if t.exitQty >= t.entryQty {
		return domain.CodeNothingToDo
	}

	prevStop, prevTake := t.stopLoss, t.takeProfit
	t.stopLoss, t.takeProfit = stopLoss, takeProfit

	if !hard || t.positionID == "" {
		return domain.CodeNothingToDo
	}
	if prevStop == stopLoss && prevTake == takeProfit {
		return domain.CodeNothingToDo
	}

	if !trader.ModifyPosition(ctx, t.positionID, m.MarketID, stopLoss, takeProfit) {
		t.stopLoss, t.takeProfit = prevStop, prevTake
		return domain.CodeError
	}

	now := trader.Timestamp()
	if isStop {
		t.lastStopLossOrder[0] = now
		t.lastStopLossOrder[1]++
	} else {
		t.lastTakeProfitOrder[0] = now
		t.lastTakeProfitOrder[1]++
	}
	return domain.CodeAccepted
}

// ModifyOCO sets the take-profit and the stop-loss together. When the kind allows a
// single exit order the stop-loss is placed hard and the take-profit kept soft.
func (t *Trade) ModifyOCO(ctx context.Context, trader ports.Trader, m *domain.Market, limitPrice, stopPrice float64, hard bool) domain.ReturnCode {
	tpHard := hard
	if t.kind.SingleExitOrder && limitPrice > 0 && stopPrice > 0 {
		tpHard = false
	}

	tp := t.ModifyTakeProfit(ctx, trader, m, limitPrice, tpHard)
	if tp < domain.CodeRejected {
		return tp
	}
	sl := t.ModifyStopLoss(ctx, trader, m, stopPrice, hard)
	if sl != domain.CodeNothingToDo {
		return sl
	}
	return tp
}

// Close cancels the working orders and exits the remaining quantity at market.
func (t *Trade) Close(ctx context.Context, trader ports.Trader, m *domain.Market) domain.ReturnCode {
	if t.closing {
		return domain.CodeNothingToDo
	}

	if t.createOID != "" {
		switch cancelOrFind(ctx, trader, m.MarketID, t.createOID) {
		case domain.CodeAccepted:
			t.createOID, t.createRefOID = "", ""
			if t.entryQty <= 0 {
				t.entryState = domain.StateCanceled
			} else {
				t.entryState = domain.StateFilled
			}
		case domain.CodeNothingToDo:
			t.createOID, t.createRefOID = "", ""
		default:
			return domain.CodeError
		}
	}

	if !t.cancelStop(ctx, trader, m) || !t.cancelLimit(ctx, trader, m) {
		return domain.CodeError
	}

	if t.exitQty >= t.entryQty {
		return domain.CodeNothingToDo
	}

	if t.kind.PositionProtection {
		if t.positionID == "" {
			return domain.CodeError
		}
		if !trader.ClosePosition(ctx, t.positionID, m.MarketID, 0) {
			return domain.CodeRejected
		}
		t.closing = true
		return domain.CodeAccepted
	}

	order := t.exitOrder(m, domain.OrderMarket, 0, t.entryQty-t.exitQty)
	trader.SetRefOrderID(order)
	t.stopRefOID = order.RefOrderID
	t.stats.StopOrderType = order.OrderType

	// closing first, the market fill may be reported while the order is created
	t.closing = true

	result := trader.CreateOrder(ctx, order)
	if result.OK() {
		t.stopOID = order.OrderID
		t.stopOrderQty = order.Quantity
		return domain.CodeAccepted
	}

	t.closing = false
	t.stopRefOID = ""
	t.stopOrderQty = 0
	return t.exitRefused(result)
}
