package trade

import (
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/signal"
)

// IsTargetOrder reports whether an order id or reference id belongs to the trade.
func (t *Trade) IsTargetOrder(orderID, refID string) bool {
	if orderID != "" && (orderID == t.createOID || orderID == t.stopOID || orderID == t.limitOID) {
		return true
	}
	if refID != "" && (refID == t.createRefOID || refID == t.stopRefOID || refID == t.limitRefOID) {
		return true
	}
	return false
}

// IsTargetPosition reports whether a position signal belongs to the trade.
func (t *Trade) IsTargetPosition(positionID, refID string) bool {
	if positionID != "" && positionID == t.positionID {
		return true
	}
	return refID != "" && refID == t.createRefOID
}

// OrderSignal applies an order lifecycle signal to the trade.
func (t *Trade) OrderSignal(s signal.Signal, m *domain.Market) {
	s.Accept(&orderHandler{t: t, m: m})
}

// PositionSignal applies a position lifecycle signal to the trade.
func (t *Trade) PositionSignal(s signal.Signal, m *domain.Market) {
	s.Accept(&positionHandler{t: t, m: m})
}

type orderHandler struct {
	signal.NopVisitor
	t *Trade
	m *domain.Market
}

func (h *orderHandler) VisitOrderOpened(s *signal.OrderOpened) {
	t := h.t
	switch {
	case s.RefOrderID != "" && s.RefOrderID == t.createRefOID:
		t.createOID = s.OrderID
		if t.entryOpenTime == 0 {
			t.entryOpenTime = s.Timestamp
		}
		if s.StopLoss > 0 {
			t.stopLoss = s.StopLoss
		}
		if s.TakeProfit > 0 {
			t.takeProfit = s.TakeProfit
		}
		// the fill may have been applied first
		if t.entryQty == 0 {
			t.entryState = domain.StateOpened
		}

	case s.RefOrderID != "" && s.RefOrderID == t.stopRefOID:
		t.stopOID = s.OrderID
		if t.exitOpenTime == 0 {
			t.exitOpenTime = s.Timestamp
		}

	case s.RefOrderID != "" && s.RefOrderID == t.limitRefOID:
		t.limitOID = s.OrderID
		if t.exitOpenTime == 0 {
			t.exitOpenTime = s.Timestamp
		}
	}
}

func (h *orderHandler) VisitOrderRejected(s *signal.OrderRejected) {
	t := h.t
	switch {
	case s.RefOrderID == "":
	case s.RefOrderID == t.createRefOID:
		t.createRefOID, t.createOID = "", ""
		if t.entryQty <= 0 {
			t.entryState = domain.StateRejected
		}
	case s.RefOrderID == t.stopRefOID:
		t.stopRefOID, t.stopOID, t.stopOrderQty = "", "", 0
		t.exitRejected(s.Reason)
	case s.RefOrderID == t.limitRefOID:
		t.limitRefOID, t.limitOID, t.limitOrderQty = "", "", 0
		t.exitRejected(s.Reason)
	}
}

func (t *Trade) exitRejected(reason domain.OrderResult) {
	t.closing = false
	switch reason {
	case domain.OrderResultInsufficientMargin, domain.OrderResultInsufficientFunds:
		t.exitState = domain.StateError
	default:
		if t.exitQty < t.entryQty {
			t.exitState = domain.StateRejected
		}
	}
}

func (h *orderHandler) VisitOrderCanceled(s *signal.OrderCanceled) {
	h.removed(s.OrderID, domain.StateCanceled)
}

func (h *orderHandler) VisitOrderDeleted(s *signal.OrderDeleted) {
	h.removed(s.OrderID, domain.StateDeleted)
}

func (h *orderHandler) removed(orderID string, state domain.TradeState) {
	t := h.t
	switch {
	case orderID == "":
	case orderID == t.createOID:
		t.createOID = ""
		if t.entryState == domain.StateFilled {
			return
		}
		if t.entryQty > 0 {
			t.entryState = domain.StateFilled
		} else {
			t.entryState = state
		}
	case orderID == t.stopOID:
		t.stopOID, t.stopRefOID, t.stopOrderQty = "", "", 0
		if t.closing && t.exitState != domain.StateFilled {
			t.closing = false
		}
	case orderID == t.limitOID:
		t.limitOID, t.limitRefOID, t.limitOrderQty = "", "", 0
	}
}

func (h *orderHandler) VisitOrderTraded(s *signal.OrderTraded) {
	t := h.t
	switch {
	case s.OrderID == "":
	case s.OrderID == t.createOID || (t.createOID == "" && s.RefOrderID != "" && s.RefOrderID == t.createRefOID &&
		t.entryState != domain.StateFilled):
		if t.createOID == "" {
			t.createOID = s.OrderID
		}
		h.entryTraded(s)
	case s.OrderID == t.stopOID || (s.RefOrderID != "" && s.RefOrderID == t.stopRefOID):
		h.exitTraded(s, true)
	case s.OrderID == t.limitOID || (s.RefOrderID != "" && s.RefOrderID == t.limitRefOID):
		h.exitTraded(s, false)
	}
}

func filledOf(s *signal.OrderTraded, done float64) float64 {
	if s.CumulativeFilled > 0 {
		return s.CumulativeFilled - done
	}
	if s.Filled > 0 {
		return s.Filled
	}
	return 0
}

func (h *orderHandler) entryTraded(s *signal.OrderTraded) {
	t := h.t
	filled := filledOf(s, t.entryQty)

	switch {
	case s.AvgPrice > 0:
		t.entryPrice = s.AvgPrice
	case s.ExecPrice > 0 && t.entryQty+filled > 0:
		t.entryPrice = (t.entryPrice*t.entryQty + s.ExecPrice*filled) / (t.entryQty + filled)
	default:
		t.entryPrice = t.orderPrice
	}

	if s.CumulativeFilled > 0 {
		t.entryQty = s.CumulativeFilled
	} else if filled > 0 {
		t.entryQty = h.m.AdjustQuantity(t.entryQty + filled)
	}

	if filled > 0 {
		t.dirty = true
		t.stats.EntryFees += h.commission(s)
	}

	if t.entryOpenTime == 0 {
		t.entryOpenTime = s.Timestamp
	}

	if t.entryQty >= t.orderQty {
		t.entryState = domain.StateFilled
		t.createOID = ""
	} else {
		t.entryState = domain.StatePartiallyFilled
	}

	if t.stats.FirstRealizedEntryTimestamp == 0 {
		t.stats.FirstRealizedEntryTimestamp = s.Timestamp
	}
	t.stats.LastRealizedEntryTimestamp = s.Timestamp
}

func (h *orderHandler) exitTraded(s *signal.OrderTraded, stop bool) {
	t := h.t
	filled := filledOf(s, t.exitQty)
	if filled > t.entryQty-t.exitQty {
		filled = t.entryQty - t.exitQty
	}

	switch {
	case s.AvgPrice > 0 && t.entryPrice > 0:
		t.plRate = t.rateTo(s.AvgPrice)
		t.exitPrice = s.AvgPrice
	case s.ExecPrice > 0 && filled > 0 && t.entryPrice > 0 && t.entryQty > 0:
		if t.dir == domain.DirectionLong {
			t.plRate += (s.ExecPrice*filled - t.entryPrice*filled) / (t.entryPrice * t.entryQty)
		} else {
			t.plRate += (t.entryPrice*filled - s.ExecPrice*filled) / (t.entryPrice * t.entryQty)
		}
		t.exitPrice = (t.exitPrice*t.exitQty + s.ExecPrice*filled) / (t.exitQty + filled)
	}

	if filled > 0 {
		t.exitQty += filled
		if t.exitQty > t.entryQty {
			t.exitQty = t.entryQty
		}
		fees := h.commission(s)
		t.stats.ExitFees += fees

		price := s.ExecPrice
		if price <= 0 {
			price = s.AvgPrice
		}
		t.exitTrades = append(t.exitTrades, ExitTrade{
			OrderID:   s.OrderID,
			Timestamp: s.Timestamp,
			Quantity:  filled,
			Price:     price,
			Fees:      fees,
		})
	}

	if t.stats.ExitReason == domain.ReasonNone {
		t.stats.ExitReason = t.exitReasonOf(stop)
	}

	if t.exitQty >= t.entryQty && !t.IsOpening() {
		t.exitState = domain.StateFilled
		if stop {
			t.stopOID, t.stopRefOID, t.stopOrderQty = "", "", 0
		} else {
			t.limitOID, t.limitRefOID, t.limitOrderQty = "", "", 0
		}
	} else {
		t.exitState = domain.StatePartiallyFilled
	}

	if t.stats.FirstRealizedExitTimestamp == 0 {
		t.stats.FirstRealizedExitTimestamp = s.Timestamp
	}
	t.stats.LastRealizedExitTimestamp = s.Timestamp
}

func (t *Trade) exitReasonOf(stop bool) domain.ExitReason {
	switch {
	case t.closing:
		return domain.ReasonCloseMarket
	case stop && t.stats.StopOrderType == domain.OrderStopLimit:
		return domain.ReasonStopLossLimit
	case stop:
		return domain.ReasonStopLossMarket
	case t.stats.TakeProfitOrderType == domain.OrderMarket || t.stats.TakeProfitOrderType == domain.OrderTakeProfit:
		return domain.ReasonTakeProfitMarket
	default:
		return domain.ReasonTakeProfitLimit
	}
}

// commission counts the fee when it is paid in the quote currency.
func (h *orderHandler) commission(s *signal.OrderTraded) float64 {
	if s.CommissionAmount == 0 {
		return 0
	}
	if s.CommissionAsset == "" || h.m == nil || s.CommissionAsset == h.m.Quote {
		if s.CommissionAmount < 0 {
			return -s.CommissionAmount
		}
		return s.CommissionAmount
	}
	return 0
}

type positionHandler struct {
	signal.NopVisitor
	t *Trade
	m *domain.Market
}

func (h *positionHandler) update(d *signal.PositionData) {
	if d.ProfitLoss != 0 {
		h.t.stats.UnrealizedProfitLoss = d.ProfitLoss
	}
	if d.ProfitCurrency != "" {
		h.t.stats.ProfitLossCurrency = d.ProfitCurrency
	}
}

func (h *positionHandler) VisitPositionOpened(s *signal.PositionOpened) {
	h.t.positionID = s.PositionID
	h.update(&s.PositionData)
}

func (h *positionHandler) VisitPositionUpdated(s *signal.PositionUpdated) {
	t := h.t
	h.update(&s.PositionData)
	if t.positionID == "" {
		t.positionID = s.PositionID
	}

	if !t.kind.PositionProtection || t.entryQty <= 0 || t.IsOpening() {
		return
	}
	if s.Direction != domain.DirectionNone && s.Direction != t.dir {
		return
	}
	if x := t.entryQty - s.Quantity; x > t.exitQty {
		h.exited(x, s.ExecPrice, s.Timestamp)
		t.exitState = domain.StatePartiallyFilled
	}
}

func (h *positionHandler) VisitPositionDeleted(s *signal.PositionDeleted) {
	t := h.t
	h.update(&s.PositionData)
	defer func() { t.positionID = "" }()

	if !t.kind.PositionProtection || t.entryQty <= 0 {
		return
	}
	if t.exitQty < t.entryQty {
		h.exited(t.entryQty, s.ExecPrice, s.Timestamp)
	}
	if t.stats.ExitReason == domain.ReasonNone {
		t.stats.ExitReason = t.positionExitReason(s.ExecPrice)
	}
	t.exitState = domain.StateFilled
	t.closing = false
}

func (h *positionHandler) VisitPositionAmended(s *signal.PositionAmended) {
	h.update(&s.PositionData)
	h.t.stopLoss = s.StopLoss
	h.t.takeProfit = s.TakeProfit
}

// exited moves the filled exit quantity up to x at price.
func (h *positionHandler) exited(x, price, timestamp float64) {
	t := h.t
	filled := x - t.exitQty
	if filled <= 0 {
		return
	}
	if price > 0 {
		t.exitPrice = (t.exitPrice*t.exitQty + price*filled) / x
		if t.entryPrice > 0 {
			t.plRate = t.rateTo(t.exitPrice) * x / t.entryQty
		}
	}
	t.exitQty = x
	t.exitTrades = append(t.exitTrades, ExitTrade{
		OrderID:   t.positionID,
		Timestamp: timestamp,
		Quantity:  filled,
		Price:     price,
	})
	if t.stats.FirstRealizedExitTimestamp == 0 {
		t.stats.FirstRealizedExitTimestamp = timestamp
	}
	t.stats.LastRealizedExitTimestamp = timestamp
}

func (t *Trade) positionExitReason(price float64) domain.ExitReason {
	switch {
	case t.closing:
		return domain.ReasonCloseMarket
	case t.takeProfit > 0 && price > 0 && t.rateTo(price) >= t.rateTo(t.takeProfit):
		return domain.ReasonTakeProfitMarket
	case t.stopLoss > 0:
		return domain.ReasonStopLossMarket
	default:
		return domain.ReasonCloseMarket
	}
}
