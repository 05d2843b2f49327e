package trade

import (
	"context"
	"fmt"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/signal"
)

// Check results.
const (
	CheckUnrecoverable = -1
	CheckNeedsRepair   = 0
	CheckConsistent    = 1
)

// exitFilledBy sums the exit fills already applied for an order.
func (t *Trade) exitFilledBy(orderID string) float64 {
	var qty float64
	for _, et := range t.exitTrades {
		if et.OrderID == orderID {
			qty += et.Quantity
		}
	}
	return qty
}

// Check compares the trade against the orders known by the trader. It returns
// CheckConsistent, CheckNeedsRepair, or CheckUnrecoverable when the trade breaks its
// own invariants.
func (t *Trade) Check(ctx context.Context, trader ports.Trader, m *domain.Market) int {
	if t.exitQty > t.entryQty || t.entryQty < 0 || t.exitQty < 0 {
		return CheckUnrecoverable
	}

	if t.createOID != "" {
		info, err := trader.OrderInfo(ctx, t.createOID, m.MarketID)
		if err != nil {
			return CheckNeedsRepair
		}
		if !info.Found() {
			return CheckNeedsRepair
		}
		if info.CumulativeFilled != t.entryQty {
			return CheckNeedsRepair
		}
	} else if t.entryState == domain.StateOpened || t.entryState == domain.StatePartiallyFilled {
		// working entry without an order
		return CheckNeedsRepair
	}

	for _, oid := range []string{t.stopOID, t.limitOID} {
		if oid == "" {
			continue
		}
		info, err := trader.OrderInfo(ctx, oid, m.MarketID)
		if err != nil || !info.Found() {
			return CheckNeedsRepair
		}
		if info.CumulativeFilled != t.exitFilledBy(oid) {
			return CheckNeedsRepair
		}
	}

	return CheckConsistent
}

// Repair resynchronizes quantities and prices with the orders known by the trader.
// It never panics; failures are logged and reported as false.
func (t *Trade) Repair(ctx context.Context, trader ports.Trader, m *domain.Market, logger ports.Logger) (ok bool) {
	const op = "Trade.Repair"

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, fmt.Errorf("%w: %v", ports.ErrInvalidTrade, r), op+": Panic while repairing trade",
				map[string]interface{}{"tradeID": t.id, "marketID": m.MarketID})
			ok = false
		}
	}()

	if t.exitQty > t.entryQty {
		logger.Warn(ctx, op+": Exit quantity exceeds entry quantity", map[string]interface{}{
			"tradeID": t.id, "entryQty": t.entryQty, "exitQty": t.exitQty,
		})
		t.exitQty = t.entryQty
		t.exitState = domain.StateError
		return false
	}

	if t.createOID != "" {
		info, err := trader.OrderInfo(ctx, t.createOID, m.MarketID)
		if err != nil {
			logger.Error(ctx, err, op+": Failed to fetch entry order", map[string]interface{}{"tradeID": t.id, "orderID": t.createOID})
			return false
		}
		t.repairEntry(info)
	} else if t.entryState == domain.StateOpened || t.entryState == domain.StatePartiallyFilled {
		t.repairEntry(nil)
	}

	if t.stopOID != "" {
		info, err := trader.OrderInfo(ctx, t.stopOID, m.MarketID)
		if err != nil {
			logger.Error(ctx, err, op+": Failed to fetch stop order", map[string]interface{}{"tradeID": t.id, "orderID": t.stopOID})
			return false
		}
		t.repairExit(info, m, true)
	}

	if t.limitOID != "" {
		info, err := trader.OrderInfo(ctx, t.limitOID, m.MarketID)
		if err != nil {
			logger.Error(ctx, err, op+": Failed to fetch limit order", map[string]interface{}{"tradeID": t.id, "orderID": t.limitOID})
			return false
		}
		t.repairExit(info, m, false)
	}

	logger.Info(ctx, op+": Trade repaired", map[string]interface{}{
		"tradeID": t.id, "state": t.StateString(), "entryQty": t.entryQty, "exitQty": t.exitQty,
	})
	return true
}

func (t *Trade) repairEntry(info *domain.OrderInfo) {
	if !info.Found() {
		t.createOID = ""
		if t.entryQty > 0 {
			t.entryState = domain.StateFilled
		} else {
			t.entryState = domain.StateCanceled
		}
		return
	}

	if info.CumulativeFilled > 0 {
		t.entryQty = info.CumulativeFilled
		if info.AvgPrice > 0 {
			t.entryPrice = info.AvgPrice
		}
		t.dirty = true
	}

	switch {
	case info.FullyFilled || (t.orderQty > 0 && t.entryQty >= t.orderQty):
		t.entryState = domain.StateFilled
		t.createOID = ""
	case info.Status == domain.OrderStatusOpened && t.entryQty > 0:
		t.entryState = domain.StatePartiallyFilled
	case info.Status == domain.OrderStatusOpened:
		t.entryState = domain.StateOpened
	case t.entryQty > 0:
		t.entryState = domain.StateFilled
		t.createOID = ""
	default:
		t.entryState = domain.StateCanceled
		t.createOID = ""
	}
}

func (t *Trade) repairExit(info *domain.OrderInfo, m *domain.Market, stop bool) {
	if !info.Found() {
		if stop {
			t.stopOID, t.stopRefOID, t.stopOrderQty = "", "", 0
		} else {
			t.limitOID, t.limitRefOID, t.limitOrderQty = "", "", 0
		}
		return
	}

	missing := info.CumulativeFilled - t.exitFilledBy(info.ID)
	if missing > 0 {
		price := info.AvgPrice
		if price <= 0 {
			price = info.Price
		}
		h := &orderHandler{t: t, m: m}
		h.exitTraded(&signal.OrderTraded{
			Header:    signal.Header{MarketID: m.MarketID, RefOrderID: info.RefID},
			OrderID:   info.ID,
			Timestamp: info.Timestamp,
			ExecPrice: price,
			Filled:    missing,
		}, stop)
	}
}
