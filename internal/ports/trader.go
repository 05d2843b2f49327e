package ports

import (
	"context"

	"cryptoPaperTrader/internal/domain"
)

// Trader is the order submission interface used by strategy trades.
// The paper engine implements it; a live broker adapter would too.
type Trader interface {
	// Name identifies the trader in logs and persisted snapshots.
	Name() string

	// Timestamp returns the trader clock in Unix seconds.
	Timestamp() float64

	// Market returns a snapshot of a market, false when unknown.
	Market(marketID string) (*domain.Market, bool)

	// Account returns a snapshot of the trading account.
	Account() domain.Account

	// HasMargin reports whether the account can back quantity at price on a margin market.
	HasMargin(marketID string, quantity, price float64) bool

	// HasQuantity reports whether a spot asset holds at least quantity free.
	HasQuantity(asset string, quantity float64) bool

	// SetRefOrderID assigns a fresh client reference id to an order.
	SetRefOrderID(order *domain.Order)

	// CreateOrder submits an order. On success the order id and created time are set.
	CreateOrder(ctx context.Context, order *domain.Order) domain.OrderResult

	// CancelOrder removes a pending order.
	CancelOrder(ctx context.Context, orderID, marketID string) domain.OrderResult

	// OrderInfo looks an order up. A non-nil error means the lookup itself failed;
	// an OrderInfo with an empty ID means the order is not known.
	OrderInfo(ctx context.Context, orderID, marketID string) (*domain.OrderInfo, error)

	// ClosePosition closes a position at market, or at limitPrice when it is positive.
	ClosePosition(ctx context.Context, positionID, marketID string, limitPrice float64) bool

	// ModifyPosition replaces the stop-loss and take-profit carried by a position. Zero clears a price.
	ModifyPosition(ctx context.Context, positionID, marketID string, stopLoss, takeProfit float64) bool
}
