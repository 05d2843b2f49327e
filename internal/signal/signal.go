// Package signal defines the typed lifecycle notifications emitted by the execution
// layer and the fan-out used to deliver them.
package signal

import "cryptoPaperTrader/internal/domain"

// Signal is one lifecycle notification. Concrete types are the structs of this package.
type Signal interface {
	// Kind is a stable name, used on the wire.
	Kind() string
	// Market is the market id the signal relates to.
	Market() string
	// Ref is the client reference id of the originating order, if any.
	Ref() string
	// Accept calls the visitor method matching the concrete type.
	Accept(v Visitor)
}

// Visitor dispatches on the concrete signal type.
type Visitor interface {
	VisitOrderOpened(s *OrderOpened)
	VisitOrderTraded(s *OrderTraded)
	VisitOrderRejected(s *OrderRejected)
	VisitOrderCanceled(s *OrderCanceled)
	VisitOrderDeleted(s *OrderDeleted)
	VisitPositionOpened(s *PositionOpened)
	VisitPositionUpdated(s *PositionUpdated)
	VisitPositionDeleted(s *PositionDeleted)
	VisitPositionAmended(s *PositionAmended)
}

// NopVisitor ignores every signal. Embed it to implement only some methods.
type NopVisitor struct{}

func (NopVisitor) VisitOrderOpened(*OrderOpened)         {}
func (NopVisitor) VisitOrderTraded(*OrderTraded)         {}
func (NopVisitor) VisitOrderRejected(*OrderRejected)     {}
func (NopVisitor) VisitOrderCanceled(*OrderCanceled)     {}
func (NopVisitor) VisitOrderDeleted(*OrderDeleted)       {}
func (NopVisitor) VisitPositionOpened(*PositionOpened)   {}
func (NopVisitor) VisitPositionUpdated(*PositionUpdated) {}
func (NopVisitor) VisitPositionDeleted(*PositionDeleted) {}
func (NopVisitor) VisitPositionAmended(*PositionAmended) {}

// Header is shared by every signal.
type Header struct {
	MarketID   string `json:"market-id"`
	RefOrderID string `json:"ref-order-id,omitempty"`
}

func (h Header) Market() string { return h.MarketID }
func (h Header) Ref() string    { return h.RefOrderID }

// OrderOpened is emitted when an order is accepted by the engine.
type OrderOpened struct {
	Header
	OrderID     string             `json:"id"`
	OrderType   domain.OrderType   `json:"type"`
	Direction   domain.Direction   `json:"direction"`
	Timestamp   float64            `json:"timestamp"`
	Quantity    float64            `json:"quantity"`
	Price       float64            `json:"price"`
	StopPrice   float64            `json:"stop-price"`
	StopLoss    float64            `json:"stop-loss"`
	TakeProfit  float64            `json:"take-profit"`
	TimeInForce domain.TimeInForce `json:"time-in-force"`
}

// OrderTraded is emitted when an order is filled, fully or partially.
type OrderTraded struct {
	Header
	OrderID          string           `json:"id"`
	OrderType        domain.OrderType `json:"type"`
	Direction        domain.Direction `json:"direction"`
	Timestamp        float64          `json:"timestamp"`
	Quantity         float64          `json:"quantity"`
	Price            float64          `json:"price"`
	StopPrice        float64          `json:"stop-price"`
	ExecPrice        float64          `json:"exec-price"`
	AvgPrice         float64          `json:"avg-price"`
	Filled           float64          `json:"filled"`
	CumulativeFilled float64          `json:"cumulative-filled"`
	QuoteTransacted  float64          `json:"quote-transacted"`
	CommissionAmount float64          `json:"commission-amount"`
	CommissionAsset  string           `json:"commission-asset"`
	FullyFilled      bool             `json:"fully-filled"`
}

// OrderRejected is emitted when the engine refuses an order. It only carries the reference id.
type OrderRejected struct {
	Header
	Reason domain.OrderResult `json:"reason"`
}

// OrderCanceled is emitted when a pending order is removed on request.
type OrderCanceled struct {
	Header
	OrderID string `json:"id"`
}

// OrderDeleted is emitted when an order is no longer active after execution.
type OrderDeleted struct {
	Header
	OrderID string `json:"id"`
}

// PositionData is the payload of every position signal.
type PositionData struct {
	PositionID     string           `json:"id"`
	Direction      domain.Direction `json:"direction"`
	Timestamp      float64          `json:"timestamp"`
	Quantity       float64          `json:"quantity"`
	ExecPrice      float64          `json:"exec-price"`
	AvgEntryPrice  float64          `json:"avg-entry-price"`
	StopLoss       float64          `json:"stop-loss"`
	TakeProfit     float64          `json:"take-profit"`
	ProfitLoss     float64          `json:"profit-loss"`
	ProfitCurrency string           `json:"profit-currency"`
}

// PositionOpened is emitted when a position is created.
type PositionOpened struct {
	Header
	PositionData
}

// PositionUpdated is emitted when a position quantity, price or side changes.
type PositionUpdated struct {
	Header
	PositionData
}

// PositionDeleted is emitted when a position is fully closed.
type PositionDeleted struct {
	Header
	PositionData
}

// PositionAmended is emitted when the protective prices of a position change.
type PositionAmended struct {
	Header
	PositionData
}

func (*OrderOpened) Kind() string     { return "order-opened" }
func (*OrderTraded) Kind() string     { return "order-traded" }
func (*OrderRejected) Kind() string   { return "order-rejected" }
func (*OrderCanceled) Kind() string   { return "order-canceled" }
func (*OrderDeleted) Kind() string    { return "order-deleted" }
func (*PositionOpened) Kind() string  { return "position-opened" }
func (*PositionUpdated) Kind() string { return "position-updated" }
func (*PositionDeleted) Kind() string { return "position-deleted" }
func (*PositionAmended) Kind() string { return "position-amended" }

func (s *OrderOpened) Accept(v Visitor)     { v.VisitOrderOpened(s) }
func (s *OrderTraded) Accept(v Visitor)     { v.VisitOrderTraded(s) }
func (s *OrderRejected) Accept(v Visitor)   { v.VisitOrderRejected(s) }
func (s *OrderCanceled) Accept(v Visitor)   { v.VisitOrderCanceled(s) }
func (s *OrderDeleted) Accept(v Visitor)    { v.VisitOrderDeleted(s) }
func (s *PositionOpened) Accept(v Visitor)  { v.VisitPositionOpened(s) }
func (s *PositionUpdated) Accept(v Visitor) { v.VisitPositionUpdated(s) }
func (s *PositionDeleted) Accept(v Visitor) { v.VisitPositionDeleted(s) }
func (s *PositionAmended) Accept(v Visitor) { v.VisitPositionAmended(s) }

// IsOrder reports whether s concerns an order rather than a position.
func IsOrder(s Signal) bool {
	switch s.(type) {
	case *OrderOpened, *OrderTraded, *OrderRejected, *OrderCanceled, *OrderDeleted:
		return true
	}
	return false
}

// OrderID returns the order id carried by an order signal, empty otherwise.
func OrderID(s Signal) string {
	switch v := s.(type) {
	case *OrderOpened:
		return v.OrderID
	case *OrderTraded:
		return v.OrderID
	case *OrderCanceled:
		return v.OrderID
	case *OrderDeleted:
		return v.OrderID
	}
	return ""
}

// PositionID returns the position id carried by a position signal, empty otherwise.
func PositionID(s Signal) string {
	switch v := s.(type) {
	case *PositionOpened:
		return v.PositionID
	case *PositionUpdated:
		return v.PositionID
	case *PositionDeleted:
		return v.PositionID
	case *PositionAmended:
		return v.PositionID
	}
	return ""
}
