package domain

// Order is a working order owned by the execution engine while it is pending.
// Timestamps are in Unix seconds.
type Order struct {
	OrderID      string  `json:"id"`
	RefOrderID   string  `json:"ref-id"`
	Symbol       string  `json:"symbol"`
	PositionID   string  `json:"position-id,omitempty"`
	CreatedTime  float64 `json:"created-time"`
	TransactTime float64 `json:"transact-time"`

	Direction   Direction   `json:"direction"`
	OrderType   OrderType   `json:"type"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price"`
	StopPrice   float64     `json:"stop-price"`
	StopLoss    float64     `json:"stop-loss"`
	TakeProfit  float64     `json:"take-profit"`
	Leverage    float64     `json:"leverage"`
	TimeInForce TimeInForce `json:"time-in-force"`
	PriceType   PriceType   `json:"price-type"`

	ReduceOnly  bool `json:"reduce-only"`
	Hedging     bool `json:"hedging"`
	PostOnly    bool `json:"post-only"`
	CloseOnly   bool `json:"close-only"`
	MarginTrade bool `json:"margin-trade"`

	Executed    float64 `json:"executed"`
	FullyFilled bool    `json:"fully-filled"`
	AvgPrice    float64 `json:"avg-price"`
}

// NewOrder creates an order for a market with a long-lived leverage of 1.
func NewOrder(symbol string) *Order {
	return &Order{Symbol: symbol, Leverage: 1.0}
}

// IsMarket reports whether the order executes as a taker once triggered.
func (o *Order) IsMarket() bool {
	return o.OrderType == OrderMarket || o.OrderType == OrderStop || o.OrderType == OrderTakeProfit
}

// Clone returns a copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// OrderStatus is the lifecycle status reported by an order lookup.
type OrderStatus string

const (
	OrderStatusOpened   OrderStatus = "opened"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusDeleted  OrderStatus = "deleted"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusExpired  OrderStatus = "expired"
)

// OrderInfo is the result of an order lookup. An empty ID means the order is not known.
type OrderInfo struct {
	ID               string
	RefID            string
	Symbol           string
	Status           OrderStatus
	Direction        Direction
	OrderType        OrderType
	Timestamp        float64
	Quantity         float64
	Price            float64
	StopPrice        float64
	AvgPrice         float64
	CumulativeFilled float64
	FullyFilled      bool
	TimeInForce      TimeInForce
	PostOnly         bool
	CloseOnly        bool
	ReduceOnly       bool
}

// Found reports whether the lookup matched an order.
func (i *OrderInfo) Found() bool {
	return i != nil && i.ID != ""
}
