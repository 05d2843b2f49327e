package domain

// Direction represents the side of an order or a position.
type Direction int

const (
	DirectionNone  Direction = 0
	DirectionLong  Direction = 1
	DirectionShort Direction = -1
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "none"
	}
}

// Opposite returns the inverse direction.
func (d Direction) Opposite() Direction {
	return -d
}

// OrderType is the execution model of an order.
type OrderType int

const (
	OrderMarket OrderType = iota
	OrderLimit
	OrderStop
	OrderStopLimit
	OrderTakeProfit
	OrderTakeProfitLimit
	OrderTrailingStopMarket
)

// String returns the string representation of the OrderType.
func (t OrderType) String() string {
	switch t {
	case OrderMarket:
		return "market"
	case OrderLimit:
		return "limit"
	case OrderStop:
		return "stop"
	case OrderStopLimit:
		return "stop-limit"
	case OrderTakeProfit:
		return "take-profit"
	case OrderTakeProfitLimit:
		return "take-profit-limit"
	case OrderTrailingStopMarket:
		return "trailing-stop-market"
	default:
		return "unknown"
	}
}

// IsResting reports whether an order of this type rests in the book and pays the maker fee.
func (t OrderType) IsResting() bool {
	return t == OrderLimit || t == OrderStopLimit || t == OrderTakeProfitLimit
}

// TimeInForce of an order.
type TimeInForce int

const (
	TimeInForceGTC TimeInForce = iota
	TimeInForceIOC
	TimeInForceFOK
	TimeInForceGTD
)

// PriceType tells which price an order refers to.
type PriceType int

const (
	PriceLast PriceType = iota
	PriceIndex
	PriceMark
)

// OrderResult is the outcome of an order submission or cancellation.
// Values greater than zero mean success.
type OrderResult int

const (
	OrderResultInsufficientMargin OrderResult = -3
	OrderResultInsufficientFunds  OrderResult = -2
	OrderResultInvalidArgs        OrderResult = -1
	OrderResultError              OrderResult = 0
	OrderResultOK                 OrderResult = 1
)

// OK reports whether the result is a success.
func (r OrderResult) OK() bool {
	return r > 0
}

// String returns the string representation of the OrderResult.
func (r OrderResult) String() string {
	switch r {
	case OrderResultInsufficientMargin:
		return "insufficient-margin"
	case OrderResultInsufficientFunds:
		return "insufficient-funds"
	case OrderResultInvalidArgs:
		return "invalid-args"
	case OrderResultError:
		return "error"
	case OrderResultOK:
		return "ok"
	default:
		return "unknown"
	}
}
