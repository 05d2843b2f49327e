package domain

// TradeState is the state of one side (entry or exit) of a strategy trade.
type TradeState int

const (
	StateNew TradeState = iota
	StateRejected
	StateDeleted
	StateCanceled
	StateOpened
	StatePartiallyFilled
	StateFilled
	StateError
)

// String returns the string representation of the TradeState.
func (s TradeState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRejected:
		return "rejected"
	case StateDeleted:
		return "deleted"
	case StateCanceled:
		return "canceled"
	case StateOpened:
		return "opened"
	case StatePartiallyFilled:
		return "partially-filled"
	case StateFilled:
		return "filled"
	case StateError:
		return "error"
	default:
		return "undefined"
	}
}

// TradeType is the closed set of trade kinds.
type TradeType int

const (
	TradeSpot TradeType = iota
	TradeMargin
	TradeIndMargin
	TradePosition
)

// String returns the string representation of the TradeType.
func (t TradeType) String() string {
	switch t {
	case TradeSpot:
		return "spot"
	case TradeMargin:
		return "margin"
	case TradeIndMargin:
		return "ind-margin"
	case TradePosition:
		return "position"
	default:
		return "undefined"
	}
}

// ParseTradeType converts a string to a TradeType.
func ParseTradeType(s string) (TradeType, bool) {
	switch s {
	case "spot", "asset":
		return TradeSpot, true
	case "margin":
		return TradeMargin, true
	case "ind-margin":
		return TradeIndMargin, true
	case "position":
		return TradePosition, true
	default:
		return TradeSpot, false
	}
}

// ExitReason tells why a trade has been exited. Values are persisted.
type ExitReason int

const (
	ReasonNone ExitReason = iota
	ReasonTakeProfitMarket
	ReasonTakeProfitLimit
	ReasonStopLossMarket
	ReasonStopLossLimit
	ReasonCloseMarket
	ReasonCanceledTimeout
	ReasonCanceledTargeted
	ReasonMarketTimeout
)

// String returns the string representation of the ExitReason.
func (r ExitReason) String() string {
	switch r {
	case ReasonTakeProfitMarket:
		return "take-profit-market"
	case ReasonTakeProfitLimit:
		return "take-profit-limit"
	case ReasonStopLossMarket:
		return "stop-loss-market"
	case ReasonStopLossLimit:
		return "stop-loss-limit"
	case ReasonCloseMarket:
		return "close-market"
	case ReasonCanceledTimeout:
		return "canceled-timeout"
	case ReasonCanceledTargeted:
		return "canceled-targeted"
	case ReasonMarketTimeout:
		return "market-timeout"
	default:
		return "undefined"
	}
}

// ReturnCode is the outcome of a trade operation requested by the strategy layer.
type ReturnCode int

const (
	CodeInsufficientMargin ReturnCode = -3
	CodeInsufficientFunds  ReturnCode = -2
	CodeError              ReturnCode = -1
	CodeRejected           ReturnCode = 0
	CodeAccepted           ReturnCode = 1
	CodeNothingToDo        ReturnCode = 2
)

// String returns the string representation of the ReturnCode.
func (c ReturnCode) String() string {
	switch c {
	case CodeInsufficientMargin:
		return "insufficient-margin"
	case CodeInsufficientFunds:
		return "insufficient-funds"
	case CodeError:
		return "error"
	case CodeRejected:
		return "rejected"
	case CodeAccepted:
		return "accepted"
	case CodeNothingToDo:
		return "nothing-to-do"
	default:
		return "unknown"
	}
}

// ValidProtections reports whether the stop-loss and take-profit sit on the losing and the
// winning side of price for a dir entry. Zero prices are not checked.
func ValidProtections(dir Direction, price, stopLoss, takeProfit float64) bool {
	if price <= 0 {
		return true
	}
	switch dir {
	case DirectionLong:
		return (stopLoss <= 0 || stopLoss < price) && (takeProfit <= 0 || takeProfit > price)
	case DirectionShort:
		return (stopLoss <= 0 || stopLoss > price) && (takeProfit <= 0 || takeProfit < price)
	}
	return false
}
