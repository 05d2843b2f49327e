package trade

import "cryptoPaperTrader/internal/domain"

// Pricing computes execution prices and the funds an entry locks, per trade kind.
type Pricing interface {
	// EntryPrice is the price an entry in dir executes at on m.
	EntryPrice(m *domain.Market, dir domain.Direction) float64
	// ExitPrice is the price an exit of a dir trade executes at on m.
	ExitPrice(m *domain.Market, dir domain.Direction) float64
	// RequiredFunds is the amount of account currency locked by an entry of quantity at price.
	RequiredFunds(m *domain.Market, quantity, price float64) float64
}

type bookPricing struct{}

func (bookPricing) EntryPrice(m *domain.Market, dir domain.Direction) float64 {
	return m.OpenExecPrice(dir)
}

func (bookPricing) ExitPrice(m *domain.Market, dir domain.Direction) float64 {
	return m.CloseExecPrice(dir)
}

// MarginPricing locks the leveraged margin of the position.
type MarginPricing struct{ bookPricing }

func (MarginPricing) RequiredFunds(m *domain.Market, quantity, price float64) float64 {
	return m.MarginCost(quantity, price)
}

// SpotPricing locks the full notional plus the taker fee.
type SpotPricing struct{ bookPricing }

func (SpotPricing) RequiredFunds(m *domain.Market, quantity, price float64) float64 {
	return m.EffectiveCost(quantity, price) * (1.0 + m.TakerFee)
}

// Kind is the capability set of a trade type. Every trade shares the same state
// machine; the kind only decides how orders are flagged and how exits are carried.
type Kind struct {
	Type domain.TradeType

	// MarginTrade flags every order of the trade as a margin order.
	MarginTrade bool
	// ReduceOnlyExits flags exit orders reduce-only.
	ReduceOnlyExits bool
	// BindPosition sets the known position id on exit orders, for hedged positions.
	BindPosition bool
	// PositionProtection carries stop-loss and take-profit on the position itself and
	// closes through the position; the exit is tracked from position signals.
	PositionProtection bool
	// ShortAllowed reports whether the kind can open short entries.
	ShortAllowed bool
	// SingleExitOrder allows only one live exit order, the quantity being locked by it.
	SingleExitOrder bool

	Pricing Pricing
}

// SpotKind buys an asset and sells it back.
func SpotKind() Kind {
	return Kind{Type: domain.TradeSpot, SingleExitOrder: true, Pricing: SpotPricing{}}
}

// MarginKind holds an individual hedged margin position.
func MarginKind() Kind {
	return Kind{
		Type:            domain.TradeMargin,
		MarginTrade:     true,
		ReduceOnlyExits: true,
		BindPosition:    true,
		ShortAllowed:    true,
		Pricing:         MarginPricing{},
	}
}

// IndMarginKind shares one net position per market.
func IndMarginKind() Kind {
	return Kind{
		Type:            domain.TradeIndMargin,
		MarginTrade:     true,
		ReduceOnlyExits: true,
		ShortAllowed:    true,
		Pricing:         MarginPricing{},
	}
}

// PositionKind carries its protections on a broker position.
func PositionKind() Kind {
	return Kind{
		Type:               domain.TradePosition,
		MarginTrade:        true,
		ReduceOnlyExits:    true,
		BindPosition:       true,
		PositionProtection: true,
		ShortAllowed:       true,
		Pricing:            MarginPricing{},
	}
}

// KindFor returns the capability set of a trade type.
func KindFor(t domain.TradeType) Kind {
	switch t {
	case domain.TradeMargin:
		return MarginKind()
	case domain.TradeIndMargin:
		return IndMarginKind()
	case domain.TradePosition:
		return PositionKind()
	default:
		return SpotKind()
	}
}
