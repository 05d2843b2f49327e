package domain

import (
	"github.com/shopspring/decimal"
)

// Market describes a tradable instrument with its fee schedule and its last known prices.
// Metadata is read-only once fetched; Bid, Ask and LastUpdateTime move with the feed.
type Market struct {
	MarketID string `json:"market-id"`
	Symbol   string `json:"symbol"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`

	QuantityPrecision int     `json:"quantity-precision"`
	PricePrecision    int     `json:"price-precision"`
	MinSize           float64 `json:"min-size"`
	MaxSize           float64 `json:"max-size"`
	StepSize          float64 `json:"step-size"`
	MinNotional       float64 `json:"min-notional"`
	TickSize          float64 `json:"tick-size"`

	MakerFee        float64 `json:"maker-fee"`
	TakerFee        float64 `json:"taker-fee"`
	MakerCommission float64 `json:"maker-commission"`
	TakerCommission float64 `json:"taker-commission"`

	ContractSize     float64 `json:"contract-size"`
	LotSize          float64 `json:"lot-size"`
	ValuePerPip      float64 `json:"value-per-pip"`
	OnePipMeans      float64 `json:"one-pip-means"`
	BaseExchangeRate float64 `json:"base-exchange-rate"`
	MarginFactor     float64 `json:"margin-factor"` // 1 / leverage

	HasSpot             bool `json:"has-spot"`
	HasMargin           bool `json:"has-margin"`
	IndivisiblePosition bool `json:"indivisible-position"`
	HasPosition         bool `json:"has-position"`

	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	LastUpdateTime float64 `json:"last-update-time"`
	IsOpen         bool    `json:"is-open"`
	Vol24hBase     float64 `json:"vol24h-base"`
	Vol24hQuote    float64 `json:"vol24h-quote"`
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}

// Price returns the mid price, or the single known side.
func (m *Market) Price() float64 {
	switch {
	case m.Bid > 0 && m.Ask > 0:
		return (m.Bid + m.Ask) * 0.5
	case m.Bid > 0:
		return m.Bid
	default:
		return m.Ask
	}
}

// Leverage returns the inverse of the margin factor.
func (m *Market) Leverage() float64 {
	return 1.0 / orOne(m.MarginFactor)
}

// OpenExecPrice is the price an order opening in direction d executes at.
// Long opens on the ask, short opens on the bid.
func (m *Market) OpenExecPrice(d Direction) float64 {
	if d == DirectionLong {
		return m.Ask
	}
	if d == DirectionShort {
		return m.Bid
	}
	return m.Price()
}

// CloseExecPrice is the price a position in direction d closes at.
// Long closes on the bid, short closes on the ask.
func (m *Market) CloseExecPrice(d Direction) float64 {
	if d == DirectionLong {
		return m.Bid
	}
	if d == DirectionShort {
		return m.Ask
	}
	return m.Price()
}

// EffectiveCost is the notional of a quantity at price, in account currency.
func (m *Market) EffectiveCost(quantity, price float64) float64 {
	return quantity * orOne(m.LotSize) * orOne(m.ContractSize) * price / orOne(m.BaseExchangeRate)
}

// MarginCost is the margin required to hold a quantity at price.
func (m *Market) MarginCost(quantity, price float64) float64 {
	return m.EffectiveCost(quantity, price) * orOne(m.MarginFactor)
}

// Fee returns the fee rate and fixed commission for a taker or maker execution.
func (m *Market) Fee(taker bool) (rate, commission float64) {
	if taker {
		return m.TakerFee, m.TakerCommission
	}
	return m.MakerFee, m.MakerCommission
}

// AdjustQuantity floors a quantity to the step size and clamps it to the max size.
func (m *Market) AdjustQuantity(quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}
	q := decimal.NewFromFloat(quantity)
	if m.StepSize > 0 {
		step := decimal.NewFromFloat(m.StepSize)
		q = q.Div(step).Floor().Mul(step)
	}
	if m.QuantityPrecision > 0 {
		q = q.Truncate(int32(m.QuantityPrecision))
	}
	if m.MaxSize > 0 && q.GreaterThan(decimal.NewFromFloat(m.MaxSize)) {
		q = decimal.NewFromFloat(m.MaxSize)
	}
	f, _ := q.Float64()
	return f
}

// AdjustPrice rounds a price to the nearest tick.
func (m *Market) AdjustPrice(price float64) float64 {
	if price <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	if m.TickSize > 0 {
		tick := decimal.NewFromFloat(m.TickSize)
		p = p.Div(tick).Round(0).Mul(tick)
	}
	if m.PricePrecision > 0 {
		p = p.Round(int32(m.PricePrecision))
	}
	f, _ := p.Float64()
	return f
}

// AdjustQuote rounds an amount of quote currency to the price precision.
func (m *Market) AdjustQuote(amount float64) float64 {
	places := int32(m.PricePrecision)
	if places <= 0 {
		places = 8
	}
	f, _ := decimal.NewFromFloat(amount).Round(places).Float64()
	return f
}

// FormatQuantity renders a quantity with the market precision.
func (m *Market) FormatQuantity(quantity float64) string {
	return decimal.NewFromFloat(quantity).StringFixed(int32(m.QuantityPrecision))
}

// FormatPrice renders a price with the market precision.
func (m *Market) FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(int32(m.PricePrecision))
}

// Clone returns a copy safe to hand out of the owner's lock.
func (m *Market) Clone() *Market {
	c := *m
	return &c
}
