package domain

// Position is an open exposure held by the execution engine, one per market in
// indivisible mode or one per opening order in hedged mode.
type Position struct {
	PositionID  string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry-price"`
	Leverage    float64   `json:"leverage"`
	StopLoss    float64   `json:"stop-loss"`
	TakeProfit  float64   `json:"take-profit"`
	CreatedTime float64   `json:"created-time"`

	ProfitLoss     float64 `json:"profit-loss"`      // unrealized, quote currency
	ProfitLossRate float64 `json:"profit-loss-rate"` // unrealized, relative to cost
	RealizedPnL    float64 `json:"realized-profit-loss"`
}

// IsOpened reports whether the position holds any quantity.
func (p *Position) IsOpened() bool {
	return p.Quantity > 0
}

// CloseDirection is the order direction needed to reduce the position.
func (p *Position) CloseDirection() Direction {
	return p.Direction.Opposite()
}

// DeltaPrice is the favorable price move from entry to price.
func (p *Position) DeltaPrice(price float64) float64 {
	if p.Direction == DirectionLong {
		return price - p.EntryPrice
	}
	if p.Direction == DirectionShort {
		return p.EntryPrice - price
	}
	return 0
}

// PositionCost is the notional at entry price.
func (p *Position) PositionCost(m *Market) float64 {
	return m.EffectiveCost(p.Quantity, p.EntryPrice)
}

// MarginCost is the margin held at entry price.
func (p *Position) MarginCost(m *Market) float64 {
	return m.MarginCost(p.Quantity, p.EntryPrice)
}

// UpdateProfitLoss recomputes the unrealized profit and loss at the market close price.
func (p *Position) UpdateProfitLoss(m *Market) {
	if p.Quantity <= 0 {
		p.ProfitLoss, p.ProfitLossRate = 0, 0
		return
	}
	price := m.CloseExecPrice(p.Direction)
	if price <= 0 {
		return
	}
	p.ProfitLoss = p.DeltaPrice(price) * p.Quantity * orOne(m.LotSize) * orOne(m.ContractSize) / orOne(m.BaseExchangeRate)
	if cost := p.PositionCost(m); cost > 0 {
		p.ProfitLossRate = p.ProfitLoss / cost
	}
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
