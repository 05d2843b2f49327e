package domain

// Asset is a spot holding. Price is the average acquisition price in Quote.
type Asset struct {
	Symbol string  `json:"symbol"`
	Quote  string  `json:"quote"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
	Price  float64 `json:"price"`

	ProfitLoss float64 `json:"profit-loss"`
}

// Quantity is the total held amount.
func (a *Asset) Quantity() float64 {
	return a.Free + a.Locked
}

// Buy adds quantity at price and updates the average acquisition price.
func (a *Asset) Buy(quantity, price float64) {
	total := a.Quantity() + quantity
	if total > 0 && price > 0 {
		a.Price = (a.Price*a.Quantity() + price*quantity) / total
	}
	a.Free += quantity
}

// Sell removes quantity from the free amount. It never goes below zero.
func (a *Asset) Sell(quantity float64) {
	a.Free -= quantity
	if a.Free < 0 {
		a.Free = 0
	}
	if a.Quantity() <= 0 {
		a.Price = 0
	}
}

// UpdateProfitLoss recomputes the unrealized profit and loss against the market bid.
func (a *Asset) UpdateProfitLoss(m *Market) {
	if a.Price <= 0 || m.Bid <= 0 {
		a.ProfitLoss = 0
		return
	}
	a.ProfitLoss = (m.Bid - a.Price) * a.Quantity()
}
