package domain

// Tick is one top-of-book update for a market. Timestamp is in Unix seconds.
type Tick struct {
	MarketID  string
	Timestamp float64
	Bid       float64
	Ask       float64
	Volume    float64 // optional 24h base volume, 0 if unknown
}

// Mid returns the average of bid and ask.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) * 0.5
}
