package ports

import (
	"context"

	"cryptoPaperTrader/internal/domain"
)

// IntentKind enumerates what a strategy asks the trade layer to do.
type IntentKind int

const (
	IntentEnter IntentKind = iota
	IntentExit
	IntentModifyStopLoss
	IntentModifyTakeProfit
	IntentCancel
)

// Intent is an entry or exit request emitted by a strategy.
type Intent struct {
	Kind       IntentKind
	MarketID   string
	TradeID    int // target trade for exit and modify intents
	Direction  domain.Direction
	OrderType  domain.OrderType
	Price      float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Hard       bool
	Timeframe  float64
	Label      string
}

// TradeView is the read-only state of a market the strategy decides on.
type TradeView struct {
	Market      *domain.Market
	Timestamp   float64
	ActiveTrade int     // number of trades not yet closed
	Balance     float64 // account balance, for sizing
}

// Strategy defines the interface for intent sources.
type Strategy interface {
	// Name identifies the strategy in persisted trade dumps.
	Name() string

	// Process returns the intents for the current state of a market.
	Process(ctx context.Context, view TradeView) []Intent
}
