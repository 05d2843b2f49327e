package ports

import (
	"context"
	"encoding/json"
)

// TradeRecord is the persisted dump of one strategy trade.
type TradeRecord struct {
	Strategy string
	MarketID string
	TradeID  int
	Data     json.RawMessage
}

// TradeRepository stores strategy trade dumps.
type TradeRepository interface {
	// SaveTrades replaces every stored trade of a strategy and market with records.
	SaveTrades(ctx context.Context, strategy, marketID string, records []TradeRecord) error
	// LoadTrades returns the stored trades of a strategy and market, ordered by trade id.
	LoadTrades(ctx context.Context, strategy, marketID string) ([]TradeRecord, error)
	// ListMarkets returns the markets a strategy has stored trades for.
	ListMarkets(ctx context.Context, strategy string) ([]string, error)
}

// TraderStateRepository stores paper trader snapshots.
type TraderStateRepository interface {
	// SaveTraderState stores the snapshot of a named trader, replacing the previous one.
	SaveTraderState(ctx context.Context, name string, data json.RawMessage) error
	// LoadTraderState returns the latest snapshot of a named trader.
	// Returns nil, nil if none exists.
	LoadTraderState(ctx context.Context, name string) (json.RawMessage, error)
}
