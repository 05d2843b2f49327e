package ports

import (
	"context"

	"cryptoPaperTrader/internal/domain"
)

// MarketFeed supplies market metadata and a stream of top-of-book ticks.
type MarketFeed interface {
	// FetchMarkets returns the metadata of the requested markets.
	FetchMarkets(ctx context.Context, marketIDs []string) ([]*domain.Market, error)

	// StreamTicks delivers ticks to handler until ctx is done or the stream gives up.
	// The returned channel is closed when streaming has stopped.
	StreamTicks(ctx context.Context, marketIDs []string, handler func(tick domain.Tick), errHandler func(err error)) (done <-chan struct{}, err error)
}
