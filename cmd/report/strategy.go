package main

import (
	"context"

	"cryptoPaperTrader/internal/ports"
)

// named stands in for a strategy so the stored trades of that strategy are loaded.
// It never emits intents.
type named string

func (n named) Name() string { return string(n) }

func (n named) Process(ctx context.Context, view ports.TradeView) []ports.Intent { return nil }
