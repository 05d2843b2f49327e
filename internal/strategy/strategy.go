package strategy

import (
	"context"
	"fmt"
	"sync"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/risk"
)

// Config holds parameters for the bracket strategy.
type Config struct {
	Name      string
	Quantity  float64          // entry quantity, 0 sizes through the risk manager
	Direction domain.Direction // first entry direction
	Alternate bool             // flip the direction after every entry
	Hard      bool             // place the protections as resting orders
	Cooldown  float64          // seconds between two entries on a market
	Timeframe float64
}

// Bracket enters one market order whenever a market is flat and brackets it with the
// percent stop-loss and take-profit of the risk manager.
type Bracket struct {
	cfg    Config
	risk   *risk.RiskManager
	logger ports.Logger

	mu        sync.Mutex
	lastEntry map[string]float64
	nextDir   map[string]domain.Direction
}

// New creates a new Bracket strategy.
func New(cfg Config, rm *risk.RiskManager, logger ports.Logger) (*Bracket, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for strategy", ports.ErrConfigurationError)
	}
	if rm == nil {
		return nil, fmt.Errorf("%w: risk manager is required for strategy", ports.ErrConfigurationError)
	}
	if cfg.Direction != domain.DirectionLong && cfg.Direction != domain.DirectionShort {
		return nil, fmt.Errorf("%w: entry direction must be long or short", ports.ErrConfigurationError)
	}
	if cfg.Quantity < 0 || cfg.Cooldown < 0 {
		return nil, fmt.Errorf("%w: quantity and cooldown cannot be negative", ports.ErrConfigurationError)
	}
	if cfg.Name == "" {
		cfg.Name = "bracket"
	}
	return &Bracket{
		cfg:       cfg,
		risk:      rm,
		logger:    logger,
		lastEntry: make(map[string]float64),
		nextDir:   make(map[string]domain.Direction),
	}, nil
}

// Name identifies the strategy in persisted trade dumps.
func (s *Bracket) Name() string { return s.cfg.Name }

// Process returns an entry intent when the market is flat, priced and out of cooldown.
func (s *Bracket) Process(ctx context.Context, view ports.TradeView) []ports.Intent {
	m := view.Market
	if m == nil || view.ActiveTrade > 0 || m.Bid <= 0 || m.Ask <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastEntry[m.MarketID]; ok && view.Timestamp-last < s.cfg.Cooldown {
		return nil
	}

	dir, ok := s.nextDir[m.MarketID]
	if !ok {
		dir = s.cfg.Direction
	}
	price := m.OpenExecPrice(dir)

	qty := s.cfg.Quantity
	if qty <= 0 {
		qty = s.risk.PositionSize(ctx, view.Balance, price)
	}
	if qty <= 0 {
		s.logger.Debug(ctx, "Bracket.Process: No quantity available", map[string]interface{}{"marketID": m.MarketID})
		return nil
	}

	intent := ports.Intent{
		Kind:       ports.IntentEnter,
		MarketID:   m.MarketID,
		Direction:  dir,
		OrderType:  domain.OrderMarket,
		Quantity:   qty,
		StopLoss:   m.AdjustPrice(s.risk.StopLoss(ctx, price, dir)),
		TakeProfit: m.AdjustPrice(s.risk.TakeProfit(ctx, price, dir)),
		Hard:       s.cfg.Hard,
		Timeframe:  s.cfg.Timeframe,
		Label:      s.cfg.Name,
	}

	s.lastEntry[m.MarketID] = view.Timestamp
	if s.cfg.Alternate {
		s.nextDir[m.MarketID] = dir.Opposite()
	}

	s.logger.Info(ctx, "Bracket.Process: Entry requested", map[string]interface{}{
		"marketID":   m.MarketID,
		"direction":  dir.String(),
		"price":      m.FormatPrice(price),
		"quantity":   m.FormatQuantity(qty),
		"stopLoss":   intent.StopLoss,
		"takeProfit": intent.TakeProfit,
	})
	return []ports.Intent{intent}
}
