package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	MaxQuantity         float64 // 0 means unlimited
	MaxLeverage         float64
	MaxDrawdown         float64
	MaxDailyLoss        float64
	MaxOpenTrades       int
	MaxDailyTrades      int
	PositionSizePercent float64
	StopLossPercent     float64
	TakeProfitPercent   float64
}

// EntryRequest describes a trade entry submitted for validation.
type EntryRequest struct {
	MarketID   string
	Direction  domain.Direction
	Price      float64 // reference price, order price or current book price
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Leverage   float64
}

// RiskManager implements risk management functionality. It is safe for concurrent use.
type RiskManager struct {
	mu     sync.Mutex
	config RiskConfig
	stats  RiskStats
}

// RiskStats holds risk management statistics
type RiskStats struct {
	DailyPnL        float64
	CurrentDrawdown float64
	OpenTrades      int
	TotalExposure   float64
	DailyTrades     int
	LastResetTime   int64
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) *RiskManager {
	if config.MaxDailyTrades <= 0 {
		config.MaxDailyTrades = 100
	}
	return &RiskManager{config: config}
}

// ValidateEntry validates a new trade entry. Errors wrap ports.ErrInvalidRequest.
func (r *RiskManager) ValidateEntry(ctx context.Context, req EntryRequest, accountBalance float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %f must be positive", ports.ErrInvalidRequest, req.Quantity)
	}
	if req.Direction != domain.DirectionLong && req.Direction != domain.DirectionShort {
		return fmt.Errorf("%w: undefined direction", ports.ErrInvalidRequest)
	}
	if !domain.ValidProtections(req.Direction, req.Price, req.StopLoss, req.TakeProfit) {
		return fmt.Errorf("%w: stop-loss %f and take-profit %f are inconsistent with a %s entry at %f",
			ports.ErrInvalidRequest, req.StopLoss, req.TakeProfit, req.Direction, req.Price)
	}

	// Check trade size
	if r.config.MaxQuantity > 0 && req.Quantity > r.config.MaxQuantity {
		return fmt.Errorf("%w: quantity %f exceeds maximum allowed %f", ports.ErrInvalidRequest, req.Quantity, r.config.MaxQuantity)
	}

	// Check leverage
	if r.config.MaxLeverage > 0 && req.Leverage > r.config.MaxLeverage {
		return fmt.Errorf("%w: leverage %f exceeds maximum allowed %f", ports.ErrInvalidRequest, req.Leverage, r.config.MaxLeverage)
	}

	// Check number of open trades
	if r.config.MaxOpenTrades > 0 && r.stats.OpenTrades >= r.config.MaxOpenTrades {
		return fmt.Errorf("%w: number of open trades %d reached maximum allowed %d",
			ports.ErrInvalidRequest, r.stats.OpenTrades, r.config.MaxOpenTrades)
	}

	// Check daily loss limit
	if r.config.MaxDailyLoss > 0 && req.StopLoss > 0 && req.Price > 0 {
		potentialLoss := math.Abs(req.Price-req.StopLoss) * req.Quantity
		if r.stats.DailyPnL-potentialLoss < -r.config.MaxDailyLoss*accountBalance {
			return fmt.Errorf("%w: potential daily loss would exceed maximum allowed", ports.ErrInvalidRequest)
		}
	}

	return nil
}

// TradeOpened records a filled entry exposure.
func (r *RiskManager) TradeOpened(ctx context.Context, quantity, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.OpenTrades++
	r.stats.TotalExposure += quantity * price
	r.stats.DailyTrades++
}

// TradeClosed records the realized profit-loss of a trade leaving its exposure.
func (r *RiskManager) TradeClosed(ctx context.Context, quantity, price, pnl, accountBalance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.DailyPnL += pnl
	if pnl < 0 && accountBalance > 0 {
		r.stats.CurrentDrawdown = math.Max(r.stats.CurrentDrawdown, -r.stats.DailyPnL/accountBalance)
	}

	if r.stats.OpenTrades > 0 {
		r.stats.OpenTrades--
	}
	r.stats.TotalExposure -= quantity * price
	if r.stats.TotalExposure < 0 {
		r.stats.TotalExposure = 0
	}
}

// ResetDailyStats resets daily statistics
func (r *RiskManager) ResetDailyStats(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.DailyPnL = 0
	r.stats.DailyTrades = 0
	r.stats.LastResetTime = time.Now().Unix()
}

// PositionSize calculates the appropriate trade quantity based on risk parameters
func (r *RiskManager) PositionSize(ctx context.Context, accountBalance float64, currentPrice float64) float64 {
	if currentPrice <= 0 {
		return 0
	}
	size := accountBalance * r.config.PositionSizePercent / currentPrice
	if r.config.MaxQuantity > 0 {
		size = math.Min(size, r.config.MaxQuantity)
	}
	return size
}

// StopLoss calculates the stop loss price of an entry. 0 when no percent is configured.
func (r *RiskManager) StopLoss(ctx context.Context, entryPrice float64, dir domain.Direction) float64 {
	if r.config.StopLossPercent <= 0 {
		return 0
	}
	if dir == domain.DirectionLong {
		return entryPrice * (1 - r.config.StopLossPercent)
	}
	return entryPrice * (1 + r.config.StopLossPercent)
}

// TakeProfit calculates the take profit price of an entry. 0 when no percent is configured.
func (r *RiskManager) TakeProfit(ctx context.Context, entryPrice float64, dir domain.Direction) float64 {
	if r.config.TakeProfitPercent <= 0 {
		return 0
	}
	if dir == domain.DirectionLong {
		return entryPrice * (1 + r.config.TakeProfitPercent)
	}
	return entryPrice * (1 - r.config.TakeProfitPercent)
}

// CheckRiskLimits checks if any risk limits have been exceeded
func (r *RiskManager) CheckRiskLimits(ctx context.Context, accountBalance float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.MaxDrawdown > 0 && r.stats.CurrentDrawdown > r.config.MaxDrawdown {
		return fmt.Errorf("current drawdown %f exceeds maximum allowed %f", r.stats.CurrentDrawdown, r.config.MaxDrawdown)
	}

	if r.config.MaxDailyLoss > 0 && r.stats.DailyPnL < -r.config.MaxDailyLoss*accountBalance {
		return fmt.Errorf("daily loss %f exceeds maximum allowed %f", r.stats.DailyPnL, -r.config.MaxDailyLoss*accountBalance)
	}

	if r.stats.DailyTrades >= r.config.MaxDailyTrades {
		return fmt.Errorf("daily trades %d exceeds maximum allowed %d", r.stats.DailyTrades, r.config.MaxDailyTrades)
	}

	return nil
}

// Stats returns a copy of the current risk management statistics
func (r *RiskManager) Stats() RiskStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
