package app

import (
	"strings"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/paper"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/trade"
)

// ConfigFrom maps the application configuration onto the session settings. Futures
// markets with an indivisible position are managed as ind-margin trades, the others
// as position trades.
func ConfigFrom(cfg *config.Config) Config {
	kind := trade.PositionKind()
	if cfg.IndivisiblePosition {
		kind = trade.IndMarginKind()
	}
	policy := trade.CommentReject
	if cfg.CommentPolicy == "truncate" {
		policy = trade.CommentTruncate
	}

	return Config{
		Markets: cfg.Markets,
		Engine: paper.Config{
			Name:      "paper",
			Currency:  cfg.AccountCurrency,
			Balance:   cfg.AccountBalance,
			Unlimited: cfg.Unlimited,
		},
		Manager: trade.ManagerConfig{
			Kind:          kind,
			EntryTimeout:  cfg.EntryTimeout,
			Expiry:        cfg.TradeExpiry,
			ModifyTimeout: cfg.ModifyOrderTimeout,
			CommentPolicy: policy,
		},
		UpdateInterval:  cfg.UpdateInterval,
		PersistInterval: cfg.PersistInterval,
	}
}

// RiskFrom builds the risk manager limits from the application configuration.
func RiskFrom(cfg *config.Config) risk.RiskConfig {
	return risk.RiskConfig{
		MaxLeverage:         cfg.Leverage,
		MaxOpenTrades:       len(cfg.Markets),
		PositionSizePercent: 0.1,
		StopLossPercent:     cfg.StopLossPercent,
		TakeProfitPercent:   cfg.TakeProfitPercent,
	}
}

// OfflineMarket describes a market without querying the exchange, using the paper
// trading terms of the configuration. The quote asset is the account currency when
// the id ends with it.
func OfflineMarket(marketID string, cfg *config.Config) *domain.Market {
	base, quote := marketID, cfg.AccountCurrency
	if trimmed, ok := strings.CutSuffix(marketID, cfg.AccountCurrency); ok && trimmed != "" {
		base = trimmed
	}
	return &domain.Market{
		MarketID:            marketID,
		Symbol:              marketID,
		Base:                base,
		Quote:               quote,
		QuantityPrecision:   8,
		PricePrecision:      8,
		MakerFee:            cfg.MakerFee,
		TakerFee:            cfg.TakerFee,
		ContractSize:        1,
		LotSize:             1,
		BaseExchangeRate:    1,
		MarginFactor:        1.0 / cfg.Leverage,
		HasMargin:           true,
		IndivisiblePosition: cfg.IndivisiblePosition,
		IsOpen:              true,
	}
}
