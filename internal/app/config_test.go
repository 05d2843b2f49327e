package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/trade"
)

func TestConfigFrom(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.Config
		wantType   domain.TradeType
		wantPolicy trade.CommentPolicy
	}{
		{
			name:       "indivisible position",
			cfg:        config.Config{IndivisiblePosition: true, CommentPolicy: "reject"},
			wantType:   domain.TradeIndMargin,
			wantPolicy: trade.CommentReject,
		},
		{
			name:       "position with truncated comments",
			cfg:        config.Config{CommentPolicy: "truncate"},
			wantType:   domain.TradePosition,
			wantPolicy: trade.CommentTruncate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Markets = []string{btc}
			tt.cfg.AccountCurrency = "USDT"
			tt.cfg.AccountBalance = 500
			tt.cfg.ModifyOrderTimeout = 10
			tt.cfg.PersistInterval = time.Minute

			got := ConfigFrom(&tt.cfg)
			assert.Equal(t, tt.wantType, got.Manager.Kind.Type)
			assert.Equal(t, tt.wantPolicy, got.Manager.CommentPolicy)
			assert.Equal(t, 10.0, got.Manager.ModifyTimeout)
			assert.Equal(t, []string{btc}, got.Markets)
			assert.Equal(t, 500.0, got.Engine.Balance)
			assert.Equal(t, time.Minute, got.PersistInterval)
		})
	}
}

func TestRiskFrom(t *testing.T) {
	cfg := &config.Config{Markets: []string{btc, "ETHUSDT"}, Leverage: 20, StopLossPercent: 0.01, TakeProfitPercent: 0.02}
	got := RiskFrom(cfg)
	assert.Equal(t, 2, got.MaxOpenTrades)
	assert.Equal(t, 20.0, got.MaxLeverage)
	assert.Equal(t, 0.01, got.StopLossPercent)
}

func TestOfflineMarket(t *testing.T) {
	cfg := &config.Config{AccountCurrency: "USDT", Leverage: 10, TakerFee: 0.0004, IndivisiblePosition: true}

	m := OfflineMarket(btc, cfg)
	assert.Equal(t, "BTC", m.Base)
	assert.Equal(t, "USDT", m.Quote)
	assert.InDelta(t, 0.1, m.MarginFactor, 1e-12)
	assert.Equal(t, 0.0004, m.TakerFee)
	assert.True(t, m.IndivisiblePosition)

	odd := OfflineMarket("USDT", cfg)
	assert.Equal(t, "USDT", odd.Base)
}
