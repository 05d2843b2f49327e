package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.MarketFeed interface on the Binance USD-M futures API.
// It only uses public endpoints.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	leverage             float64
	makerFee             float64
	takerFee             float64
	indivisible          bool
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up

	// Paper trading terms applied to fetched markets.
	Leverage            float64
	MakerFee            float64
	TakerFee            float64
	IndivisiblePosition bool
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		futures.UseTestnet = true
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	leverage := cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		leverage:             leverage,
		makerFee:             cfg.MakerFee,
		takerFee:             cfg.TakerFee,
		indivisible:          cfg.IndivisiblePosition,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature or API-key rejected
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrMarketNotFound
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, operation+": API error", fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		// cancellation is a normal shutdown path
		return fmt.Errorf("%s canceled: %w", operation, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, operation+": Request failed", fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// FetchMarkets returns the metadata and current book prices of the requested markets.
// Every requested market must be listed by the exchange.
func (c *Client) FetchMarkets(ctx context.Context, marketIDs []string) ([]*domain.Market, error) {
	op := "FetchMarkets"

	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bySymbol := make(map[string]*futures.Symbol, len(info.Symbols))
	for i := range info.Symbols {
		bySymbol[info.Symbols[i].Symbol] = &info.Symbols[i]
	}

	markets := make([]*domain.Market, 0, len(marketIDs))
	for _, id := range marketIDs {
		s, ok := bySymbol[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", op, ports.ErrMarketNotFound, id)
		}
		m := c.translateSymbol(s)

		tickers, err := c.futuresClient.NewListBookTickersService().Symbol(id).Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(tickers) > 0 {
			m.Bid, _ = strconv.ParseFloat(tickers[0].BidPrice, 64)
			m.Ask, _ = strconv.ParseFloat(tickers[0].AskPrice, 64)
		}
		markets = append(markets, m)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"markets": marketIDs})
	return markets, nil
}

// StreamTicks streams the best bid and ask of the markets, reconnecting with exponential
// backoff until ctx is done or the reconnect attempts are exhausted.
func (c *Client) StreamTicks(ctx context.Context, marketIDs []string, handler func(tick domain.Tick), errHandler func(err error)) (<-chan struct{}, error) {
	op := "StreamTicks"
	if len(marketIDs) == 0 {
		return nil, fmt.Errorf("%s: %w: no market", op, ports.ErrInvalidRequest)
	}

	wsCtx, cancelWs := context.WithCancel(ctx)
	done := make(chan struct{})

	binanceHandler := func(event *futures.WsBookTickerEvent) {
		tick, err := translateBookTicker(event)
		if err != nil {
			c.logger.Warn(wsCtx, op+": Failed to translate book ticker event", map[string]interface{}{"error": err.Error()})
			return
		}
		handler(tick)
	}
	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	go func() {
		defer close(done)
		defer cancelWs()

		attempt := 0
		for {
			if wsCtx.Err() != nil {
				return
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection", map[string]interface{}{"markets": marketIDs, "attempt": attempt + 1})
			innerDoneCh, innerStopCh, connectErr := futures.WsCombinedBookTickerServe(marketIDs, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
					return
				}

				delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
				c.logger.Info(wsCtx, op+": Connection failed, retrying", map[string]interface{}{"attempt": attempt + 1, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established", map[string]interface{}{"markets": marketIDs})
			attempt = 0

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly, reconnecting", map[string]interface{}{"markets": marketIDs})
			case <-wsCtx.Done():
				close(innerStopCh)
				<-innerDoneCh
				c.logger.Info(wsCtx, op+": WebSocket stopped", map[string]interface{}{"markets": marketIDs})
				return
			}
		}
	}()

	return done, nil
}

// --- Translation Helpers ---

func (c *Client) translateSymbol(s *futures.Symbol) *domain.Market {
	m := &domain.Market{
		MarketID:            s.Symbol,
		Symbol:              s.Symbol,
		Base:                s.BaseAsset,
		Quote:               s.QuoteAsset,
		QuantityPrecision:   s.QuantityPrecision,
		PricePrecision:      s.PricePrecision,
		MakerFee:            c.makerFee,
		TakerFee:            c.takerFee,
		ContractSize:        1,
		LotSize:             1,
		BaseExchangeRate:    1,
		MarginFactor:        1.0 / c.leverage,
		HasMargin:           true,
		IndivisiblePosition: c.indivisible,
		IsOpen:              s.Status == "TRADING",
	}

	if f := s.LotSizeFilter(); f != nil {
		m.MinSize, _ = strconv.ParseFloat(f.MinQuantity, 64)
		m.MaxSize, _ = strconv.ParseFloat(f.MaxQuantity, 64)
		m.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
	}
	if f := s.PriceFilter(); f != nil {
		m.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
	}
	if f := s.MinNotionalFilter(); f != nil {
		m.MinNotional, _ = strconv.ParseFloat(f.Notional, 64)
	}
	return m
}

func translateBookTicker(event *futures.WsBookTickerEvent) (domain.Tick, error) {
	if event == nil {
		return domain.Tick{}, errors.New("received nil book ticker event")
	}
	bid, err := strconv.ParseFloat(event.BestBidPrice, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing bid price '%s': %w", event.BestBidPrice, err)
	}
	ask, err := strconv.ParseFloat(event.BestAskPrice, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing ask price '%s': %w", event.BestAskPrice, err)
	}

	ts := event.TransactionTime
	if ts == 0 {
		ts = event.Time
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return domain.Tick{
		MarketID:  event.Symbol,
		Timestamp: float64(ts) / 1000.0,
		Bid:       bid,
		Ask:       ask,
	}, nil
}
