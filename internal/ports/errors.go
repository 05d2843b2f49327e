package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange and execution errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrMarketNotFound       = errors.New("market not found")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrInsufficientMargin   = errors.New("insufficient free margin for operation")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPositionNotFound     = errors.New("position not found")

	// Trade errors
	ErrInvalidTrade  = errors.New("invalid trade parameters")
	ErrInvalidStatus = errors.New("invalid trade status for operation")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDecodeFailed = errors.New("stored record could not be decoded")
)
