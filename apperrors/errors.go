package apperrors

import "errors"

// Error taxonomy for the price cache and alert evaluation engine.
// Callers branch on these with errors.Is; wrapped variants carry the
// per-call context (symbol, alert id) via fmt.Errorf("...: %w", err).
var (
	// ErrInvalidSymbol is returned when a symbol fails format validation
	// (uppercase ticker, 1-5 letters). Never retried.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrTooManySymbols is returned when a batch lookup exceeds the
	// configured symbol limit. Rejected before any fetch is attempted.
	ErrTooManySymbols = errors.New("too many symbols")

	// ErrRateLimited is returned when the quote-fetch budget for the
	// current window is exhausted. Recoverable: callers may serve a
	// stale cache entry or skip the symbol for this cycle.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamTimeout is returned when the quote provider does not
	// answer within the per-call timeout.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrSymbolNotFound is returned when the quote provider has no data
	// for a well-formed symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUpstreamError covers any other transport or decode failure
	// talking to the quote provider.
	ErrUpstreamError = errors.New("upstream error")

	// ErrPersistence wraps database failures during trigger recording
	// and cache upserts.
	ErrPersistence = errors.New("persistence error")

	// ErrGatewayMisconfigured means the push gateway cannot be reached
	// at all (missing key or endpoint). Fatal at startup, not per-event.
	ErrGatewayMisconfigured = errors.New("push gateway misconfigured")
)
