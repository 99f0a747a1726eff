package jupiter

import (
	"errors"
	"fmt"
)

// Error classes for aggregator failures. Wrapped by *APIError so callers can
// use errors.Is while still getting a user-facing message and suggestions.
var (
	// ErrNoRoute means the aggregator cannot route the pair/amount.
	ErrNoRoute = errors.New("jupiter: no route")
	// ErrInvalidQuote means the aggregator response was structurally malformed.
	ErrInvalidQuote = errors.New("jupiter: invalid quote")
	// ErrUpstream covers transport failures and 5xx responses.
	ErrUpstream = errors.New("jupiter: upstream error")
)

// APIError carries the error class plus remediation guidance for the caller.
type APIError struct {
	Class       error
	Message     string
	Suggestions []string
	Status      int
	cause       error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Class }

func noRouteError(detail string) *APIError {
	return &APIError{
		Class:   ErrNoRoute,
		Message: "no swap route available: the aggregator could not find a trading route for this pair at the specified amount",
		Suggestions: []string{
			"Increase the swap amount (0.001 SOL or more is recommended for reliable quotes)",
			"Check that both assets are actively traded",
			"Try a different asset pair",
			"Reduce slippage tolerance if it is very low",
		},
		Status: 400,
		cause:  errors.New(detail),
	}
}

func amountTooSmallError(detail string) *APIError {
	return &APIError{
		Class:   ErrNoRoute,
		Message: "amount too small for slippage calculation: increase the amount",
		Suggestions: []string{
			"Use at least 0.001 SOL (1,000,000 lamports)",
			"Reduce slippage tolerance (try 100-500 bps)",
			"Try a larger amount for better liquidity",
		},
		Status: 400,
		cause:  errors.New(detail),
	}
}

func invalidQuoteError(detail string, cause error) *APIError {
	wrapped := errors.New(detail)
	if cause != nil {
		wrapped = fmt.Errorf("%s: %w", detail, cause)
	}
	return &APIError{
		Class:   ErrInvalidQuote,
		Message: "quote unavailable: unable to get a valid price quote for this swap",
		Suggestions: []string{
			"Increase the swap amount",
			"Verify the asset addresses are correct",
			"Check asset availability on the aggregator",
		},
		Status: 400,
		cause:  wrapped,
	}
}

func upstreamError(cause error) *APIError {
	return &APIError{
		Class:   ErrUpstream,
		Message: "aggregator unavailable: the quote service did not return a usable response",
		Suggestions: []string{
			"Try again shortly",
			"Check network connectivity",
		},
		Status: 502,
		cause:  cause,
	}
}
