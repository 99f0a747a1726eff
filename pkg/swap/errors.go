package swap

import (
	"errors"
	"strings"
)

var (
	// ErrQuoteExpired rejects confirmation of an intent whose quote aged out.
	ErrQuoteExpired = errors.New("swap: quote has expired, request a new swap")
	// ErrQuoteMismatch rejects confirmation when the client's quote snapshot
	// does not match the quote the intent was created with.
	ErrQuoteMismatch = errors.New("swap: quote snapshot does not match the original quote")
)

// ValidationError carries one or more request-level rejections.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "swap: invalid request: " + strings.Join(e.Problems, "; ")
}

// NewValidationError wraps the given problems.
func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}
