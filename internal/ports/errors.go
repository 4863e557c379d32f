package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Trade Validation Errors
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidPrice         = errors.New("price must be greater than zero")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrInsufficientPosition = errors.New("insufficient position for operation")
	ErrStaleQuote           = errors.New("quote is older than the allowed age")

	// Ledger Errors
	ErrPortfolioNotFound      = errors.New("portfolio not found")
	ErrConcurrentModification = errors.New("portfolio was modified by another commit")
	ErrPersistenceFailure     = errors.New("failed to persist portfolio state")

	// Quote Source Errors
	ErrQuoteUnavailable    = errors.New("quote unavailable for instrument")
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)

// RejectionReason is a stable code the presentation layer can switch on.
type RejectionReason string

const (
	ReasonInvalidQuantity      RejectionReason = "InvalidQuantity"
	ReasonInvalidPrice         RejectionReason = "InvalidPrice"
	ReasonInsufficientFunds    RejectionReason = "InsufficientFunds"
	ReasonInsufficientPosition RejectionReason = "InsufficientPosition"
	ReasonStaleQuote           RejectionReason = "StaleQuote"
)

var reasonErrors = map[RejectionReason]error{
	ReasonInvalidQuantity:      ErrInvalidQuantity,
	ReasonInvalidPrice:         ErrInvalidPrice,
	ReasonInsufficientFunds:    ErrInsufficientFunds,
	ReasonInsufficientPosition: ErrInsufficientPosition,
	ReasonStaleQuote:           ErrStaleQuote,
}

var reasonMessages = map[RejectionReason]string{
	ReasonInvalidQuantity:      "Please enter a valid quantity",
	ReasonInvalidPrice:         "Please enter a valid price",
	ReasonInsufficientFunds:    "Insufficient balance for this trade",
	ReasonInsufficientPosition: "Insufficient position for this trade",
	ReasonStaleQuote:           "The price quote is out of date, please retry",
}

// TradeRejection is returned by validation. It unwraps to the matching sentinel error.
type TradeRejection struct {
	Reason RejectionReason
	Detail string
}

// Reject builds a TradeRejection with a formatted detail.
func Reject(reason RejectionReason, format string, args ...interface{}) *TradeRejection {
	return &TradeRejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (r *TradeRejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("trade rejected: %s", r.Reason)
	}
	return fmt.Sprintf("trade rejected: %s: %s", r.Reason, r.Detail)
}

func (r *TradeRejection) Unwrap() error {
	if err, ok := reasonErrors[r.Reason]; ok {
		return err
	}
	return ErrInvalidRequest
}

// Message returns a user-facing description of the rejection.
func (r *TradeRejection) Message() string {
	if msg, ok := reasonMessages[r.Reason]; ok {
		return msg
	}
	return "Trade rejected"
}

// AsRejection extracts a TradeRejection from err, if there is one.
func AsRejection(err error) (*TradeRejection, bool) {
	var r *TradeRejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
