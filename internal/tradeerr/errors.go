// Package tradeerr replaces exceptions-for-control-flow with explicit result
// variants: every error crossing a component boundary carries a Kind, a
// Retryable flag, and an optional RetryAfter hint.
package tradeerr

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindExchange   Kind = "ExchangeError"
	KindRisk       Kind = "RiskViolation"
	KindConfig     Kind = "ConfigError"
	KindInvariant  Kind = "InvariantError"
	KindValidation Kind = "ValidationError"
	KindNotFound   Kind = "NotFound"
)

// TradeError is the taxonomy-carrying error type every component-boundary
// failure in the control plane is wrapped in.
type TradeError struct {
	Kind       Kind
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Cause      error
}

func (e *TradeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TradeError) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *TradeError {
	return &TradeError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *TradeError {
	return &TradeError{Kind: kind, Message: message, Cause: cause}
}

func Exchange(message string, cause error, retryable bool, retryAfter time.Duration) *TradeError {
	return &TradeError{Kind: KindExchange, Message: message, Cause: cause, Retryable: retryable, RetryAfter: retryAfter}
}

func Risk(message string) *TradeError {
	return &TradeError{Kind: KindRisk, Message: message}
}

func Config(message string) *TradeError {
	return &TradeError{Kind: KindConfig, Message: message}
}

func Invariant(message string) *TradeError {
	return &TradeError{Kind: KindInvariant, Message: message}
}

func Validation(message string) *TradeError {
	return &TradeError{Kind: KindValidation, Message: message}
}

func NotFound(message string) *TradeError {
	return &TradeError{Kind: KindNotFound, Message: message}
}

// CloseInProgress is returned by PositionManager.Close when a second close
// races an in-flight exchange-side close for the same symbol.
var CloseInProgress = &TradeError{Kind: KindInvariant, Message: "close already in progress for symbol"}

// As is a thin re-export of errors.As for callers that only import tradeerr.
func As(err error, target **TradeError) bool {
	return errors.As(err, target)
}

func Is(err error, kind Kind) bool {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
