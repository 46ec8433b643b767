// Package xerrors defines the error taxonomy shared by the balance ledger,
// order store, and matching engine so callers can branch on Code rather than
// string-matching messages.
package xerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure from §7 of the trading core design.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeAuth               Code = "AUTH_ERROR"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientLocked  Code = "INSUFFICIENT_LOCKED"
	CodePostOnlyWouldCross  Code = "POST_ONLY_WOULD_CROSS"
	CodeFillOrKillUnfillable Code = "FILL_OR_KILL_UNFILLABLE"
	CodeSelfTradePrevented  Code = "SELF_TRADE_PREVENTED"
	CodeRiskDenied          Code = "RISK_DENIED"
	CodeMarketHalted        Code = "MARKET_HALTED"
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeTransientFault      Code = "TRANSIENT_FAULT"
	CodeEngineHalt          Code = "ENGINE_HALT"
	CodeOrderAlreadyTerminal Code = "ORDER_ALREADY_TERMINAL"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// E is a typed, wrappable error carrying a Code plus a human-readable message.
type E struct {
	Code    Code
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// New builds an *E with no wrapped cause.
func New(code Code, message string) *E {
	return &E{Code: code, Message: message}
}

// Newf builds an *E with a formatted message.
func Newf(code Code, format string, args ...interface{}) *E {
	return &E{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Code to an existing error.
func Wrap(code Code, message string, err error) *E {
	return &E{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an *E.
// Returns CodeInternal if err does not carry a known code.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
