package types

import (
	"errors"
	"fmt"
)

// Error is the error type surfaced by every paychan package. All errors
// are recoverable values; nothing in the library retries or aborts the
// process on its own.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes.
const (
	ErrInvalidAmount       = "INVALID_AMOUNT"
	ErrUnderflow           = "UNDERFLOW"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrChannelNotFound     = "CHANNEL_NOT_FOUND"
	ErrAmbiguousChannel    = "AMBIGUOUS_CHANNEL"
	ErrOracleUnavailable   = "ORACLE_UNAVAILABLE"
	ErrStoreCorrupt        = "STORE_CORRUPT"
	ErrConcurrentUpdate    = "CONCURRENT_UPDATE"
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidKey          = "INVALID_KEY"
)

// IsCode reports whether err (or anything it wraps) is a paychan Error
// carrying the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
