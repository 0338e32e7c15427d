package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies session failures.
type ErrorCode string

const (
	CodeConfig         ErrorCode = "CONFIG_ERROR"
	CodeInitialization ErrorCode = "INITIALIZATION_ERROR"
	CodeDeviceUnavail  ErrorCode = "DEVICE_UNAVAILABLE"
	CodeSourceInvalid  ErrorCode = "SOURCE_INVALID"
	CodeChannelClosed  ErrorCode = "CHANNEL_CLOSED"
	CodeNegotiation    ErrorCode = "NEGOTIATION_ERROR"
	CodeInvalidState   ErrorCode = "INVALID_STATE"
)

// Error is a coded session error. Two errors match with errors.Is when their codes are equal.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

var (
	ErrConfig            = &Error{Code: CodeConfig, Message: "invalid configuration"}
	ErrInitialization    = &Error{Code: CodeInitialization, Message: "connection initialization failed"}
	ErrDeviceUnavailable = &Error{Code: CodeDeviceUnavail, Message: "capture device unavailable"}
	ErrSourceInvalid     = &Error{Code: CodeSourceInvalid, Message: "source is invalid"}
	ErrChannelClosed     = &Error{Code: CodeChannelClosed, Message: "signaling channel closed"}
	ErrNegotiation       = &Error{Code: CodeNegotiation, Message: "negotiation failed"}
	ErrInvalidState      = &Error{Code: CodeInvalidState, Message: "invalid state"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError builds a coded error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to cause.
func WrapError(code ErrorCode, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first coded error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
