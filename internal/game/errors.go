package game

import (
	"errors"
	"fmt"
)

// Code categorizes a failed or rejected operation for the caller.
type Code string

const (
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeForbidden        Code = "FORBIDDEN"
	CodeIllegalState     Code = "ILLEGAL_STATE"
	CodeJudgeUnavailable Code = "JUDGE_UNAVAILABLE"
	CodeInternal         Code = "INTERNAL"
)

// Error is a categorized failure whose message is safe to show to a player
// verbatim.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errf builds a categorized error with a formatted display message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrap attaches a cause to a categorized error.
func wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the category from err, defaulting to Internal for
// anything uncategorized.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// DisplayMessage extracts the player-facing message from err. Uncategorized
// errors get a generic message so internals never leak to the client.
func DisplayMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
