// internal/program/errors.go
package program

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric program error reported to callers.
type ErrorCode uint32

const (
	CodeUnauthorized ErrorCode = 6000 + iota
	CodeInvalidParameter
	CodeInvalidToken
	CodeCorruptOracleData
	CodeInvalidAccount
	CodeUnknownInstruction
)

// Error is a typed program failure. Every Error aborts the enclosing action.
type Error struct {
	Code ErrorCode
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var (
	ErrUnauthorized       = &Error{Code: CodeUnauthorized, Name: "Unauthorized", Msg: "caller is not the pool administrator"}
	ErrInvalidParameter   = &Error{Code: CodeInvalidParameter, Name: "InvalidParameter", Msg: "bet amount out of bounds"}
	ErrInvalidToken       = &Error{Code: CodeInvalidToken, Name: "InvalidToken", Msg: "token is not registered with the pool"}
	ErrCorruptOracleData  = &Error{Code: CodeCorruptOracleData, Name: "CorruptOracleData", Msg: "oracle account could not be parsed"}
	ErrInvalidAccount     = &Error{Code: CodeInvalidAccount, Name: "InvalidAccount", Msg: "account does not match program derived state"}
	ErrUnknownInstruction = &Error{Code: CodeUnknownInstruction, Name: "UnknownInstruction", Msg: "instruction discriminator not recognised"}
)

// CodeOf extracts the program error code from err.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

func invalidAccount(field string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidAccount, field, fmt.Sprintf(format, args...))
}
