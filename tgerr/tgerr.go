// Package tgerr types the two error families the sender core raises
// to callers: RPC-level errors reported in an rpc_result, and
// protocol-level bad-msg-notification rejections. Naming and the
// Is/As/IsCode helper shapes are grounded on the teacher's pervasive
// use of github.com/gotd/td/tgerr (pkg/connector/telegram.go,
// pkg/gotd/telegram/auth/auth.go).
package tgerr

import (
	"errors"
	"strconv"

	"github.com/archtg/mtsender/mt"
)

// Error is a typed RPC error, built from an rpc_result's attached
// mt.RPCError by RPCMessageToError.
type Error struct {
	Code     int
	Type     string
	Argument int
}

func (e *Error) Error() string {
	return "rpc error " + strconv.Itoa(e.Code) + ": " + e.Type
}

// BadMessageError is returned when a bad_msg_notification carries a
// code outside the self-healing set {16,17,32,33} (spec.md §4.8).
type BadMessageError struct {
	Code int
}

func (e *BadMessageError) Error() string {
	return "bad msg notification: code " + strconv.Itoa(e.Code)
}

// RPCMessageToError builds a typed *Error from a decoded mt.RPCError,
// splitting Telegram's "TYPE_NAME" / "TYPE_NAME123" convention into a
// symbolic type and a trailing numeric argument.
func RPCMessageToError(e *mt.RPCError) *Error {
	typ := e.ErrorMessage
	arg := 0
	i := len(typ)
	for i > 0 && typ[i-1] >= '0' && typ[i-1] <= '9' {
		i--
	}
	if i < len(typ) {
		arg, _ = strconv.Atoi(typ[i:])
		typ = typ[:i]
	}
	return &Error{Code: int(e.ErrorCode), Type: typ, Argument: arg}
}

// Is reports whether err is an *Error whose Type matches one of types.
func Is(err error, types ...string) bool {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	for _, t := range types {
		if rpcErr.Type == t {
			return true
		}
	}
	return false
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var rpcErr *Error
	ok := errors.As(err, &rpcErr)
	return rpcErr, ok
}

// IsCode reports whether err is an *Error with the given HTTP-style
// status code.
func IsCode(err error, code int) bool {
	rpcErr, ok := As(err)
	return ok && rpcErr.Code == code
}

// IsOneOf reports whether the error's Type is one of types.
func (e *Error) IsOneOf(types ...string) bool {
	for _, t := range types {
		if e.Type == t {
			return true
		}
	}
	return false
}
