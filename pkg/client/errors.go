package client

import (
	"errors"
	"fmt"

	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

// Error codes reported by the proxy.
const (
	CodeMalformedMessage     = "MALFORMED_MESSAGE"
	CodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrMalformedMessage     = &Error{Code: CodeMalformedMessage, Message: "malformed message"}
	ErrTransportUnavailable = &Error{Code: CodeTransportUnavailable, Message: "transport unavailable"}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

// Error is a structured failure of one proxy call.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// transportError classifies a failed round trip.
func transportError(op wire.Opcode, err error) error {
	if !errors.Is(err, transport.ErrUnavailable) {
		err = fmt.Errorf("%w: %v", transport.ErrUnavailable, err)
	}
	return newError(CodeTransportUnavailable, op.String(), err)
}

// exceptionError maps a remote exception code to a proxy error.
func exceptionError(op wire.Opcode, reply *wire.Reply) error {
	msg := fmt.Sprintf("%s: remote exception %d: %s", op, reply.Exception, reply.Message)
	switch reply.Exception {
	case wire.ExceptionBadParcelable:
		return newError(CodeMalformedMessage, msg, nil)
	case wire.ExceptionIllegalArgument:
		return newError(CodeInvalidArgument, msg, nil)
	default:
		// Security and UnsupportedOperation mean the call is not implemented
		// by the peer.
		return newError(CodeTransportUnavailable, msg, nil)
	}
}
