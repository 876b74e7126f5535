// Package dispatcher routes decoded Iris transactions to a hardware backend
// and the callback registry.
package dispatcher

import (
	"fmt"

	"github.com/morezero/iris-bridge/pkg/wire"
)

// Identity is the interface metadata a service answers with and checks every
// request's descriptor against.
type Identity struct {
	Descriptor string
	Version    int32
	Hash       string
}

// IrisIdentity is the identity of the Iris service interface.
var IrisIdentity = Identity{
	Descriptor: wire.DescriptorIris,
	Version:    wire.InterfaceVersion,
	Hash:       wire.InterfaceHash,
}

// Exception is a protocol-level failure encoded in place of a reply.
type Exception struct {
	Code    int32
	Message string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("exception %d: %s", e.Code, e.Message)
}

func (e *Exception) encode() []byte {
	return wire.EncodeException(e.Code, e.Message)
}

func exceptionf(code int32, format string, args ...any) *Exception {
	return &Exception{Code: code, Message: fmt.Sprintf(format, args...)}
}
