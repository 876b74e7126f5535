// Package transport delivers encoded transaction messages between clients,
// the Iris service and callback endpoints.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the endpoint could not be reached or the call was
	// cut short by a disconnect, a closed connection or a timeout.
	ErrUnavailable = errors.New("transport unavailable")
	// ErrEndpointGone means nothing is listening at the endpoint any more.
	ErrEndpointGone = fmt.Errorf("%w: endpoint gone", ErrUnavailable)
)

// Handler serves one inbound message and returns the reply bytes.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// Server is a live inbound endpoint.
type Server interface {
	Endpoint() string
	Stop() error
}

// Transport is an ordered, connection-oriented message channel with
// request/reply calls and receiver-side dispatch.
type Transport interface {
	// Call sends data to endpoint and blocks until a reply arrives or the
	// transport fails.
	Call(ctx context.Context, endpoint string, data []byte) ([]byte, error)
	// Serve dispatches messages addressed to endpoint to h.
	Serve(endpoint string, h Handler) (Server, error)
	// NewEndpoint returns a fresh, unique endpoint address.
	NewEndpoint() string
	Close() error
}

// Sender adapts a Transport for one-way delivery. The reply is discarded.
type Sender struct {
	T Transport
}

// Send delivers data to endpoint and waits only for the transport receipt.
func (s Sender) Send(ctx context.Context, endpoint string, data []byte) error {
	_, err := s.T.Call(ctx, endpoint, data)
	return err
}
