// Package commsutil provides COMMS connection helpers for the Iris bridge:
// dialing the broker, running an in-process broker and naming subjects.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// ConnectOpts tunes the broker connection. Zero values use defaults.
type ConnectOpts struct {
	DialTimeout   time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// Connect creates a COMMS connection to the given URL. Pass nil for opts to
// use defaults.
func Connect(url, name string, opts *ConnectOpts) (*comms.Conn, error) {
	o := ConnectOpts{DialTimeout: 10 * time.Second, ReconnectWait: 2 * time.Second, MaxReconnects: 60}
	if opts != nil {
		if opts.DialTimeout > 0 {
			o.DialTimeout = opts.DialTimeout
		}
		if opts.ReconnectWait > 0 {
			o.ReconnectWait = opts.ReconnectWait
		}
		if opts.MaxReconnects != 0 {
			o.MaxReconnects = opts.MaxReconnects
		}
	}

	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, name))

	nc, err := comms.Connect(url,
		comms.Name(name),
		comms.Timeout(o.DialTimeout),
		comms.ReconnectWait(o.ReconnectWait),
		comms.MaxReconnects(o.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	// Callback liveness relies on no-responder notices, which need headers.
	if !nc.HeadersSupported() {
		nc.Close()
		return nil, fmt.Errorf("%s - COMMS server at %s does not support headers", logPrefix, url)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
