package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

const localLogPrefix = "transport:local"

// Local is an in-process Transport. Messages to one endpoint are handled one
// at a time, each on a goroutine owned by the call. A call whose context ends
// while it waits for the endpoint never reaches the handler.
type Local struct {
	mu        sync.Mutex
	endpoints map[string]*localEndpoint
	closed    bool
	seq       atomic.Uint64
}

type localEndpoint struct {
	name   string
	h      Handler
	busy   chan struct{}
	gone   chan struct{}
	once   sync.Once
	owner  *Local
}

// NewLocal creates an empty in-process transport.
func NewLocal() *Local {
	return &Local{endpoints: make(map[string]*localEndpoint)}
}

// Call runs the endpoint's handler on a copy of data and waits for its reply.
func (l *Local) Call(ctx context.Context, endpoint string, data []byte) ([]byte, error) {
	l.mu.Lock()
	closed := l.closed
	ep := l.endpoints[endpoint]
	l.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("%w: transport closed", ErrUnavailable)
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: %s", ErrEndpointGone, endpoint)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	msg := append([]byte(nil), data...)
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case ep.busy <- struct{}{}:
		case <-callCtx.Done():
			return
		case <-ep.gone:
			done <- result{err: fmt.Errorf("%w: %s disconnected", ErrEndpointGone, endpoint)}
			return
		}
		defer func() { <-ep.busy }()
		// select picks at random when several cases are ready.
		if callCtx.Err() != nil {
			return
		}
		select {
		case <-ep.gone:
			done <- result{err: fmt.Errorf("%w: %s disconnected", ErrEndpointGone, endpoint)}
			return
		default:
		}
		reply, err := ep.h(callCtx, msg)
		done <- result{data: reply, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, ErrUnavailable) {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: handler at %s: %v", ErrUnavailable, endpoint, r.err)
		}
		return r.data, nil
	case <-ep.gone:
		return nil, fmt.Errorf("%w: %s disconnected during call", ErrEndpointGone, endpoint)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

// Serve registers h at endpoint. An endpoint can only be served once.
func (l *Local) Serve(endpoint string, h Handler) (Server, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%s - transport closed", localLogPrefix)
	}
	if _, ok := l.endpoints[endpoint]; ok {
		return nil, fmt.Errorf("%s - endpoint %s already served", localLogPrefix, endpoint)
	}
	ep := &localEndpoint{name: endpoint, h: h, busy: make(chan struct{}, 1), gone: make(chan struct{}), owner: l}
	l.endpoints[endpoint] = ep
	slog.Debug(fmt.Sprintf("%s - Serving %s", localLogPrefix, endpoint))
	return ep, nil
}

// NewEndpoint returns a unique local address.
func (l *Local) NewEndpoint() string {
	return fmt.Sprintf("local.inbox.%d", l.seq.Add(1))
}

// Disconnect drops endpoint as if its process died. Pending and future calls
// to it fail with ErrEndpointGone.
func (l *Local) Disconnect(endpoint string) {
	l.mu.Lock()
	ep := l.endpoints[endpoint]
	delete(l.endpoints, endpoint)
	l.mu.Unlock()
	if ep != nil {
		ep.markGone()
		slog.Debug(fmt.Sprintf("%s - Disconnected %s", localLogPrefix, endpoint))
	}
}

// Close disconnects every endpoint and rejects further calls.
func (l *Local) Close() error {
	l.mu.Lock()
	eps := l.endpoints
	l.endpoints = make(map[string]*localEndpoint)
	l.closed = true
	l.mu.Unlock()
	for _, ep := range eps {
		ep.markGone()
	}
	return nil
}

func (e *localEndpoint) Endpoint() string { return e.name }

func (e *localEndpoint) Stop() error {
	e.owner.mu.Lock()
	if e.owner.endpoints[e.name] == e {
		delete(e.owner.endpoints, e.name)
	}
	e.owner.mu.Unlock()
	e.markGone()
	return nil
}

func (e *localEndpoint) markGone() {
	e.once.Do(func() { close(e.gone) })
}
