package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"
)

const commsLogPrefix = "transport:comms"

// DefaultCallTimeout bounds a call whose context has no deadline.
const DefaultCallTimeout = 5 * time.Second

// CommsOpts configures Comms. Nil or zero values use defaults.
type CommsOpts struct {
	CallTimeout time.Duration
}

// Comms is a Transport over a COMMS (NATS) connection. Endpoints are subjects.
// The connection is owned by the caller; Close only stops served endpoints.
type Comms struct {
	nc      *comms.Conn
	timeout time.Duration

	mu      sync.Mutex
	servers map[*commsServer]struct{}
}

// NewComms wraps nc. Pass nil for opts to use defaults.
func NewComms(nc *comms.Conn, opts *CommsOpts) *Comms {
	timeout := DefaultCallTimeout
	if opts != nil && opts.CallTimeout > 0 {
		timeout = opts.CallTimeout
	}
	return &Comms{nc: nc, timeout: timeout, servers: make(map[*commsServer]struct{})}
}

// Call performs a request/reply round trip on endpoint.
func (c *Comms) Call(ctx context.Context, endpoint string, data []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg, err := c.nc.RequestWithContext(ctx, endpoint, data)
	if err != nil {
		return nil, mapCommsError(endpoint, err)
	}
	return msg.Data, nil
}

func mapCommsError(endpoint string, err error) error {
	if errors.Is(err, comms.ErrNoResponders) {
		return fmt.Errorf("%w: no responders on %s", ErrEndpointGone, endpoint)
	}
	// Timeouts, cancellation and closed or draining connections.
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
}

// Serve subscribes to endpoint. COMMS delivers one subscription's messages
// sequentially, so a handler never runs concurrently with itself.
func (c *Comms) Serve(endpoint string, h Handler) (Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.nc.Subscribe(endpoint, func(msg *comms.Msg) {
		reply, err := h(ctx, msg.Data)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - handler on %s failed: %v", commsLogPrefix, endpoint, err))
			return
		}
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			slog.Warn(fmt.Sprintf("%s - respond on %s failed: %v", commsLogPrefix, endpoint, err))
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, endpoint, err)
	}
	// Make the interest visible to other connections before returning.
	if err := c.nc.Flush(); err != nil {
		slog.Warn(fmt.Sprintf("%s - flush after subscribe to %s failed: %v", commsLogPrefix, endpoint, err))
	}
	s := &commsServer{owner: c, endpoint: endpoint, sub: sub, cancel: cancel}
	c.mu.Lock()
	c.servers[s] = struct{}{}
	c.mu.Unlock()
	slog.Info(fmt.Sprintf("%s - Serving %s", commsLogPrefix, endpoint))
	return s, nil
}

// NewEndpoint returns a unique inbox subject.
func (c *Comms) NewEndpoint() string {
	return comms.NewInbox()
}

// Close stops every endpoint served through c.
func (c *Comms) Close() error {
	c.mu.Lock()
	servers := make([]*commsServer, 0, len(c.servers))
	for s := range c.servers {
		servers = append(servers, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range servers {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type commsServer struct {
	owner    *Comms
	endpoint string
	sub      *comms.Subscription
	cancel   context.CancelFunc
	once     sync.Once
	err      error
}

func (s *commsServer) Endpoint() string { return s.endpoint }

func (s *commsServer) Stop() error {
	s.once.Do(func() {
		s.cancel()
		s.owner.mu.Lock()
		delete(s.owner.servers, s)
		s.owner.mu.Unlock()
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) && !errors.Is(err, comms.ErrBadSubscription) {
			s.err = fmt.Errorf("%s - unsubscribe %s: %w", commsLogPrefix, s.endpoint, err)
		}
	})
	return s.err
}
