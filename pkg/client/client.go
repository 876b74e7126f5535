// Package client is the typed caller side of the Iris service. A Proxy turns
// method calls into wire transactions over a transport and serves callback
// stubs for feature-change notifications.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/iris-bridge/pkg/callbacks"
	"github.com/morezero/iris-bridge/pkg/semver"
	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

const logPrefix = "client:proxy"

// DefaultCallbackQueue is the number of pending events a callback stub buffers.
const DefaultCallbackQueue = 64

// Option configures a Proxy.
type Option func(*Proxy)

// WithDescriptor overrides the interface descriptor sent with every request.
func WithDescriptor(descriptor string) Option {
	return func(p *Proxy) { p.descriptor = descriptor }
}

// WithCallbackQueue sets how many events each callback stub buffers before
// dropping new ones.
func WithCallbackQueue(n int) Option {
	return func(p *Proxy) {
		if n > 0 {
			p.queue = n
		}
	}
}

// WithCallbackMode tells the proxy how the service keeps registrations. In
// callbacks.ModeSingle, the default, a successful register replaces every
// other registration, so the proxy stops all older stubs. In
// callbacks.ModePerCookie only the stub for the same cookie is stopped.
func WithCallbackMode(mode callbacks.Mode) Option {
	return func(p *Proxy) { p.mode = mode }
}

// Proxy issues blocking Iris calls to one service endpoint.
type Proxy struct {
	t          transport.Transport
	endpoint   string
	descriptor string
	queue      int
	mode       callbacks.Mode

	mu         sync.Mutex
	version    int32
	hasVersion bool
	hash       string
	hasHash    bool

	stubMu sync.Mutex
	stubs  map[int64]*stub
}

// New returns a proxy for the service at endpoint.
func New(t transport.Transport, endpoint string, opts ...Option) *Proxy {
	p := &Proxy{
		t:          t,
		endpoint:   endpoint,
		descriptor: wire.DescriptorIris,
		queue:      DefaultCallbackQueue,
		stubs:      make(map[int64]*stub),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Endpoint returns the service endpoint this proxy calls.
func (p *Proxy) Endpoint() string { return p.endpoint }

func (p *Proxy) call(ctx context.Context, op wire.Opcode, fields ...any) (*wire.Reply, error) {
	data, err := wire.EncodeRequest(op, p.descriptor, fields...)
	if err != nil {
		return nil, newError(CodeInvalidArgument, op.String(), err)
	}
	slog.Debug(fmt.Sprintf("%s - Calling %s on %s", logPrefix, op, p.endpoint))
	raw, err := p.t.Call(ctx, p.endpoint, data)
	if err != nil {
		return nil, transportError(op, err)
	}
	reply, err := wire.DecodeReply(op, raw)
	if err != nil {
		return nil, newError(CodeMalformedMessage, op.String(), err)
	}
	if reply.Exception != wire.ExceptionNone {
		return nil, exceptionError(op, reply)
	}
	return reply, nil
}

// ConfigureGet reads the values of a feature type. A nil result with a nil
// error means the type is unsupported.
func (p *Proxy) ConfigureGet(ctx context.Context, featureType int32, values []int32) ([]int32, error) {
	if values == nil {
		values = []int32{}
	}
	reply, err := p.call(ctx, wire.OpConfigureGet, featureType, values)
	if err != nil {
		return nil, err
	}
	return reply.Fields[0].([]int32), nil
}

// ConfigureSet writes the values of a feature type and returns the backend
// status. Zero means success.
func (p *Proxy) ConfigureSet(ctx context.Context, featureType int32, values []int32) (int32, error) {
	if values == nil {
		values = []int32{}
	}
	reply, err := p.call(ctx, wire.OpConfigureSet, featureType, values)
	if err != nil {
		return 0, err
	}
	return reply.Fields[0].(int32), nil
}

// ChipFeature returns the chip feature level reported by the service.
func (p *Proxy) ChipFeature(ctx context.Context) (int32, error) {
	reply, err := p.call(ctx, wire.OpGetChipFeature)
	if err != nil {
		return 0, err
	}
	return reply.Fields[0].(int32), nil
}

// InterfaceVersion returns the remote interface version. The first successful
// answer is cached for the life of the proxy.
func (p *Proxy) InterfaceVersion(ctx context.Context) (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasVersion {
		return p.version, nil
	}
	reply, err := p.call(ctx, wire.OpGetInterfaceVersion)
	if err != nil {
		return 0, err
	}
	p.version, p.hasVersion = reply.Fields[0].(int32), true
	return p.version, nil
}

// InterfaceHash returns the remote interface hash, cached like InterfaceVersion.
func (p *Proxy) InterfaceHash(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasHash {
		return p.hash, nil
	}
	reply, err := p.call(ctx, wire.OpGetInterfaceHash)
	if err != nil {
		return "", err
	}
	p.hash, p.hasHash = reply.Fields[0].(string), true
	return p.hash, nil
}

// RequireVersion fails unless the remote interface version satisfies
// constraint (e.g. "1", "^1", ">=1, <3").
func (p *Proxy) RequireVersion(ctx context.Context, constraint string) error {
	v, err := p.InterfaceVersion(ctx)
	if err != nil {
		return err
	}
	if err := semver.CheckInterfaceVersion(v, constraint); err != nil {
		return fmt.Errorf("%s - %s: %w", logPrefix, p.endpoint, err)
	}
	return nil
}

// RegisterCallback serves a fresh callback stub for cb and registers it with
// the service under cookie. Stubs the service no longer delivers to are
// stopped once it has accepted the new one.
func (p *Proxy) RegisterCallback(ctx context.Context, cookie int64, cb Callback) error {
	if cb == nil {
		return newError(CodeInvalidArgument, "registerCallback: nil callback", nil)
	}
	p.stubMu.Lock()
	defer p.stubMu.Unlock()

	s, err := startStub(p.t, cb, p.queue)
	if err != nil {
		return newError(CodeTransportUnavailable, "registerCallback: serve stub", err)
	}
	if _, err := p.call(ctx, wire.OpRegisterCallback, cookie, s.endpoint()); err != nil {
		s.stop()
		return err
	}
	for c, old := range p.stubs {
		if c == cookie || p.mode == callbacks.ModeSingle {
			old.stop()
			delete(p.stubs, c)
		}
	}
	p.stubs[cookie] = s
	slog.Info(fmt.Sprintf("%s - Registered callback cookie=%d at %s", logPrefix, cookie, s.endpoint()))
	return nil
}

// Close stops every callback stub. The transport is left open.
func (p *Proxy) Close() error {
	p.stubMu.Lock()
	defer p.stubMu.Unlock()
	for cookie, s := range p.stubs {
		s.stop()
		delete(p.stubs, cookie)
	}
	return nil
}
