package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/iris-bridge/pkg/callbacks"
	"github.com/morezero/iris-bridge/pkg/events"
	"github.com/morezero/iris-bridge/pkg/hal"
	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

const logPrefix = "dispatcher:dispatch"

// statusFailed is the set status reported when the backend errors.
const statusFailed int32 = -1

// DefaultChangeQueue bounds the feature changes waiting for delivery after a set.
const DefaultChangeQueue = 256

type handlerFunc func(ctx context.Context, req *wire.Request) ([]any, *Exception)

// Opts configures a Dispatcher. Nil or zero values use defaults.
type Opts struct {
	// Identity defaults to IrisIdentity.
	Identity *Identity
	// Instance names the service instance in broadcast events.
	Instance string
	// Publisher mirrors every feature change. Nil disables the mirror.
	Publisher events.EventPublisher
	// NotifyOnSet raises FeatureChanged after every applied set on an
	// observable backend.
	NotifyOnSet bool
	// ChangeQueue bounds pending notify-on-set deliveries. Zero means
	// DefaultChangeQueue.
	ChangeQueue int
}

type change struct {
	ctx         context.Context
	featureType int32
	values      []int32
}

// Dispatcher decodes transactions, routes them by opcode and encodes replies.
type Dispatcher struct {
	backend   hal.Backend
	callbacks *callbacks.Registry
	publisher events.EventPublisher
	identity  Identity
	instance  string
	handlers  map[wire.Opcode]handlerFunc

	changeMu sync.Mutex
	changes  chan change
	closed   bool
	done     chan struct{}
}

// NewDispatcher creates a Dispatcher. Pass nil for opts to use defaults.
func NewDispatcher(backend hal.Backend, registry *callbacks.Registry, opts *Opts) *Dispatcher {
	d := &Dispatcher{
		backend:   backend,
		callbacks: registry,
		publisher: &events.NoOpPublisher{},
		identity:  IrisIdentity,
	}
	notifyOnSet := false
	queue := DefaultChangeQueue
	if opts != nil {
		if opts.Identity != nil {
			d.identity = *opts.Identity
		}
		if opts.Publisher != nil {
			d.publisher = opts.Publisher
		}
		d.instance = opts.Instance
		notifyOnSet = opts.NotifyOnSet
		if opts.ChangeQueue > 0 {
			queue = opts.ChangeQueue
		}
	}

	d.handlers = map[wire.Opcode]handlerFunc{
		wire.OpConfigureGet:        d.handleConfigureGet,
		wire.OpConfigureSet:        d.handleConfigureSet,
		wire.OpGetChipFeature:      d.handleGetChipFeature,
		wire.OpRegisterCallback:    d.handleRegisterCallback,
		wire.OpGetInterfaceHash:    d.handleGetInterfaceHash,
		wire.OpGetInterfaceVersion: d.handleGetInterfaceVersion,
	}

	if obs, ok := backend.(hal.Observable); ok && notifyOnSet {
		d.changes = make(chan change, queue)
		d.done = make(chan struct{})
		go d.deliverChanges()
		obs.OnChange(d.enqueueChange)
	}
	return d
}

// enqueueChange hands an applied set to the delivery goroutine. The set reply
// never waits for callbacks; when the queue is full the change is dropped.
func (d *Dispatcher) enqueueChange(ctx context.Context, featureType int32, values []int32) {
	c := change{
		ctx:         context.WithoutCancel(ctx),
		featureType: featureType,
		values:      append([]int32(nil), values...),
	}
	d.changeMu.Lock()
	defer d.changeMu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.changes <- c:
	default:
		slog.Warn(fmt.Sprintf("%s - change queue full, dropping feature %d change", logPrefix, featureType))
	}
}

func (d *Dispatcher) deliverChanges() {
	defer close(d.done)
	for c := range d.changes {
		d.NotifyFeatureChanged(c.ctx, c.featureType, c.values)
	}
}

// Close stops notify-on-set delivery after the queued changes are sent. It is
// safe to call more than once.
func (d *Dispatcher) Close() {
	if d.changes == nil {
		return
	}
	d.changeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.changes)
	}
	d.changeMu.Unlock()
	<-d.done
}

// Handler adapts Dispatch to a transport handler. It never fails; protocol
// errors travel as exception replies.
func (d *Dispatcher) Handler() transport.Handler {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		return d.Dispatch(ctx, data), nil
	}
}

// Dispatch serves one encoded request and returns the encoded reply.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) []byte {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - malformed request: %v", logPrefix, err))
		return exceptionf(wire.ExceptionBadParcelable, "malformed request: %v", err).encode()
	}
	slog.Debug(fmt.Sprintf("%s - opcode=%v fields=%d", logPrefix, req.Opcode, len(req.Fields)))

	if req.Descriptor != d.identity.Descriptor {
		slog.Warn(fmt.Sprintf("%s - descriptor mismatch for %v: %q", logPrefix, req.Opcode, req.Descriptor))
		return exceptionf(wire.ExceptionSecurity, "interface descriptor mismatch: %q", req.Descriptor).encode()
	}

	h, ok := d.handlers[req.Opcode]
	if !ok {
		return exceptionf(wire.ExceptionUnsupportedOperation, "unknown transaction %d", uint32(req.Opcode)).encode()
	}

	fields, exc := h(ctx, req)
	if exc != nil {
		return exc.encode()
	}
	reply, err := wire.EncodeReply(req.Opcode, fields...)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode %v reply: %v", logPrefix, req.Opcode, err))
		return exceptionf(wire.ExceptionBadParcelable, "reply encoding failed").encode()
	}
	return reply
}

// NotifyFeatureChanged raises FeatureChanged to every registered callback and
// mirrors it to the publisher.
func (d *Dispatcher) NotifyFeatureChanged(ctx context.Context, featureType int32, values []int32) callbacks.NotifyResult {
	res := d.callbacks.Notify(ctx, callbacks.FeatureChange{Type: featureType, Values: values})

	event := &events.FeatureChangedEvent{
		Instance:  d.instance,
		Type:      featureType,
		Values:    values,
		Delivered: res.Delivered,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := d.publisher.PublishFeatureChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to mirror feature %d change: %v", logPrefix, featureType, err))
	}
	return res
}

func (d *Dispatcher) handleConfigureGet(ctx context.Context, req *wire.Request) ([]any, *Exception) {
	featureType := req.Int32At(0)
	values, err := d.backend.ConfigureGet(ctx, featureType, req.Int32SliceAt(1))
	if err != nil {
		slog.Error(fmt.Sprintf("%s - get type %d failed: %v", logPrefix, featureType, err))
		return []any{[]int32{}}, nil
	}
	return []any{values}, nil
}

func (d *Dispatcher) handleConfigureSet(ctx context.Context, req *wire.Request) ([]any, *Exception) {
	featureType := req.Int32At(0)
	status, err := d.backend.ConfigureSet(ctx, featureType, req.Int32SliceAt(1))
	if err != nil {
		slog.Error(fmt.Sprintf("%s - set type %d failed: %v", logPrefix, featureType, err))
		return []any{statusFailed}, nil
	}
	return []any{status}, nil
}

func (d *Dispatcher) handleGetChipFeature(ctx context.Context, _ *wire.Request) ([]any, *Exception) {
	chip, err := d.backend.ChipFeature(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - chip feature failed: %v", logPrefix, err))
		return []any{statusFailed}, nil
	}
	return []any{chip}, nil
}

func (d *Dispatcher) handleRegisterCallback(_ context.Context, req *wire.Request) ([]any, *Exception) {
	reg := callbacks.Registration{Cookie: req.Int64At(0), Endpoint: req.StringAt(1)}
	if reg.Endpoint == "" {
		return nil, exceptionf(wire.ExceptionIllegalArgument, "callback endpoint is empty")
	}
	if _, err := d.callbacks.Register(reg); err != nil {
		return nil, exceptionf(wire.ExceptionIllegalArgument, "%v", err)
	}
	return []any{}, nil
}

func (d *Dispatcher) handleGetInterfaceHash(context.Context, *wire.Request) ([]any, *Exception) {
	return []any{d.identity.Hash}, nil
}

func (d *Dispatcher) handleGetInterfaceVersion(context.Context, *wire.Request) ([]any, *Exception) {
	return []any{d.identity.Version}, nil
}
