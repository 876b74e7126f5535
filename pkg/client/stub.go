package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

const stubLogPrefix = "client:stub"

// Callback receives feature-change notifications.
type Callback interface {
	OnFeatureChanged(featureType int32, values []int32)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(featureType int32, values []int32)

func (f CallbackFunc) OnFeatureChanged(featureType int32, values []int32) { f(featureType, values) }

type event struct {
	featureType int32
	values      []int32
}

// stub answers the callback interface on its own endpoint. FeatureChanged is
// acknowledged at once and handed to a worker, so a callback may call back
// into the service.
type stub struct {
	srv  transport.Server
	cb   Callback
	mu   sync.Mutex
	done bool
	ch   chan event
}

func startStub(t transport.Transport, cb Callback, queue int) (*stub, error) {
	s := &stub{cb: cb, ch: make(chan event, queue)}
	srv, err := t.Serve(t.NewEndpoint(), s.handle)
	if err != nil {
		return nil, err
	}
	s.srv = srv
	go s.run()
	return s, nil
}

func (s *stub) endpoint() string { return s.srv.Endpoint() }

func (s *stub) run() {
	for ev := range s.ch {
		s.cb.OnFeatureChanged(ev.featureType, ev.values)
	}
}

func (s *stub) handle(_ context.Context, data []byte) ([]byte, error) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		return wire.EncodeException(wire.ExceptionBadParcelable, err.Error()), nil
	}
	if req.Descriptor != wire.DescriptorIrisCallback {
		return wire.EncodeException(wire.ExceptionSecurity,
			fmt.Sprintf("descriptor %q does not match %q", req.Descriptor, wire.DescriptorIrisCallback)), nil
	}
	switch req.Opcode {
	case wire.OpFeatureChanged:
		s.enqueue(event{featureType: req.Int32At(0), values: req.Int32SliceAt(1)})
		return wire.EncodeReply(wire.OpFeatureChanged)
	case wire.OpGetInterfaceVersion:
		return wire.EncodeReply(req.Opcode, wire.InterfaceVersion)
	case wire.OpGetInterfaceHash:
		return wire.EncodeReply(req.Opcode, wire.InterfaceHash)
	default:
		return wire.EncodeException(wire.ExceptionUnsupportedOperation,
			fmt.Sprintf("unknown transaction %d", uint32(req.Opcode))), nil
	}
}

func (s *stub) enqueue(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- ev:
	default:
		slog.Warn(fmt.Sprintf("%s - queue full on %s, dropping type=%d", stubLogPrefix, s.endpoint(), ev.featureType))
	}
}

// stop unserves the endpoint and lets the worker drain queued events.
func (s *stub) stop() {
	if err := s.srv.Stop(); err != nil {
		slog.Warn(fmt.Sprintf("%s - stop %s: %v", stubLogPrefix, s.endpoint(), err))
	}
	s.mu.Lock()
	if !s.done {
		s.done = true
		close(s.ch)
	}
	s.mu.Unlock()
}
