// Package callbacks tracks registered feature-change callback endpoints and
// delivers FeatureChanged notifications to them.
package callbacks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/iris-bridge/pkg/transport"
	"github.com/morezero/iris-bridge/pkg/wire"
)

const logPrefix = "callbacks:registry"

// DefaultTimeout bounds delivery to one endpoint.
const DefaultTimeout = 2 * time.Second

// Mode selects how registrations share slots.
type Mode int

const (
	// ModeSingle keeps one registration per channel. Every register replaces it.
	ModeSingle Mode = iota
	// ModePerCookie keeps one registration per cookie.
	ModePerCookie
)

// ParseMode maps a config value to a Mode. Empty means ModeSingle.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "single":
		return ModeSingle, nil
	case "per-cookie":
		return ModePerCookie, nil
	default:
		return ModeSingle, fmt.Errorf("%s - unknown callback mode %q (want single or per-cookie)", logPrefix, s)
	}
}

func (m Mode) String() string {
	if m == ModePerCookie {
		return "per-cookie"
	}
	return "single"
}

// Registration is a remote callback sink. The registry never owns the
// endpoint; it only learns it is gone when delivery fails.
type Registration struct {
	Cookie   int64
	Endpoint string
}

// FeatureChange is pushed from the service to every registered endpoint.
type FeatureChange struct {
	Type   int32
	Values []int32
}

// Sender delivers one encoded message. transport.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, endpoint string, data []byte) error
}

// Options configures a Registry. Nil or zero values use defaults.
type Options struct {
	Mode    Mode
	Timeout time.Duration
}

// NotifyResult counts the outcome of one Notify call.
type NotifyResult struct {
	Delivered int
	Removed   int
	Failed    int
}

type slot struct {
	reg Registration
	gen uint64
}

// Registry holds callback registrations. Register, Snapshot and Notify are
// safe for concurrent use.
type Registry struct {
	sender  Sender
	mode    Mode
	timeout time.Duration

	mu    sync.Mutex
	slots map[int64]slot
	gen   uint64

	// deliverMu orders deliveries so each endpoint sees events in Notify order.
	deliverMu sync.Mutex
}

// New creates a Registry delivering through sender. Pass nil for opts to use
// defaults.
func New(sender Sender, opts *Options) *Registry {
	r := &Registry{sender: sender, timeout: DefaultTimeout, slots: make(map[int64]slot)}
	if opts != nil {
		r.mode = opts.Mode
		if opts.Timeout > 0 {
			r.timeout = opts.Timeout
		}
	}
	return r
}

// Mode reports the slot mode.
func (r *Registry) Mode() Mode { return r.mode }

func (r *Registry) key(cookie int64) int64 {
	if r.mode == ModePerCookie {
		return cookie
	}
	return 0
}

// Register stores reg, replacing whatever its slot held. It returns the
// replaced registration, if any.
func (r *Registry) Register(reg Registration) (*Registration, error) {
	if reg.Endpoint == "" {
		return nil, fmt.Errorf("%s - empty callback endpoint", logPrefix)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := r.key(reg.Cookie)
	prev, had := r.slots[k]
	r.gen++
	r.slots[k] = slot{reg: reg, gen: r.gen}

	if had {
		slog.Info(fmt.Sprintf("%s - Replaced callback %s (cookie %d) with %s (cookie %d)",
			logPrefix, prev.reg.Endpoint, prev.reg.Cookie, reg.Endpoint, reg.Cookie))
		return &prev.reg, nil
	}
	slog.Info(fmt.Sprintf("%s - Registered callback %s (cookie %d)", logPrefix, reg.Endpoint, reg.Cookie))
	return nil, nil
}

// Snapshot returns a copy of the live registrations ordered by cookie.
func (r *Registry) Snapshot() []Registration {
	r.mu.Lock()
	out := make([]Registration, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s.reg)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cookie < out[j].Cookie })
	return out
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Notify delivers ev once to every registration live at the time of the call.
// An endpoint reported gone is dropped. Other failures are logged and the
// registration is kept. Nothing is retried.
func (r *Registry) Notify(ctx context.Context, ev FeatureChange) NotifyResult {
	var res NotifyResult

	data, err := wire.EncodeRequest(wire.OpFeatureChanged, wire.DescriptorIrisCallback, ev.Type, ev.Values)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode feature change %d: %v", logPrefix, ev.Type, err))
		return res
	}

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	type target struct {
		key  int64
		slot slot
	}
	r.mu.Lock()
	targets := make([]target, 0, len(r.slots))
	for k, s := range r.slots {
		targets = append(targets, target{key: k, slot: s})
	}
	r.mu.Unlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].key < targets[j].key })

	for _, t := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.sender.Send(sendCtx, t.slot.reg.Endpoint, data)
		cancel()

		switch {
		case err == nil:
			res.Delivered++
		case errors.Is(err, transport.ErrEndpointGone):
			if r.removeIfCurrent(t.key, t.slot.gen) {
				res.Removed++
				slog.Info(fmt.Sprintf("%s - Dropped dead callback %s (cookie %d)", logPrefix, t.slot.reg.Endpoint, t.slot.reg.Cookie))
			}
		default:
			res.Failed++
			slog.Warn(fmt.Sprintf("%s - delivery to %s failed: %v", logPrefix, t.slot.reg.Endpoint, err))
		}
	}

	slog.Debug(fmt.Sprintf("%s - Feature %d notified: delivered=%d removed=%d failed=%d",
		logPrefix, ev.Type, res.Delivered, res.Removed, res.Failed))
	return res
}

// removeIfCurrent deletes the slot only if no newer registration replaced it
// while delivery was in flight.
func (r *Registry) removeIfCurrent(key int64, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[key]; ok && s.gen == gen {
		delete(r.slots, key)
		return true
	}
	return false
}
