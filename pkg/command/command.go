// Package command drives Iris features with "type-v1-v2" command strings and
// falls back to a second service when the first is unreachable.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/morezero/iris-bridge/pkg/client"
)

const logPrefix = "command:helper"

// DefaultCookie is the cookie feature callbacks are registered under.
const DefaultCookie int64 = -2138930830

// Command is a parsed "type-v1-v2..." string.
type Command struct {
	Type   int32
	Values []int32
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Values)+1)
	parts = append(parts, strconv.FormatInt(int64(c.Type), 10))
	for _, v := range c.Values {
		parts = append(parts, strconv.FormatInt(int64(v), 10))
	}
	return strings.Join(parts, "-")
}

// ParseCommand parses "<type>-<v1>-<v2>...". A command with no values sets an
// empty array.
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Command{}, fmt.Errorf("%s - empty command", logPrefix)
	}
	parts := strings.Split(s, "-")
	if strings.TrimSpace(parts[0]) == "" {
		return Command{}, fmt.Errorf("%s - command %q has no type", logPrefix, s)
	}
	nums := make([]int32, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return Command{}, fmt.Errorf("%s - command %q: field %d: %w", logPrefix, s, i, err)
		}
		nums[i] = int32(n)
	}
	return Command{Type: nums[0], Values: nums[1:]}, nil
}

// Service is the subset of client.Proxy the helper drives.
type Service interface {
	ConfigureGet(ctx context.Context, featureType int32, values []int32) ([]int32, error)
	ConfigureSet(ctx context.Context, featureType int32, values []int32) (int32, error)
	ChipFeature(ctx context.Context) (int32, error)
	RegisterCallback(ctx context.Context, cookie int64, cb client.Callback) error
}

// Helper issues commands against Primary, retrying once on Fallback when
// Primary is unreachable. Fallback may be nil.
type Helper struct {
	Primary  Service
	Fallback Service
}

// NewHelper returns a Helper for primary with an optional fallback.
func NewHelper(primary, fallback Service) *Helper {
	return &Helper{Primary: primary, Fallback: fallback}
}

func (h *Helper) do(name string, fn func(Service) error) error {
	err := fn(h.Primary)
	if err == nil || h.Fallback == nil || !errors.Is(err, client.ErrTransportUnavailable) {
		return err
	}
	slog.Warn(fmt.Sprintf("%s - %s: primary unavailable, using fallback: %v", logPrefix, name, err))
	return fn(h.Fallback)
}

// GetCommand returns the first value of featureType, or -1 on any failure or
// an empty reply.
func (h *Helper) GetCommand(ctx context.Context, featureType int32) int32 {
	var values []int32
	err := h.do("get", func(s Service) error {
		var err error
		values, err = s.ConfigureGet(ctx, featureType, []int32{0})
		return err
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - get type %d failed: %v", logPrefix, featureType, err))
		return -1
	}
	if len(values) == 0 {
		slog.Error(fmt.Sprintf("%s - get type %d returned no values", logPrefix, featureType))
		return -1
	}
	return values[0]
}

// SetCommand parses and applies cmd. It returns the backend status, or -1
// when cmd is invalid or the call fails.
func (h *Helper) SetCommand(ctx context.Context, cmd string) int32 {
	c, err := ParseCommand(cmd)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - set failed: %v", logPrefix, err))
		return -1
	}
	var status int32
	err = h.do("set", func(s Service) error {
		var err error
		status, err = s.ConfigureSet(ctx, c.Type, c.Values)
		return err
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - set %s failed: %v", logPrefix, c, err))
		return -1
	}
	if status < 0 {
		slog.Error(fmt.Sprintf("%s - set %s failed, status %d", logPrefix, c, status))
	}
	return status
}

// ChipFeature returns the chip feature level, or -1 on failure.
func (h *Helper) ChipFeature(ctx context.Context) int32 {
	var chip int32
	err := h.do("chip feature", func(s Service) error {
		var err error
		chip, err = s.ChipFeature(ctx)
		return err
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - chip feature failed: %v", logPrefix, err))
		return -1
	}
	return chip
}

// RegisterCallback registers cb under cookie unless the chip reports no
// feature support. Events with no values never reach cb. It reports whether
// the callback was registered.
func (h *Helper) RegisterCallback(ctx context.Context, cookie int64, cb client.Callback) (bool, error) {
	if cb == nil {
		return false, fmt.Errorf("%s - nil callback: %w", logPrefix, client.ErrInvalidArgument)
	}
	if chip := h.ChipFeature(ctx); chip <= 0 {
		slog.Warn(fmt.Sprintf("%s - chip feature %d, skipping callback registration", logPrefix, chip))
		return false, nil
	}
	filtered := client.CallbackFunc(func(featureType int32, values []int32) {
		if len(values) == 0 {
			slog.Debug(fmt.Sprintf("%s - dropping empty change for type %d", logPrefix, featureType))
			return
		}
		cb.OnFeatureChanged(featureType, values)
	})
	if err := h.do("register", func(s Service) error {
		return s.RegisterCallback(ctx, cookie, filtered)
	}); err != nil {
		return false, fmt.Errorf("%s - register cookie %d: %w", logPrefix, cookie, err)
	}
	return true, nil
}
