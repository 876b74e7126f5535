package hal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const memoryLogPrefix = "hal:memory"

// MemoryOpts configures Memory. Nil or zero values use defaults.
type MemoryOpts struct {
	// ChipFeature is reported by ChipFeature. Zero reports 1.
	ChipFeature int32
	// Supported limits the accepted feature types. Empty accepts all.
	Supported []int32
	// Defaults are returned by get until a type is first set.
	Defaults map[int32][]int32
}

// Memory is a reference backend that stores the last-set values per type.
type Memory struct {
	chip      int32
	supported map[int32]bool

	mu        sync.RWMutex
	features  map[int32]Feature
	observers []ChangeFunc
}

// NewMemory creates a Memory backend. Pass nil for opts to use defaults.
func NewMemory(opts *MemoryOpts) *Memory {
	m := &Memory{chip: 1, features: make(map[int32]Feature)}
	if opts == nil {
		return m
	}
	if opts.ChipFeature != 0 {
		m.chip = opts.ChipFeature
	}
	if len(opts.Supported) > 0 {
		m.supported = make(map[int32]bool, len(opts.Supported))
		for _, t := range opts.Supported {
			m.supported[t] = true
		}
	}
	now := time.Now().UTC()
	for t, v := range opts.Defaults {
		m.features[t] = Feature{Type: t, Values: cloneValues(v), Modified: now}
	}
	return m
}

func (m *Memory) accepts(featureType int32) bool {
	return m.supported == nil || m.supported[featureType]
}

// ConfigureGet returns the stored values for featureType, or nil when the type
// was never set or is unsupported. The values hint is ignored.
func (m *Memory) ConfigureGet(_ context.Context, featureType int32, _ []int32) ([]int32, error) {
	if !m.accepts(featureType) {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.features[featureType]
	if !ok {
		return nil, nil
	}
	return cloneValues(f.Values), nil
}

// ConfigureSet stores values for featureType and notifies observers.
func (m *Memory) ConfigureSet(ctx context.Context, featureType int32, values []int32) (int32, error) {
	if !m.accepts(featureType) {
		slog.Debug(fmt.Sprintf("%s - rejecting unsupported type %d", memoryLogPrefix, featureType))
		return StatusUnsupported, nil
	}
	stored := cloneValues(values)

	m.mu.Lock()
	m.features[featureType] = Feature{Type: featureType, Values: stored, Modified: time.Now().UTC()}
	observers := append([]ChangeFunc(nil), m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(ctx, featureType, cloneValues(stored))
	}
	return StatusOK, nil
}

// ChipFeature reports the configured chip feature level.
func (m *Memory) ChipFeature(context.Context) (int32, error) {
	return m.chip, nil
}

// Features lists stored features ordered by type.
func (m *Memory) Features(context.Context) ([]Feature, error) {
	m.mu.RLock()
	out := make([]Feature, 0, len(m.features))
	for _, f := range m.features {
		out = append(out, Feature{Type: f.Type, Values: cloneValues(f.Values), Modified: f.Modified})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// OnChange registers fn to run after every successful set.
func (m *Memory) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}
