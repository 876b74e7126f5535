package hal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/iris-bridge/pkg/db"
)

const storeLogPrefix = "hal:store"

// FeatureRepository is the persistence surface Store needs. *db.Repository
// satisfies it.
type FeatureRepository interface {
	GetFeature(ctx context.Context, instance string, featureType int32) (*db.FeatureConfig, error)
	UpsertFeature(ctx context.Context, params db.UpsertFeatureParams) (*db.FeatureConfig, error)
	ListFeatures(ctx context.Context, instance string) ([]db.FeatureConfig, error)
}

// StoreOpts configures Store. Nil or zero values use defaults.
type StoreOpts struct {
	ChipFeature int32
	Supported   []int32
}

// Store is a Backend persisting the last-set values per type in Postgres,
// scoped to one service instance.
type Store struct {
	repo      FeatureRepository
	instance  string
	chip      int32
	supported map[int32]bool

	mu        sync.RWMutex
	observers []ChangeFunc
}

// NewStore creates a Store for instance. Pass nil for opts to use defaults.
func NewStore(repo FeatureRepository, instance string, opts *StoreOpts) *Store {
	s := &Store{repo: repo, instance: instance, chip: 1}
	if opts != nil {
		if opts.ChipFeature != 0 {
			s.chip = opts.ChipFeature
		}
		if len(opts.Supported) > 0 {
			s.supported = make(map[int32]bool, len(opts.Supported))
			for _, t := range opts.Supported {
				s.supported[t] = true
			}
		}
	}
	return s
}

func (s *Store) accepts(featureType int32) bool {
	return s.supported == nil || s.supported[featureType]
}

// ConfigureGet reads the stored values, or nil when none are stored.
func (s *Store) ConfigureGet(ctx context.Context, featureType int32, _ []int32) ([]int32, error) {
	if !s.accepts(featureType) {
		return nil, nil
	}
	f, err := s.repo.GetFeature(ctx, s.instance, featureType)
	if err != nil {
		return nil, fmt.Errorf("%s - get type %d: %w", storeLogPrefix, featureType, err)
	}
	if f == nil {
		return nil, nil
	}
	return cloneValues(f.Values), nil
}

// ConfigureSet persists values and notifies observers once committed.
func (s *Store) ConfigureSet(ctx context.Context, featureType int32, values []int32) (int32, error) {
	if !s.accepts(featureType) {
		return StatusUnsupported, nil
	}
	f, err := s.repo.UpsertFeature(ctx, db.UpsertFeatureParams{
		Instance: s.instance,
		Type:     featureType,
		Values:   cloneValues(values),
	})
	if err != nil {
		return 0, fmt.Errorf("%s - set type %d: %w", storeLogPrefix, featureType, err)
	}
	slog.Debug(fmt.Sprintf("%s - Stored type %d revision %d", storeLogPrefix, featureType, f.Revision))

	s.mu.RLock()
	observers := append([]ChangeFunc(nil), s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, featureType, cloneValues(f.Values))
	}
	return StatusOK, nil
}

// ChipFeature reports the configured chip feature level.
func (s *Store) ChipFeature(context.Context) (int32, error) {
	return s.chip, nil
}

// Features lists the instance's stored features ordered by type.
func (s *Store) Features(ctx context.Context) ([]Feature, error) {
	rows, err := s.repo.ListFeatures(ctx, s.instance)
	if err != nil {
		return nil, fmt.Errorf("%s - list: %w", storeLogPrefix, err)
	}
	out := make([]Feature, 0, len(rows))
	for _, r := range rows {
		out = append(out, Feature{Type: r.Type, Values: cloneValues(r.Values), Modified: r.Modified})
	}
	return out, nil
}

// OnChange registers fn to run after every successful set.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}
