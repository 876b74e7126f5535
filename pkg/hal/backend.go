// Package hal defines the hardware configuration backend the Iris service
// dispatches get and set calls to, with an in-memory and a Postgres
// implementation.
package hal

import (
	"context"
	"time"
)

// StatusOK is the set status for an applied configuration.
const StatusOK int32 = 0

// StatusUnsupported is the set status for a feature type the backend does
// not handle.
const StatusUnsupported int32 = 1

// Backend reads and applies feature configuration. A nil get result means the
// type is unsupported. A non-zero set status is an opaque driver error.
type Backend interface {
	ConfigureGet(ctx context.Context, featureType int32, values []int32) ([]int32, error)
	ConfigureSet(ctx context.Context, featureType int32, values []int32) (int32, error)
	ChipFeature(ctx context.Context) (int32, error)
	Features(ctx context.Context) ([]Feature, error)
}

// ChangeFunc observes applied configuration changes.
type ChangeFunc func(ctx context.Context, featureType int32, values []int32)

// Observable backends report every successful set to registered observers.
type Observable interface {
	OnChange(fn ChangeFunc)
}

// Feature is the stored value set of one feature type.
type Feature struct {
	Type     int32     `json:"type"`
	Values   []int32   `json:"values"`
	Modified time.Time `json:"modified"`
}

func cloneValues(v []int32) []int32 {
	if v == nil {
		return []int32{}
	}
	return append([]int32(nil), v...)
}
