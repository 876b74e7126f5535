// Package events defines the feature change broadcast and its publishers.
package events

// FeatureChangedEvent mirrors a FeatureChanged callback for observers that
// are not registered callback endpoints.
type FeatureChangedEvent struct {
	Instance  string  `json:"instance"`
	Type      int32   `json:"type"`
	Values    []int32 `json:"values"`
	Delivered int     `json:"delivered"`
	Timestamp string  `json:"timestamp"`
}
