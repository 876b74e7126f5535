package db

import "time"

// FeatureConfig represents a row in the iris_feature_config table.
type FeatureConfig struct {
	Instance    string    `json:"instance"`
	Type        int32     `json:"type"`
	Values      []int32   `json:"values"`
	Description *string   `json:"description,omitempty"`
	Revision    int       `json:"revision"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// UpsertFeatureParams holds parameters for UpsertFeature.
type UpsertFeatureParams struct {
	Instance    string
	Type        int32
	Values      []int32
	Description *string
}
