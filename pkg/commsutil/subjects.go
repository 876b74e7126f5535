package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectPrefix        = "iris"
	SubjectFeatureChange = "iris.feature.changed"
	DefaultInstance      = "default"
)

// BuildServiceSubject builds the request subject of an Iris service instance,
// e.g. "iris.default.v1".
func BuildServiceSubject(instance string, version int32) string {
	if instance == "" {
		instance = DefaultInstance
	}
	safe := strings.ReplaceAll(instance, ".", "_")
	return fmt.Sprintf("%s.%s.v%d", SubjectPrefix, safe, version)
}

// BuildFeatureChangeSubject builds the granular broadcast subject for one feature type.
func BuildFeatureChangeSubject(instance string, featureType int32) string {
	if instance == "" {
		instance = DefaultInstance
	}
	safe := strings.ReplaceAll(instance, ".", "_")
	return fmt.Sprintf("%s.%s.%d", SubjectFeatureChange, safe, featureType)
}
