// Package signature assigns semantic roles to model output tensors.
//
// Detection models disagree on how many outputs they expose, in which order,
// and whether those outputs carry meaningful names. Resolve turns a list of
// output descriptors into a RoleMap once per model; decoding code then looks
// tensors up by role and never inspects shapes to guess what they are.
package signature

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the semantic purpose of an output tensor.
type Role string

const (
	// RoleScores holds one confidence per detection.
	RoleScores Role = "scores"
	// RoleClasses holds one class id per detection.
	RoleClasses Role = "classes"
	// RoleBoxes holds four coordinates per detection.
	RoleBoxes Role = "boxes"
	// RoleCount holds the number of valid detections. Optional.
	RoleCount Role = "count"
)

const (
	strideScores   = "stride-scores"
	strideFeatures = "stride-features"
)

// GridBase is the grid size of a stride-1 anchor-free head.
const GridBase = 13

// FeatureWidth is the per-cell regression width of an anchor-free head: 4 sides of 8 bins.
const FeatureWidth = 32

// StrideScores returns the role of the class score tensor of stride s.
func StrideScores(s int) Role {
	return Role(fmt.Sprintf("%s:%d", strideScores, s))
}

// StrideFeatures returns the role of the box regression tensor of stride s.
func StrideFeatures(s int) Role {
	return Role(fmt.Sprintf("%s:%d", strideFeatures, s))
}

// RoleMap maps a role to the index of the output tensor playing it.
//
// A RoleMap is built once per model and only read afterwards, so it is safe to
// share between goroutines.
type RoleMap map[Role]int

// Index returns the tensor index of a role.
func (m RoleMap) Index(r Role) (int, bool) {
	i, ok := m[r]
	return i, ok
}

// Roles returns the assigned roles in a stable order.
func (m RoleMap) Roles() []Role {
	out := make([]Role, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m RoleMap) String() string {
	parts := make([]string, 0, len(m))
	for _, r := range m.Roles() {
		parts = append(parts, fmt.Sprintf("%s=%d", r, m[r]))
	}
	return strings.Join(parts, " ")
}

// knownNames is the role dictionary consulted before any shape heuristic.
var knownNames = map[string]Role{
	"detection_boxes":   RoleBoxes,
	"detection_scores":  RoleScores,
	"detection_classes": RoleClasses,
	"num_detections":    RoleCount,
	"boxes":             RoleBoxes,
	"scores":            RoleScores,
	"classes":           RoleClasses,
	"labels":            RoleClasses,
}

// roleForName looks a declared name up in the role dictionary. TensorFlow
// style suffixes (":0") and prefixes ("output_", "serving_default_") are
// ignored.
func roleForName(name string) (Role, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndex(n, ":"); i > 0 {
		n = n[:i]
	}
	n = strings.TrimPrefix(n, "serving_default_")
	n = strings.TrimPrefix(n, "output_")
	r, ok := knownNames[n]
	return r, ok
}
