// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/chewxy/math32"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap at or above which a lower scoring box is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ScoreThreshold drops candidates scoring at or below it before suppression.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// MaxResults caps the number of kept candidates.
	MaxResults int `json:"max_results" yaml:"max_results"`
	// ClassAware restricts suppression to candidates of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// IoU computes the Intersection over Union of two boxes.
//
// The intersection is the box spanned by the larger of the two top-left
// corners and the smaller of the two bottom-right corners; when its width or
// height is not positive the boxes do not overlap. The union follows from
// inclusion-exclusion: area(a) + area(b) - intersection. Two degenerate boxes
// have a zero union and an IoU of 0.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// Example:
//
// ```go
//
//	a := Box{Y1: 0, X1: 0, Y2: 0.5, X2: 0.5}
//	b := Box{Y1: 0.25, X1: 0.25, Y2: 0.75, X2: 0.75}
//	IoU(a, b) // 0.0625 / (0.25 + 0.25 - 0.0625) = 0.142857
//
// ```
func IoU(a, b Box) float32 {
	iw := math32.Min(a.X2, b.X2) - math32.Max(a.X1, b.X1)
	ih := math32.Min(a.Y2, b.Y2) - math32.Max(a.Y1, b.Y1)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return math32.Min(inter/union, 1)
}

// NMS performs deterministic greedy Non-Maximum Suppression.
//
// Candidates scoring at or below scoreThreshold are dropped. The rest are
// visited by descending score, ties broken by ascending input index, and a
// candidate is kept only if its IoU with every box kept so far is below
// iouThreshold. Iteration stops once maxResults candidates are kept.
//
// Arguments:
//   - candidates: The proposals, in any order.
//   - iouThreshold: Suppression threshold in [0, 1].
//   - scoreThreshold: Score filter in [0, 1].
//   - maxResults: Maximum number of kept candidates.
//
// Returns:
//   - []int: Indices into candidates of the kept proposals, highest score first.
func NMS(candidates []Candidate, iouThreshold, scoreThreshold float32, maxResults int) []int {
	return ApplyNMS(candidates, &NMSConfig{
		IoUThreshold:   iouThreshold,
		ScoreThreshold: scoreThreshold,
		MaxResults:     maxResults,
	})
}

// ApplyNMS is NMS driven by a config, with optional class-aware suppression.
//
// Arguments:
//   - candidates: The proposals, in any order.
//   - config: NMS configuration.
//
// Returns:
//   - []int: Indices into candidates of the kept proposals, highest score first.
func ApplyNMS(candidates []Candidate, config *NMSConfig) []int {
	if config.MaxResults <= 0 || len(candidates) == 0 {
		return []int{}
	}

	order := make([]int, 0, len(candidates))
	for i, c := range candidates {
		// Written as a negated comparison so NaN scores are dropped too.
		if !(c.Score > config.ScoreThreshold) {
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Score > candidates[order[j]].Score
	})

	kept := make([]int, 0, min(len(order), config.MaxResults))
	for _, i := range order {
		if len(kept) == config.MaxResults {
			break
		}
		if !suppressed(candidates, kept, i, config) {
			kept = append(kept, i)
		}
	}

	return kept
}

func suppressed(candidates []Candidate, kept []int, i int, config *NMSConfig) bool {
	c := candidates[i]
	for _, k := range kept {
		if config.ClassAware && candidates[k].ClassID != c.ClassID {
			continue
		}
		if !(IoU(candidates[k].Box, c.Box) < config.IoUThreshold) {
			return true
		}
	}
	return false
}

// Select returns the candidates at the given indices, in index order.
func Select(candidates []Candidate, indices []int) []Candidate {
	out := make([]Candidate, 0, len(indices))
	for _, i := range indices {
		out = append(out, candidates[i])
	}
	return out
}
