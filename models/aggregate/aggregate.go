// Package aggregate - flattens model outputs into one candidate list.
package aggregate

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

// Options defines how packed outputs are read.
type Options struct {
	// MinScore drops detections scoring at or below it.
	MinScore float32 `json:"min_score" yaml:"min_score"`
	// BoxOrder is the coordinate order of the boxes tensor.
	BoxOrder postprocess.BoxOrder `json:"box_order" yaml:"box_order"`
}

// Packed converts the boxes, scores and classes outputs of a model into
// candidates, one per detection slot.
//
// Detections are read in output order. When the role map has a count output
// (num_detections), only its leading slots are read. Class ids may be int32
// or float32; floats are truncated.
//
// Arguments:
//   - outputs: The model outputs.
//   - roles: The resolved roles. scores, classes and boxes are required.
//   - opts: Score filter and box order.
//
// Returns:
//   - []postprocess.Candidate: The candidates scoring above opts.MinScore, boxes in
//     canonical [y1, x1, y2, x2] order.
//   - error: signature.ErrUnresolvedSignature if a role is missing,
//     tensors.ErrInvalidShape if the tensors disagree on the detection count or
//     the boxes tensor is not [batch, N, 4].
//
// Example:
//
// ```go
//
//	cands, err := aggregate.Packed(outputs, roles, aggregate.Options{
//	    MinScore: 0.4,
//	    BoxOrder: postprocess.BoxOrderYXYX,
//	})
//
// ```
func Packed(outputs []*tensors.Tensor, roles signature.RoleMap, opts Options) ([]postprocess.Candidate, error) {
	boxes, err := roles.Lookup(outputs, signature.RoleBoxes)
	if err != nil {
		return nil, err
	}
	scores, err := roles.Lookup(outputs, signature.RoleScores)
	if err != nil {
		return nil, err
	}
	classes, err := roles.Lookup(outputs, signature.RoleClasses)
	if err != nil {
		return nil, err
	}

	shape := boxes.Shape()
	if len(shape) != 3 || shape[2] != 4 {
		return nil, errors.Wrapf(tensors.ErrInvalidShape, "boxes %v: want [batch, N, 4]", shape)
	}
	n := boxes.Len() / 4
	if scores.Len() != n || classes.Len() != n {
		return nil, errors.Wrapf(tensors.ErrInvalidShape,
			"%d boxes, %d scores and %d classes", n, scores.Len(), classes.Len())
	}

	if count, err := roles.Lookup(outputs, signature.RoleCount); err == nil {
		if c := count.Ints(); len(c) > 0 && c[0] >= 0 {
			n = min(n, c[0])
		}
	}

	b := boxes.Float32s()
	s := scores.Float32s()
	c := classes.Ints()

	var out []postprocess.Candidate
	for i := 0; i < n; i++ {
		if !(s[i] > opts.MinScore) {
			continue
		}
		out = append(out, postprocess.Candidate{
			Score:   s[i],
			ClassID: c[i],
			Box:     postprocess.BoxFrom(b[i*4:i*4+4], opts.BoxOrder),
		})
	}

	return out, nil
}

// Merge concatenates candidate lists in argument order. Duplicates are kept;
// suppression is left to NMS.
func Merge(sources ...[]postprocess.Candidate) []postprocess.Candidate {
	n := 0
	for _, s := range sources {
		n += len(s)
	}
	out := make([]postprocess.Candidate, 0, n)
	for _, s := range sources {
		out = append(out, s...)
	}
	return out
}
