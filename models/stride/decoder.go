// Package stride decodes anchor-free multi-stride detection heads.
//
// Each stride s produces a g×g grid (g = 13·s). Per cell the head emits one
// score per label and a 32 wide regression vector: 4 box sides quantized
// into 8 bins each. The bin-to-offset mapping used here is specific to the
// model family it was trained for and must not be reused for other heads
// without re-deriving it.
package stride

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

const (
	// sides is the number of box sides regressed per cell (left, top, right, bottom).
	sides = 4
	// bins is the number of quantization bins per side.
	bins = signature.FeatureWidth / sides
	// background is the class id that never yields a candidate.
	background = 0
)

// Config defines the parameters of the stride decoder.
type Config struct {
	// MinScore drops cells whose best class score is at or below it.
	MinScore float32 `json:"min_score" yaml:"min_score"`
	// ScaleBox amplifies the decoded box size.
	ScaleBox float32 `json:"scale_box" yaml:"scale_box"`
	// Strides lists the feature map strides, in decode order.
	Strides []int `json:"strides" yaml:"strides"`
	// InputSize is the square model input resolution in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`
}

// DefaultConfig returns the configuration of the reference anchor-free head.
func DefaultConfig() Config {
	return Config{
		MinScore:  0.3,
		ScaleBox:  1.5,
		Strides:   []int{1, 2, 4},
		InputSize: signature.GridBase * signature.FeatureWidth,
	}
}

// GridSize returns the grid side length of stride s.
func GridSize(s int) int {
	return signature.GridBase * s
}

// Decode converts the score and regression tensors of one stride into
// candidates.
//
// For each cell i of the g×g grid the class is the argmax over the label
// scores. Background cells and cells scoring at or below cfg.MinScore are
// skipped. The cell centre is ((0.5 + i mod g)/g, (0.5 + i/g)/g). The
// regression vector is viewed as [4][8]; the argmax bin of each side,
// multiplied by g/s/InputSize, is the offset of that side from the centre,
// scaled by ScaleBox/s.
//
// Arguments:
//   - scores: The [1, g², labels] class score tensor.
//   - features: The [1, g², 32] regression tensor.
//   - s: The stride.
//   - cfg: Decoder configuration.
//
// Returns:
//   - []postprocess.Candidate: Candidates in cell order, with Stride set to s.
//   - error: tensors.ErrInvalidShape if a tensor does not fit the grid.
//
// Example:
//
// ```go
//
//	cands, err := stride.Decode(scores, features, 2, stride.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
// ```
func Decode(scores, features *tensors.Tensor, s int, cfg Config) ([]postprocess.Candidate, error) {
	if s <= 0 {
		return nil, errors.Wrapf(tensors.ErrInvalidShape, "stride %d", s)
	}
	g := GridSize(s)
	cells := g * g

	shape := scores.Shape()
	if len(shape) != 3 || shape[1] != cells {
		return nil, errors.Wrapf(tensors.ErrInvalidShape,
			"stride %d: scores %v do not match a %dx%d grid", s, shape, g, g)
	}
	labels := shape[2]
	if features.Len() != cells*signature.FeatureWidth {
		return nil, errors.Wrapf(tensors.ErrInvalidShape,
			"stride %d: features %v do not hold %d values per cell", s, features.Shape(), signature.FeatureWidth)
	}

	scoreView, err := scores.View(cells, labels)
	if err != nil {
		return nil, err
	}
	classMax, err := scoreView.Argmax(1)
	if err != nil {
		return nil, errors.Wrapf(err, "stride %d: argmax over labels", s)
	}
	classIDs := classMax.Data().([]int)

	featureView, err := features.View(cells, sides, bins)
	if err != nil {
		return nil, err
	}
	binMax, err := featureView.Argmax(2)
	if err != nil {
		return nil, errors.Wrapf(err, "stride %d: argmax over bins", s)
	}
	sideBins := binMax.Data().([]int)

	values := scores.Float32s()
	step := float32(g) / float32(s) / float32(cfg.InputSize)
	scale := cfg.ScaleBox / float32(s)

	var out []postprocess.Candidate
	for i := 0; i < cells; i++ {
		classID := classIDs[i]
		if classID == background {
			continue
		}
		score := values[i*labels+classID]
		if !(score > cfg.MinScore) {
			continue
		}

		cx := (0.5 + float32(i%g)) / float32(g)
		cy := (0.5 + float32(i/g)) / float32(g)

		b := sideBins[i*sides : (i+1)*sides]
		out = append(out, postprocess.Candidate{
			Score:   score,
			ClassID: classID,
			Box: postprocess.Box{
				X1: cx - scale*float32(b[0])*step,
				Y1: cy - scale*float32(b[1])*step,
				X2: cx + scale*float32(b[2])*step,
				Y2: cy + scale*float32(b[3])*step,
			},
			Stride: s,
		})
	}

	return out, nil
}

// DecodeAll decodes every stride of cfg.Strides and concatenates the
// candidates in stride order.
//
// Arguments:
//   - outputs: The model outputs.
//   - roles: A RoleMap resolved with the same strides.
//   - cfg: Decoder configuration.
//
// Returns:
//   - []postprocess.Candidate: The candidates of all strides.
//   - error: signature.ErrUnresolvedSignature if a stride role is missing,
//     tensors.ErrInvalidShape if a tensor does not fit its grid.
func DecodeAll(outputs []*tensors.Tensor, roles signature.RoleMap, cfg Config) ([]postprocess.Candidate, error) {
	var out []postprocess.Candidate
	for _, s := range cfg.Strides {
		scores, err := roles.Lookup(outputs, signature.StrideScores(s))
		if err != nil {
			return nil, err
		}
		features, err := roles.Lookup(outputs, signature.StrideFeatures(s))
		if err != nil {
			return nil, err
		}

		cands, err := Decode(scores, features, s, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, cands...)
	}
	return out, nil
}
