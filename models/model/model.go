// Package model - Identity and output layout of a detection model.
package model

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

// Family is the output layout of a model.
type Family string

const (
	// FamilyPacked models emit ready-made boxes, scores and classes tensors
	// (SSD, CenterNet, EfficientDet, RetinaNet).
	FamilyPacked Family = "packed"
	// FamilyAnchorFree models emit raw per-stride score and regression grids.
	FamilyAnchorFree Family = "anchor-free"
)

// Name is the unique identifier of a model.
type Name string

// Config describes one model: where it lives and how its outputs are laid out.
type Config struct {
	// Name identifies the model in a registry.
	Name Name `json:"name" yaml:"name"`
	// Family selects the decode path.
	Family Family `json:"family" yaml:"family"`
	// Path is the model file.
	Path string `json:"path" yaml:"path"`
	// InputDType is the declared input element type. Resolved from the model
	// inputs when empty.
	InputDType tensors.DType `json:"input_dtype,omitempty" yaml:"input_dtype,omitempty"`
	// InputLayout is the dimension order of the image input. Inferred from the
	// input shape when empty.
	InputLayout images.Layout `json:"input_layout,omitempty" yaml:"input_layout,omitempty"`
	// InputSize is the square input resolution in pixels.
	InputSize int `json:"input_size,omitempty" yaml:"input_size,omitempty"`
	// BoxOrder is the coordinate order of a packed boxes tensor.
	BoxOrder postprocess.BoxOrder `json:"box_order,omitempty" yaml:"box_order,omitempty"`
	// Strides lists the strides of an anchor-free head.
	Strides []int `json:"strides,omitempty" yaml:"strides,omitempty"`
	// ScaleBox is the box amplification of an anchor-free head.
	ScaleBox float32 `json:"scale_box,omitempty" yaml:"scale_box,omitempty"`
	// Labels is a built-in label set name or the path of a label file.
	Labels string `json:"labels" yaml:"labels"`
	// Groups maps a group name to the display names of its classes.
	Groups map[string][]string `json:"groups,omitempty" yaml:"groups,omitempty"`
	// Hints pins output roles to indices when a signature cannot be resolved
	// on its own.
	Hints map[signature.Role]int `json:"hints,omitempty" yaml:"hints,omitempty"`
}

// Validate checks that the config is usable for its family.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("model name is required")
	}
	switch c.InputLayout {
	case "", images.LayoutNCHW, images.LayoutNHWC:
	default:
		return fmt.Errorf("model %s: unsupported input layout %q", c.Name, c.InputLayout)
	}
	switch c.Family {
	case FamilyPacked:
		switch c.BoxOrder {
		case "", postprocess.BoxOrderYXYX, postprocess.BoxOrderXYXY:
		default:
			return fmt.Errorf("model %s: unsupported box order %q", c.Name, c.BoxOrder)
		}
	case FamilyAnchorFree:
		if len(c.Strides) == 0 {
			return fmt.Errorf("model %s: anchor-free family requires strides", c.Name)
		}
		for _, s := range c.Strides {
			if s <= 0 {
				return fmt.Errorf("model %s: invalid stride %d", c.Name, s)
			}
		}
	default:
		return fmt.Errorf("model %s: unsupported family %q", c.Name, c.Family)
	}
	return nil
}

// SignatureOptions returns the resolver options of the model.
//
// Arguments:
//   - labelCount: The number of classes of an anchor-free head, background included.
//
// Returns:
//   - signature.Options: The options. Strides are only set for anchor-free models.
func (c Config) SignatureOptions(labelCount int) signature.Options {
	opts := signature.Options{Hints: c.Hints}
	if c.Family == FamilyAnchorFree {
		opts.Strides = c.Strides
		opts.LabelCount = labelCount
	}
	return opts
}
