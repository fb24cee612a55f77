package tensors

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrInvalidShape is returned when a tensor's rank or dimensions do not fit
// the data it holds or the role it was assigned.
var ErrInvalidShape = errors.New("invalid shape")

// Spec describes one declared model input or output without its data.
type Spec struct {
	// Name is the declared signature name. May be empty.
	Name string `json:"name" yaml:"name"`
	// DType is the element type.
	DType DType `json:"dtype" yaml:"dtype"`
	// Shape holds the dimensions. Unknown (dynamic) dimensions are -1.
	Shape []int `json:"shape" yaml:"shape"`
}

// Rank returns the number of dimensions.
func (s Spec) Rank() int {
	return len(s.Shape)
}

// Last returns the size of the innermost dimension, or 0 for a scalar.
func (s Spec) Last() int {
	if len(s.Shape) == 0 {
		return 0
	}
	return s.Shape[len(s.Shape)-1]
}

func (s Spec) String() string {
	return fmt.Sprintf("%s%v %s", s.Name, s.Shape, s.DType)
}

// Tensor is a read-only view over one dense model output.
//
// The backing buffer belongs to the caller; nothing in this module writes to
// it or keeps a reference once a decode call returns.
type Tensor struct {
	name  string
	dtype DType
	dense *tensor.Dense
}

// New wraps a flat buffer as a tensor of the given shape.
//
// Arguments:
//   - name: Optional declared output name.
//   - shape: The dimensions of the tensor.
//   - data: A []float32 or []int32 buffer with prod(shape) elements.
//
// Returns:
//   - *Tensor: The tensor view.
//   - error: ErrInvalidShape if the element count does not match the shape,
//     ErrUnknownDType for unsupported buffers.
func New(name string, shape []int, data interface{}) (*Tensor, error) {
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Wrapf(ErrInvalidShape, "%s: non-positive dimension in %v", name, shape)
		}
		size *= d
	}

	var dtype DType
	var n int
	switch v := data.(type) {
	case []float32:
		dtype, n = Float32, len(v)
	case []int32:
		dtype, n = Int32, len(v)
	default:
		return nil, errors.Wrapf(ErrUnknownDType, "%s: unsupported buffer %T", name, data)
	}
	if n != size {
		return nil, errors.Wrapf(ErrInvalidShape, "%s: %d elements do not fill shape %v", name, n, shape)
	}
	if len(shape) == 0 {
		return nil, errors.Wrapf(ErrInvalidShape, "%s: scalar outputs are not supported", name)
	}

	return &Tensor{
		name:  name,
		dtype: dtype,
		dense: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
	}, nil
}

// Must is like New but panics on error. Intended for tests and fixtures.
func Must(t *Tensor, err error) *Tensor {
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the declared output name.
func (t *Tensor) Name() string { return t.name }

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.dense.Shape()...)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return t.dense.Dims() }

// Len returns the total number of elements.
func (t *Tensor) Len() int { return t.dense.Shape().TotalSize() }

// Spec returns the descriptor of the tensor.
func (t *Tensor) Spec() Spec {
	return Spec{Name: t.name, DType: t.dtype, Shape: t.Shape()}
}

// Float32s returns the elements as float32.
//
// For Float32 tensors this is the caller's buffer and must not be modified;
// Int32 tensors are converted into a fresh slice.
func (t *Tensor) Float32s() []float32 {
	switch v := t.dense.Data().(type) {
	case []float32:
		return v
	case []int32:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out
	}
	return nil
}

// Ints returns the elements as int, truncating floats toward zero.
func (t *Tensor) Ints() []int {
	switch v := t.dense.Data().(type) {
	case []int32:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out
	case []float32:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out
	}
	return nil
}

// View returns a dense view of the tensor with a different shape. The view
// shares the backing buffer but not the shape, so the tensor itself is left
// untouched.
//
// Arguments:
//   - dims: The new dimensions. Their product must equal Len().
//
// Returns:
//   - *tensor.Dense: The reshaped view.
//   - error: ErrInvalidShape if the sizes differ.
func (t *Tensor) View(dims ...int) (*tensor.Dense, error) {
	if tensor.Shape(dims).TotalSize() != t.Len() {
		return nil, errors.Wrapf(ErrInvalidShape, "%s: cannot view %v as %v", t.name, t.dense.Shape(), dims)
	}
	v := t.dense.ShallowClone()
	if err := v.Reshape(dims...); err != nil {
		return nil, errors.Wrapf(ErrInvalidShape, "%s: %v", t.name, err)
	}
	return v, nil
}

func (t *Tensor) String() string {
	return t.Spec().String()
}
