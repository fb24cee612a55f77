package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/nvr-ai/go-detect/tensors"
)

// Layout is the dimension order of an image input tensor.
type Layout string

const (
	// LayoutNCHW is [batch, channels, height, width], the ONNX export default.
	LayoutNCHW Layout = "nchw"
	// LayoutNHWC is [batch, height, width, channels], the TensorFlow default.
	LayoutNHWC Layout = "nhwc"
)

// ErrUnsupportedInput is returned when an input cannot be built for a dtype
// or layout.
var ErrUnsupportedInput = errors.New("unsupported model input")

// InputSpec describes the image input a model expects.
type InputSpec struct {
	// Size is the square side of the input in pixels.
	Size int `json:"size" yaml:"size"`
	// DType is the element type. Floats are scaled to [0, 1], uint8 is raw.
	DType tensors.DType `json:"dtype" yaml:"dtype"`
	// Layout is the dimension order. Empty means NCHW.
	Layout Layout `json:"layout" yaml:"layout"`
}

// Input is a model input tensor ready to be handed to a runtime. Exactly one
// of the data slices is set, matching DType.
type Input struct {
	Shape   []int64
	DType   tensors.DType
	Float32 []float32
	// Float16 holds IEEE-754 binary16 bit patterns.
	Float16 []uint16
	Uint8   []uint8
}

// Len returns the number of elements of the input.
func (in *Input) Len() int {
	switch in.DType {
	case tensors.Float16:
		return len(in.Float16)
	case tensors.Uint8:
		return len(in.Uint8)
	default:
		return len(in.Float32)
	}
}

// PrepareInput resizes img to the square input size of a model and packs its
// RGB channels into a batch of one in the requested dtype and layout.
//
// Arguments:
//   - img: The image to prepare.
//   - spec: The model input.
//
// Returns:
//   - *Input: The packed input.
//   - error: ErrUnsupportedInput for an unknown dtype or layout, or a
//     non-positive size.
//
// Example:
//
// ```go
//
//	in, err := images.PrepareInput(img, images.InputSpec{Size: 416, DType: tensors.Uint8, Layout: images.LayoutNHWC})
//	if err != nil {
//	    return err
//	}
//	outputs, err := session.Run(in)
//
// ```
func PrepareInput(img image.Image, spec InputSpec) (*Input, error) {
	if spec.Size <= 0 {
		return nil, errors.Wrapf(ErrUnsupportedInput, "size %d is not positive", spec.Size)
	}
	layout := spec.Layout
	if layout == "" {
		layout = LayoutNCHW
	}
	if layout != LayoutNCHW && layout != LayoutNHWC {
		return nil, errors.Wrapf(ErrUnsupportedInput, "layout %q", spec.Layout)
	}

	n := spec.Size
	plane := n * n
	in := &Input{DType: spec.DType}
	if layout == LayoutNCHW {
		in.Shape = []int64{1, 3, int64(n), int64(n)}
	} else {
		in.Shape = []int64{1, int64(n), int64(n), 3}
	}

	// index returns the offset of channel c of pixel i.
	index := func(i, c int) int {
		if layout == LayoutNCHW {
			return c*plane + i
		}
		return i*3 + c
	}

	var set func(idx int, v uint8)
	switch spec.DType {
	case tensors.Float32:
		in.Float32 = make([]float32, plane*3)
		set = func(idx int, v uint8) { in.Float32[idx] = float32(v) / 255.0 }
	case tensors.Float16:
		in.Float16 = make([]uint16, plane*3)
		set = func(idx int, v uint8) { in.Float16[idx] = float16.Fromfloat32(float32(v) / 255.0).Bits() }
	case tensors.Uint8:
		in.Uint8 = make([]uint8, plane*3)
		set = func(idx int, v uint8) { in.Uint8[idx] = v }
	default:
		return nil, errors.Wrapf(ErrUnsupportedInput, "dtype %s", spec.DType)
	}

	resized := resize.Resize(uint(n), uint(n), img, resize.Lanczos3)
	b := resized.Bounds()

	i := 0
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			set(index(i, 0), uint8(r>>8))
			set(index(i, 1), uint8(g>>8))
			set(index(i, 2), uint8(bl>>8))
			i++
		}
	}

	return in, nil
}
