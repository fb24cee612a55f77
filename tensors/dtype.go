// Package tensors - Read-only views over model output tensors.
package tensors

import (
	"strings"

	"github.com/pkg/errors"
)

// DType is the element type of a tensor.
type DType string

const (
	// Unknown is an unresolved or unsupported element type.
	Unknown DType = ""
	// Float32 is a 32-bit IEEE-754 float.
	Float32 DType = "float32"
	// Int32 is a signed 32-bit integer.
	Int32 DType = "int32"
	// Float16 is a half precision float. Only used for model inputs.
	Float16 DType = "float16"
	// Uint8 is an unsigned byte. Only used for model inputs.
	Uint8 DType = "uint8"
)

// ErrUnknownDType is returned when a dtype name cannot be mapped to a DType.
var ErrUnknownDType = errors.New("unknown dtype")

// dtypeAliases maps the spellings used by TensorFlow signatures, ONNX
// metadata and numpy-style names onto a single DType.
var dtypeAliases = map[string]DType{
	"float32":         Float32,
	"float":           Float32,
	"dt_float":        Float32,
	"tensor(float)":   Float32,
	"fp32":            Float32,
	"int32":           Int32,
	"dt_int32":        Int32,
	"tensor(int32)":   Int32,
	"int64":           Int32,
	"dt_int64":        Int32,
	"tensor(int64)":   Int32,
	"float16":         Float16,
	"half":            Float16,
	"dt_half":         Float16,
	"tensor(float16)": Float16,
	"fp16":            Float16,
	"uint8":           Uint8,
	"dt_uint8":        Uint8,
	"tensor(uint8)":   Uint8,
}

// ParseDType maps a dtype spelling onto a DType.
//
// Arguments:
//   - name: The dtype as written by the model metadata (e.g. "DT_FLOAT", "float16").
//
// Returns:
//   - DType: The resolved dtype.
//   - error: ErrUnknownDType when the name is not recognized.
func ParseDType(name string) (DType, error) {
	d, ok := dtypeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Unknown, errors.Wrapf(ErrUnknownDType, "%q", name)
	}
	return d, nil
}

// IsFloat reports whether the dtype holds floating point values.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float16
}

func (d DType) String() string {
	if d == Unknown {
		return "unknown"
	}
	return string(d)
}
