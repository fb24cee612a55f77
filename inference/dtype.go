package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-detect/tensors"
)

// DTypeOf maps an ONNX Runtime element type onto a DType. int64 is narrowed
// to Int32: class ids and counts fit.
//
// Arguments:
//   - t: The element type reported by the runtime.
//
// Returns:
//   - tensors.DType: The dtype.
//   - error: tensors.ErrUnknownDType for element types no decoder reads.
func DTypeOf(t ort.TensorElementDataType) (tensors.DType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat, ort.TensorElementDataTypeDouble:
		return tensors.Float32, nil
	case ort.TensorElementDataTypeInt32, ort.TensorElementDataTypeInt64:
		return tensors.Int32, nil
	case ort.TensorElementDataTypeFloat16:
		return tensors.Float16, nil
	case ort.TensorElementDataTypeUint8:
		return tensors.Uint8, nil
	}
	return tensors.Unknown, errors.Wrapf(tensors.ErrUnknownDType, "onnx element type %v", t)
}

// specOf converts runtime metadata into a tensor spec. Dynamic dimensions
// (reported as -1) are kept as -1.
func specOf(info ort.InputOutputInfo) (tensors.Spec, error) {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return tensors.Spec{}, errors.Errorf("%s is not a tensor (%v)", info.Name, info.OrtValueType)
	}
	dtype, err := DTypeOf(info.DataType)
	if err != nil {
		return tensors.Spec{}, errors.Wrap(err, info.Name)
	}
	shape := make([]int, len(info.Dimensions))
	for i, d := range info.Dimensions {
		shape[i] = int(d)
	}
	return tensors.Spec{Name: info.Name, DType: dtype, Shape: shape}, nil
}

// toTensor copies a runtime output into a Tensor. The runtime keeps ownership
// of its buffer, which is released once Run returns.
func toTensor(name string, v ort.Value) (*tensors.Tensor, error) {
	shape := make([]int, 0, 4)
	for _, d := range v.GetShape() {
		shape = append(shape, int(d))
	}

	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return tensors.New(name, shape, append([]float32(nil), t.GetData()...))
	case *ort.Tensor[float64]:
		src := t.GetData()
		data := make([]float32, len(src))
		for i, x := range src {
			data[i] = float32(x)
		}
		return tensors.New(name, shape, data)
	case *ort.Tensor[int32]:
		return tensors.New(name, shape, append([]int32(nil), t.GetData()...))
	case *ort.Tensor[int64]:
		src := t.GetData()
		data := make([]int32, len(src))
		for i, x := range src {
			data[i] = int32(x)
		}
		return tensors.New(name, shape, data)
	case *ort.Tensor[uint8]:
		src := t.GetData()
		data := make([]float32, len(src))
		for i, x := range src {
			data[i] = float32(x)
		}
		return tensors.New(name, shape, data)
	}
	return nil, errors.Wrapf(tensors.ErrUnknownDType, "%s: unsupported output %T", name, v)
}
