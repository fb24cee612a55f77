// Package inference runs ONNX models and hands their outputs back as tensors.
package inference

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/tensors"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the onnxruntime shared library and prepares the environment.
// Only the first call has an effect; later calls return its error.
func Init(cfg Config) error {
	initOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(cfg.libraryPath())
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = errors.Wrapf(err, "error initializing ORT environment from %s", cfg.libraryPath())
		}
	})
	return initErr
}

// Signature reads the declared inputs and outputs of a model without creating
// a session.
//
// Arguments:
//   - path: The ONNX model file.
//
// Returns:
//   - []tensors.Spec: The inputs.
//   - []tensors.Spec: The outputs, in declaration order.
//   - error: An error if the model cannot be read or declares a non-tensor
//     or unsupported value.
func Signature(path string) ([]tensors.Spec, []tensors.Spec, error) {
	in, out, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error reading signature of %s", path)
	}

	inputs := make([]tensors.Spec, len(in))
	for i, info := range in {
		if inputs[i], err = specOf(info); err != nil {
			return nil, nil, err
		}
	}
	outputs := make([]tensors.Spec, len(out))
	for i, info := range out {
		if outputs[i], err = specOf(info); err != nil {
			return nil, nil, err
		}
	}
	return inputs, outputs, nil
}

// Stats are the cumulative run statistics of a session.
type Stats struct {
	Runs    int64         `json:"runs"`
	Total   time.Duration `json:"total"`
	Average time.Duration `json:"average"`
}

// Session is a loaded model with one image input. Outputs are allocated by the
// runtime on each run, so models with dynamic output shapes are supported.
// Run is safe for concurrent use.
type Session struct {
	session *ort.DynamicAdvancedSession
	inputs  []tensors.Spec
	outputs []tensors.Spec

	mu    sync.Mutex
	runs  int64
	total time.Duration
}

// NewSession loads a model.
//
// Arguments:
//   - cfg: The runtime configuration. Init is called with it.
//   - path: The ONNX model file.
//
// Returns:
//   - *Session: The session. Close releases it.
//   - error: An error if the runtime or the model cannot be loaded.
//
// Example:
//
// ```go
//
//	s, err := inference.NewSession(inference.Config{Backend: inference.BackendCPU}, "ssd.onnx")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
// ```
func NewSession(cfg Config, path string) (*Session, error) {
	if err := Init(cfg); err != nil {
		return nil, err
	}

	inputs, outputs, err := Signature(path)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 {
		return nil, errors.Errorf("%s: expected one image input, found %d", path, len(inputs))
	}

	options, err := cfg.sessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path, names(inputs), names(outputs), options)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating ORT session for %s", path)
	}

	return &Session{session: session, inputs: inputs, outputs: outputs}, nil
}

func names(specs []tensors.Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

// Input returns the declared image input.
func (s *Session) Input() tensors.Spec { return s.inputs[0] }

// Outputs returns the declared outputs.
func (s *Session) Outputs() []tensors.Spec { return append([]tensors.Spec(nil), s.outputs...) }

// Run runs the model on one prepared input.
//
// Arguments:
//   - in: The input, built by images.PrepareInput.
//
// Returns:
//   - []*tensors.Tensor: The outputs in declaration order. They own their
//     data and outlive the session.
//   - error: An error if the input cannot be bound or the run fails.
func (s *Session) Run(in *images.Input) ([]*tensors.Tensor, error) {
	start := time.Now()

	input, err := newValue(in)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	values := make([]ort.Value, len(s.outputs))
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run([]ort.Value{input}, values); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}

	outputs := make([]*tensors.Tensor, len(values))
	for i, v := range values {
		if outputs[i], err = toTensor(s.outputs[i].Name, v); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.runs++
	s.total += time.Since(start)
	s.mu.Unlock()

	return outputs, nil
}

func newValue(in *images.Input) (ort.Value, error) {
	shape := ort.NewShape(in.Shape...)
	var v ort.Value
	var err error
	switch in.DType {
	case tensors.Float32:
		v, err = ort.NewTensor(shape, in.Float32)
	case tensors.Uint8:
		v, err = ort.NewTensor(shape, in.Uint8)
	case tensors.Float16:
		b := make([]byte, 2*len(in.Float16))
		for i, h := range in.Float16 {
			binary.LittleEndian.PutUint16(b[2*i:], h)
		}
		v, err = ort.NewCustomDataTensor(shape, b, ort.TensorElementDataTypeFloat16)
	default:
		return nil, errors.Wrapf(images.ErrUnsupportedInput, "dtype %s", in.DType)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	return v, nil
}

// Stats returns the run statistics of the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Runs: s.runs, Total: s.total}
	if s.runs > 0 {
		st.Average = s.total / time.Duration(s.runs)
	}
	return st
}

// Close releases the session.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}
