package inference

import (
	"os"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend names an ONNX Runtime execution provider.
type Backend string

const (
	// BackendCPU runs on the default CPU provider.
	BackendCPU Backend = "cpu"
	// BackendCUDA runs on an NVIDIA GPU.
	BackendCUDA Backend = "cuda"
	// BackendCoreML runs on Apple Neural Engine or GPU.
	BackendCoreML Backend = "coreml"
	// BackendOpenVINO runs on Intel CPU, GPU or VPU.
	BackendOpenVINO Backend = "openvino"
)

// LibraryPathEnv overrides the shared library location.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// Config configures the runtime and the sessions it creates.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses SharedLibPath.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Backend selects the execution provider. Empty means CPU.
	Backend Backend `json:"backend" yaml:"backend"`
	// DeviceID is the CUDA device, or the CoreML flags.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// ProviderOptions are passed verbatim to CUDA and OpenVINO, see
	// https://onnxruntime.ai/docs/execution-providers/
	ProviderOptions map[string]string `json:"provider_options" yaml:"provider_options"`
	// IntraOpThreads bounds threads inside one node. 0 lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads bounds threads across independent nodes. 0 lets the
	// runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// SharedLibPath returns the default path of the onnxruntime shared library for
// the current platform, honoring ONNXRUNTIME_SHARED_LIBRARY_PATH.
func SharedLibPath() string {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}

func (c Config) libraryPath() string {
	if c.LibraryPath != "" {
		return c.LibraryPath
	}
	return SharedLibPath()
}

// sessionOptions builds the options of one session, execution provider
// included. The caller destroys them once the session exists.
func (c Config) sessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	if err := c.appendProvider(options); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (c Config) appendProvider(options *ort.SessionOptions) error {
	switch c.Backend {
	case "", BackendCPU:
		return nil
	case BackendCoreML:
		if err := options.AppendExecutionProviderCoreML(uint32(c.DeviceID)); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case BackendOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(c.ProviderOptions); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case BackendCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()

		opts := map[string]string{"device_id": strconv.Itoa(c.DeviceID)}
		for k, v := range c.ProviderOptions {
			opts[k] = v
		}
		if err := cuda.Update(opts); err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	default:
		return errors.Errorf("unsupported backend %q", c.Backend)
	}
	return nil
}
