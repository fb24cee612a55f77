package pipeline

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/aggregate"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/stride"
	"github.com/nvr-ai/go-detect/tensors"
)

// EnvPrefix prefixes the environment variables that override a config file,
// e.g. DETECT_MIN_SCORE=0.4.
const EnvPrefix = "DETECT_"

// ErrConfiguration is returned when a Config is rejected.
var ErrConfiguration = errors.New("invalid configuration")

// Config holds every tunable of a detection pipeline.
type Config struct {
	// MinScore drops candidates scoring at or below it, in [0, 1].
	MinScore float32 `json:"min_score" yaml:"min_score"`
	// IoUThreshold is the NMS suppression threshold, in [0, 1].
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// MaxResults caps the number of detections. 0 yields no detections.
	MaxResults int `json:"max_results" yaml:"max_results"`
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
	// Family selects the decode path.
	Family model.Family `json:"family" yaml:"family"`
	// BoxOrder is the coordinate order of packed boxes.
	BoxOrder postprocess.BoxOrder `json:"box_order" yaml:"box_order"`
	// ScaleBox is the box amplification of anchor-free heads.
	ScaleBox float32 `json:"scale_box" yaml:"scale_box"`
	// Strides lists the strides of anchor-free heads.
	Strides []int `json:"strides" yaml:"strides"`
	// InputSize is the square model input resolution in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`
	// InputDType is the element type the model expects as input.
	InputDType tensors.DType `json:"input_dtype" yaml:"input_dtype"`
	// Workers bounds Batch concurrency. 0 means one worker per CPU.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	s := stride.DefaultConfig()
	return Config{
		MinScore:     0.3,
		IoUThreshold: 0.5,
		MaxResults:   20,
		Family:       model.FamilyPacked,
		BoxOrder:     postprocess.BoxOrderYXYX,
		ScaleBox:     s.ScaleBox,
		Strides:      s.Strides,
		InputSize:    s.InputSize,
		InputDType:   tensors.Float32,
	}
}

// Validate rejects out of range values.
//
// Returns:
//   - error: ErrConfiguration naming the offending field, or nil.
func (c Config) Validate() error {
	switch {
	case !inUnitRange(c.MinScore):
		return errors.Wrapf(ErrConfiguration, "min_score %v is outside [0, 1]", c.MinScore)
	case !inUnitRange(c.IoUThreshold):
		return errors.Wrapf(ErrConfiguration, "iou_threshold %v is outside [0, 1]", c.IoUThreshold)
	case c.MaxResults < 0:
		return errors.Wrapf(ErrConfiguration, "max_results %d is negative", c.MaxResults)
	case c.Workers < 0:
		return errors.Wrapf(ErrConfiguration, "workers %d is negative", c.Workers)
	case c.InputSize <= 0:
		return errors.Wrapf(ErrConfiguration, "input_size %d is not positive", c.InputSize)
	}

	switch c.Family {
	case model.FamilyPacked:
		switch c.BoxOrder {
		case "", postprocess.BoxOrderYXYX, postprocess.BoxOrderXYXY:
		default:
			return errors.Wrapf(ErrConfiguration, "unsupported box_order %q", c.BoxOrder)
		}
	case model.FamilyAnchorFree:
		if !(c.ScaleBox > 0) {
			return errors.Wrapf(ErrConfiguration, "scale_box %v is not positive", c.ScaleBox)
		}
		if len(c.Strides) == 0 {
			return errors.Wrap(ErrConfiguration, "anchor-free family requires strides")
		}
		for _, s := range c.Strides {
			if s <= 0 {
				return errors.Wrapf(ErrConfiguration, "stride %d is not positive", s)
			}
		}
	default:
		return errors.Wrapf(ErrConfiguration, "unsupported family %q", c.Family)
	}

	return nil
}

func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}

// ForModel returns a copy of c with the output layout of a model applied.
// Fields the model leaves unset keep their value from c.
func (c Config) ForModel(m model.Config) Config {
	out := c
	out.Strides = append([]int(nil), c.Strides...)

	if m.Family != "" {
		out.Family = m.Family
	}
	if m.BoxOrder != "" {
		out.BoxOrder = m.BoxOrder
	}
	if len(m.Strides) > 0 {
		out.Strides = append([]int(nil), m.Strides...)
	}
	if m.ScaleBox > 0 {
		out.ScaleBox = m.ScaleBox
	}
	if m.InputSize > 0 {
		out.InputSize = m.InputSize
	}
	if m.InputDType != tensors.Unknown {
		out.InputDType = m.InputDType
	}
	return out
}

// NMS returns the suppression settings.
func (c Config) NMS() *postprocess.NMSConfig {
	return &postprocess.NMSConfig{
		IoUThreshold:   c.IoUThreshold,
		ScoreThreshold: c.MinScore,
		MaxResults:     c.MaxResults,
		ClassAware:     c.ClassAware,
	}
}

// Stride returns the anchor-free decoder settings.
func (c Config) Stride() stride.Config {
	return stride.Config{
		MinScore:  c.MinScore,
		ScaleBox:  c.ScaleBox,
		Strides:   c.Strides,
		InputSize: c.InputSize,
	}
}

// Aggregate returns the packed output settings.
func (c Config) Aggregate() aggregate.Options {
	return aggregate.Options{MinScore: c.MinScore, BoxOrder: c.BoxOrder}
}

// LoadConfig reads a config from a YAML file on top of DefaultConfig, then
// applies DETECT_* environment overrides (DETECT_IOU_THRESHOLD=0.45,
// DETECT_STRIDES=1,2,4).
//
// Arguments:
//   - path: The YAML file. Empty to use defaults and the environment only.
//
// Returns:
//   - Config: The validated config.
//   - error: An error if the file cannot be read, or ErrConfiguration.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "unable to load config %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, errors.Wrap(err, "unable to load environment")
	}

	cfg := DefaultConfig()
	if k.Exists("strides") {
		// Decoding into a populated slice only overwrites its prefix.
		cfg.Strides = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Config{}, errors.Wrap(ErrConfiguration, err.Error())
	}

	dtype, err := tensors.ParseDType(string(cfg.InputDType))
	if err != nil {
		return Config{}, errors.Wrap(ErrConfiguration, err.Error())
	}
	cfg.InputDType = dtype

	return cfg, cfg.Validate()
}
