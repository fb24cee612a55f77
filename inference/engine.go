package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

// Engine detects objects in images with one model.
type Engine interface {
	Predict(ctx context.Context, img *images.Image) (*pipeline.Result, error)
	Close() error
}

// EngineBuilder builds an Engine with a fluent API. The first error stops
// the chain and is returned by Build.
type EngineBuilder struct {
	runtime  Config
	registry *models.Registry
	name     model.Name
	pipeline pipeline.Config
	logger   *zap.Logger
	err      error
}

// NewEngineBuilder creates a builder with the CPU backend and the default
// pipeline configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		runtime:  Config{Backend: BackendCPU},
		pipeline: pipeline.DefaultConfig(),
		logger:   zap.NewNop(),
	}
}

// WithRuntime sets the runtime configuration.
func (b *EngineBuilder) WithRuntime(cfg Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runtime = cfg
	return b
}

// WithModel selects a registered model.
//
// Arguments:
//   - registry: The registry holding the model.
//   - name: The model name.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(registry *models.Registry, name model.Name) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if _, ok := registry.Get(name); !ok {
		b.err = errors.Errorf("model %q not registered", name)
		return b
	}
	b.registry = registry
	b.name = name
	return b
}

// WithPipeline sets the pipeline configuration. The model's output layout is
// applied on top of it at build time.
func (b *EngineBuilder) WithPipeline(cfg pipeline.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.pipeline = cfg
	return b
}

// WithLogger sets the logger of the engine and its pipeline.
func (b *EngineBuilder) WithLogger(l *zap.Logger) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.logger = l
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build loads the model, resolves its output roles and input, and wires the
// pipeline.
//
// Returns:
//   - Engine: The engine. Close releases the model.
//   - error: The first error of the chain, or a load or resolve error.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.registry == nil {
		return nil, errors.New("model not configured")
	}
	entry, _ := b.registry.Get(b.name)

	session, err := NewSession(b.runtime, entry.Config.Path)
	if err != nil {
		return nil, err
	}

	e, err := newEngine(b, entry, session)
	if err != nil {
		session.Close()
		return nil, err
	}
	return e, nil
}

func newEngine(b *EngineBuilder, entry *models.Entry, session *Session) (*engine, error) {
	roles, err := b.registry.Roles(b.name, session.Outputs())
	if err != nil {
		return nil, err
	}

	input, err := InputSpecOf(entry.Config, session.Input(), b.pipeline.InputSize)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", b.name)
	}

	cfg := b.pipeline.ForModel(entry.Config)
	cfg.InputDType = input.DType
	cfg.InputSize = input.Size

	logger := b.logger.With(zap.String("model", string(b.name)))
	p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	logger.Info("engine ready",
		zap.String("path", entry.Config.Path),
		zap.Stringer("roles", roles),
		zap.Stringer("input", session.Input()),
	)

	return &engine{
		name:     b.name,
		entry:    entry,
		session:  session,
		roles:    roles,
		input:    input,
		pipeline: p,
		logger:   logger,
	}, nil
}

// InputSpecOf works out the image input of a model. Fields the model config
// leaves unset are read from the declared input, then from fallbackSize.
//
// Arguments:
//   - cfg: The model config.
//   - declared: The declared image input of the model.
//   - fallbackSize: The input size used when neither the config nor a static
//     input shape provides one.
//
// Returns:
//   - images.InputSpec: The input.
//   - error: tensors.ErrUnknownDType when the dtype cannot be resolved.
func InputSpecOf(cfg model.Config, declared tensors.Spec, fallbackSize int) (images.InputSpec, error) {
	spec := images.InputSpec{DType: cfg.InputDType, Layout: cfg.InputLayout, Size: cfg.InputSize}

	if spec.DType == tensors.Unknown {
		dtype, err := signature.ResolveInputDType([]tensors.Spec{declared})
		if err != nil {
			return spec, err
		}
		spec.DType = dtype
	}

	if spec.Layout == "" {
		spec.Layout = images.LayoutNCHW
		if declared.Rank() == 4 && declared.Shape[3] == 3 && declared.Shape[1] != 3 {
			spec.Layout = images.LayoutNHWC
		}
	}

	if spec.Size <= 0 && declared.Rank() == 4 {
		if spec.Layout == images.LayoutNHWC {
			spec.Size = declared.Shape[1]
		} else {
			spec.Size = declared.Shape[2]
		}
	}
	if spec.Size <= 0 {
		spec.Size = fallbackSize
	}

	return spec, nil
}

type engine struct {
	name     model.Name
	entry    *models.Entry
	session  *Session
	roles    signature.RoleMap
	input    images.InputSpec
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// Predict runs the model on one image and returns its detections in image
// pixels.
func (e *engine) Predict(ctx context.Context, img *images.Image) (*pipeline.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := images.PrepareInput(img, e.input)
	if err != nil {
		return nil, err
	}

	outputs, err := e.session.Run(in)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", e.name)
	}

	return e.pipeline.Detect(pipeline.Job{
		Source:  string(e.name),
		Outputs: outputs,
		Roles:   e.roles,
		Size:    img.Size(),
		Labels:  e.entry.Labels,
		Groups:  e.entry.Groups,
	})
}

// WarmUp runs the model on a blank image to warm up the runtime.
//
// Arguments:
//   - runs: The number of times to run inference.
//
// Returns:
//   - error: An error if a run fails.
func WarmUp(ctx context.Context, e Engine, runs int) error {
	blank := &images.Image{Image: image.NewRGBA(image.Rect(0, 0, 64, 64))}
	for i := 0; i < runs; i++ {
		if _, err := e.Predict(ctx, blank); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) Close() error {
	e.logger.Debug("engine closed", zap.Any("stats", e.session.Stats()))
	return e.session.Close()
}
