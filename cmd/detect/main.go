// Command detect runs an object detection model over images and prints the
// detections as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/nvr-ai/go-detect/render"
	"github.com/nvr-ai/go-detect/util"
)

type options struct {
	manifest  string
	name      string
	modelPath string
	family    string
	labels    string
	config    string
	input     string
	annotate  string
	backend   string
	library   string
	warmup    int
	timeout   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.manifest, "manifest", "", "Path to a model manifest (YAML)")
	flag.StringVar(&opts.name, "name", "", "Model to run from the manifest; the first one when empty")
	flag.StringVar(&opts.modelPath, "model", "", "Path to an ONNX model file, instead of -manifest")
	flag.StringVar(&opts.family, "family", string(model.FamilyPacked), "Output family of -model: packed or anchor-free")
	flag.StringVar(&opts.labels, "labels", string(models.LabelSetTFCOCO), "Label set or label file of -model")
	flag.StringVar(&opts.config, "config", "", "Path to a pipeline configuration file (YAML)")
	flag.StringVar(&opts.input, "images", "", "Path to an image or a directory of images")
	flag.StringVar(&opts.annotate, "annotate", "", "Directory to write annotated images to")
	flag.StringVar(&opts.backend, "backend", string(inference.BackendCPU), "Execution provider: cpu, cuda, coreml or openvino")
	flag.StringVar(&opts.library, "lib", "", "Path to the onnxruntime shared library")
	flag.IntVar(&opts.warmup, "warmup", 0, "Warm-up runs before the first image")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Overall timeout")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logger.New(*debug)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.timeout)
	defer cancelTimeout()

	if err := run(ctx, log, opts); err != nil {
		log.Fatal("detect failed", zap.Error(err))
	}
}

func registry(opts options) (*models.Registry, model.Name, error) {
	if opts.manifest != "" {
		m, err := models.LoadManifest(opts.manifest)
		if err != nil {
			return nil, "", err
		}
		if len(m.Models) == 0 {
			return nil, "", errors.Errorf("manifest %s lists no models", opts.manifest)
		}
		reg, err := models.NewRegistryFromManifest(m)
		if err != nil {
			return nil, "", err
		}
		name := model.Name(opts.name)
		if name == "" {
			name = m.Models[0].Name
		}
		return reg, name, nil
	}

	if opts.modelPath == "" {
		return nil, "", errors.New("either -manifest or -model is required")
	}

	name := model.Name(filepath.Base(opts.modelPath))
	cfg := model.Config{
		Name:   name,
		Family: model.Family(opts.family),
		Path:   opts.modelPath,
		Labels: opts.labels,
	}
	if cfg.Family == model.FamilyAnchorFree {
		cfg.Strides = pipeline.DefaultConfig().Strides
	}

	reg := models.NewRegistry()
	if _, err := reg.Register(cfg); err != nil {
		return nil, "", err
	}
	return reg, name, nil
}

func run(ctx context.Context, log *zap.Logger, opts options) error {
	if opts.input == "" {
		return errors.New("-images is required")
	}

	cfg, err := pipeline.LoadConfig(opts.config)
	if err != nil {
		return err
	}

	reg, name, err := registry(opts)
	if err != nil {
		return err
	}

	engine, err := inference.NewEngineBuilder().
		WithRuntime(inference.Config{Backend: inference.Backend(opts.backend), LibraryPath: opts.library}).
		WithModel(reg, name).
		WithPipeline(cfg).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := inference.WarmUp(ctx, engine, opts.warmup); err != nil {
		return errors.Wrap(err, "warm-up failed")
	}

	files, err := util.LoadImageFiles(opts.input)
	if err != nil {
		return err
	}

	if opts.annotate != "" {
		if err := os.MkdirAll(opts.annotate, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", opts.annotate)
		}
	}

	out := json.NewEncoder(os.Stdout)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := images.Decode(f.Data)
		if err != nil {
			log.Warn("skipping image", zap.String("path", f.Path), zap.Error(err))
			continue
		}

		res, err := engine.Predict(ctx, img)
		if err != nil {
			return errors.Wrapf(err, "predict %s", f.Path)
		}

		if err := out.Encode(struct {
			Path string `json:"path"`
			*pipeline.Result
		}{Path: f.Path, Result: res}); err != nil {
			return err
		}

		if opts.annotate != "" {
			dst := filepath.Join(opts.annotate, filepath.Base(f.Path))
			if err := render.AnnotateImage(f.Data, res.Detections, dst); err != nil {
				log.Warn("annotation failed", zap.String("path", dst), zap.Error(err))
			}
		}
	}

	return nil
}
