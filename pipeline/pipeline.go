// Package pipeline runs decode, suppression and projection over the outputs
// of one model invocation.
//
// A Pipeline is built once from a validated Config and is then safe to share:
// Detect keeps no state between calls and never writes to the tensors it is
// given. Results hold no reference to those tensors, so the caller may release
// them as soon as Detect returns.
package pipeline

import (
	"context"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/models/aggregate"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/projector"
	"github.com/nvr-ai/go-detect/models/stride"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

// Job is the input of one detection call.
type Job struct {
	// Source names the model that produced the outputs.
	Source string
	// Outputs are the model outputs. Owned by the caller and left untouched.
	Outputs []*tensors.Tensor
	// Roles is the resolved role map of the model.
	Roles signature.RoleMap
	// Size is the original image size in pixels.
	Size image.Point
	// Labels is the label table of the model.
	Labels projector.LabelTable
	// Groups are the optional semantic groups.
	Groups projector.Groups
}

// Result is the output of one detection call.
type Result struct {
	// Source names the model that produced the detections.
	Source string `json:"source"`
	// Detections are sorted by score, highest first.
	Detections []projector.Detection `json:"detections"`
	// Groups holds the detections of each group. Nil when the job has no groups.
	Groups map[string][]projector.Detection `json:"groups,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// Pipeline decodes, suppresses and projects model outputs.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and builds a Pipeline.
//
// Arguments:
//   - cfg: The pipeline configuration.
//   - opts: Functional options.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: ErrConfiguration if cfg is rejected.
//
// Example:
//
// ```go
//
//	p, err := pipeline.New(pipeline.DefaultConfig(), pipeline.WithLogger(logger.New(false)))
//	if err != nil {
//	    return err
//	}
//	res, err := p.Detect(pipeline.Job{
//	    Source:  "ssd-mobilenet",
//	    Outputs: outputs,
//	    Roles:   roles,
//	    Size:    image.Pt(1280, 720),
//	    Labels:  models.TFCOCOLabels,
//	})
//
// ```
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Strides = append([]int(nil), cfg.Strides...)

	p := &Pipeline{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns a copy of the pipeline configuration.
func (p *Pipeline) Config() Config {
	c := p.cfg
	c.Strides = append([]int(nil), p.cfg.Strides...)
	return c
}

// Candidates decodes the outputs into candidates before suppression, using
// the stride decoder for anchor-free heads and the packed aggregator
// otherwise.
func (p *Pipeline) Candidates(outputs []*tensors.Tensor, roles signature.RoleMap) ([]postprocess.Candidate, error) {
	if p.cfg.Family == model.FamilyAnchorFree {
		return stride.DecodeAll(outputs, roles, p.cfg.Stride())
	}
	packed, err := aggregate.Packed(outputs, roles, p.cfg.Aggregate())
	if err != nil {
		return nil, err
	}
	return aggregate.Merge(packed), nil
}

// Detect runs decode, NMS and projection for one job.
//
// Arguments:
//   - job: The outputs of one model on one image.
//
// Returns:
//   - *Result: The detections, highest score first. Empty, not an error, when
//     nothing survives filtering.
//   - error: signature.ErrUnresolvedSignature or tensors.ErrInvalidShape.
func (p *Pipeline) Detect(job Job) (*Result, error) {
	start := time.Now()

	cands, err := p.Candidates(job.Outputs, job.Roles)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", job.Source)
	}

	kept := postprocess.ApplyNMS(cands, p.cfg.NMS())
	dets := projector.Project(postprocess.Select(cands, kept), job.Size.X, job.Size.Y, job.Labels, job.Source)

	res := &Result{Source: job.Source, Detections: dets}
	if job.Groups != nil {
		res.Groups = projector.Group(dets, job.Groups)
	}

	p.logger.Debug("detect",
		zap.String("source", job.Source),
		zap.Stringer("roles", job.Roles),
		zap.Int("candidates", len(cands)),
		zap.Int("kept", len(kept)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return res, nil
}

// BatchResult is the outcome of one job of a batch.
type BatchResult struct {
	Result *Result
	Err    error
}

// Batch runs independent jobs on a bounded pool of workers. Results are in job
// order. Cancellation is checked before each job starts; a job that has
// started always runs to completion.
//
// Arguments:
//   - ctx: Cancels the jobs that have not started.
//   - jobs: The jobs. Each must own its outputs.
//
// Returns:
//   - []BatchResult: One entry per job.
func (p *Pipeline) Batch(ctx context.Context, jobs []Job) []BatchResult {
	results := make([]BatchResult, len(jobs))

	workers := p.cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range jobs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[idx].Err = err
				return
			}

			res, err := p.Detect(jobs[idx])
			if err != nil {
				p.logger.Warn("detect failed", zap.String("source", jobs[idx].Source), zap.Int("job", idx), zap.Error(err))
			}
			results[idx] = BatchResult{Result: res, Err: err}
		}(i)
	}

	wg.Wait()

	return results
}
