package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/projector"
	"github.com/nvr-ai/go-detect/signature"
	"github.com/nvr-ai/go-detect/tensors"
)

var labels = projector.LabelTable{1: {DisplayName: "person"}, 2: {DisplayName: "dog"}}

// packedJob is the reference scenario: two heavily overlapping boxes and one
// distant low scoring box.
func packedJob(t *testing.T) Job {
	t.Helper()
	boxes := tensors.Must(tensors.New("detection_boxes", []int{1, 3, 4}, []float32{
		0, 0, 0.5, 0.5,
		0, 0, 0.45, 0.45,
		0.625, 0.625, 0.875, 0.875,
	}))
	scores := tensors.Must(tensors.New("detection_scores", []int{1, 3}, []float32{0.9, 0.85, 0.3}))
	classes := tensors.Must(tensors.New("detection_classes", []int{3}, []int32{1, 1, 2}))

	outputs := []*tensors.Tensor{boxes, scores, classes}
	roles, err := signature.Resolve(specs(outputs), signature.Options{})
	require.NoError(t, err)

	return Job{Source: "ssd", Outputs: outputs, Roles: roles, Size: image.Pt(100, 200), Labels: labels}
}

func specs(outputs []*tensors.Tensor) []tensors.Spec {
	out := make([]tensors.Spec, len(outputs))
	for i, o := range outputs {
		out[i] = o.Spec()
	}
	return out
}

func packedConfig() Config {
	cfg := DefaultConfig()
	cfg.MinScore = 0.2
	cfg.IoUThreshold = 0.5
	cfg.MaxResults = 10
	return cfg
}

func TestDetectPacked(t *testing.T) {
	p, err := New(packedConfig())
	require.NoError(t, err)

	res, err := p.Detect(packedJob(t))
	require.NoError(t, err)

	assert.Equal(t, []projector.Detection{
		{Score: 0.9, ClassID: 1, Label: "person", Box: projector.PixelBox{X: 0, Y: 0, Width: 50, Height: 100}, SourceModel: "ssd"},
		{Score: 0.3, ClassID: 2, Label: "dog", Box: projector.PixelBox{X: 62, Y: 125, Width: 25, Height: 50}, SourceModel: "ssd"},
	}, res.Detections)
	assert.Nil(t, res.Groups)
}

func TestDetectEmptyIsNotAnError(t *testing.T) {
	cfg := packedConfig()
	cfg.MinScore = 0.95
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Detect(packedJob(t))
	require.NoError(t, err)
	assert.Empty(t, res.Detections)

	cfg.MinScore = 0.2
	cfg.MaxResults = 0
	p, err = New(cfg)
	require.NoError(t, err)
	res, err = p.Detect(packedJob(t))
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
}

func TestDetectGroups(t *testing.T) {
	p, err := New(packedConfig())
	require.NoError(t, err)

	job := packedJob(t)
	job.Groups = projector.Groups{"people": {1}, "animals": {2}, "all": {1, 2}, "none": {7}}
	res, err := p.Detect(job)
	require.NoError(t, err)

	assert.Len(t, res.Groups["people"], 1)
	assert.Len(t, res.Groups["animals"], 1)
	assert.Equal(t, res.Detections, res.Groups["all"])
	assert.Empty(t, res.Groups["none"])
}

func TestDetectAnchorFree(t *testing.T) {
	const labelCount = 3
	cells := 13 * 13
	scores := make([]float32, cells*labelCount)
	features := make([]float32, cells*signature.FeatureWidth)
	// Two cells on the same spot of the grid: 84 wins, 85 overlaps it.
	copy(scores[84*labelCount:], []float32{0, 0.9, 0})
	copy(scores[85*labelCount:], []float32{0, 0, 0.6})
	for side := 0; side < 4; side++ {
		features[84*signature.FeatureWidth+side*8+7] = 1
		features[85*signature.FeatureWidth+side*8+7] = 1
	}

	outputs := []*tensors.Tensor{
		tensors.Must(tensors.New("", []int{1, cells, signature.FeatureWidth}, features)),
		tensors.Must(tensors.New("", []int{1, cells, labelCount}, scores)),
	}
	roles, err := signature.Resolve(specs(outputs), signature.Options{Strides: []int{1}, LabelCount: labelCount})
	require.NoError(t, err)

	cfg := DefaultConfig().ForModel(model.Config{Family: model.FamilyAnchorFree, Strides: []int{1}, ScaleBox: 1, InputSize: 416})
	p, err := New(cfg)
	require.NoError(t, err)

	res, err := p.Detect(Job{Source: "nudenet", Outputs: outputs, Roles: roles, Size: image.Pt(416, 416), Labels: labels})
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)

	d := res.Detections[0]
	assert.Equal(t, 1, d.ClassID)
	assert.Equal(t, "person", d.Label)
	// Centre 208, half-size 7 bins of 1/32 at scale 1: 0.21875·416 = 91.
	assert.Equal(t, projector.PixelBox{X: 117, Y: 117, Width: 182, Height: 182}, d.Box)
}

func TestDetectErrors(t *testing.T) {
	p, err := New(packedConfig())
	require.NoError(t, err)

	job := packedJob(t)
	job.Roles = signature.RoleMap{signature.RoleBoxes: 0}
	_, err = p.Detect(job)
	assert.True(t, errors.Is(err, signature.ErrUnresolvedSignature))

	job = packedJob(t)
	job.Outputs[1] = tensors.Must(tensors.New("detection_scores", []int{1, 2}, []float32{0.9, 0.8}))
	_, err = p.Detect(job)
	assert.True(t, errors.Is(err, tensors.ErrInvalidShape))
}

func TestDetectLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p, err := New(packedConfig(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = p.Detect(packedJob(t))
	require.NoError(t, err)

	entries := logs.FilterMessage("detect").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(3), fields["candidates"])
	assert.Equal(t, int64(2), fields["kept"])
}

func TestBatch(t *testing.T) {
	cfg := packedConfig()
	cfg.Workers = 2
	p, err := New(cfg)
	require.NoError(t, err)

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = packedJob(t)
	}
	jobs[3].Roles = signature.RoleMap{}

	results := p.Batch(context.Background(), jobs)
	require.Len(t, results, 5)
	for i, r := range results {
		if i == 3 {
			assert.True(t, errors.Is(r.Err, signature.ErrUnresolvedSignature))
			continue
		}
		require.NoError(t, r.Err)
		assert.Len(t, r.Result.Detections, 2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, r := range p.Batch(ctx, jobs) {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Nil(t, r.Result)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "default", mutate: func(*Config) {}, valid: true},
		{name: "zero max results", mutate: func(c *Config) { c.MaxResults = 0 }, valid: true},
		{name: "min score above one", mutate: func(c *Config) { c.MinScore = 1.1 }},
		{name: "negative min score", mutate: func(c *Config) { c.MinScore = -0.1 }},
		{name: "iou above one", mutate: func(c *Config) { c.IoUThreshold = 1.5 }},
		{name: "negative max results", mutate: func(c *Config) { c.MaxResults = -1 }},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -1 }},
		{name: "zero input size", mutate: func(c *Config) { c.InputSize = 0 }},
		{name: "unknown family", mutate: func(c *Config) { c.Family = "yolo" }},
		{name: "unknown box order", mutate: func(c *Config) { c.BoxOrder = "xywh" }},
		{
			name: "anchor-free without strides",
			mutate: func(c *Config) {
				c.Family = model.FamilyAnchorFree
				c.Strides = nil
			},
		},
		{
			name: "anchor-free with zero scale",
			mutate: func(c *Config) {
				c.Family = model.FamilyAnchorFree
				c.ScaleBox = 0
			},
		},
		{
			name: "anchor-free with negative stride",
			mutate: func(c *Config) {
				c.Family = model.FamilyAnchorFree
				c.Strides = []int{1, -2}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := New(cfg)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestForModel(t *testing.T) {
	base := DefaultConfig()
	cfg := base.ForModel(model.Config{Family: model.FamilyAnchorFree, Strides: []int{2}, InputDType: tensors.Float16})

	assert.Equal(t, model.FamilyAnchorFree, cfg.Family)
	assert.Equal(t, []int{2}, cfg.Strides)
	assert.Equal(t, tensors.Float16, cfg.InputDType)
	assert.Equal(t, base.ScaleBox, cfg.ScaleBox)
	assert.Equal(t, []int{1, 2, 4}, base.Strides)

	assert.Equal(t, postprocess.BoxOrderXYXY, base.ForModel(model.Config{BoxOrder: postprocess.BoxOrderXYXY}).BoxOrder)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"family: anchor-free\nmin_score: 0.4\nstrides: [2, 4]\ninput_dtype: DT_HALF\n"), 0o600))
	t.Setenv("DETECT_IOU_THRESHOLD", "0.45")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, model.FamilyAnchorFree, cfg.Family)
	assert.Equal(t, float32(0.4), cfg.MinScore)
	assert.Equal(t, float32(0.45), cfg.IoUThreshold)
	assert.Equal(t, []int{2, 4}, cfg.Strides)
	assert.Equal(t, tensors.Float16, cfg.InputDType)
	assert.Equal(t, DefaultConfig().MaxResults, cfg.MaxResults)

	t.Setenv("DETECT_MIN_SCORE", "3")
	_, err = LoadConfig(path)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
