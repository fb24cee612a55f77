package inference

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/tensors"
)

func TestInputSpecOf(t *testing.T) {
	tests := []struct {
		name     string
		cfg      model.Config
		declared tensors.Spec
		want     images.InputSpec
	}{
		{
			name:     "nchw float from the declared input",
			declared: tensors.Spec{Name: "images", DType: tensors.Float32, Shape: []int{1, 3, 640, 640}},
			want:     images.InputSpec{Size: 640, DType: tensors.Float32, Layout: images.LayoutNCHW},
		},
		{
			name:     "nhwc uint8 from the declared input",
			declared: tensors.Spec{Name: "input_tensor", DType: tensors.Uint8, Shape: []int{1, 320, 320, 3}},
			want:     images.InputSpec{Size: 320, DType: tensors.Uint8, Layout: images.LayoutNHWC},
		},
		{
			name:     "dynamic spatial dims fall back",
			declared: tensors.Spec{Name: "input", DType: tensors.Float16, Shape: []int{1, 3, -1, -1}},
			want:     images.InputSpec{Size: 416, DType: tensors.Float16, Layout: images.LayoutNCHW},
		},
		{
			name:     "config wins",
			cfg:      model.Config{InputDType: tensors.Float16, InputLayout: images.LayoutNHWC, InputSize: 512},
			declared: tensors.Spec{Name: "input", DType: tensors.Float32, Shape: []int{1, 3, 640, 640}},
			want:     images.InputSpec{Size: 512, DType: tensors.Float16, Layout: images.LayoutNHWC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InputSpecOf(tt.cfg, tt.declared, 416)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := InputSpecOf(model.Config{}, tensors.Spec{Name: "input", Shape: []int{1, 3, 8, 8}}, 416)
	assert.True(t, errors.Is(err, tensors.ErrUnknownDType))
}

func TestEngineBuilderErrors(t *testing.T) {
	_, err := NewEngineBuilder().Build()
	assert.EqualError(t, err, "model not configured")

	reg := models.NewRegistry()
	b := NewEngineBuilder().WithModel(reg, "missing").WithRuntime(Config{Backend: BackendCUDA})
	assert.True(t, b.HasError())
	_, err = b.Build()
	assert.Error(t, err)
	assert.Panics(t, func() { b.MustBuild() })
}
