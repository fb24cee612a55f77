package signature

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/tensors"
)

func spec(name string, dtype tensors.DType, shape ...int) tensors.Spec {
	return tensors.Spec{Name: name, DType: dtype, Shape: shape}
}

// TestResolvePackedHeuristics covers a model that exposes scores, classes and
// boxes without usable names.
func TestResolvePackedHeuristics(t *testing.T) {
	outputs := []tensors.Spec{
		spec("", tensors.Float32, 1, 100, 4),
		spec("", tensors.Float32, 1, 100),
		spec("", tensors.Int32, 100),
	}

	roles, err := Resolve(outputs, Options{})
	require.NoError(t, err)

	assert.Equal(t, RoleMap{RoleBoxes: 0, RoleScores: 1, RoleClasses: 2}, roles)
}

func TestResolveAmbiguousScores(t *testing.T) {
	outputs := []tensors.Spec{
		spec("", tensors.Float32, 1, 100),
		spec("", tensors.Float32, 1, 100),
		spec("", tensors.Int32, 100),
		spec("", tensors.Float32, 1, 100, 4),
	}

	_, err := Resolve(outputs, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedSignature))

	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, RoleScores, unresolved.Role)
	assert.Equal(t, []int{0, 1}, unresolved.Matches)
	assert.Contains(t, err.Error(), "scores")
}

func TestResolveMissingRole(t *testing.T) {
	outputs := []tensors.Spec{
		spec("", tensors.Float32, 1, 100),
		spec("", tensors.Float32, 1, 100, 4),
	}

	_, err := Resolve(outputs, Options{})
	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, RoleClasses, unresolved.Role)
	assert.Empty(t, unresolved.Matches)
}

// TestResolveDeclaredNames covers TensorFlow object detection signatures where
// classes are float32 and the heuristics alone would be ambiguous.
func TestResolveDeclaredNames(t *testing.T) {
	outputs := []tensors.Spec{
		spec("num_detections:0", tensors.Float32, 1),
		spec("detection_classes:0", tensors.Float32, 1, 100),
		spec("detection_scores:0", tensors.Float32, 1, 100),
		spec("Detection_Boxes", tensors.Float32, 1, 100, 4),
	}

	roles, err := Resolve(outputs, Options{})
	require.NoError(t, err)
	assert.Equal(t, RoleMap{RoleCount: 0, RoleClasses: 1, RoleScores: 2, RoleBoxes: 3}, roles)
}

func TestResolveDuplicateDeclaredNames(t *testing.T) {
	outputs := []tensors.Spec{
		spec("output_boxes", tensors.Float32, 1, 10, 4),
		spec("detection_boxes", tensors.Float32, 1, 10, 4),
	}

	_, err := Resolve(outputs, Options{})
	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, RoleBoxes, unresolved.Role)
}

func TestResolveHints(t *testing.T) {
	outputs := []tensors.Spec{
		spec("", tensors.Float32, 1, 100),
		spec("", tensors.Float32, 1, 100),
		spec("", tensors.Int32, 100),
		spec("", tensors.Float32, 1, 100, 4),
	}

	roles, err := Resolve(outputs, Options{Hints: map[Role]int{RoleScores: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, roles[RoleScores])
	assert.Equal(t, 2, roles[RoleClasses])
	assert.Equal(t, 3, roles[RoleBoxes])

	_, err = Resolve(outputs, Options{Hints: map[Role]int{RoleScores: 9}})
	assert.True(t, errors.Is(err, ErrUnresolvedSignature))
}

func TestResolveAnchorFree(t *testing.T) {
	const labels = 17
	outputs := []tensors.Spec{
		spec("", tensors.Float32, 1, 4*169, FeatureWidth),
		spec("", tensors.Float32, 1, 169, labels),
		spec("", tensors.Float32, 1, 16*169, labels),
		spec("", tensors.Float32, 1, 169, FeatureWidth),
		spec("", tensors.Float32, 1, 4*169, labels),
		spec("", tensors.Float32, 1, 16*169, FeatureWidth),
	}

	roles, err := Resolve(outputs, Options{Strides: []int{1, 2, 4}, LabelCount: labels})
	require.NoError(t, err)

	assert.Equal(t, RoleMap{
		StrideScores(1):   1,
		StrideFeatures(1): 3,
		StrideScores(2):   4,
		StrideFeatures(2): 0,
		StrideScores(4):   2,
		StrideFeatures(4): 5,
	}, roles)
	assert.Equal(t, Role("stride-scores:2"), StrideScores(2))
}

func TestResolveAnchorFreeMissingStride(t *testing.T) {
	outputs := []tensors.Spec{
		spec("", tensors.Float32, 1, 169, 5),
		spec("", tensors.Float32, 1, 169, FeatureWidth),
	}

	_, err := Resolve(outputs, Options{Strides: []int{1, 2}, LabelCount: 5})
	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, StrideScores(2), unresolved.Role)
}

func TestResolveInputDType(t *testing.T) {
	dtype, err := ResolveInputDType([]tensors.Spec{
		spec("scale", tensors.Float32, 1),
		spec("images", tensors.Float16, 1, 3, 416, 416),
	})
	require.NoError(t, err)
	assert.Equal(t, tensors.Float16, dtype)

	_, err = ResolveInputDType(nil)
	assert.True(t, errors.Is(err, tensors.ErrUnknownDType))

	_, err = ResolveInputDType([]tensors.Spec{spec("x", tensors.Unknown, 1, 3, 8, 8)})
	assert.True(t, errors.Is(err, tensors.ErrUnknownDType))
}

func TestRoleMapString(t *testing.T) {
	m := RoleMap{RoleScores: 1, RoleBoxes: 0}
	assert.Equal(t, "boxes=0 scores=1", m.String())
	i, ok := m.Index(RoleScores)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
}
