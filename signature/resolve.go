package signature

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/tensors"
)

// ErrUnresolvedSignature is returned when a required role cannot be assigned
// to exactly one output.
var ErrUnresolvedSignature = errors.New("unresolved signature")

// UnresolvedError names the role that could not be assigned.
type UnresolvedError struct {
	// Role is the role that has zero or several candidate outputs.
	Role Role
	// Matches are the indices of the outputs that matched the role. Empty when none did.
	Matches []int
}

func (e *UnresolvedError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("%s: no output matches role %q", ErrUnresolvedSignature, e.Role)
	}
	return fmt.Sprintf("%s: role %q is ambiguous between outputs %v", ErrUnresolvedSignature, e.Role, e.Matches)
}

// Is lets errors.Is match the ErrUnresolvedSignature sentinel.
func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolvedSignature
}

// Options steers resolution.
type Options struct {
	// Strides switches to anchor-free resolution for the listed strides.
	Strides []int `json:"strides" yaml:"strides"`
	// LabelCount is the number of classes (background included) of an anchor-free head.
	LabelCount int `json:"label_count" yaml:"label_count"`
	// Hints pins roles to output indices before anything else is tried.
	Hints map[Role]int `json:"hints" yaml:"hints"`
}

// AnchorFree reports whether the options describe a multi-stride head.
func (o Options) AnchorFree() bool {
	return len(o.Strides) > 0
}

// Required returns the roles a model resolved with these options must have.
func (o Options) Required() []Role {
	if o.AnchorFree() {
		roles := make([]Role, 0, 2*len(o.Strides))
		for _, s := range o.Strides {
			roles = append(roles, StrideScores(s), StrideFeatures(s))
		}
		return roles
	}
	return []Role{RoleScores, RoleClasses, RoleBoxes}
}

// Resolve assigns a role to the outputs of a model.
//
// Resolution order:
//  1. Hints from the options.
//  2. Declared names found in the role dictionary (e.g. "detection_boxes").
//  3. Shape heuristics over the outputs not claimed yet. Anchor-free heads
//     match a rank-3 [1, s²·13², labels] score tensor and its rank-3
//     [1, s²·13², 32] feature sibling per stride. Packed heads match a rank-1
//     int32 tensor as classes, a rank-2 tensor as scores and a rank-3 tensor
//     with last dimension 4 as boxes.
//
// Arguments:
//   - outputs: The output descriptors in the order the engine returns them.
//   - opts: Resolution options.
//
// Returns:
//   - RoleMap: The role of each claimed output.
//   - error: An *UnresolvedError when a role matches several outputs or a
//     required role matches none.
func Resolve(outputs []tensors.Spec, opts Options) (RoleMap, error) {
	roles := make(RoleMap)
	claimed := make(map[int]bool)

	assign := func(r Role, matches []int) error {
		if _, done := roles[r]; done {
			return nil
		}
		switch len(matches) {
		case 0:
			return nil
		case 1:
			roles[r] = matches[0]
			claimed[matches[0]] = true
			return nil
		default:
			return &UnresolvedError{Role: r, Matches: matches}
		}
	}

	for r, i := range opts.Hints {
		if i < 0 || i >= len(outputs) {
			return nil, &UnresolvedError{Role: r}
		}
		roles[r] = i
		claimed[i] = true
	}

	byName := make(map[Role][]int)
	for i, out := range outputs {
		if claimed[i] || out.Name == "" {
			continue
		}
		if r, ok := roleForName(out.Name); ok {
			byName[r] = append(byName[r], i)
		}
	}
	for _, r := range []Role{RoleBoxes, RoleScores, RoleClasses, RoleCount} {
		if err := assign(r, byName[r]); err != nil {
			return nil, err
		}
	}

	if opts.AnchorFree() {
		for _, s := range opts.Strides {
			if err := resolveStride(outputs, opts, s, claimed, assign); err != nil {
				return nil, err
			}
		}
	} else {
		heuristics := []struct {
			role  Role
			match func(tensors.Spec) bool
		}{
			{RoleClasses, func(o tensors.Spec) bool { return o.Rank() == 1 && o.DType == tensors.Int32 }},
			{RoleScores, func(o tensors.Spec) bool { return o.Rank() == 2 }},
			{RoleBoxes, func(o tensors.Spec) bool { return o.Rank() == 3 && o.Last() == 4 }},
		}
		for _, h := range heuristics {
			if _, done := roles[h.role]; done {
				continue
			}
			if err := assign(h.role, unclaimed(outputs, claimed, h.match)); err != nil {
				return nil, err
			}
		}
	}

	for _, r := range opts.Required() {
		if _, ok := roles[r]; !ok {
			return nil, &UnresolvedError{Role: r}
		}
	}

	return roles, nil
}

func resolveStride(
	outputs []tensors.Spec,
	opts Options,
	s int,
	claimed map[int]bool,
	assign func(Role, []int) error,
) error {
	cells := s * s * GridBase * GridBase
	onGrid := func(o tensors.Spec) bool {
		return o.Rank() == 3 && o.Shape[1] == cells
	}

	scores := unclaimed(outputs, claimed, func(o tensors.Spec) bool {
		return onGrid(o) && o.Last() == opts.LabelCount
	})
	if err := assign(StrideScores(s), scores); err != nil {
		return err
	}

	features := unclaimed(outputs, claimed, func(o tensors.Spec) bool {
		return onGrid(o) && o.Last() == FeatureWidth
	})
	return assign(StrideFeatures(s), features)
}

func unclaimed(outputs []tensors.Spec, claimed map[int]bool, match func(tensors.Spec) bool) []int {
	var out []int
	for i, o := range outputs {
		if !claimed[i] && match(o) {
			out = append(out, i)
		}
	}
	return out
}

// ResolveInputDType determines the element type a model expects as input.
//
// Arguments:
//   - inputs: The declared model inputs. The first image-like input (rank 4) wins,
//     falling back to the first input.
//
// Returns:
//   - tensors.DType: The input dtype.
//   - error: tensors.ErrUnknownDType when no input is declared or its dtype is unknown.
func ResolveInputDType(inputs []tensors.Spec) (tensors.DType, error) {
	if len(inputs) == 0 {
		return tensors.Unknown, errors.Wrap(tensors.ErrUnknownDType, "model declares no inputs")
	}
	in := inputs[0]
	for _, candidate := range inputs {
		if candidate.Rank() == 4 {
			in = candidate
			break
		}
	}
	if in.DType == tensors.Unknown {
		return tensors.Unknown, errors.Wrapf(tensors.ErrUnknownDType, "input %q", in.Name)
	}
	return in.DType, nil
}

// Lookup returns the output playing role r.
//
// Returns:
//   - *tensors.Tensor: The output tensor.
//   - error: An *UnresolvedError when the role is not mapped or points past the outputs.
func (m RoleMap) Lookup(outputs []*tensors.Tensor, r Role) (*tensors.Tensor, error) {
	i, ok := m[r]
	if !ok || i < 0 || i >= len(outputs) {
		return nil, &UnresolvedError{Role: r}
	}
	return outputs[i], nil
}
