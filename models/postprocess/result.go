// Package postprocess - Candidates, IoU and Non-Maximum Suppression for detection outputs.
package postprocess

import "fmt"

// BoxOrder is the coordinate order a model family writes its boxes in.
type BoxOrder string

const (
	// BoxOrderYXYX is [y1, x1, y2, x2], the canonical order (TF object detection API).
	BoxOrderYXYX BoxOrder = "yxyx"
	// BoxOrderXYXY is [x1, y1, x2, y2].
	BoxOrderXYXY BoxOrder = "xyxy"
)

// Box is an axis-aligned box in normalized [0, 1] image coordinates.
type Box struct {
	Y1, X1, Y2, X2 float32
}

// BoxFrom builds a Box from four coordinates written in the given order.
//
// Arguments:
//   - v: Four coordinates.
//   - order: The order they are written in. An empty order means BoxOrderYXYX.
//
// Returns:
//   - Box: The box in canonical form.
func BoxFrom(v []float32, order BoxOrder) Box {
	if order == BoxOrderXYXY {
		return Box{Y1: v[1], X1: v[0], Y2: v[3], X2: v[2]}
	}
	return Box{Y1: v[0], X1: v[1], Y2: v[2], X2: v[3]}
}

// Width returns the horizontal extent, or 0 for an inverted box.
func (b Box) Width() float32 {
	return max(b.X2-b.X1, 0)
}

// Height returns the vertical extent, or 0 for an inverted box.
func (b Box) Height() float32 {
	return max(b.Y2-b.Y1, 0)
}

// Area returns Width()*Height().
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

func (b Box) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f %.4f]", b.Y1, b.X1, b.Y2, b.X2)
}

// Candidate is a detection proposal before suppression.
type Candidate struct {
	// Score is the confidence of the proposal in [0, 1].
	Score float32
	// ClassID is the predicted class index.
	ClassID int
	// Box is the normalized box.
	Box Box
	// Stride is the feature-map stride the proposal came from, 0 for packed outputs.
	Stride int
}
