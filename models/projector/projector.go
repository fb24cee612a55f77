// Package projector turns normalized candidates into labeled pixel-space
// detections and sorts them into semantic groups.
package projector

import (
	"fmt"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// PixelBox is a box in image pixels.
type PixelBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is a labeled, pixel-space detection. It holds no reference to the
// tensors it was decoded from.
type Detection struct {
	Score       float32  `json:"score"`
	ClassID     int      `json:"class_id"`
	Label       string   `json:"label"`
	Box         PixelBox `json:"box"`
	SourceModel string   `json:"source_model,omitempty"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f [%d %d %d %d]", d.Label, d.Score, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height)
}

// Project converts candidates to detections on a width×height image.
//
// Coordinates are truncated toward zero, never rounded:
// x = trunc(x1·W), y = trunc(y1·H), width = trunc((x2-x1)·W),
// height = trunc((y2-y1)·H). Width and height are floored at 0.
//
// Arguments:
//   - cands: The kept candidates, highest score first.
//   - width: The image width in pixels.
//   - height: The image height in pixels.
//   - labels: The label table. Missing ids are labeled "UNKNOWN:<id>".
//   - source: The name of the model that produced the candidates.
//
// Returns:
//   - []Detection: One detection per candidate, in input order.
//
// Example:
//
// ```go
//
//	dets := projector.Project(kept, 1280, 720, models.COCOLabels, "ssd-mobilenet")
//
// ```
func Project(cands []postprocess.Candidate, width, height int, labels LabelTable, source string) []Detection {
	w, h := float32(width), float32(height)
	out := make([]Detection, 0, len(cands))
	for _, c := range cands {
		out = append(out, Detection{
			Score:   c.Score,
			ClassID: c.ClassID,
			Label:   labels.Name(c.ClassID),
			Box: PixelBox{
				X:      int(c.Box.X1 * w),
				Y:      int(c.Box.Y1 * h),
				Width:  max(int((c.Box.X2-c.Box.X1)*w), 0),
				Height: max(int((c.Box.Y2-c.Box.Y1)*h), 0),
			},
			SourceModel: source,
		})
	}
	return out
}
