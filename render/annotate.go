// Package render draws detections onto frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/models/projector"
)

// palette cycles per class id so neighbouring classes stay distinguishable.
var palette = []color.RGBA{
	{0, 255, 0, 0},
	{0, 0, 255, 0},
	{255, 0, 0, 0},
	{0, 255, 255, 0},
	{255, 0, 255, 0},
	{255, 255, 0, 0},
	{0, 128, 255, 0},
	{255, 128, 0, 0},
}

// ColorOf returns the box color of a class.
func ColorOf(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Rect converts a pixel box into an image rectangle.
func Rect(b projector.PixelBox) image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Annotate draws each detection's box with its label and score onto img.
//
// Arguments:
//   - img: The frame, in BGR. Modified in place.
//   - dets: The detections, in img pixels.
func Annotate(img *gocv.Mat, dets []projector.Detection) {
	for _, d := range dets {
		c := ColorOf(d.ClassID)
		r := Rect(d.Box)
		gocv.Rectangle(img, r, c, 2)

		label := fmt.Sprintf("%s %.2f", d.Label, d.Score)
		origin := r.Min.Add(image.Pt(0, -4))
		if origin.Y < 10 {
			origin.Y = r.Min.Y + 12
		}
		gocv.PutText(img, label, origin, gocv.FontHersheyPlain, 0.8, c, 2)
	}
}

// AnnotateImage decodes an encoded image, draws the detections and writes
// the result to path. The output format follows the extension of path.
//
// Arguments:
//   - data: The encoded source image.
//   - dets: The detections, in source image pixels.
//   - path: The output file.
//
// Returns:
//   - error: An error if decoding or writing fails.
func AnnotateImage(data []byte, dets []projector.Detection, path string) error {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return errors.Wrap(err, "failed to decode image")
	}
	defer img.Close()
	if img.Empty() {
		return errors.New("failed to decode image: empty frame")
	}

	Annotate(&img, dets)

	if !gocv.IMWrite(path, img) {
		return errors.Errorf("failed to write %s", path)
	}
	return nil
}
