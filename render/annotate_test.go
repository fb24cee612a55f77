package render

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/models/projector"
)

func TestColorOf(t *testing.T) {
	assert.Equal(t, ColorOf(1), ColorOf(1+len(palette)))
	assert.NotEqual(t, ColorOf(1), ColorOf(2))
	assert.Equal(t, ColorOf(3), ColorOf(-3))
}

func TestRect(t *testing.T) {
	assert.Equal(t, image.Rect(10, 20, 40, 60), Rect(projector.PixelBox{X: 10, Y: 20, Width: 30, Height: 40}))
}

func TestAnnotate(t *testing.T) {
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	Annotate(&img, []projector.Detection{
		{Score: 0.9, ClassID: 1, Label: "person", Box: projector.PixelBox{X: 10, Y: 10, Width: 50, Height: 50}},
	})

	// The top edge of the box is drawn in the class color (BGR order).
	c := ColorOf(1)
	px := img.GetVecbAt(10, 30)
	assert.Equal(t, []uint8{c.B, c.G, c.R}, []uint8{px[0], px[1], px[2]})
	// Pixels far from the box stay black.
	assert.Equal(t, uint8(0), img.GetVecbAt(90, 90)[1])
}

func TestAnnotateImage(t *testing.T) {
	src := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer src.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, src)
	require.NoError(t, err)
	defer buf.Close()

	out := filepath.Join(t.TempDir(), "out.png")
	err = AnnotateImage(buf.GetBytes(), []projector.Detection{
		{Score: 0.5, ClassID: 2, Label: "dog", Box: projector.PixelBox{X: 4, Y: 4, Width: 20, Height: 20}},
	}, out)
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, AnnotateImage([]byte("nope"), nil, out))
}
