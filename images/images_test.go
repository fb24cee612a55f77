package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/nvr-ai/go-detect/tensors"
)

func getTestImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encoded(t *testing.T, format ImageFormat) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := getTestImage(color.RGBA{R: 255, A: 255})
	switch format {
	case FormatJPEG:
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	case FormatPNG:
		require.NoError(t, png.Encode(&buf, img))
	case FormatWebP:
		require.NoError(t, webp.Encode(&buf, img, &webp.Options{Lossless: true}))
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	for _, format := range []ImageFormat{FormatJPEG, FormatPNG, FormatWebP} {
		t.Run(string(format), func(t *testing.T) {
			img, err := Decode(encoded(t, format))
			require.NoError(t, err)
			assert.Equal(t, format, img.Format)
			assert.Equal(t, image.Pt(100, 100), img.Size())
			assert.Equal(t, 100, img.Width())
			assert.Equal(t, 100, img.Height())
		})
	}

	_, err := Decode([]byte("not an image"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestLoadAndEncode(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.jpg", "c.webp"} {
		path := filepath.Join(dir, name)
		b, err := Encode(path, getTestImage(color.RGBA{G: 255, A: 255}))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, b, 0o600))

		img, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(100, 100), img.Size())
	}

	_, err := Load(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestPrepareInput(t *testing.T) {
	img := getTestImage(color.RGBA{R: 255, G: 0, B: 51, A: 255})

	tests := []struct {
		name   string
		spec   InputSpec
		shape  []int64
		pixel0 [3]float32
		// stride between the channels of one pixel
		channelStride int
	}{
		{
			name:          "float32 nchw",
			spec:          InputSpec{Size: 8, DType: tensors.Float32},
			shape:         []int64{1, 3, 8, 8},
			pixel0:        [3]float32{1, 0, 0.2},
			channelStride: 64,
		},
		{
			name:          "float16 nchw",
			spec:          InputSpec{Size: 8, DType: tensors.Float16, Layout: LayoutNCHW},
			shape:         []int64{1, 3, 8, 8},
			pixel0:        [3]float32{1, 0, 0.2},
			channelStride: 64,
		},
		{
			name:          "uint8 nhwc",
			spec:          InputSpec{Size: 4, DType: tensors.Uint8, Layout: LayoutNHWC},
			shape:         []int64{1, 4, 4, 3},
			pixel0:        [3]float32{255, 0, 51},
			channelStride: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := PrepareInput(img, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, in.Shape)
			assert.Equal(t, tt.spec.DType, in.DType)
			assert.Equal(t, int(tt.shape[1]*tt.shape[2]*tt.shape[3]), in.Len())

			for c := 0; c < 3; c++ {
				idx := c * tt.channelStride
				var got float32
				switch tt.spec.DType {
				case tensors.Float32:
					got = in.Float32[idx]
				case tensors.Float16:
					got = float16.Frombits(in.Float16[idx]).Float32()
				case tensors.Uint8:
					got = float32(in.Uint8[idx])
				}
				delta := 0.01
				if tt.spec.DType == tensors.Uint8 {
					delta = 1
				}
				assert.InDelta(t, tt.pixel0[c], got, delta, "channel %d", c)
			}
		})
	}
}

func TestPrepareInputRejects(t *testing.T) {
	img := getTestImage(color.RGBA{A: 255})

	for _, spec := range []InputSpec{
		{Size: 0, DType: tensors.Float32},
		{Size: 8, DType: tensors.Int32},
		{Size: 8, DType: tensors.Float32, Layout: "chw"},
	} {
		_, err := PrepareInput(img, spec)
		assert.True(t, errors.Is(err, ErrUnsupportedInput), "%+v", spec)
	}
}
