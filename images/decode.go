// Package images decodes images and packs them into model inputs.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// ErrUnsupportedFormat is returned for images that are not JPEG, PNG or WebP.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is a decoded image with the format it was stored in.
type Image struct {
	Format ImageFormat
	image.Image
}

// Width returns the width of the image in pixels.
func (i *Image) Width() int { return i.Bounds().Dx() }

// Height returns the height of the image in pixels.
func (i *Image) Height() int { return i.Bounds().Dy() }

// Size returns the image size in pixels.
func (i *Image) Size() image.Point { return i.Bounds().Size() }

// FormatOf sniffs the format of encoded image bytes from their magic number.
func FormatOf(b []byte) (ImageFormat, error) {
	switch {
	case bytes.HasPrefix(b, []byte{0xff, 0xd8, 0xff}):
		return FormatJPEG, nil
	case bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, nil
	case len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return FormatWebP, nil
	}
	return "", ErrUnsupportedFormat
}

// Decode decodes JPEG, PNG or WebP bytes.
//
// Arguments:
//   - b: The encoded image.
//
// Returns:
//   - *Image: The decoded image.
//   - error: ErrUnsupportedFormat, or a decoder error.
func Decode(b []byte) (*Image, error) {
	if len(b) == 0 {
		return nil, errors.New("empty image data")
	}

	format, err := FormatOf(b)
	if err != nil {
		return nil, err
	}

	var img image.Image
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(b))
	case FormatPNG:
		img, err = png.Decode(bytes.NewReader(b))
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(b))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", format)
	}

	return &Image{Format: format, Image: img}, nil
}

// Load reads and decodes an image file.
func Load(path string) (*Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %s", path)
	}
	img, err := Decode(b)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return img, nil
}

// Encode encodes img in the format implied by the extension of path.
// Unknown extensions encode as JPEG.
func Encode(path string, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: 90})
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", path)
	}
	return buf.Bytes(), nil
}
