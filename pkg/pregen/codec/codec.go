// Package codec turns original image bytes into thumbnail bytes.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP originals decode through imaging.Decode
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 85

// ErrDecode indicates the original could not be decoded as an image.
var ErrDecode = errors.New("failed to decode image")

// ErrEncode indicates the thumbnail could not be encoded.
var ErrEncode = errors.New("failed to encode thumbnail")

// Codec generates thumbnails that fit a square of Scale pixels.
type Codec struct {
	scale   int
	quality int
}

// New returns a Codec for scale. Non-positive quality uses DefaultQuality.
func New(scale, quality int) *Codec {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Codec{scale: scale, quality: quality}
}

// Scale returns the longest-edge bound in pixels.
func (c *Codec) Scale() int { return c.scale }

// OutputFormat returns the encoding used for an original with extension ext.
// PNG and GIF are preserved; everything else becomes JPEG.
func OutputFormat(ext string) imaging.Format {
	switch strings.ToLower(ext) {
	case ".png":
		return imaging.PNG
	case ".gif":
		return imaging.GIF
	default:
		return imaging.JPEG
	}
}

// ContentType returns the MIME type of thumbnails generated from ext.
func ContentType(ext string) string {
	switch OutputFormat(ext) {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// Generate decodes data, flattens any transparency onto white, shrinks the
// image to fit Scale x Scale and encodes it according to ext. Images already
// within bounds are not enlarged.
func (c *Codec) Generate(data []byte, ext string) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	img = flatten(img)
	thumb := imaging.Fit(img, c.scale, c.scale, imaging.Lanczos)

	var buf bytes.Buffer
	format := OutputFormat(ext)
	var opts []imaging.EncodeOption
	switch format {
	case imaging.JPEG:
		opts = append(opts, imaging.JPEGQuality(c.quality))
	case imaging.PNG:
		opts = append(opts, imaging.PNGCompressionLevel(png.BestCompression))
	}
	if err := imaging.Encode(&buf, thumb, format, opts...); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return buf.Bytes(), ContentType(ext), nil
}

// flatten composites img over an opaque white canvas unless it is already opaque.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
