package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestGenerate_Dimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		w, h         int
		scale        int
		wantW, wantH int
	}{
		{name: "landscape shrinks", w: 400, h: 200, scale: 200, wantW: 200, wantH: 100},
		{name: "portrait shrinks", w: 300, h: 600, scale: 100, wantW: 50, wantH: 100},
		{name: "small is not enlarged", w: 50, h: 40, scale: 200, wantW: 50, wantH: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := encodePNG(t, solid(tt.w, tt.h, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

			out, ct, err := New(tt.scale, 0).Generate(src, ".jpg")
			require.NoError(t, err)
			assert.Equal(t, "image/jpeg", ct)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
		})
	}
}

func TestGenerate_FlattensTransparency(t *testing.T) {
	t.Parallel()

	src := encodePNG(t, solid(20, 20, color.NRGBA{R: 0, G: 0, B: 0, A: 0}))
	out, ct, err := New(200, 0).Generate(src, ".PNG")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, a := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
}

func TestGenerate_GIF(t *testing.T) {
	t.Parallel()

	pal := image.NewPaletted(image.Rect(0, 0, 300, 300), color.Palette{color.White, color.Black})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))

	out, ct, err := New(100, 0).Generate(buf.Bytes(), ".gif")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", ct)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "gif", format)
	assert.Equal(t, 100, cfg.Width)
}

func TestGenerate_DecodeError(t *testing.T) {
	t.Parallel()

	_, _, err := New(200, 0).Generate([]byte("not an image"), ".jpg")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestContentType(t *testing.T) {
	t.Parallel()

	for ext, want := range map[string]string{
		".jpg":  "image/jpeg",
		".JPEG": "image/jpeg",
		".tif":  "image/jpeg",
		".tiff": "image/jpeg",
		".bmp":  "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/jpeg",
		"":      "image/jpeg",
	} {
		assert.Equal(t, want, ContentType(ext), ext)
	}
}
