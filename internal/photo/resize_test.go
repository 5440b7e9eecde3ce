package photo

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.NRGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func newResizer(maxDim int) *Resizer {
	cfg := config.DefaultPolicyConfig()
	cfg.PhotoMaxDimension = maxDim
	return NewResizer(config.NewStaticPolicyHolder(cfg), zap.NewNop())
}

func TestResizeScalesLandscapeDown(t *testing.T) {
	got := newResizer(100).Resize(encodePNG(t, 400, 200))

	assert.True(t, got.Resized)
	assert.Equal(t, MimeJPEG, got.MimeType)
	assert.Equal(t, 100, got.Width)
	assert.Equal(t, 50, got.Height)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(got.Content))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
}

func TestResizeScalesPortraitDown(t *testing.T) {
	got := newResizer(120).Resize(encodePNG(t, 60, 240))

	assert.Equal(t, 30, got.Width)
	assert.Equal(t, 120, got.Height)
}

func TestResizeKeepsSmallJPEG(t *testing.T) {
	raw := encodeJPEG(t, 40, 30)
	got := newResizer(100).Resize(raw)

	assert.False(t, got.Resized)
	assert.Equal(t, raw, got.Content)
	assert.Equal(t, MimeJPEG, got.MimeType)
}

func TestResizeReencodesSmallPNG(t *testing.T) {
	got := newResizer(100).Resize(encodePNG(t, 20, 10))

	assert.False(t, got.Resized)
	assert.Equal(t, MimeJPEG, got.MimeType)
	assert.Equal(t, 20, got.Width)
}

func TestResizeFallsBackToOriginal(t *testing.T) {
	raw := []byte("definitely not an image")
	got := newResizer(100).Resize(raw)

	assert.Equal(t, raw, got.Content)
	assert.False(t, got.Resized)
	assert.Equal(t, "text/plain; charset=utf-8", got.MimeType)
}

func TestCheckSizeRefusesOversizedHeader(t *testing.T) {
	cfg := config.DefaultPolicyConfig()
	cfg.PhotoMaxPixels = 100 * 100
	r := NewResizer(config.NewStaticPolicyHolder(cfg), zap.NewNop())

	assert.ErrorIs(t, r.CheckSize(encodePNG(t, 200, 200)), ErrTooLarge)
	assert.NoError(t, r.CheckSize(encodePNG(t, 100, 100)))
	assert.NoError(t, r.CheckSize([]byte("not an image")))
}

func TestFitRefusesBeforeDecoding(t *testing.T) {
	_, err := Fit(encodePNG(t, 300, 300), 100, 200*200, 80)
	assert.ErrorIs(t, err, ErrTooLarge)

	got, err := Fit(encodePNG(t, 300, 300), 100, 0, 80)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Width)
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(1000, 1, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 1, h)

	w, h = fitWithin(50, 50, 0)
	assert.Equal(t, 50, w)
	assert.Equal(t, 50, h)
}
