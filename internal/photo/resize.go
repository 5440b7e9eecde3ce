// Package photo downsizes report photos before they are stored.
package photo

import (
	"bytes"
	"errors"
	"image"
	stddraw "image/draw"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/smallbiznis/fieldops/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const MimeJPEG = "image/jpeg"

var ErrTooLarge = errors.New("photo_too_large")

var Module = fx.Module("photo",
	fx.Provide(NewResizer),
)

// Result is what gets persisted for one uploaded photo.
type Result struct {
	Content  []byte
	MimeType string
	Width    int
	Height   int
	Resized  bool
}

type Resizer struct {
	policy *config.PolicyConfigHolder
	log    *zap.Logger
}

func NewResizer(policy *config.PolicyConfigHolder, log *zap.Logger) *Resizer {
	return &Resizer{policy: policy, log: log.Named("photo.resizer")}
}

// Resize fits the photo within the configured max dimension and re-encodes it
// as JPEG. Any failure keeps the original bytes.
func (r *Resizer) Resize(raw []byte) Result {
	cfg := r.policy.Get()
	out, err := Fit(raw, cfg.PhotoMaxDimension, cfg.PhotoMaxPixels, cfg.PhotoJPEGQuality)
	if err != nil {
		r.log.Warn("photo resize failed, keeping original", zap.Int("bytes", len(raw)), zap.Error(err))
		return Original(raw)
	}
	return out
}

// CheckSize reads only the image header and returns ErrTooLarge when the
// decoded bitmap would exceed the configured pixel budget. Unreadable input
// passes; Resize keeps it as is.
func (r *Resizer) CheckSize(raw []byte) error {
	return checkPixels(raw, r.policy.Get().PhotoMaxPixels)
}

// Original wraps raw bytes untouched.
func Original(raw []byte) Result {
	return Result{Content: raw, MimeType: http.DetectContentType(raw)}
}

// Fit decodes png, jpeg or webp input and scales it down so that neither side
// exceeds maxDim. Input larger than maxPixels is refused before decoding.
// JPEG input that already fits is returned as is.
func Fit(raw []byte, maxDim, maxPixels, quality int) (Result, error) {
	if err := checkPixels(raw, maxPixels); err != nil {
		return Result{}, err
	}
	src, format, err := decode(raw)
	if err != nil {
		return Result{}, err
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	tw, th := fitWithin(w, h, maxDim)

	if tw == w && th == h && format == "jpeg" {
		return Result{Content: raw, MimeType: MimeJPEG, Width: w, Height: h}, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	stddraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, stddraw.Src)
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, stddraw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return Result{}, err
	}
	return Result{
		Content:  out.Bytes(),
		MimeType: MimeJPEG,
		Width:    tw,
		Height:   th,
		Resized:  tw != w || th != h,
	}, nil
}

func checkPixels(raw []byte, maxPixels int) error {
	if maxPixels <= 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		cfg, err = webp.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return nil
		}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return ErrTooLarge
	}
	return nil
}

func decode(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, format, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, "webp", nil
	}
	return nil, "", err
}

func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
