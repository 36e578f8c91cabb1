// Package decoder provides format-specific image decoders built on the
// standard library and golang.org/x/image.
package decoder

import (
	"context"
	"image"

	"golang.org/x/image/draw"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/utils"
)

// Register installs the JPEG, PNG and WebP decoders into reg.
func Register(reg core.Registry) {
	reg.RegisterDecoder(core.FormatJPEG, NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, NewPNG())
	reg.RegisterDecoder(core.FormatWebP, NewWebP())
}

// finish turns a stdlib decode result into a core.Image, honouring the
// MaxPixelSize budget.
func finish(ctx context.Context, op string, img image.Image, err error, opts core.DecodeOptions) (core.Image, error) {
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled(op, err)
	}
	return core.NewBitmap(shrink(img, opts.MaxPixelSize)), nil
}

// shrink downsamples img so its longer side is at most maxPixelSize. It never
// enlarges.
func shrink(img image.Image, maxPixelSize int) image.Image {
	b := img.Bounds()
	w, h := utils.FitWithin(b.Dx(), b.Dy(), maxPixelSize)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func configSize(op string, cfg image.Config, err error) (geometry.Size, error) {
	if err != nil {
		return geometry.Size{}, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	return geometry.Size{Width: cfg.Width, Height: cfg.Height}, nil
}
