// Package raster implements core.Rasterizer with golang.org/x/image/draw.
package raster

import (
	"context"
	"image"

	"golang.org/x/image/draw"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
)

// Draw renders with an x/image/draw interpolator.
type Draw struct {
	Scaler draw.Scaler
}

// New returns a Draw using Catmull-Rom resampling.
func New() *Draw { return &Draw{Scaler: draw.CatmullRom} }

// RenderScaledCropped draws img scaled into dst on a fresh out-sized canvas.
// Parts of dst outside the canvas are clipped.
func (d *Draw) RenderScaledCropped(ctx context.Context, img core.Image, dst geometry.Rect, out geometry.Size) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("raster.render", err)
	}
	if !out.Valid() || dst.Width <= 0 || dst.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "raster.render", apperrors.ErrInvalidDimensions)
	}
	src, err := core.ToImage(img)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, "raster.render", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, out.Width, out.Height))
	dr := image.Rect(dst.X, dst.Y, dst.X+dst.Width, dst.Y+dst.Height)
	d.scaler().Scale(canvas, dr, src, src.Bounds(), draw.Src, nil)
	return core.NewBitmap(canvas), nil
}

// Crop copies rect out of img, clipped to its bounds.
func (d *Draw) Crop(ctx context.Context, img core.Image, rect geometry.Rect) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("raster.crop", err)
	}
	src, err := core.ToImage(img)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, "raster.crop", err)
	}

	b := src.Bounds()
	r := image.Rect(b.Min.X+rect.X, b.Min.Y+rect.Y, b.Min.X+rect.X+rect.Width, b.Min.Y+rect.Y+rect.Height).Intersect(b)
	if r.Empty() {
		return nil, apperrors.New(apperrors.CategoryInput, "raster.crop", apperrors.ErrInvalidDimensions)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, r.Min, draw.Src)
	return core.NewBitmap(canvas), nil
}

func (d *Draw) scaler() draw.Scaler {
	if d.Scaler == nil {
		return draw.CatmullRom
	}
	return d.Scaler
}

var _ core.Rasterizer = (*Draw)(nil)
