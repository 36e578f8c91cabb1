// Package geometry computes downsample budgets and scale/crop rectangles.
// It never touches pixels: callers hand the resulting Plan to a raster
// collaborator.
package geometry

import (
	"fmt"
	"math"

	apperrors "github.com/Skryldev/image-source/errors"
)

// Size is a pixel size.
type Size struct {
	Width, Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool { return s.Width > 0 && s.Height > 0 }

// Rect is an integer rectangle with its origin at (X, Y).
type Rect struct {
	X, Y, Width, Height int
}

// Size returns the rectangle's dimensions.
func (r Rect) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// Mode selects between aspect-preserving scale without cropping (Fit) and
// with a centered crop to the exact target (Fill).
type Mode int

const (
	Fit Mode = iota
	Fill
)

func (m Mode) String() string {
	if m == Fill {
		return "fill"
	}
	return "fit"
}

// Op is the raster operation a Plan requires.
type Op int

const (
	// OpNone leaves the image as is.
	OpNone Op = iota
	// OpRender draws the scaled image at Plan.Draw into a fresh canvas of
	// Plan.Output.
	OpRender
	// OpCrop cuts Plan.Crop out of the source image without resampling.
	OpCrop
)

func (o Op) String() string {
	switch o {
	case OpRender:
		return "render"
	case OpCrop:
		return "crop"
	default:
		return "none"
	}
}

// Plan is the exact transform for one image.
type Plan struct {
	Op Op
	// Scale is the uniform factor applied to the source.
	Scale float64
	// ScaledSize is the source size after Scale, before any crop.
	ScaledSize Size
	// Offset is the centered crop offset inside ScaledSize.
	Offset Size
	// Output is the final canvas size for OpRender and OpNone.
	Output Size
	// Draw is where the scaled source lands on the Output canvas (OpRender).
	Draw Rect
	// Crop is the source-space rectangle to extract (OpCrop).
	Crop Rect
}

// MaxPixelSize returns the target side along the binding (smaller) scale.
// When the source size is unknown the larger target dimension is used. See
// DecodeBudget for the longer-side bound decoders take.
func MaxPixelSize(source Size, known bool, target Size) int {
	if !known || !source.Valid() {
		return max(target.Width, target.Height)
	}
	widthScale := float64(target.Width) / float64(source.Width)
	heightScale := float64(target.Height) / float64(source.Height)
	if widthScale < heightScale {
		return target.Width
	}
	return target.Height
}

// DecodeBudget returns the longer-side bound to decode source at so that
// PlanScaleCrop under mode still reaches target. Fill needs the short side
// to cover the target, so its budget is the longer side of the cover size.
// Zero means decode at full resolution.
func DecodeBudget(source Size, known bool, target Size, mode Mode) int {
	if !known || !source.Valid() {
		if mode == Fill {
			return 0
		}
		return MaxPixelSize(source, known, target)
	}
	widthScale := float64(target.Width) / float64(source.Width)
	heightScale := float64(target.Height) / float64(source.Height)
	scale := min(widthScale, heightScale)
	if mode == Fill {
		scale = max(widthScale, heightScale)
	}
	if scale >= 1 {
		return 0
	}
	// The epsilon absorbs float error so exact products don't round up.
	return int(math.Ceil(scale*float64(max(source.Width, source.Height)) - 1e-9))
}

// PlanScaleCrop computes the transform that brings an image of size source to
// target under mode. Fit never upsamples an image that is smaller than the
// target in both dimensions.
func PlanScaleCrop(source, target Size, mode Mode) (Plan, error) {
	if !source.Valid() || !target.Valid() {
		return Plan{}, apperrors.New(apperrors.CategoryInput, "geometry.plan",
			fmt.Errorf("%w: source %s target %s", apperrors.ErrInvalidDimensions, source, target))
	}

	unchanged := Plan{Op: OpNone, Scale: 1, ScaledSize: source, Output: source}
	if source == target {
		return unchanged, nil
	}
	if mode == Fit && source.Width < target.Width && source.Height < target.Height {
		return unchanged, nil
	}

	widthScale := float64(target.Width) / float64(source.Width)
	heightScale := float64(target.Height) / float64(source.Height)

	scale := min(widthScale, heightScale)
	if mode == Fill {
		scale = max(widthScale, heightScale)
	}

	var scaled Size
	if scale == widthScale {
		scaled = Size{Width: target.Width, Height: int(float64(source.Height) * scale)}
	} else {
		scaled = Size{Width: int(float64(source.Width) * scale), Height: target.Height}
	}

	out := target
	var offset Size
	if mode == Fit {
		out = scaled
	} else {
		offset = Size{
			Width:  (scaled.Width - target.Width) / 2,
			Height: (scaled.Height - target.Height) / 2,
		}
	}

	p := Plan{Scale: scale, ScaledSize: scaled, Offset: offset, Output: out}
	if scale < 1.0 {
		p.Op = OpRender
		p.Draw = Rect{X: -offset.Width, Y: -offset.Height, Width: scaled.Width, Height: scaled.Height}
		return p, nil
	}

	p.Op = OpCrop
	p.Crop = Rect{
		X:      int(float64(offset.Width) / scale),
		Y:      int(float64(offset.Height) / scale),
		Width:  int(float64(out.Width) / scale),
		Height: int(float64(out.Height) / scale),
	}
	p.Output = p.Crop.Size()
	return p, nil
}
