package decoder

import (
	"context"
	"image/png"
	"io"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Decode(ctx context.Context, r io.Reader, opts core.DecodeOptions) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("png.decode", err)
	}
	img, err := png.Decode(r)
	return finish(ctx, "png.decode", img, err, opts)
}

func (p *PNG) DecodeConfig(_ context.Context, r io.Reader) (geometry.Size, error) {
	cfg, err := png.DecodeConfig(r)
	return configSize("png.config", cfg, err)
}
