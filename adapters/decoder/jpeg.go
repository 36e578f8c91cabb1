package decoder

import (
	"context"
	"image/jpeg"
	"io"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader, opts core.DecodeOptions) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("jpeg.decode", err)
	}
	img, err := jpeg.Decode(r)
	return finish(ctx, "jpeg.decode", img, err, opts)
}

func (j *JPEG) DecodeConfig(_ context.Context, r io.Reader) (geometry.Size, error) {
	cfg, err := jpeg.DecodeConfig(r)
	return configSize("jpeg.config", cfg, err)
}
