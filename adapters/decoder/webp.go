package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/utils"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// NOTE: x/image/webp does not decode animated WebP; use the vips backend
// for those.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader, opts core.DecodeOptions) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("webp.decode", err)
	}

	// Drain through the pooled buffer so cancellation is observed per chunk.
	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.drain", err)
	}
	defer utils.ReleaseBuffer(buf)

	img, err := webp.Decode(utils.BytesReader(buf.Bytes()))
	return finish(ctx, "webp.decode", img, err, opts)
}

func (w *WebP) DecodeConfig(_ context.Context, r io.Reader) (geometry.Size, error) {
	cfg, err := webp.DecodeConfig(r)
	return configSize("webp.config", cfg, err)
}
