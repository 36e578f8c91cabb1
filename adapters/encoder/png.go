package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
)

// PNG encodes images to PNG format. Quality is ignored.
type PNG struct {
	Level png.CompressionLevel
}

func NewPNG() *PNG { return &PNG{Level: png.DefaultCompression} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img core.Image, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("png.encode", err)
	}

	src, err := core.ToImage(img)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "png.encode", err)
	}

	enc := &png.Encoder{CompressionLevel: p.Level}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, src); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}
