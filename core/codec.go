package core

import (
	"bytes"
	"context"
	"fmt"

	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/utils"
)

// DefaultQuality is the JPEG quality used for generated images.
const DefaultQuality = 95

// Codec binds format sniffing, the codec registry and a rasterizer into the
// byte-level operations sources need.
type Codec struct {
	Registry Registry
	Raster   Rasterizer
	Quality  int
}

// Decode sniffs data's format and decodes it, shrinking to maxPixelSize when
// positive. Any rejection is reported as InvalidImage.
func (c *Codec) Decode(ctx context.Context, data []byte, maxPixelSize int) (Image, error) {
	if len(data) == 0 {
		return nil, apperrors.InvalidImage("codec.decode", apperrors.ErrEmptyInput)
	}
	format := Format(utils.DetectFormat(data))
	dec, ok := c.Registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.InvalidImage("codec.decode", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	img, err := dec.Decode(ctx, bytes.NewReader(data), DecodeOptions{MaxPixelSize: maxPixelSize})
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Canceled("codec.decode", ctx.Err())
		}
		return nil, apperrors.InvalidImage("codec.decode", err)
	}
	if img == nil || !img.Valid() {
		if img != nil {
			img.Close()
		}
		return nil, apperrors.InvalidImage("codec.decode", nil)
	}
	return img, nil
}

// Measure returns the pixel size of the encoded image in data, or false when
// it cannot be determined.
func (c *Codec) Measure(ctx context.Context, data []byte) (geometry.Size, bool) {
	dec, ok := c.Registry.DecoderFor(Format(utils.DetectFormat(data)))
	if !ok {
		return geometry.Size{}, false
	}
	size, err := dec.DecodeConfig(ctx, bytes.NewReader(data))
	if err != nil || !size.Valid() {
		return geometry.Size{}, false
	}
	return size, true
}

// EncodeFormat picks the output format for ext: the extension's own format
// when an encoder exists for it, JPEG otherwise.
func (c *Codec) EncodeFormat(ext string) Format {
	f := FormatForExtension(ext)
	if _, ok := c.Registry.EncoderFor(f); ok {
		return f
	}
	return FormatJPEG
}

// Encode serialises img in the format chosen for ext.
func (c *Codec) Encode(ctx context.Context, img Image, ext string) ([]byte, error) {
	format := c.EncodeFormat(ext)
	enc, ok := c.Registry.EncoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, "codec.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	quality := c.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	return enc.Encode(ctx, img, EncodeOptions{Format: format, Quality: quality})
}
