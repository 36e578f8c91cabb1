package core

import (
	"fmt"
	"image"
	"strings"

	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatUnknown Format = "unknown"
)

// FormatForExtension maps a dot-prefixed file extension to a Format.
func FormatForExtension(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "gif":
		return FormatGIF
	}
	return FormatUnknown
}

// Image is a decoded image handle produced by a Decoder. Handles may wrap
// native resources, so owners must Close them.
type Image interface {
	Size() geometry.Size
	// Valid reports whether the handle holds a structurally usable image.
	Valid() bool
	Close() error
}

// Bitmap is an Image backed by a Go image.Image.
type Bitmap struct {
	image.Image
}

// NewBitmap wraps img.
func NewBitmap(img image.Image) *Bitmap { return &Bitmap{Image: img} }

func (b *Bitmap) Size() geometry.Size {
	if b == nil || b.Image == nil {
		return geometry.Size{}
	}
	r := b.Bounds()
	return geometry.Size{Width: r.Dx(), Height: r.Dy()}
}

func (b *Bitmap) Valid() bool { return b != nil && b.Image != nil && b.Size().Valid() }

func (b *Bitmap) Close() error {
	if b != nil {
		b.Image = nil
	}
	return nil
}

// ToImage implements Raster.
func (b *Bitmap) ToImage() (image.Image, error) {
	if !b.Valid() {
		return nil, apperrors.ErrEmptyInput
	}
	return b.Image, nil
}

// Raster is implemented by Image handles that can export Go pixels.
type Raster interface {
	ToImage() (image.Image, error)
}

// ToImage exports img as a Go image.Image.
func ToImage(img Image) (image.Image, error) {
	if img == nil || !img.Valid() {
		return nil, apperrors.ErrEmptyInput
	}
	r, ok := img.(Raster)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot export pixels", apperrors.ErrUnsupportedFormat, img)
	}
	return r.ToImage()
}

// Metadata holds extracted image information without loading pixel data.
type Metadata struct {
	Width     int
	Height    int
	Format    Format
	SizeBytes int64
}

// ImageData is the in-memory representation passed through a pipeline.
// Data holds encoded bytes; Image holds the decoded handle when needed.
type ImageData struct {
	Data   []byte
	Format Format
	Image  Image
	Meta   Metadata

	// Size of the original raw input.
	OriginalSize int64
}

// DecodeOptions controls a decode.
type DecodeOptions struct {
	// MaxPixelSize bounds the longer side of the decoded image; 0 decodes at
	// full resolution. Decoders only ever shrink.
	MaxPixelSize int
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Format  Format
	Quality int // 1-100; 0 = use encoder default
}
