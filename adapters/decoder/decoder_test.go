package decoder_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-source/adapters/decoder"
	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestDecode_FullResolution(t *testing.T) {
	tests := []struct {
		name string
		dec  core.Decoder
		data []byte
	}{
		{"png", decoder.NewPNG(), encodePNG(t, 64, 32)},
		{"jpeg", decoder.NewJPEG(), encodeJPEG(t, 64, 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := tt.dec.Decode(context.Background(), bytes.NewReader(tt.data), core.DecodeOptions{})
			require.NoError(t, err)
			defer img.Close()
			assert.True(t, img.Valid())
			assert.Equal(t, geometry.Size{Width: 64, Height: 32}, img.Size())
		})
	}
}

func TestDecode_BudgetShrinks(t *testing.T) {
	img, err := decoder.NewPNG().Decode(context.Background(), bytes.NewReader(encodePNG(t, 200, 100)),
		core.DecodeOptions{MaxPixelSize: 50})
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 50, Height: 25}, img.Size())

	// A budget larger than the image never enlarges it.
	img, err = decoder.NewPNG().Decode(context.Background(), bytes.NewReader(encodePNG(t, 20, 10)),
		core.DecodeOptions{MaxPixelSize: 500})
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 20, Height: 10}, img.Size())
}

func TestDecodeConfig(t *testing.T) {
	size, err := decoder.NewJPEG().DecodeConfig(context.Background(), bytes.NewReader(encodeJPEG(t, 33, 17)))
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 33, Height: 17}, size)

	_, err = decoder.NewPNG().DecodeConfig(context.Background(), bytes.NewReader([]byte("nope")))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := decoder.NewPNG().Decode(context.Background(), bytes.NewReader([]byte("\x89PNG garbage")), core.DecodeOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
}

func TestDecode_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := decoder.NewJPEG().Decode(ctx, bytes.NewReader(encodeJPEG(t, 8, 8)), core.DecodeOptions{})
	assert.True(t, apperrors.IsCanceled(err))
}

func TestRegister(t *testing.T) {
	reg := core.NewRegistry()
	decoder.Register(reg)
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		d, ok := reg.DecoderFor(f)
		require.True(t, ok, f)
		assert.True(t, d.CanDecode(f))
	}
}
