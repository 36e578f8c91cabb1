package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-source/adapters/decoder"
	"github.com/Skryldev/image-source/adapters/encoder"
	"github.com/Skryldev/image-source/adapters/raster"
	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/pipeline"
)

func newCodec() *core.Codec {
	reg := core.NewRegistry()
	decoder.Register(reg)
	encoder.Register(reg, core.DefaultQuality)
	return &core.Codec{Registry: reg, Raster: raster.New()}
}

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type recordingHook struct {
	events []string
}

func (h *recordingHook) BeforeStep(_ context.Context, name string, _ *core.ImageData) {
	h.events = append(h.events, "before:"+name)
}

func (h *recordingHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, err error) {
	if err != nil {
		h.events = append(h.events, "error:"+name)
		return
	}
	h.events = append(h.events, "after:"+name)
}

type failStep struct{ err error }

func (s failStep) Name() string { return "fail" }
func (s failStep) Execute(context.Context, *core.ImageData) (*core.ImageData, error) {
	return nil, s.err
}

func TestPipeline_DecodeScaleEncode(t *testing.T) {
	codec := newCodec()
	hook := &recordingHook{}
	p := pipeline.New().
		Use(
			&pipeline.DecodeStep{Codec: codec, MaxPixelSize: 100},
			&pipeline.ScaleCropStep{Target: geometry.Size{Width: 40, Height: 40}, Mode: geometry.Fill, Raster: codec.Raster},
			&pipeline.EncodeStep{Codec: codec, Ext: ".png"},
		).
		AddHook(hook)

	in := pngData(t, 200, 100)
	out, timings, err := p.Run(context.Background(), &core.ImageData{Data: in, OriginalSize: int64(len(in))})
	require.NoError(t, err)
	defer pipeline.Release(out)

	assert.Equal(t, core.FormatPNG, out.Format)
	assert.Equal(t, 40, out.Meta.Width)
	assert.Equal(t, 40, out.Meta.Height)
	assert.Equal(t, int64(len(out.Data)), out.Meta.SizeBytes)
	assert.Len(t, timings, 3)

	cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 40, cfg.Height)

	assert.Equal(t, []string{
		"before:decode", "after:decode",
		"before:scale_crop", "after:scale_crop",
		"before:encode", "after:encode",
	}, hook.events)
}

func TestPipeline_EncodeFallsBackToJPEG(t *testing.T) {
	codec := newCodec()
	p := pipeline.New().Use(
		&pipeline.DecodeStep{Codec: codec},
		&pipeline.EncodeStep{Codec: codec, Ext: ".tiff"},
	)
	out, _, err := p.Run(context.Background(), &core.ImageData{Data: pngData(t, 8, 8)})
	require.NoError(t, err)
	defer pipeline.Release(out)
	assert.Equal(t, core.FormatJPEG, out.Format)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, out.Data[:3])
}

func TestPipeline_ScaleCropNoopKeepsImage(t *testing.T) {
	codec := newCodec()
	p := pipeline.New().Use(
		&pipeline.DecodeStep{Codec: codec},
		&pipeline.ScaleCropStep{Target: geometry.Size{Width: 50, Height: 50}, Mode: geometry.Fit, Raster: codec.Raster},
	)
	out, _, err := p.Run(context.Background(), &core.ImageData{Data: pngData(t, 20, 10)})
	require.NoError(t, err)
	defer pipeline.Release(out)
	assert.Equal(t, geometry.Size{Width: 20, Height: 10}, out.Image.Size())
}

func TestPipeline_StopsOnError(t *testing.T) {
	codec := newCodec()
	hook := &recordingHook{}
	boom := errors.New("boom")
	p := pipeline.New().
		Use(&pipeline.DecodeStep{Codec: codec}, failStep{err: boom}, &pipeline.EncodeStep{Codec: codec}).
		AddHook(hook)

	out, timings, err := p.Run(context.Background(), &core.ImageData{Data: pngData(t, 4, 4)})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, out)
	assert.NotNil(t, out.Image, "the last good value is returned for cleanup")
	pipeline.Release(out)
	assert.Nil(t, out.Image)
	assert.Len(t, timings, 2)
	assert.Equal(t, "error:fail", hook.events[len(hook.events)-1])
}

func TestPipeline_DecodeRejectsGarbage(t *testing.T) {
	p := pipeline.New().Use(&pipeline.DecodeStep{Codec: newCodec()})
	_, _, err := p.Run(context.Background(), &core.ImageData{Data: []byte("definitely not an image")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidImage)

	_, _, err = p.Run(context.Background(), &core.ImageData{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidImage)
}

func TestPipeline_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := pipeline.New().Use(&pipeline.DecodeStep{Codec: newCodec()})
	_, _, err := p.Run(ctx, &core.ImageData{Data: pngData(t, 4, 4)})
	assert.True(t, apperrors.IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Clone(t *testing.T) {
	codec := newCodec()
	base := pipeline.New().Use(&pipeline.DecodeStep{Codec: codec})
	clone := base.Clone().Use(&pipeline.EncodeStep{Codec: codec, Ext: ".png"})

	out, timings, err := base.Run(context.Background(), &core.ImageData{Data: pngData(t, 4, 4)})
	require.NoError(t, err)
	pipeline.Release(out)
	assert.Len(t, timings, 1)

	out, timings, err = clone.Run(context.Background(), &core.ImageData{Data: pngData(t, 4, 4)})
	require.NoError(t, err)
	pipeline.Release(out)
	assert.Len(t, timings, 2)
}
