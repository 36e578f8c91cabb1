package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	"github.com/Skryldev/image-source/adapters/decoder"
	"github.com/Skryldev/image-source/adapters/encoder"
	"github.com/Skryldev/image-source/adapters/raster"
	"github.com/Skryldev/image-source/adapters/vips"
	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/pipeline"
)

var backend *vips.Backend

// libvips can only be started once per process.
func TestMain(m *testing.M) {
	backend = vips.NewBackend(vips.BackendConfig{DefaultQuality: 85})
	code := m.Run()
	backend.Shutdown()
	os.Exit(code)
}

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	return buf.Bytes()
}

func vipsCodec() *core.Codec {
	reg := core.NewRegistry()
	vips.RegisterVipsBackend(reg, backend)
	return &core.Codec{Registry: reg, Raster: backend, Quality: 85}
}

func stdlibCodec() *core.Codec {
	reg := core.NewRegistry()
	decoder.Register(reg)
	encoder.Register(reg, 85)
	return &core.Codec{Registry: reg, Raster: raster.New(), Quality: 85}
}

func scaledPipeline(codec *core.Codec, budget int, target geometry.Size, mode geometry.Mode) *pipeline.Pipeline {
	return pipeline.New().Use(
		&pipeline.DecodeStep{Codec: codec, MaxPixelSize: budget},
		&pipeline.ScaleCropStep{Target: target, Mode: mode, Raster: codec.Raster},
		&pipeline.EncodeStep{Codec: codec, Ext: ".jpg"},
	)
}

func runPipeline(b *testing.B, p *pipeline.Pipeline, raw []byte) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, _, err := p.Run(context.Background(), &core.ImageData{Data: raw, OriginalSize: int64(len(raw))})
		pipeline.Release(out)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func benchDecode(b *testing.B, codec *core.Codec, budget int) {
	raw := makeJPEG(b, 1920, 1080)
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		img, err := codec.Decode(context.Background(), raw, budget)
		if err != nil {
			b.Fatal(err)
		}
		img.Close()
	}
}

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) { benchDecode(b, stdlibCodec(), 0) }
func BenchmarkDecode_Vips_1920x1080(b *testing.B)   { benchDecode(b, vipsCodec(), 0) }

// Decoding with a budget is where shrink-on-load pays off.
func BenchmarkDecodeBudget_Stdlib_1080pTo256(b *testing.B) { benchDecode(b, stdlibCodec(), 256) }
func BenchmarkDecodeBudget_Vips_1080pTo256(b *testing.B)   { benchDecode(b, vipsCodec(), 256) }

// ─── Measure ──────────────────────────────────────────────────────────────────

func benchMeasure(b *testing.B, codec *core.Codec) {
	raw := makeJPEG(b, 1920, 1080)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := codec.Measure(context.Background(), raw); !ok {
			b.Fatal("measure failed")
		}
	}
}

func BenchmarkMeasure_Stdlib(b *testing.B) { benchMeasure(b, stdlibCodec()) }
func BenchmarkMeasure_Vips(b *testing.B)   { benchMeasure(b, vipsCodec()) }

// ─── Scale / crop ─────────────────────────────────────────────────────────────

func BenchmarkFit_Stdlib_1920to960(b *testing.B) {
	target := geometry.Size{Width: 960, Height: 960}
	budget := geometry.DecodeBudget(geometry.Size{Width: 1920, Height: 1080}, true, target, geometry.Fit)
	runPipeline(b, scaledPipeline(stdlibCodec(), budget, target, geometry.Fit), makeJPEG(b, 1920, 1080))
}

func BenchmarkFit_Vips_1920to960(b *testing.B) {
	target := geometry.Size{Width: 960, Height: 960}
	budget := geometry.DecodeBudget(geometry.Size{Width: 1920, Height: 1080}, true, target, geometry.Fit)
	runPipeline(b, scaledPipeline(vipsCodec(), budget, target, geometry.Fit), makeJPEG(b, 1920, 1080))
}

func BenchmarkFill_Stdlib_4KtoSquare(b *testing.B) {
	target := geometry.Size{Width: 300, Height: 300}
	budget := geometry.DecodeBudget(geometry.Size{Width: 3840, Height: 2160}, true, target, geometry.Fill)
	runPipeline(b, scaledPipeline(stdlibCodec(), budget, target, geometry.Fill), makeJPEG(b, 3840, 2160))
}

func BenchmarkFill_Vips_4KtoSquare(b *testing.B) {
	target := geometry.Size{Width: 300, Height: 300}
	budget := geometry.DecodeBudget(geometry.Size{Width: 3840, Height: 2160}, true, target, geometry.Fill)
	runPipeline(b, scaledPipeline(vipsCodec(), budget, target, geometry.Fill), makeJPEG(b, 3840, 2160))
}

// ─── Encode ───────────────────────────────────────────────────────────────────

func benchEncode(b *testing.B, codec *core.Codec, ext string) {
	raw := makeJPEG(b, 1280, 720)
	img, err := codec.Decode(context.Background(), raw, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer img.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Encode(context.Background(), img, ext); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeJPEG_Stdlib(b *testing.B) { benchEncode(b, stdlibCodec(), ".jpg") }
func BenchmarkEncodeJPEG_Vips(b *testing.B)   { benchEncode(b, vipsCodec(), ".jpg") }
func BenchmarkEncodeWebP_Vips(b *testing.B)   { benchEncode(b, vipsCodec(), ".webp") }
