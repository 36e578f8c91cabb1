package vips

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder, Encoder and Rasterizer.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = core.DefaultQuality
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF, core.FormatUnknown:
		return true
	}
	return false
}

// Decode loads the image. With a MaxPixelSize budget it uses vips_thumbnail,
// which shrinks on load so the full bitmap is never allocated.
func (b *Backend) Decode(ctx context.Context, r io.Reader, opts core.DecodeOptions) (core.Image, error) {
	raw, err := drain(ctx, r)
	if err != nil {
		return nil, err
	}

	var ref *govips.ImageRef
	if opts.MaxPixelSize > 0 {
		ref, err = govips.NewThumbnailWithSizeFromBuffer(raw, opts.MaxPixelSize, opts.MaxPixelSize,
			govips.InterestingNone, govips.SizeDown)
	} else {
		ref, err = govips.NewImageFromBuffer(raw)
		if err == nil {
			err = ref.AutoRotate()
		}
	}
	if err != nil {
		if ref != nil {
			ref.Close()
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	if err := ctx.Err(); err != nil {
		ref.Close()
		return nil, apperrors.Canceled("vips.decode", err)
	}
	return newImage(ref), nil
}

// DecodeConfig reads the header only; libvips decodes pixels lazily.
func (b *Backend) DecodeConfig(ctx context.Context, r io.Reader) (geometry.Size, error) {
	raw, err := drain(ctx, r)
	if err != nil {
		return geometry.Size{}, err
	}
	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return geometry.Size{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.config", err)
	}
	defer ref.Close()
	return geometry.Size{Width: ref.Width(), Height: ref.Height()}, nil
}

func drain(ctx context.Context, r io.Reader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("vips.decode", err)
	}
	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrEmptyInput)
	}
	return raw, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP:
		return true
	}
	return false
}

func (b *Backend) Encode(ctx context.Context, img core.Image, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("vips.encode", err)
	}

	vi, err := asVips("vips.encode", img)
	if err != nil {
		return nil, err
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	vi.mu.Lock()
	defer vi.mu.Unlock()

	switch opts.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		buf, _, err := vi.ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		buf, _, err := vi.ref.ExportPng(govips.NewPngExportParams())
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.png", err)
		}
		return buf, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		buf, _, err := vi.ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
		}
		return buf, nil

	default:
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, opts.Format))
	}
}

// ─── Rasterizer ───────────────────────────────────────────────────────────────

// RenderScaledCropped resizes a copy of img to draw's size and extracts the
// out-sized window at draw's negated origin.
func (b *Backend) RenderScaledCropped(ctx context.Context, img core.Image, draw geometry.Rect, out geometry.Size) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("vips.render", err)
	}
	vi, err := asVips("vips.render", img)
	if err != nil {
		return nil, err
	}

	ref, err := vi.copyRef()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.render", err)
	}
	hscale := float64(draw.Width) / float64(ref.Width())
	vscale := float64(draw.Height) / float64(ref.Height())
	if err := ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.render", err)
	}
	if err := extract(ref, geometry.Rect{X: -draw.X, Y: -draw.Y, Width: out.Width, Height: out.Height}); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.render", err)
	}
	return newImage(ref), nil
}

// Crop extracts rect from a copy of img.
func (b *Backend) Crop(ctx context.Context, img core.Image, rect geometry.Rect) (core.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("vips.crop", err)
	}
	vi, err := asVips("vips.crop", img)
	if err != nil {
		return nil, err
	}
	ref, err := vi.copyRef()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.crop", err)
	}
	if err := extract(ref, rect); err != nil {
		ref.Close()
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "vips.crop", err)
	}
	return newImage(ref), nil
}

// extract clamps rect to ref's bounds; resize rounding can leave the scaled
// image a pixel short of the planned size.
func extract(ref *govips.ImageRef, rect geometry.Rect) error {
	x, y := max(rect.X, 0), max(rect.Y, 0)
	w := min(rect.Width, ref.Width()-x)
	h := min(rect.Height, ref.Height()-y)
	if w <= 0 || h <= 0 {
		return apperrors.ErrInvalidDimensions
	}
	if x == 0 && y == 0 && w == ref.Width() && h == ref.Height() {
		return nil
	}
	return ref.ExtractArea(x, y, w, h)
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef as a core.Image.
type VipsImage struct {
	mu  sync.Mutex
	ref *govips.ImageRef
}

func newImage(ref *govips.ImageRef) *VipsImage {
	vi := &VipsImage{ref: ref}
	runtime.SetFinalizer(vi, func(v *VipsImage) { v.Close() })
	return vi
}

func (v *VipsImage) Size() geometry.Size {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ref == nil {
		return geometry.Size{}
	}
	return geometry.Size{Width: v.ref.Width(), Height: v.ref.Height()}
}

func (v *VipsImage) Valid() bool { return v != nil && v.Size().Valid() }

// Ref returns the underlying libvips handle, or nil once closed.
func (v *VipsImage) Ref() *govips.ImageRef {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ref
}

// ToImage implements core.Raster.
func (v *VipsImage) ToImage() (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ref == nil {
		return nil, apperrors.ErrEmptyInput
	}
	return v.ref.ToImage(nil)
}

// Close releases the libvips handle. It is idempotent.
func (v *VipsImage) Close() error {
	v.mu.Lock()
	ref := v.ref
	v.ref = nil
	v.mu.Unlock()
	if ref != nil {
		ref.Close()
	}
	return nil
}

func (v *VipsImage) copyRef() (*govips.ImageRef, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ref == nil {
		return nil, apperrors.ErrEmptyInput
	}
	return v.ref.Copy()
}

func asVips(op string, img core.Image) (*VipsImage, error) {
	vi, ok := img.(*VipsImage)
	if !ok || vi == nil || !vi.Valid() {
		return nil, apperrors.New(apperrors.CategoryPipeline, op,
			fmt.Errorf("expected an open *VipsImage; decode with the vips backend first"))
	}
	return vi, nil
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces Go stdlib codecs with libvips for all formats.
// Pair it with the Backend as the Codec's Rasterizer.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
	reg.RegisterDecoder(core.FormatGIF, b)
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Encoder = (*Backend)(nil)
var _ core.Rasterizer = (*Backend)(nil)
var _ core.Image = (*VipsImage)(nil)
var _ core.Raster = (*VipsImage)(nil)
