package core

import (
	"context"
	"io"
	"time"

	"github.com/Skryldev/image-source/geometry"
)

// Source fulfils requests for one address scheme.
type Source interface {
	// Describe parses addr into this scheme's Description.
	Describe(addr Address) (Description, error)
	// Fetch fulfils req in place. Implementations poll ctx at I/O boundaries.
	Fetch(ctx context.Context, req Request) error
}

// Describer resolves addresses into descriptions.
type Describer interface {
	Describe(addr Address) (Description, error)
}

// Destination derives a Request for one storage tier from a Description.
// CreateRequest is deterministic and performs no I/O.
type Destination interface {
	// ID identifies the destination in the pending-fetch registry.
	ID() string
	CreateRequest(d Description) Request
}

// Decoder turns encoded bytes into an Image handle.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, opts DecodeOptions) (Image, error)
	// DecodeConfig measures the image without decoding pixels.
	DecodeConfig(ctx context.Context, r io.Reader) (geometry.Size, error)
	CanDecode(format Format) bool
}

// Encoder serialises an Image to bytes in a target format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, img Image, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// Rasterizer performs the pixel work described by a geometry.Plan.
type Rasterizer interface {
	// RenderScaledCropped draws img scaled into draw on a fresh canvas of size out.
	RenderScaledCropped(ctx context.Context, img Image, draw geometry.Rect, out geometry.Size) (Image, error)
	// Crop extracts rect from img without resampling.
	Crop(ctx context.Context, img Image, rect geometry.Rect) (Image, error)
}

// AssetStore provides bytes for local asset references.
type AssetStore interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Thumbnail(ctx context.Context, ref string) (io.ReadCloser, error)
}

// RemoteClient provides bytes for remote file paths.
type RemoteClient interface {
	Open(ctx context.Context, path string, kind RemoteKind) (io.ReadCloser, error)
}

// MetricsCollector receives observations from the fetch orchestrator and
// from pipeline hooks.
type MetricsCollector interface {
	RecordFetchTime(scheme string, d time.Duration)
	RecordCacheHit(scheme string)
	RecordCoalesced(scheme string)
	RecordError(scheme string, category string)
	RecordStepTime(step string, d time.Duration)
	RecordThroughput(bytes int64)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Step is a pipeline building block. Each Step transforms an *ImageData
// value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
