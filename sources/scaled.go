package sources

import (
	"context"

	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/describe"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/pipeline"
)

// DefaultMaxScaleDepth bounds how deeply scaled addresses may nest.
const DefaultMaxScaleDepth = 8

// Scaled renders a scale/crop transform of another address. The memory tier
// is native; file requests are rendered in memory and encoded. The upstream
// is always fetched into the file tier, so it stays cached on disk.
type Scaled struct {
	env      *Env
	raster   core.Rasterizer
	maxDepth int
}

// NewScaled returns a Scaled source drawing with raster.
func NewScaled(env *Env, raster core.Rasterizer, maxDepth int) *Scaled {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxScaleDepth
	}
	return &Scaled{env: env, raster: raster, maxDepth: maxDepth}
}

func (s *Scaled) Describe(addr core.Address) (core.Description, error) {
	return describe.Scaled(addr)
}

func (s *Scaled) Fetch(ctx context.Context, req core.Request) error {
	switch r := req.(type) {
	case *core.FileRequest:
		return s.env.fileViaMemory(ctx, r, s.fetchMemory)
	case *core.MemoryRequest:
		return s.fetchMemory(ctx, r)
	default:
		return core.UnsupportedRequest("scaled.fetch", req)
	}
}

func (s *Scaled) fetchMemory(ctx context.Context, req *core.MemoryRequest) error {
	d, ok := req.Description().(core.ScaledDescription)
	if !ok {
		return wrongDescription("scaled.fetch", req)
	}
	out, err := s.render(ctx, d)
	if err != nil {
		return err
	}
	return fulfil("scaled.fetch", req, out)
}

// render fetches d's source into the file tier, decodes it no larger than
// needed and brings it to d.Size under d.Mode.
func (s *Scaled) render(ctx context.Context, d core.ScaledDescription) (core.Image, error) {
	nested, err := core.EnterNested(ctx, d.Addr, d.Source, s.maxDepth)
	if err != nil {
		return nil, err
	}
	upstream, err := s.env.Fetcher.FetchFile(nested, d.Source, s.env.Files)
	if err != nil {
		return nil, err
	}
	data, err := s.env.readFile(ctx, "scaled.read", upstream.Filename())
	if err != nil {
		return nil, err
	}

	known, ok := s.env.Codec.Measure(ctx, data)
	budget := geometry.DecodeBudget(known, ok, d.Size, d.Mode)

	p := pipeline.New().
		Use(
			&pipeline.DecodeStep{Codec: s.env.Codec, MaxPixelSize: budget},
			&pipeline.ScaleCropStep{Target: d.Size, Mode: d.Mode, Raster: s.raster},
		).
		AddHook(s.env.Hooks...)

	out, _, err := p.Run(ctx, &core.ImageData{Data: data, OriginalSize: int64(len(data))})
	if err != nil {
		pipeline.Release(out)
		s.env.evict(upstream.Filename(), err)
		return nil, err
	}
	return out.Image, nil
}

var _ core.Source = (*Scaled)(nil)
