package pipeline

import (
	"context"
	"fmt"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/geometry"
	"github.com/Skryldev/image-source/utils"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes img.Data into img.Image, downsampling to MaxPixelSize
// when it is positive.
type DecodeStep struct {
	Codec        *core.Codec
	MaxPixelSize int
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if len(img.Data) == 0 {
		return nil, apperrors.InvalidImage(s.Name(), apperrors.ErrEmptyInput)
	}
	decoded, err := s.Codec.Decode(ctx, img.Data, s.MaxPixelSize)
	if err != nil {
		return nil, err
	}

	size := decoded.Size()
	out := *img
	out.Image = decoded
	out.Format = core.Format(utils.DetectFormat(img.Data))
	out.Meta.Format = out.Format
	out.Meta.Width = size.Width
	out.Meta.Height = size.Height
	out.Meta.SizeBytes = int64(len(img.Data))
	return &out, nil
}

// ── Scale / crop ──────────────────────────────────────────────────────────────

// ScaleCropStep brings img.Image to Target under Mode using the geometry
// planner and the Raster collaborator. The input image is closed when it is
// replaced.
type ScaleCropStep struct {
	Target geometry.Size
	Mode   geometry.Mode
	Raster core.Rasterizer
}

func (s *ScaleCropStep) Name() string { return "scale_crop" }

func (s *ScaleCropStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled(s.Name(), err)
	}
	if img.Image == nil || !img.Image.Valid() {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}

	plan, err := geometry.PlanScaleCrop(img.Image.Size(), s.Target, s.Mode)
	if err != nil {
		return nil, err
	}

	var result core.Image
	switch plan.Op {
	case geometry.OpNone:
		return img, nil
	case geometry.OpRender:
		result, err = s.Raster.RenderScaledCropped(ctx, img.Image, plan.Draw, plan.Output)
	case geometry.OpCrop:
		result, err = s.Raster.Crop(ctx, img.Image, plan.Crop)
	default:
		err = fmt.Errorf("unknown plan op %d", plan.Op)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}

	img.Image.Close()
	size := result.Size()
	out := *img
	out.Image = result
	out.Meta.Width = size.Width
	out.Meta.Height = size.Height
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises img.Image in the format chosen for Ext and stores the
// bytes in img.Data. The decoded image stays open.
type EncodeStep struct {
	Codec *core.Codec
	Ext   string
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}
	data, err := s.Codec.Encode(ctx, img.Image, s.Ext)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Data = data
	out.Format = s.Codec.EncodeFormat(s.Ext)
	out.Meta.Format = out.Format
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}

// compile-time interface checks
var (
	_ core.Step = (*DecodeStep)(nil)
	_ core.Step = (*ScaleCropStep)(nil)
	_ core.Step = (*EncodeStep)(nil)
)
