package sources

import (
	"context"
	"fmt"
	"io"

	"github.com/Skryldev/image-source/core"
	"github.com/Skryldev/image-source/describe"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/utils"
)

// Asset serves images from a local asset store. Both tiers are native.
type Asset struct {
	env   *Env
	store core.AssetStore
}

// NewAsset returns an Asset source reading from store.
func NewAsset(env *Env, store core.AssetStore) *Asset {
	return &Asset{env: env, store: store}
}

func (s *Asset) Describe(addr core.Address) (core.Description, error) {
	return describe.Asset(addr)
}

func (s *Asset) Fetch(ctx context.Context, req core.Request) error {
	d, ok := req.Description().(core.AssetDescription)
	if !ok {
		return wrongDescription("asset.fetch", req)
	}
	switch r := req.(type) {
	case *core.FileRequest:
		return s.fetchFile(ctx, r, d)
	case *core.MemoryRequest:
		return s.fetchMemory(ctx, r, d)
	default:
		return core.UnsupportedRequest("asset.fetch", req)
	}
}

func (s *Asset) open(ctx context.Context, d core.AssetDescription) (io.ReadCloser, error) {
	if d.Kind == core.AssetThumbnail {
		return s.store.Thumbnail(ctx, d.AssetRef)
	}
	return s.store.Open(ctx, d.AssetRef)
}

func (s *Asset) fetchFile(ctx context.Context, req *core.FileRequest, d core.AssetDescription) error {
	rc, err := s.open(ctx, d)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.env.writeFile(ctx, "asset.fetch_file", req, rc)
}

func (s *Asset) fetchMemory(ctx context.Context, req *core.MemoryRequest, d core.AssetDescription) error {
	rc, err := s.open(ctx, d)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf, err := utils.DrainReader(ctx, utils.Limit(rc, s.env.MaxImageBytes), s.env.ChunkSize)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return apperrors.Canceled("asset.fetch_memory", cerr)
		}
		return apperrors.Wrap(apperrors.CategoryStorage, "asset.fetch_memory", err)
	}
	defer utils.ReleaseBuffer(buf)

	img, err := s.env.Codec.Decode(ctx, buf.Bytes(), 0)
	if err != nil {
		return err
	}
	return fulfil("asset.fetch_memory", req, img)
}

func wrongDescription(op string, req core.Request) error {
	return apperrors.New(apperrors.CategoryInput, op,
		fmt.Errorf("%w: %T for %s", apperrors.ErrUnsupportedRequest, req.Description(), req.Address()))
}

var _ core.Source = (*Asset)(nil)
