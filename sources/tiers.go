// Package sources implements the Asset, Remote and Scaled sources. Each
// source fulfils at least one storage tier natively and reaches the other
// through the tier fallbacks in this file.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/pipeline"
	"github.com/Skryldev/image-source/utils"
)

// Env holds the collaborators shared by all sources.
type Env struct {
	// Fetcher runs nested fetches so they coalesce with top-level ones.
	Fetcher *core.Fetcher
	Codec   *core.Codec
	// Files is the file tier used when no request-specific backing exists.
	Files core.Destination

	ChunkSize     int
	MaxImageBytes int64
	// EvictCorrupt deletes a backing file that fails to decode.
	EvictCorrupt bool

	Logger core.Logger
	Hooks  []core.Hook
}

func (e *Env) logger() core.Logger {
	if e.Logger == nil {
		return core.NopLogger()
	}
	return e.Logger
}

// writeFile streams r into req's file atomically.
func (e *Env) writeFile(ctx context.Context, op string, req *core.FileRequest, r io.Reader) error {
	err := utils.WriteFileAtomic(ctx, req.Filename(), utils.Limit(r, e.MaxImageBytes), e.ChunkSize)
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return apperrors.Canceled(op, cerr)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) && e.MaxImageBytes > 0 {
		return apperrors.New(apperrors.CategoryInput, op, fmt.Errorf("image exceeds %d bytes: %w", e.MaxImageBytes, err))
	}
	return apperrors.Wrap(apperrors.CategoryStorage, op, err)
}

// fulfil hands img to req. Ownership of img always passes: it is closed if
// req does not take it.
func fulfil(op string, req *core.MemoryRequest, img core.Image) error {
	if req.TryFulfill(img) {
		return nil
	}
	img.Close()
	if req.Closed() {
		return apperrors.New(apperrors.CategoryCanceled, op, apperrors.ErrRequestClosed)
	}
	if req.IsFulfilled() {
		return nil
	}
	return apperrors.InvalidImage(op, nil)
}

// fileViaMemory fulfils a file request by rendering into a transient memory
// request with fill and encoding the result in the description's format.
func (e *Env) fileViaMemory(ctx context.Context, req *core.FileRequest, fill func(context.Context, *core.MemoryRequest) error) error {
	mem := core.NewMemoryRequest(req.Description(), e.Files)
	defer mem.Close()

	if err := fill(ctx, mem); err != nil {
		return err
	}
	img := mem.Image()
	if img == nil {
		return apperrors.Unfulfilled(req.Address().String())
	}

	p := pipeline.New().
		Use(&pipeline.EncodeStep{Codec: e.Codec, Ext: req.Description().Extension()}).
		AddHook(e.Hooks...)
	out, _, err := p.Run(ctx, &core.ImageData{Image: img})
	if err != nil {
		return err
	}
	return e.writeFile(ctx, "tiers.file_via_memory", req, bytes.NewReader(out.Data))
}

// memoryViaFile is the two-tier policy: decode the backing file when it
// already exists, otherwise fetch the address into the backing tier first.
func (e *Env) memoryViaFile(ctx context.Context, req *core.MemoryRequest) error {
	backing := req.Backing()
	if backing == nil {
		backing = e.Files
	}

	var file *core.FileRequest
	switch r := backing.CreateRequest(req.Description()).(type) {
	case *core.FileRequest:
		file = r
	default:
		return core.UnsupportedRequest("tiers.memory_via_file", r)
	}

	if !file.IsFulfilled() {
		fetched, err := e.Fetcher.FetchFile(ctx, req.Address(), backing)
		if err != nil {
			return err
		}
		file = fetched
	}

	img, err := e.decodeFile(ctx, "tiers.memory_via_file", file.Filename())
	if err != nil {
		return err
	}
	return fulfil("tiers.memory_via_file", req, img)
}

// readFile loads a fulfilled file request's bytes.
func (e *Env) readFile(ctx context.Context, op, name string) ([]byte, error) {
	data, err := utils.ReadFile(ctx, name, e.ChunkSize)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, apperrors.Canceled(op, cerr)
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, op, err)
	}
	return data, nil
}

// decodeFile decodes the file at name at full resolution.
func (e *Env) decodeFile(ctx context.Context, op, name string) (core.Image, error) {
	data, err := e.readFile(ctx, op, name)
	if err != nil {
		return nil, err
	}
	img, err := e.Codec.Decode(ctx, data, 0)
	if err != nil {
		e.evict(name, err)
		return nil, err
	}
	return img, nil
}

// evict removes a cached file whose bytes did not decode.
func (e *Env) evict(name string, cause error) {
	if !e.EvictCorrupt || !errors.Is(cause, apperrors.ErrInvalidImage) {
		return
	}
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		e.logger().Warn("tiers.evict_failed", "file", name, "error", err.Error())
		return
	}
	e.logger().Warn("tiers.evicted_corrupt", "file", name, "error", cause.Error())
}
