// Package storage provides the byte stores behind the Asset and Remote
// sources.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
	"github.com/Skryldev/image-source/utils"
)

// ThumbnailDir is the subdirectory of a Local root holding thumbnails.
const ThumbnailDir = ".thumbnails"

// Local is an asset store on the local filesystem. An asset reference
// "scheme://host/p" maps to <root>/host/p; its thumbnail lives at
// <root>/.thumbnails/host/p.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local asset store rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

// Root returns the store's root directory.
func (l *Local) Root() string { return l.rootDir }

// relPath maps ref to a slash-separated path that cannot escape the root.
func relPath(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", apperrors.Malformed(ref, err.Error())
	}
	rel := path.Clean("/" + u.Host + "/" + u.Path)
	if rel == "/" {
		return "", apperrors.Malformed(ref, "empty asset reference")
	}
	return rel, nil
}

func (l *Local) absPath(ref string, thumbnail bool) (string, error) {
	rel, err := relPath(ref)
	if err != nil {
		return "", err
	}
	if thumbnail {
		return filepath.Join(l.rootDir, ThumbnailDir, filepath.FromSlash(rel)), nil
	}
	return filepath.Join(l.rootDir, filepath.FromSlash(rel)), nil
}

// Open returns the full-resolution bytes for ref.
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return l.open(ctx, "local.open", ref, false)
}

// Thumbnail returns the stored thumbnail for ref, falling back to the full
// image when no thumbnail was stored.
func (l *Local) Thumbnail(ctx context.Context, ref string) (io.ReadCloser, error) {
	rc, err := l.open(ctx, "local.thumbnail", ref, true)
	if errors.Is(err, apperrors.ErrNotFound) {
		return l.open(ctx, "local.open", ref, false)
	}
	return rc, err
}

func (l *Local) open(ctx context.Context, op, ref string, thumbnail bool) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled(op, err)
	}
	p, err := l.absPath(ref, thumbnail)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("%w: %s", apperrors.ErrNotFound, ref))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, op, err)
	}
	return f, nil
}

// Put stores r as the full image (or thumbnail) for ref.
func (l *Local) Put(ctx context.Context, ref string, r io.Reader, thumbnail bool) error {
	p, err := l.absPath(ref, thumbnail)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.mkdir", err)
	}
	if err := utils.WriteFileAtomic(ctx, p, r, 0); err != nil {
		if ctx.Err() != nil {
			return apperrors.Canceled("local.put", ctx.Err())
		}
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}
	return os.Chmod(p, l.permissions)
}

// Delete removes the image and thumbnail for ref.
func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Canceled("local.delete", err)
	}
	for _, thumb := range []bool{false, true} {
		p, err := l.absPath(ref, thumb)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
		}
	}
	return nil
}

// Exists reports whether a full image is stored for ref.
func (l *Local) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Canceled("local.exists", err)
	}
	p, err := l.absPath(ref, false)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists.stat", err)
}

var _ core.AssetStore = (*Local)(nil)
