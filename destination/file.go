// Package destination provides the storage tiers a fetch can target: a
// content-addressed disk cache and a two-tier memory cache backed by it.
package destination

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
)

// Hash algorithms for cache filenames.
const (
	HashSHA1   = "sha1"
	HashBLAKE3 = "blake3"
)

// File is a durable, content-addressed disk cache. The filename for a
// description is the lower-hex digest of its canonical address followed by
// its extension. File is immutable after construction.
type File struct {
	root    string
	algo    string
	newHash func() hash.Hash
}

// FileOption configures a File destination.
type FileOption func(*File) error

// WithHash selects the digest used for filenames.
func WithHash(algo string) FileOption {
	return func(f *File) error {
		switch strings.ToLower(algo) {
		case "", HashSHA1:
			f.algo, f.newHash = HashSHA1, sha1.New
		case HashBLAKE3:
			f.algo, f.newHash = HashBLAKE3, func() hash.Hash { return blake3.New() }
		default:
			return apperrors.New(apperrors.CategoryConfig, "destination.file",
				fmt.Errorf("unknown hash algorithm %q", algo))
		}
		return nil
	}
}

// NewFile creates root if needed and returns a File destination over it.
func NewFile(root string, opts ...FileOption) (*File, error) {
	if root == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "destination.file", fmt.Errorf("empty cache root"))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "destination.file", err)
	}
	f := &File{root: abs, algo: HashSHA1, newHash: sha1.New}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "destination.file", err)
	}
	return f, nil
}

// InCaches returns a File destination rooted at base joined with folders,
// e.g. InCaches(os.UserCacheDir, "images").
func InCaches(base string, folders ...string) (*File, error) {
	return NewFile(filepath.Join(append([]string{base}, folders...)...))
}

// Root returns the absolute cache folder.
func (f *File) Root() string { return f.root }

// Hash returns the digest algorithm name.
func (f *File) Hash() string { return f.algo }

// ID implements core.Destination.
func (f *File) ID() string { return "file:" + f.root }

// Filename returns the cache path for d. It performs no I/O.
func (f *File) Filename(d core.Description) string {
	h := f.newHash()
	h.Write([]byte(d.Address().String()))
	return filepath.Join(f.root, hex.EncodeToString(h.Sum(nil))+d.Extension())
}

// CreateRequest implements core.Destination.
func (f *File) CreateRequest(d core.Description) core.Request {
	return f.CreateFileRequest(d)
}

// CreateFileRequest is CreateRequest with the concrete type.
func (f *File) CreateFileRequest(d core.Description) *core.FileRequest {
	return core.NewFileRequest(f.Filename(d), d)
}

// Remove deletes the cached file for d, if any.
func (f *File) Remove(d core.Description) error {
	err := os.Remove(f.Filename(d))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.New(apperrors.CategoryStorage, "destination.remove", err)
	}
	return nil
}
