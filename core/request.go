package core

import (
	"fmt"
	"os"
	"sync"

	apperrors "github.com/Skryldev/image-source/errors"
)

// Request is a handle for an artifact in one storage tier. The concrete
// types are *FileRequest and *MemoryRequest; code that needs the tier uses
// an exhaustive type switch and fails with ErrUnsupportedRequest otherwise.
type Request interface {
	Description() Description
	Address() Address
	// IsFulfilled reports whether the artifact exists in this tier.
	IsFulfilled() bool
	request()
}

// UnsupportedRequest returns the error for a Request of unknown kind.
func UnsupportedRequest(op string, req Request) error {
	return apperrors.New(apperrors.CategoryInput, op, fmt.Errorf("%w: %T", apperrors.ErrUnsupportedRequest, req))
}

// ── FileRequest ───────────────────────────────────────────────────────────────

// FileRequest is fulfilled once a regular file exists at Filename.
type FileRequest struct {
	filename    string
	description Description
}

// NewFileRequest builds a FileRequest. It performs no I/O.
func NewFileRequest(filename string, d Description) *FileRequest {
	return &FileRequest{filename: filename, description: d}
}

func (r *FileRequest) Filename() string         { return r.filename }
func (r *FileRequest) Description() Description { return r.description }
func (r *FileRequest) Address() Address         { return r.description.Address() }
func (*FileRequest) request()                   {}

func (r *FileRequest) IsFulfilled() bool {
	fi, err := os.Stat(r.filename)
	return err == nil && fi.Mode().IsRegular()
}

// ── MemoryRequest ─────────────────────────────────────────────────────────────

// MemoryRequest is fulfilled once it holds a valid decoded Image. TryFulfill
// is the only mutator; Close releases the image and makes the request inert.
type MemoryRequest struct {
	description Description
	backing     Destination

	mu     sync.Mutex
	img    Image
	closed bool
}

// NewMemoryRequest builds an empty MemoryRequest whose durable tier is backing.
func NewMemoryRequest(d Description, backing Destination) *MemoryRequest {
	return &MemoryRequest{description: d, backing: backing}
}

func (r *MemoryRequest) Description() Description { return r.description }
func (r *MemoryRequest) Address() Address         { return r.description.Address() }
func (*MemoryRequest) request()                   {}

// Backing returns the file-tier destination this request falls back to.
func (r *MemoryRequest) Backing() Destination { return r.backing }

func (r *MemoryRequest) IsFulfilled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.img != nil && !r.closed
}

// Image returns the decoded image, or nil while unfulfilled.
func (r *MemoryRequest) Image() Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.img
}

// TryFulfill stores img when it is valid and the request is still empty and
// open. It reports whether the request took ownership of img.
func (r *MemoryRequest) TryFulfill(img Image) bool {
	if img == nil || !img.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.img != nil {
		return false
	}
	r.img = img
	return true
}

// Close releases the held image. It is idempotent; after Close the request
// is permanently unfulfilled and rejects TryFulfill.
func (r *MemoryRequest) Close() error {
	r.mu.Lock()
	img := r.img
	r.img = nil
	r.closed = true
	r.mu.Unlock()

	if img != nil {
		return img.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (r *MemoryRequest) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
