package destination

import "github.com/Skryldev/image-source/core"

// Memory is the in-memory tier. Each request it creates is an empty holder
// whose durable backing is the wrapped File destination.
type Memory struct {
	files *File
}

// NewMemory returns a Memory destination backed by files.
func NewMemory(files *File) *Memory {
	return &Memory{files: files}
}

// Files returns the backing File destination.
func (m *Memory) Files() *File { return m.files }

// ID implements core.Destination.
func (m *Memory) ID() string { return "memory:" + m.files.ID() }

// CreateRequest implements core.Destination.
func (m *Memory) CreateRequest(d core.Description) core.Request {
	return m.CreateMemoryRequest(d)
}

// CreateMemoryRequest is CreateRequest with the concrete type.
func (m *Memory) CreateMemoryRequest(d core.Description) *core.MemoryRequest {
	return core.NewMemoryRequest(d, m.files)
}
