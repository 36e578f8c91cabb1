package core

import (
	"sort"
	"strings"
	"sync"

	apperrors "github.com/Skryldev/image-source/errors"
)

// ── Codec registry ────────────────────────────────────────────────────────────

// DefaultRegistry is a thread-safe implementation of Registry.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders map[Format]Decoder
	encoders map[Format]Encoder
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		decoders: make(map[Format]Decoder),
		encoders: make(map[Format]Encoder),
	}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	r.decoders[f] = d
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	r.encoders[f] = e
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	d, ok := r.decoders[f]
	r.mu.RUnlock()
	return d, ok
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	e, ok := r.encoders[f]
	r.mu.RUnlock()
	return e, ok
}

// ── Source registry ───────────────────────────────────────────────────────────

// SourceRegistry maps address schemes to Sources. It also acts as the
// Describer that dispatches on scheme.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewSourceRegistry returns an empty SourceRegistry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{sources: make(map[string]Source)}
}

// Register binds scheme to src, replacing any previous binding.
func (r *SourceRegistry) Register(scheme string, src Source) {
	r.mu.Lock()
	r.sources[strings.ToLower(scheme)] = src
	r.mu.Unlock()
}

// SourceFor returns the source bound to scheme.
func (r *SourceRegistry) SourceFor(scheme string) (Source, error) {
	r.mu.RLock()
	src, ok := r.sources[strings.ToLower(scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.SourceNotFound(scheme)
	}
	return src, nil
}

// Describe resolves addr through the source registered for its scheme.
func (r *SourceRegistry) Describe(addr Address) (Description, error) {
	src, err := r.SourceFor(addr.Scheme())
	if err != nil {
		return nil, err
	}
	return src.Describe(addr)
}

// Schemes lists the registered schemes in sorted order.
func (r *SourceRegistry) Schemes() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sources))
	for s := range r.sources {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
