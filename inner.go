package imagesource

import "github.com/Skryldev/image-source/core"

// Fetcher exposes the underlying single-flight fetcher for advanced use
// (e.g., fetching parsed addresses or inspecting Pending in tests).  Prefer
// the high-level API for normal usage.
func (m *Manager) Fetcher() *core.Fetcher { return m.fetcher }

// Codecs exposes the codec registry so custom decoders and encoders can be
// registered.
func (m *Manager) Codecs() core.Registry { return m.codecs }

// Sources exposes the scheme registry.
func (m *Manager) Sources() *core.SourceRegistry { return m.sources }
