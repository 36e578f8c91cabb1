package describe

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Skryldev/image-source/core"
)

// DefaultCacheSize is used when NewCache is given a non-positive size.
const DefaultCacheSize = 1024

// Cache memoises a core.Describer by canonical address. Resolution is pure,
// so a cached description is always == to a fresh one. Errors are not cached.
type Cache struct {
	next  core.Describer
	items *lru.Cache[string, core.Description]
}

// NewCache wraps next with an LRU of the given size.
func NewCache(next core.Describer, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	items, err := lru.New[string, core.Description](size)
	if err != nil {
		return nil, err
	}
	return &Cache{next: next, items: items}, nil
}

// Describe implements core.Describer.
func (c *Cache) Describe(addr core.Address) (core.Description, error) {
	key := addr.String()
	if d, ok := c.items.Get(key); ok {
		return d, nil
	}
	d, err := c.next.Describe(addr)
	if err != nil {
		return nil, err
	}
	c.items.Add(key, d)
	return d, nil
}

// Len returns the number of memoised descriptions.
func (c *Cache) Len() int { return c.items.Len() }

// Purge drops every memoised description.
func (c *Cache) Purge() { c.items.Purge() }

// DescriberFunc adapts a plain function to core.Describer.
type DescriberFunc func(core.Address) (core.Description, error)

func (f DescriberFunc) Describe(addr core.Address) (core.Description, error) { return f(addr) }
