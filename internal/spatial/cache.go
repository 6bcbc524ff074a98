package spatial

import (
	"runtime"
	"sync"
	"weak"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/metrics"
)

// Cache maps a collection's identity to the index built from it. Keys are
// weak pointers: the cache never keeps a collection alive, and an entry is
// dropped once its collection has been garbage collected. A value-equal but
// distinct collection is a miss and gets its own index.
type Cache struct {
	mu       sync.Mutex
	entries  map[weak.Pointer[element.Collection]]*Index
	cellSize float64
	sink     metrics.Sink
}

// NewCache returns an empty cache building indexes with cellSize.
func NewCache(cellSize float64, sink metrics.Sink) *Cache {
	return &Cache{
		entries:  make(map[weak.Pointer[element.Collection]]*Index),
		cellSize: cellSize,
		sink:     metrics.OrNop(sink),
	}
}

// Index returns the index for col, building it on first use.
func (c *Cache) Index(col *element.Collection) *Index {
	if col == nil {
		return Build(nil, c.cellSize, c.sink)
	}

	key := weak.Make(col)
	c.mu.Lock()
	ix, ok := c.entries[key]
	c.mu.Unlock()
	c.sink.IndexCacheLookup(ok)
	if ok {
		return ix
	}

	built := Build(col, c.cellSize, c.sink)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ix, ok := c.entries[key]; ok {
		return ix
	}
	c.entries[key] = built
	runtime.AddCleanup(col, c.evict, key)
	return built
}

func (c *Cache) evict(key weak.Pointer[element.Collection]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// QueryRect is Index(col).QueryRect(r).
func (c *Cache) QueryRect(col *element.Collection, r geom.Rect) []element.Element {
	return c.Index(col).QueryRect(r)
}

// QueryNearPoint is Index(col).QueryNearPoint(p, radius).
func (c *Cache) QueryNearPoint(col *element.Collection, p geom.Point, radius float64) []element.Element {
	return c.Index(col).QueryNearPoint(p, radius)
}
