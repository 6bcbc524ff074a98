package element

import (
	"encoding/json"
	"iter"
	"slices"
)

// Collection is an immutable, ordered set of elements keyed by id.
//
// A collection's identity is its pointer: derived collections are always new
// values, even when nothing changed, and caches keyed on a collection must
// never assume two value-equal collections are interchangeable. A nil
// *Collection reads as empty.
type Collection struct {
	items []Element
	index map[string]int
}

// NewCollection builds a collection from items. A repeated id replaces the
// earlier element at its original position.
func NewCollection(items ...Element) *Collection {
	return fromOwned(slices.Clone(items))
}

// Empty returns a new empty collection.
func Empty() *Collection {
	return fromOwned(nil)
}

// fromOwned takes ownership of items.
func fromOwned(items []Element) *Collection {
	c := &Collection{index: make(map[string]int, len(items))}
	c.items = items[:0]
	for _, el := range items {
		if i, ok := c.index[el.ID]; ok {
			c.items[i] = el
			continue
		}
		c.index[el.ID] = len(c.items)
		c.items = append(c.items, el)
	}
	return c
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// At returns the i-th element in order.
func (c *Collection) At(i int) Element {
	return c.items[i]
}

// Get returns the element with the given id.
func (c *Collection) Get(id string) (Element, bool) {
	if c == nil {
		return Element{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Element{}, false
	}
	return c.items[i], true
}

func (c *Collection) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// IDs returns the ids in collection order.
func (c *Collection) IDs() []string {
	ids := make([]string, c.Len())
	for i := range ids {
		ids[i] = c.items[i].ID
	}
	return ids
}

// Slice returns a copy of the elements in order.
func (c *Collection) Slice() []Element {
	if c == nil {
		return []Element{}
	}
	return slices.Clone(c.items)
}

// All iterates the elements in order.
func (c *Collection) All() iter.Seq2[int, Element] {
	return func(yield func(int, Element) bool) {
		for i := 0; i < c.Len(); i++ {
			if !yield(i, c.items[i]) {
				return
			}
		}
	}
}

// Equal reports whether both collections hold the same elements by value in
// the same order.
func (c *Collection) Equal(other *Collection) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i := 0; i < c.Len(); i++ {
		if !Equal(c.items[i], other.items[i]) {
			return false
		}
	}
	return true
}

// Upsert returns a new collection where each element replaces the one with
// the same id in place, or is appended when the id is new.
func (c *Collection) Upsert(els ...Element) *Collection {
	items := make([]Element, 0, c.Len()+len(els))
	items = append(items, c.Slice()...)
	return fromOwned(append(items, els...))
}

// Remove returns a new collection without the given ids.
func (c *Collection) Remove(ids ...string) *Collection {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	items := make([]Element, 0, c.Len())
	for _, el := range c.All() {
		if _, ok := drop[el.ID]; !ok {
			items = append(items, el)
		}
	}
	return fromOwned(items)
}

// Map returns a new collection with fn applied to every element.
func (c *Collection) Map(fn func(Element) Element) *Collection {
	items := make([]Element, 0, c.Len())
	for _, el := range c.All() {
		items = append(items, fn(el))
	}
	return fromOwned(items)
}

// Reorder returns a new collection ordered by order. Ids in order that are
// not present are skipped; elements whose id is missing from order keep
// their relative order and are appended at the end. The second result is
// the number of such appended elements.
func (c *Collection) Reorder(order []string) (*Collection, int) {
	items := make([]Element, 0, c.Len())
	placed := make(map[string]struct{}, c.Len())
	for _, id := range order {
		if _, dup := placed[id]; dup {
			continue
		}
		if el, ok := c.Get(id); ok {
			items = append(items, el)
			placed[id] = struct{}{}
		}
	}
	stragglers := 0
	for _, el := range c.All() {
		if _, ok := placed[el.ID]; !ok {
			items = append(items, el)
			stragglers++
		}
	}
	return fromOwned(items), stragglers
}

func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Slice())
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var items []Element
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*c = *fromOwned(items)
	return nil
}
