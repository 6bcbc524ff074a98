package board

import "github.com/inamate/whiteboard/internal/element"

// Mutation is the serializable updater exchanged with clients. Deletes are
// applied first, then upserts; a non-empty Order then sets the stacking
// order, with unlisted elements kept after the listed ones.
type Mutation struct {
	Upsert []element.Element `json:"upsert,omitempty"`
	Delete []string          `json:"delete,omitempty"`
	Order  []string          `json:"order,omitempty"`
}

// IsEmpty reports whether applying m changes nothing by construction.
func (m Mutation) IsEmpty() bool {
	return len(m.Upsert) == 0 && len(m.Delete) == 0 && len(m.Order) == 0
}

// Apply returns col with m applied.
func (m Mutation) Apply(col *element.Collection) *element.Collection {
	out := col
	if len(m.Delete) > 0 {
		out = out.Remove(m.Delete...)
	}
	if len(m.Upsert) > 0 {
		out = out.Upsert(m.Upsert...)
	}
	if len(m.Order) > 0 {
		out, _ = out.Reorder(m.Order)
	}
	return out
}

// Updater returns m as an Updater.
func (m Mutation) Updater() Updater {
	return m.Apply
}
