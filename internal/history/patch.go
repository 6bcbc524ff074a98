package history

import (
	"slices"

	"github.com/inamate/whiteboard/internal/element"
)

// Diff builds the patch taking prev to next. Elements are matched by id:
// Added follows next's order, Removed follows prev's order and Updated
// follows next's order.
func Diff(prev, next *element.Collection) Entry {
	p := Entry{
		Kind:        KindPatch,
		BeforeOrder: prev.IDs(),
		AfterOrder:  next.IDs(),
	}
	for _, after := range next.All() {
		before, ok := prev.Get(after.ID)
		switch {
		case !ok:
			p.Added = append(p.Added, after)
		case !element.Equal(before, after):
			p.Updated = append(p.Updated, Update{Before: before, After: after})
		}
	}
	for _, before := range prev.All() {
		if !next.Has(before.ID) {
			p.Removed = append(p.Removed, before)
		}
	}
	return p
}

// IsNoop reports whether applying the patch changes nothing, including the
// element order.
func (e Entry) IsNoop() bool {
	return !e.IsSnapshot() && e.Changes() == 0 && slices.Equal(e.BeforeOrder, e.AfterOrder)
}

// ChangeRatio is the share of elements touched by patch relative to the
// larger of the two states.
func ChangeRatio(patch Entry, prev, next *element.Collection) float64 {
	return float64(patch.Changes()) / float64(max(1, prev.Len(), next.Len()))
}

// encode picks the stored form for a transition.
func encode(patch Entry, prev, next *element.Collection) Entry {
	if ChangeRatio(patch, prev, next) >= SnapshotThreshold {
		return NewSnapshot(next)
	}
	return patch
}

// Apply applies patch to current in the given direction and returns the new
// collection along with the number of elements the target order did not
// mention. Those are appended in their current relative order; a non-zero
// count means the patch was not built from current's state.
func Apply(current *element.Collection, patch Entry, dir Direction) (*element.Collection, int) {
	if dir == Undo {
		next := current.Remove(ids(patch.Added)...)
		restore := make([]element.Element, 0, len(patch.Updated)+len(patch.Removed))
		for _, u := range patch.Updated {
			restore = append(restore, u.Before)
		}
		restore = append(restore, patch.Removed...)
		return next.Upsert(restore...).Reorder(patch.BeforeOrder)
	}

	next := current.Remove(ids(patch.Removed)...)
	insert := make([]element.Element, 0, len(patch.Updated)+len(patch.Added))
	for _, u := range patch.Updated {
		insert = append(insert, u.After)
	}
	insert = append(insert, patch.Added...)
	return next.Upsert(insert...).Reorder(patch.AfterOrder)
}

func ids(els []element.Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.ID
	}
	return out
}
