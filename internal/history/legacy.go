package history

import (
	"github.com/inamate/whiteboard/internal/element"
)

// V1 is the original history encoding: one full snapshot per state.
type V1 [][]element.Element

// ToV2 converts a V1 log into the patch-capable form. Consecutive snapshots
// are diffed with the same encoding rule Commit uses, and every V1 state
// keeps its position so the cursor means the same thing afterwards. The
// cursor is clamped into range; an empty V1 log becomes a single empty
// snapshot.
func ToV2(v1 V1, index int) ([]Entry, int) {
	if len(v1) == 0 {
		return []Entry{NewSnapshot(element.Empty())}, 0
	}

	entries := make([]Entry, 0, len(v1))
	prev := element.NewCollection(v1[0]...)
	entries = append(entries, NewSnapshot(prev))
	for _, state := range v1[1:] {
		next := element.NewCollection(state...)
		entries = append(entries, encode(Diff(prev, next), prev, next))
		prev = next
	}

	return entries, min(max(index, 0), len(entries)-1)
}

// ToV1 expands entries into full snapshots, for tools that still read the
// legacy encoding.
func ToV1(entries []Entry) (V1, error) {
	if len(entries) == 0 {
		return V1{}, nil
	}
	if err := Validate(entries, 0); err != nil {
		return nil, err
	}

	out := make(V1, 0, len(entries))
	var col *element.Collection
	for _, e := range entries {
		if e.IsSnapshot() {
			col = element.NewCollection(e.Elements...)
		} else {
			col, _ = Apply(col, e, Redo)
		}
		out = append(out, col.Slice())
	}
	return out, nil
}
