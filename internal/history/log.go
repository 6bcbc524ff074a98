package history

import (
	"fmt"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/metrics"
)

// Result is the outcome of Commit.
type Result struct {
	Entries []Entry
	Index   int
	// Changed is false when the commit was a no-op and nothing was appended.
	Changed bool
	// Stored is the kind of the appended entry when Changed is true.
	Stored Kind
	// Dropped counts entries removed by retention.
	Dropped  int
	Promoted bool
}

// Commit appends the transition prev -> next after the cursor.
//
// Entries after index are discarded first, so committing after an undo
// drops the abandoned redo branch. prev must be the state materialized at
// index (index -1 commits onto an empty log). A transition that changes
// nothing on a non-empty log is a no-op: the log, including any redo branch,
// is returned untouched.
//
// When the log exceeds maxHistory the oldest entries are dropped; if the new
// head is a patch it is first promoted to a snapshot materialized from the
// untrimmed log. entries is never modified.
func Commit(entries []Entry, index int, prev, next *element.Collection, maxHistory int, sink metrics.Sink) (Result, error) {
	sink = metrics.OrNop(sink)
	if index < -1 || index >= len(entries) {
		return Result{}, fmt.Errorf("commit at %d of %d: %w", index, len(entries), ErrIndexOutOfRange)
	}
	if index >= 0 && !entries[0].IsSnapshot() {
		return Result{}, fmt.Errorf("commit onto log headed by %s: %w", entries[0], ErrMissingSnapshot)
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	patch := Diff(prev, next)
	if index >= 0 && patch.IsNoop() {
		sink.HistoryCommitted(metrics.KindNoop)
		return Result{Entries: entries, Index: index}, nil
	}

	out := make([]Entry, 0, index+2)
	out = append(out, entries[:index+1]...)

	entry := NewSnapshot(next)
	if len(out) > 0 {
		entry = encode(patch, prev, next)
	}
	out = append(out, entry)

	res := Result{Entries: out, Index: len(out) - 1, Changed: true, Stored: entry.Kind}
	sink.HistoryCommitted(string(entry.Kind))

	if overflow := len(out) - maxHistory; overflow > 0 {
		head := out[overflow]
		if !head.IsSnapshot() {
			col, err := Materialize(out, overflow, sink)
			if err != nil {
				return Result{}, fmt.Errorf("promote entry %d: %w", overflow, err)
			}
			head = NewSnapshot(col)
			res.Promoted = true
		}
		trimmed := make([]Entry, 0, maxHistory)
		trimmed = append(trimmed, head)
		trimmed = append(trimmed, out[overflow+1:]...)

		res.Entries = trimmed
		res.Index = max(0, res.Index-overflow)
		res.Dropped = overflow
		sink.HistoryTrimmed(overflow, res.Promoted)
	}

	mustHold(res.Entries[0].IsSnapshot(), "log head is ", res.Entries[0])
	mustHold(res.Index == len(res.Entries)-1, "cursor ", res.Index, " not at end of ", len(res.Entries))
	return res, nil
}

// Materialize reconstructs the collection at index by taking the nearest
// snapshot at or before it and replaying the patches after it forward.
func Materialize(entries []Entry, index int, sink metrics.Sink) (*element.Collection, error) {
	sink = metrics.OrNop(sink)
	if index < 0 || index >= len(entries) {
		return nil, fmt.Errorf("materialize at %d of %d: %w", index, len(entries), ErrIndexOutOfRange)
	}

	start := index
	for start >= 0 && !entries[start].IsSnapshot() {
		start--
	}
	if start < 0 {
		return nil, fmt.Errorf("materialize at %d: %w", index, ErrMissingSnapshot)
	}

	col := element.NewCollection(entries[start].Elements...)
	fallback := 0
	for i := start + 1; i <= index; i++ {
		if entries[i].Kind != KindPatch {
			return nil, fmt.Errorf("materialize entry %d kind %q: %w", i, entries[i].Kind, ErrCorruptEntry)
		}
		var n int
		col, n = Apply(col, entries[i], Redo)
		fallback += n
	}

	sink.Materialized(index - start)
	if fallback > 0 {
		sink.OrderFallback(fallback)
	}
	return col, nil
}

// Validate checks the structural invariants of a log loaded from outside the
// process: a snapshot at the head, known entry kinds and a cursor in range.
func Validate(entries []Entry, index int) error {
	if len(entries) == 0 {
		return fmt.Errorf("empty log: %w", ErrMissingSnapshot)
	}
	if !entries[0].IsSnapshot() {
		return fmt.Errorf("log head is %s: %w", entries[0], ErrMissingSnapshot)
	}
	for i, e := range entries {
		if e.Kind != KindSnapshot && e.Kind != KindPatch {
			return fmt.Errorf("entry %d kind %q: %w", i, e.Kind, ErrCorruptEntry)
		}
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("cursor %d of %d: %w", index, len(entries), ErrIndexOutOfRange)
	}
	return nil
}
