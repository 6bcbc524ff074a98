// Package history keeps the versioned state of a board: an append-only log
// of full snapshots and reversible patches, a cursor into it, and the
// retention rules that keep the log bounded without ever leaving it
// unmaterializable.
package history

import (
	"errors"
	"fmt"

	"github.com/inamate/whiteboard/internal/element"
)

const (
	// DefaultMaxHistory is the retention cap used when none is configured.
	DefaultMaxHistory = 200

	// SnapshotThreshold is the change ratio at or above which a commit is
	// stored as a full snapshot instead of a patch.
	SnapshotThreshold = 0.6
)

var (
	ErrMissingSnapshot = errors.New("no snapshot at or before index")
	ErrIndexOutOfRange = errors.New("history index out of range")
	ErrCorruptEntry    = errors.New("corrupt history entry")
)

type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindPatch    Kind = "patch"
)

// Direction selects which way a patch is applied.
type Direction int

const (
	Redo Direction = iota
	Undo
)

// Update records one element's value before and after a change.
type Update struct {
	Before element.Element `json:"before"`
	After  element.Element `json:"after"`
}

// Entry is one log record. A snapshot carries Elements; a patch carries the
// remaining fields and is relative to the state materialized at the
// previous index.
type Entry struct {
	Kind        Kind              `json:"kind"`
	Elements    []element.Element `json:"elements,omitempty"`
	Added       []element.Element `json:"added,omitempty"`
	Removed     []element.Element `json:"removed,omitempty"`
	Updated     []Update          `json:"updated,omitempty"`
	BeforeOrder []string          `json:"beforeOrder,omitempty"`
	AfterOrder  []string          `json:"afterOrder,omitempty"`
}

// NewSnapshot returns a snapshot entry of col.
func NewSnapshot(col *element.Collection) Entry {
	return Entry{Kind: KindSnapshot, Elements: col.Slice()}
}

func (e Entry) IsSnapshot() bool { return e.Kind == KindSnapshot }

// Changes returns the number of added, removed and updated elements.
func (e Entry) Changes() int {
	return len(e.Added) + len(e.Removed) + len(e.Updated)
}

func (e Entry) String() string {
	if e.IsSnapshot() {
		return fmt.Sprintf("snapshot(%d)", len(e.Elements))
	}
	return fmt.Sprintf("patch(+%d -%d ~%d)", len(e.Added), len(e.Removed), len(e.Updated))
}

func mustHold(b bool, v ...any) {
	if !b {
		panic(fmt.Sprint(append([]any{"history: "}, v...)...))
	}
}
