package history

import (
	"fmt"
	"slices"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/metrics"
)

// Store owns one log and its cursor. It is not safe for concurrent use; the
// owning board serializes access.
type Store struct {
	entries    []Entry
	index      int
	maxHistory int
	sink       metrics.Sink
}

type Option func(*Store)

// WithMaxHistory sets the retention cap. Values < 1 select DefaultMaxHistory.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = DefaultMaxHistory
		}
		s.maxHistory = n
	}
}

// WithSink sets the metrics sink.
func WithSink(sink metrics.Sink) Option {
	return func(s *Store) { s.sink = metrics.OrNop(sink) }
}

// NewStore returns a store whose only entry is a snapshot of initial.
func NewStore(initial *element.Collection, opts ...Option) *Store {
	s := newStore(opts)
	s.entries = []Entry{NewSnapshot(initial)}
	s.index = 0
	return s
}

// Restore returns a store over a previously persisted log.
func Restore(entries []Entry, index int, opts ...Option) (*Store, error) {
	if err := Validate(entries, index); err != nil {
		return nil, fmt.Errorf("restore history: %w", err)
	}
	s := newStore(opts)
	s.entries = slices.Clone(entries)
	s.index = index
	return s, nil
}

func newStore(opts []Option) *Store {
	s := &Store{maxHistory: DefaultMaxHistory, sink: metrics.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit records prev -> next. prev must be the collection at the cursor.
func (s *Store) Commit(prev, next *element.Collection) (Result, error) {
	res, err := Commit(s.entries, s.index, prev, next, s.maxHistory, s.sink)
	if err != nil {
		return Result{}, err
	}
	s.entries, s.index = res.Entries, res.Index
	return res, nil
}

// Current materializes the collection at the cursor.
func (s *Store) Current() (*element.Collection, error) {
	return Materialize(s.entries, s.index, s.sink)
}

// At materializes the collection at index.
func (s *Store) At(index int) (*element.Collection, error) {
	return Materialize(s.entries, index, s.sink)
}

// Undo moves the cursor back one entry. At the oldest entry it returns
// (nil, false, nil).
func (s *Store) Undo() (*element.Collection, bool, error) {
	if !s.CanUndo() {
		return nil, false, nil
	}
	return s.moveTo(s.index - 1)
}

// Redo moves the cursor forward one entry. At the newest entry it returns
// (nil, false, nil).
func (s *Store) Redo() (*element.Collection, bool, error) {
	if !s.CanRedo() {
		return nil, false, nil
	}
	return s.moveTo(s.index + 1)
}

func (s *Store) moveTo(index int) (*element.Collection, bool, error) {
	col, err := Materialize(s.entries, index, s.sink)
	if err != nil {
		return nil, false, err
	}
	s.index = index
	return col, true, nil
}

func (s *Store) CanUndo() bool { return s.index > 0 }
func (s *Store) CanRedo() bool { return s.index < len(s.entries)-1 }

// Index returns the cursor.
func (s *Store) Index() int { return s.index }

// Len returns the number of retained entries.
func (s *Store) Len() int { return len(s.entries) }

// MaxHistory returns the retention cap.
func (s *Store) MaxHistory() int { return s.maxHistory }

// Entries returns a copy of the log.
func (s *Store) Entries() []Entry { return slices.Clone(s.entries) }
