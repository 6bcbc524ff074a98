// Package board is the write-discipline layer over one versioned element
// collection. Callers reach the history only through Transient and Commit:
// transient updates change what is visible without recording anything, and
// a commit folds everything since the last commit into a single entry.
package board

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/history"
	"github.com/inamate/whiteboard/internal/metrics"
	"github.com/inamate/whiteboard/internal/spatial"
	"github.com/inamate/whiteboard/internal/store"
)

var (
	ErrGestureActive = errors.New("a gesture is already active on this board")
	ErrGestureClosed = errors.New("gesture already ended")
)

// Updater derives the next collection from the current one. It must not
// modify its argument; returning nil means an empty collection.
type Updater func(*element.Collection) *element.Collection

// Identity is the updater that changes nothing.
func Identity(col *element.Collection) *element.Collection { return col }

type options struct {
	maxHistory int
	cache      *spatial.Cache
	sink       metrics.Sink
	logger     *slog.Logger
}

type Option func(*options)

// WithMaxHistory sets the history retention cap.
func WithMaxHistory(n int) Option {
	return func(o *options) { o.maxHistory = n }
}

// WithCache shares a spatial index cache between boards.
func WithCache(c *spatial.Cache) Option {
	return func(o *options) { o.cache = c }
}

func WithSink(sink metrics.Sink) Option {
	return func(o *options) { o.sink = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{maxHistory: history.DefaultMaxHistory}
	for _, opt := range opts {
		opt(&o)
	}
	o.sink = metrics.OrNop(o.sink)
	if o.cache == nil {
		o.cache = spatial.NewCache(spatial.DefaultCellSize, o.sink)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o options) historyOptions() []history.Option {
	return []history.Option{history.WithMaxHistory(o.maxHistory), history.WithSink(o.sink)}
}

// Board is one document: the visible elements, the last committed state and
// the history behind it. All methods are safe for concurrent use; mutations
// are serialized in call order.
type Board struct {
	mu        sync.Mutex
	id        string
	elements  *element.Collection
	committed *element.Collection
	history   *history.Store
	gesture   *Gesture

	// rev counts committed changes; saved is the rev last persisted.
	rev   uint64
	saved uint64

	cache  *spatial.Cache
	logger *slog.Logger
}

// New returns a board whose history holds a single snapshot of initial.
func New(id string, initial *element.Collection, opts ...Option) *Board {
	o := buildOptions(opts)
	initial = orEmpty(initial)
	return newBoard(id, history.NewStore(initial, o.historyOptions()...), initial, o)
}

func newBoard(id string, hs *history.Store, current *element.Collection, o options) *Board {
	return &Board{
		id:        id,
		elements:  current,
		committed: current,
		history:   hs,
		cache:     o.cache,
		logger:    o.logger.With("board", id),
	}
}

// FromRecord restores a board from its persisted form. Legacy records are
// upgraded first. The history at the cursor is authoritative for the
// visible elements.
func FromRecord(stored store.Record, opts ...Option) (*Board, error) {
	rec, err := stored.Upgrade()
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", stored.ID, err)
	}
	o := buildOptions(opts)
	if rec.MaxHistory > 0 {
		o.maxHistory = rec.MaxHistory
	}
	if len(rec.History) == 0 {
		initial := element.NewCollection(rec.Elements...)
		return newBoard(rec.ID, history.NewStore(initial, o.historyOptions()...), initial, o), nil
	}

	hs, err := history.Restore(rec.History, rec.HistoryIndex, o.historyOptions()...)
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", rec.ID, err)
	}
	current, err := hs.Current()
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", rec.ID, err)
	}
	b := newBoard(rec.ID, hs, current, o)
	if rec.Elements != nil && !current.Equal(element.NewCollection(rec.Elements...)) {
		b.logger.Warn("stored elements disagree with history, using history",
			"historyIndex", rec.HistoryIndex)
	}
	return b, nil
}

func (b *Board) ID() string { return b.id }

// Record returns the persisted form of the board. Transient state is not
// part of it.
func (b *Board) Record() store.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, _ := b.recordLocked()
	return rec
}

func (b *Board) recordLocked() (store.Record, uint64) {
	return store.Record{
		Version:      store.V2,
		ID:           b.id,
		Elements:     b.committed.Slice(),
		History:      b.history.Entries(),
		HistoryIndex: b.history.Index(),
		MaxHistory:   b.history.MaxHistory(),
	}, b.rev
}

// Transient replaces the visible elements with fn(current) without
// touching history. While a gesture is active the preview belongs to it and
// Transient returns ErrGestureActive.
func (b *Board) Transient(fn Updater) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gesture != nil {
		return ErrGestureActive
	}
	b.elements = orEmpty(fn(b.elements))
	return nil
}

// Commit applies fn to the visible elements and records the change from the
// last committed state, so every transient update since then lands in one
// entry. It reports whether an entry was appended. While a gesture is
// active it returns ErrGestureActive and leaves the board unchanged.
func (b *Board) Commit(fn Updater) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gesture != nil {
		return false, ErrGestureActive
	}
	return b.commitLocked(orEmpty(fn(b.elements)))
}

func (b *Board) commitLocked(next *element.Collection) (bool, error) {
	res, err := b.history.Commit(b.committed, next)
	if err != nil {
		return false, fmt.Errorf("commit board %s: %w", b.id, err)
	}
	if !res.Changed {
		b.elements = b.committed
		return false, nil
	}
	b.elements, b.committed = next, next
	b.rev++
	if res.Dropped > 0 {
		b.logger.Debug("history trimmed", "dropped", res.Dropped, "promoted", res.Promoted)
	}
	return true, nil
}

// Cancel drops transient state, reverting to the last committed elements.
func (b *Board) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements = b.committed
}

// Undo steps the cursor back, discarding transient state and abandoning any
// active gesture. At the oldest entry it returns false and leaves the board
// unchanged.
func (b *Board) Undo() (bool, error) {
	return b.move(b.history.Undo)
}

// Redo steps the cursor forward. At the newest entry it returns false and
// leaves the board unchanged.
func (b *Board) Redo() (bool, error) {
	return b.move(b.history.Redo)
}

func (b *Board) move(step func() (*element.Collection, bool, error)) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	col, ok, err := step()
	if err != nil {
		return false, fmt.Errorf("move history cursor on board %s: %w", b.id, err)
	}
	if !ok {
		return false, nil
	}
	b.elements, b.committed = col, col
	b.rev++
	if b.gesture != nil {
		b.gesture.closed = true
		b.gesture = nil
	}
	return true, nil
}

// Elements returns the visible collection, including transient state.
func (b *Board) Elements() *element.Collection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elements
}

// Committed returns the collection at the history cursor.
func (b *Board) Committed() *element.Collection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed
}

func (b *Board) HistoryIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Index()
}

func (b *Board) HistoryLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.Len()
}

func (b *Board) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.CanUndo()
}

func (b *Board) CanRedo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.CanRedo()
}

// State is the summary sent to clients.
type State struct {
	ID            string              `json:"id"`
	Elements      *element.Collection `json:"elements"`
	HistoryIndex  int                 `json:"historyIndex"`
	HistoryLength int                 `json:"historyLength"`
	CanUndo       bool                `json:"canUndo"`
	CanRedo       bool                `json:"canRedo"`
}

func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		ID:            b.id,
		Elements:      b.elements,
		HistoryIndex:  b.history.Index(),
		HistoryLength: b.history.Len(),
		CanUndo:       b.history.CanUndo(),
		CanRedo:       b.history.CanRedo(),
	}
}

// QueryRect returns visible elements whose bounds intersect r.
func (b *Board) QueryRect(r geom.Rect) []element.Element {
	return b.cache.QueryRect(b.Elements(), r)
}

// QueryNearPoint returns visible elements whose bounds come within radius
// of p.
func (b *Board) QueryNearPoint(p geom.Point, radius float64) []element.Element {
	return b.cache.QueryNearPoint(b.Elements(), p, radius)
}

// HitTest returns the topmost element whose bounds contain (x, y).
func (b *Board) HitTest(x, y float64) (element.Element, bool) {
	hits := b.QueryNearPoint(geom.Point{X: x, Y: y}, 0)
	if len(hits) == 0 {
		return element.Element{}, false
	}
	// Painter's order: the last match is drawn on top.
	return hits[len(hits)-1], true
}

// SelectionBounds returns the combined bounds of the given elements. Unknown
// ids are skipped; ok is false when none were found.
func (b *Board) SelectionBounds(ids []string) (geom.Rect, bool) {
	col := b.Elements()
	var (
		result geom.Rect
		found  bool
	)
	for _, id := range ids {
		el, ok := col.Get(id)
		if !ok {
			continue
		}
		bounds := el.Bounds()
		if !found {
			result, found = bounds, true
			continue
		}
		minX, minY := min(result.X, bounds.X), min(result.Y, bounds.Y)
		maxX, maxY := max(result.MaxX(), bounds.MaxX()), max(result.MaxY(), bounds.MaxY())
		result = geom.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	}
	return result, found
}

// dirty reports whether committed state changed since the last save.
func (b *Board) dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rev != b.saved
}

func (b *Board) markSaved(rev uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = max(b.saved, rev)
}

func orEmpty(col *element.Collection) *element.Collection {
	if col == nil {
		return element.Empty()
	}
	return col
}
