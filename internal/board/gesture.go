package board

import "github.com/inamate/whiteboard/internal/element"

// Gesture is one pointer-down to pointer-up interaction. Updates are
// transient; End records exactly one commit; Cancel records none.
//
// Every updater passed to a gesture receives the collection as it was when
// the gesture began, not the result of the previous update. A drag updater
// therefore computes absolute positions from the start state, which is what
// lets a Batcher drop intermediate updates without losing anything.
type Gesture struct {
	board   *Board
	base    *element.Collection
	pending Updater
	closed  bool
}

// Begin starts a gesture. Only one gesture may be active per board.
func (b *Board) Begin() (*Gesture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gesture != nil {
		return nil, ErrGestureActive
	}
	g := &Gesture{board: b, base: b.committed}
	b.gesture = g
	return g, nil
}

// Active returns the board's active gesture, if any.
func (b *Board) Active() (*Gesture, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gesture, b.gesture != nil
}

// Update shows fn(base) without recording it.
func (g *Gesture) Update(fn Updater) error {
	b := g.board
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return ErrGestureClosed
	}
	g.pending = fn
	b.elements = orEmpty(fn(g.base))
	return nil
}

// End closes the gesture with one commit of fn(base). A nil fn commits the
// last update, or nothing if there was none. It reports whether a history
// entry was appended.
func (g *Gesture) End(fn Updater) (bool, error) {
	b := g.board
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return false, ErrGestureClosed
	}
	g.close()

	if fn == nil {
		fn = g.pending
	}
	if fn == nil {
		fn = Identity
	}
	return b.commitLocked(orEmpty(fn(g.base)))
}

// Cancel closes the gesture and reverts to the last committed elements.
func (g *Gesture) Cancel() error {
	b := g.board
	b.mu.Lock()
	defer b.mu.Unlock()
	if g.closed {
		return ErrGestureClosed
	}
	g.close()
	b.elements = b.committed
	return nil
}

// Closed reports whether End or Cancel has run, or the gesture was
// abandoned by an undo or redo.
func (g *Gesture) Closed() bool {
	g.board.mu.Lock()
	defer g.board.mu.Unlock()
	return g.closed
}

// close must be called with the board lock held.
func (g *Gesture) close() {
	g.closed = true
	if g.board.gesture == g {
		g.board.gesture = nil
	}
}
