// Package engine is the in-browser editor core. It owns one board, the
// user's selection and pointer gesture, and answers the frontend's queries
// with JSON strings so the js/wasm bridge stays a thin shim.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inamate/whiteboard/internal/board"
	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/store"
)

// LocalBoardID names the board of an engine that has not loaded a record.
const LocalBoardID = "board_local"

// Engine processes commands from the frontend and returns query results.
// It is not safe for concurrent use; the wasm runtime calls it from one
// goroutine.
type Engine struct {
	board   *board.Board
	batcher *board.Batcher
	gesture *board.Gesture
	opts    []board.Option

	// Selection state (backend owns this)
	selection []string
}

// NewEngine creates an engine holding an empty board.
func NewEngine(opts ...board.Option) *Engine {
	e := &Engine{opts: opts}
	e.batcher = board.NewBatcher(e.applyTransient)
	e.reset(board.New(LocalBoardID, element.Empty(), opts...))
	return e
}

func (e *Engine) reset(b *board.Board) {
	e.board = b
	e.batcher.Discard()
	e.gesture = nil
	e.selection = nil
}

// --- Commands (frontend → backend) ---

// LoadRecord replaces the board with a persisted record, V1 or V2.
func (e *Engine) LoadRecord(jsonData string) error {
	rec, err := store.Decode([]byte(jsonData))
	if err != nil {
		return err
	}
	b, err := board.FromRecord(rec, e.opts...)
	if err != nil {
		return err
	}
	e.reset(b)
	return nil
}

// LoadSample replaces the board with the built-in sample scene.
func (e *Engine) LoadSample(boardID string) {
	if boardID == "" {
		boardID = LocalBoardID
	}
	e.reset(board.New(boardID, element.Sample(), e.opts...))
}

// Transient schedules a gesture update. It is shown on the next Tick; a
// later update in the same frame replaces it.
func (e *Engine) Transient(mutationJSON string) error {
	m, err := parseMutation(mutationJSON)
	if err != nil {
		return err
	}
	e.batcher.Schedule(m.Updater())
	return nil
}

func (e *Engine) applyTransient(fn board.Updater) error {
	if e.gesture == nil || e.gesture.Closed() {
		g, err := e.board.Begin()
		if err != nil {
			return err
		}
		e.gesture = g
	}
	return e.gesture.Update(fn)
}

// Tick applies the frame's pending gesture update and returns draw
// commands. This is called once per animation frame from the frontend.
func (e *Engine) Tick() string {
	if _, err := e.batcher.Flush(); err != nil {
		slog.Warn("apply transient update", "error", err)
	}
	return e.Render()
}

// Commit ends the gesture with one history entry. An empty mutation
// commits the gesture's last update. It reports whether history changed.
func (e *Engine) Commit(mutationJSON string) (bool, error) {
	m, err := parseMutation(mutationJSON)
	if err != nil {
		return false, err
	}
	if _, err := e.batcher.Flush(); err != nil {
		return false, err
	}

	var fn board.Updater
	if !m.IsEmpty() {
		fn = m.Updater()
	}

	g := e.gesture
	e.gesture = nil
	if g != nil && !g.Closed() {
		return g.End(fn)
	}
	if fn == nil {
		return false, nil
	}
	return e.board.Commit(fn)
}

// Cancel drops the gesture and any pending update.
func (e *Engine) Cancel() {
	e.batcher.Discard()
	if e.gesture != nil && !e.gesture.Closed() {
		if err := e.gesture.Cancel(); err != nil && !errors.Is(err, board.ErrGestureClosed) {
			slog.Warn("cancel gesture", "error", err)
		}
	}
	e.gesture = nil
	e.board.Cancel()
}

// Undo steps back one history entry. A step that moves the cursor
// abandons the gesture and any pending update.
func (e *Engine) Undo() (bool, error) {
	return e.step(e.board.Undo)
}

// Redo steps forward one history entry.
func (e *Engine) Redo() (bool, error) {
	return e.step(e.board.Redo)
}

func (e *Engine) step(move func() (bool, error)) (bool, error) {
	changed, err := move()
	if changed {
		e.batcher.Discard()
	}
	if e.gesture != nil && e.gesture.Closed() {
		e.gesture = nil
	}
	return changed, err
}

// SetSelection sets the selected element IDs.
func (e *Engine) SetSelection(ids []string) {
	e.selection = ids
}

// --- Queries (frontend ← backend) ---

// Render returns draw commands for the visible elements as JSON.
func (e *Engine) Render() string {
	bounds, ok := e.board.SelectionBounds(e.selection)
	result, _ := DrawCommandsToJSON(CompileDrawCommands(e.board.Elements(), bounds, ok))
	return result
}

// HitTest returns the ID of the topmost element at (x, y), or "".
func (e *Engine) HitTest(x, y float64) string {
	el, ok := e.board.HitTest(x, y)
	if !ok {
		return ""
	}
	return el.ID
}

// QueryRect returns the elements intersecting the rectangle as JSON.
func (e *Engine) QueryRect(x, y, w, h float64) string {
	return elementsJSON(e.board.QueryRect(geom.Rect{X: x, Y: y, Width: w, Height: h}))
}

// QueryNearPoint returns the elements within radius of (x, y) as JSON.
func (e *Engine) QueryNearPoint(x, y, radius float64) string {
	return elementsJSON(e.board.QueryNearPoint(geom.Point{X: x, Y: y}, radius))
}

// GetSelectionBounds returns the bounding box of the current selection as JSON.
func (e *Engine) GetSelectionBounds() string {
	bounds, _ := e.board.SelectionBounds(e.selection)
	return RectToJSON(bounds)
}

// GetSelection returns the current selection as JSON.
func (e *Engine) GetSelection() string {
	data, _ := json.Marshal(e.selection)
	return string(data)
}

// GetElements returns the visible elements as JSON.
func (e *Engine) GetElements() string {
	data, _ := json.Marshal(e.board.Elements())
	return string(data)
}

// GetRecord returns the board's persisted record as JSON.
func (e *Engine) GetRecord() string {
	data, err := store.Encode(e.board.Record())
	if err != nil {
		slog.Error("encode record", "error", err)
		return "{}"
	}
	return string(data)
}

// GetHistoryState returns the history cursor and gesture state as JSON.
func (e *Engine) GetHistoryState() string {
	st := e.board.State()
	_, active := e.board.Active()
	data, _ := json.Marshal(map[string]interface{}{
		"boardId":       st.ID,
		"historyIndex":  st.HistoryIndex,
		"historyLength": st.HistoryLength,
		"canUndo":       st.CanUndo,
		"canRedo":       st.CanRedo,
		"gesture":       active,
		"pending":       e.batcher.Pending(),
	})
	return string(data)
}

// Board exposes the engine's board for tests and tooling.
func (e *Engine) Board() *board.Board {
	return e.board
}

func parseMutation(s string) (board.Mutation, error) {
	var m board.Mutation
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, fmt.Errorf("parse mutation: %w", err)
	}
	return m, nil
}

func elementsJSON(els []element.Element) string {
	if els == nil {
		return "[]"
	}
	data, _ := json.Marshal(els)
	return string(data)
}
