// Package api serves boards over REST.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/inamate/whiteboard/internal/board"
	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/store"
)

const maxBodyBytes = 8 << 20

// Notifier is told when a request changed a board, so live clients can be
// brought up to date.
type Notifier interface {
	BoardChanged(id string)
}

type Handler struct {
	boards *board.Registry
	notify Notifier
}

func NewHandler(boards *board.Registry, notify Notifier) *Handler {
	return &Handler{boards: boards, notify: notify}
}

// Routes registers the board endpoints on r.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/boards", h.Create).Methods("POST")
	r.HandleFunc("/boards/{boardId}", h.Get).Methods("GET")
	r.HandleFunc("/boards/{boardId}/commit", h.Commit).Methods("POST")
	r.HandleFunc("/boards/{boardId}/undo", h.Undo).Methods("POST")
	r.HandleFunc("/boards/{boardId}/redo", h.Redo).Methods("POST")
	r.HandleFunc("/boards/{boardId}/query", h.QueryRect).Methods("GET")
	r.HandleFunc("/boards/{boardId}/near", h.QueryNear).Methods("GET")
	r.HandleFunc("/boards/{boardId}/hit", h.HitTest).Methods("GET")
	r.HandleFunc("/boards/{boardId}/record", h.Record).Methods("GET")
}

type createRequest struct {
	Elements []element.Element `json:"elements"`
}

type stateResponse struct {
	board.State
	Changed *bool `json:"changed,omitempty"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	b, err := h.boards.Create(r.Context(), element.NewCollection(req.Elements...))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stateResponse{State: b.State()})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{State: b.State()})
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}

	var m board.Mutation
	if err := decode(w, r, &m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	changed, err := b.Commit(m.Updater())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.changed(b, changed)
	writeJSON(w, http.StatusOK, stateResponse{State: b.State(), Changed: &changed})
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, (*board.Board).Undo)
}

func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, (*board.Board).Redo)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, step func(*board.Board) (bool, error)) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	changed, err := step(b)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.changed(b, changed)
	writeJSON(w, http.StatusOK, stateResponse{State: b.State(), Changed: &changed})
}

func (h *Handler) QueryRect(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	vals, ok := floats(w, r, "x", "y", "w", "h")
	if !ok {
		return
	}
	els := b.QueryRect(geom.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]})
	writeJSON(w, http.StatusOK, map[string]any{"elements": nonNil(els)})
}

func (h *Handler) QueryNear(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	vals, ok := floats(w, r, "x", "y", "r")
	if !ok {
		return
	}
	els := b.QueryNearPoint(geom.Point{X: vals[0], Y: vals[1]}, vals[2])
	writeJSON(w, http.StatusOK, map[string]any{"elements": nonNil(els)})
}

func (h *Handler) HitTest(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	vals, ok := floats(w, r, "x", "y")
	if !ok {
		return
	}
	el, hit := b.HitTest(vals[0], vals[1])
	if !hit {
		writeJSON(w, http.StatusOK, map[string]any{"id": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": el.ID})
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	b, ok := h.board(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Record())
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) (*board.Board, bool) {
	b, err := h.boards.Get(r.Context(), mux.Vars(r)["boardId"])
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return b, true
}

func (h *Handler) changed(b *board.Board, changed bool) {
	if changed && h.notify != nil {
		h.notify.BoardChanged(b.ID())
	}
}

func floats(w http.ResponseWriter, r *http.Request, names ...string) ([]float64, bool) {
	q := r.URL.Query()
	out := make([]float64, len(names))
	for i, name := range names {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter " + name + " must be a number"})
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func nonNil(els []element.Element) []element.Element {
	if els == nil {
		return []element.Element{}
	}
	return els
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "board not found"})
	case errors.Is(err, board.ErrGestureActive):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrUnsupportedVersion):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "unsupported board record"})
	default:
		slog.Error("board request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
