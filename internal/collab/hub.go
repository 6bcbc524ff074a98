// Package collab shares live boards with WebSocket clients. Each board
// has a room; a client's pointer gesture is previewed to the rest of the
// room once per frame and recorded in history when it ends.
package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/inamate/whiteboard/internal/auth"
	"github.com/inamate/whiteboard/internal/board"
	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/typeid"
)

type Room struct {
	boardID string
	clients map[string]*Client // clientID -> client
}

func NewRoom(boardID string) *Room {
	return &Room{
		boardID: boardID,
		clients: make(map[string]*Client),
	}
}

type Hub struct {
	mu            sync.RWMutex
	rooms         map[string]*Room // boardID -> room
	boards        *board.Registry
	frameInterval time.Duration
	register      chan *Client
	unregister    chan *Client
	done          chan struct{}
}

func NewHub(boards *board.Registry, frameInterval time.Duration) *Hub {
	if frameInterval <= 0 {
		frameInterval = board.DefaultFrameInterval
	}
	return &Hub{
		rooms:         make(map[string]*Room),
		boards:        boards,
		frameInterval: frameInterval,
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
	}
}

// Run serves registrations and flushes every client's batched gesture
// update once per frame until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ticker.C:
			h.flush()
		case <-ctx.Done():
			return nil
		}
	}
}

// Register adds client to its board's room. It reports false once the hub
// has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ServeWS upgrades a request for /ws/board/{boardId}, opening the board
// if it does not exist yet.
func (h *Hub) ServeWS(authSvc *auth.Service, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := mux.Vars(r)["boardId"]
		if err := typeid.Validate(boardID, typeid.PrefixBoard); err != nil {
			http.Error(w, "invalid board id", http.StatusBadRequest)
			return
		}

		user, err := authSvc.Authenticate(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		b, err := h.boards.Open(r.Context(), boardID)
		if err != nil {
			slog.Error("open board", "error", err, "board", boardID)
			http.Error(w, "board unavailable", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			slog.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(h, conn, b, user.ID, user.DisplayName, typeid.NewClientID())
		if !h.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		ctx := r.Context()
		go client.WritePump(ctx)
		client.ReadPump(ctx)
	}
}

// BoardChanged pushes the board's state to its room after a change made
// outside the room, such as a REST commit.
func (h *Hub) BoardChanged(boardID string) {
	h.mu.RLock()
	_, live := h.rooms[boardID]
	h.mu.RUnlock()
	if !live {
		return
	}

	b, err := h.boards.Get(context.Background(), boardID)
	if err != nil {
		slog.Warn("board changed but not open", "board", boardID, "error", err)
		return
	}
	h.broadcastState(b, "", 0, false, nil)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.BoardID]
	if !ok {
		room = NewRoom(client.BoardID)
		h.rooms[client.BoardID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	client.sendState(TypeBoardSync, 0, nil)

	slog.Info("client joined", "user", client.UserID, "board", client.BoardID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.BoardID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	close(client.send)

	if len(room.clients) == 0 {
		delete(h.rooms, client.BoardID)
	}
	h.mu.Unlock()

	// A gesture left open would block everyone else's.
	if client.abandon() {
		h.broadcastState(client.board, "", 0, false, nil)
	}

	slog.Info("client left", "user", client.UserID, "board", client.BoardID)
}

func (h *Hub) flush() {
	h.mu.RLock()
	var clients []*Client
	for _, room := range h.rooms {
		for _, c := range room.clients {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.flush()
	}
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	sender.opMu.Lock()
	defer sender.opMu.Unlock()

	switch msg.Type {
	case TypeBoardSync:
		sender.sendState(TypeBoardSync, msg.Seq, nil)
	case TypeGestureUpdate:
		h.handleGestureUpdate(sender, msg)
	case TypeGestureCommit:
		h.handleGestureCommit(sender, msg)
	case TypeGestureCancel:
		h.handleGestureCancel(sender, msg)
	case TypeHistoryUndo:
		h.handleHistory(sender, msg, (*board.Board).Undo)
	case TypeHistoryRedo:
		h.handleHistory(sender, msg, (*board.Board).Redo)
	case TypeQueryRect:
		h.handleQueryRect(sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "user", sender.UserID)
		sender.sendError(msg.Seq, "unknown message type "+msg.Type)
	}
}

func (h *Hub) handleGestureUpdate(sender *Client, msg *Message) {
	var p GesturePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Warn("invalid gesture payload", "error", err)
		sender.sendError(msg.Seq, "invalid gesture payload")
		return
	}
	sender.batcher.Schedule(p.Mutation.Updater())
}

func (h *Hub) handleGestureCommit(sender *Client, msg *Message) {
	var p GesturePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Warn("invalid gesture payload", "error", err)
			sender.sendError(msg.Seq, "invalid gesture payload")
			return
		}
	}

	// The last update may still be waiting for a frame.
	if _, err := sender.batcher.Flush(); err != nil {
		return
	}

	var fn board.Updater
	if !p.Mutation.IsEmpty() {
		fn = p.Mutation.Updater()
	}

	g := sender.takeGesture()
	if g == nil && fn != nil {
		var err error
		if g, err = sender.board.Begin(); err != nil {
			sender.sendError(msg.Seq, err.Error())
			return
		}
	}
	if g == nil {
		changed := false
		sender.sendState(TypeBoardState, msg.Seq, &changed)
		return
	}

	changed, err := g.End(fn)
	if err != nil {
		slog.Error("commit gesture", "error", err, "board", sender.BoardID)
		sender.sendError(msg.Seq, err.Error())
		return
	}
	h.publish(sender, msg.Seq, changed)
}

func (h *Hub) handleGestureCancel(sender *Client, msg *Message) {
	sender.batcher.Discard()
	cancelled := false
	if g := sender.takeGesture(); g != nil {
		cancelled = g.Cancel() == nil
	}
	if cancelled {
		h.broadcastState(sender.board, sender.ClientID, 0, false, nil)
	}
	changed := false
	sender.sendState(TypeBoardState, msg.Seq, &changed)
}

func (h *Hub) handleHistory(sender *Client, msg *Message, step func(*board.Board) (bool, error)) {
	sender.batcher.Discard()
	changed, err := step(sender.board)
	if err != nil {
		slog.Error("history step", "error", err, "board", sender.BoardID, "type", msg.Type)
		sender.sendError(msg.Seq, err.Error())
		return
	}
	h.publish(sender, msg.Seq, changed)
}

func (h *Hub) handleQueryRect(sender *Client, msg *Message) {
	var p QueryRectPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		sender.sendError(msg.Seq, "invalid query payload")
		return
	}
	els := sender.board.QueryRect(p.Rect)
	if els == nil {
		els = []element.Element{}
	}
	payload, _ := json.Marshal(QueryResultPayload{Elements: els})
	sender.Send(&Message{Type: TypeQueryResult, BoardID: sender.BoardID, Seq: msg.Seq, Payload: payload})
}

// publish answers the sender and, when history moved, brings the rest of
// the room up to date.
func (h *Hub) publish(sender *Client, seq int64, changed bool) {
	sender.sendState(TypeBoardState, seq, &changed)
	if changed {
		h.broadcastState(sender.board, sender.ClientID, 0, false, nil)
	}
}

func (h *Hub) broadcastState(b *board.Board, excludeClientID string, seq int64, transient bool, changed *bool) {
	payload, err := json.Marshal(StatePayload{State: b.State(), Transient: transient, Changed: changed})
	if err != nil {
		slog.Error("marshal board state", "error", err)
		return
	}
	h.broadcastToRoom(b.ID(), &Message{Type: TypeBoardState, BoardID: b.ID(), Seq: seq, Payload: payload}, excludeClientID)
}

func (h *Hub) broadcastToRoom(boardID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[boardID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}
