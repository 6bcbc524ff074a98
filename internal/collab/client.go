package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/inamate/whiteboard/internal/board"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 1 << 20
)

type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	board       *board.Board
	batcher     *board.Batcher
	UserID      string
	DisplayName string
	BoardID     string
	ClientID    string

	// opMu serializes the client's gesture handling between its read
	// loop and the hub's frame flush.
	opMu    sync.Mutex
	gesture *board.Gesture
}

func NewClient(hub *Hub, conn *websocket.Conn, b *board.Board, userID, displayName, clientID string) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		board:       b,
		UserID:      userID,
		DisplayName: displayName,
		BoardID:     b.ID(),
		ClientID:    clientID,
	}
	c.batcher = board.NewBatcher(c.applyUpdate)
	return c
}

// applyUpdate shows a batched gesture update, starting the gesture on the
// first one. It runs with opMu held.
func (c *Client) applyUpdate(fn board.Updater) error {
	g, err := c.activeGesture()
	if err != nil {
		c.sendError(0, err.Error())
		return err
	}
	if err := g.Update(fn); err != nil {
		c.sendError(0, err.Error())
		return err
	}
	c.hub.broadcastState(c.board, c.ClientID, 0, true, nil)
	return nil
}

func (c *Client) activeGesture() (*board.Gesture, error) {
	if c.gesture != nil && !c.gesture.Closed() {
		return c.gesture, nil
	}
	g, err := c.board.Begin()
	if err != nil {
		return nil, err
	}
	c.gesture = g
	return g, nil
}

// takeGesture detaches the client's gesture, if it still has an open one.
func (c *Client) takeGesture() *board.Gesture {
	g := c.gesture
	c.gesture = nil
	if g == nil || g.Closed() {
		return nil
	}
	return g
}

func (c *Client) flush() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if _, err := c.batcher.Flush(); err != nil {
		slog.Debug("gesture update rejected", "error", err, "user", c.UserID)
	}
}

// abandon drops the client's pending update and cancels its gesture. It
// reports whether a gesture was cancelled.
func (c *Client) abandon() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.batcher.Discard()
	if g := c.takeGesture(); g != nil {
		return g.Cancel() == nil
	}
	return false
}

func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			slog.Debug("read error", "error", err, "user", c.UserID)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid message", "error", err, "user", c.UserID)
			continue
		}

		msg.UserID = c.UserID
		msg.ClientID = c.ClientID
		msg.BoardID = c.BoardID

		c.hub.handleMessage(c, &msg)
	}
}

func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("write error", "error", err, "user", c.UserID)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}

	defer func() {
		// The hub closes send on unregister; a late batched update may
		// still try to write.
		if recover() != nil {
			slog.Debug("send on closed client", "user", c.UserID)
		}
	}()
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "user", c.UserID)
	}
}

func (c *Client) sendState(msgType string, seq int64, changed *bool) {
	payload, err := json.Marshal(StatePayload{State: c.board.State(), Changed: changed})
	if err != nil {
		slog.Error("marshal board state", "error", err)
		return
	}
	c.Send(&Message{Type: msgType, BoardID: c.BoardID, Seq: seq, Payload: payload})
}

func (c *Client) sendError(seq int64, message string) {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	c.Send(&Message{Type: TypeError, BoardID: c.BoardID, Seq: seq, Payload: payload})
}
