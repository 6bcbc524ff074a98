package collab

import (
	"encoding/json"

	"github.com/inamate/whiteboard/internal/board"
	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
)

type Message struct {
	Type     string          `json:"type"`
	BoardID  string          `json:"boardId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

const (
	// Server to client.
	TypeBoardState  = "board.state"
	TypeQueryResult = "query.result"
	TypeError       = "error"

	// Client to server. board.sync is also the server's reply.
	TypeBoardSync     = "board.sync"
	TypeGestureUpdate = "gesture.update"
	TypeGestureCommit = "gesture.commit"
	TypeGestureCancel = "gesture.cancel"
	TypeHistoryUndo   = "history.undo"
	TypeHistoryRedo   = "history.redo"
	TypeQueryRect     = "query.rect"
)

// StatePayload is the payload of board.sync and board.state. Transient
// states are previews of another client's gesture; they are not in history.
type StatePayload struct {
	board.State
	Transient bool  `json:"transient,omitempty"`
	Changed   *bool `json:"changed,omitempty"`
}

// GesturePayload carries the mutation of gesture.update and gesture.commit.
// A commit with an empty mutation commits the gesture's last update.
type GesturePayload struct {
	Mutation board.Mutation `json:"mutation"`
}

type QueryRectPayload struct {
	Rect geom.Rect `json:"rect"`
}

type QueryResultPayload struct {
	Elements []element.Element `json:"elements"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
