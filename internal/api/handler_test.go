package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/whiteboard/internal/board"
	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/store"
)

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) BoardChanged(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

type state struct {
	ID            string            `json:"id"`
	Elements      []element.Element `json:"elements"`
	HistoryIndex  int               `json:"historyIndex"`
	HistoryLength int               `json:"historyLength"`
	CanUndo       bool              `json:"canUndo"`
	CanRedo       bool              `json:"canRedo"`
	Changed       *bool             `json:"changed"`
}

func newServer(t *testing.T) (*httptest.Server, *recordingNotifier) {
	t.Helper()
	notify := &recordingNotifier{}
	r := mux.NewRouter()
	NewHandler(board.NewRegistry(store.NewMemory()), notify).Routes(r.PathPrefix("/api").Subrouter())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, notify
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func box(id string, x float64) element.Element {
	return element.Element{ID: id, Type: element.TypeRectangle, X: x, Width: 10, Height: 10, Opacity: 1}
}

func TestBoardLifecycle(t *testing.T) {
	srv, notify := newServer(t)
	api := srv.URL + "/api/boards"

	var created state
	status := do(t, http.MethodPost, api, createRequest{Elements: []element.Element{box("A", 0)}}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 0, created.HistoryIndex)
	assert.Len(t, created.Elements, 1)
	url := api + "/" + created.ID

	var st state
	status = do(t, http.MethodPost, url+"/commit", board.Mutation{Upsert: []element.Element{box("B", 20)}}, &st)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, st.Changed)
	assert.True(t, *st.Changed)
	assert.Equal(t, 1, st.HistoryIndex)
	assert.True(t, st.CanUndo)

	status = do(t, http.MethodPost, url+"/commit", board.Mutation{}, &st)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, *st.Changed)
	assert.Equal(t, 2, st.HistoryLength)

	do(t, http.MethodPost, url+"/undo", nil, &st)
	assert.True(t, *st.Changed)
	assert.Len(t, st.Elements, 1)
	assert.True(t, st.CanRedo)

	do(t, http.MethodPost, url+"/undo", nil, &st)
	assert.False(t, *st.Changed)

	do(t, http.MethodPost, url+"/redo", nil, &st)
	assert.True(t, *st.Changed)
	assert.Len(t, st.Elements, 2)

	status = do(t, http.MethodGet, url, nil, &st)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created.ID, st.ID)

	notify.mu.Lock()
	assert.Equal(t, []string{created.ID, created.ID, created.ID}, notify.ids)
	notify.mu.Unlock()
}

func TestQueries(t *testing.T) {
	srv, _ := newServer(t)
	var created state
	do(t, http.MethodPost, srv.URL+"/api/boards", createRequest{Elements: []element.Element{box("A", 0), box("B", 100)}}, &created)
	url := srv.URL + "/api/boards/" + created.ID

	var found struct {
		Elements []element.Element `json:"elements"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, url+"/query?x=-5&y=-5&w=20&h=20", nil, &found))
	require.Len(t, found.Elements, 1)
	assert.Equal(t, "A", found.Elements[0].ID)

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, url+"/query?x=500&y=500&w=1&h=1", nil, &found))
	assert.Empty(t, found.Elements)

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, url+"/near?x=112&y=5&r=3", nil, &found))
	require.Len(t, found.Elements, 1)
	assert.Equal(t, "B", found.Elements[0].ID)

	var hit struct {
		ID *string `json:"id"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, url+"/hit?x=105&y=5", nil, &hit))
	require.NotNil(t, hit.ID)
	assert.Equal(t, "B", *hit.ID)

	hit.ID = nil
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, url+"/hit?x=50&y=50", nil, &hit))
	assert.Nil(t, hit.ID)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, url+"/query?x=a&y=0&w=1&h=1", nil, &errBody))
	assert.Contains(t, errBody["error"], "x")
}

func TestRecordEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	var created state
	do(t, http.MethodPost, srv.URL+"/api/boards", nil, &created)
	url := srv.URL + "/api/boards/" + created.ID
	do(t, http.MethodPost, url+"/commit", board.Mutation{Upsert: []element.Element{box("A", 0)}}, nil)

	resp, err := http.Get(url + "/record")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	rec, err := store.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, store.V2, rec.Version)
	assert.Equal(t, created.ID, rec.ID)
	assert.Len(t, rec.History, 2)
	assert.Equal(t, 1, rec.HistoryIndex)
}

func TestCommitConflictsWithGesture(t *testing.T) {
	boards := board.NewRegistry(store.NewMemory())
	r := mux.NewRouter()
	NewHandler(boards, nil).Routes(r.PathPrefix("/api").Subrouter())
	srv := httptest.NewServer(r)
	defer srv.Close()

	bd, err := boards.Create(context.Background(), element.NewCollection(box("A", 0)))
	require.NoError(t, err)
	g, err := bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Update(board.Mutation{Upsert: []element.Element{box("A", 50)}}.Updater()))

	url := srv.URL + "/api/boards/" + bd.ID() + "/commit"
	var body map[string]string
	status := do(t, http.MethodPost, url, board.Mutation{Upsert: []element.Element{box("X", 0)}}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, board.ErrGestureActive.Error(), body["error"])
	assert.Equal(t, 1, bd.HistoryLen())

	_, err = g.End(nil)
	require.NoError(t, err)
	var st state
	status = do(t, http.MethodPost, url, board.Mutation{Upsert: []element.Element{box("X", 0)}}, &st)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, *st.Changed)
	assert.Len(t, st.Elements, 2)
}

func TestErrors(t *testing.T) {
	srv, _ := newServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/boards/board_missing", nil, &body))
	assert.Equal(t, "board not found", body["error"])

	var created state
	do(t, http.MethodPost, srv.URL+"/api/boards", nil, &created)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/boards/"+created.ID+"/commit", bytes.NewBufferString(`{"bogus":1}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
