package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/history"
	"github.com/inamate/whiteboard/internal/store"
)

func box(id string, x float64) element.Element {
	return element.Element{ID: id, Type: element.TypeRectangle, X: x, Width: 10, Height: 10, Opacity: 1}
}

func legacyRecord(t *testing.T) string {
	t.Helper()
	rec := store.Record{
		Version: store.V1,
		ID:      "board_test",
		Legacy: history.V1{
			{},
			{box("A", 0)},
			{box("A", 0), box("B", 100)},
		},
		HistoryIndex: 2,
		Elements:     []element.Element{box("A", 0), box("B", 100)},
	}
	data, err := store.Encode(rec)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "board.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	out, err := run(t, "inspect", legacyRecord(t))
	require.NoError(t, err)
	assert.Contains(t, out, "board:    board_test")
	assert.Contains(t, out, "version:  1")
	assert.Contains(t, out, "cursor:   2 of 3")
	assert.Contains(t, out, "snapshot")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", legacyRecord(t))
	require.NoError(t, err)
	assert.Equal(t, "ok: 3 entries\n", out)
}

func TestUpgradeThenDowngrade(t *testing.T) {
	src := legacyRecord(t)
	dir := filepath.Dir(src)
	v2 := filepath.Join(dir, "v2.json")
	v1 := filepath.Join(dir, "v1.json")

	_, err := run(t, "upgrade", src, v2)
	require.NoError(t, err)
	data, err := os.ReadFile(v2)
	require.NoError(t, err)
	rec, err := store.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, store.V2, rec.Version)
	assert.Len(t, rec.History, 3)

	_, err = run(t, "downgrade", v2, "-o", v1)
	require.NoError(t, err)
	data, err = os.ReadFile(v1)
	require.NoError(t, err)
	rec, err = store.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, store.V1, rec.Version)
	require.Len(t, rec.Legacy, 3)
	assert.Len(t, rec.Legacy[2], 2)
}

func TestMaterialize(t *testing.T) {
	out, err := run(t, "materialize", legacyRecord(t), "--index", "1")
	require.NoError(t, err)
	var col element.Collection
	require.NoError(t, col.UnmarshalJSON([]byte(out)))
	assert.Equal(t, []string{"A"}, col.IDs())

	_, err = run(t, "materialize", legacyRecord(t), "--index", "7")
	assert.ErrorIs(t, err, history.ErrIndexOutOfRange)
}

func TestQuery(t *testing.T) {
	out, err := run(t, "query", legacyRecord(t), "--rect", "90,0,20,20")
	require.NoError(t, err)
	assert.Equal(t, "B\trectangle\n", out)

	_, err = run(t, "query", legacyRecord(t), "--rect", "1,2,3")
	assert.Error(t, err)
}

func TestListAndExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boards.db")
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, store.Record{
		ID:       "board_one",
		Elements: []element.Element{box("A", 0)},
		History:  []history.Entry{history.NewSnapshot(element.NewCollection(box("A", 0)))},
	}))
	require.NoError(t, st.Close())

	out, err := run(t, "list", "--sqlite", path)
	require.NoError(t, err)
	assert.Equal(t, "board_one\n", out)

	out, err = run(t, "export", "board_one", "--sqlite", path)
	require.NoError(t, err)
	rec, err := store.Decode([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "board_one", rec.ID)

	_, err = run(t, "export", "board_two", "--sqlite", path)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "token", "user_1")
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "secret")
	out, err := run(t, "token", "user_1", "--name", "Ada")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))
}
