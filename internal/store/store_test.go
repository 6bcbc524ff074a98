package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/history"
)

func el(id string, x float64) element.Element {
	return element.Element{ID: id, Type: element.TypeRectangle, X: x, Width: 10, Height: 10, Opacity: 1}
}

func v1Record() Record {
	a, b, c := el("a", 0), el("b", 20), el("c", 40)
	return Record{
		Version:      V1,
		ID:           "board_1",
		Elements:     []element.Element{a, b},
		Legacy:       history.V1{{a}, {a, b}, {a, b, c}},
		HistoryIndex: 1,
	}
}

func v2Record(t *testing.T) Record {
	t.Helper()
	rec, err := v1Record().Upgrade()
	require.NoError(t, err)
	return rec
}

func TestRecordRoundTrip(t *testing.T) {
	stroke := element.Element{ID: "s", Type: element.TypeFreedraw}.
		WithPoints(geom.Point{X: 1, Y: 2}, geom.Point{X: 3, Y: 5})

	tests := []struct {
		name string
		rec  Record
	}{
		{"v1", v1Record()},
		{"v2", v2Record(t)},
		{"v2 with points", Record{
			Version:  V2,
			ID:       "board_2",
			Elements: []element.Element{stroke},
			History: []history.Entry{
				history.NewSnapshot(element.NewCollection(stroke)),
			},
		}},
		{"empty", Record{Version: V2, ID: "board_3", Elements: []element.Element{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.rec)
			require.NoError(t, err)
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.rec, got)
		})
	}
}

func TestDecodeWithoutVersion(t *testing.T) {
	t.Run("legacy history", func(t *testing.T) {
		data := []byte(`{"id":"b","elements":[],"history":[[{"id":"a","type":"text"}],[]],"historyIndex":1}`)
		rec, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, V1, rec.Version)
		require.Len(t, rec.Legacy, 2)
		assert.Equal(t, "a", rec.Legacy[0][0].ID)
		assert.Empty(t, rec.Legacy[1])
	})

	t.Run("entry history", func(t *testing.T) {
		data := []byte(`{"id":"b","elements":[],"history":[{"kind":"snapshot"}],"historyIndex":0}`)
		rec, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, V2, rec.Version)
		require.Len(t, rec.History, 1)
		assert.True(t, rec.History[0].IsSnapshot())
	})

	t.Run("no history", func(t *testing.T) {
		rec, err := Decode([]byte(`{"id":"b","elements":[{"id":"a"}]}`))
		require.NoError(t, err)
		assert.Equal(t, V2, rec.Version)
		assert.Nil(t, rec.History)
	})
}

func TestUnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":9,"id":"b","elements":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Encode(Record{Version: 9})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Record{Version: 9}.Upgrade()
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestUpgradeAndDowngrade(t *testing.T) {
	legacy := v1Record()

	up, err := legacy.Upgrade()
	require.NoError(t, err)
	assert.Equal(t, V2, up.Version)
	assert.Nil(t, up.Legacy)
	assert.Equal(t, 1, up.HistoryIndex)
	require.Len(t, up.History, 3)
	require.NoError(t, history.Validate(up.History, up.HistoryIndex))

	for i, state := range legacy.Legacy {
		col, err := history.Materialize(up.History, i, nil)
		require.NoError(t, err)
		assert.True(t, col.Equal(element.NewCollection(state...)), "state %d", i)
	}

	down, err := up.Downgrade()
	require.NoError(t, err)
	assert.Equal(t, legacy, down)

	again, err := up.Upgrade()
	require.NoError(t, err)
	assert.Equal(t, up, again)
}

func TestDowngradeRejectsCorruptLog(t *testing.T) {
	rec := v2Record(t)
	rec.History = rec.History[1:]
	_, err := rec.Downgrade()
	assert.ErrorIs(t, err, history.ErrMissingSnapshot)
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mem, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	file, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "boards.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory":        NewMemory(),
		"sqlite memory": mem,
		"sqlite file":   file,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

			legacy := v1Record()
			legacy.ID = "board_legacy"
			current := v2Record(t)
			require.NoError(t, s.Save(ctx, legacy))
			require.NoError(t, s.Save(ctx, current))

			got, err := s.Load(ctx, legacy.ID)
			require.NoError(t, err)
			assert.False(t, got.UpdatedAt.IsZero())
			got.UpdatedAt = legacy.UpdatedAt
			assert.Equal(t, legacy, got)

			got, err = s.Load(ctx, current.ID)
			require.NoError(t, err)
			got.UpdatedAt = current.UpdatedAt
			assert.Equal(t, current, got)

			// Overwrite in place.
			current.HistoryIndex = 2
			require.NoError(t, s.Save(ctx, current))
			got, err = s.Load(ctx, current.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.HistoryIndex)

			ids, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"board_1", "board_legacy"}, ids)

			require.NoError(t, s.Delete(ctx, legacy.ID))
			_, err = s.Load(ctx, legacy.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRecordJSONShape(t *testing.T) {
	data, err := Encode(v2Record(t))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, V2, raw["version"])
	assert.Contains(t, raw, "history")
	assert.Contains(t, raw, "historyIndex")
	assert.NotContains(t, raw, "updatedAt")
}
