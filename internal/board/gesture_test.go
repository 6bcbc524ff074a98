package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/whiteboard/internal/element"
)

func TestGestureLifecycle(t *testing.T) {
	bd := New("board", element.NewCollection(rect("A", 0, 0)))

	g, err := bd.Begin()
	require.NoError(t, err)
	_, err = bd.Begin()
	require.ErrorIs(t, err, ErrGestureActive)
	active, ok := bd.Active()
	require.True(t, ok)
	assert.Same(t, g, active)

	// Updaters are relative to the start state, so the last one wins.
	for x := 1.0; x <= 10; x++ {
		require.NoError(t, g.Update(moveTo("A", x, 0)))
	}
	got, _ := bd.Elements().Get("A")
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, 1, bd.HistoryLen())

	changed, err := g.End(nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, bd.HistoryLen())
	assert.True(t, g.Closed())
	_, ok = bd.Active()
	assert.False(t, ok)

	require.ErrorIs(t, g.Update(moveTo("A", 0, 0)), ErrGestureClosed)
	_, err = g.End(nil)
	require.ErrorIs(t, err, ErrGestureClosed)
	require.ErrorIs(t, g.Cancel(), ErrGestureClosed)

	// The board accepts a new gesture once the previous one is closed.
	g2, err := bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g2.Cancel())
}

func TestGestureEndWithUpdater(t *testing.T) {
	bd := New("board", element.NewCollection(rect("A", 0, 0)))
	g, err := bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Update(moveTo("A", 5, 5)))

	changed, err := g.End(moveTo("A", 7, 7))
	require.NoError(t, err)
	require.True(t, changed)
	got, _ := bd.Elements().Get("A")
	assert.Equal(t, 7.0, got.X)
}

func TestGestureWithoutChangeCommitsNothing(t *testing.T) {
	bd := New("board", element.NewCollection(rect("A", 0, 0)))

	g, err := bd.Begin()
	require.NoError(t, err)
	changed, err := g.End(nil)
	require.NoError(t, err)
	assert.False(t, changed)

	// A zero-distance drag.
	g, err = bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Update(moveTo("A", 0, 0)))
	changed, err = g.End(nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, bd.HistoryLen())
}

func TestGestureCancel(t *testing.T) {
	bd := New("board", element.NewCollection(rect("A", 0, 0)))
	g, err := bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Update(add(rect("B", 0, 0))))
	require.Equal(t, 2, bd.Elements().Len())

	require.NoError(t, g.Cancel())
	assert.Equal(t, []string{"A"}, ids(bd.Elements()))
	assert.Equal(t, 1, bd.HistoryLen())
}

func TestUndoAbandonsGesture(t *testing.T) {
	bd := New("board", element.Empty())
	_, err := bd.Commit(add(rect("A", 0, 0)))
	require.NoError(t, err)

	g, err := bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Update(moveTo("A", 9, 9)))

	ok, err := bd.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, g.Closed())
	_, err = g.End(nil)
	assert.ErrorIs(t, err, ErrGestureClosed)
	assert.Zero(t, bd.Elements().Len())
}

func TestDirectWritesRejectedDuringGesture(t *testing.T) {
	bd := New("board", element.NewCollection(rect("A", 0, 0)))
	g, err := bd.Begin()
	require.NoError(t, err)
	require.NoError(t, g.Update(moveTo("A", 50, 50)))

	changed, err := bd.Commit(add(rect("X", 0, 0)))
	require.ErrorIs(t, err, ErrGestureActive)
	assert.False(t, changed)
	require.ErrorIs(t, bd.Transient(add(rect("Y", 0, 0))), ErrGestureActive)

	// The preview was neither committed nor overwritten.
	assert.Equal(t, 1, bd.HistoryLen())
	assert.Equal(t, []string{"A"}, ids(bd.Committed()))
	got, _ := bd.Elements().Get("A")
	assert.Equal(t, 50.0, got.X)

	changed, err = g.End(nil)
	require.NoError(t, err)
	require.True(t, changed)
	got, _ = bd.Committed().Get("A")
	assert.Equal(t, 50.0, got.X)

	// Once the gesture is closed direct writes land on top of it.
	changed, err = bd.Commit(add(rect("X", 0, 0)))
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, []string{"A", "X"}, ids(bd.Committed()))
	got, _ = bd.Committed().Get("A")
	assert.Equal(t, 50.0, got.X)
	assert.Equal(t, 3, bd.HistoryLen())
}

func TestBatcherLastWriterWins(t *testing.T) {
	bd := New("board", element.NewCollection(rect("A", 0, 0)))
	g, err := bd.Begin()
	require.NoError(t, err)

	var applied int
	b := NewBatcher(func(fn Updater) error {
		applied++
		return g.Update(fn)
	})

	ran, err := b.Flush()
	require.NoError(t, err)
	assert.False(t, ran)

	for x := 1.0; x <= 30; x++ {
		b.Schedule(moveTo("A", x, 0))
	}
	assert.True(t, b.Pending())
	assert.Equal(t, 29, b.Coalesced())

	ran, err = b.Flush()
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, applied)
	assert.False(t, b.Pending())
	got, _ := bd.Elements().Get("A")
	assert.Equal(t, 30.0, got.X)

	b.Schedule(moveTo("A", 99, 0))
	b.Discard()
	ran, err = b.Flush()
	require.NoError(t, err)
	assert.False(t, ran)

	_, err = g.End(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, bd.HistoryLen())
}

func TestBatcherFlushReturnsApplyError(t *testing.T) {
	boom := errors.New("boom")
	b := NewBatcher(func(Updater) error { return boom })
	b.Schedule(Identity)
	ran, err := b.Flush()
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

func TestBatcherRun(t *testing.T) {
	var (
		mu      sync.Mutex
		applied int
	)
	b := NewBatcher(func(Updater) error {
		mu.Lock()
		defer mu.Unlock()
		applied++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, time.Millisecond)
		close(done)
	}()

	b.Schedule(Identity)
	require.Eventually(t, func() bool { return !b.Pending() }, 2*time.Second, time.Millisecond)

	cancel()
	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, applied)
}
