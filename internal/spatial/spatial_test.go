package spatial

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/metrics"
)

func box(id string, x, y, w, h float64) element.Element {
	return element.Element{ID: id, Type: element.TypeRectangle, X: x, Y: y, Width: w, Height: h, Opacity: 1}
}

func bruteForce(col *element.Collection, r geom.Rect) []string {
	r = r.Normalize()
	var ids []string
	for _, el := range col.All() {
		if el.Bounds().Intersects(r) {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

func idsOf(els []element.Element) []string {
	var ids []string
	for _, el := range els {
		ids = append(ids, el.ID)
	}
	return ids
}

func randomScene(r *rand.Rand, n int) *element.Collection {
	els := make([]element.Element, 0, n)
	for i := range n {
		id := fmt.Sprintf("e%d", i)
		x, y := r.Float64()*4000-2000, r.Float64()*4000-2000
		switch r.IntN(6) {
		case 0:
			els = append(els, box(id, x, y, 0, 0))
		case 1:
			stroke := element.Element{ID: id, Type: element.TypeFreedraw, X: x, Y: y}
			pts := make([]geom.Point, 2+r.IntN(6))
			for j := range pts {
				pts[j] = geom.Point{X: r.Float64()*300 - 150, Y: r.Float64()*300 - 150}
			}
			els = append(els, stroke.WithPoints(pts...))
		case 2:
			els = append(els, box(id, x, y, r.Float64()*600, r.Float64()*80).Rotated(r.Float64()*6))
		case 3:
			els = append(els, box(id, x, y, -r.Float64()*300, -r.Float64()*300))
		default:
			els = append(els, box(id, x, y, r.Float64()*400, r.Float64()*400))
		}
	}
	return element.NewCollection(els...)
}

func TestQueryRectMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 1))
	for _, cellSize := range []float64{16, 100, DefaultCellSize, 5000} {
		t.Run(fmt.Sprintf("cell %v", cellSize), func(t *testing.T) {
			scene := randomScene(r, 400)
			ix := Build(scene, cellSize, nil)
			require.Equal(t, scene.Len(), ix.Len())

			for range 300 {
				q := geom.Rect{
					X:      r.Float64()*5000 - 2500,
					Y:      r.Float64()*5000 - 2500,
					Width:  r.Float64()*1500 - 300,
					Height: r.Float64()*1500 - 300,
				}
				require.Equal(t, bruteForce(scene, q), idsOf(ix.QueryRect(q)), "query %+v", q)
			}
		})
	}
}

func TestQueryRectDeduplicatesMultiCellElements(t *testing.T) {
	scene := element.NewCollection(box("wide", 0, 0, 1000, 1000), box("small", 10, 10, 5, 5))
	ix := Build(scene, 100, nil)

	got := ix.QueryRect(geom.Rect{X: -50, Y: -50, Width: 2000, Height: 2000})
	assert.Equal(t, []string{"wide", "small"}, idsOf(got))
}

func TestQueryExcludesCandidatesOutsideRect(t *testing.T) {
	// Same cell, disjoint bounds.
	scene := element.NewCollection(box("a", 0, 0, 10, 10), box("b", 200, 200, 10, 10))
	ix := Build(scene, DefaultCellSize, nil)
	assert.Equal(t, []string{"a"}, idsOf(ix.QueryRect(geom.Rect{X: 5, Y: 5, Width: 20, Height: 20})))
}

func TestEmptyCollection(t *testing.T) {
	ix := Build(element.Empty(), 0, nil)
	assert.Zero(t, ix.Len())
	assert.Zero(t, ix.Cells())
	assert.Equal(t, float64(DefaultCellSize), ix.CellSize())
	assert.Empty(t, ix.QueryRect(geom.Rect{X: -1e6, Y: -1e6, Width: 2e6, Height: 2e6}))
	assert.Empty(t, ix.QueryNearPoint(geom.Point{}, 10))

	assert.Empty(t, Build(nil, 0, nil).QueryRect(geom.Rect{Width: 1, Height: 1}))
}

func TestDegenerateBoundsOccupyOneCell(t *testing.T) {
	scene := element.NewCollection(box("dot", 300, 300, 0, 0))
	ix := Build(scene, DefaultCellSize, nil)
	assert.Equal(t, 1, ix.Cells())

	assert.Equal(t, []string{"dot"}, idsOf(ix.QueryRect(geom.Rect{X: 300, Y: 300})))
	assert.Equal(t, []string{"dot"}, idsOf(ix.QueryNearPoint(geom.Point{X: 305, Y: 298}, 5)))
	assert.Empty(t, ix.QueryNearPoint(geom.Point{X: 310, Y: 310}, 5))
}

func TestHugeElementGoesToOverflow(t *testing.T) {
	scene := element.NewCollection(box("frame", -1e7, -1e7, 2e7, 2e7), box("dot", 5, 5, 1, 1))
	ix := Build(scene, 16, nil)

	assert.Equal(t, 1, ix.Cells())
	assert.Equal(t, []string{"frame", "dot"}, idsOf(ix.QueryNearPoint(geom.Point{X: 5, Y: 5}, 1)))
	assert.Equal(t, []string{"frame"}, idsOf(ix.QueryNearPoint(geom.Point{X: 9e6, Y: -9e6}, 1)))
}

func TestBoundsLookup(t *testing.T) {
	ix := Build(element.NewCollection(box("a", 1, 2, 3, 4)), 0, nil)
	b, ok := ix.Bounds("a")
	require.True(t, ok)
	assert.Equal(t, geom.Rect{X: 1, Y: 2, Width: 3, Height: 4}, b)
	_, ok = ix.Bounds("missing")
	assert.False(t, ok)
}

func TestCacheKeyedByIdentity(t *testing.T) {
	var sink metrics.Counters
	c := NewCache(DefaultCellSize, &sink)

	col := element.NewCollection(box("a", 0, 0, 10, 10))
	first := c.Index(col)
	assert.Same(t, first, c.Index(col))

	twin := element.NewCollection(box("a", 0, 0, 10, 10))
	require.True(t, col.Equal(twin))
	assert.NotSame(t, first, c.Index(twin))

	s := sink.Snapshot()
	assert.Equal(t, 1, s.CacheHits)
	assert.Equal(t, 2, s.CacheMisses)
	assert.Equal(t, 2, s.IndexBuilds)
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, []string{"a"}, idsOf(c.QueryRect(col, geom.Rect{Width: 1, Height: 1})))
	assert.Equal(t, []string{"a"}, idsOf(c.QueryNearPoint(twin, geom.Point{X: 12, Y: 12}, 2)))
	runtime.KeepAlive(col)
	runtime.KeepAlive(twin)
}

func TestCacheDoesNotPinCollections(t *testing.T) {
	c := NewCache(DefaultCellSize, nil)

	func() {
		for i := range 10 {
			c.Index(element.NewCollection(box(fmt.Sprint(i), 0, 0, 1, 1)))
		}
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return c.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}
