// Package spatial answers rectangle and proximity queries over an element
// collection with a uniform grid, so marquee selection and eraser hit
// testing don't scan every element on every pointer move.
package spatial

import (
	"math"
	"slices"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/metrics"
)

const (
	// DefaultCellSize is the grid pitch in scene units.
	DefaultCellSize = 256

	// maxCellsPerElement bounds how many cells one element is bucketed into.
	// Larger elements go to the overflow list, which every query scans.
	maxCellsPerElement = 1024
)

type cellKey struct {
	x, y int
}

// Index is a grid built from one collection. It copies what it needs and
// keeps no reference to the collection itself.
type Index struct {
	cellSize float64
	cells    map[cellKey][]int
	overflow []int
	bounds   []geom.Rect
	elements []element.Element
	byID     map[string]int
	sink     metrics.Sink
}

// Build indexes every element of col. cellSize <= 0 selects DefaultCellSize.
func Build(col *element.Collection, cellSize float64, sink metrics.Sink) *Index {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}
	ix := &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
		bounds:   make([]geom.Rect, col.Len()),
		elements: col.Slice(),
		byID:     make(map[string]int, col.Len()),
		sink:     metrics.OrNop(sink),
	}

	for i, el := range ix.elements {
		b := el.Bounds()
		ix.bounds[i] = b
		ix.byID[el.ID] = i

		if !b.IsFinite() {
			ix.overflow = append(ix.overflow, i)
			continue
		}
		x0, y0, x1, y1 := ix.cellRange(b)
		if !fits(x1-x0+1, y1-y0+1, maxCellsPerElement) {
			ix.overflow = append(ix.overflow, i)
			continue
		}
		for cx := x0; cx <= x1; cx++ {
			for cy := y0; cy <= y1; cy++ {
				k := cellKey{cx, cy}
				ix.cells[k] = append(ix.cells[k], i)
			}
		}
	}

	ix.sink.IndexBuilt(len(ix.elements), len(ix.cells))
	return ix
}

// cellRange returns the inclusive range of cells a rect overlaps.
func (ix *Index) cellRange(r geom.Rect) (x0, y0, x1, y1 int) {
	return ix.cell(r.X), ix.cell(r.Y), ix.cell(r.MaxX()), ix.cell(r.MaxY())
}

// fits reports whether a w x h block of cells holds at most limit cells.
func fits(w, h, limit int) bool {
	return w <= limit && h <= limit && int64(w)*int64(h) <= int64(limit)
}

func (ix *Index) cell(v float64) int {
	c := math.Floor(v / ix.cellSize)
	// Clamp so absurd coordinates can't overflow int conversion.
	return int(math.Max(math.Min(c, math.MaxInt32), math.MinInt32))
}

// Len returns the number of indexed elements.
func (ix *Index) Len() int { return len(ix.elements) }

// Cells returns the number of occupied grid cells.
func (ix *Index) Cells() int { return len(ix.cells) }

// CellSize returns the grid pitch.
func (ix *Index) CellSize() float64 { return ix.cellSize }

// Bounds returns the cached bounds of the element with the given id.
func (ix *Index) Bounds(id string) (geom.Rect, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return geom.Rect{}, false
	}
	return ix.bounds[i], true
}

// QueryRect returns, in collection order, every element whose bounds
// intersect r. Edges are inclusive.
func (ix *Index) QueryRect(r geom.Rect) []element.Element {
	r = r.Normalize()
	if len(ix.elements) == 0 || !r.IsFinite() {
		return nil
	}

	seen := make(map[int]struct{})
	x0, y0, x1, y1 := ix.cellRange(r)
	if !fits(x1-x0+1, y1-y0+1, len(ix.cells)) {
		// Cheaper to walk the occupied cells than the requested range.
		for k, members := range ix.cells {
			if k.x < x0 || k.x > x1 || k.y < y0 || k.y > y1 {
				continue
			}
			for _, i := range members {
				seen[i] = struct{}{}
			}
		}
	} else {
		for cx := x0; cx <= x1; cx++ {
			for cy := y0; cy <= y1; cy++ {
				for _, i := range ix.cells[cellKey{cx, cy}] {
					seen[i] = struct{}{}
				}
			}
		}
	}
	for _, i := range ix.overflow {
		seen[i] = struct{}{}
	}

	matched := make([]int, 0, len(seen))
	for i := range seen {
		if ix.bounds[i].Intersects(r) {
			matched = append(matched, i)
		}
	}
	slices.Sort(matched)
	out := make([]element.Element, len(matched))
	for n, i := range matched {
		out[n] = ix.elements[i]
	}

	ix.sink.IndexQueried(len(seen), len(out))
	return out
}

// QueryNearPoint returns candidates within radius of p: elements whose bounds
// intersect the square of side 2*radius centered on p. Exact distance checks
// against the element's geometry are left to the caller.
func (ix *Index) QueryNearPoint(p geom.Point, radius float64) []element.Element {
	return ix.QueryRect(geom.SquareAround(p, radius))
}
