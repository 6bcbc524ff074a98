// Package element defines the immutable drawable values a board is made of.
//
// Elements are copy-on-write: every helper returns a new value and never
// touches the receiver's slices, so snapshots and diffs held by the history
// log stay trustworthy after later edits.
package element

import (
	"math"
	"slices"

	"github.com/inamate/whiteboard/internal/geom"
)

type Type string

const (
	TypeRectangle Type = "rectangle"
	TypeEllipse   Type = "ellipse"
	TypeDiamond   Type = "diamond"
	TypeLine      Type = "line"
	TypeArrow     Type = "arrow"
	TypeFreedraw  Type = "freedraw"
	TypeText      Type = "text"
	TypeImage     Type = "image"
	TypeFrame     Type = "frame"
)

// HasPoints reports whether the type's geometry is carried by Points.
func (t Type) HasPoints() bool {
	return t == TypeLine || t == TypeArrow || t == TypeFreedraw
}

type Element struct {
	ID              string       `json:"id"`
	Type            Type         `json:"type"`
	X               float64      `json:"x"`
	Y               float64      `json:"y"`
	Width           float64      `json:"width"`
	Height          float64      `json:"height"`
	Angle           float64      `json:"angle"`
	Points          []geom.Point `json:"points,omitempty"`
	StrokeColor     string       `json:"strokeColor,omitempty"`
	BackgroundColor string       `json:"backgroundColor,omitempty"`
	StrokeWidth     float64      `json:"strokeWidth"`
	Opacity         float64      `json:"opacity"`
	Text            string       `json:"text,omitempty"`
	GroupID         string       `json:"groupId,omitempty"`
	Locked          bool         `json:"locked"`
	Version         int          `json:"version"`
}

// Equal reports whether a and b are identical by value.
func Equal(a, b Element) bool {
	return a.ID == b.ID &&
		a.Type == b.Type &&
		same(a.X, b.X) && same(a.Y, b.Y) &&
		same(a.Width, b.Width) && same(a.Height, b.Height) &&
		same(a.Angle, b.Angle) &&
		slices.EqualFunc(a.Points, b.Points, samePoint) &&
		a.StrokeColor == b.StrokeColor &&
		a.BackgroundColor == b.BackgroundColor &&
		same(a.StrokeWidth, b.StrokeWidth) &&
		same(a.Opacity, b.Opacity) &&
		a.Text == b.Text &&
		a.GroupID == b.GroupID &&
		a.Locked == b.Locked &&
		a.Version == b.Version
}

// same is == except that NaN equals NaN, so an element always equals itself.
func same(a, b float64) bool {
	return a == b || (a != a && b != b)
}

func samePoint(a, b geom.Point) bool {
	return same(a.X, b.X) && same(a.Y, b.Y)
}

// Moved returns a copy translated by (dx, dy).
func (e Element) Moved(dx, dy float64) Element {
	e.X += dx
	e.Y += dy
	e.Points = slices.Clone(e.Points)
	return e.Bump()
}

// MovedTo returns a copy positioned at (x, y).
func (e Element) MovedTo(x, y float64) Element {
	return e.Moved(x-e.X, y-e.Y)
}

// Resized returns a copy with the given extent.
func (e Element) Resized(width, height float64) Element {
	e.Width = width
	e.Height = height
	e.Points = slices.Clone(e.Points)
	return e.Bump()
}

// Rotated returns a copy with the given angle in radians.
func (e Element) Rotated(angle float64) Element {
	e.Angle = angle
	e.Points = slices.Clone(e.Points)
	return e.Bump()
}

// WithPoints returns a copy whose points are pts. Width and Height follow
// the points' extent.
func (e Element) WithPoints(pts ...geom.Point) Element {
	e.Points = slices.Clone(pts)
	if r, ok := geom.RectFromPoints(e.Points); ok {
		e.Width, e.Height = r.Width, r.Height
	}
	return e.Bump()
}

// WithPoint returns a copy with p appended, as a freehand stroke grows.
func (e Element) WithPoint(p geom.Point) Element {
	pts := make([]geom.Point, 0, len(e.Points)+1)
	pts = append(pts, e.Points...)
	return e.WithPoints(append(pts, p)...)
}

// WithStyle returns a copy with the given colors.
func (e Element) WithStyle(stroke, background string) Element {
	e.StrokeColor = stroke
	e.BackgroundColor = background
	e.Points = slices.Clone(e.Points)
	return e.Bump()
}

// WithText returns a copy carrying text.
func (e Element) WithText(text string) Element {
	e.Text = text
	e.Points = slices.Clone(e.Points)
	return e.Bump()
}

// Bump returns a copy with the version incremented.
func (e Element) Bump() Element {
	e.Version++
	return e
}

// Bounds returns the element's axis-aligned bounding box in scene space.
func (e Element) Bounds() geom.Rect {
	var local geom.Rect
	if e.Type.HasPoints() && len(e.Points) > 0 {
		r, _ := geom.RectFromPoints(e.Points)
		local = geom.Rect{X: e.X + r.X, Y: e.Y + r.Y, Width: r.Width, Height: r.Height}
	} else {
		local = geom.Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}.Normalize()
	}

	if e.Angle == 0 || math.IsNaN(e.Angle) {
		return local
	}

	// Rotation pivots on the unrotated box's center.
	box := geom.Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}.Normalize()
	cx, cy := box.Center()
	return geom.RotateAround(e.Angle, cx, cy).TransformRect(local)
}
