package element

import (
	"github.com/inamate/whiteboard/internal/geom"
	"github.com/inamate/whiteboard/internal/typeid"
)

// New returns an element of type t with a fresh id and default styling.
func New(t Type, x, y, width, height float64) Element {
	return Element{
		ID:          typeid.NewElementID(),
		Type:        t,
		X:           x,
		Y:           y,
		Width:       width,
		Height:      height,
		StrokeColor: "#1e1e1e",
		StrokeWidth: 2,
		Opacity:     1,
		Version:     1,
	}
}

// Sample returns the built-in demo scene.
func Sample() *Collection {
	frame := New(TypeFrame, 80, 80, 1120, 560)
	frame.StrokeColor = "#868e96"

	rect := New(TypeRectangle, 200, 200, 200, 150)
	rect.BackgroundColor = "#e94560"
	rect.GroupID = frame.ID

	ellipse := New(TypeEllipse, 520, 280, 240, 160)
	ellipse.BackgroundColor = "#0f3460"
	ellipse.StrokeColor = "#16213e"
	ellipse.GroupID = frame.ID

	triangle := New(TypeLine, 900, 200, 0, 0).WithPoints(
		geom.Point{X: 0, Y: 150},
		geom.Point{X: 100, Y: 0},
		geom.Point{X: 200, Y: 150},
		geom.Point{X: 0, Y: 150},
	)
	triangle.StrokeColor = "#2d6a4f"
	triangle.GroupID = frame.ID

	arrow := New(TypeArrow, 400, 275, 0, 0).WithPoints(
		geom.Point{X: 0, Y: 0},
		geom.Point{X: 120, Y: 60},
	)

	label := New(TypeText, 540, 470, 200, 40).WithText("Hello, board")
	label.Angle = 0.1

	return NewCollection(frame, rect, ellipse, triangle, arrow, label)
}
