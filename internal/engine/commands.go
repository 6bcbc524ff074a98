package engine

import (
	"encoding/json"
	"math"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/geom"
)

// DrawCommand represents a single drawing operation for the frontend to execute.
// The frontend receives a list of these and executes them on a Canvas2D context.
type DrawCommand struct {
	Op          string        `json:"op"`                    // "path", "text", "selection"
	ObjectID    string        `json:"objectId,omitempty"`    // For hit correlation
	Transform   []float64     `json:"transform,omitempty"`   // [a, b, c, d, e, f] affine matrix
	Path        []PathCommand `json:"path,omitempty"`        // Path data for "path" ops
	Fill        string        `json:"fill,omitempty"`        // Fill color
	Stroke      string        `json:"stroke,omitempty"`      // Stroke color
	StrokeWidth float64       `json:"strokeWidth,omitempty"` // Stroke width
	Opacity     float64       `json:"opacity,omitempty"`     // Global alpha
	Text        string        `json:"text,omitempty"`
}

// PathCommand is one SVG-style path verb followed by its coordinates,
// e.g. ["M", 0, 0] or ["C", x1, y1, x2, y2, x, y].
type PathCommand []any

// CompileDrawCommands generates a draw command buffer for col in painter's
// order (back to front), followed by an outline of the selection bounds.
func CompileDrawCommands(col *element.Collection, selection geom.Rect, hasSelection bool) []DrawCommand {
	commands := make([]DrawCommand, 0, col.Len()+1)
	for _, el := range col.All() {
		if cmd, ok := compileElement(el); ok {
			commands = append(commands, cmd)
		}
	}
	if hasSelection {
		commands = append(commands, DrawCommand{
			Op:        "selection",
			Transform: geom.Translate(selection.X, selection.Y).ToSlice(),
			Path:      rectPath(selection.Width, selection.Height),
		})
	}
	return commands
}

func compileElement(el element.Element) (DrawCommand, bool) {
	cmd := DrawCommand{
		Op:          "path",
		ObjectID:    el.ID,
		Transform:   worldTransform(el).ToSlice(),
		Stroke:      el.StrokeColor,
		StrokeWidth: el.StrokeWidth,
		Opacity:     el.Opacity,
	}

	switch el.Type {
	case element.TypeRectangle, element.TypeFrame, element.TypeImage:
		cmd.Fill = el.BackgroundColor
		cmd.Path = rectPath(el.Width, el.Height)
	case element.TypeEllipse:
		cmd.Fill = el.BackgroundColor
		cmd.Path = ellipsePath(el.Width, el.Height)
	case element.TypeDiamond:
		cmd.Fill = el.BackgroundColor
		cmd.Path = diamondPath(el.Width, el.Height)
	case element.TypeLine, element.TypeFreedraw:
		cmd.Path = polylinePath(el.Points)
	case element.TypeArrow:
		cmd.Path = append(polylinePath(el.Points), arrowHead(el.Points)...)
	case element.TypeText:
		cmd.Op = "text"
		cmd.Text = el.Text
		cmd.Fill = el.StrokeColor
	default:
		return DrawCommand{}, false
	}

	if cmd.Op == "path" && len(cmd.Path) == 0 {
		return DrawCommand{}, false
	}
	return cmd, true
}

// worldTransform places element-local coordinates, whose origin is the
// element's X,Y, in the scene. Rotation pivots on the box center, as in
// Element.Bounds.
func worldTransform(el element.Element) geom.Matrix2D {
	m := geom.Translate(el.X, el.Y)
	if el.Angle == 0 || math.IsNaN(el.Angle) {
		return m
	}
	cx, cy := geom.Rect{X: el.X, Y: el.Y, Width: el.Width, Height: el.Height}.Normalize().Center()
	return geom.RotateAround(el.Angle, cx, cy).Multiply(m)
}

func rectPath(w, h float64) []PathCommand {
	return []PathCommand{
		{"M", 0.0, 0.0},
		{"L", w, 0.0},
		{"L", w, h},
		{"L", 0.0, h},
		{"Z"},
	}
}

func ellipsePath(w, h float64) []PathCommand {
	rx, ry := w/2, h/2

	// Magic number for bezier approximation of a circle/ellipse
	// k = 4 * (sqrt(2) - 1) / 3 ≈ 0.5522847498
	k := 0.5522847498
	kx, ky := rx*k, ry*k

	// Four bezier curves around the box center.
	return []PathCommand{
		{"M", rx + rx, ry},
		{"C", rx + rx, ry + ky, rx + kx, ry + ry, rx, ry + ry},
		{"C", rx - kx, ry + ry, 0.0, ry + ky, 0.0, ry},
		{"C", 0.0, ry - ky, rx - kx, 0.0, rx, 0.0},
		{"C", rx + kx, 0.0, rx + rx, ry - ky, rx + rx, ry},
		{"Z"},
	}
}

func diamondPath(w, h float64) []PathCommand {
	return []PathCommand{
		{"M", w / 2, 0.0},
		{"L", w, h / 2},
		{"L", w / 2, h},
		{"L", 0.0, h / 2},
		{"Z"},
	}
}

func polylinePath(pts []geom.Point) []PathCommand {
	if len(pts) == 0 {
		return nil
	}
	path := make([]PathCommand, 0, len(pts))
	path = append(path, PathCommand{"M", pts[0].X, pts[0].Y})
	for _, p := range pts[1:] {
		path = append(path, PathCommand{"L", p.X, p.Y})
	}
	return path
}

const (
	arrowHeadLength = 12.0
	arrowHeadAngle  = math.Pi / 7
)

func arrowHead(pts []geom.Point) []PathCommand {
	if len(pts) < 2 {
		return nil
	}
	tip, from := pts[len(pts)-1], pts[len(pts)-2]
	if tip == from {
		return nil
	}
	theta := math.Atan2(tip.Y-from.Y, tip.X-from.X)
	left := theta + math.Pi - arrowHeadAngle
	right := theta + math.Pi + arrowHeadAngle
	return []PathCommand{
		{"M", tip.X + arrowHeadLength*math.Cos(left), tip.Y + arrowHeadLength*math.Sin(left)},
		{"L", tip.X, tip.Y},
		{"L", tip.X + arrowHeadLength*math.Cos(right), tip.Y + arrowHeadLength*math.Sin(right)},
	}
}

// DrawCommandsToJSON serializes draw commands to JSON.
func DrawCommandsToJSON(commands []DrawCommand) (string, error) {
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

// RectToJSON serializes a Rect to JSON.
func RectToJSON(r geom.Rect) string {
	data, _ := json.Marshal(map[string]float64{
		"x":      r.X,
		"y":      r.Y,
		"width":  r.Width,
		"height": r.Height,
	})
	return string(data)
}
