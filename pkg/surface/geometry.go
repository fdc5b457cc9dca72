package surface

import (
	"math"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// Overlay is the rectangle drawn between the two anchors
type Overlay struct {
	Top     types.Segment
	Left    types.Segment
	Right   types.Segment
	Bottom  types.Segment
	Visible bool
}

// Segments returns the four sides in drawing order.
func (o Overlay) Segments() []types.Segment {
	return []types.Segment{o.Top, o.Left, o.Right, o.Bottom}
}

// Rect is an axis-aligned rectangle in surface pixels
type Rect struct {
	Min types.Point
	Max types.Point
}

// Dx returns the width of the rectangle.
func (r Rect) Dx() float64 { return r.Max.X - r.Min.X }

// Dy returns the height of the rectangle.
func (r Rect) Dy() float64 { return r.Max.Y - r.Min.Y }

// Extents returns the axis-aligned rectangle spanned by a and b, whichever
// corner each one is.
func Extents(a, b types.Point) Rect {
	return Rect{
		Min: types.Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: types.Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// OverlayFor builds a visible overlay for the rectangle spanned by a and b.
func OverlayFor(a, b types.Point) Overlay {
	r := Extents(a, b)
	tl := r.Min
	tr := types.Point{X: r.Max.X, Y: r.Min.Y}
	bl := types.Point{X: r.Min.X, Y: r.Max.Y}
	br := r.Max
	return Overlay{
		Top:     types.Segment{From: tl, To: tr},
		Left:    types.Segment{From: tl, To: bl},
		Right:   types.Segment{From: tr, To: br},
		Bottom:  types.Segment{From: bl, To: br},
		Visible: true,
	}
}
