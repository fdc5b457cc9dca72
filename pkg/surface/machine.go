package surface

import (
	"math"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// State is the annotation state of a surface
type State int

const (
	Empty State = iota
	OneAnchor
	TwoAnchors
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case OneAnchor:
		return "one-anchor"
	case TwoAnchors:
		return "two-anchors"
	default:
		return "unknown"
	}
}

// AnchorID selects one of the two anchors
type AnchorID int

const (
	First AnchorID = iota + 1
	Second
)

// Anchor is a user-placed corner of the bounding box
type Anchor struct {
	types.Point
	Visible bool
}

// Machine is the bounding box interaction state. It is a plain value: every
// transition returns the next machine and never touches a renderer.
type Machine struct {
	State   State
	Pt1     Anchor
	Pt2     Anchor
	Overlay Overlay
}

// Press handles a pointer-down event at p. Events at non-finite coordinates
// are ignored by every transition.
func (m Machine) Press(p types.Point) Machine {
	if !finite(p) {
		return m
	}
	if m.State == Empty {
		return m.placeFirst(p)
	}
	return m
}

// Release handles a pointer-up event at p.
func (m Machine) Release(p types.Point) Machine {
	if !finite(p) {
		return m
	}
	switch m.State {
	case Empty:
		return m.placeFirst(p)
	case OneAnchor:
		// both axes must differ, a click that only moves along one axis is ignored
		if p.X != m.Pt1.X && p.Y != m.Pt1.Y {
			m.Pt2 = Anchor{Point: p, Visible: true}
			m.Overlay = OverlayFor(m.Pt1.Point, m.Pt2.Point)
			m.State = TwoAnchors
		}
		return m
	default:
		return m.Reset()
	}
}

// Drag moves a visible anchor to p. The overlay follows when both anchors are
// placed; the state never changes.
func (m Machine) Drag(id AnchorID, p types.Point) Machine {
	if !finite(p) {
		return m
	}
	switch id {
	case First:
		if !m.Pt1.Visible {
			return m
		}
		m.Pt1.Point = p
	case Second:
		if !m.Pt2.Visible {
			return m
		}
		m.Pt2.Point = p
	default:
		return m
	}
	if m.State == TwoAnchors {
		m.Overlay = OverlayFor(m.Pt1.Point, m.Pt2.Point)
	}
	return m
}

// Place puts both anchors down at once, subject to the same guard as a
// second click.
func (m Machine) Place(a, b types.Point) (Machine, bool) {
	if !finite(a) || !finite(b) || a.X == b.X || a.Y == b.Y {
		return m, false
	}
	m = m.Reset().placeFirst(a)
	return m.Release(b), true
}

// Reset hides both anchors and the overlay. Stored coordinates are left as
// they were.
func (m Machine) Reset() Machine {
	m.State = Empty
	m.Pt1.Visible = false
	m.Pt2.Visible = false
	m.Overlay.Visible = false
	return m
}

func (m Machine) placeFirst(p types.Point) Machine {
	m.Pt1 = Anchor{Point: p, Visible: true}
	m.State = OneAnchor
	return m
}

func finite(p types.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
