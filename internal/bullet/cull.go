package bullet

// Rect is an axis-aligned rectangle in playfield coordinates (+y up).
type Rect struct {
	Left, Right float64
	Bottom, Top float64
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right && y >= r.Bottom && y <= r.Top
}

// Expand returns r grown by m on every side.
func (r Rect) Expand(m float64) Rect {
	return Rect{Left: r.Left - m, Right: r.Right + m, Bottom: r.Bottom - m, Top: r.Top + m}
}

// Playfield is the nominal [-1, 1] square.
var Playfield = Rect{Left: -1, Right: 1, Bottom: -1, Top: 1}

// Bounds is the cull region: the playfield plus a margin generous enough that
// bullets curving back inward are not lost.
type Bounds struct {
	Playfield Rect
	Margin    float64
}

// DefaultBounds culls outside +-1.5.
func DefaultBounds() Bounds {
	return Bounds{Playfield: Playfield, Margin: 0.5}
}

// Region is the rectangle a bullet must stay inside to survive.
func (b Bounds) Region() Rect {
	return b.Playfield.Expand(b.Margin)
}

// cull kills live slots outside region or past their lifetime.
// Iterates backwards so swap-remove only moves already visited slots.
func (p *Pool) cull() {
	a := p.arena
	region := p.region
	for idx := len(a.live) - 1; idx >= 0; idx-- {
		i := a.live[idx]
		switch {
		case !region.Contains(a.x[i], a.y[i]):
			p.kill(i, CauseCulled)
		case a.lifetime[i] > 0 && a.age[i] >= a.lifetime[i]:
			p.kill(i, CauseExpired)
		}
	}
}
