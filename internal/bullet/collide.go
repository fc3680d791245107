package bullet

// Player is the state the detector tests against: a single hit point and a
// graze circle. Radii are added to each bullet's own radii.
type Player struct {
	HitX, HitY   float64
	HitRadius    float64
	GrazeX       float64
	GrazeY       float64
	GrazeRadius  float64
	Invulnerable bool // Suppresses hits, grazes still count
}

// DefaultPlayer sits at the bottom center of the playfield.
func DefaultPlayer() Player {
	return Player{
		HitX: 0, HitY: -0.8, HitRadius: 0.01,
		GrazeX: 0, GrazeY: -0.8, GrazeRadius: 0.05,
	}
}

// At returns p with both circles centered on (x, y).
func (p Player) At(x, y float64) Player {
	p.HitX, p.HitY = x, y
	p.GrazeX, p.GrazeY = x, y
	return p
}

// ContactKind distinguishes lethal hits from near misses.
type ContactKind uint8

const (
	ContactHit ContactKind = iota + 1
	ContactGraze
)

func (k ContactKind) String() string {
	switch k {
	case ContactHit:
		return "hit"
	case ContactGraze:
		return "graze"
	}
	return "unknown"
}

// Contact is one entry of a tick's collision report.
type Contact struct {
	Handle Handle
	Owner  string
	Kind   ContactKind
	X, Y   float64
}

// HitPolicy decides what happens to a bullet after a reported hit.
type HitPolicy uint8

const (
	KeepOnHit    HitPolicy = iota // Bullet stays live; the caller decides
	DestroyOnHit                  // Pool kills the bullet with CauseHit
)

// Target is a circle player shots can hit (an enemy, a boss part).
type Target struct {
	ID     int // Caller-defined, echoed in TargetHit
	X, Y   float64
	Radius float64
}

// TargetHit is one shot-vs-target contact.
type TargetHit struct {
	Handle Handle
	Owner  string
	Target int // Target.ID
	Damage int32
	X, Y   float64
}

// collide runs the hit and graze tests for every live slot. It writes only the
// grazing column; policy is applied by the caller afterwards.
func (p *Pool) collide() {
	a := p.arena
	pl := p.player

	for _, i := range a.live {
		x, y := a.x[i], a.y[i]

		if !pl.Invulnerable {
			dx, dy := x-pl.HitX, y-pl.HitY
			r := a.radius[i] + pl.HitRadius
			if dx*dx+dy*dy < r*r {
				p.contacts = append(p.contacts, Contact{
					Handle: a.handle(i), Owner: a.owner[i], Kind: ContactHit, X: x, Y: y,
				})
			}
		}

		dx, dy := x-pl.GrazeX, y-pl.GrazeY
		g := a.graze[i] + pl.GrazeRadius
		inside := dx*dx+dy*dy < g*g
		if inside && !a.grazing[i] {
			p.contacts = append(p.contacts, Contact{
				Handle: a.handle(i), Owner: a.owner[i], Kind: ContactGraze, X: x, Y: y,
			})
		}
		a.grazing[i] = inside
	}
}

// applyHitPolicy kills the bullets behind this tick's hit contacts.
func (p *Pool) applyHitPolicy() {
	if p.cfg.HitPolicy != DestroyOnHit {
		return
	}
	for _, c := range p.contacts {
		if c.Kind == ContactHit && p.arena.valid(c.Handle) {
			p.kill(c.Handle.Slot, CauseHit)
		}
	}
}

// collideTargets tests live bullets against targets through the spatial grid.
func (p *Pool) collideTargets(targets []Target) {
	a := p.arena
	if len(a.live) == 0 || len(targets) == 0 {
		return
	}

	p.grid.Clear()
	maxRadius := 0.0
	for _, i := range a.live {
		p.grid.Insert(i, a.x[i], a.y[i])
		if a.radius[i] > maxRadius {
			maxRadius = a.radius[i]
		}
	}

	for _, t := range targets {
		for _, i := range p.grid.QueryRadius(t.X, t.Y, t.Radius+maxRadius) {
			if a.state[i] != slotLive {
				continue // spent on an earlier target this tick
			}
			dx, dy := a.x[i]-t.X, a.y[i]-t.Y
			r := a.radius[i] + t.Radius
			if dx*dx+dy*dy >= r*r {
				continue
			}

			p.targetHits = append(p.targetHits, TargetHit{
				Handle: a.handle(i),
				Owner:  a.owner[i],
				Target: t.ID,
				Damage: a.damage[i],
				X:      a.x[i],
				Y:      a.y[i],
			})

			if p.cfg.HitPolicy == DestroyOnHit {
				if a.pierce[i] > 0 {
					a.pierce[i]--
				} else {
					p.kill(i, CauseHit)
				}
			}
		}
	}
}
