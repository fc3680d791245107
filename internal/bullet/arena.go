package bullet

import "danmaku/internal/trajectory"

type slotState uint8

const (
	slotDead slotState = iota
	slotPending
	slotLive
)

// arena stores every bullet field in its own preallocated column, indexed by
// slot. Nothing here allocates after newArena.
//
// live is the dense list of live slots; livePos[slot] is the slot's index in
// live (or -1), so removal is a swap with the last element.
type arena struct {
	capacity int

	// Kinematics
	x, y, vx, vy, dx, dy []float64
	speed, angle         []float64
	kind                 []trajectory.Kind
	params               []trajectory.Params
	age                  []int32

	// Collision
	radius, graze []float64
	grazing       []bool

	// Payload
	visual   []uint16
	color    []uint32
	owner    []string
	lifetime []int32
	damage   []int32
	pierce   []int32

	// Bookkeeping
	gen     []uint32
	state   []slotState
	live    []uint32
	livePos []int32
	pending []uint32
	free    []uint32 // LIFO stack
}

func newArena(capacity int) *arena {
	a := &arena{
		capacity: capacity,
		x:        make([]float64, capacity),
		y:        make([]float64, capacity),
		vx:       make([]float64, capacity),
		vy:       make([]float64, capacity),
		dx:       make([]float64, capacity),
		dy:       make([]float64, capacity),
		speed:    make([]float64, capacity),
		angle:    make([]float64, capacity),
		kind:     make([]trajectory.Kind, capacity),
		params:   make([]trajectory.Params, capacity),
		age:      make([]int32, capacity),
		radius:   make([]float64, capacity),
		graze:    make([]float64, capacity),
		grazing:  make([]bool, capacity),
		visual:   make([]uint16, capacity),
		color:    make([]uint32, capacity),
		owner:    make([]string, capacity),
		lifetime: make([]int32, capacity),
		damage:   make([]int32, capacity),
		pierce:   make([]int32, capacity),
		gen:      make([]uint32, capacity),
		state:    make([]slotState, capacity),
		live:     make([]uint32, 0, capacity),
		livePos:  make([]int32, capacity),
		pending:  make([]uint32, 0, capacity),
		free:     make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		a.gen[i] = 1 // zero generation is reserved for the zero Handle
		a.livePos[i] = -1
		// Reverse order so the first pops return slot 0, 1, 2...
		a.free[i] = uint32(capacity - 1 - i)
	}
	return a
}

// alloc pops a free slot. The slot stays dead until write+activate/markPending.
func (a *arena) alloc() (uint32, bool) {
	n := len(a.free)
	if n == 0 {
		return 0, false
	}
	slot := a.free[n-1]
	a.free = a.free[:n-1]
	return slot, true
}

// write fills every column of slot from spec. angle is the resolved heading.
func (a *arena) write(slot uint32, spec *SpawnSpec, angle float64) {
	s := trajectory.Launch(spec.X, spec.Y, spec.Speed, angle)
	a.storeState(slot, s)
	a.kind[slot] = spec.Kind
	a.params[slot] = spec.Params
	a.age[slot] = 0
	a.radius[slot] = spec.Radius
	a.graze[slot] = spec.GrazeRadius
	a.grazing[slot] = false
	a.visual[slot] = spec.Visual
	a.color[slot] = spec.Color
	a.owner[slot] = spec.Owner
	a.lifetime[slot] = spec.Lifetime
	a.damage[slot] = spec.Damage
	a.pierce[slot] = spec.Pierce
}

func (a *arena) loadState(i uint32) trajectory.State {
	return trajectory.State{
		X: a.x[i], Y: a.y[i],
		VX: a.vx[i], VY: a.vy[i],
		DX: a.dx[i], DY: a.dy[i],
		Speed: a.speed[i],
		Angle: a.angle[i],
	}
}

func (a *arena) storeState(i uint32, s trajectory.State) {
	a.x[i], a.y[i] = s.X, s.Y
	a.vx[i], a.vy[i] = s.VX, s.VY
	a.dx[i], a.dy[i] = s.DX, s.DY
	a.speed[i] = s.Speed
	a.angle[i] = s.Angle
}

func (a *arena) activate(slot uint32) {
	a.state[slot] = slotLive
	a.livePos[slot] = int32(len(a.live))
	a.live = append(a.live, slot)
}

func (a *arena) markPending(slot uint32) {
	a.state[slot] = slotPending
	a.pending = append(a.pending, slot)
}

// activatePending moves every pending slot to the live list.
func (a *arena) activatePending() {
	for _, slot := range a.pending {
		if a.state[slot] == slotPending {
			a.activate(slot)
		}
	}
	a.pending = a.pending[:0]
}

// release returns slot to the free list and bumps its generation so every
// outstanding handle to it goes stale.
func (a *arena) release(slot uint32) {
	switch a.state[slot] {
	case slotDead:
		return
	case slotLive:
		pos := a.livePos[slot]
		last := len(a.live) - 1
		moved := a.live[last]
		a.live[pos] = moved
		a.livePos[moved] = pos
		a.live = a.live[:last]
		a.livePos[slot] = -1
	case slotPending:
		for i, s := range a.pending {
			if s == slot {
				a.pending = append(a.pending[:i], a.pending[i+1:]...)
				break
			}
		}
	}

	a.state[slot] = slotDead
	a.grazing[slot] = false
	a.owner[slot] = "" // drop the string reference
	a.gen[slot]++
	if a.gen[slot] == 0 {
		a.gen[slot] = 1
	}
	a.free = append(a.free, slot)
}

// valid reports whether h still names a live or pending bullet.
func (a *arena) valid(h Handle) bool {
	if int(h.Slot) >= a.capacity {
		return false
	}
	return a.gen[h.Slot] == h.Gen && a.state[h.Slot] != slotDead
}

func (a *arena) handle(slot uint32) Handle {
	return Handle{Slot: slot, Gen: a.gen[slot]}
}

func (a *arena) view(slot uint32) View {
	return View{
		Handle:      a.handle(slot),
		Kind:        a.kind[slot],
		X:           a.x[slot],
		Y:           a.y[slot],
		Speed:       a.speed[slot],
		Angle:       a.angle[slot],
		Radius:      a.radius[slot],
		GrazeRadius: a.graze[slot],
		Visual:      a.visual[slot],
		Color:       a.color[slot],
		Owner:       a.owner[slot],
		Age:         a.age[slot],
		Lifetime:    a.lifetime[slot],
		Damage:      a.damage[slot],
		Pierce:      a.pierce[slot],
		Grazing:     a.grazing[slot],
		Pending:     a.state[slot] == slotPending,
	}
}

// integrate steps every slot in live by one tick. Slots are disjoint so
// callers may run several integrate calls over separate chunks concurrently.
func (a *arena) integrate(live []uint32) {
	for _, i := range live {
		s := trajectory.Step(a.kind[i], &a.params[i], a.loadState(i), a.age[i])
		a.storeState(i, s)
		a.age[i]++
	}
}
