// Package bullet owns the lifecycle, motion and collision of projectiles.
//
// A Pool is a fixed-capacity columnar arena plus the per-tick passes that run
// over it: Integrate, Cull, Collide, CollideTargets and Finish, strictly in
// that order. Pools are single-writer; hosts that spawn from other goroutines
// must funnel commands onto the tick goroutine.
package bullet

import (
	"fmt"

	"danmaku/internal/bullet/spatial"
	"danmaku/internal/trajectory"
)

// Config holds pool construction parameters.
type Config struct {
	Capacity  int
	Bounds    Bounds
	HitPolicy HitPolicy

	// Workers > 1 integrates in parallel chunks once the live count reaches
	// ParallelThreshold.
	Workers           int
	ParallelThreshold int

	MaxDelayed   int     // Delayed-spawn queue bound, 0 = Capacity
	GridCellSize float64 // Broad-phase cell for CollideTargets
}

// DefaultConfig returns a pool sized for one enemy bullet layer.
func DefaultConfig() Config {
	return Config{
		Capacity:          4096,
		Bounds:            DefaultBounds(),
		HitPolicy:         KeepOnHit,
		Workers:           1,
		ParallelThreshold: 2048,
		GridCellSize:      0.25,
	}
}

// DeathCause says which pass removed a bullet.
type DeathCause uint8

const (
	CauseCulled DeathCause = iota + 1
	CauseExpired
	CauseHit
	CauseCleared
	CauseKilled
)

var causeNames = [...]string{
	CauseCulled:  "culled",
	CauseExpired: "expired",
	CauseHit:     "hit",
	CauseCleared: "cleared",
	CauseKilled:  "killed",
}

func (c DeathCause) String() string {
	if int(c) < len(causeNames) && causeNames[c] != "" {
		return causeNames[c]
	}
	return "unknown"
}

// Death is delivered to the OnDeath hook. Handle is already stale.
type Death struct {
	Handle Handle
	Owner  string
	Visual uint16
	X, Y   float64
	Cause  DeathCause
}

// Removed is one bullet deactivated by Clear.
type Removed struct {
	Handle Handle
	Owner  string
	Visual uint16
	X, Y   float64
}

// Filter selects bullets for Clear.
type Filter struct {
	Owner    string
	AnyOwner bool  // Ignore Owner
	Region   *Rect // Optional spatial restriction
	Outside  bool  // Match outside Region instead of inside
}

// All matches every bullet.
func All() Filter {
	return Filter{AnyOwner: true}
}

// ByOwner matches bullets spawned with owner tag.
func ByOwner(owner string) Filter {
	return Filter{Owner: owner}
}

func (f *Filter) matches(owner string, x, y float64) bool {
	if !f.AnyOwner && owner != f.Owner {
		return false
	}
	if f.Region != nil && f.Region.Contains(x, y) == f.Outside {
		return false
	}
	return true
}

// RenderBullet is the per-bullet render snapshot. No slot indices leak out.
type RenderBullet struct {
	X, Y   float64
	Angle  float64
	Radius float64
	Visual uint16
	Color  uint32
}

// Stats are cumulative counters plus current occupancy.
type Stats struct {
	Capacity int
	Live     int
	Pending  int
	Delayed  int

	Spawned  uint64
	Dropped  uint64 // ErrCapacityExceeded, including delayed materialization
	Rejected uint64 // ErrInvalidSpawnSpec
	Culled   uint64
	Expired  uint64
	Hit      uint64
	Cleared  uint64
	Killed   uint64
	Hits     uint64 // Hit contacts reported
	Grazes   uint64 // Graze contacts reported
}

type phase uint8

const (
	phaseReady phase = iota
	phaseIntegrated
	phaseCulled
	phaseCollided
)

const gridPad = 0.5

type delayedSpawn struct {
	spec      SpawnSpec
	remaining int
}

// Pool is the public surface over one arena.
type Pool struct {
	cfg    Config
	arena  *arena
	region Rect
	grid   *spatial.Grid

	phase  phase
	player Player

	contacts   []Contact
	targetHits []TargetHit
	removed    []Removed
	deaths     []Death
	delayed    []delayedSpawn

	onDeath    func(Death)
	delivering bool
	stats      Stats
}

// NewPool preallocates every column for cfg.Capacity bullets.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("bullet: capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Bounds.Margin < 0 {
		return nil, fmt.Errorf("bullet: negative bounds margin %v", cfg.Bounds.Margin)
	}
	if cfg.MaxDelayed <= 0 {
		cfg.MaxDelayed = cfg.Capacity
	}
	if cfg.GridCellSize <= 0 {
		cfg.GridCellSize = 0.25
	}

	// The grid covers the playfield plus at most gridPad. Bullets in a wider
	// cull margin land in the border cells.
	gr := cfg.Bounds.Playfield.Expand(min(cfg.Bounds.Margin, gridPad))
	return &Pool{
		cfg:        cfg,
		arena:      newArena(cfg.Capacity),
		region:     cfg.Bounds.Region(),
		grid:       spatial.NewGrid(gr.Left, gr.Bottom, gr.Right, gr.Top, cfg.GridCellSize, cfg.Capacity),
		player:     DefaultPlayer(),
		contacts:   make([]Contact, 0, cfg.Capacity),
		targetHits: make([]TargetHit, 0, 64),
		removed:    make([]Removed, 0, 64),
		deaths:     make([]Death, 0, 256),
		delayed:    make([]delayedSpawn, 0, 64),
		stats:      Stats{Capacity: cfg.Capacity},
	}, nil
}

// Capacity is fixed at construction.
func (p *Pool) Capacity() int { return p.arena.capacity }

// Len is the number of live plus pending bullets.
func (p *Pool) Len() int { return len(p.arena.live) + len(p.arena.pending) }

// Region returns the cull rectangle (playfield plus margin).
func (p *Pool) Region() Rect { return p.region }

// OnDeath registers the hook called for every removed bullet. Deaths during a
// tick are delivered in Finish; deaths between ticks are delivered at once.
// The hook may spawn, the new bullets wait for the next tick.
func (p *Pool) OnDeath(fn func(Death)) { p.onDeath = fn }

// SetPlayer updates the player state used by Collide and by Aimed spawns.
func (p *Pool) SetPlayer(pl Player) { p.player = pl }

// Player returns the current player state.
func (p *Pool) Player() Player { return p.player }

// Spawn writes one bullet into a free slot. Between ticks the bullet is live
// at once and is first moved by the next Integrate. Inside a tick it is
// pending until Finish.
func (p *Pool) Spawn(spec SpawnSpec) (Handle, error) {
	if err := spec.Validate(); err != nil {
		p.stats.Rejected++
		return Handle{}, err
	}
	return p.spawn(&spec, spec.Angle)
}

func (p *Pool) spawn(spec *SpawnSpec, angle float64) (Handle, error) {
	slot, ok := p.arena.alloc()
	if !ok {
		p.stats.Dropped++
		return Handle{}, ErrCapacityExceeded
	}

	if spec.Kind == trajectory.Aimed {
		angle += trajectory.AimAngle(spec.X, spec.Y, p.player.HitX, p.player.HitY)
	}
	p.arena.write(slot, spec, angle)
	if spec.Kind == trajectory.Sine {
		p.arena.params[slot].BaseAngle = angle
	}

	if p.phase == phaseReady {
		p.arena.activate(slot)
	} else {
		p.arena.markPending(slot)
	}
	p.stats.Spawned++
	return p.arena.handle(slot), nil
}

// SpawnRing spawns count copies of spec evenly spread over spread degrees
// starting at spec.Angle (360 for a full ring). Handles of the spawned bullets
// are appended to dst. If the arena fills up the rest are dropped and
// ErrCapacityExceeded is returned with the partial result.
func (p *Pool) SpawnRing(spec SpawnSpec, count int, spread float64, dst []Handle) ([]Handle, error) {
	if count <= 0 {
		p.stats.Rejected++
		return dst, invalid("ring count %d", count)
	}
	if err := spec.Validate(); err != nil {
		p.stats.Rejected++
		return dst, err
	}

	step := spread / float64(count)
	for i := 0; i < count; i++ {
		h, err := p.spawn(&spec, spec.Angle+float64(i)*step)
		if err != nil {
			p.stats.Dropped += uint64(count - i - 1)
			return dst, err
		}
		dst = append(dst, h)
	}
	return dst, nil
}

// SpawnDelayed queues spec to be spawned after delay ticks. A delay of 0 is a
// plain Spawn. Capacity drops at materialization are counted in Stats.Dropped.
func (p *Pool) SpawnDelayed(spec SpawnSpec, delay int) error {
	if delay < 0 {
		p.stats.Rejected++
		return invalid("negative delay %d", delay)
	}
	if err := spec.Validate(); err != nil {
		p.stats.Rejected++
		return err
	}
	if delay == 0 {
		_, err := p.spawn(&spec, spec.Angle)
		return err
	}
	if len(p.delayed) >= p.cfg.MaxDelayed {
		p.stats.Dropped++
		return ErrCapacityExceeded
	}
	p.delayed = append(p.delayed, delayedSpawn{spec: spec, remaining: delay})
	return nil
}

// Alive reports whether h still refers to a live or pending bullet.
func (p *Pool) Alive(h Handle) bool {
	return p.arena.valid(h)
}

// Get returns a copy of the bullet behind h.
func (p *Pool) Get(h Handle) (View, error) {
	if !p.arena.valid(h) {
		return View{}, ErrStaleHandle
	}
	return p.arena.view(h.Slot), nil
}

// Kill removes one bullet. A stale handle is reported, never applied to the
// slot's new occupant.
func (p *Pool) Kill(h Handle) error {
	if !p.arena.valid(h) {
		return ErrStaleHandle
	}
	p.kill(h.Slot, CauseKilled)
	p.flushDeaths()
	return nil
}

// Clear removes every live or pending bullet matching f, plus queued delayed
// spawns that match. The returned slice is reused by the next Clear.
// Clearing with nothing to match is a no-op.
func (p *Pool) Clear(f Filter) []Removed {
	if p.delivering {
		// Called from a death hook: the outer Clear still owns p.removed.
		p.removed = nil
	}
	p.removed = p.removed[:0]
	a := p.arena

	for idx := len(a.live) - 1; idx >= 0; idx-- {
		p.clearSlot(&f, a.live[idx])
	}
	for idx := len(a.pending) - 1; idx >= 0; idx-- {
		p.clearSlot(&f, a.pending[idx])
	}

	kept := p.delayed[:0]
	for _, d := range p.delayed {
		if !f.matches(d.spec.Owner, d.spec.X, d.spec.Y) {
			kept = append(kept, d)
		}
	}
	clear(p.delayed[len(kept):])
	p.delayed = kept

	removed := p.removed
	p.flushDeaths()
	return removed
}

func (p *Pool) clearSlot(f *Filter, i uint32) {
	a := p.arena
	if !f.matches(a.owner[i], a.x[i], a.y[i]) {
		return
	}
	p.removed = append(p.removed, Removed{
		Handle: a.handle(i), Owner: a.owner[i], Visual: a.visual[i], X: a.x[i], Y: a.y[i],
	})
	p.kill(i, CauseCleared)
}

// Reset kills every bullet and drops the delayed queue. Generations keep
// increasing so handles from before the reset stay stale.
func (p *Pool) Reset() {
	a := p.arena
	for len(a.live) > 0 {
		p.kill(a.live[len(a.live)-1], CauseCleared)
	}
	for len(a.pending) > 0 {
		p.kill(a.pending[len(a.pending)-1], CauseCleared)
	}
	clear(p.delayed)
	p.delayed = p.delayed[:0]
	p.flushDeaths()
}

// kill releases slot and queues its death record.
func (p *Pool) kill(slot uint32, cause DeathCause) {
	a := p.arena
	d := Death{
		Handle: a.handle(slot),
		Owner:  a.owner[slot],
		Visual: a.visual[slot],
		X:      a.x[slot],
		Y:      a.y[slot],
		Cause:  cause,
	}
	a.release(slot)

	switch cause {
	case CauseCulled:
		p.stats.Culled++
	case CauseExpired:
		p.stats.Expired++
	case CauseHit:
		p.stats.Hit++
	case CauseCleared:
		p.stats.Cleared++
	case CauseKilled:
		p.stats.Killed++
	}
	if p.onDeath != nil {
		p.deaths = append(p.deaths, d)
	}
}

// flushDeaths delivers queued deaths when no tick is in progress.
func (p *Pool) flushDeaths() {
	if p.phase == phaseReady {
		p.deliverDeaths()
	}
}

func (p *Pool) deliverDeaths() {
	if p.delivering {
		// Nested Kill/Clear/Reset from the hook, the running loop drains it.
		return
	}
	if p.onDeath == nil {
		p.deaths = p.deaths[:0]
		return
	}
	p.delivering = true
	// The hook may kill more bullets, which appends to p.deaths.
	for i := 0; i < len(p.deaths); i++ {
		p.onDeath(p.deaths[i])
	}
	p.delivering = false
	clear(p.deaths)
	p.deaths = p.deaths[:0]
}

// GridStats returns target grid occupancy as of the last CollideTargets.
func (p *Pool) GridStats() spatial.GridStats {
	return p.grid.Stats()
}

// Integrate starts a tick: it resets the tick's reports and advances every
// live bullet.
func (p *Pool) Integrate() error {
	if p.phase != phaseReady {
		return fmt.Errorf("%w: integrate during an unfinished tick", ErrPhaseOrder)
	}
	p.contacts = p.contacts[:0]
	p.targetHits = p.targetHits[:0]
	p.integrate()
	p.phase = phaseIntegrated
	return nil
}

// Cull removes bullets outside the cull region or past their lifetime.
func (p *Pool) Cull() error {
	if p.phase != phaseIntegrated {
		return fmt.Errorf("%w: cull before integrate", ErrPhaseOrder)
	}
	p.cull()
	p.phase = phaseCulled
	return nil
}

// Collide tests live bullets against the player and fills the report.
// The hit policy is applied after all tests ran.
func (p *Pool) Collide() error {
	if p.phase != phaseCulled {
		return fmt.Errorf("%w: collide before cull", ErrPhaseOrder)
	}
	p.collide()
	for _, c := range p.contacts {
		if c.Kind == ContactHit {
			p.stats.Hits++
		} else {
			p.stats.Grazes++
		}
	}
	p.applyHitPolicy()
	p.phase = phaseCollided
	return nil
}

// CollideTargets tests live bullets against targets and returns the hits.
// The returned slice is valid until the next Integrate.
func (p *Pool) CollideTargets(targets []Target) ([]TargetHit, error) {
	if p.phase != phaseCulled && p.phase != phaseCollided {
		return nil, fmt.Errorf("%w: collide targets before cull", ErrPhaseOrder)
	}
	start := len(p.targetHits)
	p.collideTargets(targets)
	return p.targetHits[start:], nil
}

// Finish ends the tick: death hooks run, delayed spawns whose delay elapsed
// are materialized, and bullets spawned during the tick become live.
func (p *Pool) Finish() error {
	if p.phase != phaseCulled && p.phase != phaseCollided {
		return fmt.Errorf("%w: finish before cull", ErrPhaseOrder)
	}

	p.deliverDeaths()

	kept := p.delayed[:0]
	for _, d := range p.delayed {
		d.remaining--
		if d.remaining > 0 {
			kept = append(kept, d)
			continue
		}
		_, _ = p.spawn(&d.spec, d.spec.Angle) // drops already counted
	}
	clear(p.delayed[len(kept):])
	p.delayed = kept

	p.arena.activatePending()
	p.phase = phaseReady
	return nil
}

// Tick runs Integrate, Cull, Collide and Finish and returns the collision
// report (valid until the next tick).
func (p *Pool) Tick() ([]Contact, error) {
	if err := p.Integrate(); err != nil {
		return nil, err
	}
	// Phases below cannot fail once Integrate succeeded.
	_ = p.Cull()
	_ = p.Collide()
	_ = p.Finish()
	return p.contacts, nil
}

// Report returns the contacts of the most recent Collide.
func (p *Pool) Report() []Contact {
	return p.contacts
}

// Snapshot appends render data for every live bullet to dst[:0].
func (p *Pool) Snapshot(dst []RenderBullet) []RenderBullet {
	dst = dst[:0]
	a := p.arena
	for _, i := range a.live {
		dst = append(dst, RenderBullet{
			X: a.x[i], Y: a.y[i],
			Angle:  a.angle[i],
			Radius: a.radius[i],
			Visual: a.visual[i],
			Color:  a.color[i],
		})
	}
	return dst
}

// Each calls fn with a view of every live bullet, in unspecified order.
func (p *Pool) Each(fn func(View)) {
	for _, i := range p.arena.live {
		fn(p.arena.view(i))
	}
}

// Stats returns the counters and current occupancy.
func (p *Pool) Stats() Stats {
	s := p.stats
	s.Live = len(p.arena.live)
	s.Pending = len(p.arena.pending)
	s.Delayed = len(p.delayed)
	return s
}
