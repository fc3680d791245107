package sim

import (
	"log"
	"math"

	"danmaku/internal/bullet"
	"danmaku/internal/trajectory"
)

// BossTargetID is the target id the demo boss registers under.
const BossTargetID = 1

// DirectorConfig tunes the demo script.
type DirectorConfig struct {
	SwayPlayer  bool    // Move the player side to side
	AutoFire    bool    // Fire player shots at the boss
	HoldSeconds float64 // Boss pause at each waypoint
	MoveSeconds float64 // Boss travel time between waypoints
}

// DefaultDirectorConfig runs the full demo.
func DefaultDirectorConfig() DirectorConfig {
	return DirectorConfig{
		SwayPlayer:  true,
		AutoFire:    true,
		HoldSeconds: 2,
		MoveSeconds: 1.5,
	}
}

type waypoint struct{ x, y float64 }

var bossPath = []waypoint{{0, 0.5}, {-0.4, 0.6}, {0.4, 0.6}, {0, 0.4}}

// spellCard is one timed attack. fire runs every tick with t counting ticks
// since the card started.
type spellCard struct {
	name    string
	hp      int32
	seconds int
	fire    func(d *Director, t int)
}

// Director is a built-in attack script: a boss that follows a path and cycles
// spell cards, ending each when its HP runs out or its time limit passes.
// It only uses the engine's public script API (Submit*, SetTargets,
// SetPlayer), running on the tick goroutine via OnTick.
type Director struct {
	engine *Engine
	cfg    DirectorConfig
	spells []spellCard

	start      uint64
	spell      int
	spellStart uint64
	bossHP     int32
	boss       bullet.Target
	targets    [1]bullet.Target

	cleared  int
	timedOut int
}

// NewDirector builds the demo script for e. Call Attach to run it.
func NewDirector(e *Engine, cfg DirectorConfig) *Director {
	d := &Director{
		engine: e,
		cfg:    cfg,
		spells: defaultSpells(),
		boss:   bullet.Target{ID: BossTargetID, X: bossPath[0].x, Y: bossPath[0].y, Radius: 0.08},
	}
	d.bossHP = d.spells[0].hp
	return d
}

// Attach installs the director's tick and target-hit callbacks. Call before
// Start.
func (d *Director) Attach() {
	d.start = d.engine.Tick()
	d.spellStart = d.start
	d.engine.OnTick(d.Step)
	d.engine.OnTargetHit(d.onTargetHit)
	d.publishBoss()
	log.Printf("🎮 Demo script attached, first spell %q", d.spells[0].name)
}

func (d *Director) onTargetHit(h bullet.TargetHit) {
	if h.Target == BossTargetID {
		d.bossHP -= max(h.Damage, 1)
	}
}

// Step advances the script by one tick.
func (d *Director) Step(tick uint64) {
	elapsed := tick - d.start

	if d.cfg.SwayPlayer {
		d.swayPlayer(elapsed)
	}
	d.moveBoss(elapsed)
	d.publishBoss()

	sc := &d.spells[d.spell]
	t := int(tick - d.spellStart)
	switch {
	case d.bossHP <= 0:
		d.cleared++
		d.nextSpell(tick, "cleared")
	case t >= sc.seconds*d.engine.TickRate():
		d.timedOut++
		d.nextSpell(tick, "timed out")
	default:
		sc.fire(d, t)
	}

	if d.cfg.AutoFire && elapsed%5 == 0 {
		d.fireShots()
	}
}

func (d *Director) nextSpell(tick uint64, outcome string) {
	prev := d.spells[d.spell].name
	d.engine.SubmitClear(EnemyPool, bullet.ByOwner(prev))

	d.spell = (d.spell + 1) % len(d.spells)
	d.spellStart = tick
	d.bossHP = d.spells[d.spell].hp
	log.Printf("✨ Spell %q %s, next %q", prev, outcome, d.spells[d.spell].name)
}

// Spell returns the running spell card name.
func (d *Director) Spell() string {
	return d.spells[d.spell].name
}

// BossHP returns the boss HP left on the current card.
func (d *Director) BossHP() int32 {
	return d.bossHP
}

// Boss returns the boss target as last registered.
func (d *Director) Boss() bullet.Target {
	return d.boss
}

func (d *Director) publishBoss() {
	d.targets[0] = d.boss
	d.engine.SetTargets(d.targets[:])
}

func (d *Director) moveBoss(elapsed uint64) {
	rate := float64(d.engine.TickRate())
	hold := uint64(d.cfg.HoldSeconds * rate)
	move := max(uint64(d.cfg.MoveSeconds*rate), 1)
	legLen := hold + move

	leg := elapsed / legLen
	phase := elapsed % legLen
	from := bossPath[leg%uint64(len(bossPath))]
	to := bossPath[(leg+1)%uint64(len(bossPath))]

	if phase < hold {
		d.boss.X, d.boss.Y = from.x, from.y
		return
	}
	s := smoothstep(float64(phase-hold+1) / float64(move))
	d.boss.X = from.x + (to.x-from.x)*s
	d.boss.Y = from.y + (to.y-from.y)*s
}

func (d *Director) swayPlayer(elapsed uint64) {
	period := 6 * float64(d.engine.TickRate())
	x := 0.5 * math.Sin(2*math.Pi*float64(elapsed)/period)
	d.engine.SetPlayer(d.engine.Player().At(x, -0.8))
}

func (d *Director) fireShots() {
	p := d.engine.Player()
	for _, dx := range [...]float64{-0.03, 0.03} {
		d.engine.SubmitSpawn(ShotPool, bullet.SpawnSpec{
			Kind:        trajectory.Straight,
			X:           p.HitX + dx,
			Y:           p.HitY + 0.05,
			Speed:       0.04,
			Angle:       90,
			Radius:      0.015,
			GrazeRadius: 0.015,
			Visual:      9,
			Owner:       "player",
			Damage:      10,
		})
	}
}

// smoothstep eases t in [0, 1] with zero slope at both ends.
func smoothstep(t float64) float64 {
	t = min(max(t, 0), 1)
	return t * t * (3 - 2*t)
}

func (d *Director) enemySpec(kind trajectory.Kind, speed float64, visual uint16, color uint32) bullet.SpawnSpec {
	return bullet.SpawnSpec{
		Kind:        kind,
		X:           d.boss.X,
		Y:           d.boss.Y,
		Speed:       speed,
		Radius:      0.012,
		GrazeRadius: 0.03,
		Visual:      visual,
		Color:       color,
		Owner:       d.spells[d.spell].name,
		Damage:      1,
	}
}

func defaultSpells() []spellCard {
	return []spellCard{
		{name: "ring-bloom", hp: 1200, seconds: 20, fire: fireRingBloom},
		{name: "spiral", hp: 1500, seconds: 25, fire: fireSpiral},
		{name: "aimed-fan", hp: 1500, seconds: 25, fire: fireAimedFan},
	}
}

// fireRingBloom alternates offset rings with a wavering downward spray.
func fireRingBloom(d *Director, t int) {
	if t%30 == 0 {
		spec := d.enemySpec(trajectory.Straight, 0.008, 0, 0xff5078ff)
		spec.Angle = float64((t/30)%2) * 7.5
		d.engine.SubmitRing(EnemyPool, spec, 24, 360)
	}
	if t%45 == 15 {
		spec := d.enemySpec(trajectory.Sine, 0.01, 4, 0)
		spec.Angle = -120
		spec.Params = trajectory.Params{Amplitude: 20, Period: 60}
		d.engine.SubmitRing(EnemyPool, spec, 6, 60)
	}
}

// fireSpiral emits a rotating three-arm curved spiral.
func fireSpiral(d *Director, t int) {
	if t%4 != 0 {
		return
	}
	spec := d.enemySpec(trajectory.Curved, 0.01, 1, 0)
	spec.Angle = math.Mod(float64(t)*7, 360)
	spec.Params.AngularAccel = 0.4
	if (t/120)%2 == 1 {
		spec.Params.AngularAccel = -0.4
	}
	d.engine.SubmitRing(EnemyPool, spec, 3, 360)
}

// fireAimedFan fires accelerating fans at the player plus delayed curving
// rings that hang before turning.
func fireAimedFan(d *Director, t int) {
	if t%24 == 0 {
		spec := d.enemySpec(trajectory.Aimed, 0.006, 2, 0)
		spec.Angle = -20
		spec.Params = trajectory.Params{Accel: 0.0005, Clamp: true, MinSpeed: 0, MaxSpeed: 0.02}
		d.engine.SubmitRing(EnemyPool, spec, 5, 50)
	}
	if t%90 == 45 {
		spec := d.enemySpec(trajectory.DelayedCurve, 0.004, 3, 0)
		spec.Params = trajectory.Params{SwitchTick: 40, AngularAccel: 1.5}
		spec.Lifetime = 600
		d.engine.SubmitDelayed(EnemyPool, spec, 10)
		for i := 1; i < 12; i++ {
			ring := spec
			ring.Angle = float64(i) * 30
			d.engine.SubmitDelayed(EnemyPool, ring, 10)
		}
	}
}
