package sim

import (
	"math"
	"testing"

	"danmaku/internal/bullet"
)

func newDirectorEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.Enemy.Capacity = 4096
	cfg.Shots.Capacity = 256
	cfg.Shots.HitPolicy = bullet.DestroyOnHit
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestDirectorFiresPatterns(t *testing.T) {
	e := newDirectorEngine(t)
	d := NewDirector(e, DefaultDirectorConfig())
	d.Attach()

	e.Advance(60)

	st := e.Stats()
	if st.Enemy.Live == 0 {
		t.Fatal("expected enemy bullets after one second")
	}
	if st.Shots.Spawned == 0 {
		t.Error("expected player shots")
	}
	if d.Spell() != "ring-bloom" {
		t.Errorf("spell = %q", d.Spell())
	}

	f := e.Snapshot()
	if len(f.Targets) != 1 || f.Targets[0].ID != BossTargetID {
		t.Errorf("targets = %+v", f.Targets)
	}
}

func TestDirectorBossTakesDamage(t *testing.T) {
	e := newDirectorEngine(t)
	cfg := DefaultDirectorConfig()
	cfg.SwayPlayer = false
	d := NewDirector(e, cfg)
	d.Attach()

	start := d.BossHP()
	// Player at (0, -0.8) fires straight up at the boss holding at (0, 0.5)
	e.Advance(60)

	if d.BossHP() >= start {
		t.Errorf("boss HP = %d, want below %d", d.BossHP(), start)
	}
	if e.Stats().TargetHits == 0 {
		t.Error("expected target hits")
	}
}

func TestDirectorNextSpellOnDefeat(t *testing.T) {
	e := newDirectorEngine(t)
	cfg := DefaultDirectorConfig()
	cfg.AutoFire = false
	d := NewDirector(e, cfg)
	d.Attach()

	e.Advance(31)
	before := e.Stats().Enemy
	if before.Live == 0 {
		t.Fatal("expected bullets from the first card")
	}

	d.bossHP = 0
	e.Advance(1)

	if d.Spell() != "spiral" {
		t.Errorf("spell = %q, want spiral", d.Spell())
	}
	if d.BossHP() != d.spells[1].hp {
		t.Errorf("boss HP = %d, want reset to %d", d.BossHP(), d.spells[1].hp)
	}
	after := e.Stats().Enemy
	if after.Cleared != uint64(before.Live) {
		t.Errorf("cleared %d, want %d", after.Cleared, before.Live)
	}
	if d.cleared != 1 {
		t.Errorf("cleared cards = %d", d.cleared)
	}
}

func TestDirectorTimeLimit(t *testing.T) {
	e := newDirectorEngine(t)
	d := NewDirector(e, DirectorConfig{})
	d.spells[0].seconds = 1
	d.Attach()

	e.Advance(e.TickRate() + 1)

	if d.Spell() != "spiral" || d.timedOut != 1 {
		t.Errorf("spell = %q, timed out %d", d.Spell(), d.timedOut)
	}
}

func TestDirectorBossPath(t *testing.T) {
	e := newDirectorEngine(t)
	d := NewDirector(e, DefaultDirectorConfig())
	rate := float64(e.TickRate())
	hold := uint64(d.cfg.HoldSeconds * rate)
	move := uint64(d.cfg.MoveSeconds * rate)

	d.moveBoss(0)
	if d.boss.X != bossPath[0].x || d.boss.Y != bossPath[0].y {
		t.Errorf("start = (%v, %v)", d.boss.X, d.boss.Y)
	}
	d.moveBoss(hold + move - 1)
	if math.Abs(d.boss.X-bossPath[1].x) > 1e-12 || math.Abs(d.boss.Y-bossPath[1].y) > 1e-12 {
		t.Errorf("end of leg = (%v, %v), want %v", d.boss.X, d.boss.Y, bossPath[1])
	}
	d.moveBoss(hold + move)
	if d.boss.X != bossPath[1].x {
		t.Errorf("second leg should hold at waypoint 1, x = %v", d.boss.X)
	}
}

func TestSmoothstep(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {2, 1},
	}
	for _, tt := range tests {
		if got := smoothstep(tt.in); got != tt.want {
			t.Errorf("smoothstep(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
