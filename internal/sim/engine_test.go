package sim

import (
	"errors"
	"testing"
	"time"

	"danmaku/internal/bullet"
	"danmaku/internal/trajectory"
)

func newTestEngine(t *testing.T, mutate func(*EngineConfig)) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.Enemy.Capacity = 64
	cfg.Shots.Capacity = 16
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func spec(x, y, speed float64) bullet.SpawnSpec {
	return bullet.SpawnSpec{
		Kind:        trajectory.Straight,
		X:           x,
		Y:           y,
		Speed:       speed,
		Radius:      0.01,
		GrazeRadius: 0.02,
	}
}

// TestCommandsAppliedBeforeIntegration verifies a queued spawn moves on the next tick
func TestCommandsAppliedBeforeIntegration(t *testing.T) {
	e := newTestEngine(t, nil)
	if !e.SubmitSpawn(EnemyPool, spec(0, 0.5, 0.25)) {
		t.Fatal("SubmitSpawn() rejected")
	}

	e.Advance(1)
	f := e.Snapshot()
	if f.Tick != 1 || len(f.Enemy) != 1 {
		t.Fatalf("frame = %+v, want tick 1 with one bullet", f)
	}
	if f.Enemy[0].X != 0.25 {
		t.Errorf("x = %v, want 0.25 (moved by the tick that applied it)", f.Enemy[0].X)
	}
}

// TestSpawnNowErrors verifies boundary errors surface synchronously
func TestSpawnNowErrors(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.Enemy.Capacity = 1 })

	bad := spec(0, 0, 0)
	bad.Radius = -1
	if _, err := e.SpawnNow(EnemyPool, bad); !errors.Is(err, bullet.ErrInvalidSpawnSpec) {
		t.Errorf("invalid spec error = %v", err)
	}

	if _, err := e.SpawnNow(EnemyPool, spec(0, 0, 0)); err != nil {
		t.Fatalf("SpawnNow() error = %v", err)
	}
	if _, err := e.SpawnNow(EnemyPool, spec(0, 0, 0)); !errors.Is(err, bullet.ErrCapacityExceeded) {
		t.Errorf("full pool error = %v", err)
	}
	if _, err := e.SpawnNow(PoolID(9), spec(0, 0, 0)); err == nil {
		t.Error("unknown pool should fail")
	}
}

// TestOnContact verifies player contacts reach the callback
func TestOnContact(t *testing.T) {
	e := newTestEngine(t, nil)
	var got []bullet.Contact
	e.OnContact(func(id PoolID, c bullet.Contact) {
		if id != EnemyPool {
			t.Errorf("contact from pool %v", id)
		}
		got = append(got, c)
	})

	pl := e.Player()
	s := spec(pl.HitX, pl.HitY, 0)
	s.Owner = "boss"
	e.SubmitSpawn(EnemyPool, s)
	e.Advance(1)

	hits := 0
	for _, c := range got {
		if c.Kind == bullet.ContactHit && c.Owner == "boss" {
			hits++
		}
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1 (%+v)", hits, got)
	}
	if f := e.Snapshot(); f.Hits != 1 {
		t.Errorf("frame hits = %d, want 1", f.Hits)
	}
}

// TestShotsHitTargets verifies player shots collide with targets and are spent
func TestShotsHitTargets(t *testing.T) {
	e := newTestEngine(t, nil)
	var hits []bullet.TargetHit
	e.OnTargetHit(func(h bullet.TargetHit) { hits = append(hits, h) })

	e.SetTargets([]bullet.Target{{ID: 1, X: 0, Y: 0.6, Radius: 0.08}})
	shot := spec(0, 0.5, 0.1)
	shot.Angle = 90
	shot.Damage = 2
	if _, err := e.SpawnNow(ShotPool, shot); err != nil {
		t.Fatal(err)
	}

	e.Advance(1)
	if len(hits) != 1 || hits[0].Target != 1 || hits[0].Damage != 2 {
		t.Fatalf("target hits = %+v", hits)
	}
	if s := e.Stats(); s.Shots.Live != 0 || s.TargetHits != 1 {
		t.Errorf("stats = %+v, want spent shot", s.Shots)
	}
	if g := e.Stats().ShotGrid; g.TotalEntries != 1 || g.NonEmptyCells != 1 {
		t.Errorf("shot grid = %+v, want the one shot", g)
	}
	if f := e.Snapshot(); len(f.Targets) != 1 {
		t.Errorf("frame targets = %+v", f.Targets)
	}
}

// TestSubmitQueueFull verifies dropped commands are counted
func TestSubmitQueueFull(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.CommandQueueSize = 2 })
	e.SubmitSpawn(EnemyPool, spec(0, 0, 0))
	e.SubmitSpawn(EnemyPool, spec(0, 0, 0))
	if e.SubmitSpawn(EnemyPool, spec(0, 0, 0)) {
		t.Error("third submit should be dropped")
	}
	if s := e.Stats(); s.CommandsDropped != 1 || s.QueueLen != 2 {
		t.Errorf("stats = %+v", s)
	}

	e.Advance(1)
	if s := e.Stats(); s.Enemy.Live != 2 || s.QueueLen != 0 {
		t.Errorf("after tick live=%d queue=%d", s.Enemy.Live, s.QueueLen)
	}
}

// TestRingClearDelayed verifies the other queued commands
func TestRingClearDelayed(t *testing.T) {
	e := newTestEngine(t, nil)
	ring := spec(0, 0, 0.01)
	ring.Owner = "spell"
	e.SubmitRing(EnemyPool, ring, 8, 360)
	e.SubmitDelayed(EnemyPool, spec(0, 0, 0), 2)
	e.Advance(1)

	if got := e.Stats().Enemy.Live; got != 8 {
		t.Fatalf("live after ring = %d, want 8", got)
	}

	e.SubmitClear(EnemyPool, bullet.ByOwner("spell"))
	e.Advance(1) // clear applied, delayed spawn materializes at the end
	if got := e.Stats().Enemy.Live; got != 1 {
		t.Errorf("live after clear = %d, want the delayed bullet", got)
	}

	removed, err := e.ClearNow(EnemyPool, bullet.All())
	if err != nil || len(removed) != 1 {
		t.Errorf("ClearNow() = %d, %v", len(removed), err)
	}
}

// TestResetAll verifies both pools and the delayed queue are emptied
func TestResetAll(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.SpawnRingNow(EnemyPool, spec(0, 0, 0), 4, 360); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SpawnNow(ShotPool, spec(0, -0.5, 0)); err != nil {
		t.Fatal(err)
	}
	e.SubmitDelayed(EnemyPool, spec(0, 0, 0), 2)
	e.Advance(1)

	if n := e.ResetAll(); n != 5 {
		t.Errorf("ResetAll() = %d, want 5", n)
	}
	e.Advance(3)
	s := e.Stats()
	if s.Enemy.Live != 0 || s.Enemy.Delayed != 0 || s.Shots.Live != 0 {
		t.Errorf("after reset enemy=%d delayed=%d shots=%d", s.Enemy.Live, s.Enemy.Delayed, s.Shots.Live)
	}
}

// TestStartStop verifies the ticker advances and stop is idempotent
func TestStartStop(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.TickRate = 200 })
	e.Start()
	e.Start()

	deadline := time.Now().Add(2 * time.Second)
	for e.Tick() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("engine did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !e.Stats().Running {
		t.Error("Stats().Running should be true")
	}
	e.Stop()
	e.Stop()
	if e.Stats().Running {
		t.Error("Stats().Running should be false after Stop")
	}
}

func TestEngineConfigFrom(t *testing.T) {
	cfg := DefaultEngineConfig()
	if cfg.Enemy.HitPolicy != bullet.KeepOnHit || cfg.Shots.HitPolicy != bullet.DestroyOnHit {
		t.Errorf("policies = %v/%v", cfg.Enemy.HitPolicy, cfg.Shots.HitPolicy)
	}
	if r := cfg.Enemy.Bounds.Region(); r.Right != 1.5 {
		t.Errorf("cull region = %+v, want +-1.5", r)
	}
	if cfg.Player.GrazeY != cfg.Player.HitY {
		t.Error("graze circle should start on the hit point")
	}
	if _, err := NewEngine(EngineConfig{}); err == nil {
		t.Error("zero tick rate should fail")
	}
}

func TestParsePoolID(t *testing.T) {
	for _, id := range []PoolID{EnemyPool, ShotPool} {
		got, ok := ParsePoolID(id.String())
		if !ok || got != id {
			t.Errorf("ParsePoolID(%q) = %v, %v", id.String(), got, ok)
		}
	}
	if _, ok := ParsePoolID("boss"); ok {
		t.Error("unknown pool name should fail")
	}
}

func BenchmarkEngineTick(b *testing.B) {
	cfg := DefaultEngineConfig()
	e, err := NewEngine(cfg)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 4000; i++ {
		s := spec(0, 0.3, 0.002)
		s.Kind = trajectory.Curved
		s.Params.AngularAccel = 1
		s.Angle = float64(i)
		_, _ = e.SpawnNow(EnemyPool, s)
	}

	b.ReportAllocs()
	b.ResetTimer()
	e.Advance(b.N)
}
