package bullet

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"danmaku/internal/trajectory"
)

// wideConfig never culls bullets in these properties.
func wideConfig(capacity int) Config {
	cfg := DefaultConfig()
	cfg.Capacity = capacity
	cfg.Bounds.Margin = 1e6
	return cfg
}

func newRapidPool(t *rapid.T, cfg Config) *Pool {
	p, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	return p
}

func drawSpec(t *rapid.T, label string) SpawnSpec {
	kinds := []trajectory.Kind{trajectory.Straight, trajectory.Accelerating, trajectory.Curved, trajectory.AccelCurved}
	r := rapid.Float64Range(0, 0.05).Draw(t, label+"-radius")
	return SpawnSpec{
		Kind:        rapid.SampledFrom(kinds).Draw(t, label+"-kind"),
		X:           rapid.Float64Range(-1, 1).Draw(t, label+"-x"),
		Y:           rapid.Float64Range(-1, 1).Draw(t, label+"-y"),
		Speed:       rapid.Float64Range(-0.05, 0.05).Draw(t, label+"-speed"),
		Angle:       rapid.Float64Range(-360, 360).Draw(t, label+"-angle"),
		Radius:      r,
		GrazeRadius: r + rapid.Float64Range(0, 0.05).Draw(t, label+"-graze"),
		Params: trajectory.Params{
			Accel:        rapid.Float64Range(-0.001, 0.001).Draw(t, label+"-accel"),
			AngularAccel: rapid.Float64Range(-5, 5).Draw(t, label+"-turn"),
		},
	}
}

// TestSpawnIsolation checks that other bullets never change a bullet's path
func TestSpawnIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		subject := drawSpec(t, "subject")
		others := rapid.IntRange(0, 20).Draw(t, "others")
		ticks := rapid.IntRange(1, 60).Draw(t, "ticks")

		alone := newRapidPool(t, wideConfig(32))
		crowded := newRapidPool(t, wideConfig(32))

		ha, err := alone.Spawn(subject)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < others; i++ {
			if _, err := crowded.Spawn(drawSpec(t, fmt.Sprintf("other%d", i))); err != nil {
				t.Fatal(err)
			}
		}
		hc, err := crowded.Spawn(subject)
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < ticks; i++ {
			_, _ = alone.Tick()
			_, _ = crowded.Tick()
		}

		va, _ := alone.Get(ha)
		vc, _ := crowded.Get(hc)
		if va.X != vc.X || va.Y != vc.Y || va.Angle != vc.Angle || va.Speed != vc.Speed {
			t.Fatalf("paths diverge: alone %+v crowded %+v", va, vc)
		}
	})
}

// TestStraightRoundTrip checks axis-aligned straight motion has no drift
func TestStraightRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dirs := [][3]float64{{0, 1, 0}, {90, 0, 1}, {180, -1, 0}, {270, 0, -1}}
		dir := rapid.SampledFrom(dirs).Draw(t, "dir")
		speed := float64(rapid.IntRange(0, 64).Draw(t, "speed")) / 64
		x0 := float64(rapid.IntRange(-64, 64).Draw(t, "x0")) / 64
		y0 := float64(rapid.IntRange(-64, 64).Draw(t, "y0")) / 64
		n := rapid.IntRange(0, 100).Draw(t, "ticks")

		p := newRapidPool(t, wideConfig(1))
		h, err := p.Spawn(straight(x0, y0, speed, dir[0]))
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			_, _ = p.Tick()
		}

		v, _ := p.Get(h)
		wantX := x0 + float64(n)*speed*dir[1]
		wantY := y0 + float64(n)*speed*dir[2]
		if v.X != wantX || v.Y != wantY {
			t.Fatalf("after %d ticks at (%v, %v), want (%v, %v)", n, v.X, v.Y, wantX, wantY)
		}
	})
}

// TestCurvedCongruence checks identical specs trace identical paths whenever spawned
func TestCurvedCongruence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		spec := drawSpec(t, "spec")
		spec.Kind = rapid.SampledFrom([]trajectory.Kind{trajectory.Curved, trajectory.AccelCurved}).Draw(t, "kind")
		lag := rapid.IntRange(1, 30).Draw(t, "lag")
		life := rapid.IntRange(1, 60).Draw(t, "life")

		// Reference: the same bullet alone from the first tick
		solo := newRapidPool(t, wideConfig(1))
		ref, err := solo.Spawn(spec)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < life; i++ {
			_, _ = solo.Tick()
		}

		// Same spec spawned lag ticks later next to an older copy
		p := newRapidPool(t, wideConfig(2))
		if _, err := p.Spawn(spec); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < lag; i++ {
			_, _ = p.Tick()
		}
		late, err := p.Spawn(spec)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < life; i++ {
			_, _ = p.Tick()
		}

		want, _ := solo.Get(ref)
		got, _ := p.Get(late)
		if got.X != want.X || got.Y != want.Y || got.Angle != want.Angle || got.Age != want.Age {
			t.Fatalf("age %d: late spawn %+v, reference %+v", life, got, want)
		}
	})
}

// TestClearIdempotence checks a repeated clear removes nothing
func TestClearIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		owners := []string{"a", "b", "c"}
		p := newRapidPool(t, wideConfig(64))
		n := rapid.IntRange(0, 64).Draw(t, "n")
		for i := 0; i < n; i++ {
			s := straight(0, 0, 0, 0)
			s.Owner = rapid.SampledFrom(owners).Draw(t, fmt.Sprintf("owner%d", i))
			if _, err := p.Spawn(s); err != nil {
				t.Fatal(err)
			}
		}

		target := rapid.SampledFrom(owners).Draw(t, "target")
		p.Clear(ByOwner(target))
		before := p.Stats()
		if got := len(p.Clear(ByOwner(target))); got != 0 {
			t.Fatalf("second clear removed %d", got)
		}
		if after := p.Stats(); after != before {
			t.Fatalf("stats changed: %+v -> %+v", before, after)
		}
		p.Each(func(v View) {
			if v.Owner == target {
				t.Fatalf("bullet %v of cleared owner still live", v.Handle)
			}
		})
	})
}

// TestGrazeOncePerOverlap checks grazes report once however long the overlap lasts
func TestGrazeOncePerOverlap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ticks := rapid.IntRange(1, 200).Draw(t, "ticks")
		p := newRapidPool(t, wideConfig(1))
		pl := p.Player()

		s := straight(pl.GrazeX+0.03, pl.GrazeY, 0, 0)
		s.GrazeRadius = 0.02
		if _, err := p.Spawn(s); err != nil {
			t.Fatal(err)
		}

		grazes := 0
		for i := 0; i < ticks; i++ {
			contacts, _ := p.Tick()
			grazes += countKind(contacts, ContactGraze)
		}
		if grazes != 1 {
			t.Fatalf("%d ticks produced %d grazes", ticks, grazes)
		}
	})
}

// TestCapacityNeverExceeded checks drops are exact and the live count is capped
func TestCapacityNeverExceeded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(t, "capacity")
		extra := rapid.IntRange(0, 16).Draw(t, "extra")
		p := newRapidPool(t, wideConfig(capacity))

		for i := 0; i < capacity+extra; i++ {
			_, _ = p.Spawn(straight(0, 0, 0, 0))
		}
		s := p.Stats()
		if s.Live != capacity || s.Dropped != uint64(extra) {
			t.Fatalf("live=%d dropped=%d, want %d/%d", s.Live, s.Dropped, capacity, extra)
		}
	})
}
